package authorization

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_SubmitAndList(t *testing.T) {
	h := NewHandler(NewService(NewMemoryRepo(), fakePatients{"P3": true}))
	e := echo.New()

	body := `{"patientId":"P3","treatmentType":"MRI","insurancePlan":"Gold","dateOfService":"2026-11-02","diagnosisCode":"M54.5","doctorNotes":"","status":"pending"}`
	req := httptest.NewRequest(http.MethodPost, "/api/authorization", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.Submit(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	if err := h.List(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/authorization", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Request
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].PatientID != "P3" || items[0].Status != StatusPending {
		t.Fatalf("unexpected list: %+v", items)
	}
}

func TestHandler_Submit_Invalid(t *testing.T) {
	h := NewHandler(NewService(NewMemoryRepo(), nil))
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/authorization", strings.NewReader(`{"patientId":"P1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := h.Submit(e.NewContext(req, httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestRequest_UnmarshalMongoID(t *testing.T) {
	var r Request
	if err := json.Unmarshal([]byte(`{"_id":"a1","status":"approved"}`), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.ID != "a1" || r.Status != StatusApproved {
		t.Errorf("unexpected request: %+v", r)
	}
}
