package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := NewService(NewMemoryRepo())
	return NewHandler(svc), echo.New()
}

func seed(t *testing.T, h *Handler, n int) []*Patient {
	t.Helper()
	var out []*Patient
	for i := 0; i < n; i++ {
		p, err := h.svc.CreatePatient(context.Background(), Draft{
			Name:           fmt.Sprintf("Patient %d", i+1),
			Age:            20 + i,
			Condition:      "Flu",
			MedicalHistory: []string{"None"},
			TreatmentPlan:  "Rest",
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()

	body := `{"name":"Anna","age":34,"condition":"Asthma","medicalHistory":["Asthma"],"treatmentPlan":"Inhaler"}`
	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID == "" {
		t.Error("expected server assigned id")
	}
	if p.Name != "Anna" {
		t.Errorf("expected Anna, got %s", p.Name)
	}
}

func TestHandler_CreatePatient_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(`{"age":3}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.CreatePatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler()
	p := seed(t, h, 1)[0]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.GetPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}

func TestHandler_ListPatients_Paginates(t *testing.T) {
	h, e := newTestHandler()
	seed(t, h, 7)

	req := httptest.NewRequest(http.MethodGet, "/api/patients?page=2&limit=5", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp PageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalPages != 2 {
		t.Errorf("expected 2 pages, got %d", resp.TotalPages)
	}
	if len(resp.Patients) != 2 {
		t.Fatalf("expected 2 patients on page 2, got %d", len(resp.Patients))
	}
	if resp.Patients[0].Name != "Patient 6" {
		t.Errorf("expected Patient 6 first, got %s", resp.Patients[0].Name)
	}
}

func TestHandler_ListPatients_EmptyCollection(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/patients", nil), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"patients":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"totalPages":1`) {
		t.Errorf("expected totalPages 1, got %s", rec.Body.String())
	}
}
