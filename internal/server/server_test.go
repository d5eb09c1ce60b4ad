package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/dashboard/internal/platform/auth"
	"github.com/ehr/dashboard/internal/platform/sandbox"
	"github.com/ehr/dashboard/internal/platform/telemetry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	iss, err := auth.NewIssuer([]byte("server-test-signing-key-0123456789"), "ehr-sandbox", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	revoked := auth.NewTokenRevocationStore(time.Minute)
	t.Cleanup(revoked.Close)
	return New(Options{
		Logger:  zerolog.Nop(),
		Issuer:  iss,
		Revoked: revoked,
		Metrics: telemetry.New("servertest"),
		Stores:  MemoryStores(),
	})
}

func do(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/auth/register", "", `{"username":"nurse","password":"secret1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct{ Token string }
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Token
}

func TestServer_PublicEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/health", "/metrics"} {
		if rec := do(t, s, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestServer_RequiresBearer(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/patients", "/api/authorization"} {
		if rec := do(t, s, http.MethodGet, path, "", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestServer_PatientFlow(t *testing.T) {
	s := newTestServer(t)
	token := register(t, s)

	rec := do(t, s, http.MethodPost, "/api/patients", token,
		`{"name":"Anna","age":34,"condition":"Asthma","medicalHistory":["Asthma"],"treatmentPlan":"Inhaler"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created struct{ ID string }
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = do(t, s, http.MethodGet, "/api/patients?page=1&limit=5", token, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"totalPages":1`) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, "/api/authorization", token,
		`{"patientId":"`+created.ID+`","treatmentType":"MRI","insurancePlan":"Aetna","dateOfService":"2030-01-02","diagnosisCode":"J45.909","status":"pending"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(t, s, http.MethodGet, "/api/patients/nope", token, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown patient, got %d", rec.Code)
	}
}

func TestServer_LogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	token := register(t, s)

	if rec := do(t, s, http.MethodPost, "/api/auth/logout", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodGet, "/api/patients", token, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token rejected, got %d", rec.Code)
	}
}

func TestServer_Seeder(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.Seeder.Seed(context.Background(), sandbox.SeedConfig{PatientCount: 7, Seed: 3}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	token := register(t, s)
	rec := do(t, s, http.MethodGet, "/api/patients?page=2&limit=5", token, "")
	var page struct {
		Patients   []json.RawMessage `json:"patients"`
		TotalPages int               `json:"totalPages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Patients) != 2 || page.TotalPages != 2 {
		t.Fatalf("expected 2 patients on page 2 of 2, got %d of %d", len(page.Patients), page.TotalPages)
	}
}
