package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/dashboard/internal/domain/authorization"
	"github.com/ehr/dashboard/internal/domain/patient"
	"github.com/ehr/dashboard/internal/platform/auth"
	"github.com/ehr/dashboard/internal/platform/session"
	"github.com/ehr/dashboard/internal/server"
)

type fixture struct {
	srv     *httptest.Server
	session *session.Store
	client  *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	iss, err := auth.NewIssuer([]byte("apiclient-test-signing-key-0123456789"), "ehr-sandbox", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	revoked := auth.NewTokenRevocationStore(time.Minute)
	t.Cleanup(revoked.Close)

	s := server.New(server.Options{
		Logger:  zerolog.Nop(),
		Issuer:  iss,
		Revoked: revoked,
		Stores:  server.MemoryStores(),
	})
	srv := httptest.NewServer(s.Echo)
	t.Cleanup(srv.Close)

	store, err := session.New(context.Background(), session.NewMemoryBackend().Open(), zerolog.Nop())
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	c, err := New(srv.URL+"/api", store, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{srv: srv, session: store, client: c}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	token, err := f.client.Register(context.Background(), "clerk", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.session.Login(context.Background(), token); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func validDraft() patient.Draft {
	return patient.Draft{
		Name:           "Anna",
		Age:            34,
		Condition:      "Asthma",
		MedicalHistory: []string{"Asthma"},
		TreatmentPlan:  "Inhaler",
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New("ftp://example.com", nil, zerolog.Nop()); err == nil {
		t.Error("expected error for non-http scheme")
	}
}

func TestClient_NoCredential(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.client.ListPatients(context.Background(), 1, 5)
	if !errors.Is(err, ErrNoCredential) || KindOf(err) != KindAuthorizationExpired {
		t.Fatalf("expected no credential error, got %v", err)
	}
	if !IsLoggedOut(err) {
		t.Error("expected IsLoggedOut")
	}
}

func TestClient_LoginAndRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.client.Register(ctx, "clerk", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := f.client.Login(ctx, "clerk", "secret1")
	if err != nil || token == "" {
		t.Fatalf("Login: %q, %v", token, err)
	}

	_, err = f.client.Login(ctx, "clerk", "wrong-password")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("expected 401 status, got %+v", apiErr)
	}
	if f.session.IsAuthenticated() {
		t.Error("a failed login must not touch the session")
	}
}

func TestClient_PatientRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	created, err := f.client.CreatePatient(ctx, validDraft())
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected an id")
	}

	items, totalPages, err := f.client.ListPatients(ctx, 1, 5)
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(items) != 1 || totalPages != 1 {
		t.Fatalf("expected 1 item on 1 page, got %d on %d", len(items), totalPages)
	}

	got, err := f.client.GetPatient(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if got.Name != "Anna" {
		t.Errorf("expected Anna, got %q", got.Name)
	}
}

func TestClient_GetPatientNotFound(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, err := f.client.GetPatient(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !f.session.IsAuthenticated() {
		t.Error("a 404 must not end the session")
	}
}

func TestClient_SubmissionFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, err := f.client.CreatePatient(context.Background(), patient.Draft{Age: 3})
	if !errors.Is(err, ErrSubmission) {
		t.Fatalf("expected submission error, got %v", err)
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message == "" {
		t.Error("expected server message to be carried")
	}
}

func TestClient_SubmitAuthorizationForcesPending(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	p, err := f.client.CreatePatient(ctx, validDraft())
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	req, err := f.client.SubmitAuthorization(ctx, authorization.Submission{
		PatientID:     p.ID,
		TreatmentType: "MRI",
		InsurancePlan: "Aetna",
		DateOfService: "2030-01-02",
		DiagnosisCode: "J45.909",
		Status:        "approved",
	})
	if err != nil {
		t.Fatalf("SubmitAuthorization: %v", err)
	}
	if req.Status != authorization.StatusPending {
		t.Errorf("expected pending, got %q", req.Status)
	}

	list, err := f.client.ListAuthorizations(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListAuthorizations: %d, %v", len(list), err)
	}
}

func TestClient_RejectedCredentialEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "someone",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := forged.SignedString([]byte("a-key-the-server-does-not-know"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := f.session.Login(ctx, token); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, _, err = f.client.ListPatients(ctx, 1, 5)
	if !errors.Is(err, ErrAuthorizationExpired) {
		t.Fatalf("expected authorization expired, got %v", err)
	}
	if f.session.IsAuthenticated() {
		t.Fatal("expected the session to be ended before the error returned")
	}
}

func TestClient_ExpiredTokenNotSent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	store, _ := session.New(ctx, session.NewMemoryBackend().Open(), zerolog.Nop())
	c, err := New(srv.URL, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stale := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	token, _ := stale.SignedString([]byte("whatever-key-0123456789"))
	_ = store.Login(ctx, token)

	_, err = c.GetPatient(ctx, "P1")
	if !errors.Is(err, ErrAuthorizationExpired) {
		t.Fatalf("expected authorization expired, got %v", err)
	}
	if hits != 0 {
		t.Errorf("expected no request for an expired token, got %d", hits)
	}
	if store.IsAuthenticated() {
		t.Error("expected session ended")
	}
}

func TestClient_OpaqueTokenLeftToServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer opaque" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"patients":[{"_id":"m1","name":"Bob","age":12}],"totalPages":3}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	store, _ := session.New(ctx, session.NewMemoryBackend().Open(), zerolog.Nop())
	_ = store.Login(ctx, "opaque")
	c, _ := New(srv.URL, store, zerolog.Nop())

	items, totalPages, err := c.ListPatients(ctx, 1, 5)
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(items) != 1 || items[0].ID != "m1" || totalPages != 3 {
		t.Fatalf("unexpected page: %+v, %d", items, totalPages)
	}
}

func TestClient_ServerErrorIsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database down"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	store, _ := session.New(ctx, session.NewMemoryBackend().Open(), zerolog.Nop())
	_ = store.Login(ctx, "opaque")
	c, _ := New(srv.URL, store, zerolog.Nop())

	_, err := c.ListAuthorizations(ctx)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindFetch || apiErr.Message != "database down" {
		t.Fatalf("expected fetch error with message, got %v", err)
	}
	if !store.IsAuthenticated() {
		t.Error("a server error must not end the session")
	}
}

func TestClient_RevokeToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()
	token, _ := f.session.CurrentToken()

	if err := f.client.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	_, _, err := f.client.ListPatients(ctx, 1, 5)
	if !IsLoggedOut(err) {
		t.Fatalf("expected revoked token to log out, got %v", err)
	}
}

func TestKind_String(t *testing.T) {
	if KindSubmission.String() != "submission" || Kind(99).String() != "unknown" {
		t.Error("unexpected Kind strings")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("expected unknown kind for foreign error")
	}
}
