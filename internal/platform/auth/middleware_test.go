package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testSigningKey, "ehr-sandbox", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func runMiddleware(t *testing.T, cfg JWTConfig, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/patients")
	return c, JWTMiddleware(cfg)(okHandler)(c)
}

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTConfig{Issuer: newTestIssuer(t)}, "")
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTConfig{Issuer: newTestIssuer(t)}, tt.header)
			expectUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	iss := newTestIssuer(t)
	token, _, err := iss.Issue("acct-1", "nurse")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	c, err := runMiddleware(t, JWTConfig{Issuer: iss}, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims := ClaimsFromContext(c)
	if claims == nil || claims.Subject != "acct-1" {
		t.Fatalf("expected claims for acct-1, got %+v", claims)
	}
	if got := UsernameFromContext(c.Request().Context()); got != "nurse" {
		t.Errorf("expected username nurse, got %q", got)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acct-1",
			Issuer:    "ehr-sandbox",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token := createTestToken(t, claims, testSigningKey)

	_, err := runMiddleware(t, JWTConfig{Issuer: newTestIssuer(t)}, "Bearer "+token)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acct-1",
			Issuer:    "ehr-sandbox",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := createTestToken(t, claims, []byte("some-other-signing-key-entirely"))

	_, err := runMiddleware(t, JWTConfig{Issuer: newTestIssuer(t)}, "Bearer "+token)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_RevokedToken(t *testing.T) {
	iss := newTestIssuer(t)
	store := NewTokenRevocationStore(time.Minute)
	defer store.Close()

	token, claims, err := iss.Issue("acct-1", "nurse")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	store.Revoke(claims.ID, claims.ExpiresAt.Time)

	_, err = runMiddleware(t, JWTConfig{Issuer: iss, Revoked: store}, "Bearer "+token)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{
		Issuer:  newTestIssuer(t),
		Skipper: func(echo.Context) bool { return true },
	}
	if _, err := runMiddleware(t, cfg, ""); err != nil {
		t.Fatalf("expected skipper to bypass auth, got %v", err)
	}
}

func TestNewIssuer_ShortKey(t *testing.T) {
	if _, err := NewIssuer([]byte("short"), "", 0); err == nil {
		t.Fatal("expected error for short signing key")
	}
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := newTestIssuer(t)
	token, issued, err := iss.Issue("acct-9", "clerk")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != issued.ID || got.Username != "clerk" {
		t.Errorf("unexpected claims %+v", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.After(time.Now()) {
		t.Errorf("expected future expiry, got %v", got.ExpiresAt)
	}
}
