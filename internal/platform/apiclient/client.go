// Package apiclient is the dashboard's HTTP client for the patient and
// authorization API. Every authenticated call reads the credential from the
// session at call time, and any rejection of that credential ends the
// session before the error reaches the caller.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/dashboard/internal/domain/account"
	"github.com/ehr/dashboard/internal/domain/authorization"
	"github.com/ehr/dashboard/internal/domain/patient"
	"github.com/ehr/dashboard/internal/platform/telemetry"
)

const DefaultTimeout = 10 * time.Second

// Session is the part of the session store the client depends on.
type Session interface {
	CurrentToken() (string, bool)
	Expire(ctx context.Context, token, reason string) error
}

type Client struct {
	base    *url.URL
	http    *http.Client
	session Session
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:8000/api".
func New(baseURL string, session Session, logger zerolog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q must be http or https", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: DefaultTimeout},
		session: session,
		logger:  logger.With().Str("component", "apiclient").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login exchanges credentials for a token. It does not touch the session.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	return c.exchange(ctx, "login", "/auth/login", username, password)
}

// Register creates an account and returns a token for it.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	return c.exchange(ctx, "register", "/auth/register", username, password)
}

func (c *Client) exchange(ctx context.Context, op, path, username, password string) (string, error) {
	var resp account.TokenResponse
	err := c.do(ctx, call{
		op:     op,
		method: http.MethodPost,
		path:   path,
		body:   account.Credentials{Username: username, Password: password},
		out:    &resp,
		fail:   KindAuthentication,
	})
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &Error{Kind: KindAuthentication, Op: op, Message: "response carried no token"}
	}
	return resp.Token, nil
}

// RevokeToken asks the server to revoke token. Failures are returned but a
// client logging out should not depend on this succeeding.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	return c.do(ctx, call{
		op:     "logout",
		method: http.MethodPost,
		path:   "/auth/logout",
		token:  token,
		fail:   KindAuthentication,
	})
}

// ListPatients fetches one page of patients.
func (c *Client) ListPatients(ctx context.Context, page, limit int) ([]patient.Patient, int, error) {
	var resp struct {
		Patients   []patient.Patient `json:"patients"`
		TotalPages int               `json:"totalPages"`
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	err := c.do(ctx, call{
		op:     "list_patients",
		method: http.MethodGet,
		path:   "/patients",
		query:  q,
		out:    &resp,
		authed: true,
		fail:   KindFetch,
	})
	if err != nil {
		return nil, 0, err
	}
	return resp.Patients, resp.TotalPages, nil
}

func (c *Client) GetPatient(ctx context.Context, id string) (*patient.Patient, error) {
	if id == "" {
		return nil, &Error{Kind: KindNotFound, Op: "get_patient", Message: "empty patient id"}
	}
	var p patient.Patient
	err := c.do(ctx, call{
		op:       "get_patient",
		method:   http.MethodGet,
		path:     "/patients/" + url.PathEscape(id),
		out:      &p,
		authed:   true,
		fail:     KindFetch,
		notFound: true,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreatePatient(ctx context.Context, d patient.Draft) (*patient.Patient, error) {
	var p patient.Patient
	err := c.do(ctx, call{
		op:     "create_patient",
		method: http.MethodPost,
		path:   "/patients",
		body:   d,
		out:    &p,
		authed: true,
		fail:   KindSubmission,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) SubmitAuthorization(ctx context.Context, s authorization.Submission) (*authorization.Request, error) {
	s.Status = authorization.StatusPending
	var r authorization.Request
	err := c.do(ctx, call{
		op:     "submit_authorization",
		method: http.MethodPost,
		path:   "/authorization",
		body:   s,
		out:    &r,
		authed: true,
		fail:   KindSubmission,
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) ListAuthorizations(ctx context.Context) ([]authorization.Request, error) {
	var out []authorization.Request
	err := c.do(ctx, call{
		op:     "list_authorizations",
		method: http.MethodGet,
		path:   "/authorization",
		out:    &out,
		authed: true,
		fail:   KindFetch,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type call struct {
	op       string
	method   string
	path     string
	query    url.Values
	body     interface{}
	out      interface{}
	authed   bool
	token    string // explicit bearer, used instead of the session's
	fail     Kind
	notFound bool // map 404 to KindNotFound
}

func (c *Client) do(ctx context.Context, cl call) (err error) {
	start := c.now()
	defer func() {
		result := "ok"
		if err != nil {
			result = KindOf(err).String()
			c.logger.Warn().Err(err).Str("op", cl.op).Msg("api call failed")
		}
		c.metrics.ObserveClientCall(cl.op, result, c.now().Sub(start))
	}()

	token := cl.token
	if cl.authed {
		var ok bool
		token, ok = c.session.CurrentToken()
		if !ok {
			return &Error{Kind: KindAuthorizationExpired, Op: cl.op, Err: ErrNoCredential}
		}
		if c.expired(token) {
			return c.expire(ctx, cl.op, token, 0, "credential expired")
		}
	}

	req, err := c.newRequest(ctx, cl, token)
	if err != nil {
		return &Error{Kind: cl.fail, Op: cl.op, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: cl.fail, Op: cl.op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("op", cl.op).Int("status", resp.StatusCode).Msg("api call")

	if resp.StatusCode >= 300 {
		msg := readMessage(resp.Body)
		switch {
		case cl.authed && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden):
			return c.expire(ctx, cl.op, token, resp.StatusCode, msg)
		case cl.notFound && resp.StatusCode == http.StatusNotFound:
			return &Error{Kind: KindNotFound, Op: cl.op, Status: resp.StatusCode, Message: msg}
		default:
			return &Error{Kind: cl.fail, Op: cl.op, Status: resp.StatusCode, Message: msg}
		}
	}

	if cl.out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		return &Error{Kind: cl.fail, Op: cl.op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, cl call, token string) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + cl.path
	if cl.query != nil {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// expire ends the session for token and builds the error returned to the
// caller. The session is always told first.
func (c *Client) expire(ctx context.Context, op, token string, status int, reason string) error {
	if reason == "" {
		reason = http.StatusText(status)
	}
	if err := c.session.Expire(ctx, token, reason); err != nil {
		c.logger.Error().Err(err).Str("op", op).Msg("end expired session")
	}
	return &Error{Kind: KindAuthorizationExpired, Op: op, Status: status, Message: reason}
}

// expired reports whether token is a JWT whose exp has passed. Tokens that
// are not JWTs are left for the server to judge.
func (c *Client) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !c.now().Before(claims.ExpiresAt.Time)
}

// readMessage extracts the server's error message from an echo-style JSON
// body, falling back to the raw text.
func readMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}

// IsLoggedOut reports whether err means the view should fall back to the
// logged-out state.
func IsLoggedOut(err error) bool {
	return errors.Is(err, ErrAuthorizationExpired) || errors.Is(err, ErrNoCredential)
}
