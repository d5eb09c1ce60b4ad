package account

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ehr/dashboard/internal/platform/auth"
)

type Service struct {
	accounts Repository
	issuer   *auth.Issuer
	revoked  *auth.TokenRevocationStore
	cost     int
}

// NewService wires the account store to the token issuer. revoked may be nil,
// in which case Logout is a no-op.
func NewService(accounts Repository, issuer *auth.Issuer, revoked *auth.TokenRevocationStore) *Service {
	return &Service{accounts: accounts, issuer: issuer, revoked: revoked, cost: bcrypt.DefaultCost}
}

// Register creates the account and returns a token for it, so a new user is
// signed in straight away.
func (s *Service) Register(ctx context.Context, c Credentials) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if len(c.Password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	a := &Account{Username: c.Username, PasswordHash: string(hash)}
	if err := s.accounts.Create(ctx, a); err != nil {
		return "", err
	}
	token, _, err := s.issuer.Issue(a.ID, a.Username)
	return token, err
}

func (s *Service) Login(ctx context.Context, c Credentials) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	a, err := s.accounts.GetByUsername(ctx, c.Username)
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(c.Password)); err != nil {
		return "", ErrInvalidCredentials
	}
	token, _, err := s.issuer.Issue(a.ID, a.Username)
	return token, err
}

// Logout revokes the presented token until it would have expired.
func (s *Service) Logout(claims *auth.Claims) {
	if s.revoked == nil || claims == nil || claims.ExpiresAt == nil {
		return
	}
	s.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
}
