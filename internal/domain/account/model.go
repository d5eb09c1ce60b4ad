package account

import (
	"strings"
	"time"
)

// Account is a sandbox login.
type Account struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Credentials is the body of both /auth/login and /auth/register.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// MinPasswordLength applies to registration only.
const MinPasswordLength = 6

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	Token string `json:"token"`
}
