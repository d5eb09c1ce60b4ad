package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/dashboard/internal/platform/db"
)

const uniqueViolation = "23505"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	id := uuid.New()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO account (id, username, password_hash, created_at)
		VALUES ($1, LOWER($2), $3, $4)`,
		id, a.Username, a.PasswordHash, a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("account create: %w", err)
	}
	a.ID = id.String()
	return nil
}

func (r *repoPG) GetByUsername(ctx context.Context, username string) (*Account, error) {
	var a Account
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM account WHERE username = LOWER($1)`, username,
	).Scan(&id, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account get: %w", err)
	}
	a.ID = id.String()
	return &a, nil
}
