package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/dashboard/internal/platform/db"
)

// NotifyChannel is the LISTEN/NOTIFY channel used for credential changes.
const NotifyChannel = "dashboard_credential"

type pgChange struct {
	Slot   string `json:"slot"`
	Origin string `json:"origin"`
}

// PostgresSlot stores the credential as one row of dashboard_credential,
// keyed by slot name, and announces changes with pg_notify in the same
// transaction so listeners never see a notification before the commit.
type PostgresSlot struct {
	pool   *pgxpool.Pool
	name   string
	origin string
	logger zerolog.Logger
}

func NewPostgresSlot(pool *pgxpool.Pool, name string, logger zerolog.Logger) *PostgresSlot {
	return &PostgresSlot{pool: pool, name: name, origin: uuid.New().String(), logger: logger}
}

func (s *PostgresSlot) Origin() string { return s.origin }

func (s *PostgresSlot) Load(ctx context.Context) (string, bool, error) {
	var token string
	err := s.pool.QueryRow(ctx, `SELECT token FROM dashboard_credential WHERE slot = $1`, s.name).Scan(&token)
	if db.IsNoRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load credential: %w", err)
	}
	return token, token != "", nil
}

func (s *PostgresSlot) Store(ctx context.Context, token string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dashboard_credential (slot, token, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (slot) DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at`,
			s.name, token,
		); err != nil {
			return err
		}
		return s.notify(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

func (s *PostgresSlot) Clear(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM dashboard_credential WHERE slot = $1`, s.name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return s.notify(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

func (s *PostgresSlot) notify(ctx context.Context, q db.Querier) error {
	payload, err := json.Marshal(pgChange{Slot: s.name, Origin: s.origin})
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload))
	return err
}

// Listen reconnect backoff bounds.
const (
	listenRetryMin = 250 * time.Millisecond
	listenRetryMax = 30 * time.Second
)

// Watch holds one pooled connection in LISTEN for as long as ctx lives. A
// lost connection is replaced with backoff, and one Change with no origin
// is sent after each reconnect so a clear made while it was down is still
// noticed.
func (s *PostgresSlot) Watch(ctx context.Context) (<-chan Change, error) {
	conn, err := s.listen(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Change, changeBuffer)
	go func() {
		defer close(out)
		backoff := listenRetryMin
		for {
			err := s.wait(ctx, conn, out)
			s.release(conn, err != nil && ctx.Err() == nil)
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Msg("credential listen lost, reconnecting")

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				conn, err = s.listen(ctx)
				if err == nil {
					break
				}
				if ctx.Err() != nil {
					return
				}
				backoff = min(backoff*2, listenRetryMax)
				s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("credential listen reconnect failed")
			}
			backoff = listenRetryMin
			s.logger.Info().Msg("credential listen restored")
			notify(out, Change{At: time.Now()})
		}
	}()
	return out, nil
}

func (s *PostgresSlot) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	return conn, nil
}

// wait forwards notifications for this slot until the connection fails or
// ctx is done.
func (s *PostgresSlot) wait(ctx context.Context, conn *pgxpool.Conn, out chan Change) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var c pgChange
		if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
			s.logger.Warn().Err(err).Str("payload", n.Payload).Msg("malformed credential notification")
			continue
		}
		if c.Slot != s.name || c.Origin == s.origin {
			continue
		}
		notify(out, Change{Origin: c.Origin, At: time.Now()})
	}
}

// release returns conn to the pool. A broken connection is closed first so
// the pool does not hand it out again.
func (s *PostgresSlot) release(conn *pgxpool.Conn, broken bool) {
	cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if broken {
		_ = conn.Conn().Close(cleanup)
	} else {
		_, _ = conn.Exec(cleanup, "UNLISTEN *")
	}
	conn.Release()
}
