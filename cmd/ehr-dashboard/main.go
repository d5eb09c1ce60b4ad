package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/dashboard/internal/config"
	"github.com/ehr/dashboard/internal/platform/apiclient"
	"github.com/ehr/dashboard/internal/platform/db"
	"github.com/ehr/dashboard/internal/platform/session"
	"github.com/ehr/dashboard/internal/platform/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ehr-dashboard",
		Short:        "Patient and insurance authorization dashboard",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(tuiCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(patientsCmd())
	rootCmd.AddCommand(authorizationsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

// newLogger builds the process logger. Development gets console output.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}

// clientEnv is everything a client command needs: the shared credential
// slot behind a session store, and an API client reading from it.
type clientEnv struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	slot    session.Slot
	session *session.Store
	client  *apiclient.Client
	closers []func()
}

func (e *clientEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// openClient loads config and opens the credential slot. Logs go to stderr,
// or to LOG_FILE when toFile is set so the terminal stays clean.
func openClient(ctx context.Context, toFile bool) (*clientEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	env := &clientEnv{cfg: cfg}

	var out io.Writer = os.Stderr
	if toFile {
		out = io.Discard
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return nil, fmt.Errorf("open log file: %w", err)
			}
			env.closers = append(env.closers, func() { _ = f.Close() })
			out = f
		}
	}
	env.logger = newLogger(cfg, out)
	env.metrics = telemetry.New("ehr_dashboard")

	slot, closeSlot, err := openSlot(ctx, cfg, env.logger)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.slot = slot
	env.closers = append(env.closers, closeSlot)

	env.session, err = session.New(ctx, slot, env.logger, session.WithMetrics(env.metrics))
	if err != nil {
		env.Close()
		return nil, err
	}

	env.client, err = apiclient.New(cfg.APIURL, env.session, env.logger,
		apiclient.WithTimeout(cfg.RequestTimeout),
		apiclient.WithMetrics(env.metrics),
	)
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// openSlot returns the configured credential slot and a function releasing
// its connections.
func openSlot(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (session.Slot, func(), error) {
	noop := func() {}
	switch cfg.CredentialBackend {
	case config.BackendMemory:
		return session.NewMemoryBackend().Open(), noop, nil

	case config.BackendRedis:
		client, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisSlot(client, cfg.CredentialKey, logger), func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return session.NewPostgresSlot(pool, cfg.CredentialKey, logger), pool.Close, nil

	default:
		slot, err := session.NewFileSlot(cfg.CredentialFile, logger)
		if err != nil {
			return nil, nil, err
		}
		return slot, noop, nil
	}
}

// serveMetrics exposes the client's metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, m *telemetry.Metrics, logger zerolog.Logger) {
	if addr == "" {
		return
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = e.Close()
	}()
}
