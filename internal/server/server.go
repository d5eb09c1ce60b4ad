// Package server assembles the sandbox patient/authorization API the
// dashboard talks to.
package server

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/dashboard/internal/domain/account"
	"github.com/ehr/dashboard/internal/domain/authorization"
	"github.com/ehr/dashboard/internal/domain/patient"
	"github.com/ehr/dashboard/internal/platform/auth"
	"github.com/ehr/dashboard/internal/platform/db"
	"github.com/ehr/dashboard/internal/platform/middleware"
	"github.com/ehr/dashboard/internal/platform/sandbox"
	"github.com/ehr/dashboard/internal/platform/telemetry"
)

// Stores are the repositories behind the API.
type Stores struct {
	Accounts       account.Repository
	Patients       patient.Repository
	Authorizations authorization.Repository
}

// MemoryStores returns empty in-process repositories.
func MemoryStores() Stores {
	return Stores{
		Accounts:       account.NewMemoryRepo(),
		Patients:       patient.NewMemoryRepo(),
		Authorizations: authorization.NewMemoryRepo(),
	}
}

// PostgresStores returns repositories over pool. The schema must already be
// migrated.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Accounts:       account.NewRepoPG(pool),
		Patients:       patient.NewRepoPG(pool),
		Authorizations: authorization.NewRepoPG(pool),
	}
}

type Options struct {
	Logger      zerolog.Logger
	Issuer      *auth.Issuer
	Revoked     *auth.TokenRevocationStore
	Metrics     *telemetry.Metrics
	Stores      Stores
	CORSOrigins []string
	// Pool, when set, backs /health/db.
	Pool *pgxpool.Pool
}

type Server struct {
	Echo   *echo.Echo
	Seeder *sandbox.Seeder
}

// New wires handlers and middleware. Routes live under /api; /health and
// /metrics are served at the root without authentication.
func New(opts Options) *Server {
	logger := opts.Logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	if opts.Metrics != nil {
		e.Use(middleware.Metrics(opts.Metrics))
	}
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	if len(opts.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: opts.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if opts.Pool != nil {
		e.GET("/health/db", db.HealthHandler(opts.Pool))
	}
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}

	api := e.Group("/api")
	api.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:  opts.Issuer,
		Revoked: opts.Revoked,
		Skipper: auth.AuthSkipper,
	}))

	patientSvc := patient.NewService(opts.Stores.Patients)
	authzSvc := authorization.NewService(opts.Stores.Authorizations, patientSvc)
	accountSvc := account.NewService(opts.Stores.Accounts, opts.Issuer, opts.Revoked)
	seeder := sandbox.NewSeeder(patientSvc, authzSvc)

	account.NewHandler(accountSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	authorization.NewHandler(authzSvc).RegisterRoutes(api)
	sandbox.NewSeedHandler(seeder).RegisterRoutes(api)

	return &Server{Echo: e, Seeder: seeder}
}
