package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Credential slot backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// devSigningKey signs sandbox tokens when ENV=development and no key is set.
const devSigningKey = "ehr-dashboard-development-signing-key"

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	// Client
	APIURL            string        `mapstructure:"API_URL"`
	PageSize          int           `mapstructure:"PAGE_SIZE"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CredentialBackend string        `mapstructure:"CREDENTIAL_BACKEND"`
	CredentialFile    string        `mapstructure:"CREDENTIAL_FILE"`
	CredentialKey     string        `mapstructure:"CREDENTIAL_KEY"`
	MetricsAddr       string        `mapstructure:"METRICS_ADDR"`

	// Shared stores
	RedisURL    string `mapstructure:"REDIS_URL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Sandbox API
	Port                string        `mapstructure:"PORT"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	SandboxSigningKey   string        `mapstructure:"SANDBOX_SIGNING_KEY"`
	SandboxTokenTTL     time.Duration `mapstructure:"SANDBOX_TOKEN_TTL"`
	SandboxStore        string        `mapstructure:"SANDBOX_STORE"`
	SandboxSeedPatients int           `mapstructure:"SANDBOX_SEED_PATIENTS"`
}

var keys = []string{
	"ENV", "LOG_LEVEL", "LOG_FILE",
	"API_URL", "PAGE_SIZE", "REQUEST_TIMEOUT",
	"CREDENTIAL_BACKEND", "CREDENTIAL_FILE", "CREDENTIAL_KEY", "METRICS_ADDR",
	"REDIS_URL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"PORT", "CORS_ORIGINS", "SANDBOX_SIGNING_KEY", "SANDBOX_TOKEN_TTL",
	"SANDBOX_STORE", "SANDBOX_SEED_PATIENTS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_URL", "http://localhost:8000/api")
	v.SetDefault("PAGE_SIZE", 5)
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("CREDENTIAL_BACKEND", BackendFile)
	v.SetDefault("CREDENTIAL_FILE", defaultCredentialFile())
	v.SetDefault("CREDENTIAL_KEY", "ehr-dashboard:credential")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("PORT", "8000")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SANDBOX_TOKEN_TTL", "8h")
	v.SetDefault("SANDBOX_STORE", BackendMemory)
	v.SetDefault("SANDBOX_SEED_PATIENTS", 25)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	cfg.CredentialBackend = strings.ToLower(strings.TrimSpace(cfg.CredentialBackend))
	cfg.SandboxStore = strings.ToLower(strings.TrimSpace(cfg.SandboxStore))

	return cfg, nil
}

func defaultCredentialFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "ehr-dashboard", "credential")
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks the client settings.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API_URL is required")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("PAGE_SIZE must be between 1 and 100, got %d", c.PageSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}

	switch c.CredentialBackend {
	case BackendFile:
		if c.CredentialFile == "" {
			return fmt.Errorf("CREDENTIAL_FILE is required for the file backend")
		}
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CREDENTIAL_BACKEND is %q", BackendRedis)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when CREDENTIAL_BACKEND is %q", BackendPostgres)
		}
	default:
		return fmt.Errorf("CREDENTIAL_BACKEND must be one of file, memory, redis, postgres, got %q", c.CredentialBackend)
	}
	if (c.CredentialBackend == BackendRedis || c.CredentialBackend == BackendPostgres) && c.CredentialKey == "" {
		return fmt.Errorf("CREDENTIAL_KEY is required for shared credential backends")
	}
	return nil
}

// ValidateServer checks the sandbox API settings. Outside development a
// signing key of at least 32 bytes is required.
func (c *Config) ValidateServer() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	switch c.SandboxStore {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SANDBOX_STORE is %q", BackendPostgres)
		}
	default:
		return fmt.Errorf("SANDBOX_STORE must be memory or postgres, got %q", c.SandboxStore)
	}
	if !c.IsDev() && len(c.SandboxSigningKey) < 32 {
		return fmt.Errorf("SANDBOX_SIGNING_KEY must be at least 32 bytes outside development")
	}
	if c.SandboxTokenTTL <= 0 {
		return fmt.Errorf("SANDBOX_TOKEN_TTL must be positive, got %s", c.SandboxTokenTTL)
	}
	if c.SandboxSeedPatients < 0 {
		return fmt.Errorf("SANDBOX_SEED_PATIENTS must not be negative")
	}
	return nil
}

// SigningKey returns the sandbox token key, falling back to a fixed key in
// development.
func (c *Config) SigningKey() []byte {
	if c.SandboxSigningKey == "" && c.IsDev() {
		return []byte(devSigningKey)
	}
	return []byte(c.SandboxSigningKey)
}
