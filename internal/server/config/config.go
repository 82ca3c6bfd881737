// Package config handles configuration for the server component: defaults,
// a JSON overlay, a .env file, BRAINBOX_* environment variables and finally
// command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/filex"
)

const (
	// DefaultSecretKey is a placeholder that must be overridden in production.
	DefaultSecretKey = "CHANGE_TO_A_SECURE_SECRET"

	// MinTokenTTL matches the one-second precision of JWT expiry.
	MinTokenTTL = time.Second

	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverMemory   = "memory"
)

// Config holds runtime settings for the brainbox server.
//
// Fields:
//   - Address: bind address of the HTTP endpoint.
//   - CertFile / KeyFile: TLS material; TLS is on only when both are set.
//   - DatabaseDriver / DatabaseDSN: refresh-token storage.
//   - Username / HashedPassword: the single principal. An empty hash disables the password gate.
//   - SecretKey: HMAC secret for signing JWTs (HS256).
//   - AccessTokenValidityDuration / RefreshTokenValidityDuration: token lifetimes.
//   - RotateRefreshTokens: replace the refresh token on every refresh.
//   - Cookie*: attributes of the refresh-token cookie.
//   - CleanupInterval: how often expired refresh tokens are purged, 0 disables.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	Address                      string        `env:"ADDRESS"`
	CertFile                     string        `env:"CERT_FILE"`
	KeyFile                      string        `env:"KEY_FILE"`
	DatabaseDriver               string        `env:"DATABASE_DRIVER"`
	DatabaseDSN                  string        `env:"DATABASE_DSN"`
	Username                     string        `env:"USERNAME"`
	HashedPassword               string        `env:"HASHED_PASSWORD"`
	SecretKey                    string        `env:"SECRET_KEY"`
	AccessTokenValidityDuration  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenValidityDuration time.Duration `env:"REFRESH_TOKEN_TTL"`
	RotateRefreshTokens          bool          `env:"ROTATE_REFRESH_TOKENS"`
	CookieSecure                 bool          `env:"COOKIE_SECURE"`
	CookieSameSite               string        `env:"COOKIE_SAMESITE"`
	CookiePath                   string        `env:"COOKIE_PATH"`
	CleanupInterval              time.Duration `env:"CLEANUP_INTERVAL"`
	LogLevel                     string        `env:"LOG_LEVEL"`
}

// LoadDefaults populates Config with local development defaults.
func (c *Config) LoadDefaults() {
	c.Address = "127.0.0.1:8000"
	c.DatabaseDriver = DriverSQLite
	c.DatabaseDSN = filepath.Join(filex.DataHome(), "brain_box", "brain_box.db")
	c.Username = "admin"
	c.SecretKey = DefaultSecretKey
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 7 * 24 * time.Hour
	c.CookieSecure = true
	c.CookieSameSite = "strict"
	c.CookiePath = "/api/auth"
	c.CleanupInterval = time.Hour
	c.LogLevel = "info"
}

// LoadConfig builds a Config from defaults and every overlay, then validates
// it. args are the command-line arguments without the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenMode reports whether the password gate is disabled.
func (c *Config) OpenMode() bool {
	return strings.TrimSpace(c.HashedPassword) == ""
}

// UsesDefaultSecret reports whether the signing secret was left at its placeholder.
func (c *Config) UsesDefaultSecret() bool {
	return c.SecretKey == DefaultSecretKey
}

// SlogLevel returns the configured log level, INFO when unset.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLogLevel(c.LogLevel)
	return level
}

// SameSite returns the cookie SameSite mode.
func (c *Config) SameSite() http.SameSite {
	mode, _ := parseSameSite(c.CookieSameSite)
	return mode
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("secret key must not be empty"))
	}
	if c.AccessTokenValidityDuration < MinTokenTTL {
		errs = append(errs, fmt.Errorf("access token ttl must be at least %s, got %s", MinTokenTTL, c.AccessTokenValidityDuration))
	}
	if c.RefreshTokenValidityDuration < MinTokenTTL {
		errs = append(errs, fmt.Errorf("refresh token ttl must be at least %s, got %s", MinTokenTTL, c.RefreshTokenValidityDuration))
	}
	if c.CleanupInterval < 0 {
		errs = append(errs, fmt.Errorf("cleanup interval must not be negative, got %s", c.CleanupInterval))
	}

	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			errs = append(errs, fmt.Errorf("database dsn is required for driver %q", c.DatabaseDriver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DatabaseDriver))
	}

	mode, err := parseSameSite(c.CookieSameSite)
	if err != nil {
		errs = append(errs, err)
	} else if mode == http.SameSiteNoneMode && !c.CookieSecure {
		errs = append(errs, errors.New("cookie samesite=none requires a secure cookie"))
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		errs = append(errs, errors.New("cert file and key file must be set together"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func parseLogLevel(v string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(v) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", v)
	}
	return level, nil
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return http.SameSiteDefaultMode, fmt.Errorf("unknown cookie samesite %q", v)
	}
}
