// Package config loads and validates environment-driven configuration.
// Load fails fast so a misconfigured instance never serves traffic.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime knob for the service.
type Config struct {
	Env        string
	ListenAddr string
	LogLevel   string

	DatabaseURL string
	DBPoolMin   int
	DBPoolMax   int

	JWTSecret        string
	JWTRefreshSecret string
	SessionMaxAge    time.Duration
	RefreshMaxAge    time.Duration
	BcryptCost       int

	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectURL   string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	RedisAddr string
}

// IsProd reports whether the service runs with production hardening.
func (c Config) IsProd() bool { return c.Env == "production" }

// SMSEnabled reports whether SMS credentials are fully configured.
func (c Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// OAuthEnabled reports whether Google federated sign-in is configured.
func (c Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

const (
	minSecretLen = 32

	defaultSessionMaxAge = 24 * time.Hour
	defaultRefreshMaxAge = 7 * 24 * time.Hour
	defaultBcryptCost    = 12
)

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		Env:        envOr("MEDCARE_ENV", "development"),
		ListenAddr: envOr("MEDCARE_LISTEN_ADDR", ":8080"),
		LogLevel:   envOr("LOG_LEVEL", "info"),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTRefreshSecret: strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET")),

		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		OAuthRedirectURL:   strings.TrimSpace(os.Getenv("OAUTH_REDIRECT_URL")),

		TwilioAccountSID:  strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		TwilioAuthToken:   strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		TwilioPhoneNumber: strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER")),

		RedisAddr: strings.TrimSpace(os.Getenv("REDIS_ADDR")),
	}

	var err error
	if cfg.DBPoolMin, err = envInt("DB_POOL_MIN", 1); err != nil {
		return Config{}, err
	}
	if cfg.DBPoolMax, err = envInt("DB_POOL_MAX", 10); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = envInt("BCRYPT_ROUNDS", defaultBcryptCost); err != nil {
		return Config{}, err
	}
	if cfg.SessionMaxAge, err = envSeconds("SESSION_MAX_AGE", defaultSessionMaxAge); err != nil {
		return Config{}, err
	}
	if cfg.RefreshMaxAge, err = envSeconds("REFRESH_TOKEN_MAX_AGE", defaultRefreshMaxAge); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error

	switch c.Env {
	case "development", "test", "production":
	default:
		errs = append(errs, fmt.Errorf("MEDCARE_ENV must be development, test or production, got %q", c.Env))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	} else if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		errs = append(errs, errors.New("DATABASE_URL must be a PostgreSQL connection string"))
	}
	if c.DBPoolMin < 0 || c.DBPoolMax < 1 {
		errs = append(errs, errors.New("DB_POOL_MIN must be >= 0 and DB_POOL_MAX >= 1"))
	}
	if c.DBPoolMin > c.DBPoolMax {
		errs = append(errs, errors.New("DB_POOL_MIN must be less than or equal to DB_POOL_MAX"))
	}
	if len(c.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLen))
	}
	if len(c.JWTRefreshSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters", minSecretLen))
	}
	if c.BcryptCost < 10 || c.BcryptCost > 15 {
		errs = append(errs, errors.New("BCRYPT_ROUNDS must be between 10 and 15"))
	}
	if c.SessionMaxAge < 5*time.Minute || c.SessionMaxAge > 7*24*time.Hour {
		errs = append(errs, errors.New("SESSION_MAX_AGE must be between 300 and 604800 seconds"))
	}
	if c.RefreshMaxAge < 24*time.Hour || c.RefreshMaxAge > 30*24*time.Hour {
		errs = append(errs, errors.New("REFRESH_TOKEN_MAX_AGE must be between 86400 and 2592000 seconds"))
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer number of seconds: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}
