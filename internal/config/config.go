// Package config holds the process settings of the lumenbank binary.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
)

// Store drivers.
const (
	StoreDriverGorm = "gorm"
	StoreDriverPgx  = "pgx"
)

const (
	defaultDatabaseURL       = "sqlite://data/lumenbank.db"
	defaultListenAddr        = ":8080"
	defaultAllowedOrigin     = "http://localhost:8000"
	defaultJWTIssuer         = "lumenbank"
	defaultRecoveryDelay     = 10 * time.Second
	defaultRetryAttempts     = 5
	defaultRetryBaseDelay    = 20 * time.Millisecond
	defaultTransferMaxAmount = 1_000_000_000
	defaultArenaSweep        = time.Minute
	defaultConfigReload      = 5 * time.Minute
)

// Config aggregates runtime settings for the binary.
type Config struct {
	DatabaseURL          string
	StoreDriver          string
	ListenAddr           string
	JWTSigningKey        string
	JWTIssuer            string
	AllowedOrigins       []string
	DiscordToken         string
	RecoveryDelay        time.Duration
	RetryAttempts        int
	RetryBaseDelay       time.Duration
	TransferMaxAmount    int64
	ArenaSweepInterval   time.Duration
	ConfigReloadInterval time.Duration
	LogDev               bool
}

// Validate fills defaults and rejects settings the binary cannot start with.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, StoreDriverGorm))
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultJWTIssuer)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.RecoveryDelay < 0 {
		cfg.RecoveryDelay = 0
	} else if cfg.RecoveryDelay == 0 {
		cfg.RecoveryDelay = defaultRecoveryDelay
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.TransferMaxAmount <= 0 {
		cfg.TransferMaxAmount = defaultTransferMaxAmount
	}
	if cfg.ArenaSweepInterval <= 0 {
		cfg.ArenaSweepInterval = defaultArenaSweep
	}
	if cfg.ConfigReloadInterval <= 0 {
		cfg.ConfigReloadInterval = defaultConfigReload
	}

	switch cfg.StoreDriver {
	case StoreDriverGorm:
	case StoreDriverPgx:
		if !IsPostgresURL(cfg.DatabaseURL) {
			return fmt.Errorf("store driver %q requires a postgres database url", StoreDriverPgx)
		}
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

// RetryPolicy converts the retry settings for the domain services.
func (cfg Config) RetryPolicy() ledger.RetryPolicy {
	return ledger.RetryPolicy{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay}
}

// DiscordEnabled reports whether a bot token was supplied.
func (cfg Config) DiscordEnabled() bool {
	return strings.TrimSpace(cfg.DiscordToken) != ""
}

// IsPostgresURL reports whether url names a PostgreSQL database.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
