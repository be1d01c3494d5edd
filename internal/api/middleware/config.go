package middleware

import (
	"time"

	"github.com/riskflow-io/riskflow/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for two tiers:
//   - Global: applied to all requests
//   - Per-client: applied per remote address
//
// Burst capacity allows temporary bursts above sustained rate.
// If burst fields are 0, they are computed automatically as 2 x rate.
type Config struct {
	GlobalRPS int // Default: 200
	ClientRPS int // Default: 20

	// Optional burst capacity overrides (0 = 2 x rate)
	GlobalBurst int
	ClientBurst int

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 10,000
}

// LoadConfig loads rate limiter config from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("RATE_LIMIT_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("RATE_LIMIT_CLIENT_RPS", defaultClientRPS),

		GlobalBurst: config.GetEnvInt("RATE_LIMIT_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("RATE_LIMIT_CLIENT_BURST", 0),

		CleanupInterval: config.GetEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:      config.GetEnvInt("RATE_LIMIT_MAX_CLIENTS", defaultMaxClients),
	}
}
