package migrations

import (
	"fmt"
	"os"
	"strings"
)

// Config holds configuration for the migration runner.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationTable is the name of the table used to track applied migrations.
	MigrationTable string
}

// LoadConfig loads migration configuration from environment variables.
//
// Note: this package cannot use internal/config getters because the test
// helpers there import this package.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationTable: envOrDefault("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	return nil
}

// String returns a representation of the configuration safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// maskDatabaseURL hides the password portion of a connection URL for logging.
func maskDatabaseURL(url string) string {
	schemeEnd := strings.Index(url, "//")
	if schemeEnd == -1 {
		return url
	}

	authority := url[schemeEnd+2:]
	if end := strings.IndexAny(authority, "/?#"); end != -1 {
		authority = authority[:end]
	}

	atPos := strings.LastIndex(authority, "@")
	if atPos == -1 {
		return url
	}

	userInfo := authority[:atPos]

	colonPos := strings.Index(userInfo, ":")
	if colonPos == -1 || colonPos == len(userInfo)-1 {
		return url
	}

	masked := userInfo[:colonPos+1] + "***"

	return url[:schemeEnd+2] + masked + url[schemeEnd+2+atPos:]
}
