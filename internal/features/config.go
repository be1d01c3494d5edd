package features

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/riskflow-io/riskflow/internal/config"
)

// Default aggregation windows.
const (
	defaultTxnWindow         = 24 * time.Hour
	defaultFailedLoginWindow = time.Hour
	defaultCountryWindow     = 7 * 24 * time.Hour
	defaultAvgTxnWindow      = 30 * 24 * time.Hour
)

// DefaultConfigPath is the default location of the optional feature window
// configuration file.
const DefaultConfigPath = ".riskflow.yaml"

// ConfigPathEnvVar names the environment variable overriding the config path.
const ConfigPathEnvVar = "FEATURES_CONFIG"

// Config holds the aggregation windows used by the extractor. All values are
// optional; zero entries fall back to the defaults, so a partial file only
// overrides what it names.
type Config struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	TxnWindowHours int `yaml:"txn_window_hours"`
	//nolint:tagliatelle
	FailedLoginWindowHours int `yaml:"failed_login_window_hours"`
	//nolint:tagliatelle
	CountryWindowHours int `yaml:"country_window_hours"`
	//nolint:tagliatelle
	AvgTxnWindowHours int `yaml:"avg_txn_window_hours"`
}

// Windows is the resolved form of Config.
type Windows struct {
	Txn         time.Duration // txn_count_24h, txn_amount_sum_24h
	FailedLogin time.Duration // failed_logins_1h
	Country     time.Duration // unique_countries_7d
	AvgTxn      time.Duration // avg_txn_amount_30d
}

// DefaultWindows returns the standard aggregation windows.
func DefaultWindows() Windows {
	return Windows{
		Txn:         defaultTxnWindow,
		FailedLogin: defaultFailedLoginWindow,
		Country:     defaultCountryWindow,
		AvgTxn:      defaultAvgTxnWindow,
	}
}

// LoadWindows loads window overrides from a YAML file at the given path.
//
// Behavior:
//   - Returns defaults (not error) if the file doesn't exist - overrides are optional
//   - Returns defaults + logs warning if the YAML is invalid (graceful degradation)
//   - Returns merged windows on success
func LoadWindows(path string) (Windows, error) {
	windows := DefaultWindows()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Feature window config not found, using defaults",
				slog.String("path", path))

			return windows, nil
		}

		slog.Warn("Failed to read feature window config, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return windows, nil
	}

	if len(data) == 0 {
		return windows, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		slog.Warn("Failed to parse feature window config, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return windows, nil
	}

	if cfg.TxnWindowHours > 0 {
		windows.Txn = time.Duration(cfg.TxnWindowHours) * time.Hour
	}

	if cfg.FailedLoginWindowHours > 0 {
		windows.FailedLogin = time.Duration(cfg.FailedLoginWindowHours) * time.Hour
	}

	if cfg.CountryWindowHours > 0 {
		windows.Country = time.Duration(cfg.CountryWindowHours) * time.Hour
	}

	if cfg.AvgTxnWindowHours > 0 {
		windows.AvgTxn = time.Duration(cfg.AvgTxnWindowHours) * time.Hour
	}

	return windows, nil
}

// LoadWindowsFromEnv loads windows from the path in FEATURES_CONFIG, falling
// back to ".riskflow.yaml" in the current directory.
func LoadWindowsFromEnv() (Windows, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadWindows(path)
}
