package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Sentinel errors for configuration loading and validation.
var (
	// ErrConfigRead is returned when the TOML config file cannot be read or parsed.
	ErrConfigRead = errors.New("failed to read configuration file")

	// ErrDatabaseNameEmpty is returned when pg_database.dbname is unset.
	ErrDatabaseNameEmpty = errors.New("pg_database.dbname cannot be empty")

	// ErrDatabaseHostEmpty is returned when pg_database.host is unset.
	ErrDatabaseHostEmpty = errors.New("pg_database.host cannot be empty")

	// ErrElasticHostEmpty is returned when elastic.host is unset.
	ErrElasticHostEmpty = errors.New("elastic.host cannot be empty")

	// ErrSQLLimitInvalid is returned when sql_settings.limit is not a positive integer.
	ErrSQLLimitInvalid = errors.New("sql_settings.limit must be a positive integer")

	// ErrBackoffSchemaUnsupported is returned when the backoff table uses the
	// historical max_time variant instead of start_sleep_time/factor/border_sleep_time.
	// A config file written for the former is rejected rather than silently reinterpreted.
	ErrBackoffSchemaUnsupported = errors.New(
		"backoff config must set start_sleep_time/factor/border_sleep_time; the max_time variant is not supported",
	)

	// ErrBackoffParamsInvalid is returned when backoff parameters are non-positive.
	ErrBackoffParamsInvalid = errors.New("backoff start_sleep_time, factor, and border_sleep_time must be positive")
)

type (
	// PostgresConfig holds the relational driver's connection parameters.
	// Load accepts both the canonical keys below and the historical
	// dbname/name and host/address key variants seen in older config files.
	PostgresConfig struct {
		DBName   string `toml:"dbname"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
	}

	// ElasticConfig holds the search-engine sink's connection parameters.
	ElasticConfig struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	}

	// BackoffConfig configures the retry envelope's geometric schedule, given
	// as plain numbers of seconds: start_sleep_time, factor, border_sleep_time.
	BackoffConfig struct {
		StartSleepTimeSeconds  float64 `toml:"start_sleep_time"`
		Factor                 float64 `toml:"factor"`
		BorderSleepTimeSeconds float64 `toml:"border_sleep_time"`

		// MaxTime, if present in the config file, marks the unsupported legacy
		// schema variant and causes Validate to fail with ErrBackoffSchemaUnsupported.
		MaxTime *int `toml:"max_time"`
	}

	// SQLConfig holds optional query tuning parameters.
	SQLConfig struct {
		Limit int `toml:"limit"`
	}

	// Config is the fully decoded, environment-overridden application configuration.
	Config struct {
		Postgres PostgresConfig `toml:"pg_database"`
		Elastic  ElasticConfig  `toml:"elastic"`
		Backoff  BackoffConfig  `toml:"backoff"`
		SQL      SQLConfig      `toml:"sql_settings"`
		LogLevel slog.Level     `toml:"-"`
	}
)

const (
	defaultSQLLimit       = 100
	defaultStartSleepTime = 0.1
	defaultFactor         = 2.0
	defaultBorderSleep    = 10.0
)

// StartSleepTime returns the configured initial retry delay as a Duration.
func (b BackoffConfig) StartSleepTime() time.Duration {
	return time.Duration(b.StartSleepTimeSeconds * float64(time.Second))
}

// BorderSleepTime returns the configured maximum retry delay as a Duration.
func (b BackoffConfig) BorderSleepTime() time.Duration {
	return time.Duration(b.BorderSleepTimeSeconds * float64(time.Second))
}

// Load reads and decodes a TOML configuration file, then layers environment
// variable overrides on top via the GetEnv* helpers (file value is the
// base, env var wins when set).
func Load(path string) (*Config, error) {
	cfg := &Config{
		SQL: SQLConfig{Limit: defaultSQLLimit},
		Backoff: BackoffConfig{
			StartSleepTimeSeconds:  defaultStartSleepTime,
			Factor:                 defaultFactor,
			BorderSleepTimeSeconds: defaultBorderSleep,
		},
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigRead, err)
		}

		if err := applyHistoricalAliases(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	cfg.LogLevel = GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyHistoricalAliases fills pg_database.dbname/host and elastic.host from
// the historical "name"/"address" key variants when the canonical key was
// absent from the file. BurntSushi/toml's struct decode only ever sees the
// canonical tag, so aliases are resolved from a second, untyped pass over
// the same file.
func applyHistoricalAliases(path string, cfg *Config) error {
	var raw struct {
		PgDatabase map[string]interface{} `toml:"pg_database"`
		Elastic    map[string]interface{} `toml:"elastic"`
	}

	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigRead, err)
	}

	if cfg.Postgres.DBName == "" {
		if name, ok := raw.PgDatabase["name"].(string); ok {
			cfg.Postgres.DBName = name
		}
	}

	if cfg.Postgres.Host == "" {
		if address, ok := raw.PgDatabase["address"].(string); ok {
			cfg.Postgres.Host = address
		}
	}

	if cfg.Elastic.Host == "" {
		if address, ok := raw.Elastic["address"].(string); ok {
			cfg.Elastic.Host = address
		}
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Postgres.DBName = GetEnvStr("PG_DBNAME", cfg.Postgres.DBName)
	cfg.Postgres.User = GetEnvStr("PG_USER", cfg.Postgres.User)
	cfg.Postgres.Password = GetEnvStr("PG_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Host = GetEnvStr("PG_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = GetEnvInt("PG_PORT", cfg.Postgres.Port)

	cfg.Elastic.Host = GetEnvStr("ELASTIC_HOST", cfg.Elastic.Host)
	cfg.Elastic.Port = GetEnvInt("ELASTIC_PORT", cfg.Elastic.Port)

	cfg.SQL.Limit = GetEnvInt("SQL_LIMIT", cfg.SQL.Limit)

	cfg.Backoff.StartSleepTimeSeconds = GetEnvDuration(
		"BACKOFF_START_SLEEP_TIME", cfg.Backoff.StartSleepTime(),
	).Seconds()
	cfg.Backoff.BorderSleepTimeSeconds = GetEnvDuration(
		"BACKOFF_BORDER_SLEEP_TIME", cfg.Backoff.BorderSleepTime(),
	).Seconds()
}

// Validate checks the decoded configuration for completeness and rejects the
// unsupported legacy backoff schema variant.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Postgres.DBName) == "" {
		return ErrDatabaseNameEmpty
	}

	if strings.TrimSpace(c.Postgres.Host) == "" {
		return ErrDatabaseHostEmpty
	}

	if strings.TrimSpace(c.Elastic.Host) == "" {
		return ErrElasticHostEmpty
	}

	if c.SQL.Limit < 1 {
		return ErrSQLLimitInvalid
	}

	if c.Backoff.MaxTime != nil {
		return ErrBackoffSchemaUnsupported
	}

	if c.Backoff.StartSleepTimeSeconds <= 0 || c.Backoff.Factor <= 0 || c.Backoff.BorderSleepTimeSeconds <= 0 {
		return ErrBackoffParamsInvalid
	}

	return nil
}

// DSN builds a libpq connection string from the decoded Postgres config.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"dbname=%s user=%s password=%s host=%s port=%d sslmode=disable",
		c.DBName, c.User, c.Password, c.Host, c.Port,
	)
}

// MaskedDSN returns the DSN with the password redacted, safe for logging.
func (c PostgresConfig) MaskedDSN() string {
	return fmt.Sprintf(
		"dbname=%s user=%s password=*** host=%s port=%d sslmode=disable",
		c.DBName, c.User, c.Host, c.Port,
	)
}
