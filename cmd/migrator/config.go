package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/filmcatalog/pges-sync/internal/config"
)

// Sentinel errors for configuration loading and validation.
var (
	// ErrDatabaseURLEmpty is returned when DATABASE_URL is unset.
	ErrDatabaseURLEmpty = errors.New("DATABASE_URL cannot be empty")

	// ErrMigrationTableEmpty is returned when MIGRATION_TABLE is unset.
	ErrMigrationTableEmpty = errors.New("MIGRATION_TABLE cannot be empty")

	// ErrMigrationsPathEmpty is returned when MIGRATIONS_PATH is unset.
	ErrMigrationsPathEmpty = errors.New("MIGRATIONS_PATH cannot be empty")

	// ErrMigrationsPathMissing is returned when MIGRATIONS_PATH does not
	// resolve to a directory on disk.
	ErrMigrationsPathMissing = errors.New("migrations directory does not exist")
)

// Config holds the connection and layout settings this CLI needs to drive
// golang-migrate. It is read straight from the environment rather than from
// the service's TOML file: the migrator runs ahead of the service, often
// before a config file has been mounted at all.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationsPath is the path to migration files.
	MigrationsPath string

	// MigrationTable is the name of the table used to track applied migrations.
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationsPath: config.GetEnvStr("MIGRATIONS_PATH", "./migrations"),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid, resolving MigrationsPath
// to an absolute path as a side effect.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLEmpty
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableEmpty
	}

	if c.MigrationsPath == "" {
		return ErrMigrationsPathEmpty
	}

	absPath, err := filepath.Abs(c.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}
	c.MigrationsPath = absPath

	if _, err := os.Stat(c.MigrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMigrationsPathMissing, c.MigrationsPath)
	}

	return nil
}

// String returns a string representation of the configuration, safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationsPath: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), c.MigrationsPath, c.MigrationTable)
}

// maskDatabaseURL replaces a connection string's password with "***",
// leaving everything else, including an unset or empty password, untouched.
func maskDatabaseURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}

	password, hasPassword := parsed.User.Password()
	if !hasPassword || password == "" {
		return raw
	}

	parsed.User = url.UserPassword(parsed.User.Username(), "***")

	// net/url percent-encodes '*' in the password, so the encoded mask is
	// turned back into a literal "***".
	return strings.Replace(parsed.String(), ":%2A%2A%2A@", ":***@", 1)
}
