package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmcatalog/pges-sync/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
[pg_database]
dbname = "movies"
user = "etl"
password = "secret"
host = "localhost"
port = 5432

[elastic]
host = "localhost"
port = 9200

[backoff]
start_sleep_time = 0.1
factor = 2
border_sleep_time = 10

[sql_settings]
limit = 50
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "movies", cfg.Postgres.DBName)
	assert.Equal(t, 50, cfg.SQL.Limit)
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff.StartSleepTime())
	assert.Equal(t, 10*time.Second, cfg.Backoff.BorderSleepTime())
	assert.Equal(t, "dbname=movies user=etl password=*** host=localhost port=5432 sslmode=disable", cfg.Postgres.MaskedDSN())
}

func TestLoadHistoricalAliasDrift(t *testing.T) {
	path := writeConfig(t, `
[pg_database]
name = "movies"
user = "etl"
password = "secret"
address = "db.internal"
port = 5432

[elastic]
address = "es.internal"
port = 9200

[sql_settings]
limit = 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "movies", cfg.Postgres.DBName)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "es.internal", cfg.Elastic.Host)
}

func TestLoadRejectsLegacyBackoffSchema(t *testing.T) {
	path := writeConfig(t, `
[pg_database]
dbname = "movies"
host = "localhost"

[elastic]
host = "localhost"

[backoff]
max_time = 30
`)

	_, err := config.Load(path)
	require.ErrorIs(t, err, config.ErrBackoffSchemaUnsupported)
}

func TestLoadRejectsMissingDBName(t *testing.T) {
	path := writeConfig(t, `
[elastic]
host = "localhost"
`)

	_, err := config.Load(path)
	require.ErrorIs(t, err, config.ErrDatabaseNameEmpty)
}

func TestLoadRejectsNonPositiveSQLLimit(t *testing.T) {
	path := writeConfig(t, `
[pg_database]
dbname = "movies"
host = "localhost"

[elastic]
host = "localhost"

[sql_settings]
limit = 0
`)

	_, err := config.Load(path)
	require.ErrorIs(t, err, config.ErrSQLLimitInvalid)
}

func TestLoadEnvOverridesFileValues(t *testing.T) {
	path := writeConfig(t, `
[pg_database]
dbname = "movies"
host = "localhost"

[elastic]
host = "localhost"
`)

	t.Setenv("PG_DBNAME", "movies_override")
	t.Setenv("SQL_LIMIT", "7")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "movies_override", cfg.Postgres.DBName)
	assert.Equal(t, 7, cfg.SQL.Limit)
}
