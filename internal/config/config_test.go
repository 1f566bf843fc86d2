package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = DriverPostgres
	cfg.Storage.PostgresDSN = "postgres://ledger@localhost/ledger"
	cfg.Import.StrictCategories = true
	cfg.Import.CategoryAliases = map[string]string{"Harta": "asset"}

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "ledger.db", cfg.Storage.SQLitePath)
	assert.False(t, cfg.Import.StrictCategories)
	assert.Equal(t, "import", cfg.Import.Inbox)
	assert.Equal(t, "ledger", cfg.Ledger.Actor)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "logs/activity.csv", cfg.Activity.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\nserver:\n  read_timeout: 2s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, Default()))

	t.Setenv("LEDGER_STORAGE_DRIVER", "memory")
	t.Setenv("LEDGER_IMPORT_STRICT", "true")
	t.Setenv("LEDGER_CATEGORY_ALIASES", "Harta:asset,Penghasilan:revenue")
	t.Setenv("LEDGER_ACTOR", "siti")
	t.Setenv("LEDGER_SERVER_ADDR", "127.0.0.1:9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.True(t, cfg.Import.StrictCategories)
	assert.Equal(t, map[string]string{"Harta": "asset", "Penghasilan": "revenue"}, cfg.Import.CategoryAliases)
	assert.Equal(t, "siti", cfg.Ledger.Actor)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "ledger.db", cfg.Storage.SQLitePath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Storage.SQLitePath = "" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestYAMLFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, Default()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "driver: sqlite")
	assert.Contains(t, contents, "sqlite_path: ledger.db")
	assert.Contains(t, contents, "strict_categories: false")
	assert.Contains(t, contents, "read_timeout: 15s")
	assert.NotContains(t, contents, "postgres_dsn")
}

func TestResolvePaths(t *testing.T) {
	cfg := Default()
	cfg.Import.Inbox = "/var/ledger/inbox"
	cfg.ResolvePaths("/srv/books")

	assert.Equal(t, filepath.Join("/srv/books", "ledger.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, "/var/ledger/inbox", cfg.Import.Inbox)
	assert.Equal(t, filepath.Join("/srv/books", "logs", "activity.csv"), cfg.Activity.Path)
}

func TestEnvCORSOrigins(t *testing.T) {
	t.Setenv("LEDGER_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	cfg := Default()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}
