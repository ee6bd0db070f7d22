package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  host: db\n"))
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 100, cfg.Asari.PageSize)
	assert.Equal(t, 3, cfg.Asari.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Sync.DetailDelay)
	assert.Equal(t, "Częstochowa", cfg.Location.City)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, cfg.Sync.Timeout+time.Minute, cfg.HTTP.WriteTimeout)
	assert.False(t, cfg.RabbitMQ.Enabled)
	assert.Empty(t, cfg.HTTP.TriggerSecret)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_ASARI_TOKEN", "s3cret")
	t.Setenv("TEST_TRIGGER_SECRET", "trigger")

	data := `
asari:
  user_id: "42"
  token: ${TEST_ASARI_TOKEN}
  timeout: 5s
sync:
  detail_delay: 1s
  cron: "0 */2 * * *"
http:
  trigger_secret: ${TEST_TRIGGER_SECRET}
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "42", cfg.Asari.UserID)
	assert.Equal(t, "s3cret", cfg.Asari.Token)
	assert.Equal(t, 5*time.Second, cfg.Asari.Timeout)
	assert.Equal(t, time.Second, cfg.Sync.DetailDelay)
	assert.Equal(t, "0 */2 * * *", cfg.Sync.Cron)
	assert.Equal(t, "trigger", cfg.HTTP.TriggerSecret)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("database: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dbname: estate\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Database.DSN(), "dbname=estate")
	assert.Contains(t, cfg.Database.DSN(), "sslmode=disable")
}
