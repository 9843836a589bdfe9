package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	FileEnv, "HTTP_ADDRESS", "CORS_ORIGIN", "STORE_BACKEND", "STORE_URL", "STORE_TIMEOUT", "POSTGRES_URL",
	"AUTH_TOKEN", "JWT_SECRET", "JWT_ISSUER", "USER_ID", "CHECKIN_MODE", "TIMEZONE",
	"KAFKA_BROKERS", "CHANGEFEED_TOPIC", "FAILURE_BUFFER", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendPocketBase, cfg.StoreBackend)
	assert.Equal(t, 15*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "read_then_write", cfg.CheckInMode)
	assert.Equal(t, 64, cfg.FailureBuffer)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "habitsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_backend: memory
user_id: file-user
store_timeout: 3s
failure_buffer: 8
kafka_brokers:
  - kafka-1:9092
  - kafka-2:9092
timezone: UTC
`), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("USER_ID", "env-user")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, "env-user", cfg.UserID)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 8, cfg.FailureBuffer)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("CHECKIN_MODE", "optimistic")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "CHECKIN_MODE")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}
