package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, SnapshotBackendRedis, cfg.SnapshotBackend)
	assert.Equal(t, "msgpack", cfg.Codec)
	assert.Equal(t, 1000, cfg.PageSize)
	assert.Equal(t, int64(32800), cfg.DeviceIDSeed)
	assert.Equal(t, time.Duration(0), cfg.SnapshotInterval)
	assert.Empty(t, cfg.SnapshotLocations)
	assert.Equal(t, 3, cfg.ReadRetries)
	assert.Equal(t, 5*time.Millisecond, cfg.ReadBackoff)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SNAPSHOT_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/meshlog")
	t.Setenv("CODEC", "cbor")
	t.Setenv("PAGE_SIZE", "250")
	t.Setenv("SNAPSHOT_INTERVAL", "30s")
	t.Setenv("SNAPSHOT_LOCATIONS", " 1, 2 ,,3 ")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, SnapshotBackendPostgres, cfg.SnapshotBackend)
	assert.Equal(t, "cbor", cfg.Codec)
	assert.Equal(t, 250, cfg.PageSize)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.SnapshotLocations)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing redis", env: map[string]string{"REDIS_URL": ""}},
		{name: "postgres without url", env: map[string]string{"SNAPSHOT_BACKEND": "postgres", "DATABASE_URL": ""}},
		{name: "unknown backend", env: map[string]string{"SNAPSHOT_BACKEND": "s3"}},
		{name: "bad page size", env: map[string]string{"PAGE_SIZE": "many"}},
		{name: "zero page size", env: map[string]string{"PAGE_SIZE": "0"}},
		{name: "bad backoff", env: map[string]string{"READ_BACKOFF": "soon"}},
		{name: "interval without locations", env: map[string]string{"SNAPSHOT_INTERVAL": "1m", "SNAPSHOT_LOCATIONS": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_URL", "redis://localhost:6379/0")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
