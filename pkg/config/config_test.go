package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
hub:
  base_url: https://hub.example.com/api/v1
  timeout: 2m
paging:
  page_row_cap: 5000
  max_stored_rows: 1000000
  retry:
    max_attempts: 5
    initial_backoff: 250ms
checkpoint:
  backend: sqlite
  path: /tmp/checkpoints.db
namespaces:
  Campus_Energy: ns-energy
  Wind_Farm: ns-wind
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{"HUB_BASE_URL", "HUB_TOKEN", "REDIS_URL", "LOG_LEVEL", "HUB_WORKERS"} {
		t.Setenv(key, "")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://hub.example.com/api/v1", cfg.Hub.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Hub.Timeout)
	assert.Equal(t, 5000, cfg.Paging.PageRowCap)
	assert.Equal(t, 1000000, cfg.Paging.MaxStoredRows)
	assert.Equal(t, 5, cfg.Paging.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Paging.Retry.InitialBackoff)
	assert.Equal(t, "sqlite", cfg.Checkpoint.Backend)

	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.Paging.Workers)
	assert.Equal(t, 40, cfg.Paging.MinPageRowCap)
	assert.Equal(t, 10*time.Second, cfg.Paging.Retry.MaxBackoff)
	assert.True(t, cfg.Hub.NarrowStored)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HUB_BASE_URL", "https://other.example.com")
	t.Setenv("HUB_TOKEN", "secret")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("HUB_WORKERS", "8")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://other.example.com", cfg.Hub.BaseURL)
	assert.Equal(t, "secret", cfg.Hub.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Paging.Workers)

	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{
			name:    "missing base url",
			content: "paging:\n  workers: 2\n",
		},
		{
			name:    "bad workers env",
			content: sampleYAML,
			env:     map[string]string{"HUB_WORKERS": "many"},
		},
		{
			name:    "unknown checkpoint backend",
			content: "hub:\n  base_url: https://hub.example.com\ncheckpoint:\n  backend: s3\n",
		},
		{
			name:    "redis checkpoint without redis",
			content: "hub:\n  base_url: https://hub.example.com\ncheckpoint:\n  backend: redis\n",
		},
		{
			name:    "otlp without endpoint",
			content: "hub:\n  base_url: https://hub.example.com\ntracing:\n  exporter: otlp\n",
		},
		{
			name:    "negative page row cap",
			content: "hub:\n  base_url: https://hub.example.com\npaging:\n  page_row_cap: -1\n",
		},
		{
			name:    "invalid yaml",
			content: "hub: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNamespaceOf(t *testing.T) {
	cfg := Default()
	cfg.Namespaces = map[string]string{"Campus_Energy": "ns-energy"}

	tests := []struct {
		dataset string
		want    string
		wantErr bool
	}{
		{"Campus_Energy", "ns-energy", false},
		{"campus_energy", "ns-energy", false},
		{"CAMPUS_ENERGY", "ns-energy", false},
		{"wind", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.dataset, func(t *testing.T) {
			got, err := cfg.NamespaceOf(tt.dataset)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownDataset)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedisOptions(t *testing.T) {
	cfg := Default()

	_, err := cfg.RedisOptions()
	assert.Error(t, err)

	cfg.Redis.URL = "localhost:6380"
	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
}

func TestConfig_Client(t *testing.T) {
	cfg := Default()
	cfg.Hub.BaseURL = "https://hub.example.com"

	cc := cfg.Client()
	assert.Equal(t, "https://hub.example.com", cc.BaseURL)
	assert.Equal(t, "academic-hub/1.0", cc.UserAgent)
	assert.True(t, cc.NarrowStored)
}
