package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "apiguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "sha256", cfg.Auth.HashAlgorithm)
	assert.Equal(t, 24*time.Hour, cfg.Auth.DefaultKeyTTL)
	assert.Equal(t, 60, cfg.RateLimit.DefaultPerMinute)
	assert.Equal(t, 1000, cfg.RateLimit.DefaultPerHour)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9090"
  enforceHTTPS: true
auth:
  hashAlgorithm: bcrypt
  defaultKeyTTL: 48h
  enforceIPAllowlist: true
rateLimit:
  defaultPerMinute: 2
  defaultPerHour: 50
redis:
  enabled: true
  address: "127.0.0.1:6380"
admin:
  token: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.True(t, cfg.Server.EnforceHTTPS)
	assert.Equal(t, "bcrypt", cfg.Auth.HashAlgorithm)
	assert.Equal(t, 48*time.Hour, cfg.Auth.DefaultKeyTTL)
	assert.True(t, cfg.Auth.EnforceIPAllowlist)
	assert.Equal(t, 2, cfg.RateLimit.DefaultPerMinute)
	assert.Equal(t, 50, cfg.RateLimit.DefaultPerHour)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "127.0.0.1:6380", cfg.Redis.Address)
	assert.Equal(t, "secret", cfg.Admin.Token)

	// Unset fields keep defaults.
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 1024, cfg.Audit.QueueSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/apiguard.yaml")
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APIGUARD_ADDRESS", ":7070")
	t.Setenv("APIGUARD_ADMIN_TOKEN", "env-token")
	t.Setenv("APIGUARD_LOG_LEVEL", "debug")
	t.Setenv("APIGUARD_ENFORCE_HTTPS", "true")

	path := writeConfig(t, "server:\n  address: \":9090\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "env-token", cfg.Admin.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Server.EnforceHTTPS)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing address",
			mutate:  func(c *Config) { c.Server.Address = "" },
			wantErr: "server.address",
		},
		{
			name:    "unsupported driver",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "database driver",
		},
		{
			name:    "bad hash algorithm",
			mutate:  func(c *Config) { c.Auth.HashAlgorithm = "md5" },
			wantErr: "hash algorithm",
		},
		{
			name:    "zero key TTL",
			mutate:  func(c *Config) { c.Auth.DefaultKeyTTL = 0 },
			wantErr: "defaultKeyTTL",
		},
		{
			name:    "zero per-minute quota",
			mutate:  func(c *Config) { c.RateLimit.DefaultPerMinute = 0 },
			wantErr: "defaultPerMinute",
		},
		{
			name: "redis enabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
			wantErr: "redis.address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "rateLimit:\n  defaultPerMinute: 10\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	require.Equal(t, 10, w.Current().RateLimit.DefaultPerMinute)

	require.NoError(t, os.WriteFile(path, []byte("rateLimit:\n  defaultPerMinute: 20\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 20, cfg.RateLimit.DefaultPerMinute)
		assert.Equal(t, 20, w.Current().RateLimit.DefaultPerMinute)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	path := writeConfig(t, "rateLimit:\n  defaultPerMinute: 10\n")

	errs := make(chan error, 1)
	w, err := NewWatcher(path, nil,
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("rateLimit:\n  defaultPerMinute: -5\n"), 0o600))

	select {
	case <-errs:
		assert.Equal(t, 10, w.Current().RateLimit.DefaultPerMinute)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
}
