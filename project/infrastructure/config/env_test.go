package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv は読み込み対象の環境変数を空にします
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "APP_ENV", "LOG_LEVEL", "APP_VERSION", "TARGET_GROUP", "REQUIRE_TEAM_FIELDS",
		"STORE_BACKEND", "STORE_FALLBACK", "PEBBLE_PATH", "DATABASE_URL",
		"GCP_PROJECT", "FIRESTORE_PROJECT_ID", "WHAPI_BASE_URL", "WHAPI_TOKEN",
		"POLL_ENABLED", "POLL_CRON", "POLL_LIMIT", "WEBHOOK_SECRET",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TRUST_PROXY", "GALLERY_CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "HackTillDawn Final Participants", cfg.TargetGroup)
	assert.True(t, cfg.RequireTeamFields)
	assert.False(t, cfg.TrustProxy)
	assert.False(t, cfg.IsProduction())
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("STORE_FALLBACK", "memory")
	t.Setenv("DATABASE_URL", "postgres://localhost/gallery")
	t.Setenv("REQUIRE_TEAM_FIELDS", "false")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("POLL_LIMIT", "100")
	t.Setenv("GCP_PROJECT", "hack-prj")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
	assert.Equal(t, StoreMemory, cfg.StoreFallback)
	assert.False(t, cfg.RequireTeamFields)
	assert.InDelta(t, 0.5, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 100, cfg.PollLimit)
	assert.Equal(t, "hack-prj", cfg.FirestoreProjectID)
	assert.True(t, cfg.TrustProxy)
}

func TestNewConfig_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gallery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_group: Demo Night\nstore_backend: pebble\npebble_path: /tmp/g\npoll_limit: 20\n"), 0o600))
	t.Setenv("GALLERY_CONFIG_FILE", path)
	t.Setenv("POLL_LIMIT", "30")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "Demo Night", cfg.TargetGroup)
	assert.Equal(t, StorePebble, cfg.StoreBackend)
	assert.Equal(t, "/tmp/g", cfg.PebblePath)
	assert.Equal(t, 30, cfg.PollLimit, "env wins over file")
}

func TestNewConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad bool", map[string]string{"POLL_ENABLED": "maybe"}},
		{"bad int", map[string]string{"POLL_LIMIT": "many"}},
		{"bad float", map[string]string{"RATE_LIMIT_RPS": "fast"}},
		{"missing config file", map[string]string{"GALLERY_CONFIG_FILE": "/nonexistent/gallery.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.StoreBackend = "redis" }, true},
		{"unknown fallback", func(c *Config) { c.StoreFallback = "redis" }, true},
		{"fallback equals backend", func(c *Config) { c.StoreFallback = StoreMemory }, true},
		{"postgres without url", func(c *Config) { c.StoreBackend = StorePostgres }, true},
		{"firestore fallback without project", func(c *Config) { c.StoreFallback = StoreFirestore }, true},
		{"pebble without path", func(c *Config) { c.StoreBackend = StorePebble; c.PebblePath = "" }, true},
		{"zero poll limit", func(c *Config) { c.PollLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type fakeSecrets struct {
	values map[string]string
	calls  []string
}

func (f *fakeSecrets) GetSecret(_ context.Context, name string) (string, error) {
	f.calls = append(f.calls, name)
	v, ok := f.values[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func TestResolveSecrets(t *testing.T) {
	ctx := context.Background()

	t.Run("no project skips lookup", func(t *testing.T) {
		cfg := Defaults()
		sg := &fakeSecrets{}
		require.NoError(t, cfg.ResolveSecrets(ctx, sg))
		assert.Empty(t, sg.calls)
	})

	t.Run("fills missing secrets", func(t *testing.T) {
		cfg := Defaults()
		cfg.GcpProject = "hack-prj"
		cfg.PollEnabled = true
		sg := &fakeSecrets{values: map[string]string{SecretWebhook: "hook", SecretWhapi: "token"}}

		require.NoError(t, cfg.ResolveSecrets(ctx, sg))
		assert.Equal(t, "hook", cfg.WebhookSecret)
		assert.Equal(t, "token", cfg.WhapiToken)
	})

	t.Run("env value wins", func(t *testing.T) {
		cfg := Defaults()
		cfg.GcpProject = "hack-prj"
		cfg.WebhookSecret = "from-env"
		sg := &fakeSecrets{}

		require.NoError(t, cfg.ResolveSecrets(ctx, sg))
		assert.Equal(t, "from-env", cfg.WebhookSecret)
		assert.Empty(t, sg.calls, "whapi token is only needed when polling")
	})

	t.Run("lookup failure", func(t *testing.T) {
		cfg := Defaults()
		cfg.GcpProject = "hack-prj"
		assert.Error(t, cfg.ResolveSecrets(ctx, &fakeSecrets{}))
	})
}
