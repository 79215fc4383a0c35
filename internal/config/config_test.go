package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Paths: PathsConfig{
			DataDir:      "/tmp/actionlib",
			SettingsFile: "settings.json",
			ActionsFile:  "actions.json",
		},
		API:     DefaultAPI(),
		Refresh: DefaultRefresh(),
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid token URL",
			mutate:  func(c *Config) { c.API.TokenURL = "not-a-url" },
			wantErr: true,
			errMsg:  "TokenURL",
		},
		{
			name:    "model URI without scheme",
			mutate:  func(c *Config) { c.API.ModelURI = "yandexgpt" },
			wantErr: true,
			errMsg:  "ModelURI",
		},
		{
			name:    "timeout too high",
			mutate:  func(c *Config) { c.API.Timeout = time.Hour },
			wantErr: true,
			errMsg:  "Timeout",
		},
		{
			name:    "refresh interval too short",
			mutate:  func(c *Config) { c.Refresh.Interval = time.Second },
			wantErr: true,
			errMsg:  "Interval",
		},
		{
			name:    "actions file escapes data dir",
			mutate:  func(c *Config) { c.Paths.ActionsFile = "../actions.json" },
			wantErr: true,
			errMsg:  "ActionsFile",
		},
		{
			name:    "absolute settings file",
			mutate:  func(c *Config) { c.Paths.SettingsFile = "/etc/settings.json" },
			wantErr: true,
			errMsg:  "SettingsFile",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: true,
			errMsg:  "Level",
		},
		{
			name:    "burst size too high",
			mutate:  func(c *Config) { c.API.RateLimit.BurstSize = 500 },
			wantErr: true,
			errMsg:  "BurstSize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errMsg), "error %q should mention %q", err, tt.errMsg)
		})
	}
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("ACTIONLIB_DATA_DIR", "")
	t.Setenv("ACTIONLIB_MODEL_URI", "")
	t.Setenv("ACTIONLIB_LOG_LEVEL", "")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultAPI(), cfg.API)
	assert.Equal(t, time.Hour, cfg.Refresh.Interval)
	assert.Equal(t, "settings.json", cfg.Paths.SettingsFile)
	assert.Equal(t, "actions.json", cfg.Paths.ActionsFile)
	assert.Equal(t, filepath.Join(os.Getenv("XDG_DATA_HOME"), "actionlib"), cfg.Paths.DataDir)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("ACTIONLIB_DATA_DIR", "")
	t.Setenv("ACTIONLIB_MODEL_URI", "")
	t.Setenv("ACTIONLIB_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
paths:
  data_dir: /var/lib/actionlib
api:
  timeout: 15s
  max_retries: 0
refresh:
  interval: 30m
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/actionlib", cfg.Paths.DataDir)
	assert.Equal(t, "actions.json", cfg.Paths.ActionsFile)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 0, cfg.API.MaxRetries)
	assert.Equal(t, DefaultTokenURL, cfg.API.TokenURL)
	assert.Equal(t, 30*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFileEnvironmentOverrides(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("ACTIONLIB_DATA_DIR", dataDir)
	t.Setenv("ACTIONLIB_MODEL_URI", "gpt://folder/yandexgpt-lite")
	t.Setenv("ACTIONLIB_LOG_LEVEL", "WARN")
	t.Setenv("ACTIONLIB_OAUTH_TOKEN", "  y0_oauth  ")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.Paths.DataDir)
	assert.Equal(t, "gpt://folder/yandexgpt-lite", cfg.API.ModelURI)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "y0_oauth", cfg.OAuthToken)
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("paths: [unclosed"), 0644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestWriteRoundTrip(t *testing.T) {
	t.Setenv("ACTIONLIB_DATA_DIR", "")
	t.Setenv("ACTIONLIB_MODEL_URI", "")
	t.Setenv("ACTIONLIB_LOG_LEVEL", "")

	cfg := validConfig()
	cfg.OAuthToken = "never-written"
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, Write(&cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.API, loaded.API)
	assert.Equal(t, cfg.Paths, loaded.Paths)
	assert.Equal(t, cfg.Refresh, loaded.Refresh)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("ACTIONLIB_CONFIG", "/custom/config.yaml")
	assert.Equal(t, "/custom/config.yaml", Path())

	t.Setenv("ACTIONLIB_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "actionlib", "config.yaml"), Path())
}
