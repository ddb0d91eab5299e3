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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimal = `
[trakt]
client_id = "id"
client_secret = "secret"
`

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, minimal)
	cfg, resolved, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	assert.Equal(t, "auto-detect", cfg.IPCPath)
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 2*time.Second, cfg.DebounceDelay())
	assert.Equal(t, 10*time.Second, cfg.RefreshInterval())
	assert.Equal(t, time.Second, cfg.SettleDelay())
	assert.Equal(t, 90.0, cfg.MinPercent)
	assert.Equal(t, 0.1, cfg.WatchFactor())
	assert.Equal(t, 4, cfg.MaxConcurrentHandlers)
	assert.Equal(t, "https://api.trakt.tv", cfg.Trakt.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.ReadTags())
	assert.Empty(t, cfg.Status.Listen)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
ipc_path = "/tmp/mpvsocket"
seconds_between_mpv_event_and_trakt_sync = 0.5
percent_minimal_playback_position_before_scrobble = 80
factor_must_watch_before_scrobble = 0
monitored_directories = ["/media/"]
excluded_directories = ["/media/private/"]

[trakt]
client_id = "id"
client_secret = "secret"

[status]
listen = "127.0.0.1:8787"

[log]
level = "debug"

[title]
read_tags = false
`)
	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mpvsocket", cfg.IPCPath)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDelay())
	assert.Equal(t, 80.0, cfg.MinPercent)
	assert.Equal(t, 0.0, cfg.WatchFactor(), "explicit zero is kept")
	assert.Equal(t, []string{"/media/"}, cfg.MonitoredDirectories)
	assert.Equal(t, []string{"/media/private/"}, cfg.ExcludedDirectories)
	assert.Equal(t, "127.0.0.1:8787", cfg.Status.Listen)
	assert.False(t, cfg.ReadTags())
}

func TestLoadErrors(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "read config")

	_, _, err = Load(writeConfig(t, "not = [valid"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Trakt: TraktConfig{ClientID: "id", ClientSecret: "secret"}}
		applyDefaults(&cfg)
		return cfg
	}
	factor := 1.5

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing client id", func(c *Config) { c.Trakt.ClientID = "" }, true},
		{"percent above 100", func(c *Config) { c.MinPercent = 101 }, true},
		{"factor above 1", func(c *Config) { c.MinWatchFactor = &factor }, true},
		{"negative interval", func(c *Config) { c.RefreshSeconds = -1 }, true},
		{"no handlers", func(c *Config) { c.MaxConcurrentHandlers = -2 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
