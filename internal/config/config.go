package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// Config holds mpvtrakt runtime configuration loaded from TOML.
type Config struct {
	IPCPath               string       `toml:"ipc_path"`
	MPVConfig             string       `toml:"mpv_config"`
	RunningCheckSeconds   float64      `toml:"seconds_between_mpv_running_checks"`
	SyncDelaySeconds      float64      `toml:"seconds_between_mpv_event_and_trakt_sync"`
	RefreshSeconds        float64      `toml:"seconds_between_regular_get_property_commands"`
	ReconnectSeconds      float64      `toml:"seconds_before_reconnect"`
	MinPercent            float64      `toml:"percent_minimal_playback_position_before_scrobble"`
	MinWatchFactor        *float64     `toml:"factor_must_watch_before_scrobble"`
	MonitoredDirectories  []string     `toml:"monitored_directories"`
	ExcludedDirectories   []string     `toml:"excluded_directories"`
	MaxConcurrentHandlers int          `toml:"max_concurrent_handlers"`
	Trakt                 TraktConfig  `toml:"trakt"`
	Status                StatusConfig `toml:"status"`
	Log                   LogConfig    `toml:"log"`
	Title                 TitleConfig  `toml:"title"`
}

type TraktConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	BaseURL      string `toml:"base_url"`
}

// StatusConfig controls the HTTP status feed. An empty Listen disables it.
type StatusConfig struct {
	Listen string `toml:"listen"`
}

type LogConfig struct {
	Level  string `toml:"level"` // debug, info, warn, error
	Stderr bool   `toml:"stderr"`
}

type TitleConfig struct {
	// ReadTags defaults to true when unset.
	ReadTags *bool `toml:"read_tags"`
}

// Load reads configuration from disk. If path is empty, the XDG config
// location is used.
func Load(path string) (*Config, string, error) {
	cfgPath := path
	if cfgPath == "" {
		var err error
		cfgPath, err = DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

func DefaultPath() (string, error) {
	return xdg.ConfigFile(filepath.Join("mpvtrakt", "config.toml"))
}

func applyDefaults(cfg *Config) {
	if cfg.IPCPath == "" {
		cfg.IPCPath = "auto-detect"
	}
	if cfg.RunningCheckSeconds == 0 {
		cfg.RunningCheckSeconds = 5
	}
	if cfg.SyncDelaySeconds == 0 {
		cfg.SyncDelaySeconds = 2
	}
	if cfg.RefreshSeconds == 0 {
		cfg.RefreshSeconds = 10
	}
	if cfg.ReconnectSeconds == 0 {
		cfg.ReconnectSeconds = 1
	}
	if cfg.MinPercent == 0 {
		cfg.MinPercent = 90
	}
	if cfg.MinWatchFactor == nil {
		f := 0.1
		cfg.MinWatchFactor = &f
	}
	if cfg.MaxConcurrentHandlers == 0 {
		cfg.MaxConcurrentHandlers = 4
	}
	if cfg.Trakt.BaseURL == "" {
		cfg.Trakt.BaseURL = "https://api.trakt.tv"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Title.ReadTags == nil {
		t := true
		cfg.Title.ReadTags = &t
	}
}

// Validate performs semantic validation of a defaulted config.
func Validate(cfg Config) error {
	if cfg.Trakt.ClientID == "" || cfg.Trakt.ClientSecret == "" {
		return errors.New("trakt.client_id and trakt.client_secret are required")
	}
	if cfg.MinPercent <= 0 || cfg.MinPercent > 100 {
		return errors.New("percent_minimal_playback_position_before_scrobble must be in (0, 100]")
	}
	if f := cfg.WatchFactor(); f < 0 || f > 1 {
		return errors.New("factor_must_watch_before_scrobble must be in [0, 1]")
	}
	for name, v := range map[string]float64{
		"seconds_between_mpv_running_checks":            cfg.RunningCheckSeconds,
		"seconds_between_mpv_event_and_trakt_sync":      cfg.SyncDelaySeconds,
		"seconds_between_regular_get_property_commands": cfg.RefreshSeconds,
		"seconds_before_reconnect":                      cfg.ReconnectSeconds,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.MaxConcurrentHandlers < 1 {
		return errors.New("max_concurrent_handlers must be at least 1")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", cfg.Log.Level)
	}
	return nil
}

func (c Config) WatchFactor() float64 {
	if c.MinWatchFactor == nil {
		return 0.1
	}
	return *c.MinWatchFactor
}

func (c Config) ReadTags() bool {
	return c.Title.ReadTags == nil || *c.Title.ReadTags
}

func (c Config) PollInterval() time.Duration    { return seconds(c.RunningCheckSeconds) }
func (c Config) DebounceDelay() time.Duration   { return seconds(c.SyncDelaySeconds) }
func (c Config) RefreshInterval() time.Duration { return seconds(c.RefreshSeconds) }
func (c Config) SettleDelay() time.Duration     { return seconds(c.ReconnectSeconds) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
