package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const DefaultPath = "office.toml"

type Config struct {
	Server    ServerConfig             `toml:"server"`
	Scheduler SchedulerConfig          `toml:"scheduler"`
	Store     StoreConfig              `toml:"store"`
	Telegram  TelegramConfig           `toml:"telegram"`
	Journal   JournalConfig            `toml:"journal"`
	Personas  map[string]PersonaConfig `toml:"personas"`
	Raw       map[string]any           `toml:"-"`
	Path      string                   `toml:"-"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type SchedulerConfig struct {
	InitialDelayMS          int     `toml:"initial_delay_ms"`
	MinIntervalMS           int     `toml:"min_interval_ms"`
	MaxIntervalMS           int     `toml:"max_interval_ms"`
	MinCoordinationDelayMS  int     `toml:"min_coordination_delay_ms"`
	MaxCoordinationDelayMS  int     `toml:"max_coordination_delay_ms"`
	CoordinationProbability float64 `toml:"coordination_probability"`
	BurstSize               int     `toml:"burst_size"`
	Seed                    uint64  `toml:"seed"`
}

type StoreConfig struct {
	Capacity     int `toml:"capacity"`
	SnapshotSize int `toml:"snapshot_size"`
}

type TelegramConfig struct {
	APIBaseURL string `toml:"api_base_url"`
	BotToken   string `toml:"bot_token"`
	TimeoutMS  int    `toml:"timeout_ms"`
}

type JournalConfig struct {
	DBPath string `toml:"db_path"`
}

// PersonaConfig seeds a persona's delivery settings at startup. Changes made
// at runtime are not written back.
type PersonaConfig struct {
	TelegramID string `toml:"telegram_id"`
	DPURL      string `toml:"dp_url"`
}

// Load reads the TOML file at path. An empty path means DefaultPath, which
// may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		resolved = DefaultPath
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if path == "" && errors.Is(err, fs.ErrNotExist) {
			return Config{Raw: map[string]any{}}, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	var raw map[string]any
	if _, err := toml.Decode(string(bytes), &raw); err != nil {
		return Config{}, fmt.Errorf("decode raw config: %w", err)
	}
	redactRaw(raw)
	cfg.Raw = raw
	cfg.Path = resolved
	return cfg, nil
}

// redactRaw hides the bot token in the introspection copy.
func redactRaw(raw map[string]any) {
	tg, ok := raw["telegram"].(map[string]any)
	if !ok {
		return
	}
	if tok, ok := tg["bot_token"].(string); ok && tok != "" {
		tg["bot_token"] = "<redacted>"
	}
}
