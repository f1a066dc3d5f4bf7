package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDecodesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "office.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9000"

[scheduler]
initial_delay_ms = 500
min_interval_ms = 1000
max_interval_ms = 4000
coordination_probability = 0.5
burst_size = 3
seed = 99

[store]
capacity = 20
snapshot_size = 5

[telegram]
api_base_url = "http://localhost:8081"
bot_token = "123:abc"
timeout_ms = 2500

[journal]
db_path = "tmp/journal.db"

[personas.ross]
telegram_id = "-1001"
dp_url = "https://example.com/ross.png"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 500, cfg.Scheduler.InitialDelayMS)
	assert.Equal(t, 4000, cfg.Scheduler.MaxIntervalMS)
	assert.Equal(t, 0.5, cfg.Scheduler.CoordinationProbability)
	assert.Equal(t, uint64(99), cfg.Scheduler.Seed)
	assert.Equal(t, 20, cfg.Store.Capacity)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "tmp/journal.db", cfg.Journal.DBPath)
	assert.Equal(t, PersonaConfig{TelegramID: "-1001", DPURL: "https://example.com/ross.png"}, cfg.Personas["ross"])
	assert.Equal(t, filepath.Clean(path), cfg.Path)

	tg := cfg.Raw["telegram"].(map[string]any)
	assert.Equal(t, "<redacted>", tg["bot_token"])
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadMissingDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
	assert.Empty(t, cfg.Server.Addr)
}

func TestLoadRejectsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr = 1"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
