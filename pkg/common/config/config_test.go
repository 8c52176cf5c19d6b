package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
environment: production
engine:
  draw_interval: 120s
  timezone: UTC
storage:
  type: badger
  badger:
    directory: /var/lib/draw
`))
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.Engine.DrawInterval)
	assert.Equal(t, "UTC", cfg.Engine.Timezone)
	assert.Equal(t, 5, cfg.Engine.MaxConflictRetries)
	assert.Equal(t, "/var/lib/draw", cfg.Storage.Badger.Directory)
	assert.Equal(t, "draw", cfg.Storage.Badger.Prefix)
	assert.Equal(t, enum.CacheTypeMemory, cfg.Cache.Type)
	assert.Equal(t, "D", cfg.Rebate.DefaultMarket)
	assert.InDelta(t, 0.041, cfg.Rebate.Markets["D"], 1e-9)
	assert.Equal(t, "draw_engine.events", cfg.NATS.SubjectPrefix)
	assert.False(t, cfg.Worker.Draw.Enabled)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("TEST_PG_URL", "postgres://u:p@localhost:5432/draw")
	cfg, err := Parse([]byte(`
storage:
  type: postgres
  postgres:
    url: ${TEST_PG_URL}
`))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/draw", cfg.Storage.Postgres.URL)
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"interval too short", "engine:\n  draw_interval: 30s\n"},
		{"unknown timezone", "engine:\n  timezone: Mars/Olympus\n"},
		{"unknown store", "storage:\n  type: sqlite\n"},
		{"postgres without url", "storage:\n  type: postgres\n"},
		{"redis without url", "cache:\n  type: redis\n"},
		{"default market without rate", "rebate:\n  markets:\n    A: 0.01\n  default_market: Z\n"},
		{"snap bounds inverted", "control:\n  snap_low: 0.9\n  snap_high: 0.5\n"},
		{"bad tie policy", "evaluation:\n  dragon_tiger_tie: split\n"},
		{"bad environment", "environment: staging\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadExampleConfig(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Engine.DrawInterval)
	assert.True(t, cfg.Worker.Draw.Enabled)
	assert.Equal(t, []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute}, cfg.Rebate.Backoff)
}
