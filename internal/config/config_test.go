package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/drillhash/internal/scheduler"
)

func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	f := Flags("test")
	require.NoError(t, f.Parse(args))
	return f
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(parseFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "drillhash.db", cfg.DB)
	assert.Equal(t, ".", cfg.Source)
	assert.Empty(t, cfg.CacheDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.False(t, cfg.Shuffle)
	assert.Zero(t, cfg.CardLimit)
	assert.Zero(t, cfg.NewCardLimit)
	assert.Empty(t, cfg.Decks)
	assert.True(t, cfg.BurySiblings, "siblings are buried unless asked otherwise")
	assert.Equal(t, "full", cfg.AnswerControls)
	assert.Equal(t, *scheduler.DefaultParams(), cfg.Scheduler)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "port: 9001\nshuffle: true\ndeck:\n  - algebra\nscheduler:\n  max-interval: 64\n")

	cfg, err := Load(parseFlags(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.True(t, cfg.Shuffle)
	assert.Equal(t, []string{"algebra"}, cfg.Decks)
	assert.Equal(t, 64, cfg.Scheduler.MaxInterval)
	assert.Equal(t, 1, cfg.Scheduler.MinInterval, "untouched scheduler fields keep their defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(parseFlags(t, "--config", filepath.Join(t.TempDir(), "absent.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port: 9001\n")
	t.Setenv("DRILLHASH_PORT", "9002")
	t.Setenv("DRILLHASH_NEW_CARD_LIMIT", "5")
	t.Setenv("DRILLHASH_SCHEDULER__EASY_BONUS", "2.0")

	cfg, err := Load(parseFlags(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, 9002, cfg.Port, "environment beats the file layer")
	assert.Equal(t, 5, cfg.NewCardLimit)
	assert.Equal(t, 2.0, cfg.Scheduler.EasyBonus)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("DRILLHASH_PORT", "9002")

	cfg, err := Load(parseFlags(t, "--port", "9500"))
	require.NoError(t, err)
	assert.Equal(t, 9500, cfg.Port, "explicit flags beat the environment")
}

func TestLoadRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "unknown log level", args: []string{"--log-level", "loud"}},
		{name: "zero port", args: []string{"--port", "0"}},
		{name: "unknown answer controls", args: []string{"--answer-controls", "minimal"}},
		{name: "negative card limit", args: []string{"--card-limit", "-1"}},
		{name: "bad scheduler override", env: map[string]string{"DRILLHASH_SCHEDULER__HARD_FACTOR": "1.5"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(parseFlags(t, tc.args...))
			require.Error(t, err)
		})
	}
}

func TestSessionLimit(t *testing.T) {
	assert.Nil(t, SessionLimit(0))
	assert.Nil(t, SessionLimit(-3))

	limit := SessionLimit(7)
	require.NotNil(t, limit)
	assert.Equal(t, 7, *limit)
}
