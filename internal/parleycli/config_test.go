package parleycli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_resolveOptions(t *testing.T) {
	interval := duration(5 * time.Second)
	tracing := true

	tests := []struct {
		name       string
		cfg        localConfig
		configPath string
		flags      flagValues
		check      func(t *testing.T, got runOpts)
	}{
		{
			name: "defaults with empty config",
			check: func(t *testing.T, got runOpts) {
				assert.Empty(t, got.EffectiveNATSURL)
				assert.Equal(t, defaultAccountID, got.EffectiveAccountID)
				assert.Equal(t, defaultResyncInterval, got.EffectiveResyncInterval)
				assert.Equal(t, defaultTimeout, got.EffectiveTimeout)
				assert.False(t, got.EffectiveTracing)
				assert.Equal(t, filepath.Join(got.ParleyDir, "state.db"), got.EffectiveDB)
			},
		},
		{
			name: "config values apply",
			cfg: localConfig{
				NATSURL:        "nats://gw:4222",
				DB:             "/var/lib/parley/state.db",
				AccountID:      "team-a",
				ResyncInterval: &interval,
				Tracing:        &tracing,
			},
			configPath: "/home/u/.parley/config.yaml",
			check: func(t *testing.T, got runOpts) {
				assert.Equal(t, "nats://gw:4222", got.EffectiveNATSURL)
				assert.Equal(t, "/var/lib/parley/state.db", got.EffectiveDB)
				assert.Equal(t, "team-a", got.EffectiveAccountID)
				assert.Equal(t, time.Duration(interval), got.EffectiveResyncInterval)
				assert.True(t, got.EffectiveTracing)
				assert.Equal(t, "/home/u/.parley", got.ParleyDir)
			},
		},
		{
			name: "flags override config",
			cfg: localConfig{
				NATSURL:   "nats://gw:4222",
				AccountID: "team-a",
				Tracing:   &tracing,
			},
			flags: flagValues{
				NATSURL:    "nats://other:4222",
				Account:    "me",
				Timeout:    time.Minute,
				TimeoutSet: true,
				Tracing:    false,
				TracingSet: true,
			},
			check: func(t *testing.T, got runOpts) {
				assert.Equal(t, "nats://other:4222", got.EffectiveNATSURL)
				assert.Equal(t, "me", got.EffectiveAccountID)
				assert.Equal(t, time.Minute, got.EffectiveTimeout)
				assert.False(t, got.EffectiveTracing)
			},
		},
		{
			name: "unset timeout flag keeps config value",
			cfg:  localConfig{Timeout: &interval},
			flags: flagValues{
				Timeout: defaultTimeout, // cobra default, not explicitly set
			},
			check: func(t *testing.T, got runOpts) {
				assert.Equal(t, time.Duration(interval), got.EffectiveTimeout)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, resolveOptions(tt.cfg, tt.configPath, tt.flags))
		})
	}
}

func Test_loadLocalConfig(t *testing.T) {
	dir := t.TempDir()
	parleyDir := filepath.Join(dir, ".parley")
	require.NoError(t, os.MkdirAll(parleyDir, 0750))
	content := []byte("nats_url: \"nats://gw:4222\"\naccount_id: team-a\nresync_interval: 10s\n")
	require.NoError(t, os.WriteFile(filepath.Join(parleyDir, "config.yaml"), content, 0644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, path, err := loadLocalConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(parleyDir, "config.yaml"), path)
	assert.Equal(t, "nats://gw:4222", cfg.NATSURL)
	assert.Equal(t, "team-a", cfg.AccountID)
	require.NotNil(t, cfg.ResyncInterval)
	assert.Equal(t, 10*time.Second, time.Duration(*cfg.ResyncInterval))
}

func Test_firstNonFlagIsReserved(t *testing.T) {
	assert.True(t, firstNonFlagIsReserved([]string{"session", "list"}))
	assert.True(t, firstNonFlagIsReserved([]string{"--db", "/tmp/x.db", "watch"}))
	assert.False(t, firstNonFlagIsReserved([]string{"hello", "world"}))
	assert.False(t, firstNonFlagIsReserved([]string{"--trace", "hello"}))
	assert.False(t, firstNonFlagIsReserved([]string{"--db=/tmp/x.db", "hi"}))
	assert.True(t, firstNonFlagIsReserved([]string{"--", "init"}))
	assert.False(t, firstNonFlagIsReserved(nil))
}
