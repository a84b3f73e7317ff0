package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.Backend.Prefer)

	require.Len(t, cfg.Sandbox.CompilerURLs, 2, "primary source plus one mirror")
	assert.Equal(t, 5*time.Second, cfg.Sandbox.LoadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Sandbox.ReadyPollInterval)
	assert.Equal(t, 15*time.Second, cfg.Sandbox.ReadyTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.BuildTimeout)
	assert.Equal(t, 64, cfg.Sandbox.CacheSize)

	assert.Equal(t, []string{"node", "worker/bundler.js"}, cfg.Worker.Command)
	assert.True(t, cfg.HotReload.Enabled)
	assert.Equal(t, "default", cfg.HotReload.Preset)
	assert.Equal(t, 7341, cfg.Serve.Port)
	assert.Contains(t, cfg.VendorAliases, "three")
	assert.Contains(t, cfg.VendorAliases, "@react-three/fiber")

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("bad backend preference", func(t *testing.T) {
		cfg := Default()
		cfg.Backend.Prefer = "cloud"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend.prefer")
	})

	t.Run("bad preset", func(t *testing.T) {
		cfg := Default()
		cfg.HotReload.Preset = "ludicrous"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hot_reload.preset")
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := Default()
		cfg.Serve.Port = 70000
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "serve.port")
	})
}

func TestLoad(t *testing.T) {
	t.Run("defaults when nothing set", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "auto", cfg.Backend.Prefer)
		assert.True(t, cfg.HotReload.Enabled, "hot reload defaults on")
	})

	t.Run("overrides respected", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		viper.Set("backend.prefer", "sandbox")
		viper.Set("hot_reload.enabled", false)
		viper.Set("hot_reload.preset", "fast")
		viper.Set("serve.port", 9000)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "sandbox", cfg.Backend.Prefer)
		assert.False(t, cfg.HotReload.Enabled, "explicit disable wins over the default")
		assert.Equal(t, "fast", cfg.HotReload.Preset)
		assert.Equal(t, 9000, cfg.Serve.Port)
	})

	t.Run("invalid value rejected", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		viper.Set("backend.prefer", "cloud")

		_, err := Load()
		require.Error(t, err)
	})
}

func TestHotReloadRuntime(t *testing.T) {
	t.Run("preset only", func(t *testing.T) {
		cfg := Default()
		cfg.HotReload.Preset = "conservative"

		rt := cfg.HotReloadRuntime()
		assert.Equal(t, 3*time.Second, rt.DebounceDelay)
		assert.Equal(t, 50, rt.MinCodeLength)
		assert.Contains(t, rt.ExcludePatterns, "// DRAFT")
	})

	t.Run("field overrides beat the preset", func(t *testing.T) {
		cfg := Default()
		cfg.HotReload.Preset = "fast"
		cfg.HotReload.DebounceMs = 250
		cfg.HotReload.MinCodeLength = 99
		cfg.HotReload.ExcludePatterns = []string{"// HOLD"}

		rt := cfg.HotReloadRuntime()
		assert.Equal(t, 250*time.Millisecond, rt.DebounceDelay)
		assert.Equal(t, 99, rt.MinCodeLength)
		assert.Equal(t, []string{"// HOLD"}, rt.ExcludePatterns)
	})

	t.Run("enabled flag carried through", func(t *testing.T) {
		cfg := Default()
		cfg.HotReload.Enabled = false
		assert.False(t, cfg.HotReloadRuntime().Enabled)
	})
}
