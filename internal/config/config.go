// Package config provides configuration management for sceneforge using
// Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with a SCENEFORGE_ prefix. It manages backend selection, the
// sandboxed compiler's network sources and timeouts, the native worker
// command, hot-reload presets, and the status-feed server.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"sceneforge/internal/types"
)

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Backend   BackendConfig   `yaml:"backend"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Worker    WorkerConfig    `yaml:"worker"`
	HotReload HotReloadConfig `yaml:"hot_reload"`
	Serve     ServeConfig     `yaml:"serve"`
	// VendorAliases maps bare package names to locally served vendor-asset
	// URLs. Asset serving itself is an external collaborator; only the alias
	// table is supplied to the compiler.
	VendorAliases map[string]string `yaml:"vendor_aliases"`
}

type BackendConfig struct {
	// Prefer selects the backend: "auto" (native if available), "sandbox",
	// or "worker".
	Prefer string `yaml:"prefer"`
}

type SandboxConfig struct {
	// CompilerURLs lists the compiler bundle sources, primary first, then
	// mirrors, tried in order with LoadTimeout per source.
	CompilerURLs      []string      `yaml:"compiler_urls"`
	LoadTimeout       time.Duration `yaml:"load_timeout"`
	ReadyPollInterval time.Duration `yaml:"ready_poll_interval"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	BuildTimeout      time.Duration `yaml:"build_timeout"`
	CacheSize         int           `yaml:"cache_size"`
}

type WorkerConfig struct {
	// Command is the worker process command line, e.g. ["node", "worker/bundler.js"].
	Command        []string      `yaml:"command"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type HotReloadConfig struct {
	Enabled bool `yaml:"enabled"`
	// Preset is "fast", "default" or "conservative". Individual fields below
	// override the preset when set.
	Preset          string   `yaml:"preset"`
	DebounceMs      int      `yaml:"debounce_ms"`
	MinCodeLength   int      `yaml:"min_code_length"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

type ServeConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads the configuration from viper and applies defaults.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applySnakeCaseKeys(&config)
	applyDefaults(&config)

	// Workaround for viper zero-value bool handling: hot reload defaults on
	// unless the config file or environment disables it explicitly.
	if !viper.IsSet("hot_reload.enabled") {
		config.HotReload.Enabled = true
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a configuration with every default applied, for callers
// that construct the subsystem without a config file.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	config.HotReload.Enabled = true
	return &config
}

// applySnakeCaseKeys re-reads keys viper.Unmarshal misses: field-name
// matching is case-insensitive but does not bridge snake_case, so every
// underscore key needs an explicit pull.
func applySnakeCaseKeys(config *Config) {
	if viper.IsSet("log_level") {
		config.LogLevel = viper.GetString("log_level")
	}

	if viper.IsSet("sandbox.compiler_urls") {
		config.Sandbox.CompilerURLs = viper.GetStringSlice("sandbox.compiler_urls")
	}
	if viper.IsSet("sandbox.load_timeout") {
		config.Sandbox.LoadTimeout = viper.GetDuration("sandbox.load_timeout")
	}
	if viper.IsSet("sandbox.ready_poll_interval") {
		config.Sandbox.ReadyPollInterval = viper.GetDuration("sandbox.ready_poll_interval")
	}
	if viper.IsSet("sandbox.ready_timeout") {
		config.Sandbox.ReadyTimeout = viper.GetDuration("sandbox.ready_timeout")
	}
	if viper.IsSet("sandbox.build_timeout") {
		config.Sandbox.BuildTimeout = viper.GetDuration("sandbox.build_timeout")
	}
	if viper.IsSet("sandbox.cache_size") {
		config.Sandbox.CacheSize = viper.GetInt("sandbox.cache_size")
	}

	if viper.IsSet("worker.startup_timeout") {
		config.Worker.StartupTimeout = viper.GetDuration("worker.startup_timeout")
	}
	if viper.IsSet("worker.request_timeout") {
		config.Worker.RequestTimeout = viper.GetDuration("worker.request_timeout")
	}

	if viper.IsSet("hot_reload.enabled") {
		config.HotReload.Enabled = viper.GetBool("hot_reload.enabled")
	}
	if viper.IsSet("hot_reload.preset") {
		config.HotReload.Preset = viper.GetString("hot_reload.preset")
	}
	if viper.IsSet("hot_reload.debounce_ms") {
		config.HotReload.DebounceMs = viper.GetInt("hot_reload.debounce_ms")
	}
	if viper.IsSet("hot_reload.min_code_length") {
		config.HotReload.MinCodeLength = viper.GetInt("hot_reload.min_code_length")
	}
	if viper.IsSet("hot_reload.exclude_patterns") {
		config.HotReload.ExcludePatterns = viper.GetStringSlice("hot_reload.exclude_patterns")
	}

	if viper.IsSet("serve.allowed_origins") {
		config.Serve.AllowedOrigins = viper.GetStringSlice("serve.allowed_origins")
	}
	if viper.IsSet("vendor_aliases") {
		config.VendorAliases = viper.GetStringMapString("vendor_aliases")
	}
}

func applyDefaults(config *Config) {
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Backend.Prefer == "" {
		config.Backend.Prefer = "auto"
	}

	if len(config.Sandbox.CompilerURLs) == 0 {
		config.Sandbox.CompilerURLs = []string{
			"https://unpkg.com/esbuild-wasm@0.21.5/lib/browser.min.js",
			"https://cdn.jsdelivr.net/npm/esbuild-wasm@0.21.5/lib/browser.min.js",
		}
	}
	if config.Sandbox.LoadTimeout == 0 {
		config.Sandbox.LoadTimeout = 5 * time.Second
	}
	if config.Sandbox.ReadyPollInterval == 0 {
		config.Sandbox.ReadyPollInterval = 500 * time.Millisecond
	}
	if config.Sandbox.ReadyTimeout == 0 {
		config.Sandbox.ReadyTimeout = 15 * time.Second
	}
	if config.Sandbox.BuildTimeout == 0 {
		config.Sandbox.BuildTimeout = 30 * time.Second
	}
	if config.Sandbox.CacheSize == 0 {
		config.Sandbox.CacheSize = 64
	}

	if len(config.Worker.Command) == 0 {
		config.Worker.Command = []string{"node", "worker/bundler.js"}
	}
	if config.Worker.StartupTimeout == 0 {
		config.Worker.StartupTimeout = 10 * time.Second
	}
	if config.Worker.RequestTimeout == 0 {
		config.Worker.RequestTimeout = 60 * time.Second
	}

	if config.HotReload.Preset == "" {
		config.HotReload.Preset = "default"
	}

	if config.Serve.Host == "" {
		config.Serve.Host = "localhost"
	}
	if config.Serve.Port == 0 {
		config.Serve.Port = 7341
	}

	if len(config.VendorAliases) == 0 {
		config.VendorAliases = map[string]string{
			"three":              "/vendor/three.module.js",
			"react":              "/vendor/react.js",
			"react-dom":          "/vendor/react-dom.js",
			"react-dom/client":   "/vendor/react-dom-client.js",
			"@react-three/fiber": "/vendor/react-three-fiber.js",
			"@babylonjs/core":    "/vendor/babylon.js",
		}
	}
}

// Validate checks for values no component can work with.
func (c *Config) Validate() error {
	switch c.Backend.Prefer {
	case "auto", "sandbox", "worker":
	default:
		return fmt.Errorf("backend.prefer must be auto, sandbox or worker, got %q", c.Backend.Prefer)
	}
	switch c.HotReload.Preset {
	case "fast", "default", "conservative":
	default:
		return fmt.Errorf("hot_reload.preset must be fast, default or conservative, got %q", c.HotReload.Preset)
	}
	if c.Serve.Port < 1 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port out of range: %d", c.Serve.Port)
	}
	return nil
}

// HotReload resolves the hot-reload preset plus per-field overrides into the
// scheduler's runtime configuration.
func (c *Config) HotReloadRuntime() types.HotReloadConfig {
	cfg := types.HotReloadPreset(c.HotReload.Preset)
	cfg.Enabled = c.HotReload.Enabled
	if c.HotReload.DebounceMs > 0 {
		cfg.DebounceDelay = time.Duration(c.HotReload.DebounceMs) * time.Millisecond
	}
	if c.HotReload.MinCodeLength > 0 {
		cfg.MinCodeLength = c.HotReload.MinCodeLength
	}
	if len(c.HotReload.ExcludePatterns) > 0 {
		cfg.ExcludePatterns = c.HotReload.ExcludePatterns
	}
	return cfg
}
