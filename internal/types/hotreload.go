package types

import "time"

// HotReloadConfig controls the debounce scheduler that turns source-change
// events into builds.
type HotReloadConfig struct {
	// Enabled gates the scheduler entirely.
	Enabled bool
	// DebounceDelay is how long input must stay quiet before a build fires.
	DebounceDelay time.Duration
	// MinCodeLength suppresses triggering for sources shorter than this.
	MinCodeLength int
	// ExcludePatterns suppress triggering when the source contains any of
	// these substrings (e.g. a work-in-progress marker).
	ExcludePatterns []string
}

// The presets differ only in these four fields.

// FastHotReload reacts quickly at the cost of more speculative builds.
func FastHotReload() HotReloadConfig {
	return HotReloadConfig{
		Enabled:       true,
		DebounceDelay: 800 * time.Millisecond,
		MinCodeLength: 10,
	}
}

// DefaultHotReload is the balanced preset.
func DefaultHotReload() HotReloadConfig {
	return HotReloadConfig{
		Enabled:         true,
		DebounceDelay:   1500 * time.Millisecond,
		MinCodeLength:   20,
		ExcludePatterns: []string{"// WIP"},
	}
}

// ConservativeHotReload waits longest and filters hardest.
func ConservativeHotReload() HotReloadConfig {
	return HotReloadConfig{
		Enabled:         true,
		DebounceDelay:   3000 * time.Millisecond,
		MinCodeLength:   50,
		ExcludePatterns: []string{"// WIP", "// DRAFT"},
	}
}

// HotReloadPreset resolves a preset by name, falling back to the default.
func HotReloadPreset(name string) HotReloadConfig {
	switch name {
	case "fast":
		return FastHotReload()
	case "conservative":
		return ConservativeHotReload()
	default:
		return DefaultHotReload()
	}
}
