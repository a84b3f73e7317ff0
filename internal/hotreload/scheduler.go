// Package hotreload debounces source-change events and triggers builds
// automatically. The debounce timer is single-slot: each new edit cancels
// and restarts the wait, so only the latest source ever builds.
package hotreload

import (
	"context"
	"strings"
	"sync"
	"time"

	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// BuildFunc runs one build; the build manager's BuildCode satisfies it.
type BuildFunc func(ctx context.Context, code string, framework types.Framework) types.BuildResult

// ResultFunc receives every reload outcome, success or failure.
type ResultFunc func(types.BuildResult)

// Scheduler owns its debounce timer and last-seen source snapshot. Construct
// one per session and wire the build function explicitly; there is no global
// instance and no two-phase construct-then-wire step.
type Scheduler struct {
	cfg    types.HotReloadConfig
	build  BuildFunc
	logger logging.Logger

	mu         sync.Mutex
	enabled    bool
	lastSource string
	timer      *time.Timer
	reloading  bool
	lastReload time.Time
	onResult   []ResultFunc
}

// New creates a scheduler. The build function is required.
func New(cfg types.HotReloadConfig, build BuildFunc, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		cfg:     cfg,
		build:   build,
		logger:  logger.WithComponent("hot-reload"),
		enabled: cfg.Enabled,
	}
}

// OnResult registers a callback invoked after every reload build, regardless
// of success or failure.
func (s *Scheduler) OnResult(fn ResultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = append(s.onResult, fn)
}

// SetEnabled toggles the scheduler. Disabling does not cancel an already
// armed timer's build; it suppresses future triggers.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Enabled reports whether source changes currently trigger builds.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Reloading reports whether a reload build is currently running.
func (s *Scheduler) Reloading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloading
}

// LastReload returns when the last reload build completed.
func (s *Scheduler) LastReload() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReload
}

// SourceChanged feeds one source-change event into the scheduler. Each new
// edit fully restarts the debounce wait; intermediate edits are not
// coalesced beyond latest-wins.
func (s *Scheduler) SourceChanged(source string, framework types.Framework) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || !framework.RequiresBuild() || source == s.lastSource {
		return
	}
	if len(source) < s.cfg.MinCodeLength {
		s.logger.Debug(context.Background(), "edit below min code length, not triggering",
			"length", len(source), "min", s.cfg.MinCodeLength)
		return
	}
	for _, pattern := range s.cfg.ExcludePatterns {
		if strings.Contains(source, pattern) {
			s.logger.Debug(context.Background(), "edit matches exclude pattern, not triggering",
				"pattern", pattern)
			return
		}
	}

	s.lastSource = source

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.DebounceDelay, func() {
		s.fire(source, framework)
	})
}

// Stop cancels a pending (not yet fired) reload. In-flight builds run to
// completion; only scheduling can be cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// fire runs after the debounce wait elapses with no further edits.
func (s *Scheduler) fire(source string, framework types.Framework) {
	s.mu.Lock()
	s.reloading = true
	s.mu.Unlock()

	result := s.build(context.Background(), source, framework)

	s.mu.Lock()
	s.reloading = false
	s.lastReload = time.Now()
	callbacks := make([]ResultFunc, len(s.onResult))
	copy(callbacks, s.onResult)
	s.mu.Unlock()

	if !result.Success {
		// Failures surface through the result callback; the debounce loop
		// keeps accepting future edits.
		s.logger.Warn(context.Background(), nil, "hot reload build failed", "error", result.FirstError())
	}
	for _, fn := range callbacks {
		fn(result)
	}
}
