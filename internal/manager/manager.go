// Package manager orchestrates builds: single-flight scheduling, the build
// status state machine, analyzer invocation after every build, and
// administrative pass-throughs to the native worker.
package manager

import (
	"context"
	"sync"

	"sceneforge/internal/analyzer"
	"sceneforge/internal/backend"
	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// BackendSelector picks a backend per build request. The factory implements
// it; tests substitute fakes.
type BackendSelector interface {
	Select() backend.Backend
	NativeAvailable() bool
}

// Event is published to subscribers on every status transition. Analysis is
// nil for transitions that do not complete a build.
type Event struct {
	Status   types.BuildStatus
	Analysis *analyzer.BuildAnalysis
}

// BuildManager owns the current build status and the selected backend for
// the in-flight build. Construct one per application session and inject it;
// there is no package-level instance.
type BuildManager struct {
	selector BackendSelector
	analyzer *analyzer.BuildAnalyzer
	logger   logging.Logger

	mu           sync.Mutex
	status       types.BuildStatus
	lastResult   *types.BuildResult
	lastAnalysis *analyzer.BuildAnalysis
	trends       analyzer.TrendReport
	subscribers  []func(Event)
}

// New creates a build manager over the given backend selector and analyzer.
func New(selector BackendSelector, an *analyzer.BuildAnalyzer, logger logging.Logger) *BuildManager {
	if logger == nil {
		logger = logging.Nop()
	}
	if an == nil {
		an = analyzer.New()
	}
	return &BuildManager{
		selector: selector,
		analyzer: an,
		logger:   logger.WithComponent("build-manager"),
	}
}

// Subscribe registers a callback for status transitions. Callbacks run
// synchronously on the build goroutine and must not block.
func (m *BuildManager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// BuildCode runs one build for the given source and framework. While a build
// is in flight, further calls are rejected immediately with a failure
// result, not queued. The manager never returns a Go error; when no
// backend can be constructed the result is a synthetic service-unavailable
// failure.
func (m *BuildManager) BuildCode(ctx context.Context, code string, framework types.Framework) types.BuildResult {
	return m.BuildRequest(ctx, types.NewBuildRequest(framework, code))
}

// BuildRequest is BuildCode with full control over the request fields.
func (m *BuildManager) BuildRequest(ctx context.Context, req types.BuildRequest) types.BuildResult {
	framework := req.Framework
	m.mu.Lock()
	if m.status.State == types.StateBuilding {
		m.mu.Unlock()
		m.logger.Warn(ctx, nil, "build rejected: another build is in flight", "framework", framework)
		return types.FailedResult("", "build already in progress")
	}
	m.status = types.BuildStatus{State: types.StateBuilding}
	m.mu.Unlock()
	m.publish(Event{Status: types.BuildStatus{State: types.StateBuilding}})

	var result types.BuildResult
	be := m.selector.Select()
	if be == nil {
		result = types.FailedResult("", "build service not available")
	} else {
		result = be.Build(ctx, req)
	}

	// Always analyze, success or failure, then publish the new status.
	an := m.analyzer.Analyze(result, framework)
	trends := m.analyzer.Trends()

	var status types.BuildStatus
	if result.Success {
		status = types.BuildStatus{State: types.StateSuccess, Bytes: result.Bytes, DurationMs: result.DurationMs}
	} else {
		status = types.BuildStatus{State: types.StateError, Message: result.FirstError()}
	}

	m.mu.Lock()
	m.status = status
	m.lastResult = &result
	m.lastAnalysis = &an
	m.trends = trends
	m.mu.Unlock()

	if result.Success {
		m.logger.Info(ctx, "build finished",
			"backend", result.BackendName, "bytes", result.Bytes, "durationMs", result.DurationMs,
			"fromCache", result.FromCache, "grade", an.Grade)
	} else {
		m.logger.Warn(ctx, nil, "build failed",
			"backend", result.BackendName, "error", result.FirstError())
	}

	m.publish(Event{Status: status, Analysis: &an})
	return result
}

// Status returns the current build status.
func (m *BuildManager) Status() types.BuildStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Reset returns the status machine to Idle from any state. It does not
// cancel an in-flight build; the next completion overwrites the status.
func (m *BuildManager) Reset() {
	m.mu.Lock()
	m.status = types.BuildStatus{State: types.StateIdle}
	m.mu.Unlock()
	m.publish(Event{Status: types.BuildStatus{State: types.StateIdle}})
}

// LastResult returns the most recent build result, if any.
func (m *BuildManager) LastResult() *types.BuildResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult
}

// LastAnalysis returns the analysis of the most recent build, if any.
func (m *BuildManager) LastAnalysis() *analyzer.BuildAnalysis {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAnalysis
}

// Trends returns the trend report computed after the most recent build.
func (m *BuildManager) Trends() analyzer.TrendReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trends
}

// Analyzer exposes the rolling-history analyzer for reporting commands.
func (m *BuildManager) Analyzer() *analyzer.BuildAnalyzer {
	return m.analyzer
}

// UsingNativeWorker reports whether the native backend is both available and
// what a new build would select right now.
func (m *BuildManager) UsingNativeWorker() bool {
	return m.selector.NativeAvailable() && isNative(m.selector.Select())
}

// ClearCache forwards to the native worker when selected; otherwise a no-op.
func (m *BuildManager) ClearCache(ctx context.Context) error {
	be := m.selector.Select()
	if admin, ok := be.(backend.CacheAdmin); ok && isNative(be) {
		return admin.ClearCache(ctx)
	}
	return nil
}

// WorkerStats returns the native worker's counters. The second return is
// false when the native worker is not in use.
func (m *BuildManager) WorkerStats(ctx context.Context) (backend.WorkerStats, bool) {
	be := m.selector.Select()
	provider, ok := be.(backend.StatsProvider)
	if !ok || !isNative(be) {
		return backend.WorkerStats{}, false
	}
	stats, err := provider.Stats(ctx)
	if err != nil {
		m.logger.Warn(ctx, err, "worker stats unavailable")
		return backend.WorkerStats{}, false
	}
	return stats, true
}

// Warmup forwards to the native worker when selected; otherwise a no-op.
func (m *BuildManager) Warmup(ctx context.Context) error {
	be := m.selector.Select()
	if warmer, ok := be.(backend.Warmer); ok && isNative(be) {
		return warmer.Warmup(ctx)
	}
	return nil
}

func isNative(be backend.Backend) bool {
	return be != nil && be.Name() == backend.NativeWorkerName
}

func (m *BuildManager) publish(ev Event) {
	m.mu.Lock()
	subs := make([]func(Event), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
