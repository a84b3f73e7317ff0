// Package backend defines the uniform compilation-backend contract and the
// factory that selects between the sandboxed compiler and the native worker.
package backend

import (
	"context"

	"sceneforge/internal/types"
)

// Canonical backend names, shared so the manager can recognize the native
// worker without importing its package.
const (
	SandboxName      = "sandbox"
	NativeWorkerName = "native-worker"
)

// Backend is the uniform contract both compilation strategies implement.
// Build never returns a Go error; every failure mode is encoded in the
// returned BuildResult.
type Backend interface {
	// Name identifies the backend in results and logs.
	Name() string
	// IsAvailable is non-blocking and reflects the last probe.
	IsAvailable() bool
	// Build compiles the request. It may suspend up to the backend's hard
	// timeout but must never panic or return through any channel other than
	// the result.
	Build(ctx context.Context, req types.BuildRequest) types.BuildResult
}

// Optional capabilities of a backend. The manager forwards administrative
// calls only when the selected backend implements these; anything else is a
// silent no-op.

// CacheAdmin evicts all cached build artifacts.
type CacheAdmin interface {
	ClearCache(ctx context.Context) error
}

// StatsProvider reports operator-facing usage counters.
type StatsProvider interface {
	Stats(ctx context.Context) (WorkerStats, error)
}

// Warmer pays first-build initialization cost ahead of user-visible builds.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// StartupWaiter lets the factory probe block until asynchronous backend
// startup resolves. IsAvailable stays non-blocking for everyone else.
type StartupWaiter interface {
	WaitStartup(ctx context.Context) bool
}

// WorkerStats are aggregate counters reported by the native worker. They are
// for reporting only, never control flow.
type WorkerStats struct {
	TotalBuilds    int     `json:"totalBuilds"`
	CacheHits      int     `json:"cacheHits"`
	AverageBuildMs float64 `json:"averageBuildMs"`
	LastBuildMs    int     `json:"lastBuildMs"`
	CacheSizeBytes int     `json:"cacheSizeBytes"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
}
