// Package sandbox implements the sandboxed compiler backend. The compile
// runs inside a headless browser-engine context which loads the compiler
// bundle over the network (with mirror fallback); when no compiler source is
// reachable the backend degrades to a best-effort textual transform instead
// of becoming unavailable.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"sceneforge/internal/backend"
	"sceneforge/internal/config"
	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// BackendName identifies this backend in results and logs.
const BackendName = backend.SandboxName

// Backend drives the sandboxed script-execution host.
type Backend struct {
	cfg     config.SandboxConfig
	aliases map[string]string
	logger  logging.Logger
	host    ScriptHost
	cache   *lru.Cache[string, types.BuildResult]

	mu      sync.Mutex
	pending *pendingBuild

	// readyCh closes when initialization finishes, successfully or not.
	// compilerOK and hostOK are written once before the close.
	readyCh    chan struct{}
	compilerOK bool
	hostOK     bool
}

// pendingBuild is the single-resolution continuation for one in-flight
// sandbox build. The slot holding it is cleared atomically before either
// side resolves, so the loser of the success/timeout race is a silent no-op.
type pendingBuild struct {
	ch chan types.BuildResult
}

// New constructs the backend over a real headless-browser host and begins
// asynchronous initialization.
func New(cfg config.SandboxConfig, aliases map[string]string, logger logging.Logger) *Backend {
	return newWithHost(newRodHost(), cfg, aliases, logger)
}

func newWithHost(host ScriptHost, cfg config.SandboxConfig, aliases map[string]string, logger logging.Logger) *Backend {
	if logger == nil {
		logger = logging.Nop()
	}
	cache, _ := lru.New[string, types.BuildResult](max(cfg.CacheSize, 1))

	b := &Backend{
		cfg:     cfg,
		aliases: aliases,
		logger:  logger.WithComponent("sandbox-backend"),
		host:    host,
		cache:   cache,
		readyCh: make(chan struct{}),
	}
	go b.initialize()
	return b
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return BackendName }

// IsAvailable implements backend.Backend. The sandbox backend is always
// usable: with no compiler it serves the fallback transform.
func (b *Backend) IsAvailable() bool { return true }

// initialize provisions the sandbox, installs the result callback, injects
// the bootstrap script and polls for readiness.
func (b *Backend) initialize() {
	defer close(b.readyCh)
	ctx := context.Background()

	if err := b.host.Start(ctx); err != nil {
		b.logger.Error(ctx, err, "sandbox host failed to start; using fallback transform")
		return
	}
	if err := b.host.OnResult(b.handleResult); err != nil {
		b.logger.Error(ctx, err, "sandbox result callback registration failed; using fallback transform")
		return
	}

	b.mu.Lock()
	b.hostOK = true
	b.mu.Unlock()

	if err := b.host.Run(bootstrapScript(b.cfg.CompilerURLs, b.cfg.LoadTimeout, b.aliases)); err != nil {
		b.logger.Error(ctx, err, "compiler bootstrap injection failed; using fallback transform")
		return
	}

	// Readiness gate: the entry function must exist and the compiler-ready
	// flag must be set, checked at a fixed interval up to a bounded ceiling.
	deadline := time.Now().Add(b.cfg.ReadyTimeout)
	for time.Now().Before(deadline) {
		ready, err := b.host.EvalBool(readyExpr)
		if err != nil {
			b.logger.Warn(ctx, err, "readiness poll failed")
		} else if ready {
			b.mu.Lock()
			b.compilerOK = true
			b.mu.Unlock()
			b.logger.Info(ctx, "sandbox compiler ready")
			return
		}
		time.Sleep(b.cfg.ReadyPollInterval)
	}
	b.logger.Warn(ctx, nil, "compiler never became ready; builds use the fallback transform",
		"readyTimeout", b.cfg.ReadyTimeout)
}

// Build implements backend.Backend.
func (b *Backend) Build(ctx context.Context, req types.BuildRequest) types.BuildResult {
	key := req.Hash()
	if cached, ok := b.cache.Get(key); ok {
		cached.FromCache = true
		return cached
	}

	// Wait on the readiness gate once more before deciding the compiler is
	// out of reach.
	select {
	case <-b.readyCh:
	case <-ctx.Done():
		return types.FailedResult(BackendName, "build cancelled while waiting for sandbox readiness")
	case <-time.After(b.cfg.ReadyTimeout):
	}

	b.mu.Lock()
	compilerOK := b.compilerOK && b.hostOK
	b.mu.Unlock()

	var result types.BuildResult
	if compilerOK {
		result = b.compile(ctx, req)
	} else {
		result = fallbackTransform(req)
	}

	if result.Success {
		b.cache.Add(key, result)
	}
	return result
}

// compile serializes the request across the page boundary and races the
// asynchronous continuation against the hard build timeout.
func (b *Backend) compile(ctx context.Context, req types.BuildRequest) types.BuildResult {
	pending := &pendingBuild{ch: make(chan types.BuildResult, 1)}

	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return types.FailedResult(BackendName, "a sandbox build is already in flight")
	}
	b.pending = pending
	b.mu.Unlock()

	start := time.Now()
	payload, err := json.Marshal(sandboxRequest{
		EntryCode:      req.EntryCode,
		EntryFile:      req.Framework.EntryFileName(),
		Loader:         loaderFor(req.Framework),
		ExtraFiles:     req.ExtraFiles,
		JSXRuntimeMode: req.JSXRuntimeMode,
		Defines:        req.Defines,
		Minify:         req.Minify,
	})
	if err != nil {
		b.takePending()
		return types.FailedResult(BackendName, fmt.Sprintf("serializing build request: %v", err))
	}

	// Fire and forget: the page posts the result back through the exposed
	// callback, never through this eval's return value.
	invoke := fmt.Sprintf(`() => { window.__sceneforgeBuild(%s); return true; }`, mustJSON(string(payload)))
	if err := b.host.Run(invoke); err != nil {
		b.takePending()
		return types.FailedResult(BackendName, fmt.Sprintf("invoking sandbox compiler: %v", err))
	}

	timer := time.NewTimer(b.cfg.BuildTimeout)
	defer timer.Stop()

	select {
	case result := <-pending.ch:
		result.DurationMs = int(time.Since(start).Milliseconds())
		return result
	case <-timer.C:
		if b.takePending() == nil {
			// The success path won the race after the timer fired; its
			// result is already buffered.
			result := <-pending.ch
			result.DurationMs = int(time.Since(start).Milliseconds())
			return result
		}
		return types.BuildResult{
			Success:     false,
			Errors:      []string{fmt.Sprintf("sandbox build timed out after %s", b.cfg.BuildTimeout)},
			DurationMs:  int(time.Since(start).Milliseconds()),
			BackendName: BackendName,
		}
	case <-ctx.Done():
		if b.takePending() == nil {
			result := <-pending.ch
			result.DurationMs = int(time.Since(start).Milliseconds())
			return result
		}
		return types.BuildResult{
			Success:     false,
			Errors:      []string{"sandbox build cancelled"},
			DurationMs:  int(time.Since(start).Milliseconds()),
			BackendName: BackendName,
		}
	}
}

// handleResult is the host-side continuation fulfilled from the sandbox's
// message channel. A nil slot means the timeout path already resolved; the
// late arrival is dropped silently.
func (b *Backend) handleResult(payload []byte) {
	pending := b.takePending()
	if pending == nil {
		return
	}

	var resp sandboxResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		pending.ch <- types.FailedResult(BackendName, fmt.Sprintf("malformed sandbox response: %v", err))
		return
	}

	result := types.BuildResult{
		Success:     resp.Success,
		Warnings:    resp.Warnings,
		Errors:      resp.Errors,
		DurationMs:  resp.DurationMs,
		BackendName: BackendName,
	}
	if resp.Success {
		result.BundleCode = resp.Code
		result.Bytes = len(resp.Code)
	}
	pending.ch <- result
}

// takePending atomically clears and returns the pending slot.
func (b *Backend) takePending() *pendingBuild {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending
	b.pending = nil
	return p
}

// Close tears down the sandbox host.
func (b *Backend) Close() error {
	return b.host.Close()
}

var _ backend.Backend = (*Backend)(nil)
