// Package worker implements the native worker backend: a persistent
// out-of-process bundler driven over a correlation-id message protocol, with
// real caching, usage statistics and warm-up.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"sceneforge/internal/backend"
	"sceneforge/internal/config"
	"sceneforge/internal/errors"
	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// BackendName identifies this backend in results and logs.
const BackendName = backend.NativeWorkerName

// warmupSource is the trivial entry used to pay first-build initialization
// cost; the result is discarded except for logging.
const warmupSource = "const scene = null;\n"

// Backend drives the long-lived worker process. Startup is asynchronous; if
// it fails, the backend reports unavailable for its whole lifetime. Retry
// is the factory's job via a fresh instance.
type Backend struct {
	cfg    config.WorkerConfig
	logger logging.Logger

	mu        sync.Mutex
	stdin     io.Writer
	pending   map[string]chan response
	available bool
	closed    bool

	// startDone closes when startup resolves either way.
	startDone chan struct{}
	startErr  error

	cmd      *exec.Cmd
	cancel   context.CancelFunc
	readerWg sync.WaitGroup
}

// New spawns the worker process and kicks off asynchronous startup.
func New(cfg config.WorkerConfig, logger logging.Logger) *Backend {
	if logger == nil {
		logger = logging.Nop()
	}
	b := &Backend{
		cfg:       cfg,
		logger:    logger.WithComponent("worker-backend"),
		pending:   make(map[string]chan response),
		startDone: make(chan struct{}),
	}
	go b.start()
	return b
}

// newWithPipes wires the backend to an in-process transport. Tests use it to
// stand in a fake worker without spawning a process.
func newWithPipes(stdin io.Writer, stdout io.Reader, logger logging.Logger, cfg config.WorkerConfig) *Backend {
	if logger == nil {
		logger = logging.Nop()
	}
	b := &Backend{
		cfg:       cfg,
		logger:    logger.WithComponent("worker-backend"),
		pending:   make(map[string]chan response),
		startDone: make(chan struct{}),
		stdin:     stdin,
		available: true,
	}
	b.readerWg.Add(1)
	go b.readLoop(stdout)
	close(b.startDone)
	return b
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return BackendName }

// IsAvailable implements backend.Backend; non-blocking, reflects whether
// startup succeeded and the worker handle is live.
func (b *Backend) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available && !b.closed
}

// WaitStartup blocks until startup resolves or ctx expires, then reports
// availability. Used by the factory probe.
func (b *Backend) WaitStartup(ctx context.Context) bool {
	select {
	case <-b.startDone:
		return b.IsAvailable()
	case <-ctx.Done():
		return false
	}
}

func (b *Backend) start() {
	defer close(b.startDone)
	ctx := context.Background()

	if len(b.cfg.Command) == 0 {
		b.startErr = errors.New(errors.ErrorTypeWorker, errors.ErrCodeWorkerUnavailable, "no worker command configured")
		b.logger.Warn(ctx, b.startErr, "worker startup skipped")
		return
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, b.cfg.Command[0], b.cfg.Command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		b.startErr = errors.WrapWorker(err, errors.ErrCodeWorkerUnavailable, "opening worker stdin")
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		b.startErr = errors.WrapWorker(err, errors.ErrCodeWorkerUnavailable, "opening worker stdout")
		return
	}
	if err := cmd.Start(); err != nil {
		cancel()
		b.startErr = errors.WrapWorker(err, errors.ErrCodeWorkerUnavailable, "spawning worker process")
		b.logger.Warn(ctx, b.startErr, "worker unavailable", "command", b.cfg.Command[0])
		return
	}

	b.mu.Lock()
	b.cmd = cmd
	b.cancel = cancel
	b.stdin = stdin
	b.mu.Unlock()

	b.readerWg.Add(1)
	go b.readLoop(stdout)

	// Handshake: one ping bounded by the startup timeout.
	pingCtx, pingCancel := context.WithTimeout(ctx, b.cfg.StartupTimeout)
	defer pingCancel()
	if _, err := b.roundTrip(pingCtx, request{Cmd: cmdPing}); err != nil {
		b.startErr = errors.WrapWorker(err, errors.ErrCodeInitTimeout, "worker did not answer startup ping")
		b.logger.Warn(ctx, b.startErr, "worker unavailable")
		cancel()
		return
	}

	b.mu.Lock()
	b.available = true
	b.mu.Unlock()
	b.logger.Info(ctx, "worker started", "command", b.cfg.Command[0])
}

// readLoop scans stdout for JSON-lines responses and resolves pending
// requests by correlation id. The pending entry is removed before the send,
// which makes duplicate deliveries no-ops.
func (b *Backend) readLoop(stdout io.Reader) {
	defer b.readerWg.Done()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			b.logger.Warn(context.Background(), err, "dropping malformed worker message")
			continue
		}

		b.mu.Lock()
		ch, ok := b.pending[resp.MessageID]
		if ok {
			delete(b.pending, resp.MessageID)
		}
		b.mu.Unlock()

		if !ok {
			// Unknown or replayed correlation id.
			continue
		}
		ch <- resp
	}

	// Worker went away; fail anything still waiting.
	b.mu.Lock()
	b.available = false
	pending := b.pending
	b.pending = make(map[string]chan response)
	b.mu.Unlock()
	for id, ch := range pending {
		ch <- response{MessageID: id, Status: statusError, Error: "worker process exited"}
	}
}

// roundTrip sends one request and waits for its correlated response.
func (b *Backend) roundTrip(ctx context.Context, req request) (response, error) {
	req.MessageID = uuid.NewString()

	ch := make(chan response, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return response{}, errors.New(errors.ErrorTypeWorker, errors.ErrCodeWorkerUnavailable, "worker backend closed")
	}
	stdin := b.stdin
	b.pending[req.MessageID] = ch
	b.mu.Unlock()

	if stdin == nil {
		b.dropPending(req.MessageID)
		return response{}, errors.New(errors.ErrorTypeWorker, errors.ErrCodeWorkerUnavailable, "worker not running")
	}

	line, err := json.Marshal(req)
	if err != nil {
		b.dropPending(req.MessageID)
		return response{}, errors.Wrap(err, errors.ErrorTypeWorker, errors.ErrCodeProtocol, "encoding worker request")
	}
	line = append(line, '\n')
	if _, err := stdin.Write(line); err != nil {
		b.dropPending(req.MessageID)
		return response{}, errors.WrapWorker(err, errors.ErrCodeWorkerUnavailable, "writing to worker")
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		b.dropPending(req.MessageID)
		return response{}, errors.Wrap(ctx.Err(), errors.ErrorTypeWorker, errors.ErrCodeCompileTimeout, "worker request timed out")
	}
}

func (b *Backend) dropPending(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Build implements backend.Backend.
func (b *Backend) Build(ctx context.Context, req types.BuildRequest) types.BuildResult {
	if !b.IsAvailable() {
		return types.FailedResult(BackendName, "native worker is not available")
	}

	// Merge the entry file with the extra files into one map, keyed by the
	// framework's virtual entry path.
	files := make(map[string]string, len(req.ExtraFiles)+1)
	for path, content := range req.ExtraFiles {
		files[path] = content
	}
	entryPath := req.Framework.EntryFileName()
	files[entryPath] = req.EntryCode

	reqCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	resp, err := b.roundTrip(reqCtx, request{
		Cmd:       cmdBuild,
		Framework: req.Framework.String(),
		EntryPath: entryPath,
		Files:     files,
		Defines:   req.Defines,
		Minify:    req.Minify,
	})
	if err != nil {
		return types.FailedResult(BackendName, err.Error())
	}

	if resp.Status != statusOK {
		result := types.BuildResult{
			Success:     false,
			Warnings:    resp.Warnings,
			Errors:      resp.Errors,
			DurationMs:  resp.DurationMs,
			BackendName: BackendName,
		}
		if len(result.Errors) == 0 {
			msg := resp.Error
			if msg == "" {
				msg = "worker reported an unspecified build failure"
			}
			result.Errors = []string{msg}
		}
		return result
	}

	return types.BuildResult{
		Success:     true,
		BundleCode:  resp.Bundle,
		Warnings:    resp.Warnings,
		Bytes:       resp.Bytes,
		DurationMs:  resp.DurationMs,
		FromCache:   resp.FromCache,
		BackendName: BackendName,
	}
}

// ClearCache evicts every cached build artifact in the worker.
func (b *Backend) ClearCache(ctx context.Context) error {
	resp, err := b.roundTrip(ctx, request{Cmd: cmdClearCache})
	if err != nil {
		return err
	}
	if resp.Status != statusOK {
		return errors.New(errors.ErrorTypeWorker, errors.ErrCodeProtocol, "clear-cache failed: "+resp.Error)
	}
	return nil
}

// Stats returns the worker's aggregate usage counters.
func (b *Backend) Stats(ctx context.Context) (backend.WorkerStats, error) {
	resp, err := b.roundTrip(ctx, request{Cmd: cmdStats})
	if err != nil {
		return backend.WorkerStats{}, err
	}
	if resp.Status != statusOK {
		return backend.WorkerStats{}, errors.New(errors.ErrorTypeWorker, errors.ErrCodeProtocol, "stats failed: "+resp.Error)
	}
	return backend.WorkerStats{
		TotalBuilds:    resp.TotalBuilds,
		CacheHits:      resp.CacheHits,
		AverageBuildMs: resp.AverageBuildMs,
		LastBuildMs:    resp.LastBuildMs,
		CacheSizeBytes: resp.CacheSizeBytes,
		UptimeSeconds:  resp.UptimeSeconds,
	}, nil
}

// Warmup issues one trivial build to pay first-build initialization cost.
// The result is discarded except for logging.
func (b *Backend) Warmup(ctx context.Context) error {
	req := types.NewBuildRequest(types.FrameworkReactThreeFiber, warmupSource)
	req.Minify = false

	start := time.Now()
	result := b.Build(ctx, req)
	if !result.Success {
		return errors.New(errors.ErrorTypeWorker, errors.ErrCodeCompileError,
			fmt.Sprintf("warmup build failed: %s", result.FirstError()))
	}
	b.logger.Info(ctx, "worker warmed up", "duration", time.Since(start))
	return nil
}

// Close terminates the worker process and the reader loop.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.available = false
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.readerWg.Wait()
	return nil
}

// Interface conformance.
var (
	_ backend.Backend       = (*Backend)(nil)
	_ backend.CacheAdmin    = (*Backend)(nil)
	_ backend.StatsProvider = (*Backend)(nil)
	_ backend.Warmer        = (*Backend)(nil)
	_ backend.StartupWaiter = (*Backend)(nil)
)
