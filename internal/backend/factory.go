package backend

import (
	"context"
	"sync"
	"time"

	"sceneforge/internal/logging"
)

// probeTimeout bounds how long the availability probe waits for worker
// startup before declaring the native backend unavailable.
const probeTimeout = 15 * time.Second

// Factory vends backend singletons and owns the native-worker availability
// probe. The probe runs exactly once, asynchronously; while it is
// outstanding the native backend reads as unavailable so selection falls
// back to the sandbox. RefreshAvailability is the only sanctioned retry.
type Factory struct {
	logger logging.Logger

	// newSandbox and newWorker construct the singletons lazily. Injected so
	// tests can substitute fakes; production wiring installs the real
	// constructors.
	newSandbox func() Backend
	newWorker  func() Backend

	mu       sync.Mutex
	sandbox  Backend
	worker   Backend
	probed   bool
	probing  bool
	nativeOK bool
}

// NewFactory creates a factory over the given backend constructors.
func NewFactory(logger logging.Logger, newSandbox, newWorker func() Backend) *Factory {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Factory{
		logger:     logger.WithComponent("backend-factory"),
		newSandbox: newSandbox,
		newWorker:  newWorker,
	}
}

// Select returns the backend for a new build: native if the probe has
// resolved available, sandbox otherwise. Selection happens at request time;
// a build never migrates backends after it starts.
func (f *Factory) Select() Backend {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ensureProbeLocked()

	if f.probed && f.nativeOK && f.worker != nil {
		return f.worker
	}
	return f.sandboxLocked()
}

// NativeAvailable reports the probe's last answer. Conservative default:
// false until the probe resolves.
func (f *Factory) NativeAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureProbeLocked()
	return f.probed && f.nativeOK
}

// RefreshAvailability clears the probed flag and re-triggers the probe,
// constructing a fresh native backend. This is the only retry path for a
// worker whose startup failed.
func (f *Factory) RefreshAvailability() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.probing {
		return
	}
	f.probed = false
	f.nativeOK = false
	f.worker = nil
	f.ensureProbeLocked()
}

// ensureProbeLocked starts the availability probe if it has not run yet.
// Never blocks the caller; the probe resolves on its own goroutine.
func (f *Factory) ensureProbeLocked() {
	if f.probed || f.probing || f.newWorker == nil {
		return
	}
	f.probing = true

	go func() {
		worker := f.newWorker()

		available := false
		if worker != nil {
			if waiter, ok := worker.(StartupWaiter); ok {
				ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
				available = waiter.WaitStartup(ctx)
				cancel()
			} else {
				available = worker.IsAvailable()
			}
		}

		f.mu.Lock()
		f.probing = false
		f.probed = true
		f.nativeOK = available
		if available {
			f.worker = worker
		}
		f.mu.Unlock()

		f.logger.Info(context.Background(), "native worker probe resolved", "available", available)
	}()
}

func (f *Factory) sandboxLocked() Backend {
	if f.sandbox == nil && f.newSandbox != nil {
		f.sandbox = f.newSandbox()
	}
	return f.sandbox
}
