package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sceneforge/internal/types"
)

// stubBackend satisfies Backend with fixed answers. When startup is non-nil
// it also satisfies StartupWaiter, resolving to the channel's value.
type stubBackend struct {
	name      string
	available bool
	startup   chan bool
}

func (s *stubBackend) Name() string      { return s.name }
func (s *stubBackend) IsAvailable() bool { return s.available }

func (s *stubBackend) Build(context.Context, types.BuildRequest) types.BuildResult {
	return types.BuildResult{Success: true, BackendName: s.name}
}

func (s *stubBackend) WaitStartup(ctx context.Context) bool {
	select {
	case ok := <-s.startup:
		return ok
	case <-ctx.Done():
		return false
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestFactory_SandboxOnlyWhenNoWorkerConstructor(t *testing.T) {
	sandbox := &stubBackend{name: SandboxName, available: true}
	f := NewFactory(nil, func() Backend { return sandbox }, nil)

	assert.Same(t, Backend(sandbox), f.Select())
	assert.False(t, f.NativeAvailable())
}

func TestFactory_ConservativeDefaultBeforeProbeResolves(t *testing.T) {
	sandbox := &stubBackend{name: SandboxName, available: true}
	worker := &stubBackend{name: NativeWorkerName, available: true, startup: make(chan bool)}
	f := NewFactory(nil, func() Backend { return sandbox }, func() Backend { return worker })

	// Probe is still outstanding: selection must fall back to the sandbox.
	assert.Equal(t, SandboxName, f.Select().Name())
	assert.False(t, f.NativeAvailable())

	worker.startup <- true
	waitFor(t, f.NativeAvailable)
	assert.Equal(t, NativeWorkerName, f.Select().Name())
}

func TestFactory_ProbeFailureStaysOnSandbox(t *testing.T) {
	sandbox := &stubBackend{name: SandboxName, available: true}
	worker := &stubBackend{name: NativeWorkerName, startup: make(chan bool)}
	f := NewFactory(nil, func() Backend { return sandbox }, func() Backend { return worker })

	f.Select()
	worker.startup <- false

	// Probe resolved unavailable; no retry happens on its own.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, f.NativeAvailable())
	assert.Equal(t, SandboxName, f.Select().Name())
}

func TestFactory_ProbeRunsOnce(t *testing.T) {
	var constructions atomic.Int32
	sandbox := &stubBackend{name: SandboxName, available: true}
	worker := &stubBackend{name: NativeWorkerName, startup: make(chan bool, 1)}
	worker.startup <- true

	f := NewFactory(nil, func() Backend { return sandbox }, func() Backend {
		constructions.Add(1)
		return worker
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Select()
		}()
	}
	wg.Wait()

	waitFor(t, f.NativeAvailable)
	assert.Equal(t, int32(1), constructions.Load())
}

func TestFactory_RefreshAvailabilityRetriesProbe(t *testing.T) {
	var constructions atomic.Int32
	sandbox := &stubBackend{name: SandboxName, available: true}

	outcomes := make(chan bool, 2)
	outcomes <- false
	outcomes <- true

	f := NewFactory(nil, func() Backend { return sandbox }, func() Backend {
		constructions.Add(1)
		return &stubBackend{name: NativeWorkerName, startup: outcomes}
	})

	f.Select()
	waitFor(t, func() bool { return constructions.Load() == 1 && !f.NativeAvailable() })

	f.RefreshAvailability()
	waitFor(t, f.NativeAvailable)

	require.Equal(t, int32(2), constructions.Load())
	assert.Equal(t, NativeWorkerName, f.Select().Name())
}

func TestFactory_SandboxSingleton(t *testing.T) {
	var constructions atomic.Int32
	f := NewFactory(nil, func() Backend {
		constructions.Add(1)
		return &stubBackend{name: SandboxName, available: true}
	}, nil)

	first := f.Select()
	second := f.Select()
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), constructions.Load())
}
