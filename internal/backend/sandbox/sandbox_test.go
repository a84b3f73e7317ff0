package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sceneforge/internal/config"
	"sceneforge/internal/types"
)

// fakeHost stands in for the headless browser. The onInvoke hook fires for
// every compile invocation script so tests can deliver responses through the
// registered result callback.
type fakeHost struct {
	startErr error

	mu       sync.Mutex
	ready    bool
	onResult func([]byte)
	onInvoke func(js string)
	runs     []string
}

func (h *fakeHost) Start(context.Context) error { return h.startErr }

func (h *fakeHost) EvalBool(string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready, nil
}

func (h *fakeHost) Run(js string) error {
	h.mu.Lock()
	h.runs = append(h.runs, js)
	invoke := h.onInvoke
	h.mu.Unlock()
	if invoke != nil && strings.Contains(js, "window.__sceneforgeBuild(") && !strings.Contains(js, "async") {
		invoke(js)
	}
	return nil
}

func (h *fakeHost) OnResult(fn func([]byte)) error {
	h.mu.Lock()
	h.onResult = fn
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) Close() error { return nil }

func (h *fakeHost) deliver(t *testing.T, resp sandboxResponse) {
	t.Helper()
	h.mu.Lock()
	fn := h.onResult
	h.mu.Unlock()
	require.NotNil(t, fn, "result callback not registered")
	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	fn(payload)
}

func testSandboxConfig() config.SandboxConfig {
	return config.SandboxConfig{
		CompilerURLs:      []string{"https://example.invalid/esbuild.js"},
		LoadTimeout:       50 * time.Millisecond,
		ReadyPollInterval: time.Millisecond,
		ReadyTimeout:      100 * time.Millisecond,
		BuildTimeout:      2 * time.Second,
		CacheSize:         8,
	}
}

func newReadyBackend(t *testing.T) (*Backend, *fakeHost) {
	t.Helper()
	host := &fakeHost{ready: true}
	b := newWithHost(host, testSandboxConfig(), nil, nil)
	t.Cleanup(func() { _ = b.Close() })

	select {
	case <-b.readyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("backend never finished initializing")
	}
	return b, host
}

func TestBuild_CompiledPath(t *testing.T) {
	b, host := newReadyBackend(t)
	host.onInvoke = func(string) {
		go host.deliver(t, sandboxResponse{
			Success:    true,
			Code:       "console.log('scene')",
			Warnings:   []string{"minor"},
			DurationMs: 12,
		})
	}

	req := types.NewBuildRequest(types.FrameworkReactThreeFiber, "export default function App() {}")
	res := b.Build(context.Background(), req)

	require.True(t, res.Success)
	assert.Equal(t, "console.log('scene')", res.BundleCode)
	assert.Equal(t, len(res.BundleCode), res.Bytes)
	assert.Equal(t, []string{"minor"}, res.Warnings)
	assert.Equal(t, BackendName, res.BackendName)
	assert.False(t, res.FromCache)
}

func TestBuild_CompileError(t *testing.T) {
	b, host := newReadyBackend(t)
	host.onInvoke = func(string) {
		go host.deliver(t, sandboxResponse{
			Success: false,
			Errors:  []string{"Unexpected token"},
		})
	}

	res := b.Build(context.Background(), types.NewBuildRequest(types.FrameworkBabylon, "const x:"))
	require.False(t, res.Success)
	assert.Equal(t, "Unexpected token", res.FirstError())
	assert.Empty(t, res.BundleCode)
}

func TestBuild_CacheHit(t *testing.T) {
	b, host := newReadyBackend(t)
	var invokes int
	host.onInvoke = func(string) {
		host.mu.Lock()
		invokes++
		host.mu.Unlock()
		go host.deliver(t, sandboxResponse{Success: true, Code: "bundle", DurationMs: 30})
	}

	req := types.NewBuildRequest(types.FrameworkBabylon, "const scene = 1")
	first := b.Build(context.Background(), req)
	require.True(t, first.Success)
	require.False(t, first.FromCache)

	second := b.Build(context.Background(), req)
	require.True(t, second.Success)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.BundleCode, second.BundleCode)
	assert.Equal(t, first.Bytes, second.Bytes, "cached result keeps original measurements")

	host.mu.Lock()
	defer host.mu.Unlock()
	assert.Equal(t, 1, invokes, "cache hit must not reach the compiler")
}

func TestBuild_FailuresNotCached(t *testing.T) {
	b, host := newReadyBackend(t)
	var invokes int
	host.onInvoke = func(string) {
		host.mu.Lock()
		invokes++
		host.mu.Unlock()
		go host.deliver(t, sandboxResponse{Success: false, Errors: []string{"boom"}})
	}

	req := types.NewBuildRequest(types.FrameworkBabylon, "const broken")
	b.Build(context.Background(), req)
	b.Build(context.Background(), req)

	host.mu.Lock()
	defer host.mu.Unlock()
	assert.Equal(t, 2, invokes)
}

func TestBuild_Timeout(t *testing.T) {
	host := &fakeHost{ready: true}
	cfg := testSandboxConfig()
	cfg.BuildTimeout = 30 * time.Millisecond
	b := newWithHost(host, cfg, nil, nil)
	t.Cleanup(func() { _ = b.Close() })
	<-b.readyCh

	// No response ever arrives.
	res := b.Build(context.Background(), types.NewBuildRequest(types.FrameworkBabylon, "const x = 1"))
	require.False(t, res.Success)
	assert.Contains(t, res.FirstError(), "timed out")

	// A response arriving after the timeout resolved is dropped silently and
	// must not disturb the next build.
	host.deliver(t, sandboxResponse{Success: true, Code: "late"})

	host.onInvoke = func(string) {
		go host.deliver(t, sandboxResponse{Success: true, Code: "fresh"})
	}
	next := b.Build(context.Background(), types.NewBuildRequest(types.FrameworkBabylon, "const y = 2"))
	require.True(t, next.Success)
	assert.Equal(t, "fresh", next.BundleCode)
}

func TestBuild_ContextCancelled(t *testing.T) {
	b, _ := newReadyBackend(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := b.Build(ctx, types.NewBuildRequest(types.FrameworkBabylon, "const x = 1"))
	require.False(t, res.Success)
	assert.Contains(t, res.FirstError(), "cancelled")
}

func TestBuild_SecondInFlightRejected(t *testing.T) {
	b, host := newReadyBackend(t)

	var release sync.WaitGroup
	release.Add(1)
	host.onInvoke = func(string) {
		go func() {
			release.Wait()
			host.deliver(t, sandboxResponse{Success: true, Code: "bundle"})
		}()
	}

	first := make(chan types.BuildResult, 1)
	go func() {
		first <- b.Build(context.Background(), types.NewBuildRequest(types.FrameworkBabylon, "const a = 1"))
	}()

	// Wait until the first build has installed its continuation.
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.mu.Lock()
		installed := b.pending != nil
		b.mu.Unlock()
		if installed {
			break
		}
		require.True(t, time.Now().Before(deadline), "first build never installed its continuation")
		time.Sleep(time.Millisecond)
	}

	second := b.Build(context.Background(), types.NewBuildRequest(types.FrameworkBabylon, "const b = 2"))
	require.False(t, second.Success)
	assert.Contains(t, second.FirstError(), "already in flight")

	release.Done()
	res := <-first
	assert.True(t, res.Success)
}

func TestBuild_FallbackWhenHostFailsToStart(t *testing.T) {
	host := &fakeHost{startErr: errors.New("no browser")}
	b := newWithHost(host, testSandboxConfig(), nil, nil)
	t.Cleanup(func() { _ = b.Close() })

	res := b.Build(context.Background(), types.NewBuildRequest(types.FrameworkReactThreeFiber,
		"import { Canvas } from '@react-three/fiber';\nexport default function App() { return null; }"))

	require.True(t, res.Success, "fallback never fails outright")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "fallback transform")
}

func TestBuild_FallbackWhenCompilerNeverReady(t *testing.T) {
	host := &fakeHost{ready: false}
	cfg := testSandboxConfig()
	cfg.ReadyTimeout = 20 * time.Millisecond
	b := newWithHost(host, cfg, nil, nil)
	t.Cleanup(func() { _ = b.Close() })

	res := b.Build(context.Background(), types.NewBuildRequest(types.FrameworkBabylon, "const scene = 1"))
	require.True(t, res.Success)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "fallback transform")
}

func TestIsAvailable_AlwaysTrue(t *testing.T) {
	host := &fakeHost{startErr: errors.New("no browser")}
	b := newWithHost(host, testSandboxConfig(), nil, nil)
	t.Cleanup(func() { _ = b.Close() })
	assert.True(t, b.IsAvailable())
}
