package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu      sync.Mutex
	changes map[string]string
}

func newCapture() *capture {
	return &capture{changes: make(map[string]string)}
}

func (c *capture) handle(path, content string) {
	c.mu.Lock()
	c.changes[path] = content
	c.mu.Unlock()
}

func (c *capture) get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.changes[path]
	return content, ok
}

func waitForChange(t *testing.T, c *capture, path string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if content, ok := c.get(path); ok {
			return content
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no change observed for %s", path)
	return ""
}

func TestWatcher_ForwardsWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := New(nil)
	require.NoError(t, err)
	defer w.Stop()

	cap := newCapture()
	w.AddFilter(SceneSourceFilter)
	w.AddHandler(cap.handle)
	require.NoError(t, w.AddPath(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	path := filepath.Join(dir, "scene.ts")
	require.NoError(t, os.WriteFile(path, []byte("const scene = 1;"), 0o644))

	content := waitForChange(t, cap, path)
	assert.Equal(t, "const scene = 1;", content)
}

func TestWatcher_FiltersRejectNonSceneFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New(nil)
	require.NoError(t, err)
	defer w.Stop()

	cap := newCapture()
	w.AddFilter(SceneSourceFilter)
	w.AddHandler(cap.handle)
	require.NoError(t, w.AddPath(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	ignored := filepath.Join(dir, "notes.txt")
	watched := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(ignored, []byte("ignore me"), 0o644))
	require.NoError(t, os.WriteFile(watched, []byte("const x = 1;"), 0o644))

	waitForChange(t, cap, watched)
	_, ok := cap.get(ignored)
	assert.False(t, ok, "filtered file must not reach handlers")
}

func TestWatcher_AddRecursive(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "scenes", "forest")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	hidden := filepath.Join(dir, ".git")
	require.NoError(t, os.MkdirAll(hidden, 0o755))

	w, err := New(nil)
	require.NoError(t, err)
	defer w.Stop()

	cap := newCapture()
	w.AddFilter(SceneSourceFilter)
	w.AddFilter(NoHiddenFilter)
	w.AddHandler(cap.handle)
	require.NoError(t, w.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	path := filepath.Join(nested, "App.tsx")
	require.NoError(t, os.WriteFile(path, []byte("export default null;"), 0o644))
	waitForChange(t, cap, path)

	// Hidden directories are not watched; nothing should arrive for them.
	hiddenFile := filepath.Join(hidden, "index.js")
	require.NoError(t, os.WriteFile(hiddenFile, []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	_, ok := cap.get(hiddenFile)
	assert.False(t, ok)
}

func TestSceneSourceFilter(t *testing.T) {
	assert.True(t, SceneSourceFilter("scene.ts"))
	assert.True(t, SceneSourceFilter("App.tsx"))
	assert.True(t, SceneSourceFilter("main.js"))
	assert.True(t, SceneSourceFilter("widget.jsx"))
	assert.True(t, SceneSourceFilter("index.html"))
	assert.False(t, SceneSourceFilter("README.md"))
	assert.False(t, SceneSourceFilter("styles.css"))
}

func TestNoHiddenFilter(t *testing.T) {
	assert.True(t, NoHiddenFilter("src/scene.ts"))
	assert.True(t, NoHiddenFilter("./src/scene.ts"))
	assert.False(t, NoHiddenFilter(".env"))
	assert.False(t, NoHiddenFilter("src/.cache/scene.ts"))
}

func TestNoNodeModulesFilter(t *testing.T) {
	assert.True(t, NoNodeModulesFilter("src/scene.ts"))
	assert.False(t, NoNodeModulesFilter("proj/node_modules/three/index.js"))
}
