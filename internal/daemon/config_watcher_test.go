package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcherTriggersReload(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "pagepress.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("project:\n  name: docs\n"), 0o644))

	var reloads int32
	cw, err := NewConfigWatcher(configPath, func() { atomic.AddInt32(&reloads, 1) })
	require.NoError(t, err)
	cw.debounceTime = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cw.Start(ctx))
	defer cw.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte("project:\n  name: other\n"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&reloads) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&reloads), int32(1))
}

func TestConfigWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "pagepress.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("x"), 0o644))

	var reloads int32
	cw, err := NewConfigWatcher(configPath, func() { atomic.AddInt32(&reloads, 1) })
	require.NoError(t, err)
	cw.debounceTime = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cw.Start(ctx))
	defer cw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("y"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&reloads))
}

func TestConfigWatcherStopIdempotent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "pagepress.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("x"), 0o644))

	cw, err := NewConfigWatcher(configPath, func() {})
	require.NoError(t, err)
	require.NoError(t, cw.Start(context.Background()))

	cw.Stop()
	cw.Stop()
}
