package classifier

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/watcher"
)

func TestClassify_AcceptsClassFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classes", "com", "example", "Widget.class")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("body"), 0o600))

	c := New(DefaultConfig())
	event, ok := c.Classify(watcher.RawEvent{Op: watcher.OpCreate, Root: dir, Path: path}, "corr-1")

	require.True(t, ok)
	assert.Equal(t, domain.ArtifactCreated, event.Kind)
	assert.Equal(t, "com.example.Widget", event.Path.ClassName)
}

func TestClassify_RejectsNonCandidate(t *testing.T) {
	c := New(DefaultConfig())
	_, ok := c.Classify(watcher.RawEvent{Op: watcher.OpCreate, Root: "/src", Path: "/src/Widget.txt"}, "corr-2")
	assert.False(t, ok)
}

func TestClassify_RejectsSyntheticInnerClass(t *testing.T) {
	c := New(DefaultConfig())
	_, ok := c.Classify(watcher.RawEvent{Op: watcher.OpCreate, Root: "/src", Path: "/src/Widget$1.class"}, "corr-3")
	assert.False(t, ok)
}

// TestSettleCreated_RequiresConfiguredConsecutiveStableReads pins the
// write-settling contract from §4.2: a file is only declared settled once
// its size has matched across SettlingAttempts consecutive reads, not after
// a fixed two reads regardless of the configured value. The file here holds
// steady for two reads, then grows again before the configured attempt
// count is reached — a settler that stopped at two matches would report the
// stale, pre-growth size.
func TestSettleCreated_RequiresConfiguredConsecutiveStableReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Widget.class")
	require.NoError(t, os.WriteFile(path, make([]byte, 10), 0o600))

	c := New(Config{
		ArtifactSuffix:   ".class",
		SettlingAttempts: 4,
		SettlingDelay:    15 * time.Millisecond,
	})

	go func() {
		time.Sleep(35 * time.Millisecond)
		_ = os.WriteFile(path, make([]byte, 20), 0o600)
	}()

	size := c.settleCreated(path)
	assert.Equal(t, int64(20), size)
}
