package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mem/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) has(kind Kind, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind && ev.Path == path {
			return true
		}
	}
	return false
}

func (r *recorder) waitFor(t *testing.T, kind Kind, path string) {
	t.Helper()
	require.Eventually(t, func() bool { return r.has(kind, path) }, 5*time.Second, 20*time.Millisecond,
		"expected %s:%s", kind, path)
}

func TestWatchLifecycle(t *testing.T) {
	store := testutil.TestStore(t)
	testutil.WriteMem(t, store, "existing", "Existing", "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, store, testutil.Logger(), 50*time.Millisecond, rec.record) }()
	time.Sleep(100 * time.Millisecond)

	testutil.WriteMem(t, store, "fresh", "Fresh", "new")
	rec.waitFor(t, Created, "fresh")

	testutil.WriteMem(t, store, "existing", "Existing v2", "y")
	rec.waitFor(t, Updated, "existing")

	require.NoError(t, store.Delete("fresh"))
	rec.waitFor(t, Deleted, "fresh")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchNewDirectory(t *testing.T) {
	store := testutil.TestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go func() { _ = Watch(ctx, store, testutil.Logger(), 50*time.Millisecond, rec.record) }()
	time.Sleep(100 * time.Millisecond)

	testutil.WriteMem(t, store, "a/b/deep", "Deep", "x")
	rec.waitFor(t, Created, "a/b/deep")

	ev := func() Event {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		for _, e := range rec.events {
			if e.Path == "a/b/deep" {
				return e
			}
		}
		return Event{}
	}()
	require.NotNil(t, ev.Mem)
	assert.Equal(t, "Deep", ev.Mem.Title)
}

func TestWatchArchiveIsNotDeletion(t *testing.T) {
	store := testutil.TestStore(t)
	testutil.WriteMem(t, store, "old", "Old", "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go func() { _ = Watch(ctx, store, testutil.Logger(), 100*time.Millisecond, rec.record) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, store.Archive("old", false))
	rec.waitFor(t, Archived, "old")

	// Let the debounce window pass.
	time.Sleep(300 * time.Millisecond)
	assert.False(t, rec.has(Deleted, "old"))
}

func TestWatchIgnoresHiddenAndCorrupt(t *testing.T) {
	store := testutil.TestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go func() { _ = Watch(ctx, store, testutil.Logger(), 50*time.Millisecond, rec.record) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), ".hidden.md"), []byte("---\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "bad.md"), []byte("no header"), 0o644))
	testutil.WriteMem(t, store, "good", "Good", "x")
	rec.waitFor(t, Created, "good")

	assert.False(t, rec.has(Created, "bad"))
	assert.False(t, rec.has(Created, ".hidden"))
}

func TestIgnored(t *testing.T) {
	assert.True(t, ignored(".git/x.md"))
	assert.True(t, ignored("a/.doc.md.123.tmp"))
	assert.True(t, ignored("draft.tmp"))
	assert.False(t, ignored("a/b.md"))
	assert.False(t, ignored("archive/a.md"))
}
