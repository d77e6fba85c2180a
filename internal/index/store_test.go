package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.LoadCurrent()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := testSnapshot(t)
	require.NoError(t, store.Save(snap))

	loaded, err := store.LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, snap.Version(), loaded.Version())
	assert.Equal(t, snap.Chunks(), loaded.Chunks())

	q := []float64{0.2, 0.9, 0.1}
	want, err := snap.Search(q, 4, nil)
	require.NoError(t, err)
	got, err := loaded.Search(q, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Error(t, store.Save(snap), "saving the same version twice")
}

func TestStorePrune(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	versions := []string{"v1", "v2", "v3"}
	for _, v := range versions {
		require.NoError(t, store.Save(testSnapshotVersion(t, v)))
	}
	listed, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, versions, listed)

	removed, err := store.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	current, err := store.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, "v3", current)
	_, err = os.Stat(filepath.Join(store.Root(), "snap-v1"))
	assert.True(t, os.IsNotExist(err))
}

func TestReload(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	idx := New()

	_, err = Reload(store, idx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Save(testSnapshotVersion(t, "v1")))
	swapped, err := Reload(store, idx)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, "v1", idx.Snapshot().Version())

	swapped, err = Reload(store, idx)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestWatchSwapsOnPublish(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	idx := New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, store, idx, nil) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, store.Save(testSnapshotVersion(t, "v1")))

	assert.Eventually(t, func() bool {
		return idx.Snapshot().Version() == "v1"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func testSnapshotVersion(t *testing.T, version string) *Snapshot {
	t.Helper()
	b := NewBuilder()
	for _, c := range testSnapshot(t).Chunks() {
		require.NoError(t, b.Add(c))
	}
	return b.BuildVersion(version)
}
