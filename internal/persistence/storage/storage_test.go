package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TomCreeper/Shopkeepers/internal/persistence/storage"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/shopkeepertest"
	"github.com/TomCreeper/Shopkeepers/internal/sim/loop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	h     *shopkeepertest.Harness
	store *storage.Storage
	queue *loop.Queue
	path  string
}

func newFixture(t *testing.T, hooks ...storage.Hook) *fixture {
	t.Helper()
	return newFixtureAt(t, filepath.Join(t.TempDir(), "data", "save.yml"), hooks...)
}

func newFixtureAt(t *testing.T, path string, hooks ...storage.Hook) *fixture {
	t.Helper()
	h := shopkeepertest.New(t)
	q := loop.NewQueue()
	s := storage.New(h.Log, h.Metrics, storage.Config{Path: path, SaveDelayTicks: 3, Hooks: hooks}, h.Registry, q)
	h.Env.Storage = s
	s.Watch(h.Events)
	t.Cleanup(func() { _ = s.Close() })
	return &fixture{h: h, store: s, queue: q, path: path}
}

func (f *fixture) create(t *testing.T, x int) *shopkeeper.Shopkeeper {
	t.Helper()
	return f.h.Create(f.h.Creation(shopkeepertest.Player("alice"), f.h.BookType, shopkeepertest.Loc(x, 64, 0)))
}

// waitWrite runs the owner side of one completed write.
func (f *fixture) waitWrite(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.queue.WaitPending(ctx)
	require.NoError(t, err)
}

// waitIdle waits until no write is in flight, including follow-up writes.
func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	for f.store.Saving() {
		f.waitWrite(t)
	}
}

func (f *fixture) read(t *testing.T) *section.Section {
	t.Helper()
	root, err := storage.ReadFile(f.path)
	require.NoError(t, err)
	return root
}

func TestSaveWritesAndAcknowledges(t *testing.T) {
	f := newFixture(t)
	sk := f.create(t, 1)
	require.True(t, sk.IsDirty())

	f.store.Save()
	assert.True(t, f.store.Saving())
	f.waitWrite(t)

	assert.False(t, f.store.Saving())
	assert.False(t, sk.IsDirty())
	assert.False(t, f.store.IsDirty())

	root := f.read(t)
	assert.Equal(t, storage.DataVersion, root.Int(storage.DataVersionKey, 0))
	saved := root.Section("1")
	require.NotNil(t, saved)
	assert.Equal(t, sk.UniqueID().String(), saved.String("uniqueId", ""))
	assert.Equal(t, "book", saved.String("type", ""))
	assert.Equal(t, "sign", saved.Section("object").String("type", ""))
	require.NoError(t, storage.Validate(root))

	_, err := os.Stat(f.path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.h.Metrics.SavesTotal.WithLabelValues("success")))
}

func TestChangeDuringWriteStaysDirty(t *testing.T) {
	f := newFixture(t)
	sk := f.create(t, 1)

	f.store.Save()
	sk.SetName("Renamed")
	f.waitWrite(t)

	assert.True(t, sk.IsDirty())
	assert.True(t, f.store.IsDirty())

	f.store.Save()
	f.waitWrite(t)
	assert.False(t, sk.IsDirty())
	assert.Equal(t, "Renamed", f.read(t).Section("1").String("name", ""))
}

func TestSaveDuringWriteRunsAgain(t *testing.T) {
	f := newFixture(t)
	sk := f.create(t, 1)

	f.store.Save()
	sk.MarkDirty()
	f.store.Save()
	f.waitIdle(t)

	assert.False(t, f.store.Saving())
	assert.False(t, sk.IsDirty())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.h.Metrics.SavesTotal.WithLabelValues("success")))
}

func TestDelayedSavesCoalesce(t *testing.T) {
	f := newFixture(t)
	sk := f.create(t, 1)

	sk.SaveDelayed()
	f.store.SaveDelayed()
	f.store.SaveDelayed()
	f.store.Tick()
	f.store.Tick()
	assert.False(t, f.store.Saving())
	_, err := os.Stat(f.path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	f.store.Tick()
	assert.True(t, f.store.Saving())
	f.waitWrite(t)
	assert.False(t, sk.IsDirty())

	// Nothing dirty: the delayed request is dropped.
	f.store.SaveDelayed()
	for i := 0; i < 5; i++ {
		f.store.Tick()
	}
	assert.False(t, f.store.Saving())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.h.Metrics.SavesTotal.WithLabelValues("success")))
}

func TestDeletedShopkeepersAreDropped(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 1)
	f.create(t, 2)
	f.store.Save()
	f.waitWrite(t)
	require.True(t, f.read(t).Has("1"))

	first.Delete()
	assert.True(t, f.store.IsDirty())
	f.store.Save()
	f.waitWrite(t)

	root := f.read(t)
	assert.False(t, root.Has("1"))
	assert.True(t, root.Has("2"))
}

func TestFailedLoadsAreKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "save.yml")
	require.NoError(t, storage.WriteFileAtomic(path, []byte(`data-version: 2
"5":
    world: world
    x: 1
    y: 64
    z: 1
    type: book
    object:
        type: hologram
`)))
	f := newFixtureAt(t, path)
	root, err := f.store.Load()
	require.NoError(t, err)
	rep := f.h.Registry.LoadAll(root)
	require.Len(t, rep.Failures, 1)
	assert.False(t, f.store.IsDirty())

	f.create(t, 3)
	f.store.Save()
	f.waitWrite(t)

	saved := f.read(t)
	assert.Equal(t, []string{storage.DataVersionKey, "5", "6"}, saved.Keys())
	assert.Equal(t, "hologram", saved.Section("5").Section("object").String("type", ""))
}

func TestLoadVersions(t *testing.T) {
	dir := t.TempDir()

	f := newFixtureAt(t, filepath.Join(dir, "missing.yml"))
	root, err := f.store.Load()
	require.NoError(t, err)
	assert.Zero(t, root.Len())
	assert.False(t, f.store.IsDirty())

	legacy := filepath.Join(dir, "legacy.yml")
	require.NoError(t, os.WriteFile(legacy, []byte("\"1\":\n    world: world\n"), 0o644))
	f = newFixtureAt(t, legacy)
	root, err = f.store.Load()
	require.NoError(t, err)
	assert.True(t, root.Has("1"))
	assert.True(t, f.store.IsDirty())

	newer := filepath.Join(dir, "newer.yml")
	require.NoError(t, os.WriteFile(newer, []byte("data-version: 99\n"), 0o644))
	f = newFixtureAt(t, newer)
	_, err = f.store.Load()
	assert.ErrorIs(t, err, storage.ErrUnsupportedVersion)

	broken := filepath.Join(dir, "broken.yml")
	require.NoError(t, os.WriteFile(broken, []byte("- not\n- a mapping\n"), 0o644))
	f = newFixtureAt(t, broken)
	_, err = f.store.Load()
	assert.Error(t, err)
}

func TestCloseWritesUnloadedChanges(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1)
	f.h.Registry.UnloadAll()

	require.NoError(t, f.store.Close())
	assert.True(t, f.read(t).Has("1"))

	// Closed storages ignore further requests.
	f.store.Save()
	assert.False(t, f.store.Saving())
	require.NoError(t, f.store.Close())
}

func TestWriteFailureRetries(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	f := newFixtureAt(t, filepath.Join(blocker, "save.yml"))
	sk := f.create(t, 1)

	f.store.Save()
	f.waitWrite(t)
	assert.True(t, sk.IsDirty())
	assert.True(t, f.store.IsDirty())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.h.Metrics.SavesTotal.WithLabelValues("error")))
	assert.Equal(t, 1, f.h.Logs.FilterMessage("could not save shopkeepers, retrying later").Len())

	for i := 0; i < 3; i++ {
		f.store.Tick()
	}
	assert.True(t, f.store.Saving(), "retried after the delay")
	f.waitWrite(t)

	assert.Error(t, f.store.Close())
}

func TestHooksSeeEveryWrite(t *testing.T) {
	var seen []storage.Written
	f := newFixture(t,
		func(w storage.Written) error {
			seen = append(seen, w)
			return nil
		},
		func(storage.Written) error { return errors.New("index offline") },
	)
	f.create(t, 1)

	f.store.Save()
	f.waitWrite(t)
	f.store.Save()
	f.waitWrite(t)

	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].Seq)
	assert.Equal(t, 2, seen[1].Seq)
	assert.Equal(t, f.path, seen[1].Path)
	assert.True(t, seen[0].Root.Has("1"))
	assert.Equal(t, 2, f.h.Logs.FilterMessage("save hook failed").Len())
}
