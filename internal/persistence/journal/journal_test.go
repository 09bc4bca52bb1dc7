package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/shopkeepertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestHourlyWriterRotates(t *testing.T) {
	dir := t.TempDir()
	w := NewHourlyWriter(dir, "x")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Write(Entry{Event: "a"}))
	require.NoError(t, w.Write(Entry{Event: "b"}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, w.Write(Entry{Event: "c"}))
	require.NoError(t, w.Close())

	first, err := ReadFile(filepath.Join(dir, "x-2026-03-01-10.jsonl.zst"))
	require.NoError(t, err)
	second, err := ReadFile(filepath.Join(dir, "x-2026-03-01-11.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Len(t, second, 1)
	assert.Equal(t, "b", first[1].Event)
	assert.Equal(t, "c", second[0].Event)
}

func TestHourlyWriterAppendsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	clock := fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	for _, ev := range []string{"first", "second"} {
		w := NewHourlyWriter(dir, "x")
		w.now = clock
		require.NoError(t, w.Write(Entry{Event: ev}))
		require.NoError(t, w.Close())
	}
	got, err := ReadFile(w0Path(dir))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Event)
	assert.Equal(t, "second", got[1].Event)
}

func w0Path(dir string) string { return filepath.Join(dir, "x-2026-03-01-10.jsonl.zst") }

func TestJournalRecordsLifecycle(t *testing.T) {
	h := shopkeepertest.New(t)
	dir := t.TempDir()
	j := New(zap.NewNop(), dir)
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	j.now = fixedClock(now)
	j.w.now = fixedClock(now)
	j.Watch(h.Events)

	sk := h.Create(h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(4, 64, 4)))
	h.Registry.DeleteShopkeeper(sk)
	require.NoError(t, j.Close())

	got, err := ReadFile(filepath.Join(dir, "shopkeepers-2026-03-01-12.jsonl.zst"))
	require.NoError(t, err)

	var names []string
	for _, e := range got {
		names = append(names, e.Event+"/"+e.Cause)
	}
	assert.Contains(t, names, shopkeeper.EventAdded+"/created")
	assert.Contains(t, names, shopkeeper.EventRemoved+"/delete")
	assert.Equal(t, sk.ID(), got[0].ID)
	assert.Equal(t, "book", got[0].Type)
	assert.Equal(t, "sign", got[0].Object)
	assert.True(t, now.Equal(got[0].Time))
	assert.Equal(t, uint64(len(got)), j.Stats().Written)
}

func TestVetoedCreationIsJournaled(t *testing.T) {
	h := shopkeepertest.New(t)
	ev := &shopkeeper.CreateEvent{Data: h.Creation(shopkeepertest.Player("bob"), h.AdminType, shopkeepertest.Loc(1, 64, 2))}

	_, ok := EntryOf(ev, time.Now())
	assert.False(t, ok)

	ev.SetCancelled(true)
	e, ok := EntryOf(ev, time.Now())
	require.True(t, ok)
	assert.Equal(t, "vetoed", e.Cause)
	assert.Equal(t, "bob", e.Creator)
	assert.Equal(t, "admin", e.Type)
	assert.Equal(t, 2, e.Z)
}

func TestRecordAfterCloseIsIgnored(t *testing.T) {
	dir := t.TempDir()
	j := New(zap.NewNop(), dir)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	j.Record(Entry{Event: "late"})

	entries, err := os.ReadDir(dir)
	if err == nil {
		assert.Empty(t, entries)
	}
	assert.Zero(t, j.Stats().Written)
}
