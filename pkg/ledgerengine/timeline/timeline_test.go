package timeline

import (
	"os"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
)

func testLogger() slog.Logger {
	backend := slog.NewBackend(os.Stderr)
	log := backend.Logger("test")
	log.SetLevel(slog.LevelError)
	return log
}

func TestAppendAssignsMonotonicCursors(t *testing.T) {
	tl := NewTimeline(0, testLogger())
	e0 := tl.Append("a", 1)
	e1 := tl.Append("b", 2)
	require.Equal(t, uint64(1), e0.Cursor)
	require.Equal(t, uint64(2), e1.Cursor)
}

func TestEntriesSinceAndRange(t *testing.T) {
	tl := NewTimeline(0, testLogger())
	for i := 0; i < 5; i++ {
		tl.Append(i, int64(i))
	}
	// cursors 1..5

	since := tl.EntriesSince(3)
	require.Len(t, since, 2)
	require.Equal(t, uint64(4), since[0].Cursor)

	ranged := tl.EntriesInRange(2, 4)
	require.Len(t, ranged, 3)
}

func TestEntryAtFindsExactCursor(t *testing.T) {
	tl := NewTimeline(0, testLogger())
	tl.Append("x", 1)
	e, ok := tl.EntryAt(1)
	require.True(t, ok)
	require.Equal(t, "x", e.Payload)

	_, ok = tl.EntryAt(99)
	require.False(t, ok)
}

func TestEvictionRespectsSlowestClient(t *testing.T) {
	tl := NewTimeline(0, testLogger())
	tl.RegisterClient("slow", 0)
	tl.RegisterClient("fast", 0)

	for i := 0; i < 10; i++ {
		tl.Append(i, int64(i))
	}
	// cursors 1..10

	// fast client catches up, slow client does not.
	tl.UpdateClientCursor("fast", 9)

	// Nothing evicted yet: slow client still at cursor 0 (has seen nothing).
	_, ok := tl.EntryAt(1)
	require.True(t, ok)

	tl.UpdateClientCursor("slow", 5)
	_, ok = tl.EntryAt(1)
	require.False(t, ok, "entries already consumed by the slowest client should be evicted")
	_, ok = tl.EntryAt(6)
	require.True(t, ok, "entries not yet consumed by the slowest client must survive")
}

func TestDetectGapAfterEviction(t *testing.T) {
	tl := NewTimeline(0, testLogger())
	tl.RegisterClient("c1", 0)

	for i := 0; i < 10; i++ {
		tl.Append(i, int64(i))
	}
	tl.UpdateClientCursor("c1", 8)

	// A second client that never advanced past cursor 0 now has a gap:
	// entries it needs were evicted because the only registered floor
	// advanced past them.
	gap, oldest := tl.DetectGap(0)
	require.True(t, gap)
	require.Equal(t, uint64(9), oldest)

	require.False(t, tl.CanIncrementalSync(0))
	require.True(t, tl.CanIncrementalSync(8))
}

func TestMaxRetainedBoundsWithNoClients(t *testing.T) {
	tl := NewTimeline(3, testLogger())
	for i := 0; i < 10; i++ {
		tl.Append(i, int64(i))
	}
	require.Equal(t, 3, tl.Len())
}

func TestUnregisterClientWithoutMaxRetainedKeepsEntries(t *testing.T) {
	tl := NewTimeline(0, testLogger())
	tl.RegisterClient("c1", 0)
	for i := 0; i < 5; i++ {
		tl.Append(i, int64(i))
	}
	tl.UnregisterClient("c1")
	// no clients and no maxRetained: evictLocked should not drop anything
	// just from unregistering (it only bounds when maxRetained is set).
	require.Equal(t, 5, tl.Len())
}
