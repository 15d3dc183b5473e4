// Package timeline implements the per-table cursor stream the Client
// Synchronization Service replays to catch clients up (spec §4.8): a
// monotonically numbered append log with gap detection and eviction
// that never drops an entry a connected client still needs.
package timeline

import (
	"sort"
	"sync"

	"github.com/decred/slog"
)

// Entry is one timeline record: an opaque payload (typically a snapshot
// diff) addressed by a strictly increasing cursor.
type Entry struct {
	Cursor    uint64
	Payload   interface{}
	Timestamp int64
}

// Timeline is one table's append-only cursor stream.
type Timeline struct {
	log            slog.Logger
	mu             sync.Mutex
	entries        []Entry // sorted by Cursor ascending; entries[0] may not be cursor 0 after eviction
	nextCursor     uint64
	clientCursors  map[string]uint64
	maxRetained    int
}

// NewTimeline creates an empty timeline. maxRetained bounds how many
// entries are kept once no client still needs the older ones; 0 means
// unbounded. Cursor 0 is reserved as "nothing received yet" — the first
// appended entry is cursor 1, matching the convention that a fresh
// client's cursor of 0 means every entry is still owed to it.
func NewTimeline(maxRetained int, log slog.Logger) *Timeline {
	return &Timeline{
		log:           log,
		maxRetained:   maxRetained,
		nextCursor:    1,
		clientCursors: make(map[string]uint64),
	}
}

// Append adds one entry and returns it, assigning the next cursor.
func (t *Timeline) Append(payload interface{}, timestamp int64) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{Cursor: t.nextCursor, Payload: payload, Timestamp: timestamp}
	t.nextCursor++
	t.entries = append(t.entries, entry)

	t.evictLocked()

	if t.log != nil {
		t.log.Debugf("timeline: appended cursor %d", entry.Cursor)
	}
	return entry
}

// EntriesSince returns every entry with Cursor > cursor, in order.
func (t *Timeline) EntriesSince(cursor uint64) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, e := range t.entries {
		if e.Cursor > cursor {
			out = append(out, e)
		}
	}
	return out
}

// EntriesInRange returns entries with Cursor in [from, to] inclusive.
func (t *Timeline) EntriesInRange(from, to uint64) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, e := range t.entries {
		if e.Cursor >= from && e.Cursor <= to {
			out = append(out, e)
		}
	}
	return out
}

// EntryAt returns the entry at an exact cursor, if still retained.
func (t *Timeline) EntryAt(cursor uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.Cursor == cursor {
			return e, true
		}
	}
	return Entry{}, false
}

// oldestRetainedLocked returns the cursor of the oldest entry still in
// the timeline, or nextCursor if empty (meaning nothing has ever been
// evicted out from under a cursor at or above nextCursor).
func (t *Timeline) oldestRetainedLocked() uint64 {
	if len(t.entries) == 0 {
		return t.nextCursor
	}
	return t.entries[0].Cursor
}

// DetectGap reports whether a client resuming from clientCursor has a
// gap: entries between clientCursor+1 and the oldest retained entry were
// evicted before the client caught up. When true, the second return
// value is the earliest cursor still available, which the caller should
// use to force a full resync instead of an incremental catch-up.
func (t *Timeline) DetectGap(clientCursor uint64) (bool, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	oldest := t.oldestRetainedLocked()
	if len(t.entries) == 0 {
		return false, oldest
	}
	if clientCursor+1 < oldest {
		return true, oldest
	}
	return false, oldest
}

// CanIncrementalSync reports whether EntriesSince(clientCursor) would
// return a contiguous, gap-free catch-up sequence.
func (t *Timeline) CanIncrementalSync(clientCursor uint64) bool {
	gap, _ := t.DetectGap(clientCursor)
	return !gap
}

// RegisterClient records a connected client's cursor so eviction never
// drops entries it still needs.
func (t *Timeline) RegisterClient(clientID string, cursor uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clientCursors[clientID] = cursor
}

// UpdateClientCursor advances a registered client's cursor, e.g. after a
// successful ack, and re-runs eviction now that it may be safe to drop
// more entries.
func (t *Timeline) UpdateClientCursor(clientID string, cursor uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clientCursors[clientID] = cursor
	t.evictLocked()
}

// UnregisterClient drops a client's cursor floor, e.g. on permanent
// disconnect, and re-runs eviction.
func (t *Timeline) UnregisterClient(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clientCursors, clientID)
	t.evictLocked()
}

// evictLocked drops entries at or below the minimum connected client
// cursor; with no client registered, it bounds retention to maxRetained
// when set. Must be called with mu held.
func (t *Timeline) evictLocked() {
	if len(t.entries) == 0 {
		return
	}

	floor := t.entries[0].Cursor
	if len(t.clientCursors) > 0 {
		cursors := make([]uint64, 0, len(t.clientCursors))
		for _, c := range t.clientCursors {
			cursors = append(cursors, c)
		}
		sort.Slice(cursors, func(i, j int) bool { return cursors[i] < cursors[j] })
		floor = cursors[0]
	} else if t.maxRetained > 0 && len(t.entries) > t.maxRetained {
		floor = t.entries[len(t.entries)-t.maxRetained].Cursor - 1
	} else {
		return
	}

	keepFrom := 0
	for i, e := range t.entries {
		if e.Cursor > floor {
			keepFrom = i
			break
		}
		keepFrom = i + 1
	}
	if keepFrom > 0 {
		t.entries = append([]Entry(nil), t.entries[keepFrom:]...)
	}
}

// Head returns the most recently assigned cursor, or 0 if nothing has
// been appended yet.
func (t *Timeline) Head() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextCursor - 1
}

// Len returns the number of entries currently retained.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
