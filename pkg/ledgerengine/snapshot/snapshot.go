// Package snapshot implements the versioned Snapshot Manager and
// structural diff engine (spec §4.7). State is a flat map keyed by
// dotted path; every mutation goes through Apply, which returns both
// the new snapshot and the diff that produced it so callers never have
// to recompute one from the other.
package snapshot

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/decred/slog"
)

// Op identifies one structural change to apply to a path in the state map.
type Op int

const (
	Set Op = iota
	Delete
	Increment
	Decrement
	Append
	Remove
)

func (o Op) String() string {
	switch o {
	case Set:
		return "Set"
	case Delete:
		return "Delete"
	case Increment:
		return "Increment"
	case Decrement:
		return "Decrement"
	case Append:
		return "Append"
	case Remove:
		return "Remove"
	default:
		return "Unknown"
	}
}

// Change is one field-level mutation: Path is a dotted key into the
// state map, Value's meaning depends on Op (new value for Set, delta for
// Increment/Decrement, element for Append/Remove).
type Change struct {
	Path  string
	Op    Op
	Value interface{}
}

// Diff is the ordered set of changes that moved the state from
// FromVersion to ToVersion.
type Diff struct {
	FromVersion uint64
	ToVersion   uint64
	Changes     []Change
}

// Snapshot is a complete, versioned copy of table state.
type Snapshot struct {
	Version uint64
	State   map[string]interface{}
	Hash    uint32
}

func cloneState(s map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// hashState computes a deterministic fingerprint of a state map. Keys
// are sorted first so the hash does not depend on map iteration order.
func hashState(s map[string]interface{}) uint32 {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New32a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(fmt.Sprintf("%v", s[k])))
		h.Write([]byte{0})
	}
	return h.Sum32()
}

// Manager tracks one table's versioned state. It retains a full snapshot
// every Interval versions (an "anchor") plus the most recent version
// always, and evicts older anchors once more than MaxCached accumulate —
// never version 0 or an anchor held with Pin. The Sync Service does not
// call Pin.
type Manager struct {
	log       slog.Logger
	mu        sync.Mutex
	interval  uint64
	maxCached int

	current Snapshot
	anchors map[uint64]Snapshot // version -> full snapshot, sparse
	diffs   map[uint64]Diff     // version -> diff that produced it from version-1
	pinned  map[uint64]bool
}

// NewManager creates a Manager with an empty state at version 0.
func NewManager(interval uint64, maxCached int, log slog.Logger) *Manager {
	if interval == 0 {
		interval = 1
	}
	m := &Manager{
		log:       log,
		interval:  interval,
		maxCached: maxCached,
		current:   Snapshot{Version: 0, State: map[string]interface{}{}},
		anchors:   make(map[uint64]Snapshot),
		diffs:     make(map[uint64]Diff),
		pinned:    make(map[uint64]bool),
	}
	m.current.Hash = hashState(m.current.State)
	m.anchors[0] = m.current
	return m
}

// Apply mutates the current state by changes, in order, and returns the
// new snapshot plus the diff that produced it.
func (m *Manager) Apply(changes []Change) (Snapshot, Diff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := cloneState(m.current.State)
	for _, c := range changes {
		if err := applyChange(state, c); err != nil {
			return Snapshot{}, Diff{}, err
		}
	}

	next := Snapshot{Version: m.current.Version + 1, State: state, Hash: hashState(state)}
	diff := Diff{FromVersion: m.current.Version, ToVersion: next.Version, Changes: changes}

	m.diffs[next.Version] = diff
	m.current = next
	if next.Version%m.interval == 0 {
		m.anchors[next.Version] = next
	}

	m.evict()

	if m.log != nil {
		m.log.Debugf("snapshot: applied %d changes, version %d -> %d", len(changes), diff.FromVersion, diff.ToVersion)
	}

	return next, diff, nil
}

func applyChange(state map[string]interface{}, c Change) error {
	switch c.Op {
	case Set:
		state[c.Path] = c.Value
	case Delete:
		delete(state, c.Path)
	case Increment, Decrement:
		cur, _ := state[c.Path].(int64)
		delta, ok := c.Value.(int64)
		if !ok {
			return fmt.Errorf("snapshot: %s at %q requires an int64 value", c.Op, c.Path)
		}
		if c.Op == Decrement {
			delta = -delta
		}
		state[c.Path] = cur + delta
	case Append:
		list, _ := state[c.Path].([]interface{})
		state[c.Path] = append(list, c.Value)
	case Remove:
		list, _ := state[c.Path].([]interface{})
		out := list[:0]
		for _, v := range list {
			if v != c.Value {
				out = append(out, v)
			}
		}
		state[c.Path] = out
	default:
		return fmt.Errorf("snapshot: unrecognized op %v", c.Op)
	}
	return nil
}

// Current returns the latest snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SeedFrom resets the Manager to treat snap as its new baseline: current
// state, its own anchor, and the starting point for every future version.
// Diffs from before snap.Version are not retained and At cannot
// reconstruct versions earlier than snap.Version afterward. Used to
// restore a table from a persisted snapshot after a process restart.
func (m *Manager) SeedFrom(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := cloneState(snap.State)
	seeded := Snapshot{Version: snap.Version, State: state, Hash: hashState(state)}

	m.current = seeded
	m.anchors = map[uint64]Snapshot{snap.Version: seeded}
	m.diffs = make(map[uint64]Diff)
	m.pinned = make(map[uint64]bool)
}

// At reconstructs the snapshot for an arbitrary version by replaying
// diffs forward from the nearest anchor at or before it.
func (m *Manager) At(version uint64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if version > m.current.Version {
		return Snapshot{}, fmt.Errorf("snapshot: version %d is ahead of current %d", version, m.current.Version)
	}

	var anchor Snapshot
	var anchorVersion uint64
	found := false
	for v, a := range m.anchors {
		if v <= version && (!found || v > anchorVersion) {
			anchor, anchorVersion, found = a, v, true
		}
	}
	if !found {
		return Snapshot{}, fmt.Errorf("snapshot: no anchor at or before version %d, cannot reconstruct", version)
	}

	state := cloneState(anchor.State)
	for v := anchorVersion + 1; v <= version; v++ {
		diff, ok := m.diffs[v]
		if !ok {
			return Snapshot{}, fmt.Errorf("snapshot: missing diff for version %d", v)
		}
		for _, c := range diff.Changes {
			if err := applyChange(state, c); err != nil {
				return Snapshot{}, err
			}
		}
	}
	return Snapshot{Version: version, State: state, Hash: hashState(state)}, nil
}

// DiffBetween returns the recorded diff that produced `to` from `to-1`
// when to == from+1, or composes the full set of changes across the
// range otherwise. Callers needing the Sync Service's incremental
// catch-up path call this with (client cursor, current version).
func (m *Manager) DiffBetween(from, to uint64) ([]Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changes []Change
	for v := from + 1; v <= to; v++ {
		diff, ok := m.diffs[v]
		if !ok {
			return nil, fmt.Errorf("snapshot: missing diff for version %d (evicted)", v)
		}
		changes = append(changes, diff.Changes...)
	}
	return changes, nil
}

// Pin prevents an anchor from being evicted, used when a slow client's
// cursor still depends on it.
func (m *Manager) Pin(version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[version] = true
}

// Unpin releases a previously pinned anchor, allowing normal eviction.
func (m *Manager) Unpin(version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pinned, version)
}

// evict drops the oldest unpinned anchors once more than maxCached have
// accumulated. Version 0 and the current version are never evicted.
func (m *Manager) evict() {
	if m.maxCached <= 0 || len(m.anchors) <= m.maxCached {
		return
	}

	versions := make([]uint64, 0, len(m.anchors))
	for v := range m.anchors {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	for _, v := range versions {
		if len(m.anchors) <= m.maxCached {
			return
		}
		if v == 0 || v == m.current.Version || m.pinned[v] {
			continue
		}
		delete(m.anchors, v)
	}
}
