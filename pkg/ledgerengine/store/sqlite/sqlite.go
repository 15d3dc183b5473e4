// Package sqlite is a durable store.LedgerStore/store.SnapshotStore
// backed by sqlite, grounded on the teacher's pkg/server/internal/db
// table-per-concern layout (one table per persisted concept, JSON text
// columns for nested structures, INSERT OR REPLACE for upserts).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/ledger"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/snapshot"
)

// Store wraps a sqlite connection implementing both store.LedgerStore
// and store.SnapshotStore.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to a sqlite database file at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			sequence   INTEGER PRIMARY KEY,
			hand_id    TEXT NOT NULL,
			table_id   TEXT NOT NULL,
			club_id    TEXT NOT NULL,
			player_id  TEXT NOT NULL,
			party      TEXT NOT NULL,
			kind       TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			timestamp  INTEGER NOT NULL,
			prev_hash  TEXT NOT NULL,
			hash       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_hand ON ledger_entries(hand_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_player ON ledger_entries(player_id)`,
		`CREATE TABLE IF NOT EXISTS table_snapshots (
			table_id TEXT NOT NULL,
			version  INTEGER NOT NULL,
			state    TEXT NOT NULL,
			hash     INTEGER NOT NULL,
			PRIMARY KEY (table_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS table_diffs (
			table_id     TEXT NOT NULL,
			from_version INTEGER NOT NULL,
			to_version   INTEGER NOT NULL,
			changes      TEXT NOT NULL,
			PRIMARY KEY (table_id, to_version)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: create schema: %w", err)
		}
	}
	return nil
}

// AppendEntry inserts one ledger entry. Sequence is the primary key, so a
// duplicate append of the same sequence fails loudly rather than silently
// overwriting history.
func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			sequence, hand_id, table_id, club_id, player_id, party, kind,
			amount, timestamp, prev_hash, hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Sequence, e.HandID, e.TableID, e.ClubID, e.PlayerID, string(e.Party), string(e.Kind),
		e.Amount, e.Timestamp, e.PrevHash, e.Hash)
	return err
}

func scanEntry(row interface{ Scan(...interface{}) error }) (ledger.Entry, error) {
	var e ledger.Entry
	var party, kind string
	if err := row.Scan(&e.Sequence, &e.HandID, &e.TableID, &e.ClubID, &e.PlayerID, &party, &kind,
		&e.Amount, &e.Timestamp, &e.PrevHash, &e.Hash); err != nil {
		return ledger.Entry{}, err
	}
	e.Party = ledger.PartyType(party)
	e.Kind = ledger.Kind(kind)
	return e, nil
}

func (s *Store) queryEntries(ctx context.Context, query, arg string) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntriesByHand returns every entry recorded for one hand, in sequence order.
func (s *Store) EntriesByHand(ctx context.Context, handID string) ([]ledger.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT sequence, hand_id, table_id, club_id, player_id, party, kind, amount, timestamp, prev_hash, hash
		FROM ledger_entries WHERE hand_id = ? ORDER BY sequence ASC
	`, handID)
}

// EntriesByPlayer returns every entry recorded for one player, in sequence order.
func (s *Store) EntriesByPlayer(ctx context.Context, playerID string) ([]ledger.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT sequence, hand_id, table_id, club_id, player_id, party, kind, amount, timestamp, prev_hash, hash
		FROM ledger_entries WHERE player_id = ? ORDER BY sequence ASC
	`, playerID)
}

// LastEntry returns the most recently appended entry, by sequence.
func (s *Store) LastEntry(ctx context.Context) (ledger.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sequence, hand_id, table_id, club_id, player_id, party, kind, amount, timestamp, prev_hash, hash
		FROM ledger_entries ORDER BY sequence DESC LIMIT 1
	`)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

// SaveSnapshot upserts a full snapshot for a table/version pair.
func (s *Store) SaveSnapshot(ctx context.Context, tableID string, snap snapshot.Snapshot) error {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("sqlite: marshal snapshot state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO table_snapshots (table_id, version, state, hash) VALUES (?, ?, ?, ?)
	`, tableID, snap.Version, string(stateJSON), snap.Hash)
	return err
}

// LoadSnapshot loads an exact version's snapshot, if persisted.
func (s *Store) LoadSnapshot(ctx context.Context, tableID string, version uint64) (snapshot.Snapshot, bool, error) {
	var stateJSON string
	var snap snapshot.Snapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT version, state, hash FROM table_snapshots WHERE table_id = ? AND version = ?
	`, tableID, version).Scan(&snap.Version, &stateJSON, &snap.Hash)
	if err == sql.ErrNoRows {
		return snapshot.Snapshot{}, false, nil
	}
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		return snapshot.Snapshot{}, false, fmt.Errorf("sqlite: unmarshal snapshot state: %w", err)
	}
	normalizeState(snap.State)
	return snap, true, nil
}

// LatestSnapshot loads the highest-versioned snapshot persisted for a table.
func (s *Store) LatestSnapshot(ctx context.Context, tableID string) (snapshot.Snapshot, bool, error) {
	var stateJSON string
	var snap snapshot.Snapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT version, state, hash FROM table_snapshots WHERE table_id = ? ORDER BY version DESC LIMIT 1
	`, tableID).Scan(&snap.Version, &stateJSON, &snap.Hash)
	if err == sql.ErrNoRows {
		return snapshot.Snapshot{}, false, nil
	}
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		return snapshot.Snapshot{}, false, fmt.Errorf("sqlite: unmarshal snapshot state: %w", err)
	}
	normalizeState(snap.State)
	return snap, true, nil
}

// SaveDiff persists the diff that produced diff.ToVersion.
func (s *Store) SaveDiff(ctx context.Context, tableID string, diff snapshot.Diff) error {
	changesJSON, err := json.Marshal(diff.Changes)
	if err != nil {
		return fmt.Errorf("sqlite: marshal diff changes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO table_diffs (table_id, from_version, to_version, changes) VALUES (?, ?, ?, ?)
	`, tableID, diff.FromVersion, diff.ToVersion, string(changesJSON))
	return err
}

// normalizeState undoes encoding/json's float64-for-every-number default
// on whole-number values restored into a snapshot's state map. The engine
// only ever stores integer chip counts and counters as int64, so any
// round-tripped float64 with no fractional part is converted back;
// non-whole floats and non-numeric values are left untouched.
func normalizeState(state map[string]interface{}) {
	for k, v := range state {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		if f == float64(int64(f)) {
			state[k] = int64(f)
		}
	}
}

// normalizeChangeValue undoes encoding/json's float64-for-every-number
// default on round trip: Increment/Decrement values must come back as the
// int64 applyChange expects, not a float64 that silently fails the type
// assertion.
func normalizeChangeValue(c *snapshot.Change) {
	if c.Op != snapshot.Increment && c.Op != snapshot.Decrement {
		return
	}
	if f, ok := c.Value.(float64); ok {
		c.Value = int64(f)
	}
}

// DiffsInRange returns every persisted diff with ToVersion in (from, to].
func (s *Store) DiffsInRange(ctx context.Context, tableID string, from, to uint64) ([]snapshot.Diff, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_version, to_version, changes FROM table_diffs
		WHERE table_id = ? AND to_version > ? AND to_version <= ?
		ORDER BY to_version ASC
	`, tableID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []snapshot.Diff
	for rows.Next() {
		var d snapshot.Diff
		var changesJSON string
		if err := rows.Scan(&d.FromVersion, &d.ToVersion, &changesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(changesJSON), &d.Changes); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal diff changes: %w", err)
		}
		for i := range d.Changes {
			normalizeChangeValue(&d.Changes[i])
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
