package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/ledger"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/snapshot"
)

func TestMemoryStoreAppendAndQueryEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AppendEntry(ctx, ledger.Entry{Sequence: 1, HandID: "h1", PlayerID: "alice"}))
	require.NoError(t, s.AppendEntry(ctx, ledger.Entry{Sequence: 2, HandID: "h1", PlayerID: "bob"}))
	require.NoError(t, s.AppendEntry(ctx, ledger.Entry{Sequence: 3, HandID: "h2", PlayerID: "alice"}))

	byHand, err := s.EntriesByHand(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, byHand, 2)

	byPlayer, err := s.EntriesByPlayer(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byPlayer, 2)

	last, ok, err := s.LastEntry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), last.Sequence)
}

func TestMemoryStoreLastEntryEmpty(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.LastEntry(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreSnapshotsAndDiffs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveSnapshot(ctx, "table-1", snapshot.Snapshot{Version: 0, State: map[string]interface{}{}}))
	require.NoError(t, s.SaveSnapshot(ctx, "table-1", snapshot.Snapshot{Version: 5, State: map[string]interface{}{"x": int64(1)}}))

	loaded, ok, err := s.LoadSnapshot(ctx, "table-1", 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), loaded.State["x"])

	latest, ok, err := s.LatestSnapshot(ctx, "table-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), latest.Version)

	require.NoError(t, s.SaveDiff(ctx, "table-1", snapshot.Diff{FromVersion: 0, ToVersion: 1}))
	require.NoError(t, s.SaveDiff(ctx, "table-1", snapshot.Diff{FromVersion: 1, ToVersion: 2}))
	require.NoError(t, s.SaveDiff(ctx, "table-1", snapshot.Diff{FromVersion: 2, ToVersion: 3}))

	diffs, err := s.DiffsInRange(ctx, "table-1", 0, 2)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
}

func TestMemoryStoreLatestSnapshotEmptyTable(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.LatestSnapshot(context.Background(), "unknown")
	require.NoError(t, err)
	require.False(t, ok)
}
