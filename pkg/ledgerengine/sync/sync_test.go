package sync

import (
	"os"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/session"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/snapshot"
)

func testLogger() slog.Logger {
	backend := slog.NewBackend(os.Stderr)
	log := backend.Logger("test")
	log.SetLevel(slog.LevelError)
	return log
}

func newTestService(cfg Config) (*Service, *session.Manager) {
	sessions := session.NewManager(session.DefaultConfig(), testLogger())
	svc := NewService(cfg, sessions, testLogger())
	return svc, sessions
}

func TestConnectClientReturnsFullSnapshot(t *testing.T) {
	svc, _ := newTestService(DefaultConfig())
	_, err := svc.InitializeTable("table-1", 5, 10, 50)
	require.NoError(t, err)

	res, err := svc.ConnectClient("alice", "table-1", "web", 1000)
	require.NoError(t, err)
	require.Equal(t, FullSnapshot, res.InitialSync.Kind)
	require.NotNil(t, res.InitialSync.Snapshot)
	require.Empty(t, res.Terminated)
}

func TestHandleSyncRequestNoChange(t *testing.T) {
	svc, _ := newTestService(DefaultConfig())
	_, _ = svc.InitializeTable("table-1", 5, 10, 50)
	res, _ := svc.ConnectClient("alice", "table-1", "web", 1000)

	resp, err := svc.HandleSyncRequest(res.Session.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, NoChange, resp.Kind)
}

func TestHandleSyncRequestIncrementalWhenSmallGap(t *testing.T) {
	svc, _ := newTestService(DefaultConfig())
	_, _ = svc.InitializeTable("table-1", 5, 10, 50)
	res, _ := svc.ConnectClient("alice", "table-1", "web", 1000)

	// alice is at version/cursor 0 from ConnectClient; force_resync already
	// puts her there, so a small number of changes land...
	require.NoError(t, svc.ForceResync(res.Session.ID))
	for i := 0; i < 3; i++ {
		_, err := svc.ApplyStateChange("table-1", []snapshot.Change{
			{Path: "x", Op: snapshot.Increment, Value: int64(1)},
		}, "test_event", "system", int64(1000+i))
		require.NoError(t, err)
	}

	resp, err := svc.HandleSyncRequest(res.Session.ID, 0, 0)
	// client_version == 0 forces a full snapshot per the decision rule,
	// regardless of gap size.
	require.NoError(t, err)
	require.Equal(t, FullSnapshot, resp.Kind)

	// After acking up to version 1 (simulating partial catch-up), a small
	// remaining gap should resolve incrementally.
	require.NoError(t, svc.HandleStateAck(res.Session.ID, 1, 1, 1001))
	resp, err = svc.HandleSyncRequest(res.Session.ID, 1, 1)
	require.NoError(t, err)
	require.Equal(t, Incremental, resp.Kind)
	require.Len(t, resp.Diffs, 2)
}

func TestHandleSyncRequestForcesFullSnapshotBeyondThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForceSnapshotThreshold = 2
	svc, _ := newTestService(cfg)
	_, _ = svc.InitializeTable("table-1", 5, 10, 50)
	res, _ := svc.ConnectClient("alice", "table-1", "web", 1000)
	require.NoError(t, svc.HandleStateAck(res.Session.ID, 0, 0, 1000))

	for i := 0; i < 5; i++ {
		_, err := svc.ApplyStateChange("table-1", []snapshot.Change{
			{Path: "x", Op: snapshot.Increment, Value: int64(1)},
		}, "test_event", "system", int64(1000+i))
		require.NoError(t, err)
	}

	resp, err := svc.HandleSyncRequest(res.Session.ID, 1, 1)
	require.NoError(t, err)
	require.Equal(t, FullSnapshot, resp.Kind)
}

// TestSyncDisconnectReconnectMissedEvents mirrors the spec scenario:
// connect at version 1, three actions bring the table to version 4,
// disconnect, two more actions bring it to version 6, reconnect with
// last_known_version=1 and expect missed_events=5, below threshold.
func TestSyncDisconnectReconnectMissedEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForceSnapshotThreshold = 10
	svc, sessions := newTestService(cfg)
	_, _ = svc.InitializeTable("table-1", 100, 10, 100)

	res, _ := svc.ConnectClient("alice", "table-1", "web", 1000)
	_, err := svc.ApplyStateChange("table-1", []snapshot.Change{{Path: "x", Op: snapshot.Set, Value: int64(1)}}, "action", "alice", 1001)
	require.NoError(t, err)
	require.NoError(t, svc.HandleStateAck(res.Session.ID, 1, 1, 1001))

	for i := 0; i < 3; i++ {
		_, err := svc.ApplyStateChange("table-1", []snapshot.Change{{Path: "x", Op: snapshot.Increment, Value: int64(1)}}, "action", "alice", int64(1002+i))
		require.NoError(t, err)
	}
	// table is now at version 4; alice last acked at version 1.

	require.NoError(t, sessions.Disconnect(res.Session.ID, 1010))

	for i := 0; i < 2; i++ {
		_, err := svc.ApplyStateChange("table-1", []snapshot.Change{{Path: "x", Op: snapshot.Increment, Value: int64(1)}}, "action", "system", int64(1011+i))
		require.NoError(t, err)
	}
	// table is now at version 6.

	tok := session.IssueResumeToken(res.Session.ID, "alice", "table-1", 1)
	reconnected, err := sessions.Reconnect(tok, 1020)
	require.NoError(t, err)

	missed := uint64(6) - reconnected.LastKnownVersion
	require.Equal(t, uint64(5), missed)
	require.LessOrEqual(t, missed, cfg.ForceSnapshotThreshold)
}

func TestCheckClientConsistencyFlagsDrift(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForceSnapshotThreshold = 2
	svc, _ := newTestService(cfg)
	_, _ = svc.InitializeTable("table-1", 100, 10, 100)
	res, _ := svc.ConnectClient("alice", "table-1", "web", 1000)
	require.NoError(t, svc.HandleStateAck(res.Session.ID, 0, 0, 1000))

	for i := 0; i < 5; i++ {
		_, err := svc.ApplyStateChange("table-1", []snapshot.Change{{Path: "x", Op: snapshot.Increment, Value: int64(1)}}, "action", "system", int64(1001+i))
		require.NoError(t, err)
	}

	report, err := svc.CheckClientConsistency(res.Session.ID, 1100)
	require.NoError(t, err)
	require.Equal(t, uint64(5), report.VersionDrift)
	require.Contains(t, report.Violated, "version_drift")
}

func TestForceResyncTriggersFullSnapshotNext(t *testing.T) {
	svc, _ := newTestService(DefaultConfig())
	_, _ = svc.InitializeTable("table-1", 5, 10, 50)
	res, _ := svc.ConnectClient("alice", "table-1", "web", 1000)
	require.NoError(t, svc.HandleStateAck(res.Session.ID, 0, 0, 1000))

	_, err := svc.ApplyStateChange("table-1", []snapshot.Change{{Path: "x", Op: snapshot.Set, Value: int64(1)}}, "action", "system", 1001)
	require.NoError(t, err)

	require.NoError(t, svc.ForceResync(res.Session.ID))

	resp, err := svc.HandleSyncRequest(res.Session.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, FullSnapshot, resp.Kind)
}

func TestApplyStateChangeFanOutTracksPendingAcks(t *testing.T) {
	svc, _ := newTestService(DefaultConfig())
	_, _ = svc.InitializeTable("table-1", 100, 10, 100)
	res, _ := svc.ConnectClient("alice", "table-1", "web", 1000)

	_, err := svc.ApplyStateChange("table-1", []snapshot.Change{{Path: "x", Op: snapshot.Set, Value: int64(1)}}, "action", "system", 1001)
	require.NoError(t, err)

	require.Len(t, svc.pendingAcks[res.Session.ID], 1)

	require.NoError(t, svc.HandleStateAck(res.Session.ID, 1, 1, 1002))
	require.Empty(t, svc.pendingAcks[res.Session.ID])
}
