// Package sync implements the Client Synchronization Service orchestrator
// (spec §4.10): it owns one Snapshot Manager and one Timeline per table,
// decides whether a client needs a full snapshot or an incremental diff,
// and fans out new versions to connected sessions through a worker pool
// modeled on the teacher's EventProcessor.
package sync

import (
	"sync"

	"github.com/decred/slog"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/errs"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/session"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/snapshot"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/timeline"
)

// ResponseKind identifies which shape of SyncResponse was produced.
type ResponseKind int

const (
	NoChange ResponseKind = iota
	FullSnapshot
	Incremental
)

func (k ResponseKind) String() string {
	switch k {
	case NoChange:
		return "NoChange"
	case FullSnapshot:
		return "FullSnapshot"
	case Incremental:
		return "Incremental"
	default:
		return "Unknown"
	}
}

// SyncResponse is returned from handle_sync_request.
type SyncResponse struct {
	Kind     ResponseKind
	Snapshot *snapshot.Snapshot
	Diffs    []timeline.Entry
	HasGap   bool
}

// TimelineRecord is the payload stored in each timeline entry: enough to
// reconstruct what changed and who/what caused it.
type TimelineRecord struct {
	EventType   string
	Attribution string
	Diff        snapshot.Diff
}

// Config bounds the orchestrator's sync and backpressure behavior.
type Config struct {
	ForceSnapshotThreshold uint64 // version_gap above which a full snapshot is forced
	GapThreshold           uint64 // timeline gap size above which a gap is "critical"
	MaxDiffsInResponse     int
	PendingAckBacklogLimit int
	BroadcastQueueSize     int
	BroadcastWorkers       int
}

// DefaultConfig matches the spec's example thresholds for a
// moderately-sized table.
func DefaultConfig() Config {
	return Config{
		ForceSnapshotThreshold: 50,
		GapThreshold:           50,
		MaxDiffsInResponse:     100,
		PendingAckBacklogLimit: 10,
		BroadcastQueueSize:     256,
		BroadcastWorkers:       4,
	}
}

type tableState struct {
	snap *snapshot.Manager
	tl   *timeline.Timeline
}

type clientView struct {
	tableID    string
	version    uint64
	cursor     uint64
	lastSyncAt int64
}

// ConsistencyReport is returned by CheckClientConsistency.
type ConsistencyReport struct {
	VersionDrift uint64
	CursorDrift  uint64
	LastSyncAge  int64
	Violated     []string
}

type broadcastJob struct {
	tableID string
	version uint64
}

// Service is the Sync Service orchestrator, one per deployment (it holds
// every table it has been asked to initialize).
type Service struct {
	log slog.Logger
	cfg Config

	mu          sync.Mutex
	tables      map[string]*tableState
	clientViews map[string]*clientView // sessionID -> view
	pendingAcks map[string][]uint64    // sessionID -> unacknowledged versions

	sessions *session.Manager

	queue    chan *broadcastJob
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	runMu    sync.Mutex
}

// NewService creates an orchestrator backed by sessions for session
// lifecycle bookkeeping.
func NewService(cfg Config, sessions *session.Manager, log slog.Logger) *Service {
	if cfg.BroadcastWorkers <= 0 {
		cfg.BroadcastWorkers = 1
	}
	queueSize := cfg.BroadcastQueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Service{
		log:         log,
		cfg:         cfg,
		tables:      make(map[string]*tableState),
		clientViews: make(map[string]*clientView),
		pendingAcks: make(map[string][]uint64),
		sessions:    sessions,
		queue:       make(chan *broadcastJob, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the broadcast worker pool. Safe to call once; repeat
// calls are no-ops.
func (svc *Service) Start() {
	svc.runMu.Lock()
	defer svc.runMu.Unlock()
	if svc.running {
		return
	}
	svc.running = true
	for i := 0; i < svc.cfg.BroadcastWorkers; i++ {
		svc.wg.Add(1)
		go svc.worker(i)
	}
}

// Stop drains and halts the broadcast worker pool.
func (svc *Service) Stop() {
	svc.runMu.Lock()
	defer svc.runMu.Unlock()
	if !svc.running {
		return
	}
	close(svc.stopCh)
	svc.wg.Wait()
	svc.running = false
	for {
		select {
		case job := <-svc.queue:
			if job != nil {
				svc.fanOut(job)
			}
		default:
			return
		}
	}
}

func (svc *Service) worker(id int) {
	defer svc.wg.Done()
	for {
		select {
		case <-svc.stopCh:
			return
		case job := <-svc.queue:
			if job != nil {
				svc.fanOut(job)
			}
		}
	}
}

// InitializeTable creates a table's Snapshot Manager and Timeline. Spec
// §4.10's club/name/blinds/max_seats fields belong to the table registry
// the caller owns; this layer only needs the versioning and sync knobs.
func (svc *Service) InitializeTable(tableID string, snapshotInterval uint64, maxCachedSnapshots int, maxTimelineEntries int) (*snapshot.Snapshot, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, exists := svc.tables[tableID]; exists {
		return nil, errs.New(errs.InvalidEventForState, "sync: table %s already initialized", tableID)
	}

	ts := &tableState{
		snap: snapshot.NewManager(snapshotInterval, maxCachedSnapshots, svc.log),
		tl:   timeline.NewTimeline(maxTimelineEntries, svc.log),
	}
	svc.tables[tableID] = ts

	snap := ts.snap.Current()
	return &snap, nil
}

// ConnectResult is returned by ConnectClient.
type ConnectResult struct {
	Session     *session.Session
	InitialSync SyncResponse
	Terminated  []string
}

// ConnectClient creates a session for playerID at tableID, anchors its
// cursor at the current server cursor, and returns a full snapshot.
func (svc *Service) ConnectClient(playerID, tableID, device string, now int64) (*ConnectResult, error) {
	svc.mu.Lock()
	ts, ok := svc.tables[tableID]
	svc.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "sync: table %s not initialized", tableID)
	}

	serverSnapshot := ts.snap.Current()
	sess, terminated := svc.sessions.CreateSession(playerID, tableID, serverSnapshot.Version, now)
	serverCursor := ts.tl.Head()

	svc.mu.Lock()
	svc.clientViews[sess.ID] = &clientView{
		tableID:    tableID,
		version:    serverSnapshot.Version,
		cursor:     serverCursor,
		lastSyncAt: now,
	}
	svc.mu.Unlock()
	ts.tl.RegisterClient(sess.ID, serverCursor)

	return &ConnectResult{
		Session: sess,
		InitialSync: SyncResponse{
			Kind:     FullSnapshot,
			Snapshot: &serverSnapshot,
		},
		Terminated: terminated,
	}, nil
}

// HandleSyncRequest implements the NoChange/FullSnapshot/Incremental
// decision rule.
func (svc *Service) HandleSyncRequest(sessionID string, clientVersion, clientCursor uint64) (*SyncResponse, error) {
	svc.mu.Lock()
	view, ok := svc.clientViews[sessionID]
	if !ok {
		svc.mu.Unlock()
		return nil, errs.New(errs.SessionNotFound, "sync: no client view for session %s", sessionID)
	}
	tableID := view.tableID
	svc.mu.Unlock()

	svc.mu.Lock()
	ts, ok := svc.tables[tableID]
	svc.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "sync: table %s not initialized", tableID)
	}

	serverSnapshot := ts.snap.Current()
	if clientVersion == serverSnapshot.Version {
		return &SyncResponse{Kind: NoChange}, nil
	}

	versionGap := serverSnapshot.Version - clientVersion
	hasGap, oldest := ts.tl.DetectGap(clientCursor)
	gapSize := uint64(0)
	if serverSnapshot.Version >= clientVersion {
		gapSize = ts.tl.Head() - clientCursor
	}
	isCritical := hasGap || gapSize > svc.cfg.GapThreshold
	canIncremental := ts.tl.CanIncrementalSync(clientCursor)

	if clientVersion == 0 || versionGap > svc.cfg.ForceSnapshotThreshold || isCritical || !canIncremental {
		_ = oldest
		return &SyncResponse{Kind: FullSnapshot, Snapshot: &serverSnapshot}, nil
	}

	entries := ts.tl.EntriesSince(clientCursor)
	truncated := false
	if svc.cfg.MaxDiffsInResponse > 0 && len(entries) > svc.cfg.MaxDiffsInResponse {
		entries = entries[:svc.cfg.MaxDiffsInResponse]
		truncated = true
	}
	return &SyncResponse{Kind: Incremental, Diffs: entries, HasGap: truncated}, nil
}

// HandleStateAck advances a session's acknowledged cursor and drops any
// pending-acks it covers.
func (svc *Service) HandleStateAck(sessionID string, ackVersion, ackCursor uint64, now int64) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	view, ok := svc.clientViews[sessionID]
	if !ok {
		return errs.New(errs.SessionNotFound, "sync: no client view for session %s", sessionID)
	}
	view.version = ackVersion
	view.cursor = ackCursor
	view.lastSyncAt = now

	ts := svc.tables[view.tableID]
	if ts != nil {
		ts.tl.UpdateClientCursor(sessionID, ackCursor)
	}

	pending := svc.pendingAcks[sessionID]
	kept := pending[:0]
	for _, v := range pending {
		if v > ackVersion {
			kept = append(kept, v)
		}
	}
	svc.pendingAcks[sessionID] = kept

	// Keep the Session Manager's resume bookkeeping in step with the
	// client view so a disconnect captures the version actually acked,
	// not just the version observed at connect time.
	_ = svc.sessions.UpdateVersion(sessionID, ackVersion)
	return nil
}

// ApplyStateChange funnels operations through the table's Snapshot
// Manager and Timeline, then schedules a broadcast to every connected
// session at that table.
func (svc *Service) ApplyStateChange(tableID string, changes []snapshot.Change, eventType, attribution string, timestamp int64) (*snapshot.Snapshot, error) {
	svc.mu.Lock()
	ts, ok := svc.tables[tableID]
	svc.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "sync: table %s not initialized", tableID)
	}

	snap, diff, err := ts.snap.Apply(changes)
	if err != nil {
		return nil, err
	}
	ts.tl.Append(TimelineRecord{EventType: eventType, Attribution: attribution, Diff: diff}, timestamp)

	svc.enqueueBroadcast(tableID, snap.Version)
	return &snap, nil
}

func (svc *Service) enqueueBroadcast(tableID string, version uint64) {
	job := &broadcastJob{tableID: tableID, version: version}
	svc.runMu.Lock()
	defer svc.runMu.Unlock()
	if !svc.running {
		svc.fanOut(job)
		return
	}
	select {
	case svc.queue <- job:
	default:
		// The queue is saturated: fan out inline so the version is never
		// silently dropped from every session's pending-ack set.
		svc.fanOut(job)
	}
}

// fanOut records the new version as a pending ack for every session
// connected to tableID. Per spec §5, exceeding PendingAckBacklogLimit
// never fails apply_state_change itself; it only surfaces later via
// CheckClientConsistency.
func (svc *Service) fanOut(job *broadcastJob) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	for sessionID, view := range svc.clientViews {
		if view.tableID != job.tableID {
			continue
		}
		sess, ok := svc.sessions.Get(sessionID)
		if !ok || sess.Status != session.StatusConnected {
			continue
		}
		svc.pendingAcks[sessionID] = append(svc.pendingAcks[sessionID], job.version)
		if svc.log != nil && len(svc.pendingAcks[sessionID]) > svc.cfg.PendingAckBacklogLimit {
			svc.log.Warnf("sync: session %s pending-ack backlog at %d (limit %d)", sessionID, len(svc.pendingAcks[sessionID]), svc.cfg.PendingAckBacklogLimit)
		}
	}
}

// CheckClientConsistency reports drift between a session's last
// acknowledged view and the table's current state.
func (svc *Service) CheckClientConsistency(sessionID string, now int64) (*ConsistencyReport, error) {
	svc.mu.Lock()
	view, ok := svc.clientViews[sessionID]
	if !ok {
		svc.mu.Unlock()
		return nil, errs.New(errs.SessionNotFound, "sync: no client view for session %s", sessionID)
	}
	tableID := view.tableID
	clientVersion, clientCursor, lastSyncAt := view.version, view.cursor, view.lastSyncAt
	pendingBacklog := len(svc.pendingAcks[sessionID])
	svc.mu.Unlock()

	ts, ok := svc.tables[tableID]
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "sync: table %s not initialized", tableID)
	}

	serverVersion := ts.snap.Current().Version
	serverCursor := ts.tl.Head()

	report := &ConsistencyReport{
		VersionDrift: serverVersion - clientVersion,
		CursorDrift:  serverCursor - clientCursor,
		LastSyncAge:  now - lastSyncAt,
	}
	if report.VersionDrift > svc.cfg.ForceSnapshotThreshold {
		report.Violated = append(report.Violated, "version_drift")
	}
	if report.CursorDrift > svc.cfg.GapThreshold {
		report.Violated = append(report.Violated, "cursor_drift")
	}
	if pendingBacklog > svc.cfg.PendingAckBacklogLimit {
		report.Violated = append(report.Violated, "pending_ack_backlog")
	}
	return report, nil
}

// ForceResync resets a session's client view to version=0, cursor=0,
// guaranteeing its next HandleSyncRequest returns a FullSnapshot.
func (svc *Service) ForceResync(sessionID string) error {
	svc.mu.Lock()
	view, ok := svc.clientViews[sessionID]
	if !ok {
		svc.mu.Unlock()
		return errs.New(errs.SessionNotFound, "sync: no client view for session %s", sessionID)
	}
	view.version = 0
	view.cursor = 0
	tableID := view.tableID
	svc.mu.Unlock()

	if ts, ok := svc.tables[tableID]; ok {
		ts.tl.UpdateClientCursor(sessionID, 0)
	}
	return nil
}
