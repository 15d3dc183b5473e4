// Package session implements the Client Synchronization Service's
// connection lifecycle (spec §4.9): per-client sessions with a
// Rob-Pike-style status state machine (reusing pkg/statemachine),
// signed resume tokens, and heartbeat-driven disconnect handling. No
// wall-clock calls live here — every timestamp arrives from the caller,
// so the sweep is exactly as deterministic as the clock it is fed.
package session

import (
	"hash/fnv"
	"os"
	"strconv"
	"sync"

	"github.com/decred/slog"
	"github.com/pbnjay/memory"
	"github.com/prometheus/procfs"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/errs"
	"github.com/decred/holdem-ledger-engine/pkg/statemachine"
)

// Status is the session's coarse connection state.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "Connected"
	case StatusDisconnected:
		return "Disconnected"
	case StatusExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Session is one client's connection state at a table.
type Session struct {
	ID                string
	PlayerID          string
	TableID           string
	Status            Status
	LastKnownVersion  uint64
	LastHeartbeat     int64
	DisconnectedAt    int64
	ReconnectAttempts int

	sm *statemachine.StateMachine[Session]
}

// ResumeToken is what a disconnected client presents to reconnect. The
// signature binds SessionID/PlayerID/TableID/IssuedAtVersion together so
// a token cannot be replayed against a different session.
type ResumeToken struct {
	SessionID       string
	PlayerID        string
	TableID         string
	IssuedAtVersion uint64
	Signature       string
}

func signToken(sessionID, playerID, tableID string, version uint64) string {
	h := fnv.New64a()
	for _, f := range []string{sessionID, playerID, tableID, strconv.FormatUint(version, 10)} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// IssueResumeToken produces a token whose signature can be independently
// recomputed and checked by VerifyResumeToken, without needing shared
// server-side storage of the token itself.
func IssueResumeToken(sessionID, playerID, tableID string, version uint64) ResumeToken {
	return ResumeToken{
		SessionID:       sessionID,
		PlayerID:        playerID,
		TableID:         tableID,
		IssuedAtVersion: version,
		Signature:       signToken(sessionID, playerID, tableID, version),
	}
}

// VerifyResumeToken reports whether a token's signature matches its claimed fields.
func VerifyResumeToken(t ResumeToken) bool {
	return t.Signature == signToken(t.SessionID, t.PlayerID, t.TableID, t.IssuedAtVersion)
}

// Config bounds the session manager's lifecycle behavior.
type Config struct {
	MaxSessionsPerPlayer int
	ReconnectWindow      int64 // seconds a disconnected session stays resumable
	MaxReconnectAttempts int
	HeartbeatTimeout      int64 // seconds since LastHeartbeat before a connected session is considered stale
}

// DefaultConfig matches common cardroom expectations: one active session
// per player across all tables, a two-minute reconnect grace window.
func DefaultConfig() Config {
	return Config{
		MaxSessionsPerPlayer: 1,
		ReconnectWindow:      120,
		MaxReconnectAttempts: 5,
		HeartbeatTimeout:     30,
	}
}

// Manager tracks every active and recently disconnected session across
// all tables.
type Manager struct {
	log      slog.Logger
	cfg      Config
	mu       sync.Mutex
	sessions map[string]*Session   // sessionID -> session
	byPlayer map[string][]string   // playerID -> session IDs, most recent last
	nextID   uint64
}

// NewManager creates a Manager bounded by cfg.
func NewManager(cfg Config, log slog.Logger) *Manager {
	return &Manager{
		log:      log,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		byPlayer: make(map[string][]string),
	}
}

// CreateSession opens a new connected session for playerID at tableID,
// evicting the player's oldest sessions first if MaxSessionsPerPlayer
// would otherwise be exceeded. The second return value lists the IDs of
// any sessions evicted this way (reason: DuplicateSession).
func (m *Manager) CreateSession(playerID, tableID string, version uint64, now int64) (*Session, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var terminated []string
	existing := m.byPlayer[playerID]
	for m.cfg.MaxSessionsPerPlayer > 0 && len(existing) >= m.cfg.MaxSessionsPerPlayer {
		evictID := existing[0]
		delete(m.sessions, evictID)
		existing = existing[1:]
		terminated = append(terminated, evictID)
		if m.log != nil {
			m.log.Debugf("session: evicted %s for %s (duplicate session)", evictID, playerID)
		}
	}

	m.nextID++
	id := "sess-" + strconv.FormatUint(m.nextID, 10)
	s := &Session{
		ID:               id,
		PlayerID:         playerID,
		TableID:          tableID,
		Status:           StatusConnected,
		LastKnownVersion: version,
		LastHeartbeat:    now,
	}
	s.sm = statemachine.NewStateMachine(s, connectedState)

	m.sessions[id] = s
	m.byPlayer[playerID] = append(existing, id)
	return s, terminated
}

// Disconnect marks a session disconnected at `now`, starting its
// reconnect window.
func (m *Manager) Disconnect(sessionID string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return errs.New(errs.SessionNotFound, "session: %s not found", sessionID)
	}
	s.Status = StatusDisconnected
	s.DisconnectedAt = now
	s.sm.SetState(disconnectedState)
	return nil
}

// Reconnect resumes a disconnected session given a verified token,
// returning the session's last known version so the caller can decide
// between a full resync and an incremental catch-up.
func (m *Manager) Reconnect(token ResumeToken, now int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !VerifyResumeToken(token) {
		return nil, errs.New(errs.InvalidResumeToken, "session: resume token signature mismatch for %s", token.SessionID)
	}

	s, ok := m.sessions[token.SessionID]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session: %s not found", token.SessionID)
	}
	if s.Status != StatusDisconnected {
		return nil, errs.New(errs.SessionNotResumable, "session: %s is not disconnected", s.ID)
	}
	if m.cfg.ReconnectWindow > 0 && now-s.DisconnectedAt > m.cfg.ReconnectWindow {
		s.Status = StatusExpired
		s.sm.SetState(expiredState)
		return nil, errs.New(errs.ResumeTokenExpired, "session: %s reconnect window elapsed", s.ID)
	}
	if m.cfg.MaxReconnectAttempts > 0 && s.ReconnectAttempts >= m.cfg.MaxReconnectAttempts {
		return nil, errs.New(errs.MaxReconnectAttempts, "session: %s exceeded max reconnect attempts", s.ID)
	}

	s.ReconnectAttempts++
	s.Status = StatusConnected
	s.LastHeartbeat = now
	s.sm.SetState(connectedState)
	return s, nil
}

// Heartbeat refreshes a connected session's liveness timestamp.
func (m *Manager) Heartbeat(sessionID string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return errs.New(errs.SessionNotFound, "session: %s not found", sessionID)
	}
	s.LastHeartbeat = now
	return nil
}

// UpdateVersion records the snapshot version a session has been synced
// to, used to compute missed-event counts across a disconnect.
func (m *Manager) UpdateVersion(sessionID string, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return errs.New(errs.SessionNotFound, "session: %s not found", sessionID)
	}
	s.LastKnownVersion = version
	return nil
}

// Sweep walks every connected session and disconnects any whose
// heartbeat is older than HeartbeatTimeout relative to `now`. Returns
// the IDs of sessions it disconnected. The caller supplies `now`; this
// method never reads a clock itself.
func (m *Manager) Sweep(now int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var disconnected []string
	for id, s := range m.sessions {
		if s.Status == StatusConnected && m.cfg.HeartbeatTimeout > 0 && now-s.LastHeartbeat > m.cfg.HeartbeatTimeout {
			s.Status = StatusDisconnected
			s.DisconnectedAt = now
			s.sm.SetState(disconnectedState)
			disconnected = append(disconnected, id)
		}
	}
	return disconnected
}

// Get returns a session by ID.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// HealthSnapshot reports host resource pressure alongside session counts
// as a read-only diagnostic; the maintenance sweep does not consult it.
// ProcessRSSBytes is left zero when /proc is unavailable (e.g. in a
// sandboxed test run) rather than failing the call.
type HealthSnapshot struct {
	ConnectedSessions    int
	DisconnectedSessions int
	TotalSystemBytes     uint64
	FreeSystemBytes      uint64
	ProcessRSSBytes      uint64
}

// HealthSnapshot gathers a point-in-time resource report. It never blocks
// on external timers; all readings are instantaneous syscalls/file reads.
func (m *Manager) HealthSnapshot() HealthSnapshot {
	m.mu.Lock()
	h := HealthSnapshot{
		TotalSystemBytes: memory.TotalMemory(),
		FreeSystemBytes:  memory.FreeMemory(),
	}
	for _, s := range m.sessions {
		switch s.Status {
		case StatusConnected:
			h.ConnectedSessions++
		case StatusDisconnected:
			h.DisconnectedSessions++
		}
	}
	m.mu.Unlock()

	if fs, err := procfs.NewDefaultFS(); err == nil {
		if proc, err := fs.Proc(os.Getpid()); err == nil {
			if stat, err := proc.Stat(); err == nil {
				h.ProcessRSSBytes = uint64(stat.ResidentMemory())
			}
		}
	}
	return h
}

// connectedState, disconnectedState, and expiredState follow the
// teacher's Rob-Pike state-function pattern: each returns the next
// state function, driven externally via SetState rather than
// self-transitioning, since session transitions are caller-triggered
// events (disconnect, reconnect, sweep) rather than an internal loop.
func connectedState(s *Session, cb func(string, statemachine.StateEvent)) statemachine.StateFn[Session] {
	if cb != nil {
		cb("Connected", statemachine.StateEntered)
	}
	return connectedState
}

func disconnectedState(s *Session, cb func(string, statemachine.StateEvent)) statemachine.StateFn[Session] {
	if cb != nil {
		cb("Disconnected", statemachine.StateEntered)
	}
	return disconnectedState
}

func expiredState(s *Session, cb func(string, statemachine.StateEvent)) statemachine.StateFn[Session] {
	if cb != nil {
		cb("Expired", statemachine.StateEntered)
	}
	return expiredState
}
