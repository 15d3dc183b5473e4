// Package config collects the engine's external configuration surface
// (spec §6) into one flat set of structs and translates it into the
// native Config types each component package expects. Grounded on the
// teacher's pkg/poker.GameConfig / pkg/poker.TableConfig: one flat
// struct per concern, durations and amounts documented inline, no
// nested builder API.
package config

import (
	"time"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/rake"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/session"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/settlement"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/sync"
)

// SessionConfig bounds the Session Manager's lifecycle behavior, in
// milliseconds as the external interface names them.
type SessionConfig struct {
	SessionTimeoutMS     int64 // reserved: not carried into session.Config
	ReconnectWindowMS    int64
	MaxReconnectAttempts int
	ResumeTokenTTLMS     int64 // reserved: resume tokens currently inherit ReconnectWindowMS
	MaxSessionsPerPlayer int
	HeartbeatIntervalMS  int64 // informational: client-side heartbeat cadence, not enforced engine-side
	HeartbeatTimeoutMS   int64
}

// DefaultSessionConfig matches session.DefaultConfig's cardroom defaults,
// expressed in milliseconds.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SessionTimeoutMS:     120_000,
		ReconnectWindowMS:    120_000,
		MaxReconnectAttempts: 5,
		ResumeTokenTTLMS:     120_000,
		MaxSessionsPerPlayer: 1,
		HeartbeatIntervalMS:  10_000,
		HeartbeatTimeoutMS:   30_000,
	}
}

// ToSessionManagerConfig converts the millisecond external surface into
// session.Config's second-denominated internal fields.
func (c SessionConfig) ToSessionManagerConfig() session.Config {
	return session.Config{
		MaxSessionsPerPlayer: c.MaxSessionsPerPlayer,
		ReconnectWindow:      c.ReconnectWindowMS / 1000,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		HeartbeatTimeout:      c.HeartbeatTimeoutMS / 1000,
	}
}

// SnapshotConfig bounds the Snapshot Manager's anchor retention.
type SnapshotConfig struct {
	MaxCachedSnapshots int
	SnapshotInterval   uint64
	MaxDiffOperations  int // reserved: caps diff size at the call site, not enforced inside Manager.Apply
}

// DefaultSnapshotConfig anchors every 50th version and keeps 20 anchors.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		MaxCachedSnapshots: 20,
		SnapshotInterval:   50,
		MaxDiffOperations:  500,
	}
}

// SyncConfig bounds the Sync Service's full-snapshot/incremental decision
// and broadcast fan-out.
type SyncConfig struct {
	MaxDiffsInResponse     int
	ForceSnapshotThreshold uint64
	PendingAckBacklogLimit int
	BroadcastQueueSize     int
	BroadcastWorkers       int
}

// DefaultSyncConfig matches sync.DefaultConfig.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxDiffsInResponse:     100,
		ForceSnapshotThreshold: 50,
		PendingAckBacklogLimit: 10,
		BroadcastQueueSize:     256,
		BroadcastWorkers:       4,
	}
}

// TimelineConfig bounds the per-table cursor stream.
type TimelineConfig struct {
	MaxEntriesInMemory int
	EntryTTLMS         int64 // reserved: Timeline currently evicts by count, not age
	GapThreshold       uint64
}

// DefaultTimelineConfig retains 1000 entries in memory and treats a gap
// of more than 50 cursors as critical.
func DefaultTimelineConfig() TimelineConfig {
	return TimelineConfig{
		MaxEntriesInMemory: 1000,
		EntryTTLMS:         int64(10 * time.Minute / time.Millisecond),
		GapThreshold:       50,
	}
}

// RakeConfig is the effective rake policy surface, in the same units as
// rake.Policy.
type RakeConfig struct {
	RateMilli         int64
	CapAmount         int64
	WaiveNoFlop       bool
	WaiveUncontested  bool
	MinPlayersForRake int
}

// DefaultRakeConfig matches rake.DefaultPolicy.
func DefaultRakeConfig() RakeConfig {
	return RakeConfig{
		RateMilli:         50,
		CapAmount:         0,
		WaiveNoFlop:       true,
		WaiveUncontested:  false,
		MinPlayersForRake: 2,
	}
}

// ToPolicy converts to rake.Policy.
func (c RakeConfig) ToPolicy() rake.Policy {
	return rake.Policy{
		RateMilli:          c.RateMilli,
		CapAmount:           c.CapAmount,
		MinPlayersForRake:  c.MinPlayersForRake,
		WaiveOnNoFlop:      c.WaiveNoFlop,
		WaiveOnUncontested: c.WaiveUncontested,
	}
}

// SettlementConfig selects the Settlement Engine's odd-chip policy and
// carries two feature flags.
type SettlementConfig struct {
	OddChipRule        settlement.OddChipRule
	EnableRake         bool // reserved: settlement.Engine always evaluates its rake.Policy
	EnableIdempotency  bool // reserved: settlement.Engine always caches outcomes by hand and table
}

// DefaultSettlementConfig sets both flags and resolves odd chips to the
// alphabetically first winner by player ID (spec Q3's chosen default).
func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		OddChipRule:       settlement.FirstWinner,
		EnableRake:        true,
		EnableIdempotency: true,
	}
}

// EngineConfig aggregates every component's configuration into the one
// surface an operator tunes.
type EngineConfig struct {
	Session    SessionConfig
	Snapshot   SnapshotConfig
	Sync       SyncConfig
	Timeline   TimelineConfig
	Rake       RakeConfig
	Settlement SettlementConfig
}

// Default returns the engine's out-of-the-box configuration.
func Default() EngineConfig {
	return EngineConfig{
		Session:    DefaultSessionConfig(),
		Snapshot:   DefaultSnapshotConfig(),
		Sync:       DefaultSyncConfig(),
		Timeline:   DefaultTimelineConfig(),
		Rake:       DefaultRakeConfig(),
		Settlement: DefaultSettlementConfig(),
	}
}

// ToSyncServiceConfig converts the aggregated Sync/Timeline surface into
// sync.Config, which owns both the response-kind thresholds and the
// broadcast worker pool sizing.
func (e EngineConfig) ToSyncServiceConfig() sync.Config {
	return sync.Config{
		ForceSnapshotThreshold: e.Sync.ForceSnapshotThreshold,
		GapThreshold:           e.Timeline.GapThreshold,
		MaxDiffsInResponse:     e.Sync.MaxDiffsInResponse,
		PendingAckBacklogLimit: e.Sync.PendingAckBacklogLimit,
		BroadcastQueueSize:     e.Sync.BroadcastQueueSize,
		BroadcastWorkers:       e.Sync.BroadcastWorkers,
	}
}
