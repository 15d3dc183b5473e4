// Package verify implements the Replay Verifier (spec §4.11): given
// recorded hand data, it independently re-executes the hand through the
// same Replay Engine and Settlement Engine the live path uses, then
// compares the outcome against what was recorded. Grounded on the
// command-sequence replay + invariant-check pattern of AttaboyGO's
// ledger ReplayHarness, adapted from a Postgres-backed wallet engine to
// this module's pure, in-memory replay/settlement pair.
package verify

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/cards"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/events"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/ledger"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/rake"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/rank"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/replay"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/settlement"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/sidepot"
)

// Verdict classifies the outcome of one hand's verification.
type Verdict int

const (
	Match Verdict = iota
	Mismatch
	Error
)

func (v Verdict) String() string {
	switch v {
	case Match:
		return "Match"
	case Mismatch:
		return "Mismatch"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Diff describes one field that disagreed between the recorded hand and
// the replayed result.
type Diff struct {
	Field    string
	Expected interface{}
	Actual   interface{}
}

// Result is the outcome of verifying one hand.
type Result struct {
	HandID  string
	Verdict Verdict
	Diffs   []Diff
	Err     error
}

// RecordedHand is everything needed to independently re-derive a hand's
// outcome: its event log (initial players, dealer/blinds, full action
// list) plus the externally recorded claims to check it against.
type RecordedHand struct {
	HandID  string
	TableID string
	ClubID  string
	Events  []events.Event

	ExpectedFinalStacks map[string]int64
	ExpectedRake        int64
	ExpectedWinnings    map[string]int64 // playerID -> total amount won across all pots

	RakePolicy  rake.Policy
	RakeContext rake.Context
	Ranker      rank.Ranker
	HoleCards   map[string][2]cards.Card
	Board       []cards.Card
	OddChipRule settlement.OddChipRule
	DealerSeat  int
	Timestamp   int64

	// Optional: when non-empty, checked against the hashes this verifier
	// computes from the same serialization (spec §4.11's frozen FNV hash).
	RecordedLedgerAttributionHash string
	RecordedIntegrityChecksum     string
}

// Verify re-executes a recorded hand deterministically and compares the
// result field by field. It never mutates RecordedHand or touches a live
// Ledger: settlement runs against a scratch ledger created for this call
// alone, so verification has no side effects on production state.
func Verify(h RecordedHand) Result {
	snap, err := replay.Process(h.Events, len(h.Events)-1)
	if err != nil {
		return Result{HandID: h.HandID, Verdict: Error, Err: fmt.Errorf("verify: replay failed: %w", err)}
	}
	if !snap.Finished {
		return Result{HandID: h.HandID, Verdict: Error, Err: fmt.Errorf("verify: hand %s did not reach HandEnd", h.HandID)}
	}

	var diffs []Diff
	for _, p := range snap.Players {
		expected, ok := h.ExpectedFinalStacks[p.PlayerID]
		if !ok {
			continue
		}
		if expected != p.Stack {
			diffs = append(diffs, Diff{Field: "final_stack:" + p.PlayerID, Expected: expected, Actual: p.Stack})
		}
	}

	contributions := make([]sidepot.Contribution, 0, len(snap.Players))
	for _, p := range snap.Players {
		contributions = append(contributions, sidepot.Contribution{
			PlayerID:          p.PlayerID,
			SeatIndex:         p.SeatIndex,
			TotalContribution: p.TotalContribution,
			IsAllIn:           p.AllIn,
			IsFolded:          p.Folded,
		})
	}

	uncontested := ""
	if len(snap.Winners) == 1 {
		uncontested = snap.Winners[0].PlayerID
	}

	scratch := ledger.New(h.ClubID, nil)

	// This scratch ledger starts with nothing on it, but settlement still
	// debits each contributor for their stake (I7). Recognize each stake
	// as already in play before settling, same as a live table would have
	// recorded it as a buy-in — the scratch ledger is discarded after
	// Verify returns, so this has no effect beyond this call.
	for _, c := range contributions {
		if c.TotalContribution == 0 {
			continue
		}
		if _, err := scratch.Append(ledger.Record{
			HandID: h.HandID, TableID: h.TableID, ClubID: h.ClubID,
			PlayerID: c.PlayerID, Party: ledger.PartyPlayer, Kind: ledger.KindBuyIn,
			Amount: c.TotalContribution, Timestamp: h.Timestamp,
		}); err != nil {
			return Result{HandID: h.HandID, Verdict: Error, Err: fmt.Errorf("verify: funding scratch ledger failed: %w", err)}
		}
	}

	engine := settlement.New(scratch)
	outcome, err := engine.Settle(settlement.Request{
		HandID:            h.HandID,
		TableID:           h.TableID,
		ClubID:            h.ClubID,
		DealerSeat:        h.DealerSeat,
		Contributions:     contributions,
		RakePolicy:        h.RakePolicy,
		RakeContext:       h.RakeContext,
		Ranker:            h.Ranker,
		HoleCards:         h.HoleCards,
		Board:             h.Board,
		UncontestedWinner: uncontested,
		OddChipRule:       h.OddChipRule,
		Timestamp:         h.Timestamp,
	})
	if err != nil {
		return Result{HandID: h.HandID, Verdict: Error, Err: fmt.Errorf("verify: settlement failed: %w", err)}
	}

	if h.ExpectedRake != 0 && outcome.Rake != h.ExpectedRake {
		diffs = append(diffs, Diff{Field: "rake", Expected: h.ExpectedRake, Actual: outcome.Rake})
	}

	actualWinnings := make(map[string]int64)
	for _, pot := range outcome.Pots {
		for _, w := range pot.Winners {
			actualWinnings[w.PlayerID] += w.Amount
		}
	}
	for playerID, expected := range h.ExpectedWinnings {
		if actualWinnings[playerID] != expected {
			diffs = append(diffs, Diff{Field: "winnings:" + playerID, Expected: expected, Actual: actualWinnings[playerID]})
		}
	}

	netDeltas := computeNetDeltas(h.Events, snap)
	attributionHash := AttributionHash(h.HandID, netDeltas, outcome.Rake)
	integrityHash := IntegrityHash(h.HandID, netDeltas, outcome.Rake, actionSequence(h.Events))

	if h.RecordedLedgerAttributionHash != "" && h.RecordedLedgerAttributionHash != attributionHash {
		diffs = append(diffs, Diff{Field: "ledger_attribution_hash", Expected: h.RecordedLedgerAttributionHash, Actual: attributionHash})
	}
	if h.RecordedIntegrityChecksum != "" && h.RecordedIntegrityChecksum != integrityHash {
		diffs = append(diffs, Diff{Field: "integrity_checksum", Expected: h.RecordedIntegrityChecksum, Actual: integrityHash})
	}

	if len(diffs) > 0 {
		return Result{HandID: h.HandID, Verdict: Mismatch, Diffs: diffs}
	}
	return Result{HandID: h.HandID, Verdict: Match}
}

// NetDelta is one player's chip change across the hand: final stack minus
// starting stack.
type NetDelta struct {
	PlayerID string
	Delta    int64
}

func computeNetDeltas(evs []events.Event, snap *replay.Snapshot) []NetDelta {
	starting := make(map[string]int64)
	for _, e := range evs {
		if e.Kind == events.KindHandStart && e.HandStart != nil {
			for _, sp := range e.HandStart.Players {
				starting[sp.PlayerID] = sp.StartingStack
			}
		}
	}

	deltas := make([]NetDelta, 0, len(snap.Players))
	for _, p := range snap.Players {
		deltas = append(deltas, NetDelta{PlayerID: p.PlayerID, Delta: p.Stack - starting[p.PlayerID]})
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].PlayerID < deltas[j].PlayerID })
	return deltas
}

func actionSequence(evs []events.Event) []string {
	seq := make([]string, 0, len(evs))
	for _, e := range evs {
		switch e.Kind {
		case events.KindBet, events.KindCall, events.KindRaise, events.KindAllIn:
			seq = append(seq, fmt.Sprintf("%d:%s:%d", e.Kind, e.Action.PlayerID, e.Action.Amount))
		case events.KindCheck:
			seq = append(seq, fmt.Sprintf("%d:%s", e.Kind, e.Check.PlayerID))
		case events.KindFold:
			seq = append(seq, fmt.Sprintf("%d:%s", e.Kind, e.Fold.PlayerID))
		default:
			seq = append(seq, fmt.Sprintf("%d", e.Kind))
		}
	}
	return seq
}

// AttributionHash is the frozen, deterministic non-cryptographic hash
// spec §4.11 requires: hand_id, per-player net delta sorted, and rake.
func AttributionHash(handID string, deltas []NetDelta, rakeAmount int64) string {
	h := fnv.New32a()
	h.Write([]byte(handID))
	h.Write([]byte{0})
	for _, d := range deltas {
		h.Write([]byte(d.PlayerID))
		h.Write([]byte{0})
		h.Write([]byte(fmt.Sprintf("%d", d.Delta)))
		h.Write([]byte{0})
	}
	h.Write([]byte(fmt.Sprintf("%d", rakeAmount)))
	return fmt.Sprintf("%08x", h.Sum32())
}

// IntegrityHash extends AttributionHash with the full action sequence, so
// two hands with identical net deltas but different play lines still
// produce different checksums.
func IntegrityHash(handID string, deltas []NetDelta, rakeAmount int64, actions []string) string {
	h := fnv.New32a()
	h.Write([]byte(AttributionHash(handID, deltas, rakeAmount)))
	for _, a := range actions {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%08x", h.Sum32())
}

// BatchResult summarizes verification across many hands.
type BatchResult struct {
	Total     int
	Matched   int
	Mismatched int
	Errored   int
	Results   []Result
}

// VerifyBatch runs Verify over a collection and tallies outcomes.
func VerifyBatch(hands []RecordedHand) BatchResult {
	batch := BatchResult{Total: len(hands), Results: make([]Result, 0, len(hands))}
	for _, h := range hands {
		res := Verify(h)
		batch.Results = append(batch.Results, res)
		switch res.Verdict {
		case Match:
			batch.Matched++
		case Mismatch:
			batch.Mismatched++
		case Error:
			batch.Errored++
		}
	}
	return batch
}
