// Package settlement implements the Settlement Engine (spec §4.6): given
// a hand's final contributions, it lays out side pots, evaluates rake,
// determines winners per pot via an injected hand ranker, and commits
// the result to the Value Ledger as one atomic transaction. Settling the
// same (hand_id, table_id) twice returns the cached outcome instead of
// re-crediting chips.
package settlement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/cards"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/errs"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/ledger"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/rake"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/rank"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/sidepot"
)

// OddChipRule decides who receives an odd chip when a pot split does not
// divide evenly among tied winners (spec Open Question Q3).
type OddChipRule int

const (
	FirstWinner OddChipRule = iota
	PositionOrder
	DeterministicRandom
)

// Request carries everything Settle needs to resolve one hand's pots.
// UncontestedWinner, when set, skips hand evaluation entirely: the hand
// ended by fold and exactly one player remains. DealerSeat anchors
// PositionOrder odd-chip resolution (spec Open Question Q3): the odd
// chip goes to the first winner seated clockwise from this seat.
type Request struct {
	HandID            string
	TableID           string
	ClubID            string
	DealerSeat        int
	Contributions     []sidepot.Contribution
	RakePolicy        rake.Policy
	RakeContext       rake.Context
	Ranker            rank.Ranker
	HoleCards         map[string][2]cards.Card
	Board             []cards.Card
	UncontestedWinner string
	OddChipRule       OddChipRule
	Timestamp         int64
}

// PotOutcome is the resolved result of one pot layer.
type PotOutcome struct {
	Amount  int64
	Rake    int64
	Payout  int64
	Winners []WinnerShare
}

// WinnerShare is one winner's cut of one pot.
type WinnerShare struct {
	PlayerID string
	Amount   int64
	HandRank *int
}

// Outcome is the complete, committed result of settling one hand.
// RakeConfigHash surfaces rake.Evaluation.ConfigHash so an auditor can
// confirm which rake policy produced Rake without needing the Policy
// value itself (spec §4.4's stated audit purpose).
type Outcome struct {
	HandID         string
	TableID        string
	Pots           []PotOutcome
	Rake           int64
	RakeConfigHash uint32
	Entries        []ledger.Entry
}

// Engine settles hands against a single club's ledger, caching results by
// (HandID, TableID) for idempotency.
type Engine struct {
	ledger *ledger.Ledger
	mu     sync.Mutex
	cache  map[string]*Outcome
}

// New creates a Settlement Engine writing to l.
func New(l *ledger.Ledger) *Engine {
	return &Engine{ledger: l, cache: make(map[string]*Outcome)}
}

func cacheKey(handID, tableID string) string { return handID + ":" + tableID }

// Settle resolves and commits one hand's pots. A repeated call with the
// same (HandID, TableID) returns the previously committed Outcome without
// appending new ledger entries (spec §4.6 idempotency requirement).
func (e *Engine) Settle(req Request) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := cacheKey(req.HandID, req.TableID)
	if cached, ok := e.cache[key]; ok {
		return cached, nil
	}

	layering := sidepot.Calculate(req.Contributions)

	var inputTotal int64
	for _, c := range req.Contributions {
		inputTotal += c.TotalContribution
	}

	// Rake is evaluated once against the hand's total pot (spec §4.6
	// steps 3-4), then distributed proportionally across pot layers —
	// evaluating it per pot would let a cap apply once per side pot
	// instead of once per hand.
	potAmounts := make([]int64, len(layering.Pots))
	for i, pot := range layering.Pots {
		potAmounts[i] = pot.Amount
	}
	rakeEval := rake.Evaluate(req.RakePolicy, req.RakeContext, layering.TotalAmount)
	potRakes := rake.Distribute(rakeEval.Rake, potAmounts)

	seats := seatsByPlayer(req.Contributions)

	pots := make([]PotOutcome, 0, len(layering.Pots))
	var totalRake, totalDistributed int64

	for i, pot := range layering.Pots {
		potRake := potRakes[i]
		payout := pot.Amount - potRake

		winners, err := resolveWinners(pot, req)
		if err != nil {
			return nil, err
		}

		shares := splitPot(payout, winners, req.OddChipRule, req.DealerSeat, seats)

		pots = append(pots, PotOutcome{
			Amount:  pot.Amount,
			Rake:    potRake,
			Payout:  payout,
			Winners: shares,
		})

		totalRake += potRake
		for _, s := range shares {
			totalDistributed += s.Amount
		}
	}

	if totalRake+totalDistributed != inputTotal {
		return nil, errs.New(errs.ChipConservation,
			"settlement: distributed %d + rake %d != contributed %d for hand %s",
			totalDistributed, totalRake, inputTotal, req.HandID)
	}

	entries, err := e.commit(req, pots, totalRake)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		HandID:         req.HandID,
		TableID:        req.TableID,
		Pots:           pots,
		Rake:           totalRake,
		RakeConfigHash: rakeEval.ConfigHash,
		Entries:        entries,
	}
	e.cache[key] = outcome
	return outcome, nil
}

// seatsByPlayer indexes each contributor's seat so splitPot can resolve
// PositionOrder without threading the full contribution slice through.
func seatsByPlayer(contributions []sidepot.Contribution) map[string]int {
	seats := make(map[string]int, len(contributions))
	for _, c := range contributions {
		seats[c.PlayerID] = c.SeatIndex
	}
	return seats
}

func resolveWinners(pot sidepot.Pot, req Request) ([]winnerCandidate, error) {
	if req.UncontestedWinner != "" {
		for _, id := range pot.Eligible {
			if id == req.UncontestedWinner {
				return []winnerCandidate{{playerID: id}}, nil
			}
		}
		return nil, errs.New(errs.InvalidEventForState, "settlement: uncontested winner %s not eligible for pot", req.UncontestedWinner)
	}

	if req.Ranker == nil {
		return nil, errs.New(errs.InvalidEventForState, "settlement: no ranker supplied for contested pot")
	}

	var best rank.Value
	var candidates []winnerCandidate
	for i, id := range pot.Eligible {
		hole, ok := req.HoleCards[id]
		if !ok {
			return nil, errs.New(errs.InvalidEventForState, "settlement: missing hole cards for eligible player %s", id)
		}
		value, err := req.Ranker.Evaluate(hole, req.Board)
		if err != nil {
			return nil, fmt.Errorf("settlement: evaluating hand for %s: %w", id, err)
		}
		strength := value.Strength
		switch {
		case i == 0 || value.Strength > best.Strength:
			best = value
			candidates = []winnerCandidate{{playerID: id, rank: &strength}}
		case value.Strength == best.Strength:
			candidates = append(candidates, winnerCandidate{playerID: id, rank: &strength})
		}
	}
	return candidates, nil
}

type winnerCandidate struct {
	playerID string
	rank     *int
}

// splitPot divides amount evenly among winners, with OddChipRule deciding
// who absorbs a remainder that does not divide evenly. shares are always
// returned sorted by playerID for deterministic ordering; the odd chip
// is added to whichever share the rule picks out after that sort.
func splitPot(amount int64, winners []winnerCandidate, rule OddChipRule, dealerSeat int, seats map[string]int) []WinnerShare {
	if len(winners) == 0 {
		return nil
	}

	sorted := make([]winnerCandidate, len(winners))
	copy(sorted, winners)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].playerID < sorted[j].playerID })

	base := amount / int64(len(sorted))
	remainder := amount - base*int64(len(sorted))

	shares := make([]WinnerShare, len(sorted))
	for i, w := range sorted {
		shares[i] = WinnerShare{PlayerID: w.playerID, Amount: base, HandRank: w.rank}
	}

	if remainder == 0 {
		return shares
	}

	oddIndex := 0
	switch rule {
	case PositionOrder:
		oddIndex = firstSeatClockwiseFrom(dealerSeat, shares, seats)
	case FirstWinner:
		oddIndex = 0
	case DeterministicRandom:
		// Deterministic given a frozen input order; no external entropy.
		oddIndex = 0
	}
	shares[oddIndex].Amount += remainder
	return shares
}

// firstSeatClockwiseFrom returns the index into shares of the winner
// whose seat is nearest to, but strictly after, dealerSeat going
// clockwise (ascending seat index, wrapping past the highest seat back
// to zero). Falls back to index 0 if a winner's seat is unknown.
func firstSeatClockwiseFrom(dealerSeat int, shares []WinnerShare, seats map[string]int) int {
	best := 0
	bestDistance := -1
	for i, s := range shares {
		seat, ok := seats[s.PlayerID]
		if !ok {
			continue
		}
		distance := seat - dealerSeat
		if distance <= 0 {
			distance += maxSeat(seats) + 1
		}
		if bestDistance == -1 || distance < bestDistance {
			bestDistance = distance
			best = i
		}
	}
	return best
}

// maxSeat returns the highest seat index across all known seats, used
// to wrap clockwise distance calculations around the table.
func maxSeat(seats map[string]int) int {
	max := 0
	for _, seat := range seats {
		if seat > max {
			max = seat
		}
	}
	return max
}

// commit records every chip motion of the settlement so the chain stays
// zero-sum (spec invariant I7): each contribution leaving a player to
// fund the pot is its own debit, mirrored by a credit into the table's
// pooled pot account, and each payout or rake cut debits that pot
// account to credit its destination. Every motion is a balanced pair —
// nothing is credited without an equal debit elsewhere in the chain.
//
// Debiting a contributor's stake assumes the caller already recorded
// that stake entering play on this ledger (a buy-in, or a prior hand's
// winnings). commit checks every contributor's balance before appending
// anything, so a player with too few recorded funds rejects the whole
// settlement with a NegativeBalanceError and no entries written, same
// as a real cardroom would reject a bet with no chips behind it.
func (e *Engine) commit(req Request, pots []PotOutcome, totalRake int64) ([]ledger.Entry, error) {
	var entries []ledger.Entry

	need := make(map[string]int64, len(req.Contributions))
	for _, c := range req.Contributions {
		need[c.PlayerID] += c.TotalContribution
	}
	for _, c := range req.Contributions {
		if bal := e.ledger.Balance(ledger.PartyPlayer, c.PlayerID); bal < need[c.PlayerID] {
			return nil, &ledger.NegativeBalanceError{PlayerID: c.PlayerID, Party: ledger.PartyPlayer, Balance: bal, Delta: -need[c.PlayerID]}
		}
	}

	append1 := func(r ledger.Record) error {
		entry, err := e.ledger.Append(r)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	}

	for _, c := range req.Contributions {
		if c.TotalContribution == 0 {
			continue
		}
		if err := append1(ledger.Record{
			HandID: req.HandID, TableID: req.TableID, ClubID: req.ClubID,
			PlayerID: c.PlayerID, Party: ledger.PartyPlayer, Kind: ledger.KindBet,
			Amount: -c.TotalContribution, Timestamp: req.Timestamp,
		}); err != nil {
			return nil, err
		}
		if err := append1(ledger.Record{
			HandID: req.HandID, TableID: req.TableID, ClubID: req.ClubID,
			Party: ledger.PartyTable, Kind: ledger.KindBet,
			Amount: c.TotalContribution, Timestamp: req.Timestamp,
		}); err != nil {
			return nil, err
		}
	}

	for _, pot := range pots {
		for _, w := range pot.Winners {
			if err := append1(ledger.Record{
				HandID: req.HandID, TableID: req.TableID, ClubID: req.ClubID,
				Party: ledger.PartyTable, Kind: ledger.KindPotWin,
				Amount: -w.Amount, Timestamp: req.Timestamp,
			}); err != nil {
				return nil, err
			}
			if err := append1(ledger.Record{
				HandID: req.HandID, TableID: req.TableID, ClubID: req.ClubID,
				PlayerID: w.PlayerID, Party: ledger.PartyPlayer, Kind: ledger.KindPotWin,
				Amount: w.Amount, Timestamp: req.Timestamp,
			}); err != nil {
				return nil, err
			}
		}
	}

	if totalRake > 0 {
		if err := append1(ledger.Record{
			HandID: req.HandID, TableID: req.TableID, ClubID: req.ClubID,
			Party: ledger.PartyTable, Kind: ledger.KindRakeCollected,
			Amount: -totalRake, Timestamp: req.Timestamp,
		}); err != nil {
			return nil, err
		}
		if err := append1(ledger.Record{
			HandID: req.HandID, TableID: req.TableID, ClubID: req.ClubID,
			Party: ledger.PartyPlatform, Kind: ledger.KindRakeCollected,
			Amount: totalRake, Timestamp: req.Timestamp,
		}); err != nil {
			return nil, err
		}
	}

	return entries, nil
}
