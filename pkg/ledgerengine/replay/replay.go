// Package replay implements the Hand Replay Engine (spec §4.2): a pure
// fold function over a recorded event log that reproduces an exact
// table state at any point in a hand's history. Process never mutates
// its input, never consults a clock, and never calls into the network
// or persistence layers — every input it needs arrives in the event
// log itself.
package replay

import (
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/cards"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/errs"
	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/events"
)

// Action is one legal move a player to act can make.
type Action int

const (
	ActionFold Action = iota
	ActionCheck
	ActionCall
	ActionBet
	ActionRaise
	ActionAllIn
)

func (a Action) String() string {
	switch a {
	case ActionFold:
		return "fold"
	case ActionCheck:
		return "check"
	case ActionCall:
		return "call"
	case ActionBet:
		return "bet"
	case ActionRaise:
		return "raise"
	case ActionAllIn:
		return "all_in"
	default:
		return "unknown"
	}
}

// PlayerState is one seated player's state at a point in the hand.
type PlayerState struct {
	PlayerID           string
	SeatIndex          int
	Stack              int64
	StreetContribution int64
	TotalContribution  int64
	Folded             bool
	AllIn              bool
	HoleCards          [2]cards.Card
	HasHoleCards       bool
	Revealed           bool // shown at or after Showdown
}

// Snapshot is the complete, deterministic table state after folding a
// prefix of a hand's event log. The zero Snapshot represents a hand that
// has not yet started (Process(events, -1) per Q1).
type Snapshot struct {
	HandID          string
	Started         bool
	Street          events.Street
	Dealer          int
	SBSeat          int
	BBSeat          int
	BBAmount        int64
	Players         []PlayerState // ordered by SeatIndex ascending
	CommunityCards  []cards.Card
	CurrentTurnSeat int
	Finished        bool
	EndReason       events.HandEndReason
	Winners         []events.Winner
	EventsApplied   int

	// PotTotal, AmountToCall, MinRaise and ValidActions are derived state,
	// recomputed after every event rather than carried forward by hand —
	// a client rendering a table only needs the latest Snapshot to know
	// what the player to act may legally do.
	PotTotal     int64
	AmountToCall int64
	MinRaise     int64
	ValidActions []Action

	lastRaiseSize int64
}

func (s *Snapshot) clone() *Snapshot {
	out := *s
	out.Players = make([]PlayerState, len(s.Players))
	copy(out.Players, s.Players)
	out.CommunityCards = make([]cards.Card, len(s.CommunityCards))
	copy(out.CommunityCards, s.CommunityCards)
	out.Winners = make([]events.Winner, len(s.Winners))
	copy(out.Winners, s.Winners)
	return &out
}

func (s *Snapshot) find(playerID string) (int, bool) {
	for i := range s.Players {
		if s.Players[i].PlayerID == playerID {
			return i, true
		}
	}
	return 0, false
}

// Process folds events[0..upTo] (inclusive) into a Snapshot. upTo = -1
// returns the zero (not-yet-started) snapshot; upTo must otherwise be a
// valid index into events. Process is pure: the same (events, upTo)
// always yields a byte-for-byte identical Snapshot (spec invariant I1).
func Process(evs []events.Event, upTo int) (*Snapshot, error) {
	if upTo < -1 || upTo > len(evs)-1 {
		return nil, errs.New(errs.InvalidEventForState, "replay: upTo %d out of range for %d events", upTo, len(evs))
	}

	snap := &Snapshot{}
	for i := 0; i <= upTo; i++ {
		next, err := apply(snap, evs[i], uint64(i))
		if err != nil {
			return nil, err
		}
		next.EventsApplied = i + 1
		snap = next
	}
	return snap, nil
}

func apply(s *Snapshot, e events.Event, seq uint64) (*Snapshot, error) {
	if !s.Started && e.Kind != events.KindHandStart {
		return nil, errs.New(errs.InvalidEventForState, "replay: event kind %d before HandStart", e.Kind).WithSequence(seq)
	}
	if s.Finished {
		return nil, errs.New(errs.InvalidEventForState, "replay: event kind %d after HandEnd", e.Kind).WithSequence(seq)
	}

	next := s.clone()

	var result *Snapshot
	var err error
	switch e.Kind {
	case events.KindHandStart:
		result, err = applyHandStart(next, e.HandStart, seq)
	case events.KindPostBlind:
		result, err = applyPostBlind(next, e.PostBlind, seq)
	case events.KindDealHole:
		result, err = applyDealHole(next, e.DealHole, seq)
	case events.KindStreetStart:
		result, err = applyStreetStart(next, e.StreetStart, seq)
	case events.KindBet, events.KindCall, events.KindRaise:
		result, err = applyAction(next, e.Action, seq, false)
	case events.KindAllIn:
		result, err = applyAction(next, e.Action, seq, true)
	case events.KindCheck:
		result, err = applyCheck(next, e.Check, seq)
	case events.KindFold:
		result, err = applyFold(next, e.Fold, seq)
	case events.KindDealCommunity:
		result, err = applyDealCommunity(next, e.DealCommunity, seq)
	case events.KindShowdown:
		result, err = applyShowdown(next, seq)
	case events.KindHandEnd:
		result, err = applyHandEnd(next, e.HandEnd, seq)
	default:
		return nil, errs.New(errs.InvalidEventForState, "replay: unrecognized event kind %d", e.Kind).WithSequence(seq)
	}
	if err != nil {
		return nil, err
	}
	result.finalizeDerived()
	return result, nil
}

// finalizeDerived recomputes the fields a client needs to render the
// current decision point: the running pot, what the player to act owes
// to call, the minimum legal raise-to amount, and which actions are on
// the table. Computed fresh after every event instead of maintained
// incrementally, so a bug in one street's bookkeeping can never leak
// into the next.
func (s *Snapshot) finalizeDerived() {
	var pot int64
	for _, p := range s.Players {
		pot += p.TotalContribution
	}
	s.PotTotal = pot

	if !s.Started || s.Finished {
		s.AmountToCall = 0
		s.MinRaise = 0
		s.ValidActions = nil
		return
	}

	idx, ok := s.find(seatPlayerID(s, s.CurrentTurnSeat))
	if !ok || s.Players[idx].Folded || s.Players[idx].AllIn {
		s.AmountToCall = 0
		s.MinRaise = 0
		s.ValidActions = nil
		return
	}

	max := streetMax(s)
	toCall := max - s.Players[idx].StreetContribution
	if toCall < 0 {
		toCall = 0
	}
	s.AmountToCall = toCall
	s.MinRaise = max + s.lastRaiseSize

	actions := []Action{ActionFold, ActionAllIn}
	if toCall == 0 {
		actions = append(actions, ActionCheck, ActionBet)
	} else {
		actions = append(actions, ActionCall, ActionRaise)
	}
	s.ValidActions = actions
}

func applyHandStart(s *Snapshot, d *events.HandStartData, seq uint64) (*Snapshot, error) {
	if s.Started {
		return nil, errs.New(errs.InvalidEventForState, "replay: duplicate HandStart").WithSequence(seq)
	}
	s.HandID = d.HandID
	s.Started = true
	s.Street = events.Preflop
	s.Dealer = d.Dealer
	s.SBSeat = d.SBSeat
	s.BBSeat = d.BBSeat
	s.BBAmount = d.BBAmount
	s.lastRaiseSize = d.BBAmount

	s.Players = make([]PlayerState, len(d.Players))
	for i, p := range d.Players {
		s.Players[i] = PlayerState{PlayerID: p.PlayerID, SeatIndex: p.SeatIndex, Stack: p.StartingStack}
	}
	sortBySeat(s.Players)

	s.CurrentTurnSeat = nextActiveSeat(s, d.BBSeat)
	return s, nil
}

func applyPostBlind(s *Snapshot, d *events.PostBlindData, seq uint64) (*Snapshot, error) {
	idx, ok := s.find(d.PlayerID)
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "replay: PostBlind for unknown player %s", d.PlayerID).WithSequence(seq)
	}
	p := &s.Players[idx]
	if d.Amount < 0 || d.Amount > p.Stack {
		return nil, errs.New(errs.NegativeBalance, "replay: blind %d exceeds stack %d for %s", d.Amount, p.Stack, d.PlayerID).WithSequence(seq)
	}
	p.Stack -= d.Amount
	p.StreetContribution += d.Amount
	p.TotalContribution += d.Amount
	if p.Stack == 0 {
		p.AllIn = true
	}
	return s, nil
}

func applyDealHole(s *Snapshot, d *events.DealHoleData, seq uint64) (*Snapshot, error) {
	idx, ok := s.find(d.PlayerID)
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "replay: DealHole for unknown player %s", d.PlayerID).WithSequence(seq)
	}
	s.Players[idx].HoleCards = d.Cards
	s.Players[idx].HasHoleCards = true
	return s, nil
}

func applyStreetStart(s *Snapshot, d *events.StreetStartData, seq uint64) (*Snapshot, error) {
	if d.Street.Index() <= s.Street.Index() {
		return nil, errs.New(errs.InvalidEventForState, "replay: StreetStart %s does not advance from %s", d.Street, s.Street).WithSequence(seq)
	}
	s.Street = d.Street
	for i := range s.Players {
		s.Players[i].StreetContribution = 0
	}
	s.lastRaiseSize = s.BBAmount
	s.CurrentTurnSeat = nextActiveSeat(s, s.Dealer)
	return s, nil
}

func applyAction(s *Snapshot, d *events.ActionData, seq uint64, allIn bool) (*Snapshot, error) {
	idx, ok := s.find(d.PlayerID)
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "replay: action for unknown player %s", d.PlayerID).WithSequence(seq)
	}
	p := &s.Players[idx]
	if p.Folded {
		return nil, errs.New(errs.InvalidEventForState, "replay: action for folded player %s", d.PlayerID).WithSequence(seq)
	}
	if p.AllIn {
		return nil, errs.New(errs.InvalidEventForState, "replay: action for already-all-in player %s", d.PlayerID).WithSequence(seq)
	}
	if d.Amount < p.StreetContribution {
		return nil, errs.New(errs.InvalidEventForState, "replay: action amount %d regresses street contribution %d for %s", d.Amount, p.StreetContribution, d.PlayerID).WithSequence(seq)
	}

	delta := d.Amount - p.StreetContribution
	if delta > p.Stack {
		return nil, errs.New(errs.NegativeBalance, "replay: action delta %d exceeds stack %d for %s", delta, p.Stack, d.PlayerID).WithSequence(seq)
	}

	priorMax := streetMax(s)
	if raiseSize := d.Amount - priorMax; raiseSize > 0 {
		s.lastRaiseSize = raiseSize
	}

	p.Stack -= delta
	p.StreetContribution = d.Amount
	p.TotalContribution += delta
	if allIn || p.Stack == 0 {
		p.AllIn = true
	}

	s.CurrentTurnSeat = nextActiveSeat(s, p.SeatIndex)
	return s, nil
}

func applyCheck(s *Snapshot, d *events.SeatOnly, seq uint64) (*Snapshot, error) {
	idx, ok := s.find(d.PlayerID)
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "replay: Check for unknown player %s", d.PlayerID).WithSequence(seq)
	}
	p := &s.Players[idx]
	if p.Folded || p.AllIn {
		return nil, errs.New(errs.InvalidEventForState, "replay: Check for inactive player %s", d.PlayerID).WithSequence(seq)
	}
	if streetMax(s) != p.StreetContribution {
		return nil, errs.New(errs.InvalidEventForState, "replay: Check with outstanding bet owed by %s", d.PlayerID).WithSequence(seq)
	}
	s.CurrentTurnSeat = nextActiveSeat(s, p.SeatIndex)
	return s, nil
}

func applyFold(s *Snapshot, d *events.SeatOnly, seq uint64) (*Snapshot, error) {
	idx, ok := s.find(d.PlayerID)
	if !ok {
		return nil, errs.New(errs.InvalidEventForState, "replay: Fold for unknown player %s", d.PlayerID).WithSequence(seq)
	}
	p := &s.Players[idx]
	if p.Folded {
		return nil, errs.New(errs.InvalidEventForState, "replay: duplicate Fold for %s", d.PlayerID).WithSequence(seq)
	}
	p.Folded = true
	s.CurrentTurnSeat = nextActiveSeat(s, p.SeatIndex)
	return s, nil
}

// applyDealCommunity advances the street marker to at least the dealt
// phase but never lowers it: a River deal implies Flop and Turn already
// happened even if those StreetStart events were coalesced upstream.
func applyDealCommunity(s *Snapshot, d *events.DealCommunityData, seq uint64) (*Snapshot, error) {
	phaseStreet := map[events.CommunityPhase]events.Street{
		events.CommunityFlop:  events.Flop,
		events.CommunityTurn:  events.Turn,
		events.CommunityRiver: events.River,
	}[d.Phase]

	if phaseStreet.Index() > s.Street.Index() {
		s.Street = phaseStreet
	}
	s.CommunityCards = append(s.CommunityCards, d.Cards...)
	return s, nil
}

func applyShowdown(s *Snapshot, seq uint64) (*Snapshot, error) {
	s.Street = events.Showdown
	for i := range s.Players {
		if !s.Players[i].Folded {
			s.Players[i].Revealed = true
		}
	}
	return s, nil
}

func applyHandEnd(s *Snapshot, d *events.HandEndData, seq uint64) (*Snapshot, error) {
	s.Finished = true
	s.EndReason = d.Reason
	s.Winners = append([]events.Winner(nil), d.Winners...)
	for _, w := range d.Winners {
		idx, ok := s.find(w.PlayerID)
		if !ok {
			return nil, errs.New(errs.InvalidEventForState, "replay: HandEnd winner %s not seated", w.PlayerID).WithSequence(seq)
		}
		s.Players[idx].Stack += w.Amount
	}
	return s, nil
}

// streetMax is the highest StreetContribution among non-folded players,
// i.e. the amount every remaining player must match to close the street.
func streetMax(s *Snapshot) int64 {
	var max int64
	for _, p := range s.Players {
		if !p.Folded && p.StreetContribution > max {
			max = p.StreetContribution
		}
	}
	return max
}

// nextActiveSeat returns the seat index of the next non-folded,
// non-all-in player strictly after fromSeat, wrapping around the table.
// Returns fromSeat itself if no other player is active (e.g. exactly one
// player remains).
func nextActiveSeat(s *Snapshot, fromSeat int) int {
	if len(s.Players) == 0 {
		return fromSeat
	}
	order := make([]int, len(s.Players))
	for i, p := range s.Players {
		order[i] = p.SeatIndex
	}

	startIdx := 0
	for i, seat := range order {
		if seat == fromSeat {
			startIdx = i
			break
		}
	}

	for step := 1; step <= len(order); step++ {
		candidate := order[(startIdx+step)%len(order)]
		idx, _ := s.find(seatPlayerID(s, candidate))
		if !s.Players[idx].Folded && !s.Players[idx].AllIn {
			return candidate
		}
	}
	return fromSeat
}

func seatPlayerID(s *Snapshot, seat int) string {
	for _, p := range s.Players {
		if p.SeatIndex == seat {
			return p.PlayerID
		}
	}
	return ""
}

func sortBySeat(players []PlayerState) {
	for i := 1; i < len(players); i++ {
		for j := i; j > 0 && players[j].SeatIndex < players[j-1].SeatIndex; j-- {
			players[j], players[j-1] = players[j-1], players[j]
		}
	}
}
