// Package events defines the hand-replay event vocabulary: an immutable,
// value-typed sum type folded by the replay engine into a Snapshot.
package events

import (
	"fmt"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/cards"
)

// Street identifies a betting round.
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

var streetIndex = map[Street]int{
	Preflop: 0, Flop: 1, Turn: 2, River: 3, Showdown: 4,
}

// Index returns the street's position in betting order, so callers can
// compare streets with plain integer comparison: index(Preflop) <
// index(Flop) < index(Turn) < index(River) < index(Showdown).
func (s Street) Index() int { return streetIndex[s] }

func (s Street) String() string {
	switch s {
	case Preflop:
		return "Preflop"
	case Flop:
		return "Flop"
	case Turn:
		return "Turn"
	case River:
		return "River"
	case Showdown:
		return "Showdown"
	default:
		return "Unknown"
	}
}

// CommunityPhase identifies which batch of community cards DealCommunity
// is delivering.
type CommunityPhase int

const (
	CommunityFlop CommunityPhase = iota
	CommunityTurn
	CommunityRiver
)

func (p CommunityPhase) String() string {
	switch p {
	case CommunityFlop:
		return "Flop"
	case CommunityTurn:
		return "Turn"
	case CommunityRiver:
		return "River"
	default:
		return "Unknown"
	}
}

// BlindKind distinguishes the small and big blind postings.
type BlindKind int

const (
	SmallBlind BlindKind = iota
	BigBlind
)

func (k BlindKind) String() string {
	if k == SmallBlind {
		return "SB"
	}
	return "BB"
}

// HandEndReason records why a hand concluded.
type HandEndReason int

const (
	ReasonShowdown HandEndReason = iota
	ReasonAllFold
)

func (r HandEndReason) String() string {
	if r == ReasonShowdown {
		return "Showdown"
	}
	return "AllFold"
}

// SeatPlayer describes one seated player at HandStart time. StartingStack
// is the player's chip stack before any blind or action in this hand is
// applied.
type SeatPlayer struct {
	PlayerID      string
	SeatIndex     int
	StartingStack int64
}

// Winner records one winner's share at HandEnd.
type Winner struct {
	PlayerID string
	Amount   int64
	HandRank *int // optional rank value assigned by the external ranker
}

// Kind identifies which Event variant a value holds, enabling exhaustive
// switches in the replay engine and formatter.
type Kind int

const (
	KindHandStart Kind = iota
	KindPostBlind
	KindDealHole
	KindStreetStart
	KindBet
	KindCall
	KindRaise
	KindAllIn
	KindCheck
	KindFold
	KindDealCommunity
	KindShowdown
	KindHandEnd
)

// Event is the immutable, value-typed sum type folded by the replay
// engine. Exactly one of the typed payload fields is populated, selected
// by Kind; every constructor below fills in both.
type Event struct {
	Kind Kind

	HandStart     *HandStartData
	PostBlind     *PostBlindData
	DealHole      *DealHoleData
	StreetStart   *StreetStartData
	Action        *ActionData // Bet, Call, Raise, AllIn
	Check         *SeatOnly
	Fold          *SeatOnly
	DealCommunity *DealCommunityData
	Showdown      *ShowdownData
	HandEnd       *HandEndData
}

type HandStartData struct {
	HandID    string
	Players   []SeatPlayer
	Dealer    int
	SBSeat    int
	BBSeat    int
	SBAmount  int64
	BBAmount  int64
}

type PostBlindData struct {
	PlayerID string
	Amount   int64
	Kind     BlindKind
}

type DealHoleData struct {
	PlayerID string
	Cards    [2]cards.Card
}

type StreetStartData struct {
	Street Street
}

// ActionData backs Bet, Call, Raise, and AllIn: Amount is always the
// player's cumulative bet for the current street (spec §3).
type ActionData struct {
	PlayerID string
	Amount   int64
}

type SeatOnly struct {
	PlayerID string
}

type DealCommunityData struct {
	Phase CommunityPhase
	Cards []cards.Card
}

type ShowdownData struct{}

type HandEndData struct {
	Reason  HandEndReason
	Winners []Winner
}

// Constructors. Each fills Kind and the single relevant payload field.

func HandStart(d HandStartData) Event     { return Event{Kind: KindHandStart, HandStart: &d} }
func PostBlind(d PostBlindData) Event      { return Event{Kind: KindPostBlind, PostBlind: &d} }
func DealHole(d DealHoleData) Event        { return Event{Kind: KindDealHole, DealHole: &d} }
func StreetStart(d StreetStartData) Event  { return Event{Kind: KindStreetStart, StreetStart: &d} }
func Bet(playerID string, amount int64) Event {
	return Event{Kind: KindBet, Action: &ActionData{PlayerID: playerID, Amount: amount}}
}
func Call(playerID string, amount int64) Event {
	return Event{Kind: KindCall, Action: &ActionData{PlayerID: playerID, Amount: amount}}
}
func Raise(playerID string, amount int64) Event {
	return Event{Kind: KindRaise, Action: &ActionData{PlayerID: playerID, Amount: amount}}
}
func AllIn(playerID string, amount int64) Event {
	return Event{Kind: KindAllIn, Action: &ActionData{PlayerID: playerID, Amount: amount}}
}
func Check(playerID string) Event { return Event{Kind: KindCheck, Check: &SeatOnly{PlayerID: playerID}} }
func Fold(playerID string) Event  { return Event{Kind: KindFold, Fold: &SeatOnly{PlayerID: playerID}} }
func DealCommunity(d DealCommunityData) Event {
	return Event{Kind: KindDealCommunity, DealCommunity: &d}
}
func Showdown() Event { return Event{Kind: KindShowdown, Showdown: &ShowdownData{}} }
func HandEnd(d HandEndData) Event { return Event{Kind: KindHandEnd, HandEnd: &d} }

// PlayerName resolves a player ID to a display name. Consumers of Format
// supply this so the formatter stays pure and deterministic.
type PlayerName func(playerID string) string

// Format renders a single event as a canonical English sentence, covering
// every Kind exhaustively. An unrecognized Kind is a programming error,
// never runtime input, so it panics rather than returning an error.
func Format(e Event, name PlayerName) string {
	switch e.Kind {
	case KindHandStart:
		return fmt.Sprintf("Hand %s starts with %d players, dealer at seat %d.",
			e.HandStart.HandID, len(e.HandStart.Players), e.HandStart.Dealer)
	case KindPostBlind:
		return fmt.Sprintf("%s posts the %s blind of %d.", name(e.PostBlind.PlayerID), e.PostBlind.Kind, e.PostBlind.Amount)
	case KindDealHole:
		return fmt.Sprintf("%s is dealt hole cards.", name(e.DealHole.PlayerID))
	case KindStreetStart:
		return fmt.Sprintf("%s begins.", e.StreetStart.Street)
	case KindBet:
		return fmt.Sprintf("%s bets to %d.", name(e.Action.PlayerID), e.Action.Amount)
	case KindCall:
		return fmt.Sprintf("%s calls to %d.", name(e.Action.PlayerID), e.Action.Amount)
	case KindRaise:
		return fmt.Sprintf("%s raises to %d.", name(e.Action.PlayerID), e.Action.Amount)
	case KindAllIn:
		return fmt.Sprintf("%s is all in at %d.", name(e.Action.PlayerID), e.Action.Amount)
	case KindCheck:
		return fmt.Sprintf("%s checks.", name(e.Check.PlayerID))
	case KindFold:
		return fmt.Sprintf("%s folds.", name(e.Fold.PlayerID))
	case KindDealCommunity:
		return fmt.Sprintf("%s cards are dealt: %v.", e.DealCommunity.Phase, e.DealCommunity.Cards)
	case KindShowdown:
		return "Showdown."
	case KindHandEnd:
		return fmt.Sprintf("Hand ends (%s) with %d winner(s).", e.HandEnd.Reason, len(e.HandEnd.Winners))
	default:
		panic(fmt.Sprintf("events: unhandled kind %d in Format", e.Kind))
	}
}
