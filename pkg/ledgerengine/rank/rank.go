// Package rank provides the pluggable showdown hand-ranker required by
// spec §4.6 ("winners via an externally provided hand ranker"). The
// settlement engine depends only on the Ranker interface; Chehsunliu
// wraps github.com/chehsunliu/poker as the default concrete
// implementation, the same library the teacher uses.
package rank

import (
	"fmt"

	chehsunliu "github.com/chehsunliu/poker"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/cards"
)

// Class is a coarse hand category, ordered worst to best.
type Class int

const (
	HighCard Class = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

func (c Class) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// Value is a complete evaluation of a 5-to-7 card hand. Strength orders
// ascending: a higher Strength always beats a lower one, regardless of
// Class (Strength already encodes every tiebreaker).
type Value struct {
	Class       Class
	Strength    int // higher is better
	Description string
}

// Compare returns -1, 0, or 1 as a is worse than, equal to, or better than b.
func Compare(a, b Value) int {
	switch {
	case a.Strength > b.Strength:
		return 1
	case a.Strength < b.Strength:
		return -1
	default:
		return 0
	}
}

// Ranker evaluates a player's best hand from hole cards plus the board.
// The settlement engine and replay engine never evaluate hands
// themselves; they call through this interface so the ranking algorithm
// stays swappable (spec §4.6, §1 "hand-strength evaluation... pluggable
// ranker").
type Ranker interface {
	Evaluate(hole [2]cards.Card, board []cards.Card) (Value, error)
}

// Chehsunliu implements Ranker using github.com/chehsunliu/poker.
type Chehsunliu struct{}

var _ Ranker = Chehsunliu{}

func (Chehsunliu) Evaluate(hole [2]cards.Card, board []cards.Card) (Value, error) {
	all := make([]chehsunliu.Card, 0, 2+len(board))
	for _, c := range hole {
		cc, err := toChehsunliu(c)
		if err != nil {
			return Value{}, err
		}
		all = append(all, cc)
	}
	for _, c := range board {
		cc, err := toChehsunliu(c)
		if err != nil {
			return Value{}, err
		}
		all = append(all, cc)
	}
	if len(all) < 5 {
		return Value{}, fmt.Errorf("rank: need at least 5 cards, got %d", len(all))
	}

	score := chehsunliu.Evaluate(all)
	class := classFromChehsunliu(chehsunliu.RankClass(score))

	return Value{
		Class: class,
		// chehsunliu's Evaluate returns lower-is-better; invert so our
		// Value.Strength keeps the conventional higher-is-better sense.
		Strength:    -int(score),
		Description: chehsunliu.RankString(score),
	}, nil
}

func classFromChehsunliu(rc int32) Class {
	switch rc {
	case 1:
		return StraightFlush
	case 2:
		return FourOfAKind
	case 3:
		return FullHouse
	case 4:
		return Flush
	case 5:
		return Straight
	case 6:
		return ThreeOfAKind
	case 7:
		return TwoPair
	case 8:
		return Pair
	default:
		return HighCard
	}
}

func toChehsunliu(c cards.Card) (chehsunliu.Card, error) {
	var rankChar byte
	switch c.Rank {
	case cards.Two:
		rankChar = '2'
	case cards.Three:
		rankChar = '3'
	case cards.Four:
		rankChar = '4'
	case cards.Five:
		rankChar = '5'
	case cards.Six:
		rankChar = '6'
	case cards.Seven:
		rankChar = '7'
	case cards.Eight:
		rankChar = '8'
	case cards.Nine:
		rankChar = '9'
	case cards.Ten:
		rankChar = 'T'
	case cards.Jack:
		rankChar = 'J'
	case cards.Queen:
		rankChar = 'Q'
	case cards.King:
		rankChar = 'K'
	case cards.Ace:
		rankChar = 'A'
	default:
		return 0, fmt.Errorf("rank: invalid card rank %v", c.Rank)
	}

	var suitChar byte
	switch c.Suit {
	case cards.Spades:
		suitChar = 's'
	case cards.Hearts:
		suitChar = 'h'
	case cards.Diamonds:
		suitChar = 'd'
	case cards.Clubs:
		suitChar = 'c'
	default:
		return 0, fmt.Errorf("rank: invalid card suit %v", c.Suit)
	}

	return chehsunliu.NewCard(string([]byte{rankChar, suitChar})), nil
}
