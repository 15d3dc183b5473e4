package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreetIndexOrdering(t *testing.T) {
	require.Less(t, Preflop.Index(), Flop.Index())
	require.Less(t, Flop.Index(), Turn.Index())
	require.Less(t, Turn.Index(), River.Index())
	require.Less(t, River.Index(), Showdown.Index())
}

func names(id string) string { return "Player(" + id + ")" }

func TestFormatCoversEveryKind(t *testing.T) {
	evs := []Event{
		HandStart(HandStartData{HandID: "h1", Players: []SeatPlayer{{PlayerID: "a", SeatIndex: 0}}, Dealer: 0}),
		PostBlind(PostBlindData{PlayerID: "a", Amount: 10, Kind: SmallBlind}),
		DealHole(DealHoleData{PlayerID: "a"}),
		StreetStart(StreetStartData{Street: Flop}),
		Bet("a", 20),
		Call("a", 20),
		Raise("a", 40),
		AllIn("a", 100),
		Check("a"),
		Fold("a"),
		DealCommunity(DealCommunityData{Phase: CommunityFlop}),
		Showdown(),
		HandEnd(HandEndData{Reason: ReasonAllFold, Winners: []Winner{{PlayerID: "a", Amount: 100}}}),
	}

	for _, e := range evs {
		s := Format(e, names)
		require.NotEmpty(t, s)
	}
}

func TestFormatPanicsOnUnknownKind(t *testing.T) {
	require.Panics(t, func() {
		Format(Event{Kind: Kind(999)}, names)
	})
}
