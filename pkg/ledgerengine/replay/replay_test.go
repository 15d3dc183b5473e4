package replay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decred/holdem-ledger-engine/pkg/ledgerengine/events"
)

func TestProcessNotStartedYieldsZeroSnapshot(t *testing.T) {
	snap, err := Process(nil, -1)
	require.NoError(t, err)
	require.False(t, snap.Started)
	require.False(t, snap.Finished)
}

func TestProcessRejectsOutOfRangeIndex(t *testing.T) {
	_, err := Process(nil, 0)
	require.Error(t, err)
}

func TestProcessRejectsEventBeforeHandStart(t *testing.T) {
	_, err := Process([]events.Event{events.Check("alice")}, 0)
	require.Error(t, err)
}

func TestProcessRejectsEventAfterHandEnd(t *testing.T) {
	evs := []events.Event{
		events.HandStart(events.HandStartData{
			HandID: "h1",
			Players: []events.SeatPlayer{
				{PlayerID: "alice", SeatIndex: 0, StartingStack: 500},
				{PlayerID: "bob", SeatIndex: 1, StartingStack: 500},
			},
			Dealer: 0, SBSeat: 0, BBSeat: 1,
		}),
		events.HandEnd(events.HandEndData{Reason: events.ReasonAllFold, Winners: []events.Winner{{PlayerID: "alice", Amount: 100}}}),
		events.Check("bob"),
	}
	_, err := Process(evs, 2)
	require.Error(t, err)
}

// TestProcessThreeHandedFoldEndsHand exercises scenario S1: a
// three-handed hand where charlie folds preflop, betting continues
// between alice and bob through the river, and bob folds to alice's
// river bet. Alice takes the 160-chip pot uncontested.
func TestProcessThreeHandedFoldEndsHand(t *testing.T) {
	evs := []events.Event{
		events.HandStart(events.HandStartData{
			HandID: "h1",
			Players: []events.SeatPlayer{
				{PlayerID: "alice", SeatIndex: 0, StartingStack: 500},
				{PlayerID: "bob", SeatIndex: 1, StartingStack: 500},
				{PlayerID: "charlie", SeatIndex: 2, StartingStack: 500},
			},
			Dealer: 0, SBSeat: 1, BBSeat: 2, SBAmount: 5, BBAmount: 10,
		}),
		events.PostBlind(events.PostBlindData{PlayerID: "bob", Amount: 5, Kind: events.SmallBlind}),
		events.PostBlind(events.PostBlindData{PlayerID: "charlie", Amount: 10, Kind: events.BigBlind}),
		events.DealHole(events.DealHoleData{PlayerID: "alice"}),
		events.DealHole(events.DealHoleData{PlayerID: "bob"}),
		events.DealHole(events.DealHoleData{PlayerID: "charlie"}),
		events.Raise("alice", 20),
		events.Call("bob", 20),
		events.Fold("charlie"),
		events.StreetStart(events.StreetStartData{Street: events.Flop}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityFlop}),
		events.Check("bob"),
		events.Bet("alice", 15),
		events.Call("bob", 15),
		events.StreetStart(events.StreetStartData{Street: events.Turn}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityTurn}),
		events.Check("bob"),
		events.Bet("alice", 15),
		events.Call("bob", 15),
		events.StreetStart(events.StreetStartData{Street: events.River}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityRiver}),
		events.Check("bob"),
		events.Bet("alice", 50),
		events.Fold("bob"),
		events.HandEnd(events.HandEndData{Reason: events.ReasonAllFold, Winners: []events.Winner{{PlayerID: "alice", Amount: 160}}}),
	}

	snap, err := Process(evs, len(evs)-1)
	require.NoError(t, err)
	require.True(t, snap.Finished)
	require.Equal(t, events.ReasonAllFold, snap.EndReason)

	idx, ok := snap.find("alice")
	require.True(t, ok)
	require.Equal(t, int64(560), snap.Players[idx].Stack)

	bidx, ok := snap.find("bob")
	require.True(t, ok)
	require.Equal(t, int64(500-50), snap.Players[bidx].Stack)

	cidx, ok := snap.find("charlie")
	require.True(t, ok)
	require.Equal(t, int64(500-10), snap.Players[cidx].Stack)
}

// TestProcessHeadsUpShowdown exercises scenario S2: a heads-up hand
// reaching showdown, Alice wins 220 with rake disabled.
func TestProcessHeadsUpShowdown(t *testing.T) {
	evs := []events.Event{
		events.HandStart(events.HandStartData{
			HandID: "h2",
			Players: []events.SeatPlayer{
				{PlayerID: "alice", SeatIndex: 0, StartingStack: 500},
				{PlayerID: "bob", SeatIndex: 1, StartingStack: 500},
			},
			Dealer: 0, SBSeat: 0, BBSeat: 1, SBAmount: 100, BBAmount: 110,
		}),
		events.PostBlind(events.PostBlindData{PlayerID: "alice", Amount: 100, Kind: events.SmallBlind}),
		events.PostBlind(events.PostBlindData{PlayerID: "bob", Amount: 110, Kind: events.BigBlind}),
		events.DealHole(events.DealHoleData{PlayerID: "alice"}),
		events.DealHole(events.DealHoleData{PlayerID: "bob"}),
		events.Call("alice", 110),
		events.Check("bob"),
		events.StreetStart(events.StreetStartData{Street: events.Flop}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityFlop}),
		events.Check("bob"),
		events.Check("alice"),
		events.StreetStart(events.StreetStartData{Street: events.Turn}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityTurn}),
		events.Check("bob"),
		events.Check("alice"),
		events.StreetStart(events.StreetStartData{Street: events.River}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityRiver}),
		events.Check("bob"),
		events.Check("alice"),
		events.Showdown(),
		events.HandEnd(events.HandEndData{Reason: events.ReasonShowdown, Winners: []events.Winner{{PlayerID: "alice", Amount: 220}}}),
	}

	snap, err := Process(evs, len(evs)-1)
	require.NoError(t, err)
	require.True(t, snap.Finished)
	require.Equal(t, events.ReasonShowdown, snap.EndReason)
	require.Equal(t, events.Showdown, snap.Street)

	idx, ok := snap.find("alice")
	require.True(t, ok)
	require.Equal(t, int64(500-110+220), snap.Players[idx].Stack)

	bidx, _ := snap.find("bob")
	require.True(t, snap.Players[bidx].Revealed)
}

func TestDealCommunityStreetNeverLowers(t *testing.T) {
	evs := []events.Event{
		events.HandStart(events.HandStartData{
			HandID:  "h3",
			Players: []events.SeatPlayer{{PlayerID: "a", SeatIndex: 0, StartingStack: 100}, {PlayerID: "b", SeatIndex: 1, StartingStack: 100}},
			Dealer:  0, SBSeat: 0, BBSeat: 1,
		}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityRiver}),
		events.DealCommunity(events.DealCommunityData{Phase: events.CommunityFlop}),
	}
	snap, err := Process(evs, len(evs)-1)
	require.NoError(t, err)
	require.Equal(t, events.River, snap.Street)
}

func TestApplyActionRejectsRegression(t *testing.T) {
	evs := []events.Event{
		events.HandStart(events.HandStartData{
			HandID:  "h4",
			Players: []events.SeatPlayer{{PlayerID: "a", SeatIndex: 0, StartingStack: 100}, {PlayerID: "b", SeatIndex: 1, StartingStack: 100}},
			Dealer:  0, SBSeat: 0, BBSeat: 1,
		}),
		events.Bet("a", 20),
		events.Bet("a", 10),
	}
	_, err := Process(evs, len(evs)-1)
	require.Error(t, err)
}

// TestDerivedFieldsReflectPendingDecision checks the fields a client
// needs to render bob's decision after alice opens for 20 preflop with a
// 10-chip big blind: bob owes 20 to call, and the minimum raise-to
// amount is alice's bet plus her own raise size (20 + 20 = 40).
func TestDerivedFieldsReflectPendingDecision(t *testing.T) {
	evs := []events.Event{
		events.HandStart(events.HandStartData{
			HandID:  "h6",
			Players: []events.SeatPlayer{{PlayerID: "alice", SeatIndex: 0, StartingStack: 500}, {PlayerID: "bob", SeatIndex: 1, StartingStack: 500}},
			Dealer:  0, SBSeat: 0, BBSeat: 1, SBAmount: 5, BBAmount: 10,
		}),
		events.Raise("alice", 20),
	}

	snap, err := Process(evs, len(evs)-1)
	require.NoError(t, err)
	require.Equal(t, 1, snap.CurrentTurnSeat)
	require.Equal(t, int64(20), snap.PotTotal)
	require.Equal(t, int64(20), snap.AmountToCall)
	require.Equal(t, int64(40), snap.MinRaise)
	require.Contains(t, snap.ValidActions, ActionCall)
	require.Contains(t, snap.ValidActions, ActionRaise)
	require.Contains(t, snap.ValidActions, ActionFold)
	require.NotContains(t, snap.ValidActions, ActionCheck)
}

// TestDerivedFieldsOfferCheckWhenNothingOwed checks that a player facing
// no outstanding bet sees Check and Bet among the valid actions, and
// owes nothing to remain in the hand.
func TestDerivedFieldsOfferCheckWhenNothingOwed(t *testing.T) {
	evs := []events.Event{
		events.HandStart(events.HandStartData{
			HandID:  "h7",
			Players: []events.SeatPlayer{{PlayerID: "alice", SeatIndex: 0, StartingStack: 500}, {PlayerID: "bob", SeatIndex: 1, StartingStack: 500}},
			Dealer:  0, SBSeat: 0, BBSeat: 1, SBAmount: 5, BBAmount: 10,
		}),
	}

	snap, err := Process(evs, len(evs)-1)
	require.NoError(t, err)
	require.Equal(t, int64(0), snap.AmountToCall)
	require.Contains(t, snap.ValidActions, ActionCheck)
	require.Contains(t, snap.ValidActions, ActionBet)
	require.NotContains(t, snap.ValidActions, ActionCall)
}

func TestApplyActionRejectsInsufficientStack(t *testing.T) {
	evs := []events.Event{
		events.HandStart(events.HandStartData{
			HandID:  "h5",
			Players: []events.SeatPlayer{{PlayerID: "a", SeatIndex: 0, StartingStack: 10}, {PlayerID: "b", SeatIndex: 1, StartingStack: 100}},
			Dealer:  0, SBSeat: 0, BBSeat: 1,
		}),
		events.Bet("a", 20),
	}
	_, err := Process(evs, len(evs)-1)
	require.Error(t, err)
}
