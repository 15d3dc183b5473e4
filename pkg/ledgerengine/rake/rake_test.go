package rake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEvaluateCapsRake exercises scenario S4 from the spec: pot 160,
// rate 50 per mille, cap 4 -> raw 8, capped to 4, payout 156.
func TestEvaluateCapsRake(t *testing.T) {
	p := Policy{RateMilli: 50, CapAmount: 4, MinPlayersForRake: 2}
	ctx := Context{PlayersInHand: 2, SawFlop: true}

	eval := Evaluate(p, ctx, 160)

	require.Equal(t, int64(8), eval.RawRake)
	require.Equal(t, int64(4), eval.Rake)
	require.Equal(t, int64(156), eval.Payout)
	require.False(t, eval.Waived)
}

func TestEvaluateWaivesOnNoFlop(t *testing.T) {
	p := Policy{RateMilli: 50, MinPlayersForRake: 2, WaiveOnNoFlop: true}
	ctx := Context{PlayersInHand: 2, SawFlop: false}

	eval := Evaluate(p, ctx, 100)

	require.True(t, eval.Waived)
	require.Equal(t, int64(0), eval.Rake)
	require.Equal(t, int64(100), eval.Payout)
}

func TestEvaluateWaivesBelowMinPlayers(t *testing.T) {
	p := Policy{RateMilli: 50, MinPlayersForRake: 3}
	ctx := Context{PlayersInHand: 2, SawFlop: true}

	eval := Evaluate(p, ctx, 100)

	require.True(t, eval.Waived)
	require.Equal(t, int64(100), eval.Payout)
}

func TestEvaluateNoCapWhenZero(t *testing.T) {
	p := Policy{RateMilli: 50, CapAmount: 0, MinPlayersForRake: 2}
	ctx := Context{PlayersInHand: 2, SawFlop: true}

	eval := Evaluate(p, ctx, 1000)

	require.Equal(t, int64(50), eval.RawRake)
	require.Equal(t, int64(50), eval.Rake)
}

func TestConfigHashStableAndDistinct(t *testing.T) {
	a := DefaultPolicy()
	b := DefaultPolicy()
	require.Equal(t, ConfigHash(a), ConfigHash(b))

	b.RateMilli = 40
	require.NotEqual(t, ConfigHash(a), ConfigHash(b))
}

func TestDistributeProportionalWithRemainderToLargest(t *testing.T) {
	shares := Distribute(10, []int64{300, 200, 100})

	require.Len(t, shares, 3)
	var sum int64
	for _, s := range shares {
		sum += s
	}
	require.Equal(t, int64(10), sum)
	require.Equal(t, int64(6), shares[0])
}

func TestDistributeEmptyPots(t *testing.T) {
	require.Nil(t, Distribute(10, nil))
}
