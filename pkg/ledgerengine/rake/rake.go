// Package rake evaluates the table rake policy against a settled pot
// (spec §4.4). Pure, synchronous: no logging, no state beyond the policy
// itself.
package rake

import (
	"hash/fnv"
	"strconv"
)

// Policy is the table's rake configuration. RateMilli is the rake rate
// expressed in thousandths (50 == 5%), matching spec S4's "rate 50‰".
type Policy struct {
	RateMilli         int64
	CapAmount         int64
	MinPlayersForRake int
	WaiveOnNoFlop     bool
	WaiveOnUncontested bool
}

// DefaultPolicy mirrors common cardroom defaults: 5% rake, no cap, waived
// when no flop is dealt but not for uncontested pots, rake applies
// starting at heads-up.
func DefaultPolicy() Policy {
	return Policy{
		RateMilli:         50,
		CapAmount:         0,
		MinPlayersForRake: 2,
		WaiveOnNoFlop:     true,
		WaiveOnUncontested: false,
	}
}

// Context carries the facts the policy needs to decide whether and how
// much rake to take from a pot, beyond the pot amount itself.
type Context struct {
	PlayersInHand int
	SawFlop       bool
	Uncontested   bool // hand ended by fold, no showdown
}

// Evaluation is the result of applying a Policy to one pot.
type Evaluation struct {
	PotAmount  int64
	RawRake    int64
	Rake       int64 // after cap
	Payout     int64 // PotAmount - Rake
	Waived     bool
	ConfigHash uint32
}

// Evaluate computes the rake owed on potAmount under p and ctx. Waivers
// short-circuit to a zero-rake evaluation; otherwise raw rake is
// floor(potAmount * RateMilli / 1000), capped at CapAmount when
// CapAmount > 0. Matches scenario S4: pot 160, rate 50‰, cap 4 -> raw 8,
// capped to 4, payout 156.
func Evaluate(p Policy, ctx Context, potAmount int64) Evaluation {
	configHash := ConfigHash(p)

	if ctx.PlayersInHand < p.MinPlayersForRake ||
		(p.WaiveOnNoFlop && !ctx.SawFlop) ||
		(p.WaiveOnUncontested && ctx.Uncontested) {
		return Evaluation{
			PotAmount:  potAmount,
			Payout:     potAmount,
			Waived:     true,
			ConfigHash: configHash,
		}
	}

	raw := potAmount * p.RateMilli / 1000
	rake := raw
	if p.CapAmount > 0 && rake > p.CapAmount {
		rake = p.CapAmount
	}

	return Evaluation{
		PotAmount:  potAmount,
		RawRake:    raw,
		Rake:       rake,
		Payout:     potAmount - rake,
		ConfigHash: configHash,
	}
}

// ConfigHash is a deterministic fingerprint of the policy, used so a
// ledger entry or settlement record can cite exactly which rake config
// produced it without embedding the full struct.
func ConfigHash(p Policy) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(p.RateMilli, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(p.CapAmount, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(p.MinPlayersForRake)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(p.WaiveOnNoFlop)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(p.WaiveOnUncontested)))
	return h.Sum32()
}

// Distribute splits a total rake amount proportionally across pot
// amounts (spec §4.6 "rake distributed proportionally across side
// pots"), giving any remainder to the largest pot so the shares sum
// exactly to total regardless of rounding.
func Distribute(total int64, potAmounts []int64) []int64 {
	if len(potAmounts) == 0 {
		return nil
	}

	var sum int64
	for _, a := range potAmounts {
		sum += a
	}
	shares := make([]int64, len(potAmounts))
	if sum == 0 {
		return shares
	}

	var allocated int64
	largest := 0
	for i, a := range potAmounts {
		shares[i] = total * a / sum
		allocated += shares[i]
		if a > potAmounts[largest] {
			largest = i
		}
	}
	shares[largest] += total - allocated
	return shares
}
