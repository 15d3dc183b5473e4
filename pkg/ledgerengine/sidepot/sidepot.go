// Package sidepot computes deterministic pot layering from player
// contributions (spec §4.3). Pure, synchronous: no logging, no state.
package sidepot

import "sort"

// PotType distinguishes the main pot from side pots layered above it.
type PotType int

const (
	Main PotType = iota
	Side
)

// Pot is one layer of the pot: an amount and the ordered set of players
// eligible to win it. Pots are derived state, never authored directly.
type Pot struct {
	Amount    int64
	Eligible  []string // not-folded contributors at or above this layer, ordered by contribution then player ID
	Type      PotType
}

// Contribution is one player's total stake in the hand, as recorded by
// the replay engine.
type Contribution struct {
	PlayerID         string
	SeatIndex        int
	TotalContribution int64
	IsAllIn          bool
	IsFolded         bool
}

// Layering is the ordered result: main pot first, then side pots in
// ascending all-in order.
type Layering struct {
	Pots        []Pot
	TotalAmount int64
}

// Calculate lays out pots deterministically: sort contributors by
// contribution ascending (ties broken by player ID ascending), then walk
// distinct all-in levels, emitting one pot per level. Folded contributors
// fund every pot their chips touched but are never eligible to win any of
// them. Panics if the resulting pot total does not match the sum of
// contributions — a Calculate that violates conservation is a programming
// error in the caller, not a runtime condition to recover from.
func Calculate(contributions []Contribution) Layering {
	sorted := make([]Contribution, len(contributions))
	copy(sorted, contributions)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TotalContribution != sorted[j].TotalContribution {
			return sorted[i].TotalContribution < sorted[j].TotalContribution
		}
		return sorted[i].PlayerID < sorted[j].PlayerID
	})

	var inputTotal int64
	for _, c := range sorted {
		inputTotal += c.TotalContribution
	}

	levels := distinctAllInLevels(sorted)

	var pots []Pot
	var previous int64
	for i, level := range levels {
		amount, eligible := layerAt(sorted, previous, level)
		if amount > 0 {
			potType := Side
			if i == 0 {
				potType = Main
			}
			pots = append(pots, Pot{Amount: amount, Eligible: eligible, Type: potType})
		}
		previous = level
	}

	// Final layer: whatever sits above the last all-in level, contributed
	// by players who covered it (callers still in for the max bet).
	maxContribution := int64(0)
	for _, c := range sorted {
		if c.TotalContribution > maxContribution {
			maxContribution = c.TotalContribution
		}
	}
	if maxContribution > previous {
		amount, eligible := layerAt(sorted, previous, maxContribution)
		if amount > 0 {
			potType := Side
			if len(pots) == 0 {
				potType = Main
			}
			pots = append(pots, Pot{Amount: amount, Eligible: eligible, Type: potType})
		}
	}

	var total int64
	for _, p := range pots {
		total += p.Amount
	}
	if total != inputTotal {
		panic("sidepot: pot total does not match sum of contributions")
	}

	return Layering{Pots: pots, TotalAmount: total}
}

// distinctAllInLevels returns the ascending, de-duplicated contribution
// amounts of every all-in contributor (folded or not — a fold at an
// all-in amount still defines a layer boundary because it funded that
// layer).
func distinctAllInLevels(sorted []Contribution) []int64 {
	seen := make(map[int64]bool)
	var levels []int64
	for _, c := range sorted {
		if c.IsAllIn && !seen[c.TotalContribution] {
			seen[c.TotalContribution] = true
			levels = append(levels, c.TotalContribution)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	return levels
}

// layerAt computes the pot amount and eligible player list for the layer
// spanning (previous, level]: every contributor gives min(their
// contribution, level) - previous, and not-folded contributors whose
// total reaches level are eligible.
func layerAt(sorted []Contribution, previous, level int64) (int64, []string) {
	var amount int64
	var eligible []string
	for _, c := range sorted {
		if c.TotalContribution <= previous {
			continue
		}
		capped := c.TotalContribution
		if capped > level {
			capped = level
		}
		amount += capped - previous
		if !c.IsFolded && c.TotalContribution >= level {
			eligible = append(eligible, c.PlayerID)
		}
	}
	return amount, eligible
}
