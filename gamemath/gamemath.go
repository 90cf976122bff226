package gamemath

import (
	"errors"
)

var (
	ErrDrawOutOfRange   = errors.New("draw must be in [0, 10000)")
	ErrNoAvailableItems = errors.New("no item has a non-zero weight")
)

// Table is an ordered prize table. Tier weights are basis points and sum
// to TotalBP for a well-formed table.
type Table struct {
	Tiers []Tier `json:"tiers"`
}

// Tier is one slot of the wheel. Index is the catalog index of the item it
// pays, or -1 for the no-win bucket.
type Tier struct {
	Name   string `json:"name"`
	Index  int    `json:"index"`
	Weight uint32 `json:"weight"`
}

// Win reports whether the tier pays an item.
func (t Tier) Win() bool { return t.Index >= 0 }

// Span is the half-open draw range [Lo, Hi) covered by a tier.
type Span struct {
	Tier string `json:"tier"`
	Lo   uint32 `json:"lo"`
	Hi   uint32 `json:"hi"`
}

// Weights returns the tier weights in table order.
func (t *Table) Weights() []uint32 {
	ws := make([]uint32, len(t.Tiers))
	for i, tier := range t.Tiers {
		ws[i] = tier.Weight
	}
	return ws
}

// Total sums every tier weight.
func (t *Table) Total() uint64 {
	var total uint64
	for _, tier := range t.Tiers {
		total += uint64(tier.Weight)
	}
	return total
}

// Pick maps a draw onto the table.
func (t *Table) Pick(draw uint32) (Tier, error) {
	if t == nil {
		return Tier{}, ErrNoAvailableItems
	}
	i, err := Select(t.Weights(), draw)
	if err != nil {
		return Tier{}, err
	}
	return t.Tiers[i], nil
}

// Spans lists the draw range of every tier with a non-zero weight.
func (t *Table) Spans() []Span {
	var spans []Span
	var lo uint32
	for _, tier := range t.Tiers {
		if tier.Weight == 0 {
			continue
		}
		spans = append(spans, Span{Tier: tier.Name, Lo: lo, Hi: lo + tier.Weight})
		lo += tier.Weight
	}
	return spans
}

// Select walks weights in order and returns the first index whose
// cumulative weight exceeds draw. Zero weights never win. If the walk runs
// out (weights summing below TotalBP) the last non-zero entry is returned.
func Select(weights []uint32, draw uint32) (int, error) {
	if draw >= TotalBP {
		return -1, ErrDrawOutOfRange
	}
	var cum uint64
	last := -1
	for i, w := range weights {
		if w == 0 {
			continue
		}
		last = i
		cum += uint64(w)
		if uint64(draw) < cum {
			return i, nil
		}
	}
	if last < 0 {
		return -1, ErrNoAvailableItems
	}
	return last, nil
}
