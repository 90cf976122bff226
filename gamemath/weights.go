package gamemath

import (
	"errors"
	"math"
	"sort"

	"github.com/Ashenafi-pixel/prize-wheel-engine/checked"
)

const (
	// TotalBP is 100% in basis points.
	TotalBP = 10000
	// WeightExponent controls how sharply items worth many tickets are penalized.
	WeightExponent = 1.5
	// MinWeightBP is the smallest weight an available item can end up with.
	MinWeightBP = 1
)

var (
	ErrInvalidTicketPrice = errors.New("ticket price must be greater than 0")
	ErrNoItemsProvided    = errors.New("at least one item must be provided")
	ErrInvalidItemValue   = errors.New("item value must be greater than 0")
	ErrMathOverflow       = errors.New("math overflow")
	ErrTotalTooSmall      = errors.New("total cannot give every item a non-zero weight")
)

// ComputeWeights converts item values into basis-point weights summing to
// exactly TotalBP. Items cheap relative to the ticket price weigh more:
// raw_i = 1 / (value_i / ticketPrice)^WeightExponent.
func ComputeWeights(values []uint64, ticketPrice uint64) ([]uint32, error) {
	return ComputeWeightsWithin(values, ticketPrice, TotalBP)
}

// ComputeWeightsWithin is ComputeWeights normalized to an arbitrary total.
// The rounding remainder goes to the largest fractional parts first, ties
// by lower value and then lower index, so equal input always yields equal
// output and cheaper items never weigh less than dearer ones.
func ComputeWeightsWithin(values []uint64, ticketPrice uint64, total uint32) ([]uint32, error) {
	if ticketPrice == 0 {
		return nil, ErrInvalidTicketPrice
	}
	if len(values) == 0 {
		return nil, ErrNoItemsProvided
	}
	for _, v := range values {
		if v == 0 {
			return nil, ErrInvalidItemValue
		}
	}
	if uint64(total) < uint64(len(values))*MinWeightBP {
		return nil, ErrTotalTooSmall
	}
	if len(values) == 1 {
		return []uint32{total}, nil
	}

	n := len(values)
	raw := make([]float64, n)
	var rawSum float64
	price := float64(ticketPrice)
	for i, v := range values {
		ticketsNeeded := float64(v) / price
		raw[i] = 1 / math.Pow(ticketsNeeded, WeightExponent)
		rawSum += raw[i]
	}
	if rawSum == 0 || math.IsInf(rawSum, 0) || math.IsNaN(rawSum) {
		return nil, ErrMathOverflow
	}

	weights := make([]uint32, n)
	fracs := make([]float64, n)
	var assigned uint64
	for i := range raw {
		exact := raw[i] / rawSum * float64(total)
		floor := math.Floor(exact)
		weights[i] = uint32(floor)
		fracs[i] = exact - floor
		var err error
		if assigned, err = checked.Add(assigned, uint64(weights[i])); err != nil {
			return nil, ErrMathOverflow
		}
	}
	if assigned > uint64(total) {
		return nil, ErrMathOverflow
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if fracs[i] != fracs[j] {
			return fracs[i] > fracs[j]
		}
		if values[i] != values[j] {
			return values[i] < values[j]
		}
		return i < j
	})
	for k := uint64(0); k < uint64(total)-assigned; k++ {
		weights[order[k%uint64(n)]]++
	}

	// Lift starved items to the minimum, paid for by the heaviest item.
	for i := range weights {
		for weights[i] < MinWeightBP {
			d := donor(weights, values)
			if d < 0 {
				return nil, ErrTotalTooSmall
			}
			weights[d]--
			weights[i]++
		}
	}

	var sum uint64
	for _, w := range weights {
		sum += uint64(w)
	}
	if sum != uint64(total) {
		return nil, ErrMathOverflow
	}
	return weights, nil
}

// donor picks the heaviest weight that can give up one basis point; among
// equals the most valuable item gives, then the highest index.
func donor(weights []uint32, values []uint64) int {
	best := -1
	for i, w := range weights {
		if w <= MinWeightBP {
			continue
		}
		if best < 0 || w > weights[best] ||
			(w == weights[best] && values[i] > values[best]) ||
			(w == weights[best] && values[i] == values[best]) {
			best = i
		}
	}
	return best
}
