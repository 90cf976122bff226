// Package pool holds the prize pool and ticket state machines. It performs
// no locking and no I/O of its own: callers serialize operations per pool
// and supply the funds and event collaborators.
package pool

import (
	"strings"
	"time"

	"github.com/Ashenafi-pixel/prize-wheel-engine/checked"
	"github.com/Ashenafi-pixel/prize-wheel-engine/gamemath"
)

const (
	MaxItems              = 10
	MaxCompanyNameLen     = 50
	MaxCompanyImageLen    = 200
	MaxItemNameLen        = 50
	MaxItemImageLen       = 200
	MaxItemDescriptionLen = 200
)

// Identity is an opaque, already-authenticated principal.
type Identity string

const vaultPrefix = "vault:"

// VaultAccount is the custody account that holds a pool's funds.
func VaultAccount(poolID string) string {
	return vaultPrefix + poolID
}

// VaultPool returns the pool ID of a vault account.
func VaultPool(account string) (string, bool) {
	if !strings.HasPrefix(account, vaultPrefix) {
		return "", false
	}
	return strings.TrimPrefix(account, vaultPrefix), true
}

type Item struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Image         string `json:"image"`
	Value         uint64 `json:"value"`
	ProbabilityBP uint32 `json:"probability_bp"`
	Available     bool   `json:"available"`

	// Supply is the number of times the item can be won; 0 means unlimited.
	Supply    uint64 `json:"supply,omitempty"`
	Remaining uint64 `json:"remaining,omitempty"`
}

// Limited reports whether the item has a finite supply.
func (it Item) Limited() bool { return it.Supply > 0 }

type Pool struct {
	ID             string    `json:"id"`
	Owner          Identity  `json:"owner"`
	Vault          string    `json:"vault"`
	CompanyName    string    `json:"company_name"`
	CompanyImage   string    `json:"company_image"`
	TicketPrice    uint64    `json:"ticket_price"`
	Items          []Item    `json:"items"`
	TotalValue     uint64    `json:"total_value"`
	TicketsSold    uint64    `json:"tickets_sold"`
	FundsHeld      uint64    `json:"funds_held"`
	PendingPayouts uint64    `json:"pending_payouts"`
	NoWinBP        uint32    `json:"no_win_bp"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Surplus is what the owner may withdraw without touching pending payouts.
func (p *Pool) Surplus() uint64 {
	if p.PendingPayouts >= p.FundsHeld {
		return 0
	}
	return p.FundsHeld - p.PendingPayouts
}

// Table returns the wheel as the selector sees it: items in catalog order
// followed by the no-win bucket when one is reserved.
func (p *Pool) Table() *gamemath.Table {
	tbl := &gamemath.Table{Tiers: make([]gamemath.Tier, 0, len(p.Items)+1)}
	for i, it := range p.Items {
		w := it.ProbabilityBP
		if !it.Available {
			w = 0
		}
		tbl.Tiers = append(tbl.Tiers, gamemath.Tier{Name: it.Name, Index: i, Weight: w})
	}
	if p.NoWinBP > 0 {
		tbl.Tiers = append(tbl.Tiers, gamemath.Tier{Name: "no win", Index: -1, Weight: p.NoWinBP})
	}
	return tbl
}

// HasAvailableItems reports whether any item can still be won.
func (p *Pool) HasAvailableItems() bool {
	for _, it := range p.Items {
		if it.Available {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	c := *p
	c.Items = append([]Item(nil), p.Items...)
	return &c
}

// Analysis reports per-item odds and expectations at the pool's price.
func (p *Pool) Analysis() []gamemath.ItemAnalysis {
	in := make([]gamemath.ItemInput, len(p.Items))
	for i, it := range p.Items {
		w := it.ProbabilityBP
		if !it.Available {
			w = 0
		}
		in[i] = gamemath.ItemInput{Name: it.Name, Value: it.Value, Weight: w}
	}
	return gamemath.Analyze(in, p.TicketPrice)
}

// reweigh recomputes ProbabilityBP over the available items. Unavailable
// items drop to 0.
func reweigh(items []Item, price uint64, noWinBP uint32) error {
	var idx []int
	var values []uint64
	for i, it := range items {
		if it.Available {
			idx = append(idx, i)
			values = append(values, it.Value)
		} else {
			items[i].ProbabilityBP = 0
		}
	}
	if len(values) == 0 {
		return nil
	}
	ws, err := gamemath.ComputeWeightsWithin(values, price, gamemath.TotalBP-noWinBP)
	if err != nil {
		return mapWeightError(err)
	}
	for k, i := range idx {
		items[i].ProbabilityBP = ws[k]
	}
	return verifyWeights(items, noWinBP)
}

func verifyWeights(items []Item, noWinBP uint32) error {
	sum := uint64(noWinBP)
	for _, it := range items {
		if it.Available {
			sum += uint64(it.ProbabilityBP)
		}
	}
	if sum != gamemath.TotalBP {
		return ErrProbabilitySumMismatch
	}
	return nil
}

func mapWeightError(err error) error {
	switch err {
	case gamemath.ErrInvalidTicketPrice:
		return ErrInvalidTicketPrice
	case gamemath.ErrNoItemsProvided:
		return ErrNoItemsProvided
	case gamemath.ErrInvalidItemValue:
		return ErrInvalidItemPrice
	case gamemath.ErrTotalTooSmall:
		return ErrInvalidNoWinReservation
	default:
		return ErrMathOverflow
	}
}

func mapArithError(err error) error {
	if err == checked.ErrUnderflow {
		return ErrArithmeticUnderflow
	}
	return ErrMathOverflow
}
