package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ashenafi-pixel/prize-wheel-engine/checked"
	"github.com/Ashenafi-pixel/prize-wheel-engine/events"
	"github.com/Ashenafi-pixel/prize-wheel-engine/gamemath"
)

// Transfer moves Amount from one account to another. ID is unique per
// transfer so collaborators can deduplicate and reverse it.
type Transfer struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

// Funds moves value between accounts, all or nothing.
type Funds interface {
	Transfer(ctx context.Context, t Transfer) error
}

// CustodyBalancer is implemented by Funds collaborators that can report an
// account balance. Withdrawals are checked against it when available.
type CustodyBalancer interface {
	Balance(ctx context.Context, account string) (uint64, error)
}

// Engine runs the pool operations that move funds. Every operation
// validates first, then calls Funds, then mutates; on any error the pool
// and ticket are left exactly as they were.
type Engine struct {
	funds      Funds
	sink       events.Sink
	now        func() time.Time
	minReserve uint64
	newID      func() string
}

type Option func(*Engine)

func WithSink(s events.Sink) Option { return func(e *Engine) { e.sink = s } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithMinReserve keeps reserve units in the vault that withdrawals cannot touch.
func WithMinReserve(reserve uint64) Option { return func(e *Engine) { e.minReserve = reserve } }

func NewEngine(funds Funds, opts ...Option) *Engine {
	e := &Engine{
		funds: funds,
		sink:  events.Nop{},
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// With returns a copy of e with opts applied.
func (e *Engine) With(opts ...Option) *Engine {
	c := *e
	for _, o := range opts {
		o(&c)
	}
	return &c
}

// Initialize builds a pool and announces it.
func (e *Engine) Initialize(ctx context.Context, params Params) (*Pool, error) {
	p, err := Initialize(params, e.now())
	if err != nil {
		return nil, err
	}
	var bp uint32
	for _, it := range p.Items {
		bp += it.ProbabilityBP
	}
	e.sink.Publish(ctx, events.PoolInitialized{
		PoolID:             p.ID,
		Owner:              string(p.Owner),
		CompanyName:        p.CompanyName,
		TicketPrice:        p.TicketPrice,
		ItemCount:          len(p.Items),
		TotalValue:         p.TotalValue,
		TotalProbabilityBP: bp + p.NoWinBP,
		NoWinBP:            p.NoWinBP,
		At:                 p.CreatedAt,
	})
	return p, nil
}

// SellTicket charges buyer the ticket price and issues the next ticket.
func (e *Engine) SellTicket(ctx context.Context, p *Pool, buyer Identity) (*Ticket, error) {
	if !p.Active {
		return nil, ErrPoolNotActive
	}
	sold, err := checked.Add(p.TicketsSold, 1)
	if err != nil {
		return nil, mapArithError(err)
	}
	held, err := checked.Add(p.FundsHeld, p.TicketPrice)
	if err != nil {
		return nil, mapArithError(err)
	}

	seq := p.TicketsSold
	if err := e.funds.Transfer(ctx, Transfer{
		ID:     e.newID(),
		From:   string(buyer),
		To:     p.Vault,
		Amount: p.TicketPrice,
		Memo:   fmt.Sprintf("ticket %s/%d", p.ID, seq),
	}); err != nil {
		return nil, fmt.Errorf("transfer ticket price: %w", err)
	}

	now := e.now()
	p.TicketsSold = sold
	p.FundsHeld = held
	p.UpdatedAt = now
	t := &Ticket{
		PoolID:      p.ID,
		Owner:       buyer,
		Sequence:    seq,
		Price:       p.TicketPrice,
		PurchasedAt: now,
	}
	e.sink.Publish(ctx, events.TicketSold{
		PoolID:      p.ID,
		Buyer:       string(buyer),
		Sequence:    seq,
		Price:       p.TicketPrice,
		TicketsSold: p.TicketsSold,
		FundsHeld:   p.FundsHeld,
		At:          now,
	})
	return t, nil
}

// RecordSpin consumes the ticket and records what draw selected. Winning a
// limited item takes one unit of its supply; the last unit makes the item
// unavailable and the remaining items are reweighed.
func (e *Engine) RecordSpin(ctx context.Context, p *Pool, t *Ticket, caller Identity, draw uint32) (Outcome, error) {
	if !p.Active {
		return Outcome{}, ErrPoolNotActive
	}
	if t.PoolID != p.ID {
		return Outcome{}, ErrTicketPoolMismatch
	}
	if t.Owner != caller {
		return Outcome{}, ErrNotTicketOwner
	}
	if t.Used {
		return Outcome{}, ErrTicketAlreadyUsed
	}
	if !p.HasAvailableItems() {
		return Outcome{}, ErrNoAvailableItems
	}
	if draw >= gamemath.TotalBP {
		return Outcome{}, ErrDrawOutOfRange
	}

	tier, err := p.Table().Pick(draw)
	if err != nil {
		if err == gamemath.ErrNoAvailableItems {
			return Outcome{}, ErrNoAvailableItems
		}
		return Outcome{}, ErrDrawOutOfRange
	}

	out := Outcome{ItemIndex: tier.Index, Draw: draw}
	items := p.Items
	pending := p.PendingPayouts
	exhausted := false
	if tier.Win() {
		snap := p.Items[tier.Index]
		out.Win = true
		out.Item = &snap
		if pending, err = checked.Add(pending, snap.Value); err != nil {
			return Outcome{}, mapArithError(err)
		}
		if snap.Limited() {
			items = append([]Item(nil), p.Items...)
			it := &items[tier.Index]
			if it.Remaining, err = checked.Sub(it.Remaining, 1); err != nil {
				return Outcome{}, mapArithError(err)
			}
			if it.Remaining == 0 {
				it.Available = false
				exhausted = true
				if err := reweigh(items, p.TicketPrice, p.NoWinBP); err != nil {
					return Outcome{}, err
				}
			}
		}
	} else {
		out.ItemIndex = -1
	}

	now := e.now()
	p.Items = items
	p.PendingPayouts = pending
	p.UpdatedAt = now
	t.Used = true
	t.Outcome = &out
	t.SpunAt = &now

	ev := events.SpinRecorded{
		PoolID:    p.ID,
		Spinner:   string(caller),
		Sequence:  t.Sequence,
		Draw:      draw,
		Win:       out.Win,
		ItemIndex: out.ItemIndex,
		Exhausted: exhausted,
		At:        now,
	}
	if out.Item != nil {
		ev.ItemName = out.Item.Name
		ev.ItemValue = out.Item.Value
	}
	e.sink.Publish(ctx, ev)
	return out, nil
}

// ClaimReward pays the value of the ticket's winning item from the vault
// to the ticket owner. A pool that cannot cover the value leaves the
// ticket claimable.
func (e *Engine) ClaimReward(ctx context.Context, p *Pool, t *Ticket, caller Identity) (uint64, error) {
	if t.PoolID != p.ID {
		return 0, ErrTicketPoolMismatch
	}
	if t.Owner != caller {
		return 0, ErrNotTicketOwner
	}
	if !t.Used {
		return 0, ErrTicketNotUsed
	}
	if t.RewardClaimed {
		return 0, ErrRewardAlreadyClaimed
	}
	if !t.Winning() {
		return 0, ErrNotAWinner
	}

	amount := t.Outcome.Item.Value
	if p.FundsHeld < amount {
		return 0, ErrInsufficientBalance
	}
	held, err := checked.Sub(p.FundsHeld, amount)
	if err != nil {
		return 0, mapArithError(err)
	}
	pending := p.PendingPayouts
	if pending >= amount {
		pending -= amount
	} else {
		pending = 0
	}

	if err := e.funds.Transfer(ctx, Transfer{
		ID:     e.newID(),
		From:   p.Vault,
		To:     string(t.Owner),
		Amount: amount,
		Memo:   fmt.Sprintf("reward %s/%d", p.ID, t.Sequence),
	}); err != nil {
		return 0, fmt.Errorf("transfer reward: %w", err)
	}

	now := e.now()
	p.FundsHeld = held
	p.PendingPayouts = pending
	p.UpdatedAt = now
	t.RewardClaimed = true
	t.ClaimedAt = &now
	e.sink.Publish(ctx, events.RewardClaimed{
		PoolID:    p.ID,
		Owner:     string(t.Owner),
		Sequence:  t.Sequence,
		ItemName:  t.Outcome.Item.Name,
		Amount:    amount,
		FundsHeld: p.FundsHeld,
		At:        now,
	})
	return amount, nil
}

// WithdrawSurplus moves amount from the vault to the pool owner. Value owed
// to spun but unclaimed winning tickets cannot be withdrawn.
func (e *Engine) WithdrawSurplus(ctx context.Context, p *Pool, caller Identity, amount uint64) error {
	if caller != p.Owner {
		return ErrUnauthorizedWithdrawal
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if amount > p.Surplus() {
		return ErrInsufficientBalance
	}
	if cb, ok := e.funds.(CustodyBalancer); ok {
		bal, err := cb.Balance(ctx, p.Vault)
		if err != nil {
			return fmt.Errorf("vault balance: %w", err)
		}
		if bal <= e.minReserve {
			return ErrNoFundsAvailable
		}
		if amount > bal-e.minReserve {
			return ErrInsufficientVaultFunds
		}
	}
	held, err := checked.Sub(p.FundsHeld, amount)
	if err != nil {
		return mapArithError(err)
	}

	if err := e.funds.Transfer(ctx, Transfer{
		ID:     e.newID(),
		From:   p.Vault,
		To:     string(p.Owner),
		Amount: amount,
		Memo:   fmt.Sprintf("withdrawal %s", p.ID),
	}); err != nil {
		return fmt.Errorf("transfer withdrawal: %w", err)
	}

	now := e.now()
	p.FundsHeld = held
	p.UpdatedAt = now
	e.sink.Publish(ctx, events.FundsWithdrawn{
		PoolID:    p.ID,
		Owner:     string(p.Owner),
		Amount:    amount,
		FundsHeld: p.FundsHeld,
		At:        now,
	})
	return nil
}
