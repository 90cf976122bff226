package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashenafi-pixel/prize-wheel-engine/events"
	"github.com/Ashenafi-pixel/prize-wheel-engine/gamemath"
)

var (
	ctx   = context.Background()
	epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
)

type fakeFunds struct {
	balances  map[string]uint64
	transfers []Transfer
	fail      error
}

func newFakeFunds(balances map[string]uint64) *fakeFunds {
	if balances == nil {
		balances = map[string]uint64{}
	}
	return &fakeFunds{balances: balances}
}

func (f *fakeFunds) Transfer(_ context.Context, t Transfer) error {
	if f.fail != nil {
		return f.fail
	}
	if f.balances[t.From] < t.Amount {
		return fmt.Errorf("account %s: insufficient balance", t.From)
	}
	f.balances[t.From] -= t.Amount
	f.balances[t.To] += t.Amount
	f.transfers = append(f.transfers, t)
	return nil
}

// balancedFunds also reports balances, enabling vault checks on withdrawal.
type balancedFunds struct{ *fakeFunds }

func (b balancedFunds) Balance(_ context.Context, account string) (uint64, error) {
	return b.balances[account], nil
}

func twoItemParams() Params {
	return Params{
		ID:          "acme-1",
		Owner:       "owner",
		CompanyName: "Acme",
		TicketPrice: 100,
		Items: []ItemParams{
			{Name: "A", Value: 10},
			{Name: "B", Value: 50},
		},
	}
}

func newTestEngine(funds Funds, sink events.Sink) *Engine {
	return NewEngine(funds, WithSink(sink), WithClock(func() time.Time { return epoch }))
}

func TestInitialize_TwoItems(t *testing.T) {
	p, err := Initialize(twoItemParams(), epoch)
	require.NoError(t, err)

	assert.Greater(t, p.Items[0].ProbabilityBP, p.Items[1].ProbabilityBP)
	assert.Equal(t, uint32(gamemath.TotalBP), p.Items[0].ProbabilityBP+p.Items[1].ProbabilityBP)
	assert.Equal(t, uint64(60), p.TotalValue)
	assert.Zero(t, p.TicketsSold)
	assert.Zero(t, p.FundsHeld)
	assert.True(t, p.Active)
	assert.Equal(t, "vault:acme-1", p.Vault)
	assert.Equal(t, epoch, p.CreatedAt)
}

func TestInitialize_SingleItem(t *testing.T) {
	params := twoItemParams()
	params.Items = params.Items[1:]
	p, err := Initialize(params, epoch)
	require.NoError(t, err)
	assert.Equal(t, uint32(gamemath.TotalBP), p.Items[0].ProbabilityBP)
}

func TestInitialize_Validation(t *testing.T) {
	long := func(n int) string { return strings.Repeat("x", n) }
	tooMany := make([]ItemParams, MaxItems+1)
	for i := range tooMany {
		tooMany[i] = ItemParams{Name: "i", Value: 1}
	}

	cases := []struct {
		name   string
		modify func(*Params)
		want   *Error
	}{
		{"zero price", func(p *Params) { p.TicketPrice = 0; p.Items = nil }, ErrInvalidTicketPrice},
		{"no items", func(p *Params) { p.Items = nil }, ErrNoItemsProvided},
		{"too many items", func(p *Params) { p.Items = tooMany }, ErrTooManyItems},
		{"company name", func(p *Params) { p.CompanyName = long(51) }, ErrCompanyNameTooLong},
		{"company image", func(p *Params) { p.CompanyImage = long(201) }, ErrCompanyImageTooLong},
		{"zero value", func(p *Params) { p.Items[1].Value = 0 }, ErrInvalidItemPrice},
		{"item name", func(p *Params) { p.Items[0].Name = long(51) }, ErrItemNameTooLong},
		{"item image", func(p *Params) { p.Items[0].Image = long(201) }, ErrItemImageTooLong},
		{"item description", func(p *Params) { p.Items[0].Description = long(201) }, ErrItemDescriptionTooLong},
		{"no-win takes everything", func(p *Params) { p.NoWinBP = gamemath.TotalBP }, ErrInvalidNoWinReservation},
		{"no-win leaves too little", func(p *Params) { p.NoWinBP = gamemath.TotalBP - 1 }, ErrInvalidNoWinReservation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			params := twoItemParams()
			c.modify(&params)
			_, err := Initialize(params, epoch)
			require.Error(t, err)
			assert.ErrorIs(t, err, c.want)
			e, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, KindValidation, e.Kind)
		})
	}

	// Bounds are inclusive.
	params := twoItemParams()
	params.CompanyName = long(50)
	params.Items[0].Description = long(200)
	_, err := Initialize(params, epoch)
	assert.NoError(t, err)
}

func TestInitialize_ValueOverflow(t *testing.T) {
	params := twoItemParams()
	params.Items[0].Value = ^uint64(0)
	_, err := Initialize(params, epoch)
	assert.ErrorIs(t, err, ErrMathOverflow)
}

func TestInitialize_NoWinBucket(t *testing.T) {
	params := twoItemParams()
	params.NoWinBP = 1000
	p, err := Initialize(params, epoch)
	require.NoError(t, err)
	assert.Equal(t, uint32(9000), p.Items[0].ProbabilityBP+p.Items[1].ProbabilityBP)

	tbl := p.Table()
	require.Len(t, tbl.Tiers, 3)
	assert.False(t, tbl.Tiers[2].Win())
	assert.Equal(t, uint64(gamemath.TotalBP), tbl.Total())
}

func TestEngine_InitializeEmitsEvent(t *testing.T) {
	var buf events.Buffer
	e := newTestEngine(newFakeFunds(nil), &buf)
	p, err := e.Initialize(ctx, twoItemParams())
	require.NoError(t, err)

	evs := buf.Events()
	require.Len(t, evs, 1)
	ev := evs[0].(events.PoolInitialized)
	assert.Equal(t, p.ID, ev.PoolID)
	assert.Equal(t, uint32(gamemath.TotalBP), ev.TotalProbabilityBP)
	assert.Equal(t, 2, ev.ItemCount)
}

func TestSellTicket(t *testing.T) {
	funds := newFakeFunds(map[string]uint64{"x": 250})
	var buf events.Buffer
	e := newTestEngine(funds, &buf)
	p, err := Initialize(twoItemParams(), epoch)
	require.NoError(t, err)

	t0, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)
	t1, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)

	assert.Equal(t, uint64(0), t0.Sequence)
	assert.Equal(t, uint64(1), t1.Sequence)
	assert.Equal(t, StatusUnused, t0.Status())
	assert.Nil(t, t0.Outcome)
	assert.Equal(t, uint64(2), p.TicketsSold)
	assert.Equal(t, uint64(200), p.FundsHeld)
	assert.Equal(t, uint64(200), funds.balances[p.Vault])
	assert.Len(t, buf.Events(), 2)
	assert.NotEqual(t, funds.transfers[0].ID, funds.transfers[1].ID)

	// Buyer has 50 left: the transfer fails and nothing changes.
	before := *p
	_, err = e.SellTicket(ctx, p, "x")
	require.Error(t, err)
	_, isEngineErr := AsError(err)
	assert.False(t, isEngineErr)
	assert.Equal(t, before, *p)
	assert.Len(t, buf.Events(), 2)
}

func TestSellTicket_Inactive(t *testing.T) {
	e := newTestEngine(newFakeFunds(map[string]uint64{"x": 100}), events.Nop{})
	p, err := Initialize(twoItemParams(), epoch)
	require.NoError(t, err)
	p.Active = false
	_, err = e.SellTicket(ctx, p, "x")
	assert.ErrorIs(t, err, ErrPoolNotActive)
	assert.Zero(t, p.TicketsSold)
}

func TestSellTicket_CounterOverflow(t *testing.T) {
	funds := newFakeFunds(map[string]uint64{"x": 100})
	e := newTestEngine(funds, events.Nop{})
	p, err := Initialize(twoItemParams(), epoch)
	require.NoError(t, err)
	p.FundsHeld = ^uint64(0) - 50
	_, err = e.SellTicket(ctx, p, "x")
	assert.ErrorIs(t, err, ErrMathOverflow)
	assert.Empty(t, funds.transfers)
}

func setupSpun(t *testing.T, draw uint32) (*Engine, *fakeFunds, *Pool, *Ticket) {
	t.Helper()
	funds := newFakeFunds(map[string]uint64{"x": 1000})
	e := newTestEngine(funds, events.Nop{})
	p, err := Initialize(twoItemParams(), epoch)
	require.NoError(t, err)
	tk, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)
	_, err = e.RecordSpin(ctx, p, tk, "x", draw)
	require.NoError(t, err)
	return e, funds, p, tk
}

func TestRecordSpin_LastItem(t *testing.T) {
	var buf events.Buffer
	e := newTestEngine(newFakeFunds(map[string]uint64{"x": 100}), &buf)
	p, err := Initialize(twoItemParams(), epoch)
	require.NoError(t, err)
	tk, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)

	out, err := e.RecordSpin(ctx, p, tk, "x", 9999)
	require.NoError(t, err)
	assert.True(t, out.Win)
	assert.Equal(t, 1, out.ItemIndex)
	assert.True(t, tk.Used)
	require.NotNil(t, tk.Outcome.Item)
	assert.Equal(t, p.Items[1], *tk.Outcome.Item)
	assert.Equal(t, StatusSpun, tk.Status())
	assert.Equal(t, uint64(50), p.PendingPayouts)

	// Snapshot is independent of later catalog edits.
	p.Items[1].Name = "renamed"
	assert.Equal(t, "B", tk.Outcome.Item.Name)

	ev := buf.Events()[1].(events.SpinRecorded)
	assert.Equal(t, uint32(9999), ev.Draw)
	assert.Equal(t, "B", ev.ItemName)
}

func TestRecordSpin_Preconditions(t *testing.T) {
	e, _, p, tk := setupSpun(t, 0)

	_, err := e.RecordSpin(ctx, p, tk, "x", 0)
	assert.ErrorIs(t, err, ErrTicketAlreadyUsed)

	fresh := &Ticket{PoolID: p.ID, Owner: "x", Sequence: 7}
	_, err = e.RecordSpin(ctx, p, fresh, "y", 0)
	assert.ErrorIs(t, err, ErrNotTicketOwner)

	other := &Ticket{PoolID: "other", Owner: "x"}
	_, err = e.RecordSpin(ctx, p, other, "x", 0)
	assert.ErrorIs(t, err, ErrTicketPoolMismatch)

	_, err = e.RecordSpin(ctx, p, fresh, "x", gamemath.TotalBP)
	assert.ErrorIs(t, err, ErrDrawOutOfRange)
	assert.False(t, fresh.Used)

	p.Active = false
	_, err = e.RecordSpin(ctx, p, fresh, "x", 0)
	assert.ErrorIs(t, err, ErrPoolNotActive)
}

func TestRecordSpin_NoWin(t *testing.T) {
	params := twoItemParams()
	params.NoWinBP = 2000
	funds := newFakeFunds(map[string]uint64{"x": 100})
	e := newTestEngine(funds, events.Nop{})
	p, err := Initialize(params, epoch)
	require.NoError(t, err)
	tk, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)

	out, err := e.RecordSpin(ctx, p, tk, "x", 9999)
	require.NoError(t, err)
	assert.False(t, out.Win)
	assert.Equal(t, -1, out.ItemIndex)
	assert.Nil(t, out.Item)
	assert.Zero(t, p.PendingPayouts)

	_, err = e.ClaimReward(ctx, p, tk, "x")
	assert.ErrorIs(t, err, ErrNotAWinner)
}

func TestRecordSpin_LimitedSupply(t *testing.T) {
	params := twoItemParams()
	params.Items[0].Supply = 1
	funds := newFakeFunds(map[string]uint64{"x": 1000})
	e := newTestEngine(funds, events.Nop{})
	p, err := Initialize(params, epoch)
	require.NoError(t, err)

	t0, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)
	out, err := e.RecordSpin(ctx, p, t0, "x", 0)
	require.NoError(t, err)
	require.Equal(t, 0, out.ItemIndex)

	assert.False(t, p.Items[0].Available)
	assert.Zero(t, p.Items[0].Remaining)
	assert.Zero(t, p.Items[0].ProbabilityBP)
	assert.Equal(t, uint32(gamemath.TotalBP), p.Items[1].ProbabilityBP)

	// Every draw now lands on B.
	t1, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)
	out, err = e.RecordSpin(ctx, p, t1, "x", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ItemIndex)
}

func TestRecordSpin_NoAvailableItems(t *testing.T) {
	params := twoItemParams()
	params.Items = params.Items[:1]
	params.Items[0].Supply = 1
	e := newTestEngine(newFakeFunds(map[string]uint64{"x": 1000}), events.Nop{})
	p, err := Initialize(params, epoch)
	require.NoError(t, err)

	t0, _ := e.SellTicket(ctx, p, "x")
	_, err = e.RecordSpin(ctx, p, t0, "x", 42)
	require.NoError(t, err)

	t1, _ := e.SellTicket(ctx, p, "x")
	_, err = e.RecordSpin(ctx, p, t1, "x", 42)
	assert.ErrorIs(t, err, ErrNoAvailableItems)
	assert.False(t, t1.Used)
}

func TestClaimReward_UnusedTicket(t *testing.T) {
	funds := newFakeFunds(map[string]uint64{"x": 100})
	e := newTestEngine(funds, events.Nop{})
	p, err := Initialize(twoItemParams(), epoch)
	require.NoError(t, err)
	tk, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)

	beforePool, beforeTicket := *p, *tk
	_, err = e.ClaimReward(ctx, p, tk, "x")
	assert.ErrorIs(t, err, ErrTicketNotUsed)
	assert.Equal(t, beforePool, *p)
	assert.Equal(t, beforeTicket, *tk)
}

func TestClaimReward_OnceOnly(t *testing.T) {
	e, funds, p, tk := setupSpun(t, 9999)

	_, err := e.ClaimReward(ctx, p, tk, "someone")
	assert.ErrorIs(t, err, ErrNotTicketOwner)

	paid, err := e.ClaimReward(ctx, p, tk, "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), paid)
	assert.Equal(t, uint64(50), p.FundsHeld)
	assert.Zero(t, p.PendingPayouts)
	assert.Equal(t, StatusClaimed, tk.Status())
	assert.Equal(t, uint64(950), funds.balances["x"])

	_, err = e.ClaimReward(ctx, p, tk, "x")
	assert.ErrorIs(t, err, ErrRewardAlreadyClaimed)
	assert.Equal(t, uint64(50), p.FundsHeld)
	assert.Equal(t, uint64(950), funds.balances["x"])
}

func TestClaimReward_InsufficientBalanceIsRecoverable(t *testing.T) {
	params := twoItemParams()
	params.Items[1].Value = 500
	funds := newFakeFunds(map[string]uint64{"x": 1000})
	e := newTestEngine(funds, events.Nop{})
	p, err := Initialize(params, epoch)
	require.NoError(t, err)
	tk, err := e.SellTicket(ctx, p, "x")
	require.NoError(t, err)
	_, err = e.RecordSpin(ctx, p, tk, "x", 9999)
	require.NoError(t, err)

	_, err = e.ClaimReward(ctx, p, tk, "x")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	e2, _ := AsError(err)
	assert.Equal(t, KindResource, e2.Kind)
	assert.False(t, tk.RewardClaimed)

	for i := 0; i < 4; i++ {
		_, err = e.SellTicket(ctx, p, "x")
		require.NoError(t, err)
	}
	paid, err := e.ClaimReward(ctx, p, tk, "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), paid)
	assert.Zero(t, p.FundsHeld)
}

func TestClaimReward_TransferFailureLeavesState(t *testing.T) {
	e, funds, p, tk := setupSpun(t, 9999)
	funds.fail = errors.New("operator unavailable")
	before := *p
	_, err := e.ClaimReward(ctx, p, tk, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator unavailable")
	assert.Equal(t, before, *p)
	assert.False(t, tk.RewardClaimed)
}

func TestWithdrawSurplus_DrainsThenFails(t *testing.T) {
	params := twoItemParams()
	params.TicketPrice = 50
	funds := newFakeFunds(map[string]uint64{"x": 150})
	e := newTestEngine(funds, events.Nop{})
	p, err := Initialize(params, epoch)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := e.SellTicket(ctx, p, "x")
		require.NoError(t, err)
	}
	require.Equal(t, uint64(150), p.FundsHeld)

	assert.ErrorIs(t, e.WithdrawSurplus(ctx, p, "x", 10), ErrUnauthorizedWithdrawal)
	assert.ErrorIs(t, e.WithdrawSurplus(ctx, p, "owner", 0), ErrInvalidAmount)
	assert.ErrorIs(t, e.WithdrawSurplus(ctx, p, "owner", 151), ErrInsufficientBalance)

	require.NoError(t, e.WithdrawSurplus(ctx, p, "owner", 150))
	assert.Zero(t, p.FundsHeld)
	assert.Equal(t, uint64(150), funds.balances["owner"])

	assert.ErrorIs(t, e.WithdrawSurplus(ctx, p, "owner", 1), ErrInsufficientBalance)
}

func TestWithdrawSurplus_KeepsPendingPayouts(t *testing.T) {
	e, _, p, _ := setupSpun(t, 9999)
	require.Equal(t, uint64(100), p.FundsHeld)
	require.Equal(t, uint64(50), p.PendingPayouts)

	assert.ErrorIs(t, e.WithdrawSurplus(ctx, p, "owner", 51), ErrInsufficientBalance)
	assert.NoError(t, e.WithdrawSurplus(ctx, p, "owner", 50))
	assert.Equal(t, uint64(50), p.FundsHeld)
}

func TestWithdrawSurplus_VaultReserve(t *testing.T) {
	funds := balancedFunds{newFakeFunds(map[string]uint64{"x": 300})}
	e := NewEngine(funds, WithMinReserve(30))
	p, err := Initialize(twoItemParams(), epoch)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := e.SellTicket(ctx, p, "x")
		require.NoError(t, err)
	}

	assert.ErrorIs(t, e.WithdrawSurplus(ctx, p, "owner", 171), ErrInsufficientVaultFunds)
	require.NoError(t, e.WithdrawSurplus(ctx, p, "owner", 170))
	assert.Equal(t, uint64(30), p.FundsHeld)

	assert.ErrorIs(t, e.WithdrawSurplus(ctx, p, "owner", 1), ErrNoFundsAvailable)
}

func TestFundsConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	params := twoItemParams()
	params.Items = append(params.Items, ItemParams{Name: "C", Value: 300, Supply: 2})
	funds := newFakeFunds(map[string]uint64{"a": 1_000_000, "b": 1_000_000})
	e := newTestEngine(funds, events.Nop{})
	p, err := Initialize(params, epoch)
	require.NoError(t, err)

	var collected, paid, withdrawn uint64
	var tickets []*Ticket
	buyers := []Identity{"a", "b"}
	for step := 0; step < 500; step++ {
		switch rng.Intn(4) {
		case 0:
			tk, err := e.SellTicket(ctx, p, buyers[rng.Intn(2)])
			require.NoError(t, err)
			collected += tk.Price
			tickets = append(tickets, tk)
		case 1:
			if len(tickets) == 0 {
				continue
			}
			tk := tickets[rng.Intn(len(tickets))]
			_, _ = e.RecordSpin(ctx, p, tk, tk.Owner, uint32(rng.Intn(gamemath.TotalBP)))
		case 2:
			if len(tickets) == 0 {
				continue
			}
			tk := tickets[rng.Intn(len(tickets))]
			if amt, err := e.ClaimReward(ctx, p, tk, tk.Owner); err == nil {
				paid += amt
			}
		case 3:
			amt := uint64(rng.Intn(300) + 1)
			if err := e.WithdrawSurplus(ctx, p, "owner", amt); err == nil {
				withdrawn += amt
			}
		}
		require.Equal(t, collected-paid-withdrawn, p.FundsHeld, "step %d", step)
		require.Equal(t, p.FundsHeld, funds.balances[p.Vault])
	}
}

func TestErrorsAreWrappable(t *testing.T) {
	wrapped := fmt.Errorf("spin: %w", ErrTicketAlreadyUsed)
	assert.ErrorIs(t, wrapped, ErrTicketAlreadyUsed)
	assert.NotErrorIs(t, wrapped, ErrTicketNotUsed)

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, Code("TICKET_ALREADY_USED"), e.Code)
	assert.Equal(t, KindState, e.Kind)

	seen := map[Code]bool{}
	for _, c := range Codes {
		assert.False(t, seen[c.Code], "duplicate code %s", c.Code)
		seen[c.Code] = true
	}
}
