package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

func newPool(t *testing.T, id string) *pool.Pool {
	t.Helper()
	p, err := pool.Initialize(pool.Params{
		ID:          id,
		Owner:       "owner",
		CompanyName: "Acme",
		TicketPrice: 100,
		Items:       []pool.ItemParams{{Name: "Mug", Value: 10}, {Name: "Bike", Value: 50}},
	}, stamp)
	require.NoError(t, err)
	return p
}

func sell(tx Tx, owner pool.Identity) error {
	p := tx.Pool()
	tk := &pool.Ticket{PoolID: p.ID, Owner: owner, Sequence: p.TicketsSold, Price: p.TicketPrice, PurchasedAt: stamp}
	if err := tx.CreateTicket(tk); err != nil {
		return err
	}
	p.TicketsSold++
	p.FundsHeld += p.TicketPrice
	return tx.SavePool(p)
}

func TestFileStore_CreateAndGet(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.CreatePool(ctx, newPool(t, "p1")))
	assert.ErrorIs(t, s.CreatePool(ctx, newPool(t, "p1")), ErrPoolExists)

	p, err := s.GetPool(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", p.CompanyName)
	assert.Equal(t, uint64(60), p.TotalValue)

	p.CompanyName = "mutated"
	again, err := s.GetPool(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.CompanyName)

	_, err = s.GetPool(ctx, "missing")
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestFileStore_AtomicallyCommits(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.CreatePool(ctx, newPool(t, "p1")))

	require.NoError(t, s.Atomically(ctx, "p1", func(tx Tx) error { return sell(tx, "alice") }))
	require.NoError(t, s.Atomically(ctx, "p1", func(tx Tx) error { return sell(tx, "bob") }))
	require.NoError(t, s.Atomically(ctx, "p1", func(tx Tx) error { return sell(tx, "alice") }))

	p, err := s.GetPool(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), p.TicketsSold)
	assert.Equal(t, uint64(300), p.FundsHeld)

	all, err := s.ListTickets(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, tk := range all {
		assert.Equal(t, uint64(i), tk.Sequence)
	}

	mine, err := s.ListTickets(ctx, "p1", "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, uint64(0), mine[0].Sequence)
	assert.Equal(t, uint64(2), mine[1].Sequence)

	_, err = s.ListTickets(ctx, "ghost", "")
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestFileStore_FailedUnitOfWorkIsDiscarded(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.CreatePool(ctx, newPool(t, "p1")))

	boom := errors.New("boom")
	err = s.Atomically(ctx, "p1", func(tx Tx) error {
		if err := sell(tx, "alice"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := s.GetPool(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, p.TicketsSold)
	_, err = s.GetTicket(ctx, "p1", 0)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestFileStore_TicketRules(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.CreatePool(ctx, newPool(t, "p1")))
	require.NoError(t, s.Atomically(ctx, "p1", func(tx Tx) error { return sell(tx, "alice") }))

	err = s.Atomically(ctx, "p1", func(tx Tx) error {
		return tx.CreateTicket(&pool.Ticket{PoolID: "p1", Owner: "bob", Sequence: 0})
	})
	assert.ErrorIs(t, err, ErrTicketExists)

	err = s.Atomically(ctx, "p1", func(tx Tx) error {
		return tx.SaveTicket(&pool.Ticket{PoolID: "p1", Sequence: 9})
	})
	assert.ErrorIs(t, err, ErrTicketNotFound)

	err = s.Atomically(ctx, "p1", func(tx Tx) error {
		tk, err := tx.Ticket(0)
		if err != nil {
			return err
		}
		tk.Used = true
		tk.Outcome = &pool.Outcome{Win: false, ItemIndex: -1, Draw: 9990}
		return tx.SaveTicket(tk)
	})
	require.NoError(t, err)

	tk, err := s.GetTicket(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, pool.StatusSpun, tk.Status())
	assert.Equal(t, uint32(9990), tk.Outcome.Draw)
}

func TestFileStore_Reload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.CreatePool(ctx, newPool(t, "p2")))
	require.NoError(t, s.CreatePool(ctx, newPool(t, "p1")))
	require.NoError(t, s.Atomically(ctx, "p1", func(tx Tx) error { return sell(tx, "alice") }))

	assert.FileExists(t, filepath.Join(dir, "pools.json"))
	assert.FileExists(t, filepath.Join(dir, "tickets.json"))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	pools, err := reopened.ListPools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, "p1", pools[0].ID)
	assert.Equal(t, uint64(100), pools[0].FundsHeld)

	tk, err := reopened.GetTicket(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, pool.Identity("alice"), tk.Owner)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pools.json"), []byte("{nope"), 0644))
	_, err := NewFileStore(dir)
	assert.Error(t, err)
}
