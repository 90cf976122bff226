package lottery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
	"github.com/Ashenafi-pixel/prize-wheel-engine/randomness"
)

func TestReconcilerReportsDrift(t *testing.T) {
	f := newFixture(t, randomness.NewFixed(0))
	_, err := f.svc.CreatePool(ctx, "owner", wheelParams("wheel"))
	require.NoError(t, err)
	_, err = f.svc.BuyTicket(ctx, "wheel", "alice")
	require.NoError(t, err)

	r := NewReconciler(f.store, f.ledger)
	drifts, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.True(t, drifts[0].Balanced())

	require.NoError(t, f.ledger.Deposit(pool.VaultAccount("wheel"), 5))
	drifts, err = r.Run(ctx)
	require.NoError(t, err)
	assert.False(t, drifts[0].Balanced())
	assert.Equal(t, 5.0, drifts[0].Delta())
	assert.Equal(t, drifts, r.Last())
}

func TestDriftDeltaSign(t *testing.T) {
	assert.Equal(t, -30.0, Drift{FundsHeld: 100, Custody: 70}.Delta())
	assert.Equal(t, 0.0, Drift{FundsHeld: 70, Custody: 70}.Delta())
}

func TestReconcilerSchedule(t *testing.T) {
	f := newFixture(t, randomness.NewFixed(0))
	r := NewReconciler(f.store, f.ledger)

	assert.Error(t, r.Start("not a schedule"))
	require.NoError(t, r.Start("@every 1h"))
	assert.Error(t, r.Start("@every 1h"))
	r.Stop()
	r.Stop()
}
