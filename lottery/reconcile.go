package lottery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/prize-wheel-engine/metrics"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
	"github.com/Ashenafi-pixel/prize-wheel-engine/store"
)

// Drift compares what a pool believes it holds with its custody balance.
// A vault topped up with a minimum reserve shows the reserve as positive drift.
type Drift struct {
	PoolID    string `json:"pool_id"`
	FundsHeld uint64 `json:"funds_held"`
	Custody   uint64 `json:"custody"`
}

// Balanced reports whether custody matches the pool's books.
func (d Drift) Balanced() bool { return d.FundsHeld == d.Custody }

// Delta is custody minus funds held.
func (d Drift) Delta() float64 {
	if d.Custody >= d.FundsHeld {
		return float64(d.Custody - d.FundsHeld)
	}
	return -float64(d.FundsHeld - d.Custody)
}

// Reconciler periodically checks every pool's vault against FundsHeld.
type Reconciler struct {
	store   store.Store
	custody pool.CustodyBalancer
	log     *zap.Logger
	timeout time.Duration

	mu   sync.Mutex
	cron *cron.Cron
	last []Drift
}

// NewReconciler checks vault balances through custody.
func NewReconciler(st store.Store, custody pool.CustodyBalancer) *Reconciler {
	return &Reconciler{
		store:   st,
		custody: custody,
		log:     zap.L().Named("reconcile"),
		timeout: time.Minute,
	}
}

// Run performs one pass and returns every pool's drift.
func (r *Reconciler) Run(ctx context.Context) ([]Drift, error) {
	pools, err := r.store.ListPools(ctx)
	if err != nil {
		metrics.ReconcileRun(false)
		return nil, fmt.Errorf("list pools: %w", err)
	}
	out := make([]Drift, 0, len(pools))
	for _, p := range pools {
		bal, err := r.custody.Balance(ctx, p.Vault)
		if err != nil {
			metrics.ReconcileRun(false)
			return nil, fmt.Errorf("vault balance %s: %w", p.ID, err)
		}
		d := Drift{PoolID: p.ID, FundsHeld: p.FundsHeld, Custody: bal}
		metrics.Drift(p.ID, d.Delta())
		if !d.Balanced() {
			r.log.Warn("vault drift",
				zap.String("pool_id", p.ID),
				zap.Uint64("funds_held", d.FundsHeld),
				zap.Uint64("custody", d.Custody),
				zap.Float64("delta", d.Delta()),
			)
		}
		out = append(out, d)
	}
	metrics.ReconcileRun(true)

	r.mu.Lock()
	r.last = out
	r.mu.Unlock()
	return out, nil
}

// Last returns the result of the most recent successful pass.
func (r *Reconciler) Last() []Drift {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Drift(nil), r.last...)
}

// Start schedules Run with a cron spec such as "@every 5m".
func (r *Reconciler) Start(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("reconciler already started")
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, r.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	r.log.Info("reconciler started", zap.String("schedule", spec))
	return nil
}

func (r *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.Run(ctx); err != nil {
		r.log.Error("reconcile failed", zap.Error(err))
	}
}

// Stop halts scheduling and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
