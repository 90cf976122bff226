package lottery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/prize-wheel-engine/metrics"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

// Reverser undoes a transfer it completed earlier.
type Reverser interface {
	Reverse(ctx context.Context, t pool.Transfer) error
}

// recorder remembers every transfer that went through.
type recorder struct {
	funds pool.Funds
	mu    sync.Mutex
	done  []pool.Transfer
}

func (r *recorder) Transfer(ctx context.Context, t pool.Transfer) error {
	if err := r.funds.Transfer(ctx, t); err != nil {
		return err
	}
	r.mu.Lock()
	r.done = append(r.done, t)
	r.mu.Unlock()
	return nil
}

func (r *recorder) completed() []pool.Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pool.Transfer(nil), r.done...)
}

type balancingRecorder struct {
	*recorder
	pool.CustodyBalancer
}

// newRecorder wraps funds, keeping the custody balance visible to the
// engine when funds reports one.
func newRecorder(funds pool.Funds) (*recorder, pool.Funds) {
	r := &recorder{funds: funds}
	if cb, ok := funds.(pool.CustodyBalancer); ok {
		return r, balancingRecorder{recorder: r, CustodyBalancer: cb}
	}
	return r, r
}

// compensate reverses, newest first, the transfers of an operation whose
// state change was not committed.
func (s *Service) compensate(ctx context.Context, o *op, cause error) {
	done := o.rec.completed()
	if len(done) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		t := done[i]
		err := s.reverse(ctx, t)
		metrics.Compensation(o.name, err == nil)
		if err != nil {
			s.log.Error("transfer left uncompensated",
				zap.String("operation", o.name),
				zap.String("transfer_id", t.ID),
				zap.String("from", t.From),
				zap.String("to", t.To),
				zap.Uint64("amount", t.Amount),
				zap.NamedError("cause", cause),
				zap.Error(err),
			)
			continue
		}
		s.log.Warn("transfer reversed after failed commit",
			zap.String("operation", o.name),
			zap.String("transfer_id", t.ID),
			zap.Uint64("amount", t.Amount),
			zap.NamedError("cause", cause),
		)
	}
}

func (s *Service) reverse(ctx context.Context, t pool.Transfer) error {
	if r, ok := s.funds.(Reverser); ok {
		return r.Reverse(ctx, t)
	}
	return s.funds.Transfer(ctx, pool.Transfer{
		ID:     s.newID(),
		From:   t.To,
		To:     t.From,
		Amount: t.Amount,
		Memo:   "reversal of " + t.ID,
	})
}
