// Package lottery runs pool operations end to end: it locks the pool in the
// store, drives the engine, commits, and only then publishes events.
package lottery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/prize-wheel-engine/events"
	"github.com/Ashenafi-pixel/prize-wheel-engine/gamemath"
	"github.com/Ashenafi-pixel/prize-wheel-engine/metrics"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
	"github.com/Ashenafi-pixel/prize-wheel-engine/randomness"
	"github.com/Ashenafi-pixel/prize-wheel-engine/store"
)

type Service struct {
	store      store.Store
	funds      pool.Funds
	rng        randomness.Source
	sink       events.Sink
	log        *zap.Logger
	engineOpts []pool.Option
	newID      func() string
}

type Option func(*Service)

// WithSink sets where committed events go. Metrics are always updated.
func WithSink(s events.Sink) Option { return func(svc *Service) { svc.sink = s } }

func WithLogger(l *zap.Logger) Option { return func(svc *Service) { svc.log = l } }

// WithMinReserve keeps reserve units in every vault.
func WithMinReserve(reserve uint64) Option {
	return func(svc *Service) { svc.engineOpts = append(svc.engineOpts, pool.WithMinReserve(reserve)) }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.engineOpts = append(svc.engineOpts, pool.WithClock(now)) }
}

func New(st store.Store, funds pool.Funds, rng randomness.Source, opts ...Option) *Service {
	s := &Service{
		store: st,
		funds: funds,
		rng:   rng,
		sink:  events.Nop{},
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.L()
	}
	return s
}

// op is the per-call state: events wait in buf and transfers are recorded
// so they can be undone if the store refuses the commit.
type op struct {
	name   string
	buf    *events.Buffer
	rec    *recorder
	engine *pool.Engine
	pool   *pool.Pool
}

func (s *Service) begin(name string) *op {
	rec, funds := newRecorder(s.funds)
	buf := &events.Buffer{}
	opts := append([]pool.Option{pool.WithSink(buf)}, s.engineOpts...)
	return &op{name: name, buf: buf, rec: rec, engine: pool.NewEngine(funds, opts...)}
}

// finish publishes or discards the buffered events and compensates
// transfers that outlived a failed commit.
func (s *Service) finish(ctx context.Context, o *op, err error) error {
	if err == nil {
		o.buf.Flush(ctx, events.Multi{observer{}, s.sink})
		if o.pool != nil {
			metrics.PoolBalances(o.pool.ID, o.pool.FundsHeld, o.pool.PendingPayouts)
		}
		return nil
	}
	o.buf.Discard()
	s.compensate(ctx, o, err)
	metricsError(o.name, err)
	return err
}

// CreatePool initializes a pool owned by owner. A missing ID is generated.
func (s *Service) CreatePool(ctx context.Context, owner pool.Identity, params pool.Params) (*pool.Pool, error) {
	o := s.begin("create_pool")
	params.Owner = owner
	if params.ID == "" {
		params.ID = s.newID()
	}
	p, err := o.engine.Initialize(ctx, params)
	if err == nil {
		o.pool = p
		err = s.store.CreatePool(ctx, p)
	}
	if err = s.finish(ctx, o, err); err != nil {
		return nil, err
	}
	s.log.Info("pool created",
		zap.String("pool_id", p.ID),
		zap.String("owner", string(owner)),
		zap.Int("items", len(p.Items)),
		zap.Uint64("ticket_price", p.TicketPrice),
	)
	return p, nil
}

// BuyTicket charges buyer and issues the pool's next ticket.
func (s *Service) BuyTicket(ctx context.Context, poolID string, buyer pool.Identity) (*pool.Ticket, error) {
	o := s.begin("buy_ticket")
	var ticket *pool.Ticket
	err := s.store.Atomically(ctx, poolID, func(tx store.Tx) error {
		p := tx.Pool()
		o.pool = p
		t, err := o.engine.SellTicket(ctx, p, buyer)
		if err != nil {
			return err
		}
		if err := tx.CreateTicket(t); err != nil {
			return err
		}
		ticket = t
		return tx.SavePool(p)
	})
	if err = s.finish(ctx, o, err); err != nil {
		return nil, err
	}
	s.log.Info("ticket sold",
		zap.String("pool_id", poolID),
		zap.Uint64("ticket_seq", ticket.Sequence),
		zap.String("buyer", string(buyer)),
	)
	return ticket, nil
}

// Spin draws a value for the ticket and records the outcome.
func (s *Service) Spin(ctx context.Context, poolID string, seq uint64, caller pool.Identity) (*pool.Ticket, error) {
	o := s.begin("spin")
	var ticket *pool.Ticket
	err := s.store.Atomically(ctx, poolID, func(tx store.Tx) error {
		p := tx.Pool()
		o.pool = p
		t, err := tx.Ticket(seq)
		if err != nil {
			return err
		}
		draw, err := s.rng.Draw(ctx, randomness.Request{PoolID: p.ID, Sequence: t.Sequence, Spinner: string(caller)})
		if err != nil {
			return fmt.Errorf("draw: %w", err)
		}
		if _, err := o.engine.RecordSpin(ctx, p, t, caller, draw.Value); err != nil {
			return err
		}
		t.Outcome.Proof = draw.Nonce
		if err := tx.SaveTicket(t); err != nil {
			return err
		}
		ticket = t
		return tx.SavePool(p)
	})
	if err = s.finish(ctx, o, err); err != nil {
		return nil, err
	}
	s.log.Info("spin recorded",
		zap.String("pool_id", poolID),
		zap.Uint64("ticket_seq", seq),
		zap.Bool("win", ticket.Outcome.Win),
		zap.Uint32("draw", ticket.Outcome.Draw),
	)
	return ticket, nil
}

// Claim pays the ticket's prize value to its owner.
func (s *Service) Claim(ctx context.Context, poolID string, seq uint64, caller pool.Identity) (uint64, *pool.Ticket, error) {
	o := s.begin("claim")
	var (
		ticket *pool.Ticket
		amount uint64
	)
	err := s.store.Atomically(ctx, poolID, func(tx store.Tx) error {
		p := tx.Pool()
		o.pool = p
		t, err := tx.Ticket(seq)
		if err != nil {
			return err
		}
		if amount, err = o.engine.ClaimReward(ctx, p, t, caller); err != nil {
			return err
		}
		if err := tx.SaveTicket(t); err != nil {
			return err
		}
		ticket = t
		return tx.SavePool(p)
	})
	if err = s.finish(ctx, o, err); err != nil {
		return 0, nil, err
	}
	s.log.Info("reward claimed",
		zap.String("pool_id", poolID),
		zap.Uint64("ticket_seq", seq),
		zap.Uint64("amount", amount),
	)
	return amount, ticket, nil
}

// Withdraw moves surplus from the pool's vault to its owner.
func (s *Service) Withdraw(ctx context.Context, poolID string, caller pool.Identity, amount uint64) (*pool.Pool, error) {
	o := s.begin("withdraw")
	var after *pool.Pool
	err := s.store.Atomically(ctx, poolID, func(tx store.Tx) error {
		p := tx.Pool()
		o.pool = p
		if err := o.engine.WithdrawSurplus(ctx, p, caller, amount); err != nil {
			return err
		}
		after = p
		return tx.SavePool(p)
	})
	if err = s.finish(ctx, o, err); err != nil {
		return nil, err
	}
	s.log.Info("surplus withdrawn",
		zap.String("pool_id", poolID),
		zap.Uint64("amount", amount),
		zap.Uint64("funds_held", after.FundsHeld),
	)
	return after, nil
}

func (s *Service) Pool(ctx context.Context, id string) (*pool.Pool, error) {
	return s.store.GetPool(ctx, id)
}

func (s *Service) Pools(ctx context.Context) ([]*pool.Pool, error) {
	return s.store.ListPools(ctx)
}

func (s *Service) Ticket(ctx context.Context, poolID string, seq uint64) (*pool.Ticket, error) {
	if _, err := s.store.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	return s.store.GetTicket(ctx, poolID, seq)
}

// Tickets lists a pool's tickets; an empty owner lists all of them.
func (s *Service) Tickets(ctx context.Context, poolID string, owner pool.Identity) ([]*pool.Ticket, error) {
	return s.store.ListTickets(ctx, poolID, owner)
}

// Analysis reports each item's odds and expected cost at the current weights.
func (s *Service) Analysis(ctx context.Context, poolID string) ([]gamemath.ItemAnalysis, error) {
	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return p.Analysis(), nil
}
