// Package store persists pools and tickets and serializes every
// read-modify-write on a pool.
package store

import (
	"context"
	"errors"

	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

var (
	ErrPoolNotFound   = errors.New("pool not found")
	ErrPoolExists     = errors.New("pool already exists")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketExists   = errors.New("ticket already exists")
)

type Store interface {
	// CreatePool inserts p, failing with ErrPoolExists for a known ID.
	CreatePool(ctx context.Context, p *pool.Pool) error
	GetPool(ctx context.Context, id string) (*pool.Pool, error)
	ListPools(ctx context.Context) ([]*pool.Pool, error)
	GetTicket(ctx context.Context, poolID string, seq uint64) (*pool.Ticket, error)
	// ListTickets returns the pool's tickets by sequence; an empty owner
	// lists every ticket.
	ListTickets(ctx context.Context, poolID string, owner pool.Identity) ([]*pool.Ticket, error)
	// Atomically runs fn with exclusive access to the pool. Writes made
	// through tx are committed only if fn returns nil.
	Atomically(ctx context.Context, poolID string, fn func(tx Tx) error) error
}

// Tx is a unit of work on one pool.
type Tx interface {
	// Pool returns the locked pool. Changes are kept only after SavePool.
	Pool() *pool.Pool
	SavePool(p *pool.Pool) error
	Ticket(seq uint64) (*pool.Ticket, error)
	CreateTicket(t *pool.Ticket) error
	SaveTicket(t *pool.Ticket) error
}
