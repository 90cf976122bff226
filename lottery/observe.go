package lottery

import (
	"context"
	"errors"

	"github.com/Ashenafi-pixel/prize-wheel-engine/events"
	"github.com/Ashenafi-pixel/prize-wheel-engine/metrics"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
	"github.com/Ashenafi-pixel/prize-wheel-engine/store"
)

// observer turns committed events into metrics.
type observer struct{}

func (observer) Publish(_ context.Context, e events.Event) {
	switch ev := e.(type) {
	case events.TicketSold:
		metrics.TicketSold(ev.PoolID)
	case events.SpinRecorded:
		metrics.Spin(ev.PoolID, ev.Win, ev.Exhausted)
	case events.RewardClaimed:
		metrics.Claimed(ev.PoolID, ev.Amount)
	case events.FundsWithdrawn:
		metrics.Withdrawn(ev.PoolID, ev.Amount)
	}
}

// Codes for failures that do not come from the engine.
const (
	CodePoolNotFound   = "POOL_NOT_FOUND"
	CodePoolExists     = "POOL_EXISTS"
	CodeTicketNotFound = "TICKET_NOT_FOUND"
	CodeInternal       = "INTERNAL"
)

// ErrorCode returns the stable code for err.
func ErrorCode(err error) string {
	if e, ok := pool.AsError(err); ok {
		return string(e.Code)
	}
	switch {
	case errors.Is(err, store.ErrPoolNotFound):
		return CodePoolNotFound
	case errors.Is(err, store.ErrPoolExists):
		return CodePoolExists
	case errors.Is(err, store.ErrTicketNotFound):
		return CodeTicketNotFound
	}
	return CodeInternal
}

func metricsError(operation string, err error) {
	metrics.OperationError(operation, ErrorCode(err))
}
