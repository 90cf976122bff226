// Package events defines the records emitted by pool operations and the
// sinks that deliver them. Delivery is fire-and-forget: a sink logs its own
// failures and never reports them to the operation that emitted the event.
package events

import (
	"context"
	"time"
)

type Type string

const (
	TypePoolInitialized Type = "pool_initialized"
	TypeTicketSold      Type = "ticket_sold"
	TypeSpinRecorded    Type = "spin_recorded"
	TypeRewardClaimed   Type = "reward_claimed"
	TypeFundsWithdrawn  Type = "funds_withdrawn"
)

// Event is implemented by every event record.
type Event interface {
	EventType() Type
	EventPool() string
	OccurredAt() time.Time
}

// Sink receives events after the operation that produced them committed.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// Envelope is the wire form used by the redis and file sinks.
type Envelope struct {
	Type    Type      `json:"type"`
	PoolID  string    `json:"pool_id"`
	At      time.Time `json:"at"`
	Payload Event     `json:"payload"`
}

func Wrap(e Event) Envelope {
	return Envelope{Type: e.EventType(), PoolID: e.EventPool(), At: e.OccurredAt(), Payload: e}
}

type PoolInitialized struct {
	PoolID             string    `json:"pool_id"`
	Owner              string    `json:"owner"`
	CompanyName        string    `json:"company_name"`
	TicketPrice        uint64    `json:"ticket_price"`
	ItemCount          int       `json:"item_count"`
	TotalValue         uint64    `json:"total_value"`
	TotalProbabilityBP uint32    `json:"total_probability_bp"`
	NoWinBP            uint32    `json:"no_win_bp,omitempty"`
	At                 time.Time `json:"at"`
}

type TicketSold struct {
	PoolID      string    `json:"pool_id"`
	Buyer       string    `json:"buyer"`
	Sequence    uint64    `json:"sequence"`
	Price       uint64    `json:"price"`
	TicketsSold uint64    `json:"tickets_sold"`
	FundsHeld   uint64    `json:"funds_held"`
	At          time.Time `json:"at"`
}

type SpinRecorded struct {
	PoolID    string    `json:"pool_id"`
	Spinner   string    `json:"spinner"`
	Sequence  uint64    `json:"sequence"`
	Draw      uint32    `json:"draw"`
	Win       bool      `json:"win"`
	ItemIndex int       `json:"item_index"`
	ItemName  string    `json:"item_name,omitempty"`
	ItemValue uint64    `json:"item_value,omitempty"`
	Exhausted bool      `json:"exhausted,omitempty"`
	At        time.Time `json:"at"`
}

type RewardClaimed struct {
	PoolID    string    `json:"pool_id"`
	Owner     string    `json:"owner"`
	Sequence  uint64    `json:"sequence"`
	ItemName  string    `json:"item_name"`
	Amount    uint64    `json:"amount"`
	FundsHeld uint64    `json:"funds_held"`
	At        time.Time `json:"at"`
}

type FundsWithdrawn struct {
	PoolID    string    `json:"pool_id"`
	Owner     string    `json:"owner"`
	Amount    uint64    `json:"amount"`
	FundsHeld uint64    `json:"funds_held"`
	At        time.Time `json:"at"`
}

func (e PoolInitialized) EventType() Type { return TypePoolInitialized }
func (e PoolInitialized) EventPool() string { return e.PoolID }
func (e PoolInitialized) OccurredAt() time.Time { return e.At }

func (e TicketSold) EventType() Type { return TypeTicketSold }
func (e TicketSold) EventPool() string { return e.PoolID }
func (e TicketSold) OccurredAt() time.Time { return e.At }

func (e SpinRecorded) EventType() Type { return TypeSpinRecorded }
func (e SpinRecorded) EventPool() string { return e.PoolID }
func (e SpinRecorded) OccurredAt() time.Time { return e.At }

func (e RewardClaimed) EventType() Type { return TypeRewardClaimed }
func (e RewardClaimed) EventPool() string { return e.PoolID }
func (e RewardClaimed) OccurredAt() time.Time { return e.At }

func (e FundsWithdrawn) EventType() Type { return TypeFundsWithdrawn }
func (e FundsWithdrawn) EventPool() string { return e.PoolID }
func (e FundsWithdrawn) OccurredAt() time.Time { return e.At }
