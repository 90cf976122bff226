package pool

import "time"

type Status string

const (
	StatusUnused  Status = "unused"
	StatusSpun    Status = "spun"
	StatusClaimed Status = "claimed"
)

// Outcome is the result of a spin. Item is a snapshot taken at spin time;
// later catalog changes do not affect what the ticket is owed.
type Outcome struct {
	Win       bool   `json:"win"`
	ItemIndex int    `json:"item_index"`
	Item      *Item  `json:"item,omitempty"`
	Draw      uint32 `json:"draw"`

	// Proof is whatever the randomness source published to audit Draw.
	Proof string `json:"proof,omitempty"`
}

type Ticket struct {
	PoolID        string     `json:"pool_id"`
	Owner         Identity   `json:"owner"`
	Sequence      uint64     `json:"sequence"`
	Price         uint64     `json:"price"`
	Used          bool       `json:"used"`
	Outcome       *Outcome   `json:"outcome,omitempty"`
	RewardClaimed bool       `json:"reward_claimed"`
	PurchasedAt   time.Time  `json:"purchased_at"`
	SpunAt        *time.Time `json:"spun_at,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
}

func (t *Ticket) Status() Status {
	switch {
	case t.RewardClaimed:
		return StatusClaimed
	case t.Used:
		return StatusSpun
	default:
		return StatusUnused
	}
}

// Winning reports whether the ticket was spun and won an item.
func (t *Ticket) Winning() bool {
	return t.Used && t.Outcome != nil && t.Outcome.Win && t.Outcome.Item != nil
}

func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.Outcome != nil {
		o := *t.Outcome
		if o.Item != nil {
			it := *o.Item
			o.Item = &it
		}
		c.Outcome = &o
	}
	return &c
}
