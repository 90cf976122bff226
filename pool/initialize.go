package pool

import (
	"time"

	"github.com/Ashenafi-pixel/prize-wheel-engine/checked"
	"github.com/Ashenafi-pixel/prize-wheel-engine/gamemath"
)

type ItemParams struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Image       string `json:"image" yaml:"image"`
	Value       uint64 `json:"value" yaml:"value"`
	Supply      uint64 `json:"supply,omitempty" yaml:"supply,omitempty"`
}

type Params struct {
	ID           string       `json:"id" yaml:"id"`
	Owner        Identity     `json:"owner" yaml:"owner"`
	Vault        string       `json:"vault,omitempty" yaml:"vault,omitempty"`
	CompanyName  string       `json:"company_name" yaml:"company_name"`
	CompanyImage string       `json:"company_image" yaml:"company_image"`
	TicketPrice  uint64       `json:"ticket_price" yaml:"ticket_price"`
	Items        []ItemParams `json:"items" yaml:"items"`
	NoWinBP      uint32       `json:"no_win_bp,omitempty" yaml:"no_win_bp,omitempty"`
}

// Validate checks params in a fixed order and returns the first failure.
func (p Params) Validate() error {
	if p.TicketPrice == 0 {
		return ErrInvalidTicketPrice
	}
	if len(p.Items) == 0 {
		return ErrNoItemsProvided
	}
	if len(p.Items) > MaxItems {
		return ErrTooManyItems
	}
	if len(p.CompanyName) > MaxCompanyNameLen {
		return ErrCompanyNameTooLong
	}
	if len(p.CompanyImage) > MaxCompanyImageLen {
		return ErrCompanyImageTooLong
	}
	for _, it := range p.Items {
		switch {
		case it.Value == 0:
			return ErrInvalidItemPrice
		case len(it.Name) > MaxItemNameLen:
			return ErrItemNameTooLong
		case len(it.Image) > MaxItemImageLen:
			return ErrItemImageTooLong
		case len(it.Description) > MaxItemDescriptionLen:
			return ErrItemDescriptionTooLong
		}
	}
	if p.NoWinBP >= gamemath.TotalBP || uint64(gamemath.TotalBP-p.NoWinBP) < uint64(len(p.Items))*gamemath.MinWeightBP {
		return ErrInvalidNoWinReservation
	}
	return nil
}

// Initialize builds a new active pool. Uniqueness of the pool ID is the
// storage layer's concern.
func Initialize(params Params, now time.Time) (*Pool, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	items := make([]Item, len(params.Items))
	var total uint64
	for i, in := range params.Items {
		var err error
		if total, err = checked.Add(total, in.Value); err != nil {
			return nil, mapArithError(err)
		}
		items[i] = Item{
			Name:        in.Name,
			Description: in.Description,
			Image:       in.Image,
			Value:       in.Value,
			Available:   true,
			Supply:      in.Supply,
			Remaining:   in.Supply,
		}
	}
	if err := reweigh(items, params.TicketPrice, params.NoWinBP); err != nil {
		return nil, err
	}

	vault := params.Vault
	if vault == "" {
		vault = VaultAccount(params.ID)
	}
	return &Pool{
		ID:           params.ID,
		Owner:        params.Owner,
		Vault:        vault,
		CompanyName:  params.CompanyName,
		CompanyImage: params.CompanyImage,
		TicketPrice:  params.TicketPrice,
		Items:        items,
		TotalValue:   total,
		NoWinBP:      params.NoWinBP,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
