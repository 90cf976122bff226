package server

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

var poolIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type itemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Value       uint64 `json:"value"`
	Supply      uint64 `json:"supply"`
}

// createPoolRequest checks request shape only. Limits on prices, names and
// item counts are enforced by the engine so clients see its error codes.
type createPoolRequest struct {
	ID           string        `json:"id"`
	CompanyName  string        `json:"company_name"`
	CompanyImage string        `json:"company_image"`
	TicketPrice  uint64        `json:"ticket_price"`
	NoWinBP      uint32        `json:"no_win_bp"`
	Items        []itemRequest `json:"items"`
}

func (r *createPoolRequest) Validate() error {
	return validation.ValidateStruct(
		r,
		validation.Field(&r.ID, validation.Length(0, 64), validation.Match(poolIDPattern)),
	)
}

func (r *createPoolRequest) params() pool.Params {
	items := make([]pool.ItemParams, len(r.Items))
	for i, it := range r.Items {
		items[i] = pool.ItemParams{
			Name:        it.Name,
			Description: it.Description,
			Image:       it.Image,
			Value:       it.Value,
			Supply:      it.Supply,
		}
	}
	return pool.Params{
		ID:           r.ID,
		CompanyName:  r.CompanyName,
		CompanyImage: r.CompanyImage,
		TicketPrice:  r.TicketPrice,
		NoWinBP:      r.NoWinBP,
		Items:        items,
	}
}

type withdrawRequest struct {
	Amount uint64 `json:"amount"`
}

type poolResponse struct {
	*pool.Pool
	Surplus uint64 `json:"surplus"`
}

func newPoolResponse(p *pool.Pool) poolResponse {
	return poolResponse{Pool: p, Surplus: p.Surplus()}
}

type ticketResponse struct {
	*pool.Ticket
	Status pool.Status `json:"status"`
}

func newTicketResponse(t *pool.Ticket) ticketResponse {
	return ticketResponse{Ticket: t, Status: t.Status()}
}

type claimResponse struct {
	Amount uint64         `json:"amount"`
	Ticket ticketResponse `json:"ticket"`
}
