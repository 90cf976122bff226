package pool

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how a caller should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindState      Kind = "state"
	KindResource   Kind = "resource"
	KindArithmetic Kind = "arithmetic"
)

// Code is a stable identifier clients can assert on.
type Code string

// Error is returned for every failure detected by the engine itself.
// Collaborator failures are wrapped and returned as-is.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so a wrapped or re-created error still compares equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code Code, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

var (
	ErrInvalidTicketPrice      = newError(KindValidation, "INVALID_TICKET_PRICE", "ticket price must be greater than 0")
	ErrNoItemsProvided         = newError(KindValidation, "NO_ITEMS_PROVIDED", "at least one item must be provided")
	ErrTooManyItems            = newError(KindValidation, "TOO_MANY_ITEMS", fmt.Sprintf("a pool holds at most %d items", MaxItems))
	ErrInvalidItemPrice        = newError(KindValidation, "INVALID_ITEM_PRICE", "item value must be greater than 0")
	ErrItemNameTooLong         = newError(KindValidation, "ITEM_NAME_TOO_LONG", fmt.Sprintf("item name exceeds %d bytes", MaxItemNameLen))
	ErrItemImageTooLong        = newError(KindValidation, "ITEM_IMAGE_TOO_LONG", fmt.Sprintf("item image exceeds %d bytes", MaxItemImageLen))
	ErrItemDescriptionTooLong  = newError(KindValidation, "ITEM_DESCRIPTION_TOO_LONG", fmt.Sprintf("item description exceeds %d bytes", MaxItemDescriptionLen))
	ErrCompanyNameTooLong      = newError(KindValidation, "COMPANY_NAME_TOO_LONG", fmt.Sprintf("company name exceeds %d bytes", MaxCompanyNameLen))
	ErrCompanyImageTooLong     = newError(KindValidation, "COMPANY_IMAGE_TOO_LONG", fmt.Sprintf("company image exceeds %d bytes", MaxCompanyImageLen))
	ErrInvalidNoWinReservation = newError(KindValidation, "INVALID_NO_WIN_RESERVATION", "no-win reservation must leave at least 1 bp per item")
	ErrInvalidAmount           = newError(KindValidation, "INVALID_AMOUNT", "amount must be greater than 0")
	ErrDrawOutOfRange          = newError(KindValidation, "DRAW_OUT_OF_RANGE", "draw must be in [0, 10000)")
	ErrPoolNotActive           = newError(KindState, "POOL_NOT_ACTIVE", "pool is not active")
	ErrTicketAlreadyUsed       = newError(KindState, "TICKET_ALREADY_USED", "ticket has already been spun")
	ErrTicketNotUsed           = newError(KindState, "TICKET_NOT_USED", "ticket has not been spun yet")
	ErrRewardAlreadyClaimed    = newError(KindState, "REWARD_ALREADY_CLAIMED", "reward has already been claimed")
	ErrNotTicketOwner          = newError(KindState, "NOT_TICKET_OWNER", "caller does not own the ticket")
	ErrNotAWinner              = newError(KindState, "NOT_A_WINNER", "ticket did not win an item")
	ErrTicketPoolMismatch      = newError(KindState, "TICKET_POOL_MISMATCH", "ticket belongs to another pool")
	ErrUnauthorizedWithdrawal  = newError(KindState, "UNAUTHORIZED_WITHDRAWAL", "only the pool owner can withdraw")
	ErrNoAvailableItems        = newError(KindState, "NO_AVAILABLE_ITEMS", "no item can currently be won")
	ErrNoFundsAvailable        = newError(KindResource, "NO_FUNDS_AVAILABLE", "vault holds nothing above its minimum reserve")
	ErrInsufficientBalance     = newError(KindResource, "INSUFFICIENT_BALANCE", "pool does not hold enough funds")
	ErrInsufficientVaultFunds  = newError(KindResource, "INSUFFICIENT_VAULT_FUNDS", "vault balance is below the requested amount plus reserve")
	ErrMathOverflow            = newError(KindArithmetic, "MATH_OVERFLOW", "arithmetic overflow")
	ErrArithmeticUnderflow     = newError(KindArithmetic, "ARITHMETIC_UNDERFLOW", "arithmetic underflow")
	ErrProbabilitySumMismatch  = newError(KindArithmetic, "PROBABILITY_SUM_MISMATCH", "weights do not sum to 10000")
)

// Codes lists every engine error, in declaration order.
var Codes = []*Error{
	ErrInvalidTicketPrice, ErrNoItemsProvided, ErrTooManyItems, ErrInvalidItemPrice,
	ErrItemNameTooLong, ErrItemImageTooLong, ErrItemDescriptionTooLong,
	ErrCompanyNameTooLong, ErrCompanyImageTooLong, ErrInvalidNoWinReservation,
	ErrInvalidAmount, ErrDrawOutOfRange, ErrPoolNotActive, ErrTicketAlreadyUsed,
	ErrTicketNotUsed, ErrRewardAlreadyClaimed, ErrNotTicketOwner, ErrNotAWinner,
	ErrTicketPoolMismatch, ErrUnauthorizedWithdrawal, ErrNoAvailableItems,
	ErrNoFundsAvailable, ErrInsufficientBalance, ErrInsufficientVaultFunds,
	ErrMathOverflow, ErrArithmeticUnderflow, ErrProbabilitySumMismatch,
}

// AsError extracts the engine error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
