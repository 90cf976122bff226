package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/prize-wheel-engine/ledger"
	"github.com/Ashenafi-pixel/prize-wheel-engine/lottery"
	"github.com/Ashenafi-pixel/prize-wheel-engine/operator"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

// APIError is the standard error response.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, code int, errMsg, codeStr string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(APIError{
		Error:   errMsg,
		Code:    codeStr,
		Message: errMsg,
	})
}

// writeServiceError maps an operation failure onto a status and code.
func writeServiceError(w http.ResponseWriter, err error) {
	if e, ok := pool.AsError(err); ok {
		writeError(w, engineStatus(e), e.Message, string(e.Code))
		return
	}
	var opErr *operator.APIError
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient funds", "INSUFFICIENT_FUNDS")
		return
	case errors.As(err, &opErr):
		writeError(w, http.StatusBadGateway, opErr.Message, "OPERATOR_ERROR")
		return
	}
	switch code := lottery.ErrorCode(err); code {
	case lottery.CodePoolNotFound, lottery.CodeTicketNotFound:
		writeError(w, http.StatusNotFound, err.Error(), code)
	case lottery.CodePoolExists:
		writeError(w, http.StatusConflict, err.Error(), code)
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", code)
	}
}

func engineStatus(e *pool.Error) int {
	switch e.Kind {
	case pool.KindValidation:
		return http.StatusBadRequest
	case pool.KindResource:
		return http.StatusUnprocessableEntity
	case pool.KindArithmetic:
		return http.StatusInternalServerError
	}
	switch e.Code {
	case pool.ErrNotTicketOwner.Code, pool.ErrUnauthorizedWithdrawal.Code:
		return http.StatusForbidden
	}
	return http.StatusConflict
}
