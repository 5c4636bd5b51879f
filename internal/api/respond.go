package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/feastly/teamcart/internal/domain/menu"
	"github.com/feastly/teamcart/internal/domain/teamcart"
	"github.com/feastly/teamcart/internal/payment"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain failures to HTTP statuses. Business-rule conflicts
// are 409s, bad input is 400/422, unknown ids are 404, everything
// unexpected is a 500 with details kept in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, teamcart.ErrCartNotFound),
		errors.Is(err, teamcart.ErrItemNotFound),
		errors.Is(err, menu.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, teamcart.ErrInvalidToken),
		errors.Is(err, payment.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, teamcart.ErrOnlyHostCanLockCart),
		errors.Is(err, teamcart.ErrOnlyHostCanModifyFinancials),
		errors.Is(err, teamcart.ErrNotItemOwner),
		errors.Is(err, teamcart.ErrUserNotMember):
		return http.StatusForbidden
	case errors.Is(err, teamcart.ErrInvalidQuantity),
		errors.Is(err, teamcart.ErrNegativeTip),
		errors.Is(err, payment.ErrMalformedBody),
		errors.Is(err, payment.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, teamcart.ErrCartNotOpen),
		errors.Is(err, teamcart.ErrCartTerminal),
		errors.Is(err, teamcart.ErrAlreadyMember),
		errors.Is(err, teamcart.ErrCannotLockEmptyCart),
		errors.Is(err, teamcart.ErrCanOnlyApplyFinancialsToLockedCart),
		errors.Is(err, teamcart.ErrCanOnlyPayOnLockedCart),
		errors.Is(err, teamcart.ErrPaymentAlreadyCommitted),
		errors.Is(err, teamcart.ErrNoPendingPayment),
		errors.Is(err, teamcart.ErrStaleQuoteVersion),
		errors.Is(err, teamcart.ErrItemFromOtherRestaurant),
		errors.Is(err, teamcart.ErrCannotConvert),
		errors.Is(err, teamcart.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
