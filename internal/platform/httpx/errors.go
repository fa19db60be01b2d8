// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// StatusClientClosedRequest reports a request the client abandoned before it completed.
const StatusClientClosedRequest = 499

// Sentinel errors for the transport layer.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

// RespondError maps ledger errors to HTTP responses using RFC7807. The problem carries the
// error kind plus correction data where the error has any.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
		return
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	kind := shared.KindOf(err)
	pd := ProblemDetail{Kind: string(kind), Status: StatusFor(kind), Detail: err.Error()}
	switch kind {
	case shared.KindCanceled:
		pd.Title = "Request Canceled"
		if errors.Is(err, context.DeadlineExceeded) {
			pd.Title = "Gateway Timeout"
			pd.Status = http.StatusGatewayTimeout
		}
	case shared.KindValidation:
		pd.Title = "Validation Failed"
	case shared.KindStateConflict:
		pd.Title = "Conflict"
	case shared.KindLookup:
		pd.Title = "Not Found"
	default:
		pd.Title = "Service Unavailable"
		pd.Detail = ""
	}
	pd.Extensions = extensions(err)
	JSON(w, pd.Status, pd)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusUnprocessableEntity
	case shared.KindStateConflict:
		return http.StatusConflict
	case shared.KindLookup:
		return http.StatusNotFound
	case shared.KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func extensions(err error) map[string]any {
	var unbalanced *shared.UnbalancedError
	if errors.As(err, &unbalanced) {
		return map[string]any{
			"currency":     unbalanced.Currency,
			"debit_total":  unbalanced.DebitTotal.String(),
			"credit_total": unbalanced.CreditTotal.String(),
		}
	}
	var malformed *shared.MalformedLineError
	if errors.As(err, &malformed) {
		return map[string]any{"line": malformed.Index, "reason": malformed.Reason}
	}
	var line *shared.LineError
	if errors.As(err, &line) {
		return map[string]any{"line": line.Index, "account_id": line.AccountID}
	}
	return nil
}
