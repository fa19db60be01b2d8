package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		kind string
	}{
		{"validation", shared.ErrScopeMismatch, http.StatusUnprocessableEntity, "VALIDATION"},
		{"conflict", shared.ErrPeriodClosed, http.StatusConflict, "STATE_CONFLICT"},
		{"lookup", shared.ErrNotFound, http.StatusNotFound, "LOOKUP"},
		{"storage", fmt.Errorf("%w: insert", shared.ErrDurability), http.StatusServiceUnavailable, "DURABILITY"},
		{"client gone", fmt.Errorf("post: %w", context.Canceled), StatusClientClosedRequest, "CANCELED"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "CANCELED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.want, rec.Code)
			var pd ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
			require.Equal(t, tc.kind, pd.Kind)
			require.Equal(t, tc.want, pd.Status)
		})
	}
}

func TestRespondErrorCarriesUnbalancedTotals(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.UnbalancedError{Currency: "USD", DebitTotal: decimal.RequireFromString("100"), CreditTotal: decimal.RequireFromString("90.5")})
	require.Equal(t, http.StatusConflict, rec.Code)
	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	require.Equal(t, "90.5", pd.Extensions["credit_total"])
}
