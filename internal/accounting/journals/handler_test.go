package journals_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
	lt "github.com/odyssey-erp/odyssey-gl/internal/testing/ledgertest"
)

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]int64
}

func (g *memoryGuard) Reserve(_ context.Context, key, _ string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = map[string]int64{}
	}
	id, ok := g.keys[key]
	switch {
	case !ok:
		g.keys[key] = 0
		return 0, nil
	case id == 0:
		return 0, internalShared.ErrIdempotencyInFlight
	}
	return id, internalShared.ErrIdempotencyConflict
}

func (g *memoryGuard) Complete(_ context.Context, key string, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = id
	return nil
}

func (g *memoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] == 0 {
		delete(g.keys, key)
	}
	return nil
}

func TestCreateReplaysIdempotencyKey(t *testing.T) {
	l := lt.New(t)
	l.Month(t, nil, time.January)
	cash := l.Account(t, nil, "1100", accounts.AccountTypeAsset, nil, true)
	sales := l.Account(t, nil, "4000", accounts.AccountTypeRevenue, nil, true)

	guard := &memoryGuard{}
	r := chi.NewRouter()
	journals.NewHandler(nil, l.Journals, guard).MountRoutes(r)

	body := fmt.Sprintf(`{"company_id":%d,"entry_date":"2025-01-05","currency":"USD","lines":[
		{"account_id":%d,"debit":"25.00"},{"account_id":%d,"credit":"25.00"}]}`, lt.ParentID, cash.ID, sales.ID)
	submit := func(key, payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/journals", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	first := submit("k-1", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	var created journals.JournalEntry
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))

	again := submit("k-1", body)
	require.Equal(t, http.StatusOK, again.Code, again.Body.String())
	var replayed journals.JournalEntry
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &replayed))
	require.Equal(t, created.ID, replayed.ID)

	list, err := l.Journals.List(context.Background(), journals.ListFilter{CompanyID: lt.ParentID})
	require.NoError(t, err)
	require.Len(t, list, 1, "a replay creates nothing")

	bad := strings.Replace(body, "2025-01-05", "2025-06-05", 1)
	failed := submit("k-2", bad)
	require.NotEqual(t, http.StatusCreated, failed.Code)
	_, held := guard.keys["k-2"]
	require.False(t, held, "a failed submission frees its key")
}
