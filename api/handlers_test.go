/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Stock adjustments and history over HTTP
- Return and receipt balance effects
- Delivery note reservation errors and status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M7sN2/AsilSys-sub001/generic"
	"github.com/M7sN2/AsilSys-sub001/generic/store"
	"github.com/M7sN2/AsilSys-sub001/inventory"
	"github.com/M7sN2/AsilSys-sub001/metrics"
)

func newTestServer(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := NewHandler(generic.NewWriter(store.NewMemory(), generic.WithLogger(logger)), logger)
	return h, NewRouter(h, RouterOptions{Metrics: metrics.New()})
}

func do(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAdjustment_AppliesAndReportsSnapshot(t *testing.T) {
	// GIVEN: A stock item with 100 units
	_, srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/stock-items", CreateStockItemRequest{ID: "P1", Name: "Bolts", Stock: 100})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Decreasing by 30
	rec = do(t, srv, http.MethodPost, "/api/stock-items/P1/adjustments", ApplyAdjustmentRequest{
		Kind: "decrease", Magnitude: 30, Date: "2025-03-02",
	})

	// THEN: The snapshot pair is returned and the live value moved
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adj := decode[AdjustmentDTO](t, rec)
	require.NotNil(t, adj.OldStock)
	require.NotNil(t, adj.NewStock)
	assert.Equal(t, 100.0, *adj.OldStock)
	assert.Equal(t, 70.0, *adj.NewStock)

	item := decode[StockItemDTO](t, do(t, srv, http.MethodGet, "/api/stock-items/P1", nil))
	assert.Equal(t, 70.0, item.Stock)
	assert.NotNil(t, item.LastOperationDate)
}

func TestAdjustment_BadInputIs400(t *testing.T) {
	_, srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/stock-items", CreateStockItemRequest{ID: "P1", Name: "Bolts", Stock: 10})

	tests := []struct {
		name string
		req  ApplyAdjustmentRequest
	}{
		{"negative magnitude", ApplyAdjustmentRequest{Kind: "increase", Magnitude: -1}},
		{"unknown kind", ApplyAdjustmentRequest{Kind: "teleport", Magnitude: 1}},
		{"bad date", ApplyAdjustmentRequest{Kind: "increase", Magnitude: 1, Date: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/stock-items/P1/adjustments", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := do(t, srv, http.MethodPost, "/api/stock-items/NOPE/adjustments", ApplyAdjustmentRequest{Kind: "increase", Magnitude: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory_MarksDerivedEntries(t *testing.T) {
	// GIVEN: One adjustment through the API
	h, srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/stock-items", CreateStockItemRequest{ID: "P1", Name: "Bolts", Stock: 10})
	do(t, srv, http.MethodPost, "/api/stock-items/P1/adjustments", ApplyAdjustmentRequest{Kind: "increase", Magnitude: 5, Date: "2025-03-02"})

	// AND: One legacy record without a snapshot
	legacy, err := generic.Encode(inventory.StockAdjustment{
		ID: "legacy-1", StockItemID: "P1", Kind: inventory.KindIncrease,
		Magnitude: decimal.NewFromInt(3),
		Date:      time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Insert(context.Background(), inventory.TableAdjustments, legacy))

	// WHEN: Reading history
	rec := do(t, srv, http.MethodGet, "/api/stock-items/P1/history", nil)

	// THEN: Legacy entry is derived, persisted one is not
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hist := decode[HistoryDTO](t, rec)
	require.Len(t, hist.Entries, 2)
	assert.Equal(t, "legacy-1", hist.Entries[0].AdjustmentID)
	assert.True(t, hist.Entries[0].Derived)
	assert.Equal(t, 7.0, hist.Entries[0].OldStock)
	assert.Equal(t, 10.0, hist.Entries[0].NewStock)
	assert.False(t, hist.Entries[1].Derived)
	assert.Equal(t, 15.0, hist.CurrentStock)

	// AND: Reversing the legacy record is a conflict
	rec = do(t, srv, http.MethodDelete, "/api/adjustments/legacy-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReturnAndReceipt_MoveBalance(t *testing.T) {
	// GIVEN: A customer owing 500 and an item with 10 in stock
	_, srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/stock-items", CreateStockItemRequest{ID: "P1", Name: "Bolts", Stock: 10})
	rec := do(t, srv, http.MethodPost, "/api/accounts/customers", CreateAccountRequest{ID: "C1", Name: "Acme", OpeningBalance: 500})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: The customer returns 2 units at 50
	rec = do(t, srv, http.MethodPost, "/api/returns", CreateReturnRequest{
		StockItemID: "P1", Direction: "from_customer", CounterPartyID: "C1",
		Quantity: 2, UnitPrice: 50, Reason: "customer_request",
	})

	// THEN: Stock and balance both move
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ret := decode[ReturnDTO](t, rec)
	assert.Equal(t, 500.0, ret.OldBalance)
	assert.Equal(t, 400.0, ret.NewBalance)
	assert.True(t, ret.RestoredToStock)

	acct := decode[AccountDTO](t, do(t, srv, http.MethodGet, "/api/accounts/customers/C1", nil))
	assert.Equal(t, 400.0, acct.Balance)

	// WHEN: A receipt of 150 is recorded
	rec = do(t, srv, http.MethodPost, "/api/receipts", CreateReceiptRequest{Kind: "customer", CounterPartyID: "C1", Amount: 150})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rc := decode[ReceiptDTO](t, rec)

	// THEN: Balance is 250, and deleting the receipt restores 400
	acct = decode[AccountDTO](t, do(t, srv, http.MethodGet, "/api/accounts/customers/C1", nil))
	assert.Equal(t, 250.0, acct.Balance)

	rec = do(t, srv, http.MethodDelete, "/api/receipts/"+rc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acct = decode[AccountDTO](t, do(t, srv, http.MethodGet, "/api/accounts/customers/C1", nil))
	assert.Equal(t, 400.0, acct.Balance)

	// AND: Deleting the return restores both stock and balance
	rec = do(t, srv, http.MethodDelete, "/api/returns/"+ret.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[StockItemDTO](t, do(t, srv, http.MethodGet, "/api/stock-items/P1", nil))
	assert.Equal(t, 10.0, item.Stock)
	acct = decode[AccountDTO](t, do(t, srv, http.MethodGet, "/api/accounts/customers/C1", nil))
	assert.Equal(t, 500.0, acct.Balance)
}

func TestReturn_UnknownCounterPartyIs404(t *testing.T) {
	_, srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/stock-items", CreateStockItemRequest{ID: "P1", Name: "Bolts", Stock: 10})

	rec := do(t, srv, http.MethodPost, "/api/returns", CreateReturnRequest{
		StockItemID: "P1", Direction: "from_customer", CounterPartyID: "ghost",
		Quantity: 1, UnitPrice: 10, Reason: "other",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	item := decode[StockItemDTO](t, do(t, srv, http.MethodGet, "/api/stock-items/P1", nil))
	assert.Equal(t, 10.0, item.Stock)
}

func TestDeliveryNote_StatusMapping(t *testing.T) {
	// GIVEN: A note with 50 listed and 20 reserved
	_, srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/delivery-notes", CreateNoteRequest{Custodian: "Sam"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	note := decode[NoteDTO](t, rec)
	assert.Equal(t, "DN-00001", note.Number)

	base := "/api/delivery-notes/" + note.ID
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, base+"/items/P1", UpsertItemRequest{Quantity: 50}).Code)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/items/P1/consume", ConsumeRequest{Quantity: 20}).Code)

	// WHEN/THEN: Reducing below the reservation is a conflict
	rec = do(t, srv, http.MethodPut, base+"/items/P1", UpsertItemRequest{Quantity: 15})
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "conflict", errResp.Error)

	// WHEN/THEN: Deleting a reserved item is a conflict
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodDelete, base+"/items/P1", nil).Code)

	// WHEN: Settling the note
	rec = do(t, srv, http.MethodPost, base+"/status", TransitionRequest{Status: "settled"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[NoteDTO](t, rec)
	assert.Equal(t, "settled", got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 30.0, got.Items[0].AvailableQuantity)

	// THEN: Further edits are locked
	assert.Equal(t, http.StatusLocked, do(t, srv, http.MethodPut, base+"/items/P1", UpsertItemRequest{Quantity: 60}).Code)
	assert.Equal(t, http.StatusLocked, do(t, srv, http.MethodDelete, base, nil).Code)
}

func TestDeliveryNote_InvalidTransitionIs409(t *testing.T) {
	_, srv := newTestServer(t)
	note := decode[NoteDTO](t, do(t, srv, http.MethodPost, "/api/delivery-notes", CreateNoteRequest{Custodian: "Sam"}))
	base := "/api/delivery-notes/" + note.ID

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/status", TransitionRequest{Status: "returned"}).Code)
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, base+"/status", TransitionRequest{Status: "issued"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"/status", TransitionRequest{Status: "lost"}).Code)
}

func TestDeliveryNote_ForceDeleteSettled(t *testing.T) {
	_, srv := newTestServer(t)
	note := decode[NoteDTO](t, do(t, srv, http.MethodPost, "/api/delivery-notes", CreateNoteRequest{Custodian: "Sam"}))
	base := "/api/delivery-notes/" + note.ID
	do(t, srv, http.MethodPut, base+"/items/P1", UpsertItemRequest{Quantity: 5})
	do(t, srv, http.MethodPost, base+"/status", TransitionRequest{Status: "settled"})

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, base+"?force=true", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, base, nil).Code)
}

func TestMalformedBodyIs400(t *testing.T) {
	_, srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stock-items", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	_, srv := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", nil).Code)

	do(t, srv, http.MethodGet, "/api/stock-items", nil)
	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_http_requests_total")
}
