package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/M7sN2/AsilSys-sub001/generic"
	"github.com/M7sN2/AsilSys-sub001/generic/store"
	"github.com/M7sN2/AsilSys-sub001/inventory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2025, time.March, d, 9, 0, 0, 0, time.UTC) }

// fixedClock ticks one second per call so CreatedAt values are ordered.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type env struct {
	store    generic.Store
	writer   *generic.Writer
	stock    *inventory.StockLedger
	balances *inventory.BalanceLedger
	returns  *inventory.ReturnService
	receipts *inventory.ReceiptService
	notes    *inventory.ReservationTracker
	logs     *test.Hook
}

func newEnv(t *testing.T) *env {
	return newEnvWith(t, store.NewMemory())
}

func newEnvWith(t *testing.T, s generic.Store) *env {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	clock := &fixedClock{now: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)}
	opts := []inventory.Option{
		inventory.WithLogger(logger),
		inventory.WithClock(clock.Now),
	}
	w := generic.NewWriter(s, generic.WithLogger(logger))
	stock := inventory.NewStockLedger(w, opts...)
	balances := inventory.NewBalanceLedger(w, opts...)
	return &env{
		store:    s,
		writer:   w,
		stock:    stock,
		balances: balances,
		returns:  inventory.NewReturnService(stock, balances, opts...),
		receipts: inventory.NewReceiptService(balances, opts...),
		notes:    inventory.NewReservationTracker(w, opts...),
		logs:     hook,
	}
}

func (e *env) item(t *testing.T, id string, stock float64) *inventory.StockItem {
	t.Helper()
	item, err := e.stock.CreateStockItem(context.Background(), inventory.StockItemInput{ID: id, Name: "Item " + id, Stock: stock})
	require.NoError(t, err)
	return item
}

func (e *env) account(t *testing.T, kind inventory.AccountKind, id string, balance float64) {
	t.Helper()
	_, err := e.balances.CreateAccount(context.Background(), inventory.AccountInput{ID: id, Kind: kind, Name: id, OpeningBalance: balance})
	require.NoError(t, err)
}

func (e *env) stockOf(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	item, err := e.stock.StockItem(context.Background(), id)
	require.NoError(t, err)
	return item.Stock
}

func (e *env) balanceOf(t *testing.T, kind inventory.AccountKind, id string) decimal.Decimal {
	t.Helper()
	acct, err := e.balances.Account(context.Background(), kind, id)
	require.NoError(t, err)
	return acct.Balance
}

// legacy inserts an adjustment the way old releases wrote it: no snapshot.
func (e *env) legacy(t *testing.T, id, itemID string, date time.Time, kind inventory.AdjustmentKind, magnitude string) {
	t.Helper()
	rec, err := generic.Encode(inventory.StockAdjustment{
		ID:          id,
		StockItemID: itemID,
		Date:        date,
		Kind:        kind,
		Magnitude:   dec(magnitude),
		CreatedAt:   date,
	})
	require.NoError(t, err)
	require.NoError(t, e.store.Insert(context.Background(), inventory.TableAdjustments, rec))
}

// anchored inserts an adjustment with a persisted snapshot pair.
func (e *env) anchored(t *testing.T, id, itemID string, date time.Time, kind inventory.AdjustmentKind, magnitude, oldStock, newStock string) {
	t.Helper()
	rec, err := generic.Encode(inventory.StockAdjustment{
		ID:          id,
		StockItemID: itemID,
		Date:        date,
		Kind:        kind,
		Magnitude:   dec(magnitude),
		OldStock:    decimal.NewNullDecimal(dec(oldStock)),
		NewStock:    decimal.NewNullDecimal(dec(newStock)),
		CreatedAt:   date,
	})
	require.NoError(t, err)
	require.NoError(t, e.store.Insert(context.Background(), inventory.TableAdjustments, rec))
}

// failingStore fails Insert or Delete on selected tables.
type failingStore struct {
	*store.Memory
	failInsert map[string]bool
	failDelete map[string]bool
}

var errInjected = errors.New("injected store failure")

func newFailingStore() *failingStore {
	return &failingStore{
		Memory:     store.NewMemory(),
		failInsert: map[string]bool{},
		failDelete: map[string]bool{},
	}
}

func (f *failingStore) Insert(ctx context.Context, table string, rec generic.Record) error {
	if f.failInsert[table] {
		return fmt.Errorf("%s: %w", table, errInjected)
	}
	return f.Memory.Insert(ctx, table, rec)
}

func (f *failingStore) Delete(ctx context.Context, table, id string) error {
	if f.failDelete[table] {
		return fmt.Errorf("%s: %w", table, errInjected)
	}
	return f.Memory.Delete(ctx, table, id)
}

// hookStore runs a callback once, right after a matching read returns, to
// let another caller slip in between an operation's lookup and its write.
type hookStore struct {
	*store.Memory
	mu         sync.Mutex
	afterOne   func(table, id string) bool
	afterMany  func(table string, f generic.Filter) bool
	run        func()
	failUpdate map[string]bool
}

func newHookStore() *hookStore {
	return &hookStore{Memory: store.NewMemory(), failUpdate: map[string]bool{}}
}

// take returns the pending callback if match accepts the read, disarming it.
func (h *hookStore) take(match func() bool) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.run == nil || !match() {
		return nil
	}
	run := h.run
	h.run = nil
	return run
}

func (h *hookStore) FetchOne(ctx context.Context, table, id string) (generic.Record, error) {
	rec, err := h.Memory.FetchOne(ctx, table, id)
	if run := h.take(func() bool { return h.afterOne != nil && h.afterOne(table, id) }); run != nil {
		run()
	}
	return rec, err
}

func (h *hookStore) FetchMany(ctx context.Context, table string, f generic.Filter) ([]generic.Record, error) {
	recs, err := h.Memory.FetchMany(ctx, table, f)
	if run := h.take(func() bool { return h.afterMany != nil && h.afterMany(table, f) }); run != nil {
		run()
	}
	return recs, err
}

func (h *hookStore) Update(ctx context.Context, table, id string, rec generic.Record) error {
	if h.failUpdate[table] {
		return fmt.Errorf("%s: %w", table, errInjected)
	}
	return h.Memory.Update(ctx, table, id, rec)
}
