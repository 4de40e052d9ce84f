package inventory_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M7sN2/AsilSys-sub001/inventory"
)

// =============================================================================
// APPLY ADJUSTMENT
// =============================================================================

func TestStockLedger_DecreaseRecordsSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.item(t, "P1", 100)

	// WHEN: decrease by 30
	adj, err := e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{
		StockItemID: "P1", Kind: inventory.KindDecrease, Magnitude: 30, Date: day(2),
	})
	require.NoError(t, err)

	// THEN: the pair captures the transition and live stock follows it
	assert.True(t, adj.HasSnapshot())
	assert.True(t, adj.OldStock.Decimal.Equal(dec("100")))
	assert.True(t, adj.NewStock.Decimal.Equal(dec("70")))
	assert.True(t, e.stockOf(t, "P1").Equal(dec("70")))

	item, err := e.stock.StockItem(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, item.LastOperationDate)
	assert.True(t, item.LastOperationDate.Equal(day(2)))
}

func TestStockLedger_DecreaseFloorsAtZero(t *testing.T) {
	e := newEnv(t)
	e.item(t, "P1", 70)

	adj, err := e.stock.ApplyAdjustment(context.Background(), inventory.AdjustmentInput{
		StockItemID: "P1", Kind: inventory.KindDecrease, Magnitude: 1000,
	})
	require.NoError(t, err)

	assert.True(t, adj.OldStock.Decimal.Equal(dec("70")))
	assert.True(t, adj.NewStock.Decimal.IsZero())
	assert.True(t, e.stockOf(t, "P1").IsZero())
}

func TestStockLedger_KindsAndUnits(t *testing.T) {
	tests := []struct {
		name     string
		kind     inventory.AdjustmentKind
		unit     inventory.Unit
		mag      float64
		expected string
	}{
		{"increase", inventory.KindIncrease, "", 5, "45"},
		{"decrease", inventory.KindDecrease, inventory.UnitSmallest, 15, "25"},
		{"set", inventory.KindSet, "", 7, "7"},
		{"set zero", inventory.KindSet, "", 0, "0"},
		{"increase largest unit", inventory.KindIncrease, inventory.UnitLargest, 2, "64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, err := e.stock.CreateStockItem(context.Background(), inventory.StockItemInput{
				ID: "P1", Stock: 40, UnitFactor: 12,
			})
			require.NoError(t, err)

			adj, err := e.stock.ApplyAdjustment(context.Background(), inventory.AdjustmentInput{
				StockItemID: "P1", Kind: tt.kind, Unit: tt.unit, Magnitude: tt.mag,
			})
			require.NoError(t, err)
			assert.True(t, adj.NewStock.Decimal.Equal(dec(tt.expected)), "got %s", adj.NewStock.Decimal)
			assert.True(t, e.stockOf(t, "P1").Equal(dec(tt.expected)))
		})
	}
}

func TestStockLedger_RejectsBadInputBeforeReadingStore(t *testing.T) {
	e := newEnv(t)

	// GIVEN: no stock item exists at all, so any store read would fail with not found
	for _, mag := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := e.stock.ApplyAdjustment(context.Background(), inventory.AdjustmentInput{
			StockItemID: "missing", Kind: inventory.KindIncrease, Magnitude: mag,
		})
		assert.ErrorIs(t, err, inventory.ErrInvalidMagnitude)
		assert.True(t, inventory.IsClientError(err))
	}

	_, err := e.stock.ApplyAdjustment(context.Background(), inventory.AdjustmentInput{
		StockItemID: "missing", Kind: "multiply", Magnitude: 2,
	})
	assert.ErrorIs(t, err, inventory.ErrInvalidKind)
}

func TestStockLedger_UnknownItem(t *testing.T) {
	e := newEnv(t)

	_, err := e.stock.ApplyAdjustment(context.Background(), inventory.AdjustmentInput{
		StockItemID: "missing", Kind: inventory.KindIncrease, Magnitude: 1,
	})

	var nf *inventory.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "stock item", nf.Kind)
	assert.True(t, inventory.IsNotFound(err))
}

func TestStockLedger_SnapshotsNeverChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.item(t, "P1", 100)

	first, err := e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindDecrease, Magnitude: 30, Date: day(2)})
	require.NoError(t, err)

	// WHEN: later operations move the live stock
	for i := 0; i < 3; i++ {
		_, err := e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindIncrease, Magnitude: 11, Date: day(3 + i)})
		require.NoError(t, err)
	}

	// THEN: the first record still reports what happened at its time
	got, err := e.stock.Adjustment(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.OldStock.Decimal.Equal(dec("100")))
	assert.True(t, got.NewStock.Decimal.Equal(dec("70")))
	assert.True(t, e.stockOf(t, "P1").Equal(dec("103")))
}

func TestStockLedger_AdjustmentsOrderedByDate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.item(t, "P1", 0)

	for _, d := range []int{5, 1, 3} {
		_, err := e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindIncrease, Magnitude: float64(d), Date: day(d)})
		require.NoError(t, err)
	}

	adjs, err := e.stock.Adjustments(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, adjs, 3)
	assert.True(t, adjs[0].Date.Equal(day(1)))
	assert.True(t, adjs[1].Date.Equal(day(3)))
	assert.True(t, adjs[2].Date.Equal(day(5)))
	assert.Equal(t, []int64{2, 3, 1}, []int64{adjs[0].Sequence, adjs[1].Sequence, adjs[2].Sequence})
}

func TestStockLedger_InsertFailureRollsBackStock(t *testing.T) {
	fs := newFailingStore()
	e := newEnvWith(t, fs)
	e.item(t, "P1", 100)

	// GIVEN: the adjustment record cannot be persisted
	fs.failInsert[inventory.TableAdjustments] = true

	_, err := e.stock.ApplyAdjustment(context.Background(), inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindDecrease, Magnitude: 30})

	// THEN: the live stock is back where it was
	assert.ErrorIs(t, err, errInjected)
	assert.True(t, e.stockOf(t, "P1").Equal(dec("100")))
}

func TestStockLedger_ConcurrentAdjustmentsKeepEveryPairConsistent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.item(t, "P1", 0)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindIncrease, Magnitude: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, e.stockOf(t, "P1").Equal(decimal.NewFromInt(n)))

	adjs, err := e.stock.Adjustments(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, adjs, n)
	seen := map[string]bool{}
	for _, a := range adjs {
		assert.True(t, a.NewStock.Decimal.Equal(a.OldStock.Decimal.Add(dec("1"))))
		seen[a.OldStock.Decimal.String()] = true
	}
	assert.Len(t, seen, n, "every adjustment must have observed a distinct base")
}

// =============================================================================
// REVERSE ADJUSTMENT
// =============================================================================

func TestStockLedger_ReverseOverwritesToOldStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.item(t, "P1", 100)

	first, err := e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindDecrease, Magnitude: 30, Date: day(2)})
	require.NoError(t, err)
	second, err := e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindIncrease, Magnitude: 20, Date: day(3)})
	require.NoError(t, err)

	// WHEN: the older adjustment is reversed
	_, err = e.stock.ReverseAdjustment(ctx, first.ID)
	require.NoError(t, err)

	// THEN: stock is overwritten to its OldStock; later operations are not replayed
	assert.True(t, e.stockOf(t, "P1").Equal(dec("100")))
	_, err = e.stock.Adjustment(ctx, first.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	kept, err := e.stock.Adjustment(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, kept.OldStock.Decimal.Equal(dec("70")))
	assert.True(t, kept.NewStock.Decimal.Equal(dec("90")))
}

func TestStockLedger_ReverseLegacyFails(t *testing.T) {
	e := newEnv(t)
	e.item(t, "P1", 10)
	e.legacy(t, "A1", "P1", day(1), inventory.KindIncrease, "10")

	_, err := e.stock.ReverseAdjustment(context.Background(), "A1")

	assert.ErrorIs(t, err, inventory.ErrSnapshotMissing)
	assert.True(t, e.stockOf(t, "P1").Equal(dec("10")))
}

func TestStockLedger_ReverseDeleteFailureRestoresStock(t *testing.T) {
	fs := newFailingStore()
	e := newEnvWith(t, fs)
	ctx := context.Background()
	e.item(t, "P1", 100)
	adj, err := e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindDecrease, Magnitude: 30})
	require.NoError(t, err)

	fs.failDelete[inventory.TableAdjustments] = true
	_, err = e.stock.ReverseAdjustment(ctx, adj.ID)

	assert.ErrorIs(t, err, errInjected)
	assert.True(t, e.stockOf(t, "P1").Equal(dec("70")))
}

func TestStockLedger_ReverseUnknown(t *testing.T) {
	e := newEnv(t)
	_, err := e.stock.ReverseAdjustment(context.Background(), "nope")
	assert.True(t, inventory.IsNotFound(err))
}
