package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M7sN2/AsilSys-sub001/inventory"
)

// =============================================================================
// RETURNS
// =============================================================================

func customerReturn(reason inventory.ReturnReason, restoreBalance bool) inventory.ReturnInput {
	return inventory.ReturnInput{
		StockItemID:     "P1",
		Date:            day(4),
		Direction:       inventory.ReturnFromCustomer,
		CounterPartyID:  "C1",
		Quantity:        2,
		UnitPrice:       50,
		Reason:          reason,
		BalanceRestored: restoreBalance,
	}
}

func TestReturns_CustomerRequestRestoresStockAndBalance(t *testing.T) {
	e := newEnv(t)
	e.item(t, "P1", 10)
	e.account(t, inventory.AccountCustomer, "C1", 500)

	ret, err := e.returns.CreateReturn(context.Background(), customerReturn(inventory.ReasonCustomerRequest, true))
	require.NoError(t, err)

	assert.True(t, ret.RestoredToStock)
	assert.True(t, ret.Total.Equal(dec("100")))
	assert.True(t, ret.OldStock.Decimal.Equal(dec("10")))
	assert.True(t, ret.NewStock.Decimal.Equal(dec("12")))
	assert.True(t, ret.OldBalance.Equal(dec("500")))
	assert.True(t, ret.NewBalance.Equal(dec("400")))
	assert.True(t, e.stockOf(t, "P1").Equal(dec("12")))
	assert.True(t, e.balanceOf(t, inventory.AccountCustomer, "C1").Equal(dec("400")))
}

func TestReturns_DamagedGoodsStayOutOfStock(t *testing.T) {
	e := newEnv(t)
	e.item(t, "P1", 10)
	e.account(t, inventory.AccountCustomer, "C1", 500)

	ret, err := e.returns.CreateReturn(context.Background(), customerReturn(inventory.ReasonDamaged, true))
	require.NoError(t, err)

	assert.False(t, ret.RestoredToStock)
	assert.False(t, ret.OldStock.Valid)
	assert.True(t, e.stockOf(t, "P1").Equal(dec("10")))
	assert.True(t, ret.NewBalance.Equal(dec("400")))
}

func TestReturns_RestoredToStockByReason(t *testing.T) {
	expected := map[inventory.ReturnReason]bool{
		inventory.ReasonDamaged:         false,
		inventory.ReasonExpired:         false,
		inventory.ReasonDefective:       true,
		inventory.ReasonWrongItem:       true,
		inventory.ReasonCustomerRequest: true,
		inventory.ReasonOther:           true,
	}
	for reason, restores := range expected {
		assert.Equal(t, restores, reason.RestoresStock(), string(reason))
	}
}

func TestReturns_BalanceOptOutRecordsLiveBalanceTwice(t *testing.T) {
	e := newEnv(t)
	e.item(t, "P1", 10)
	e.account(t, inventory.AccountCustomer, "C1", 500)

	ret, err := e.returns.CreateReturn(context.Background(), customerReturn(inventory.ReasonCustomerRequest, false))
	require.NoError(t, err)

	assert.True(t, ret.OldBalance.Equal(dec("500")))
	assert.True(t, ret.NewBalance.Equal(ret.OldBalance))
	assert.True(t, e.balanceOf(t, inventory.AccountCustomer, "C1").Equal(dec("500")))
}

func TestReturns_NoCounterPartyRecordsZero(t *testing.T) {
	e := newEnv(t)
	e.item(t, "P1", 10)
	in := customerReturn(inventory.ReasonOther, false)
	in.CounterPartyID = ""

	ret, err := e.returns.CreateReturn(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, ret.OldBalance.IsZero())
	assert.True(t, ret.NewBalance.IsZero())
}

func TestReturns_UnknownCounterPartyLeavesStockUntouched(t *testing.T) {
	e := newEnv(t)
	e.item(t, "P1", 10)

	_, err := e.returns.CreateReturn(context.Background(), customerReturn(inventory.ReasonCustomerRequest, true))

	var enf *inventory.EntityNotFoundError
	require.True(t, errors.As(err, &enf))
	assert.Equal(t, inventory.AccountCustomer, enf.Kind)
	assert.True(t, e.stockOf(t, "P1").Equal(dec("10")))
}

func TestReturns_InsertFailureUndoesBothEffects(t *testing.T) {
	fs := newFailingStore()
	e := newEnvWith(t, fs)
	e.item(t, "P1", 10)
	e.account(t, inventory.AccountCustomer, "C1", 500)
	fs.failInsert[inventory.TableReturns] = true

	_, err := e.returns.CreateReturn(context.Background(), customerReturn(inventory.ReasonCustomerRequest, true))

	assert.ErrorIs(t, err, errInjected)
	assert.True(t, e.stockOf(t, "P1").Equal(dec("10")))
	assert.True(t, e.balanceOf(t, inventory.AccountCustomer, "C1").Equal(dec("500")))
}

func TestReturns_SupplierReturnFloorsAndReversesAppliedChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.item(t, "P1", 3)
	e.account(t, inventory.AccountSupplier, "S1", -200)

	ret, err := e.returns.CreateReturn(ctx, inventory.ReturnInput{
		StockItemID:     "P1",
		Direction:       inventory.ReturnToSupplier,
		CounterPartyID:  "S1",
		Quantity:        5,
		UnitPrice:       10,
		Reason:          inventory.ReasonDefective,
		BalanceRestored: true,
	})
	require.NoError(t, err)
	assert.True(t, e.stockOf(t, "P1").IsZero())
	assert.True(t, ret.NewBalance.Equal(dec("-250")))

	// WHEN: the return is deleted after stock was replenished
	_, err = e.stock.ApplyAdjustment(ctx, inventory.AdjustmentInput{StockItemID: "P1", Kind: inventory.KindIncrease, Magnitude: 7})
	require.NoError(t, err)
	_, err = e.returns.DeleteReturn(ctx, ret.ID)
	require.NoError(t, err)

	// THEN: only the 3 units actually removed come back; the later +7 survives
	assert.True(t, e.stockOf(t, "P1").Equal(dec("10")))
	assert.True(t, e.balanceOf(t, inventory.AccountSupplier, "S1").Equal(dec("-200")))
	_, err = e.returns.Return(ctx, ret.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestReturns_RejectsBadInput(t *testing.T) {
	e := newEnv(t)
	e.item(t, "P1", 10)

	tests := []struct {
		name   string
		mutate func(*inventory.ReturnInput)
		target error
	}{
		{"unknown reason", func(in *inventory.ReturnInput) { in.Reason = "lost" }, inventory.ErrInvalidKind},
		{"unknown direction", func(in *inventory.ReturnInput) { in.Direction = "sideways" }, inventory.ErrInvalidKind},
		{"zero quantity", func(in *inventory.ReturnInput) { in.Quantity = 0 }, inventory.ErrInvalidQuantity},
		{"negative price", func(in *inventory.ReturnInput) { in.UnitPrice = -1 }, inventory.ErrInvalidQuantity},
		{"unknown item", func(in *inventory.ReturnInput) { in.StockItemID = "missing" }, inventory.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := customerReturn(inventory.ReasonOther, false)
			tt.mutate(&in)
			_, err := e.returns.CreateReturn(context.Background(), in)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestReturns_ListedByItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.item(t, "P1", 10)
	e.item(t, "P2", 10)

	for _, id := range []string{"P1", "P2", "P1"} {
		in := customerReturn(inventory.ReasonOther, false)
		in.StockItemID = id
		in.CounterPartyID = ""
		_, err := e.returns.CreateReturn(ctx, in)
		require.NoError(t, err)
	}

	rets, err := e.returns.Returns(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, rets, 2)
}

// =============================================================================
// RECEIPTS
// =============================================================================

func TestReceipts_DebitAndReverse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.account(t, inventory.AccountCustomer, "C1", 500)

	rc, err := e.receipts.CreateReceipt(ctx, inventory.ReceiptInput{
		Kind: inventory.AccountCustomer, CounterPartyID: "C1", Amount: 120, Date: day(5),
	})
	require.NoError(t, err)
	assert.True(t, rc.OldBalance.Equal(dec("500")))
	assert.True(t, rc.NewBalance.Equal(dec("380")))

	listed, err := e.receipts.Receipts(ctx, inventory.AccountCustomer, "C1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = e.receipts.DeleteReceipt(ctx, rc.ID)
	require.NoError(t, err)
	assert.True(t, e.balanceOf(t, inventory.AccountCustomer, "C1").Equal(dec("500")))
}

func TestReceipts_UnknownCounterParty(t *testing.T) {
	e := newEnv(t)

	_, err := e.receipts.CreateReceipt(context.Background(), inventory.ReceiptInput{
		Kind: inventory.AccountSupplier, CounterPartyID: "S9", Amount: 1,
	})

	assert.ErrorIs(t, err, inventory.ErrEntityNotFound)
	assert.True(t, inventory.IsNotFound(err))
}

func TestReceipts_InsertFailureRestoresBalance(t *testing.T) {
	fs := newFailingStore()
	e := newEnvWith(t, fs)
	e.account(t, inventory.AccountCustomer, "C1", 500)
	fs.failInsert[inventory.TableReceipts] = true

	_, err := e.receipts.CreateReceipt(context.Background(), inventory.ReceiptInput{
		Kind: inventory.AccountCustomer, CounterPartyID: "C1", Amount: 120,
	})

	assert.ErrorIs(t, err, errInjected)
	assert.True(t, e.balanceOf(t, inventory.AccountCustomer, "C1").Equal(dec("500")))
}

func TestAccounts_CreateAndList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.account(t, inventory.AccountSupplier, "S1", -40.5)
	e.account(t, inventory.AccountCustomer, "C1", 0)

	suppliers, err := e.balances.Accounts(ctx, inventory.AccountSupplier)
	require.NoError(t, err)
	require.Len(t, suppliers, 1)
	assert.True(t, suppliers[0].Balance.Equal(dec("-40.5")))

	_, err = e.balances.Accounts(ctx, "vendor")
	assert.ErrorIs(t, err, inventory.ErrInvalidKind)
}
