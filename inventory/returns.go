/*
returns.go - Merchandise returns

PURPOSE:
  A return may move stock (Stock Ledger) and balance (Balance Ledger).
  Both effects are committed through the Concurrency-Safe Writer and their
  snapshot pairs stamped on the ReturnOperation before it is persisted.

STOCK EFFECT (only when the reason restores stock):
  from_customer: stock += quantity
  to_supplier:   stock  = max(0, stock - quantity)

ORDERING AND COMPENSATION:
  create: stock effect -> balance effect -> insert record
  delete: balance reversal -> stock reversal -> delete record
  Any failure undoes the effects already committed, in reverse order,
  before the error is returned.

REVERSAL:
  Deleting a return subtracts the stock change it actually applied (which
  may be less than the quantity if a floor was hit) and credits the total
  back. Later operations on the same item or account survive.
*/
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

// ReturnService records returns against both ledgers.
type ReturnService struct {
	base
	stock    *StockLedger
	balances *BalanceLedger
}

func NewReturnService(stock *StockLedger, balances *BalanceLedger, opts ...Option) *ReturnService {
	return &ReturnService{
		base:     newBase(stock.writer, "returns", opts),
		stock:    stock,
		balances: balances,
	}
}

// ReturnInput describes a new return.
type ReturnInput struct {
	StockItemID     string
	Date            time.Time
	Direction       ReturnDirection
	CounterPartyID  string
	Quantity        float64
	UnitPrice       float64
	Reason          ReturnReason
	Note            string
	BalanceRestored bool
}

func (s *ReturnService) CreateReturn(ctx context.Context, in ReturnInput) (*ReturnOperation, error) {
	if !in.Direction.Valid() {
		return nil, &InvalidKindError{Field: "return direction", Value: string(in.Direction)}
	}
	if !in.Reason.Valid() {
		return nil, &InvalidKindError{Field: "return reason", Value: string(in.Reason)}
	}
	qty, err := quantityOf("quantity", in.Quantity, false)
	if err != nil {
		return nil, err
	}
	price, err := quantityOf("unit_price", in.UnitPrice, true)
	if err != nil {
		return nil, err
	}

	if _, err := s.stock.StockItem(ctx, in.StockItemID); err != nil {
		return nil, err
	}
	seq, err := s.nextSequence(ctx, TableReturns)
	if err != nil {
		return nil, err
	}

	ret := ReturnOperation{
		ID:              s.newID(),
		Sequence:        seq,
		StockItemID:     in.StockItemID,
		Date:            s.dateOr(in.Date),
		Direction:       in.Direction,
		CounterPartyID:  in.CounterPartyID,
		Quantity:        qty,
		UnitPrice:       price,
		Total:           qty.Mul(price),
		Reason:          in.Reason,
		Note:            in.Note,
		RestoredToStock: in.Reason.RestoresStock(),
		BalanceRestored: in.BalanceRestored,
		CreatedAt:       s.now(),
	}
	log := s.log.WithFields(logrus.Fields{
		"return_id":     ret.ID,
		"stock_item_id": ret.StockItemID,
		"direction":     ret.Direction,
		"reason":        ret.Reason,
	})

	if ret.RestoredToStock {
		delta := qty
		if ret.Direction == ReturnToSupplier {
			delta = qty.Neg()
		}
		res, err := s.stock.shiftStock(ctx, ret.StockItemID, delta, ret.Date)
		if err != nil {
			return nil, err
		}
		ret.OldStock = decimal.NewNullDecimal(res.Before)
		ret.NewStock = decimal.NewNullDecimal(res.After)
	}

	if err := s.balances.ApplyReturnBalanceEffect(ctx, &ret); err != nil {
		rbErr := s.undoStockEffect(ctx, ret)
		if rbErr != nil {
			log.WithError(rbErr).Error("failed to roll back stock after balance failure")
		}
		return nil, errors.Join(err, rbErr)
	}

	if err := s.insert(ctx, TableReturns, ret); err != nil {
		rbErr := errors.Join(
			s.balances.ReverseReturnBalanceEffect(ctx, ret),
			s.undoStockEffect(ctx, ret),
		)
		if rbErr != nil {
			log.WithError(rbErr).Error("failed to roll back return effects after insert failure")
		}
		return nil, errors.Join(fmt.Errorf("persist return: %w", err), rbErr)
	}

	log.WithFields(logrus.Fields{
		"restored_to_stock": ret.RestoredToStock,
		"old_balance":       ret.OldBalance.String(),
		"new_balance":       ret.NewBalance.String(),
	}).Debug("return recorded")
	return &ret, nil
}

// DeleteReturn reverses both effects and removes the record.
func (s *ReturnService) DeleteReturn(ctx context.Context, id string) (*ReturnOperation, error) {
	ret, err := s.Return(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.balances.ReverseReturnBalanceEffect(ctx, *ret); err != nil {
		return nil, err
	}
	if err := s.undoStockEffect(ctx, *ret); err != nil {
		rbErr := s.redoBalanceEffect(ctx, *ret)
		return nil, errors.Join(err, rbErr)
	}
	if err := s.store.Delete(ctx, TableReturns, id); err != nil {
		rbErr := errors.Join(s.redoStockEffect(ctx, *ret), s.redoBalanceEffect(ctx, *ret))
		if rbErr != nil {
			s.log.WithError(rbErr).WithField("return_id", id).
				Error("failed to re-apply return effects after delete failure")
		}
		return nil, errors.Join(fmt.Errorf("delete return %s: %w", id, err), rbErr)
	}

	s.log.WithField("return_id", id).Debug("return deleted")
	return ret, nil
}

func (s *ReturnService) Return(ctx context.Context, id string) (*ReturnOperation, error) {
	ret, err := fetchAs[ReturnOperation](ctx, s.store, TableReturns, id)
	if err != nil {
		return nil, translateNotFound(err, "return", id)
	}
	return ret, nil
}

// Returns lists the returns for a stock item, oldest first.
func (s *ReturnService) Returns(ctx context.Context, stockItemID string) ([]ReturnOperation, error) {
	rets, err := fetchAllAs[ReturnOperation](ctx, s.store, TableReturns, generic.Filter{fieldStockItemID: stockItemID})
	if err != nil {
		return nil, err
	}
	sortByDate(rets, func(r ReturnOperation) (time.Time, time.Time, int64, string) {
		return r.Date, r.CreatedAt, r.Sequence, r.ID
	})
	return rets, nil
}

// =============================================================================
// COMPENSATION
// =============================================================================

// appliedStock is the stock change the return actually committed.
func appliedStock(ret ReturnOperation) decimal.Decimal {
	if !ret.RestoredToStock || !ret.OldStock.Valid || !ret.NewStock.Valid {
		return decimal.Zero
	}
	return ret.NewStock.Decimal.Sub(ret.OldStock.Decimal)
}

func (s *ReturnService) undoStockEffect(ctx context.Context, ret ReturnOperation) error {
	delta := appliedStock(ret)
	if delta.IsZero() {
		return nil
	}
	_, err := s.stock.shiftStock(ctx, ret.StockItemID, delta.Neg(), time.Time{})
	return err
}

func (s *ReturnService) redoStockEffect(ctx context.Context, ret ReturnOperation) error {
	delta := appliedStock(ret)
	if delta.IsZero() {
		return nil
	}
	_, err := s.stock.shiftStock(ctx, ret.StockItemID, delta, time.Time{})
	return err
}

func (s *ReturnService) redoBalanceEffect(ctx context.Context, ret ReturnOperation) error {
	if !ret.BalanceRestored {
		return nil
	}
	_, err := s.balances.debit(ctx, ret.Direction.AccountKind(), ret.CounterPartyID, ret.Total)
	return err
}
