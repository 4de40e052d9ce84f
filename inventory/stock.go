/*
stock.go - Stock Ledger

PURPOSE:
  Computes new stock for adjustment operations, commits it through the
  Concurrency-Safe Writer and persists the adjustment with its snapshot
  pair. The pair is written once and never revisited.

OPERATIONS:
  ApplyAdjustment:    increase / decrease (floored at 0) / set
  ReverseAdjustment:  unconditional overwrite back to OldStock, then delete
  ReconstructHistory: advisory snapshots for legacy records (replay.go)

ATOMICITY:
  The store has no transactions. If the adjustment record cannot be
  persisted after the live stock moved, the live stock is restored to
  OldStock before the error is returned. A live value is never left
  mutated without its operation record.

EXAMPLE:
  stock 100, decrease 30   -> old 100, new 70
  stock 70,  decrease 1000 -> old 70,  new 0
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

// StockLedger owns StockItem.Stock.
type StockLedger struct {
	base
}

func NewStockLedger(w *generic.Writer, opts ...Option) *StockLedger {
	return &StockLedger{base: newBase(w, "stock_ledger", opts)}
}

// =============================================================================
// STOCK ITEMS
// =============================================================================

// StockItemInput registers a stock item.
type StockItemInput struct {
	ID         string // optional; generated when empty
	Name       string
	Stock      float64
	UnitFactor float64 // 0 means 1
}

func (l *StockLedger) CreateStockItem(ctx context.Context, in StockItemInput) (*StockItem, error) {
	stock, err := quantityOf("stock", in.Stock, true)
	if err != nil {
		return nil, err
	}
	factor := decimal.NewFromInt(1)
	if in.UnitFactor != 0 {
		if factor, err = quantityOf("unit_factor", in.UnitFactor, false); err != nil {
			return nil, err
		}
	}

	id := in.ID
	if id == "" {
		id = l.newID()
	}
	item := StockItem{
		ID:         id,
		Name:       in.Name,
		Stock:      stock,
		UnitFactor: factor,
		CreatedAt:  l.now(),
	}
	if err := l.insert(ctx, TableStockItems, item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *StockLedger) StockItem(ctx context.Context, id string) (*StockItem, error) {
	item, err := fetchAs[StockItem](ctx, l.store, TableStockItems, id)
	if err != nil {
		return nil, translateNotFound(err, "stock item", id)
	}
	return item, nil
}

func (l *StockLedger) StockItems(ctx context.Context) ([]StockItem, error) {
	return fetchAllAs[StockItem](ctx, l.store, TableStockItems, nil)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AdjustmentInput describes one stock adjustment. Magnitude is validated
// before anything is read from the store.
type AdjustmentInput struct {
	StockItemID string
	Kind        AdjustmentKind
	Magnitude   float64
	Unit        Unit // "" or smallest: as is; largest: times the item's UnitFactor
	Reason      string
	Note        string
	Date        time.Time // zero means now
}

// ApplyAdjustment moves the live stock and records the snapshot pair.
func (l *StockLedger) ApplyAdjustment(ctx context.Context, in AdjustmentInput) (*StockAdjustment, error) {
	if !in.Kind.Valid() {
		return nil, &InvalidKindError{Field: "adjustment kind", Value: string(in.Kind)}
	}
	magnitude, err := magnitudeOf(in.Magnitude)
	if err != nil {
		return nil, err
	}
	if in.Unit != "" && in.Unit != UnitSmallest && in.Unit != UnitLargest {
		return nil, &InvalidKindError{Field: "unit", Value: string(in.Unit)}
	}

	item, err := l.StockItem(ctx, in.StockItemID)
	if err != nil {
		return nil, err
	}
	if in.Unit == UnitLargest {
		magnitude = magnitude.Mul(item.UnitFactor)
	}

	date := l.dateOr(in.Date)
	seq, err := l.nextSequence(ctx, TableAdjustments)
	if err != nil {
		return nil, err
	}

	res, err := l.writer.ApplyDelta(ctx, generic.DeltaRequest{
		Table: TableStockItems,
		ID:    item.ID,
		Field: fieldStock,
		Compute: func(cur decimal.Decimal) decimal.Decimal {
			return in.Kind.Apply(cur, magnitude)
		},
		Derive: touchLastOperation(date),
	})
	if err != nil {
		return nil, translateNotFound(err, "stock item", item.ID)
	}

	log := l.log.WithFields(logrus.Fields{
		"stock_item_id": item.ID,
		"kind":          in.Kind,
		"magnitude":     magnitude.String(),
	})
	if !res.Before.Equal(item.Stock) {
		log.WithFields(logrus.Fields{
			"read":      item.Stock.String(),
			"committed": res.Before.String(),
		}).Info("stock moved between read and commit")
	}

	adj := StockAdjustment{
		ID:          l.newID(),
		Sequence:    seq,
		StockItemID: item.ID,
		Date:        date,
		Kind:        in.Kind,
		Magnitude:   magnitude,
		Reason:      in.Reason,
		Note:        in.Note,
		OldStock:    decimal.NewNullDecimal(res.Before),
		NewStock:    decimal.NewNullDecimal(res.After),
		CreatedAt:   l.now(),
	}
	if err := l.insert(ctx, TableAdjustments, adj); err != nil {
		_, rbErr := l.setStock(ctx, item.ID, res.Before)
		if rbErr != nil {
			log.WithError(rbErr).Error("failed to roll back stock after adjustment insert failure")
		}
		return nil, errors.Join(fmt.Errorf("persist adjustment: %w", err), rbErr)
	}

	log.WithFields(logrus.Fields{
		"adjustment_id": adj.ID,
		"old_stock":     res.Before.String(),
		"new_stock":     res.After.String(),
	}).Debug("adjustment applied")
	return &adj, nil
}

// ReverseAdjustment restores the live stock to the adjustment's OldStock
// and deletes the adjustment. Later operations are not replayed.
func (l *StockLedger) ReverseAdjustment(ctx context.Context, id string) (*StockAdjustment, error) {
	adj, err := l.Adjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !adj.HasSnapshot() {
		return nil, fmt.Errorf("reverse adjustment %s: %w", id, ErrSnapshotMissing)
	}

	res, err := l.setStock(ctx, adj.StockItemID, adj.OldStock.Decimal)
	if err != nil {
		return nil, err
	}

	if err := l.store.Delete(ctx, TableAdjustments, adj.ID); err != nil {
		_, rbErr := l.setStock(ctx, adj.StockItemID, res.Before)
		if rbErr != nil {
			l.log.WithError(rbErr).WithField("adjustment_id", id).
				Error("failed to roll back stock after adjustment delete failure")
		}
		return nil, errors.Join(fmt.Errorf("delete adjustment %s: %w", id, err), rbErr)
	}

	l.log.WithFields(logrus.Fields{
		"adjustment_id": id,
		"stock_item_id": adj.StockItemID,
		"restored_to":   adj.OldStock.Decimal.String(),
	}).Debug("adjustment reversed")
	return adj, nil
}

func (l *StockLedger) Adjustment(ctx context.Context, id string) (*StockAdjustment, error) {
	adj, err := fetchAs[StockAdjustment](ctx, l.store, TableAdjustments, id)
	if err != nil {
		return nil, translateNotFound(err, "adjustment", id)
	}
	return adj, nil
}

// Adjustments returns the item's adjustments ordered by date, then creation.
func (l *StockLedger) Adjustments(ctx context.Context, stockItemID string) ([]StockAdjustment, error) {
	adjs, err := fetchAllAs[StockAdjustment](ctx, l.store, TableAdjustments, generic.Filter{fieldStockItemID: stockItemID})
	if err != nil {
		return nil, err
	}
	SortAdjustments(adjs)
	return adjs, nil
}

// StockHistory is an item with its ordered adjustments and the advisory
// pairs derived for those written without a snapshot.
type StockHistory struct {
	Item        StockItem
	Adjustments []StockAdjustment
	Derived     []DerivedSnapshot
}

// ReconstructHistory derives advisory snapshot pairs for every adjustment
// on the item that lacks a persisted pair. Nothing is written.
func (l *StockLedger) ReconstructHistory(ctx context.Context, stockItemID string) (*StockHistory, error) {
	item, err := l.StockItem(ctx, stockItemID)
	if err != nil {
		return nil, err
	}
	adjs, err := l.Adjustments(ctx, stockItemID)
	if err != nil {
		return nil, err
	}
	return &StockHistory{
		Item:        *item,
		Adjustments: adjs,
		Derived:     Reconstruct(item.Stock, adjs),
	}, nil
}

// =============================================================================
// LIVE STOCK WRITES
// =============================================================================

// setStock overwrites the live stock unconditionally.
func (l *StockLedger) setStock(ctx context.Context, id string, value decimal.Decimal) (generic.DeltaResult, error) {
	res, err := l.writer.ApplyDelta(ctx, generic.DeltaRequest{
		Table:   TableStockItems,
		ID:      id,
		Field:   fieldStock,
		Compute: func(decimal.Decimal) decimal.Decimal { return value },
	})
	return res, translateNotFound(err, "stock item", id)
}

// shiftStock adds delta to the live stock, flooring at zero.
func (l *StockLedger) shiftStock(ctx context.Context, id string, delta decimal.Decimal, date time.Time) (generic.DeltaResult, error) {
	res, err := l.writer.ApplyDelta(ctx, generic.DeltaRequest{
		Table: TableStockItems,
		ID:    id,
		Field: fieldStock,
		Compute: func(cur decimal.Decimal) decimal.Decimal {
			return floorZero(cur.Add(delta))
		},
		Derive: touchLastOperation(date),
	})
	return res, translateNotFound(err, "stock item", id)
}

// touchLastOperation advances the item's last operation date, never back.
func touchLastOperation(date time.Time) generic.DeriveFunc {
	return func(rec generic.Record, _ decimal.Decimal) {
		if date.IsZero() {
			return
		}
		if prev, ok := parseTime(rec[fieldLastOperation]); ok && prev.After(date) {
			return
		}
		rec[fieldLastOperation] = date
	}
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
