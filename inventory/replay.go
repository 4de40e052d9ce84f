/*
replay.go - Legacy snapshot reconstruction

PURPOSE:
  Adjustments written before snapshots were persisted have no stored
  (OldStock, NewStock). This file derives advisory values for them by
  walking backwards from the live stock. Results are never written back.

ALGORITHM (per legacy adjustment T):
  1. Sort the item's adjustments by date, then creation time
  2. Start from the live stock and undo every operation from the newest
     down to T inclusive:
       - persisted snapshot: state = its OldStock (exact anchor)
       - increase:           state -= magnitude
       - decrease:           state += magnitude
       - set:                state becomes unknown
  3. Unknown state means a set hid the earlier value. Fold forward from
     the nearest earlier anchor (persisted snapshot or set), or from zero
     if there is none, up to just before T
  4. OldStock = state, NewStock = T applied to OldStock. Both floored at 0

GUARANTEES:
  Pure function of (live, ops): reconstructing twice without intervening
  writes gives identical results. Decrease floors are not undoable, so
  derived values are advisory only.
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// DerivedSnapshot is a computed (never persisted) snapshot pair for one
// legacy adjustment.
type DerivedSnapshot struct {
	AdjustmentID string          `json:"adjustment_id"`
	Date         time.Time       `json:"date"`
	Kind         AdjustmentKind  `json:"kind"`
	Magnitude    decimal.Decimal `json:"magnitude"`
	OldStock     decimal.Decimal `json:"old_stock"`
	NewStock     decimal.Decimal `json:"new_stock"`
	Anchored     bool            `json:"anchored"` // false: resolved by forward fold past a set
}

// SortAdjustments orders adjustments by date, then creation time.
func SortAdjustments(ops []StockAdjustment) {
	sortByDate(ops, func(a StockAdjustment) (time.Time, time.Time, int64, string) {
		return a.Date, a.CreatedAt, a.Sequence, a.ID
	})
}

// Reconstruct derives a snapshot pair for every adjustment in ops without
// a persisted one. ops is not modified.
func Reconstruct(live decimal.Decimal, ops []StockAdjustment) []DerivedSnapshot {
	sorted := make([]StockAdjustment, len(ops))
	copy(sorted, ops)
	SortAdjustments(sorted)

	var out []DerivedSnapshot
	for t, op := range sorted {
		if op.HasSnapshot() {
			continue
		}
		old, anchored := stockBefore(live, sorted, t)
		old = floorZero(old)
		out = append(out, DerivedSnapshot{
			AdjustmentID: op.ID,
			Date:         op.Date,
			Kind:         op.Kind,
			Magnitude:    op.Magnitude,
			OldStock:     old,
			NewStock:     floorZero(op.Kind.Apply(old, op.Magnitude)),
			Anchored:     anchored,
		})
	}
	return out
}

// replayState is a stock value that may be unknown after undoing a set.
type replayState struct {
	value decimal.Decimal
	known bool
}

// stockBefore returns the stock immediately before ops[t].
func stockBefore(live decimal.Decimal, ops []StockAdjustment, t int) (decimal.Decimal, bool) {
	state := replayState{value: live, known: true}
	for i := len(ops) - 1; i >= t; i-- {
		state = undo(state, ops[i])
	}
	if state.known {
		return state.value, true
	}
	return foldForward(ops, t), false
}

func undo(state replayState, op StockAdjustment) replayState {
	if op.HasSnapshot() {
		return replayState{value: op.OldStock.Decimal, known: true}
	}
	if !state.known {
		return state
	}
	switch op.Kind {
	case KindIncrease:
		return replayState{value: state.value.Sub(op.Magnitude), known: true}
	case KindDecrease:
		return replayState{value: state.value.Add(op.Magnitude), known: true}
	case KindSet:
		return replayState{}
	}
	return state
}

func redo(state replayState, op StockAdjustment) replayState {
	if op.HasSnapshot() {
		return replayState{value: op.NewStock.Decimal, known: true}
	}
	return replayState{value: op.Kind.Apply(state.value, op.Magnitude), known: true}
}

// foldForward replays ops[anchor:t] where anchor is the nearest earlier
// operation with an absolute value, starting from zero if none exists.
func foldForward(ops []StockAdjustment, t int) decimal.Decimal {
	start := 0
	for i := t - 1; i >= 0; i-- {
		if ops[i].HasSnapshot() || ops[i].Kind == KindSet {
			start = i
			break
		}
	}
	state := replayState{value: decimal.Zero, known: true}
	for i := start; i < t; i++ {
		state = redo(state, ops[i])
	}
	return state.value
}
