/*
Package inventory implements the Ledger & Reservation Engine.

PURPOSE:
  Tracks physical stock and counter-party balances as a sequence of
  discrete, auditable operations. Each operation records an immutable
  before/after snapshot of the value it touched, so historical reports
  never change when later operations move the live value.

COMPONENTS:
  - Snapshot model (this file): value objects and their persisted shape
  - StockLedger (stock.go): adjustments, reversal, legacy replay
  - BalanceLedger (balance.go): counter-party balance effects
  - ReturnService / ReceiptService: operations driving both ledgers
  - ReservationTracker (notes.go): delivery-note items and reservations

LIVE VALUES:
  StockItem.Stock and Account.Balance are the only shared mutable fields.
  They are written exclusively through generic.Writer.

SEE ALSO:
  - generic/writer.go: Concurrency-Safe Writer
  - replay.go: Legacy snapshot reconstruction
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TABLES AND FIELDS
// =============================================================================

const (
	TableStockItems  = "stock_items"
	TableAdjustments = "stock_adjustments"
	TableReturns     = "returns"
	TableReceipts    = "receipts"
	TableCustomers   = "customers"
	TableSuppliers   = "suppliers"
	TableNotes       = "delivery_notes"
	TableNoteItems   = "delivery_note_items"
)

const (
	fieldStock         = "stock"
	fieldBalance       = "balance"
	fieldQuantity      = "quantity"
	fieldReserved      = "reserved_quantity"
	fieldAvailable     = "available_quantity"
	fieldLastOperation = "last_operation_date"
	fieldStockItemID   = "stock_item_id"
	fieldNoteID        = "note_id"
)

// =============================================================================
// STOCK
// =============================================================================

// StockItem is a stock-bearing entity. Stock is in smallest units.
type StockItem struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Stock             decimal.Decimal `json:"stock"`
	UnitFactor        decimal.Decimal `json:"unit_factor"` // smallest units per largest unit
	LastOperationDate *time.Time      `json:"last_operation_date,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// AdjustmentKind is how an adjustment moves stock.
type AdjustmentKind string

const (
	KindIncrease AdjustmentKind = "increase"
	KindDecrease AdjustmentKind = "decrease"
	KindSet      AdjustmentKind = "set"
)

func (k AdjustmentKind) Valid() bool {
	switch k {
	case KindIncrease, KindDecrease, KindSet:
		return true
	}
	return false
}

// Apply is the forward effect of an adjustment: decrease floors at zero,
// set ignores the prior value.
func (k AdjustmentKind) Apply(before, magnitude decimal.Decimal) decimal.Decimal {
	switch k {
	case KindIncrease:
		return before.Add(magnitude)
	case KindDecrease:
		return floorZero(before.Sub(magnitude))
	case KindSet:
		return magnitude
	}
	return before
}

// Unit selects how an adjustment magnitude is expressed.
type Unit string

const (
	UnitSmallest Unit = "smallest"
	UnitLargest  Unit = "largest"
)

// StockAdjustment is an immutable stock operation.
// OldStock/NewStock are null only on legacy records written before
// snapshots were persisted; see ReconstructHistory.
type StockAdjustment struct {
	ID          string              `json:"id"`
	Sequence    int64               `json:"sequence"`
	StockItemID string              `json:"stock_item_id"`
	Date        time.Time           `json:"date"`
	Kind        AdjustmentKind      `json:"kind"`
	Magnitude   decimal.Decimal     `json:"magnitude"`
	Reason      string              `json:"reason"`
	Note        string              `json:"note"`
	OldStock    decimal.NullDecimal `json:"old_stock"`
	NewStock    decimal.NullDecimal `json:"new_stock"`
	CreatedAt   time.Time           `json:"created_at"`
}

// HasSnapshot reports whether the snapshot pair was persisted.
func (a StockAdjustment) HasSnapshot() bool {
	return a.OldStock.Valid && a.NewStock.Valid
}

// =============================================================================
// COUNTER-PARTIES
// =============================================================================

// AccountKind distinguishes customers from suppliers.
type AccountKind string

const (
	AccountCustomer AccountKind = "customer"
	AccountSupplier AccountKind = "supplier"
)

func (k AccountKind) Valid() bool {
	return k == AccountCustomer || k == AccountSupplier
}

// Table is where accounts of this kind live.
func (k AccountKind) Table() string {
	if k == AccountSupplier {
		return TableSuppliers
	}
	return TableCustomers
}

// Account is a counter-party with a running balance.
// Positive balance = owes the business.
type Account struct {
	ID        string          `json:"id"`
	Kind      AccountKind     `json:"kind"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// =============================================================================
// RETURNS
// =============================================================================

// ReturnDirection says who sends the merchandise back.
type ReturnDirection string

const (
	ReturnFromCustomer ReturnDirection = "from_customer"
	ReturnToSupplier   ReturnDirection = "to_supplier"
)

func (d ReturnDirection) Valid() bool {
	return d == ReturnFromCustomer || d == ReturnToSupplier
}

// AccountKind is the counter-party kind implied by the direction.
func (d ReturnDirection) AccountKind() AccountKind {
	if d == ReturnToSupplier {
		return AccountSupplier
	}
	return AccountCustomer
}

// ReturnReason is why merchandise came back.
type ReturnReason string

const (
	ReasonDamaged         ReturnReason = "damaged"
	ReasonExpired         ReturnReason = "expired"
	ReasonDefective       ReturnReason = "defective"
	ReasonWrongItem       ReturnReason = "wrong_item"
	ReasonCustomerRequest ReturnReason = "customer_request"
	ReasonOther           ReturnReason = "other"
)

func (r ReturnReason) Valid() bool {
	switch r {
	case ReasonDamaged, ReasonExpired, ReasonDefective, ReasonWrongItem, ReasonCustomerRequest, ReasonOther:
		return true
	}
	return false
}

// RestoresStock is false for goods that cannot be sold again.
// Evaluated once when the return is created; the result is stored.
func (r ReturnReason) RestoresStock() bool {
	return r != ReasonDamaged && r != ReasonExpired
}

// ReturnOperation is an immutable merchandise return.
type ReturnOperation struct {
	ID              string              `json:"id"`
	Sequence        int64               `json:"sequence"`
	StockItemID     string              `json:"stock_item_id"`
	Date            time.Time           `json:"date"`
	Direction       ReturnDirection     `json:"direction"`
	CounterPartyID  string              `json:"counter_party_id"`
	Quantity        decimal.Decimal     `json:"quantity"`
	UnitPrice       decimal.Decimal     `json:"unit_price"`
	Total           decimal.Decimal     `json:"total"`
	Reason          ReturnReason        `json:"reason"`
	Note            string              `json:"note"`
	RestoredToStock bool                `json:"restored_to_stock"`
	BalanceRestored bool                `json:"balance_restored"`
	OldBalance      decimal.Decimal     `json:"old_balance"`
	NewBalance      decimal.Decimal     `json:"new_balance"`
	OldStock        decimal.NullDecimal `json:"old_stock"`
	NewStock        decimal.NullDecimal `json:"new_stock"`
	CreatedAt       time.Time           `json:"created_at"`
}

// =============================================================================
// RECEIPTS
// =============================================================================

// Receipt is a cash movement settling part of a counter-party balance.
type Receipt struct {
	ID               string          `json:"id"`
	Sequence         int64           `json:"sequence"`
	CounterPartyKind AccountKind     `json:"counter_party_kind"`
	CounterPartyID   string          `json:"counter_party_id"`
	Date             time.Time       `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	Note             string          `json:"note"`
	OldBalance       decimal.Decimal `json:"old_balance"`
	NewBalance       decimal.Decimal `json:"new_balance"`
	CreatedAt        time.Time       `json:"created_at"`
}

// =============================================================================
// DELIVERY NOTES
// =============================================================================

// DeliveryNote is an independent aggregate keyed by id.
type DeliveryNote struct {
	ID        string     `json:"id"`
	Number    string     `json:"number"`
	Date      time.Time  `json:"date"`
	Custodian string     `json:"custodian"`
	Status    NoteStatus `json:"status"`
	ItemCount int        `json:"item_count"`
	Notes     string     `json:"notes"`
	CreatedAt time.Time  `json:"created_at"`
}

// DeliveryNoteItem is one product line on a delivery note.
// AvailableQuantity == max(0, Quantity - ReservedQuantity).
type DeliveryNoteItem struct {
	ID                string          `json:"id"`
	NoteID            string          `json:"note_id"`
	StockItemID       string          `json:"stock_item_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              string          `json:"unit"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func availableOf(quantity, reserved decimal.Decimal) decimal.Decimal {
	return floorZero(quantity.Sub(reserved))
}
