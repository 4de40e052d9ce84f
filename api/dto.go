/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract. Quantities travel as
  JSON numbers; the ledgers keep them as decimals internally.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Request dates accept "2006-01-02" or RFC 3339. Empty means now.

VALIDATION:
  Validation is done by the ledgers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/M7sN2/AsilSys-sub001/inventory"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateStockItemRequest is the request body for creating a stock item.
type CreateStockItemRequest struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Stock      float64 `json:"stock"`
	UnitFactor float64 `json:"unit_factor,omitempty"`
}

// ApplyAdjustmentRequest is the request body for a stock adjustment.
type ApplyAdjustmentRequest struct {
	Kind      string  `json:"kind"`
	Magnitude float64 `json:"magnitude"`
	Unit      string  `json:"unit,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Note      string  `json:"note,omitempty"`
	Date      string  `json:"date,omitempty"`
}

// CreateAccountRequest is the request body for a customer or supplier.
type CreateAccountRequest struct {
	ID             string  `json:"id,omitempty"`
	Name           string  `json:"name"`
	OpeningBalance float64 `json:"opening_balance"`
}

// CreateReturnRequest is the request body for a merchandise return.
type CreateReturnRequest struct {
	StockItemID     string  `json:"stock_item_id"`
	Date            string  `json:"date,omitempty"`
	Direction       string  `json:"direction"`
	CounterPartyID  string  `json:"counter_party_id,omitempty"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	Reason          string  `json:"reason"`
	Note            string  `json:"note,omitempty"`
	BalanceRestored *bool   `json:"balance_restored,omitempty"` // default true
}

// CreateReceiptRequest is the request body for a cash receipt.
type CreateReceiptRequest struct {
	Kind           string  `json:"kind"`
	CounterPartyID string  `json:"counter_party_id"`
	Amount         float64 `json:"amount"`
	Date           string  `json:"date,omitempty"`
	Note           string  `json:"note,omitempty"`
}

// CreateNoteRequest is the request body for a delivery note.
type CreateNoteRequest struct {
	Number    string `json:"number,omitempty"`
	Date      string `json:"date,omitempty"`
	Custodian string `json:"custodian"`
	Notes     string `json:"notes,omitempty"`
}

// UpsertItemRequest sets the listed quantity of a note item.
type UpsertItemRequest struct {
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// ConsumeRequest draws quantity against a note item.
type ConsumeRequest struct {
	Quantity float64 `json:"quantity"`
}

// TransitionRequest moves a note to a new status.
type TransitionRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// StockItemDTO represents a stock item in API responses.
type StockItemDTO struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Stock             float64    `json:"stock"`
	UnitFactor        float64    `json:"unit_factor"`
	LastOperationDate *time.Time `json:"last_operation_date,omitempty"`
}

// AdjustmentDTO represents a stock adjustment. The snapshot pair is
// omitted for legacy records; see HistoryDTO.
type AdjustmentDTO struct {
	ID          string    `json:"id"`
	Sequence    int64     `json:"sequence"`
	StockItemID string    `json:"stock_item_id"`
	Date        time.Time `json:"date"`
	Kind        string    `json:"kind"`
	Magnitude   float64   `json:"magnitude"`
	Reason      string    `json:"reason,omitempty"`
	Note        string    `json:"note,omitempty"`
	OldStock    *float64  `json:"old_stock"`
	NewStock    *float64  `json:"new_stock"`
}

// HistoryEntryDTO is one row of a stock history report. Derived rows are
// advisory values computed for legacy adjustments.
type HistoryEntryDTO struct {
	AdjustmentID string    `json:"adjustment_id"`
	Date         time.Time `json:"date"`
	Kind         string    `json:"kind"`
	Magnitude    float64   `json:"magnitude"`
	OldStock     float64   `json:"old_stock"`
	NewStock     float64   `json:"new_stock"`
	Derived      bool      `json:"derived"`
	Anchored     bool      `json:"anchored"`
}

// HistoryDTO is the full stock history of one item.
type HistoryDTO struct {
	StockItemID  string            `json:"stock_item_id"`
	CurrentStock float64           `json:"current_stock"`
	Entries      []HistoryEntryDTO `json:"entries"`
}

// AccountDTO represents a customer or supplier.
type AccountDTO struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

// ReturnDTO represents a merchandise return.
type ReturnDTO struct {
	ID              string    `json:"id"`
	Sequence        int64     `json:"sequence"`
	StockItemID     string    `json:"stock_item_id"`
	Date            time.Time `json:"date"`
	Direction       string    `json:"direction"`
	CounterPartyID  string    `json:"counter_party_id,omitempty"`
	Quantity        float64   `json:"quantity"`
	UnitPrice       float64   `json:"unit_price"`
	Total           float64   `json:"total"`
	Reason          string    `json:"reason"`
	Note            string    `json:"note,omitempty"`
	RestoredToStock bool      `json:"restored_to_stock"`
	BalanceRestored bool      `json:"balance_restored"`
	OldBalance      float64   `json:"old_balance"`
	NewBalance      float64   `json:"new_balance"`
	OldStock        *float64  `json:"old_stock,omitempty"`
	NewStock        *float64  `json:"new_stock,omitempty"`
}

// ReceiptDTO represents a cash receipt.
type ReceiptDTO struct {
	ID               string    `json:"id"`
	Sequence         int64     `json:"sequence"`
	CounterPartyKind string    `json:"counter_party_kind"`
	CounterPartyID   string    `json:"counter_party_id"`
	Date             time.Time `json:"date"`
	Amount           float64   `json:"amount"`
	Note             string    `json:"note,omitempty"`
	OldBalance       float64   `json:"old_balance"`
	NewBalance       float64   `json:"new_balance"`
}

// NoteItemDTO represents one delivery note item.
type NoteItemDTO struct {
	ID                string  `json:"id"`
	StockItemID       string  `json:"stock_item_id"`
	Quantity          float64 `json:"quantity"`
	Unit              string  `json:"unit,omitempty"`
	ReservedQuantity  float64 `json:"reserved_quantity"`
	AvailableQuantity float64 `json:"available_quantity"`
}

// NoteDTO represents a delivery note with its items.
type NoteDTO struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	Date      time.Time     `json:"date"`
	Custodian string        `json:"custodian"`
	Status    string        `json:"status"`
	ItemCount int           `json:"item_count"`
	Notes     string        `json:"notes,omitempty"`
	Items     []NoteItemDTO `json:"items"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func num(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func numPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := num(d.Decimal)
	return &f
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func toStockItemDTO(it inventory.StockItem) StockItemDTO {
	return StockItemDTO{
		ID:                it.ID,
		Name:              it.Name,
		Stock:             num(it.Stock),
		UnitFactor:        num(it.UnitFactor),
		LastOperationDate: it.LastOperationDate,
	}
}

func toAdjustmentDTO(a inventory.StockAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:          a.ID,
		Sequence:    a.Sequence,
		StockItemID: a.StockItemID,
		Date:        a.Date,
		Kind:        string(a.Kind),
		Magnitude:   num(a.Magnitude),
		Reason:      a.Reason,
		Note:        a.Note,
		OldStock:    numPtr(a.OldStock),
		NewStock:    numPtr(a.NewStock),
	}
}

// toHistoryDTO merges persisted snapshots with derived ones, in date order.
func toHistoryDTO(hist inventory.StockHistory) HistoryDTO {
	byID := make(map[string]inventory.DerivedSnapshot, len(hist.Derived))
	for _, d := range hist.Derived {
		byID[d.AdjustmentID] = d
	}

	entries := make([]HistoryEntryDTO, 0, len(hist.Adjustments))
	for _, a := range hist.Adjustments {
		e := HistoryEntryDTO{
			AdjustmentID: a.ID,
			Date:         a.Date,
			Kind:         string(a.Kind),
			Magnitude:    num(a.Magnitude),
			Anchored:     true,
		}
		if a.HasSnapshot() {
			e.OldStock, e.NewStock = num(a.OldStock.Decimal), num(a.NewStock.Decimal)
		} else if d, ok := byID[a.ID]; ok {
			e.OldStock, e.NewStock = num(d.OldStock), num(d.NewStock)
			e.Derived, e.Anchored = true, d.Anchored
		}
		entries = append(entries, e)
	}
	return HistoryDTO{StockItemID: hist.Item.ID, CurrentStock: num(hist.Item.Stock), Entries: entries}
}

func toAccountDTO(a inventory.Account) AccountDTO {
	return AccountDTO{ID: a.ID, Kind: string(a.Kind), Name: a.Name, Balance: num(a.Balance)}
}

func toReturnDTO(r inventory.ReturnOperation) ReturnDTO {
	return ReturnDTO{
		ID:              r.ID,
		Sequence:        r.Sequence,
		StockItemID:     r.StockItemID,
		Date:            r.Date,
		Direction:       string(r.Direction),
		CounterPartyID:  r.CounterPartyID,
		Quantity:        num(r.Quantity),
		UnitPrice:       num(r.UnitPrice),
		Total:           num(r.Total),
		Reason:          string(r.Reason),
		Note:            r.Note,
		RestoredToStock: r.RestoredToStock,
		BalanceRestored: r.BalanceRestored,
		OldBalance:      num(r.OldBalance),
		NewBalance:      num(r.NewBalance),
		OldStock:        numPtr(r.OldStock),
		NewStock:        numPtr(r.NewStock),
	}
}

func toReceiptDTO(r inventory.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ID:               r.ID,
		Sequence:         r.Sequence,
		CounterPartyKind: string(r.CounterPartyKind),
		CounterPartyID:   r.CounterPartyID,
		Date:             r.Date,
		Amount:           num(r.Amount),
		Note:             r.Note,
		OldBalance:       num(r.OldBalance),
		NewBalance:       num(r.NewBalance),
	}
}

func toNoteItemDTO(it inventory.DeliveryNoteItem) NoteItemDTO {
	return NoteItemDTO{
		ID:                it.ID,
		StockItemID:       it.StockItemID,
		Quantity:          num(it.Quantity),
		Unit:              it.Unit,
		ReservedQuantity:  num(it.ReservedQuantity),
		AvailableQuantity: num(it.AvailableQuantity),
	}
}

func toNoteDTO(n inventory.DeliveryNote, items []inventory.DeliveryNoteItem) NoteDTO {
	dto := NoteDTO{
		ID:        n.ID,
		Number:    n.Number,
		Date:      n.Date,
		Custodian: n.Custodian,
		Status:    string(n.Status),
		ItemCount: n.ItemCount,
		Notes:     n.Notes,
		Items:     make([]NoteItemDTO, 0, len(items)),
	}
	for _, it := range items {
		dto.Items = append(dto.Items, toNoteItemDTO(it))
	}
	return dto
}
