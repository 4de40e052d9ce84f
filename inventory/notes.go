/*
notes.go - Delivery-note reservation tracker

PURPOSE:
  Items on a delivery note carry three quantities:
    Quantity          what the note lists
    ReservedQuantity  what has already been drawn against the note
    AvailableQuantity max(0, Quantity - ReservedQuantity), kept in sync

RULES:
  - Reserved stock can never be silently removed: an item with a positive
    reservation cannot be deleted, and its quantity cannot drop below the
    reservation
  - Editing an item never touches ReservedQuantity
  - A settled note is frozen; CanMutate is consulted by every mutation

WRITES:
  Quantity and reservation changes go through the Concurrency-Safe Writer.
  The reservation floor and the consumption ceiling are checked against the
  freshly fetched record on every attempt, as is the dependent
  AvailableQuantity. Item ids are derived from (note, product), so two
  racing creators cannot both insert a row.
*/
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

// ReservationTracker manages delivery notes and their items.
type ReservationTracker struct {
	base
}

func NewReservationTracker(w *generic.Writer, opts ...Option) *ReservationTracker {
	return &ReservationTracker{base: newBase(w, "reservations", opts)}
}

// =============================================================================
// NOTES
// =============================================================================

// NoteInput describes a new delivery note. Number defaults to DN-<seq>.
type NoteInput struct {
	Number    string
	Date      time.Time
	Custodian string
	Notes     string
}

func (t *ReservationTracker) CreateNote(ctx context.Context, in NoteInput) (*DeliveryNote, error) {
	number := in.Number
	if number == "" {
		seq, err := t.noteCount(ctx)
		if err != nil {
			return nil, err
		}
		number = fmt.Sprintf("DN-%05d", seq+1)
	}
	note := DeliveryNote{
		ID:        t.newID(),
		Number:    number,
		Date:      t.dateOr(in.Date),
		Custodian: in.Custodian,
		Status:    NoteIssued,
		Notes:     in.Notes,
		CreatedAt: t.now(),
	}
	if err := t.insert(ctx, TableNotes, note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (t *ReservationTracker) Note(ctx context.Context, id string) (*DeliveryNote, error) {
	note, err := fetchAs[DeliveryNote](ctx, t.store, TableNotes, id)
	if err != nil {
		return nil, translateNotFound(err, "delivery note", id)
	}
	return note, nil
}

func (t *ReservationTracker) Notes(ctx context.Context) ([]DeliveryNote, error) {
	notes, err := fetchAllAs[DeliveryNote](ctx, t.store, TableNotes, nil)
	if err != nil {
		return nil, err
	}
	sortByDate(notes, func(n DeliveryNote) (time.Time, time.Time, int64, string) {
		return n.Date, n.CreatedAt, 0, n.ID
	})
	return notes, nil
}

// Transition moves a note along the status table.
func (t *ReservationTracker) Transition(ctx context.Context, id string, to NoteStatus) (*DeliveryNote, error) {
	if !to.Valid() {
		return nil, &InvalidKindError{Field: "note status", Value: string(to)}
	}
	rec, err := t.store.FetchOne(ctx, TableNotes, id)
	if err != nil {
		return nil, translateNotFound(err, "delivery note", id)
	}
	from := NoteStatus(rec.String("status"))
	if from == NoteSettled {
		return nil, &LockedError{NoteID: id, Status: from}
	}
	if !CanTransition(from, to) {
		return nil, &InvalidTransitionError{NoteID: id, From: from, To: to}
	}

	rec = rec.Clone()
	rec["status"] = string(to)
	if err := t.store.Update(ctx, TableNotes, id, rec); err != nil {
		return nil, fmt.Errorf("update note %s: %w", id, err)
	}
	t.log.WithFields(logrus.Fields{"note_id": id, "from": from, "to": to}).Info("delivery note status changed")
	return t.Note(ctx, id)
}

// DeleteNote removes a note and its items. A settled note needs
// allowSettled. No item may carry a reservation.
func (t *ReservationTracker) DeleteNote(ctx context.Context, id string, allowSettled bool) error {
	note, err := t.Note(ctx, id)
	if err != nil {
		return err
	}
	if !CanDelete(note.Status) && !allowSettled {
		return &LockedError{NoteID: id, Status: note.Status}
	}
	items, err := t.Items(ctx, id)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.ReservedQuantity.IsPositive() {
			return &ReservationViolationError{
				NoteID:     id,
				ProductRef: it.StockItemID,
				Op:         "delete",
				Quantity:   it.Quantity,
				Reserved:   it.ReservedQuantity,
			}
		}
	}
	for _, it := range items {
		if err := t.store.Delete(ctx, TableNoteItems, it.ID); err != nil && !generic.IsNotFound(err) {
			return fmt.Errorf("delete note item %s: %w", it.ID, err)
		}
	}
	if err := t.store.Delete(ctx, TableNotes, id); err != nil {
		return translateNotFound(err, "delivery note", id)
	}
	t.log.WithField("note_id", id).Info("delivery note deleted")
	return nil
}

// =============================================================================
// ITEMS
// =============================================================================

// Items returns a note's items ordered by product reference.
func (t *ReservationTracker) Items(ctx context.Context, noteID string) ([]DeliveryNoteItem, error) {
	items, err := fetchAllAs[DeliveryNoteItem](ctx, t.store, TableNoteItems, generic.Filter{fieldNoteID: noteID})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StockItemID < items[j].StockItemID })
	return items, nil
}

func (t *ReservationTracker) Item(ctx context.Context, noteID, productRef string) (*DeliveryNoteItem, error) {
	item, err := t.findItem(ctx, noteID, productRef)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &NotFoundError{Kind: "delivery note item", ID: noteID + "/" + productRef}
	}
	return item, nil
}

// UpsertItem sets the listed quantity of a product on a note, creating the
// item with no reservation if it is not there yet. ReservedQuantity is
// never changed here.
func (t *ReservationTracker) UpsertItem(ctx context.Context, noteID, productRef string, newQuantity float64, unit string) (*DeliveryNoteItem, error) {
	qty, err := quantityOf("quantity", newQuantity, true)
	if err != nil {
		return nil, err
	}
	if _, err := t.mutableNote(ctx, noteID); err != nil {
		return nil, err
	}

	item, err := t.findItem(ctx, noteID, productRef)
	if err != nil {
		return nil, err
	}
	if item == nil {
		added, err := t.addItem(ctx, noteID, productRef, qty, unit)
		if !errors.Is(err, generic.ErrDuplicateID) {
			return added, err
		}
		// Lost the race to create it; edit the winner's row instead.
		if item, err = t.Item(ctx, noteID, productRef); err != nil {
			return nil, err
		}
	}

	_, err = t.writer.ApplyDelta(ctx, generic.DeltaRequest{
		Table:   TableNoteItems,
		ID:      item.ID,
		Field:   fieldQuantity,
		Compute: func(decimal.Decimal) decimal.Decimal { return qty },
		Check: func(rec generic.Record, current decimal.Decimal) error {
			reserved, err := rec.Decimal(fieldReserved)
			if err != nil {
				return err
			}
			if reserved.IsPositive() && qty.LessThan(reserved) && qty.LessThan(current) {
				return &ReservationViolationError{
					NoteID:     noteID,
					ProductRef: productRef,
					Op:         "reduce",
					Quantity:   current,
					Reserved:   reserved,
					Requested:  qty,
				}
			}
			return nil
		},
		Derive: func(rec generic.Record, next decimal.Decimal) {
			reserved, _ := rec.Decimal(fieldReserved)
			rec[fieldAvailable] = availableOf(next, reserved)
			if unit != "" {
				rec["unit"] = unit
			}
		},
	})
	if err != nil {
		return nil, translateNotFound(err, "delivery note item", noteID+"/"+productRef)
	}
	return t.Item(ctx, noteID, productRef)
}

// DeleteItem removes a product from a note. Fails if anything is reserved.
func (t *ReservationTracker) DeleteItem(ctx context.Context, noteID, productRef string) error {
	if _, err := t.mutableNote(ctx, noteID); err != nil {
		return err
	}
	item, err := t.Item(ctx, noteID, productRef)
	if err != nil {
		return err
	}
	if item.ReservedQuantity.IsPositive() {
		return &ReservationViolationError{
			NoteID:     noteID,
			ProductRef: productRef,
			Op:         "delete",
			Quantity:   item.Quantity,
			Reserved:   item.ReservedQuantity,
		}
	}
	if err := t.store.Delete(ctx, TableNoteItems, item.ID); err != nil {
		return translateNotFound(err, "delivery note item", noteID+"/"+productRef)
	}
	if err := t.refreshItemCount(ctx, noteID); err != nil {
		t.log.WithError(err).WithField("note_id", noteID).Warn("item deleted, item count is stale")
	}
	return nil
}

// ConsumeReservation draws quantity against a note item, as a sale
// referencing the note would.
func (t *ReservationTracker) ConsumeReservation(ctx context.Context, noteID, productRef string, quantity float64) (*DeliveryNoteItem, error) {
	qty, err := quantityOf("quantity", quantity, false)
	if err != nil {
		return nil, err
	}
	if _, err := t.mutableNote(ctx, noteID); err != nil {
		return nil, err
	}
	item, err := t.Item(ctx, noteID, productRef)
	if err != nil {
		return nil, err
	}

	res, err := t.writer.ApplyDelta(ctx, generic.DeltaRequest{
		Table: TableNoteItems,
		ID:    item.ID,
		Field: fieldReserved,
		Compute: func(cur decimal.Decimal) decimal.Decimal {
			return cur.Add(qty)
		},
		Check: func(rec generic.Record, reserved decimal.Decimal) error {
			quantity, err := rec.Decimal(fieldQuantity)
			if err != nil {
				return err
			}
			if reserved.Add(qty).GreaterThan(quantity) {
				return &ReservationViolationError{
					NoteID:     noteID,
					ProductRef: productRef,
					Op:         "consume",
					Quantity:   quantity,
					Reserved:   reserved,
					Requested:  qty,
				}
			}
			return nil
		},
		Derive: func(rec generic.Record, next decimal.Decimal) {
			quantity, _ := rec.Decimal(fieldQuantity)
			rec[fieldAvailable] = availableOf(quantity, next)
		},
	})
	if err != nil {
		return nil, translateNotFound(err, "delivery note item", noteID+"/"+productRef)
	}
	t.log.WithFields(logrus.Fields{
		"note_id":      noteID,
		"product_ref":  productRef,
		"old_reserved": res.Before.String(),
		"new_reserved": res.After.String(),
	}).Debug("reservation consumed")
	return t.Item(ctx, noteID, productRef)
}

// =============================================================================
// HELPERS
// =============================================================================

// mutableNote loads a note and rejects it if its status forbids mutation.
func (t *ReservationTracker) mutableNote(ctx context.Context, id string) (*DeliveryNote, error) {
	note, err := t.Note(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanMutate(note.Status) {
		return nil, &LockedError{NoteID: id, Status: note.Status}
	}
	return note, nil
}

// itemID is derived from the (note, product) pair, so the store's unique id
// rejects a second item for the same product.
func itemID(noteID, productRef string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(noteID+"/"+productRef)).String()
}

// findItem returns nil, nil when the note does not list the product.
func (t *ReservationTracker) findItem(ctx context.Context, noteID, productRef string) (*DeliveryNoteItem, error) {
	item, err := fetchAs[DeliveryNoteItem](ctx, t.store, TableNoteItems, itemID(noteID, productRef))
	if err == nil {
		return item, nil
	}
	if !generic.IsNotFound(err) {
		return nil, err
	}

	// Rows written before ids were derived from the pair.
	items, err := fetchAllAs[DeliveryNoteItem](ctx, t.store, TableNoteItems, generic.Filter{
		fieldNoteID:      noteID,
		fieldStockItemID: productRef,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return &items[0], nil
}

func (t *ReservationTracker) addItem(ctx context.Context, noteID, productRef string, qty decimal.Decimal, unit string) (*DeliveryNoteItem, error) {
	item := DeliveryNoteItem{
		ID:                itemID(noteID, productRef),
		NoteID:            noteID,
		StockItemID:       productRef,
		Quantity:          qty,
		Unit:              unit,
		ReservedQuantity:  decimal.Zero,
		AvailableQuantity: qty,
	}
	if err := t.insert(ctx, TableNoteItems, item); err != nil {
		return nil, err
	}
	if err := t.refreshItemCount(ctx, noteID); err != nil {
		rbErr := t.store.Delete(ctx, TableNoteItems, item.ID)
		return nil, errors.Join(err, rbErr)
	}
	return &item, nil
}

// refreshItemCount recounts a note's items.
func (t *ReservationTracker) refreshItemCount(ctx context.Context, noteID string) error {
	items, err := t.store.FetchMany(ctx, TableNoteItems, generic.Filter{fieldNoteID: noteID})
	if err != nil {
		return fmt.Errorf("count note items: %w", err)
	}
	rec, err := t.store.FetchOne(ctx, TableNotes, noteID)
	if err != nil {
		return translateNotFound(err, "delivery note", noteID)
	}
	rec = rec.Clone()
	rec["item_count"] = len(items)
	if err := t.store.Update(ctx, TableNotes, noteID, rec); err != nil {
		return fmt.Errorf("update note %s: %w", noteID, err)
	}
	return nil
}

func (t *ReservationTracker) noteCount(ctx context.Context) (int, error) {
	notes, err := t.store.FetchMany(ctx, TableNotes, nil)
	if err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return len(notes), nil
}
