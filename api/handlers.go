/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the stock ledger, balance ledger and reservation tracker via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the inventory package.

ENDPOINTS:
  Stock:
    GET    /api/stock-items                     List stock items
    POST   /api/stock-items                     Create stock item
    GET    /api/stock-items/{id}                Get stock item
    GET    /api/stock-items/{id}/adjustments    List adjustments
    POST   /api/stock-items/{id}/adjustments    Apply adjustment
    GET    /api/stock-items/{id}/history        Snapshots, legacy ones derived
    DELETE /api/adjustments/{id}                Reverse adjustment

  Balances:
    GET    /api/accounts/{kind}                 List customers or suppliers
    POST   /api/accounts/{kind}                 Create account
    GET    /api/accounts/{kind}/{id}            Get account
    GET    /api/accounts/{kind}/{id}/receipts   List receipts
    POST   /api/returns                         Record return
    GET    /api/stock-items/{id}/returns        List returns for an item
    DELETE /api/returns/{id}                    Delete (reverse) return
    POST   /api/receipts                        Record receipt
    DELETE /api/receipts/{id}                   Delete (reverse) receipt

  Delivery notes:
    GET    /api/delivery-notes                  List notes
    POST   /api/delivery-notes                  Create note
    GET    /api/delivery-notes/{id}             Get note with items
    POST   /api/delivery-notes/{id}/status      Transition status
    DELETE /api/delivery-notes/{id}             Delete note (?force=true for settled)
    PUT    /api/delivery-notes/{id}/items/{ref} Upsert item
    DELETE /api/delivery-notes/{id}/items/{ref} Delete item
    POST   /api/delivery-notes/{id}/items/{ref}/consume  Draw against reservation

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Item, operation, note or counter-party not found
  - 409: Reservation violation, invalid transition, missing snapshot
  - 423: Delivery note is settled
  - 503: Write verification failed (safe to retry)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Callers deleting settled notes with
  force=true are trusted to hold that privilege.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/M7sN2/AsilSys-sub001/generic"
	"github.com/M7sN2/AsilSys-sub001/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Stock    *inventory.StockLedger
	Balances *inventory.BalanceLedger
	Returns  *inventory.ReturnService
	Receipts *inventory.ReceiptService
	Notes    *inventory.ReservationTracker

	store generic.Store
	log   logrus.FieldLogger
}

// NewHandler wires every service over one writer.
func NewHandler(w *generic.Writer, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	opts := []inventory.Option{inventory.WithLogger(log)}
	stock := inventory.NewStockLedger(w, opts...)
	balances := inventory.NewBalanceLedger(w, opts...)
	return &Handler{
		Stock:    stock,
		Balances: balances,
		Returns:  inventory.NewReturnService(stock, balances, opts...),
		Receipts: inventory.NewReceiptService(balances, opts...),
		Notes:    inventory.NewReservationTracker(w, opts...),
		store:    w.Store(),
		log:      log,
	}
}

// Health reports store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// STOCK ENDPOINTS
// =============================================================================

func (h *Handler) ListStockItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Stock.StockItems(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]StockItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, toStockItemDTO(it))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateStockItem(w http.ResponseWriter, r *http.Request) {
	var req CreateStockItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	item, err := h.Stock.CreateStockItem(r.Context(), inventory.StockItemInput{
		ID:         req.ID,
		Name:       req.Name,
		Stock:      req.Stock,
		UnitFactor: req.UnitFactor,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStockItemDTO(*item))
}

func (h *Handler) GetStockItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Stock.StockItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockItemDTO(*item))
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Stock.StockItem(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	adjs, err := h.Stock.Adjustments(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AdjustmentDTO, 0, len(adjs))
	for _, a := range adjs {
		dtos = append(dtos, toAdjustmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ApplyAdjustment(w http.ResponseWriter, r *http.Request) {
	var req ApplyAdjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	adj, err := h.Stock.ApplyAdjustment(r.Context(), inventory.AdjustmentInput{
		StockItemID: chi.URLParam(r, "id"),
		Kind:        inventory.AdjustmentKind(req.Kind),
		Magnitude:   req.Magnitude,
		Unit:        inventory.Unit(req.Unit),
		Reason:      req.Reason,
		Note:        req.Note,
		Date:        date,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(*adj))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.Stock.ReconstructHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTO(*hist))
}

func (h *Handler) ReverseAdjustment(w http.ResponseWriter, r *http.Request) {
	adj, err := h.Stock.ReverseAdjustment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(*adj))
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := h.Balances.Accounts(r.Context(), accountKind(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AccountDTO, 0, len(accts))
	for _, a := range accts {
		a.Kind = accountKind(r)
		dtos = append(dtos, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	acct, err := h.Balances.CreateAccount(r.Context(), inventory.AccountInput{
		ID:             req.ID,
		Kind:           accountKind(r),
		Name:           req.Name,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*acct))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Balances.Account(r.Context(), accountKind(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	kind := accountKind(r)
	id := chi.URLParam(r, "id")
	if _, err := h.Balances.Account(r.Context(), kind, id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	rcs, err := h.Receipts.Receipts(r.Context(), kind, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]ReceiptDTO, 0, len(rcs))
	for _, rc := range rcs {
		dtos = append(dtos, toReceiptDTO(rc))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// accountKind maps the plural route segment to an account kind.
func accountKind(r *http.Request) inventory.AccountKind {
	switch k := chi.URLParam(r, "kind"); k {
	case "customers":
		return inventory.AccountCustomer
	case "suppliers":
		return inventory.AccountSupplier
	default:
		return inventory.AccountKind(k)
	}
}

// =============================================================================
// RETURN / RECEIPT ENDPOINTS
// =============================================================================

func (h *Handler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	var req CreateReturnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	restore := true
	if req.BalanceRestored != nil {
		restore = *req.BalanceRestored
	}
	ret, err := h.Returns.CreateReturn(r.Context(), inventory.ReturnInput{
		StockItemID:     req.StockItemID,
		Date:            date,
		Direction:       inventory.ReturnDirection(req.Direction),
		CounterPartyID:  req.CounterPartyID,
		Quantity:        req.Quantity,
		UnitPrice:       req.UnitPrice,
		Reason:          inventory.ReturnReason(req.Reason),
		Note:            req.Note,
		BalanceRestored: restore,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReturnDTO(*ret))
}

func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Stock.StockItem(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	rets, err := h.Returns.Returns(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]ReturnDTO, 0, len(rets))
	for _, ret := range rets {
		dtos = append(dtos, toReturnDTO(ret))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) DeleteReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := h.Returns.DeleteReturn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReturnDTO(*ret))
}

func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req CreateReceiptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	rc, err := h.Receipts.CreateReceipt(r.Context(), inventory.ReceiptInput{
		Kind:           inventory.AccountKind(req.Kind),
		CounterPartyID: req.CounterPartyID,
		Amount:         req.Amount,
		Date:           date,
		Note:           req.Note,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(*rc))
}

func (h *Handler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.Receipts.DeleteReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(*rc))
}

// =============================================================================
// DELIVERY NOTE ENDPOINTS
// =============================================================================

func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Notes.Notes(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]NoteDTO, 0, len(notes))
	for _, n := range notes {
		dtos = append(dtos, toNoteDTO(n, nil))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	note, err := h.Notes.CreateNote(r.Context(), inventory.NoteInput{
		Number:    req.Number,
		Date:      date,
		Custodian: req.Custodian,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteDTO(*note, nil))
}

func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	h.writeNote(w, r, http.StatusOK)
}

func (h *Handler) TransitionNote(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.Notes.Transition(r.Context(), chi.URLParam(r, "id"), inventory.NoteStatus(req.Status)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeNote(w, r, http.StatusOK)
}

func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := h.Notes.DeleteNote(r.Context(), chi.URLParam(r, "id"), force); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpsertNoteItem(w http.ResponseWriter, r *http.Request) {
	var req UpsertItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.Notes.UpsertItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ref"), req.Quantity, req.Unit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteItemDTO(*item))
}

func (h *Handler) DeleteNoteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Notes.DeleteItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ref")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ConsumeNoteItem(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.Notes.ConsumeReservation(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ref"), req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteItemDTO(*item))
}

func (h *Handler) writeNote(w http.ResponseWriter, r *http.Request, status int) {
	id := chi.URLParam(r, "id")
	note, err := h.Notes.Note(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	items, err := h.Notes.Items(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, toNoteDTO(*note, items))
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		locked *inventory.LockedError
		wv     *generic.WriteVerificationFailedError
	)
	switch {
	case inventory.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case inventory.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid input", err)
	case errors.As(err, &locked):
		writeError(w, http.StatusLocked, "delivery note is locked", err)
	case inventory.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.As(err, &wv):
		h.log.WithError(err).WithField("path", r.URL.Path).Warn("write verification failed")
		writeError(w, http.StatusServiceUnavailable, "concurrent modification, retry", err)
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
