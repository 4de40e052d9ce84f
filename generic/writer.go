/*
writer.go - Concurrency-Safe Writer (read-apply-write-verify-retry)

PURPOSE:
  The record store offers no compare-and-swap and no transactions. Two
  near-simultaneous stock or balance mutations could otherwise clobber one
  another. Every mutation of a live value field (stock, balance, item
  quantity, reservation) goes through ApplyDelta.

ALGORITHM:
  1. Fetch the record, read the field's current value
  2. Check(record, current), if set; an error aborts with no write
     newValue = Compute(current)
  3. Write the full record with field = newValue (plus Derive'd fields)
  4. Re-fetch and compare the stored value to newValue within Tolerance
  5. Match: committed. Mismatch: retry from step 2 using the value just
     re-fetched, so the other writer's change is incorporated
  6. After MaxAttempts mismatches: WriteVerificationFailedError (fatal)

IN-PROCESS SERIALISATION:
  Writers sharing one *Writer are serialised per (table, id). This makes
  the single point of mutation real inside a process; the verify/retry
  loop is what remains between processes.

GUARANTEES:
  Convergence to a value consistent with Compute applied to SOME observed
  prior value. No linear history across processes: if two processes retry
  concurrently the last verified writer wins.

NOT CANCELLABLE:
  Retries are bounded by attempt count only. The context is passed to the
  store for its own I/O deadlines; the loop itself does not watch it.

SEE ALSO:
  - inventory/stock.go, inventory/balance.go: Callers
  - metrics/metrics.go: WriteObserver backed by Prometheus
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Defaults used when neither the writer nor the request configures them.
const (
	DefaultMaxAttempts = 5
)

// DefaultTolerance absorbs floating-point round-trip noise from stores that
// keep numbers as doubles. It is not meant to hide logical drift.
var DefaultTolerance = decimal.New(1, -9)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// DeltaFunc computes the new field value from the current one.
// Must be pure: it may be called once per attempt.
type DeltaFunc func(current decimal.Decimal) decimal.Decimal

// DeriveFunc sets fields that depend on the new value or on the freshly
// fetched record (e.g. last operation date, available quantity).
type DeriveFunc func(rec Record, next decimal.Decimal)

// CheckFunc validates the freshly fetched record before each attempt.
// A non-nil error aborts the write and is returned unchanged.
type CheckFunc func(rec Record, current decimal.Decimal) error

// DeltaRequest describes one guarded mutation.
type DeltaRequest struct {
	Table       string
	ID          string
	Field       string
	Compute     DeltaFunc
	Check       CheckFunc  // optional
	Derive      DeriveFunc // optional
	MaxAttempts int        // 0 = writer default
}

// DeltaResult is the committed transition.
// After == Compute(Before) for the attempt that verified.
type DeltaResult struct {
	Before   decimal.Decimal
	After    decimal.Decimal
	Attempts int
}

// WriteObserver receives one call per attempt and one per finished request.
type WriteObserver interface {
	ObserveAttempt(table, field string, verified bool)
	ObserveResult(table, field string, attempts int, err error)
}

// =============================================================================
// WRITER
// =============================================================================

// Writer applies guarded deltas against a Store.
type Writer struct {
	store       Store
	maxAttempts int
	tolerance   decimal.Decimal
	observer    WriteObserver
	log         logrus.FieldLogger
	locks       *keyLocks
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

func WithMaxAttempts(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithTolerance(tol decimal.Decimal) WriterOption {
	return func(w *Writer) {
		if !tol.IsNegative() {
			w.tolerance = tol
		}
	}
}

func WithObserver(o WriteObserver) WriterOption {
	return func(w *Writer) { w.observer = o }
}

func WithLogger(l logrus.FieldLogger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWriter creates a writer over store.
func NewWriter(store Store, opts ...WriterOption) *Writer {
	w := &Writer{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		tolerance:   DefaultTolerance,
		log:         logrus.StandardLogger(),
		locks:       newKeyLocks(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Store returns the underlying store.
func (w *Writer) Store() Store { return w.store }

// ApplyDelta runs the read-apply-write-verify-retry loop for one field.
func (w *Writer) ApplyDelta(ctx context.Context, req DeltaRequest) (DeltaResult, error) {
	if req.Compute == nil {
		return DeltaResult{}, errors.New("apply delta: nil compute function")
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.maxAttempts
	}

	unlock := w.locks.lock(req.Table + "/" + req.ID)
	defer unlock()

	log := w.log.WithFields(logrus.Fields{
		"table": req.Table,
		"id":    req.ID,
		"field": req.Field,
	})

	rec, err := w.store.FetchOne(ctx, req.Table, req.ID)
	if err != nil {
		w.observeResult(req, 0, err)
		return DeltaResult{}, err
	}

	var expected, stored decimal.Decimal
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current, err := rec.Decimal(req.Field)
		if err != nil {
			err = fmt.Errorf("read %s/%s.%s: %w", req.Table, req.ID, req.Field, err)
			w.observeResult(req, attempt, err)
			return DeltaResult{}, err
		}

		if req.Check != nil {
			if err := req.Check(rec, current); err != nil {
				w.observeResult(req, attempt, err)
				log.WithError(err).WithField("attempt", attempt).Debug("write rejected by check")
				return DeltaResult{}, err
			}
		}

		next := req.Compute(current)
		out := rec.Clone()
		out[req.Field] = next
		if req.Derive != nil {
			req.Derive(out, next)
		}

		if err := w.store.Update(ctx, req.Table, req.ID, out); err != nil {
			w.observeResult(req, attempt, err)
			return DeltaResult{}, err
		}

		fresh, err := w.store.FetchOne(ctx, req.Table, req.ID)
		if err != nil {
			w.observeResult(req, attempt, err)
			return DeltaResult{}, err
		}
		got, err := fresh.Decimal(req.Field)
		if err != nil {
			err = fmt.Errorf("verify %s/%s.%s: %w", req.Table, req.ID, req.Field, err)
			w.observeResult(req, attempt, err)
			return DeltaResult{}, err
		}

		if WithinTolerance(got, next, w.tolerance) {
			w.observeAttempt(req, true)
			w.observeResult(req, attempt, nil)
			log.WithFields(logrus.Fields{
				"before":   current.String(),
				"after":    next.String(),
				"attempts": attempt,
			}).Debug("live value committed")
			return DeltaResult{Before: current, After: next, Attempts: attempt}, nil
		}

		w.observeAttempt(req, false)
		log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"expected": next.String(),
			"stored":   got.String(),
		}).Warn("live value changed under us, retrying from fresh read")

		expected, stored = next, got
		rec = fresh
	}

	verr := &WriteVerificationFailedError{
		Table:    req.Table,
		ID:       req.ID,
		Field:    req.Field,
		Attempts: maxAttempts,
		Expected: expected,
		Stored:   stored,
	}
	w.observeResult(req, maxAttempts, verr)
	log.WithError(verr).Error("giving up on live value write")
	return DeltaResult{}, verr
}

// ApplyDelta is a convenience for a one-off writer with default settings.
func ApplyDelta(ctx context.Context, store Store, req DeltaRequest) (DeltaResult, error) {
	return NewWriter(store).ApplyDelta(ctx, req)
}

func (w *Writer) observeAttempt(req DeltaRequest, verified bool) {
	if w.observer != nil {
		w.observer.ObserveAttempt(req.Table, req.Field, verified)
	}
}

func (w *Writer) observeResult(req DeltaRequest, attempts int, err error) {
	if w.observer != nil {
		w.observer.ObserveResult(req.Table, req.Field, attempts, err)
	}
}

// =============================================================================
// KEYED LOCKS
// =============================================================================

type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[string]*keyLock)}
}

// lock acquires the lock for key and returns its release function.
// Entries are dropped once nobody holds or waits for them.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
