package inventory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

// =============================================================================
// SHARED SERVICE PLUMBING
// =============================================================================

// Option configures any of the services in this package.
type Option func(*base)

// WithLogger sets the structured logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator for record ids.
func WithIDGenerator(gen func() string) Option {
	return func(b *base) {
		if gen != nil {
			b.newID = gen
		}
	}
}

type base struct {
	store  generic.Store
	writer *generic.Writer
	log    logrus.FieldLogger
	now    func() time.Time
	newID  func() string
}

func newBase(w *generic.Writer, component string, opts []Option) base {
	b := base{
		store:  w.Store(),
		writer: w,
		log:    logrus.StandardLogger(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = b.log.WithField("component", component)
	return b
}

// insert encodes v and persists it as a new record in table.
func (b *base) insert(ctx context.Context, table string, v any) error {
	rec, err := generic.Encode(v)
	if err != nil {
		return err
	}
	if err := b.store.Insert(ctx, table, rec); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// nextSequence returns one past the highest sequence number in table.
// Sequence numbers are display ordering, not an invariant: two racing
// creators may draw the same number.
func (b *base) nextSequence(ctx context.Context, table string) (int64, error) {
	recs, err := b.store.FetchMany(ctx, table, nil)
	if err != nil {
		return 0, fmt.Errorf("read %s sequence: %w", table, err)
	}
	var max int64
	for _, rec := range recs {
		d, err := rec.Decimal("sequence")
		if err != nil {
			continue
		}
		if n := d.IntPart(); n > max {
			max = n
		}
	}
	return max + 1, nil
}

// dateOr returns d, or today's timestamp if d is zero.
func (b *base) dateOr(d time.Time) time.Time {
	if d.IsZero() {
		return b.now()
	}
	return d.UTC()
}

func fetchAs[T any](ctx context.Context, s generic.Store, table, id string) (*T, error) {
	rec, err := s.FetchOne(ctx, table, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := generic.Decode(rec, &v); err != nil {
		return nil, fmt.Errorf("%s/%s: %w", table, id, err)
	}
	return &v, nil
}

func fetchAllAs[T any](ctx context.Context, s generic.Store, table string, filter generic.Filter) ([]T, error) {
	recs, err := s.FetchMany(ctx, table, filter)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := generic.Decode(rec, &v); err != nil {
			return nil, fmt.Errorf("%s/%s: %w", table, rec.ID(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// =============================================================================
// INPUT VALIDATION - runs before any store call
// =============================================================================

func magnitudeOf(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return decimal.Zero, &InvalidMagnitudeError{Value: v}
	}
	return decimal.NewFromFloat(v), nil
}

// quantityOf validates a quantity, price or amount.
func quantityOf(field string, v float64, allowZero bool) (decimal.Decimal, error) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return decimal.Zero, &InvalidQuantityError{Field: field, Value: v, Reason: "must be finite"}
	case v < 0:
		return decimal.Zero, &InvalidQuantityError{Field: field, Value: v, Reason: "must not be negative"}
	case v == 0 && !allowZero:
		return decimal.Zero, &InvalidQuantityError{Field: field, Value: v, Reason: "must be positive"}
	}
	return decimal.NewFromFloat(v), nil
}

// sortByDate orders operations by date, then creation time, then sequence.
func sortByDate[T any](ops []T, key func(T) (time.Time, time.Time, int64, string)) {
	sort.SliceStable(ops, func(i, j int) bool {
		di, ci, si, ii := key(ops[i])
		dj, cj, sj, ij := key(ops[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		if si != sj {
			return si < sj
		}
		return ii < ij
	})
}
