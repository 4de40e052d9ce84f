/*
Package generic provides the domain-agnostic persistence engine.

PURPOSE:
  This package knows nothing about stock items, returns or delivery notes.
  It defines the shape of a persisted record, the five primitive operations
  the external record store offers, and the Concurrency-Safe Writer that
  every live-value mutation funnels through.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: One row of a named table, as a field -> value map
  - Filter: Field equality constraints for FetchMany
  - Decimal helpers: Reading numeric fields regardless of how the store
    round-tripped them (decimal, JSON number, string, float)

DESIGN PRINCIPLES:
  1. Precision: Numeric fields are read as decimal.Decimal
  2. No isolation assumed: Each store call is atomic, nothing more
  3. Records are values: Stores hand out copies, never shared maps

SEE ALSO:
  - store.go: The Store contract
  - codec.go: Struct <-> Record conversion
  - writer.go: Read-apply-write-verify-retry
*/
package generic

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD - One row of a named table
// =============================================================================

// FieldID is the primary key field every record carries.
const FieldID = "id"

// Record is a single persisted row. Values are scalars (string, bool,
// numbers, decimals, nil); nested structures are not used by this engine.
type Record map[string]any

// Filter selects records whose fields equal the given values.
// An empty filter matches every record in the table.
type Filter map[string]any

// ID returns the record's primary key, or "" if absent.
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// Clone returns a shallow copy. Sufficient because values are scalars.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns a field as a string, or "" if absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Decimal reads a numeric field. Missing or null fields read as zero.
func (r Record) Decimal(field string) (decimal.Decimal, error) {
	return ToDecimal(r[field])
}

var fieldName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidFieldName reports whether name is safe to splice into a query as a
// JSON path or table name.
func ValidFieldName(name string) bool {
	return fieldName.MatchString(name)
}

// Matches reports whether every filter field equals the record's field.
// Values are compared by their printed form so that a store which
// round-trips through JSON still matches typed filter values.
func (r Record) Matches(f Filter) bool {
	for k, want := range f {
		got, ok := r[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// ToDecimal converts any numeric representation a store may return.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, nil
		}
		return *x, nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		if x == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, fmt.Errorf("non-finite value %v", x)
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
