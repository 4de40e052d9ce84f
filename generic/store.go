/*
store.go - The external record store contract

PURPOSE:
  The engine talks to its persistence layer through exactly five
  primitives over named tables. Each call is atomic on its own; nothing
  is promised about isolation between concurrent callers. That missing
  guarantee is why writer.go exists.

PRIMITIVES:
  FetchOne:  Record by id, NotFoundError if absent
  FetchMany: Records matching a field-equality filter
  Insert:    New record, id taken from the record itself
  Update:    Full replacement of an existing record
  Delete:    Removal by id

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory, for tests and ephemeral runs
  - store/sqlite/sqlite.go:  SQLite, one JSON document per record
  - store/postgres/postgres.go: PostgreSQL jsonb documents

SEE ALSO:
  - writer.go: The only sanctioned way to mutate a live value field
*/
package generic

import "context"

// =============================================================================
// STORE - Named-table record persistence
// =============================================================================

// Store is the persistence contract consumed by the engine.
type Store interface {
	// FetchOne returns the record with the given id.
	// Returns *NotFoundError if the record does not exist.
	FetchOne(ctx context.Context, table, id string) (Record, error)

	// FetchMany returns every record in table matching filter.
	// Order is unspecified; callers sort.
	FetchMany(ctx context.Context, table string, filter Filter) ([]Record, error)

	// Insert persists a new record. The record must carry an "id" field.
	Insert(ctx context.Context, table string, rec Record) error

	// Update replaces the record with the given id.
	// Returns *NotFoundError if the record does not exist.
	Update(ctx context.Context, table, id string, rec Record) error

	// Delete removes the record with the given id.
	// Returns *NotFoundError if the record does not exist.
	Delete(ctx context.Context, table, id string) error
}
