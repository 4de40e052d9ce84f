/*
Package sqlite provides a SQLite-backed implementation of generic.Store.

PURPOSE:
  Persists every named table as JSON documents in a single records table.
  Field filters are evaluated with json_extract, so new tables and fields
  need no migration.

INTERFACES IMPLEMENTED:
  generic.Store: FetchOne, FetchMany, Insert, Update, Delete

KEY TABLES:
  records: (tbl, id) primary key, data = JSON document of the record

INDEXES:
  - idx_records_tbl: Full-table scans for FetchMany

CONCURRENCY:
  Each primitive is a single statement and therefore atomic. Nothing is
  held across calls: read-modify-write safety is the job of
  generic.Writer, exactly as with any other backend.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  writer := generic.NewWriter(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Interface definition
  - generic/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: Same layout on jsonb
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

// Store implements generic.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database is private to its connection,
	// and SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		tbl TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tbl, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_tbl
		ON records(tbl);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (generic.Store interface)
// =============================================================================

func (s *Store) FetchOne(ctx context.Context, table, id string) (generic.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE tbl = ? AND id = ?`, table, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Table: table, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", table, id, err)
	}
	return generic.DecodeJSON([]byte(data))
}

// FetchMany returns matches ordered by id.
func (s *Store) FetchMany(ctx context.Context, table string, filter generic.Filter) ([]generic.Record, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT data FROM records WHERE tbl = ?`)
	args := []any{table}
	for _, field := range sortedFields(filter) {
		if !generic.ValidFieldName(field) {
			return nil, fmt.Errorf("invalid filter field %q", field)
		}
		query.WriteString(` AND CAST(json_extract(data, ?) AS TEXT) = ?`)
		args = append(args, "$."+field, fmt.Sprint(filter[field]))
	}
	query.WriteString(` ORDER BY id`)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var result []generic.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := generic.DecodeJSON([]byte(data))
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) Insert(ctx context.Context, table string, rec generic.Record) error {
	id := rec.ID()
	if id == "" {
		return generic.ErrMissingID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", table, id, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (tbl, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		table, id, string(data), now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%s/%s: %w", table, id, generic.ErrDuplicateID)
		}
		return fmt.Errorf("failed to insert %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table, id string, rec generic.Record) error {
	out := rec.Clone()
	out[generic.FieldID] = id
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", table, id, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE tbl = ? AND id = ?`,
		string(data), time.Now().UTC().Format(time.RFC3339Nano), table, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", table, id, err)
	}
	return requireRow(res, table, id)
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE tbl = ? AND id = ?`, table, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	return requireRow(res, table, id)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM records")
	return err
}

func requireRow(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &generic.NotFoundError{Table: table, ID: id}
	}
	return nil
}

func sortedFields(f generic.Filter) []string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
