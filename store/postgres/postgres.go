/*
Package postgres provides a PostgreSQL implementation of generic.Store.

PURPOSE:
  Same single-table layout as store/sqlite, with the document held in a
  jsonb column. Filters use the ->> operator. The connection pool comes
  from pgxpool.

CONCURRENCY:
  Each primitive is one statement. No transaction spans calls: the
  engine assumes none, and generic.Writer provides verification.

USAGE:
  pool, err := postgres.NewPool(ctx, os.Getenv("DATABASE_URL"))
  store, err := postgres.New(ctx, pool)
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

const uniqueViolation = "23505"

// Store implements generic.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// New wraps pool and creates the schema if needed.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS records (
		tbl        TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tbl, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_data ON records USING GIN (data);
	`)
	return err
}

// =============================================================================
// RECORD STORE (generic.Store interface)
// =============================================================================

func (s *Store) FetchOne(ctx context.Context, table, id string) (generic.Record, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM records WHERE tbl = $1 AND id = $2`, table, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &generic.NotFoundError{Table: table, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", table, id, err)
	}
	return generic.DecodeJSON(data)
}

// FetchMany returns matches ordered by id.
func (s *Store) FetchMany(ctx context.Context, table string, filter generic.Filter) ([]generic.Record, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM records WHERE tbl = $1`)
	args := []any{table}

	fields := make([]string, 0, len(filter))
	for k := range filter {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if !generic.ValidFieldName(field) {
			return nil, fmt.Errorf("invalid filter field %q", field)
		}
		args = append(args, field, fmt.Sprint(filter[field]))
		fmt.Fprintf(&sb, ` AND data->>$%d = $%d`, len(args)-1, len(args))
	}
	sb.WriteString(` ORDER BY id`)

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var result []generic.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := generic.DecodeJSON(data)
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
		return fmt.Errorf("encode %s/%s: %w", table, id, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (tbl, id, data) VALUES ($1, $2, $3)`, table, id, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s/%s: %w", table, id, generic.ErrDuplicateID)
		}
		return fmt.Errorf("insert %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table, id string, rec generic.Record) error {
	out := rec.Clone()
	out[generic.FieldID] = id
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", table, id, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET data = $1, updated_at = now() WHERE tbl = $2 AND id = $3`, data, table, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return &generic.NotFoundError{Table: table, ID: id}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE tbl = $1 AND id = $2`, table, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return &generic.NotFoundError{Table: table, ID: id}
	}
	return nil
}
