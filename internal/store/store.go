// Package store implements the repositories the run manager reads and writes
// through. A Store wraps either the pool or one transaction; every query is
// written with '?' placeholders and rebound for the active dialect.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/runwatch/internal/storage"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// TimeLayout is fixed-width so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// DB is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db      DB
	dialect storage.Dialect
	now     func() time.Time
	newID   func() string
}

func New(db DB, dialect storage.Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WithDB returns a Store sharing configuration but bound to db, typically a
// transaction.
func (s *Store) WithDB(db DB) *Store {
	cp := *s
	cp.db = db
	return &cp
}

// SetClock overrides the creation timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Dialect returns the SQL dialect of the underlying database.
func (s *Store) Dialect() storage.Dialect {
	return s.dialect
}

// Count returns the number of rows in one of the managed tables.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if !slices.Contains(storage.Tables, table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

func (s *Store) ensureID(id *string) {
	if *id == "" {
		*id = s.newID()
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, raw)
	if err != nil {
		// Rows written by other tools may use RFC 3339.
		t, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
		}
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func fromNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return storage.Placeholders(n)
}

// stringArgs widens ids for use as variadic query arguments.
func stringArgs(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
