package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/catalogkit/pkg/datastore"
)

// identPattern restricts table and column names to plain SQL identifiers.
// Names come from code constants, never from user input; this is a guard
// against programming mistakes, not an escaping layer.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PgStore implements datastore.RowStore over PostgreSQL. Every call is one
// SQL statement; there is intentionally no transaction wrapping (see the
// package doc).
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore over the pool.
// Panics when pool is nil to fail fast during initialization.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("pg: connection pool is required")
	}
	return &PgStore{pool: pool}
}

func (s *PgStore) Insert(ctx context.Context, table string, row datastore.Row) (datastore.Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, storeErr(table, "insert", err)
	}

	cols := sortedKeys(row)
	if err := checkIdents(cols); err != nil {
		return nil, storeErr(table, "insert", err)
	}

	placeholders := make([]string, len(cols))
	quoted := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		quoted[i] = quoteIdent(col)
		args[i] = toSQLValue(row[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	rows, err := s.queryRows(ctx, query, args)
	if err != nil {
		return nil, wrapStoreErr(table, "insert", err)
	}
	if len(rows) == 0 {
		return nil, storeErr(table, "insert", fmt.Errorf("insert returned no row"))
	}
	return rows[0], nil
}

func (s *PgStore) Update(ctx context.Context, table string, match datastore.Match, changes datastore.Row) ([]datastore.Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, storeErr(table, "update", err)
	}

	setCols := sortedKeys(changes)
	matchCols := sortedKeys(datastore.Row(match))
	if err := checkIdents(append(append([]string{}, setCols...), matchCols...)); err != nil {
		return nil, storeErr(table, "update", err)
	}

	var args []any
	sets := make([]string, len(setCols))
	for i, col := range setCols {
		args = append(args, toSQLValue(changes[col]))
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), len(args))
	}
	where := make([]string, len(matchCols))
	for i, col := range matchCols {
		args = append(args, toSQLValue(match[col]))
		where[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), len(args))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *",
		quoteIdent(table), strings.Join(sets, ", "), strings.Join(where, " AND "))

	rows, err := s.queryRows(ctx, query, args)
	if err != nil {
		return nil, wrapStoreErr(table, "update", err)
	}
	if len(rows) == 0 {
		return nil, datastore.ErrNotFound
	}
	return rows, nil
}

func (s *PgStore) Delete(ctx context.Context, table string, match datastore.Match) ([]datastore.Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, storeErr(table, "delete", err)
	}

	matchCols := sortedKeys(datastore.Row(match))
	if err := checkIdents(matchCols); err != nil {
		return nil, storeErr(table, "delete", err)
	}

	var args []any
	where := make([]string, len(matchCols))
	for i, col := range matchCols {
		args = append(args, toSQLValue(match[col]))
		where[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), len(args))
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *",
		quoteIdent(table), strings.Join(where, " AND "))

	rows, err := s.queryRows(ctx, query, args)
	if err != nil {
		return nil, wrapStoreErr(table, "delete", err)
	}
	return rows, nil
}

// Upsert probes for the matching row, then updates or inserts. The
// probe-then-write shape matches the other RowStore backends so the
// transaction plan's compensation logic behaves identically everywhere.
func (s *PgStore) Upsert(ctx context.Context, table string, match datastore.Match, row datastore.Row) (datastore.Row, error) {
	existing, err := s.Select(ctx, table, match, datastore.WithLimit(1))
	if err != nil {
		return nil, err
	}

	if len(existing) == 0 {
		return s.Insert(ctx, table, row)
	}

	updated, err := s.Update(ctx, table, match, row)
	if err != nil {
		return nil, err
	}
	return updated[0], nil
}

func (s *PgStore) Select(ctx context.Context, table string, match datastore.Match, opts ...datastore.SelectOption) ([]datastore.Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, storeErr(table, "select", err)
	}

	matchCols := sortedKeys(datastore.Row(match))
	if err := checkIdents(matchCols); err != nil {
		return nil, storeErr(table, "select", err)
	}

	var args []any
	query := fmt.Sprintf("SELECT * FROM %s", quoteIdent(table))
	if len(matchCols) > 0 {
		where := make([]string, len(matchCols))
		for i, col := range matchCols {
			args = append(args, toSQLValue(match[col]))
			where[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), len(args))
		}
		query += " WHERE " + strings.Join(where, " AND ")
	}

	orderBy, descending, limit := datastore.SelectPlan(opts)
	if orderBy != "" {
		if err := checkIdent(orderBy); err != nil {
			return nil, storeErr(table, "select", err)
		}
		query += " ORDER BY " + quoteIdent(orderBy)
		if descending {
			query += " DESC"
		}
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.queryRows(ctx, query, args)
	if err != nil {
		return nil, wrapStoreErr(table, "select", err)
	}
	return rows, nil
}

func (s *PgStore) queryRows(ctx context.Context, query string, args []any) ([]datastore.Row, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []datastore.Row
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(datastore.Row, len(fields))
		for i, field := range fields {
			row[field.Name] = fromSQLValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// toSQLValue converts row values to driver-friendly shapes. Nested maps and
// slices persist as JSONB.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return raw
	default:
		return v
	}
}

// fromSQLValue normalizes driver values to the shapes the row consumers
// expect: RFC 3339 strings for timestamps, generic maps for JSONB.
func fromSQLValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []byte:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return string(val)
		}
		return decoded
	case int32:
		return int64(val)
	default:
		return v
	}
}

func sortedKeys(row datastore.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quoteIdent double-quotes a validated identifier so reserved words like
// "trigger" stay usable as column names.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

func checkIdent(name string) error {
	if name == "" {
		return datastore.ErrInvalidTable
	}
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func checkIdents(names []string) error {
	for _, name := range names {
		if err := checkIdent(name); err != nil {
			return err
		}
	}
	return nil
}

func storeErr(table, op string, err error) error {
	return &datastore.StoreError{Table: table, Op: op, Err: err}
}

// wrapStoreErr classifies query failures: unique violations map to
// ErrConflict, pgx.ErrNoRows to ErrNotFound, everything else becomes a
// transport-level StoreError (temporary, retryable).
func wrapStoreErr(table, op string, err error) error {
	switch {
	case IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s %s: %v", datastore.ErrConflict, op, table, err)
	case IsNotFoundError(err):
		return datastore.ErrNotFound
	default:
		return &datastore.StoreError{Table: table, Op: op, Err: err}
	}
}
