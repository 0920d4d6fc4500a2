package datastore

import (
	"context"
)

// Row is a single table row as returned by the data store.
type Row map[string]any

// Match is an equality predicate: every listed column must equal its value.
type Match map[string]any

// RowStore is the table-scoped mutation and query surface of the data store.
// Every call is one network round trip; there is no transaction primitive.
type RowStore interface {
	// Insert adds a row and returns it as stored (with server-assigned fields).
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update applies changes to all rows matching the predicate and returns
	// the updated rows. Returns ErrNotFound when no row matched.
	Update(ctx context.Context, table string, match Match, changes Row) ([]Row, error)

	// Delete removes all rows matching the predicate and returns the removed
	// rows. Deleting zero rows is not an error.
	Delete(ctx context.Context, table string, match Match) ([]Row, error)

	// Upsert updates the row matching the predicate or inserts the given row
	// when none matches, and returns the resulting row.
	Upsert(ctx context.Context, table string, match Match, row Row) (Row, error)

	// Select returns all rows matching the predicate, optionally ordered and
	// limited. An empty result is not an error.
	Select(ctx context.Context, table string, match Match, opts ...SelectOption) ([]Row, error)
}

// SelectOption adjusts ordering and limits of a Select call.
type SelectOption func(*selectQuery)

type selectQuery struct {
	orderBy    string
	descending bool
	limit      int
}

// WithOrderAsc orders results by the given column, ascending.
func WithOrderAsc(column string) SelectOption {
	return func(q *selectQuery) {
		q.orderBy = column
		q.descending = false
	}
}

// WithOrderDesc orders results by the given column, descending.
func WithOrderDesc(column string) SelectOption {
	return func(q *selectQuery) {
		q.orderBy = column
		q.descending = true
	}
}

// WithLimit caps the number of returned rows. Non-positive values are ignored.
func WithLimit(n int) SelectOption {
	return func(q *selectQuery) {
		if n > 0 {
			q.limit = n
		}
	}
}

func buildSelectQuery(opts []SelectOption) selectQuery {
	var q selectQuery
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// SelectPlan resolves the options into ordering and limit values, for
// RowStore implementations living outside this package.
func SelectPlan(opts []SelectOption) (orderBy string, descending bool, limit int) {
	q := buildSelectQuery(opts)
	return q.orderBy, q.descending, q.limit
}

// Clone returns a deep-enough copy of the row for compensation snapshots.
// Nested maps and slices are copied one level deep, which covers the JSON
// shapes the data store produces.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		switch val := v.(type) {
		case map[string]any:
			m := make(map[string]any, len(val))
			for mk, mv := range val {
				m[mk] = mv
			}
			out[k] = m
		case []any:
			s := make([]any, len(val))
			copy(s, val)
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}
