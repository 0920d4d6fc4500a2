package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory RowStore used by tests and local development.
// Matching uses string-normalized equality so numeric types round-tripped
// through JSON still compare equal.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Row

	// failOn lets tests inject a failure for a specific table/operation pair.
	failOn map[string]error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Row),
		failOn: make(map[string]error),
	}
}

// FailWith makes the next calls of op ("insert", "update", "delete", "upsert",
// "select") on table return err. Pass nil to clear.
func (s *MemoryStore) FailWith(table, op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := table + ":" + op
	if err == nil {
		delete(s.failOn, key)
		return
	}
	s.failOn[key] = err
}

// Seed replaces the contents of a table. Intended for test setup.
func (s *MemoryStore) Seed(table string, rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]Row, 0, len(rows))
	for _, r := range rows {
		copied = append(copied, r.Clone())
	}
	s.tables[table] = copied
}

func (s *MemoryStore) injected(table, op string) error {
	return s.failOn[table+":"+op]
}

func (s *MemoryStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if table == "" {
		return nil, ErrInvalidTable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected(table, "insert"); err != nil {
		return nil, err
	}

	stored := row.Clone()
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.New().String()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	s.tables[table] = append(s.tables[table], stored)
	return stored.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, table string, match Match, changes Row) ([]Row, error) {
	if table == "" {
		return nil, ErrInvalidTable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected(table, "update"); err != nil {
		return nil, err
	}

	var updated []Row
	for i, row := range s.tables[table] {
		if !rowMatches(row, match) {
			continue
		}
		for k, v := range changes {
			row[k] = v
		}
		s.tables[table][i] = row
		updated = append(updated, row.Clone())
	}

	if len(updated) == 0 {
		return nil, ErrNotFound
	}
	return updated, nil
}

func (s *MemoryStore) Delete(ctx context.Context, table string, match Match) ([]Row, error) {
	if table == "" {
		return nil, ErrInvalidTable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected(table, "delete"); err != nil {
		return nil, err
	}

	var kept []Row
	var removed []Row
	for _, row := range s.tables[table] {
		if rowMatches(row, match) {
			removed = append(removed, row.Clone())
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept

	return removed, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, table string, match Match, row Row) (Row, error) {
	if table == "" {
		return nil, ErrInvalidTable
	}

	s.mu.Lock()
	if err := s.injected(table, "upsert"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	exists := false
	for _, existing := range s.tables[table] {
		if rowMatches(existing, match) {
			exists = true
			break
		}
	}
	s.mu.Unlock()

	if exists {
		rows, err := s.Update(ctx, table, match, row)
		if err != nil {
			return nil, err
		}
		return rows[0], nil
	}
	return s.Insert(ctx, table, row)
}

func (s *MemoryStore) Select(ctx context.Context, table string, match Match, opts ...SelectOption) ([]Row, error) {
	if table == "" {
		return nil, ErrInvalidTable
	}

	q := buildSelectQuery(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected(table, "select"); err != nil {
		return nil, err
	}

	var result []Row
	for _, row := range s.tables[table] {
		if rowMatches(row, match) {
			result = append(result, row.Clone())
		}
	}

	if q.orderBy != "" {
		col := q.orderBy
		sort.SliceStable(result, func(i, j int) bool {
			less := lessValue(result[i][col], result[j][col])
			if q.descending {
				return !less && !equalValue(result[i][col], result[j][col])
			}
			return less
		})
	}

	if q.limit > 0 && len(result) > q.limit {
		result = result[:q.limit]
	}

	return result, nil
}

func rowMatches(row Row, match Match) bool {
	for col, want := range match {
		got, ok := row[col]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

// equalValue compares through string normalization so int64(3) from the
// application matches float64(3) decoded from JSON.
func equalValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func lessValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
