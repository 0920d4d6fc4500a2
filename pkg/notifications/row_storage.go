package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrymomot/catalogkit/pkg/datastore"
)

// DefaultTable is the notifications table name.
const DefaultTable = "notifications"

// RowStorage persists notifications through the shared row store, so they
// live next to the subscription tables.
type RowStorage struct {
	store datastore.RowStore
	table string
}

// RowStorageOption configures a RowStorage.
type RowStorageOption func(*RowStorage)

// WithTable overrides the notifications table name.
func WithTable(table string) RowStorageOption {
	return func(s *RowStorage) {
		if table != "" {
			s.table = table
		}
	}
}

// NewRowStorage creates a Storage over the given row store.
// Panics when store is nil to fail fast during initialization.
func NewRowStorage(store datastore.RowStore, opts ...RowStorageOption) *RowStorage {
	if store == nil {
		panic("notifications: row store is required")
	}

	s := &RowStorage{store: store, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RowStorage) Create(ctx context.Context, notif Notification) error {
	row := datastore.Row{
		"id":         notif.ID,
		"user_id":    notif.UserID,
		"store_id":   notif.StoreID,
		"type":       string(notif.Type),
		"title":      notif.Title,
		"message":    notif.Message,
		"read":       notif.Read,
		"created_at": notif.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(notif.Data) > 0 {
		row["data"] = notif.Data
	}

	_, err := s.store.Insert(ctx, s.table, row)
	return err
}

func (s *RowStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	match := datastore.Match{"user_id": userID}
	if opts.OnlyUnread {
		match["read"] = false
	}

	rows, err := s.store.Select(ctx, s.table, match, datastore.WithOrderDesc("created_at"))
	if err != nil {
		return nil, err
	}

	var filtered []Notification
	for _, row := range rows {
		n, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		if len(opts.Types) > 0 && !containsType(opts.Types, n.Type) {
			continue
		}
		filtered = append(filtered, n)
	}

	start := opts.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], nil
}

func (s *RowStorage) MarkRead(ctx context.Context, userID string, notifIDs ...string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range notifIDs {
		_, err := s.store.Update(ctx, s.table,
			datastore.Match{"id": id, "user_id": userID},
			datastore.Row{"read": true, "read_at": now})
		if err != nil && err != datastore.ErrNotFound {
			return err
		}
	}
	return nil
}

func (s *RowStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	rows, err := s.store.Select(ctx, s.table,
		datastore.Match{"user_id": userID, "read": false})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func fromRow(row datastore.Row) (Notification, error) {
	n := Notification{
		ID:      stringField(row, "id"),
		UserID:  stringField(row, "user_id"),
		StoreID: stringField(row, "store_id"),
		Type:    Type(stringField(row, "type")),
		Title:   stringField(row, "title"),
		Message: stringField(row, "message"),
	}
	if read, ok := row["read"].(bool); ok {
		n.Read = read
	}
	if data, ok := row["data"].(map[string]any); ok {
		n.Data = data
	}
	if ts := stringField(row, "read_at"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Notification{}, err
		}
		n.ReadAt = &t
	}
	if ts := stringField(row, "created_at"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Notification{}, err
		}
		n.CreatedAt = t
	}
	return n, nil
}

func stringField(row datastore.Row, col string) string {
	switch v := row[col].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
