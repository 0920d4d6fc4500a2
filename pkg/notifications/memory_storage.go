package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation for development and
// testing.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[string][]Notification // userID -> notifications
}

// NewMemoryStorage creates an empty in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string][]Notification),
	}
}

func (s *MemoryStorage) Create(ctx context.Context, notif Notification) error {
	if notif.ID == "" {
		return errors.New("notifications: notification ID is required")
	}
	if notif.UserID == "" {
		return errors.New("notifications: user ID is required")
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[notif.UserID] = append(s.notifications[notif.UserID], notif)
	return nil
}

func (s *MemoryStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []Notification
	for _, n := range s.notifications[userID] {
		if opts.OnlyUnread && n.Read {
			continue
		}
		if len(opts.Types) > 0 && !containsType(opts.Types, n.Type) {
			continue
		}
		filtered = append(filtered, n)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

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

func (s *MemoryStorage) MarkRead(ctx context.Context, userID string, notifIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]bool, len(notifIDs))
	for _, id := range notifIDs {
		ids[id] = true
	}

	stored := s.notifications[userID]
	for i := range stored {
		if ids[stored[i].ID] {
			stored[i].MarkAsRead()
		}
	}
	return nil
}

func (s *MemoryStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications[userID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
