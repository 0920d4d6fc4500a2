package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/catalogkit/pkg/logger"
)

// Manager orchestrates notification storage and delivery.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	log       *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for delivery warnings.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithDeliverer sets the real-time delivery channel.
func WithDeliverer(d Deliverer) ManagerOption {
	return func(m *Manager) {
		if d != nil {
			m.deliverer = d
		}
	}
}

// NewManager creates a notification manager.
// Panics when storage is nil to fail fast during initialization.
func NewManager(storage Storage, opts ...ManagerOption) *Manager {
	if storage == nil {
		panic("notifications: storage is required")
	}

	m := &Manager{
		storage:   storage,
		deliverer: NoOpDeliverer{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send persists the notification, then attempts real-time delivery. A
// delivery failure is logged and does not fail the send; the notification is
// stored and retrievable either way.
func (m *Manager) Send(ctx context.Context, notif Notification) (Notification, error) {
	if notif.ID == "" {
		notif.ID = uuid.New().String()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now().UTC()
	}

	if err := m.storage.Create(ctx, notif); err != nil {
		return Notification{}, fmt.Errorf("notifications: store notification: %w", err)
	}

	if err := m.deliverer.Deliver(ctx, notif); err != nil {
		m.log.WarnContext(ctx, "notification stored but real-time delivery failed",
			slog.String("notification_id", notif.ID),
			logger.UserID(notif.UserID),
			logger.Error(err),
		)
	}

	return notif, nil
}

// List returns a user's notifications, newest first.
func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, userID, opts)
}

// MarkRead marks the given notifications as read.
func (m *Manager) MarkRead(ctx context.Context, userID string, notifIDs ...string) error {
	return m.storage.MarkRead(ctx, userID, notifIDs...)
}

// CountUnread returns the user's unread count.
func (m *Manager) CountUnread(ctx context.Context, userID string) (int, error) {
	return m.storage.CountUnread(ctx, userID)
}
