package notifications

import (
	"context"
	"errors"
)

// ErrNotificationNotFound is returned when a notification does not exist.
var ErrNotificationNotFound = errors.New("notifications: notification not found")

// Storage handles notification persistence and retrieval.
type Storage interface {
	// Create stores a new notification.
	Create(ctx context.Context, notif Notification) error

	// List returns a user's notifications, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)

	// MarkRead marks the given notifications as read.
	MarkRead(ctx context.Context, userID string, notifIDs ...string) error

	// CountUnread returns the user's unread count.
	CountUnread(ctx context.Context, userID string) (int, error)
}

// ListOptions filters and paginates a List call.
type ListOptions struct {
	Limit      int    // maximum notifications to return (0 = no limit)
	Offset     int    // notifications to skip for pagination
	OnlyUnread bool   // only return unread notifications
	Types      []Type // only return notifications of these types, when set
}
