package notifications

import (
	"context"
)

// Deliverer pushes notifications to a real-time channel (websocket, SSE,
// push). Delivery is best effort; storage is the source of truth.
type Deliverer interface {
	Deliver(ctx context.Context, notif Notification) error
}

// NoOpDeliverer discards deliveries. Used when no real-time channel is wired.
type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(ctx context.Context, notif Notification) error { return nil }
