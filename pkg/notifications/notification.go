package notifications

import (
	"time"
)

// Type identifies a billing notification kind.
type Type string

const (
	TypePaymentSuccess       Type = "payment_success"
	TypePaymentFailed        Type = "payment_failed"
	TypeTrialEnding          Type = "trial_ending"
	TypeSubscriptionCanceled Type = "subscription_canceled"
	TypePlanChanged          Type = "plan_changed"
)

// Notification is one message for a tenant user.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	StoreID   string         `json:"store_id,omitempty"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// MarkAsRead marks the notification as read with the current timestamp.
func (n *Notification) MarkAsRead() {
	n.Read = true
	now := time.Now()
	n.ReadAt = &now
}
