package billing

import (
	"context"
	"time"
)

// Provider is the payment processor boundary. Implementations use the
// processor's official SDK and hide provider-specific quirks.
type Provider interface {
	// CreateCheckoutSession creates a hosted checkout for a price.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// CreatePortalSession returns a pre-authenticated customer portal link
	// where users manage payment methods and cancellation.
	CreatePortalSession(ctx context.Context, params PortalParams) (*PortalSession, error)

	// FetchSubscriptionSnapshot reads the processor's current view of a
	// subscription by its external reference.
	FetchSubscriptionSnapshot(ctx context.Context, externalRef string) (*RemoteSubscription, error)

	// ParseWebhook validates the signature and normalizes a processor
	// webhook into a WebhookEvent.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutParams describes a checkout session to create.
type CheckoutParams struct {
	PriceRef   string // processor's price identifier
	StoreID    string // tenant store id, carried in custom data
	UserID     string // acting user id, carried in custom data
	Email      string // optional billing email
	SuccessURL string // redirect after successful payment
}

// CheckoutSession is a hosted checkout the user completes on the
// processor's side.
type CheckoutSession struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// PortalParams describes a customer portal session to create.
type PortalParams struct {
	CustomerRef string // processor's customer id
	ExternalRef string // processor's subscription id
}

// PortalSession is a pre-authenticated customer portal link.
type PortalSession struct {
	URL              string
	CancelURL        string
	UpdatePaymentURL string
	ExpiresAt        time.Time
}

// RemoteSubscription is the processor's view of a subscription.
type RemoteSubscription struct {
	ExternalRef       string
	Status            string
	CustomerRef       string
	PriceRef          string
	TrialEnd          *time.Time
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

// WebhookEvent is a normalized processor webhook.
type WebhookEvent struct {
	Type          EventType
	ProviderEvent string // original processor event name
	ExternalRef   string // processor's subscription id
	StoreID       string // tenant store id from custom data
	UserID        string // user id from custom data
	Status        string
	PriceRef      string
	Raw           map[string]any
}

// EventType is the normalized billing event type. Each provider maps its
// specific events onto these.
type EventType string

const (
	EventSubscriptionCreated  EventType = "subscription_created"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventSubscriptionResumed  EventType = "subscription_resumed"
	EventPaymentSucceeded     EventType = "payment_succeeded"
	EventPaymentFailed        EventType = "payment_failed"
)
