package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/catalogkit/pkg/retry"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string        `env:"PADDLE_API_KEY,required"`
	WebhookSecret string        `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string        `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	Timeout       time.Duration `env:"PADDLE_TIMEOUT" envDefault:"15s"`
}

// PaddleProvider implements Provider for Paddle.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	timeout  time.Duration
}

// NewPaddleProvider creates a Paddle billing provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("billing: paddle API key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("billing: paddle webhook secret is required")
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("billing: invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("billing: create paddle client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		timeout:  timeout,
	}, nil
}

// CreateCheckoutSession creates a hosted checkout transaction in Paddle.
// Not retried internally: checkout creation is not idempotent.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.PriceRef == "" {
		return nil, ErrMissingPriceRef
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.PriceRef,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"store_id": params.StoreID,
			"user_id":  params.UserID,
		},
	}
	if params.Email != "" {
		req.CustomData["email"] = params.Email
	}
	if params.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(params.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, classify("create checkout session", err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, &GatewayError{
			Op:        "create checkout session",
			Permanent: true,
			Err:       errors.New("no checkout URL returned"),
		}
	}

	return &CheckoutSession{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		// Paddle checkout links typically expire in 24 hours.
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// CreatePortalSession returns a link to Paddle's customer portal.
func (p *PaddleProvider) CreatePortalSession(ctx context.Context, params PortalParams) (*PortalSession, error) {
	if params.ExternalRef == "" {
		return nil, ErrMissingExternalRef
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx,
		&paddle.CreateCustomerPortalSessionRequest{
			CustomerID:      params.CustomerRef,
			SubscriptionIDs: []string{params.ExternalRef},
		})
	if err != nil {
		return nil, classify("create portal session", err)
	}

	portal := &PortalSession{
		URL: session.URLs.General.Overview,
		// Portal links typically expire in 24 hours.
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	for _, subURL := range session.URLs.Subscriptions {
		if subURL.ID != params.ExternalRef {
			continue
		}
		portal.CancelURL = subURL.CancelSubscription
		portal.UpdatePaymentURL = subURL.UpdateSubscriptionPaymentMethod
		break
	}

	if portal.URL == "" {
		return nil, &GatewayError{
			Op:        "create portal session",
			Permanent: true,
			Err:       errors.New("no portal URL returned"),
		}
	}
	return portal, nil
}

// FetchSubscriptionSnapshot reads the processor's current view of a
// subscription. The read is idempotent, so temporary failures are retried
// with backoff before giving up.
func (p *PaddleProvider) FetchSubscriptionSnapshot(ctx context.Context, externalRef string) (*RemoteSubscription, error) {
	if externalRef == "" {
		return nil, ErrMissingExternalRef
	}

	var remote *RemoteSubscription
	err := retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		sub, err := p.client.SubscriptionsClient.GetSubscription(callCtx, &paddle.GetSubscriptionRequest{
			SubscriptionID: externalRef,
		})
		if err != nil {
			return classify("fetch subscription snapshot", err)
		}
		remote = remoteFromPaddle(sub)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remote, nil
}

func remoteFromPaddle(sub *paddle.Subscription) *RemoteSubscription {
	remote := &RemoteSubscription{
		ExternalRef: sub.ID,
		Status:      string(sub.Status),
		CustomerRef: sub.CustomerID,
	}

	if sub.CurrentBillingPeriod != nil {
		remote.CurrentPeriodEnd = parsePaddleTime(sub.CurrentBillingPeriod.EndsAt)
	}
	if sub.CanceledAt != nil {
		remote.CanceledAt = parsePaddleTime(*sub.CanceledAt)
	}
	if sub.ScheduledChange != nil && sub.ScheduledChange.Action == paddle.ScheduledChangeActionCancel {
		remote.CancelAtPeriodEnd = true
	}
	for _, item := range sub.Items {
		remote.PriceRef = item.Price.ID
		if item.TrialDates != nil {
			remote.TrialEnd = parsePaddleTime(item.TrialDates.EndsAt)
		}
		break
	}

	return remote
}

func parsePaddleTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// ParseWebhook validates the Paddle signature and normalizes the event.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("billing: build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, fmt.Errorf("billing: webhook verification: %w", err)
	}
	if !valid {
		return nil, ErrInvalidWebhookSignature
	}

	var raw struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("billing: parse webhook payload: %w", err)
	}

	event := &WebhookEvent{
		Type:          mapPaddleEventType(raw.EventType),
		ProviderEvent: raw.EventType,
		Raw:           raw.Data,
	}

	if id, ok := raw.Data["id"].(string); ok {
		event.ExternalRef = id
	}
	// Transaction events reference their subscription separately.
	if subID, ok := raw.Data["subscription_id"].(string); ok && subID != "" {
		event.ExternalRef = subID
	}
	if status, ok := raw.Data["status"].(string); ok {
		event.Status = status
	}
	if customData, ok := raw.Data["custom_data"].(map[string]any); ok {
		if storeID, ok := customData["store_id"].(string); ok {
			event.StoreID = storeID
		}
		if userID, ok := customData["user_id"].(string); ok {
			event.UserID = userID
		}
	}
	if items, ok := raw.Data["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			if priceID, ok := item["price_id"].(string); ok {
				event.PriceRef = priceID
			} else if price, ok := item["price"].(map[string]any); ok {
				if priceID, ok := price["id"].(string); ok {
					event.PriceRef = priceID
				}
			}
		}
	}

	return event, nil
}

func mapPaddleEventType(providerEvent string) EventType {
	switch providerEvent {
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionCanceled
	case "subscription.resumed":
		return EventSubscriptionResumed
	case "transaction.completed", "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventType(providerEvent)
	}
}
