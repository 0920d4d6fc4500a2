package billing_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/catalogkit/pkg/billing"
)

const testWebhookSecret = "pdl_ntfset_test_secret"

func newTestProvider(t *testing.T) *billing.PaddleProvider {
	t.Helper()
	provider, err := billing.NewPaddleProvider(billing.PaddleConfig{
		APIKey:        "test_api_key",
		WebhookSecret: testWebhookSecret,
		Environment:   "sandbox",
	})
	require.NoError(t, err)
	return provider
}

// signPayload produces a Paddle-Signature header value for the payload:
// ts=<unix>;h1=<hex hmac-sha256 over "<unix>:<payload>">.
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d:%s", ts, payload)
	return fmt.Sprintf("ts=%d;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestNewPaddleProvider(t *testing.T) {
	t.Parallel()

	t.Run("requires api key", func(t *testing.T) {
		t.Parallel()
		_, err := billing.NewPaddleProvider(billing.PaddleConfig{WebhookSecret: "s"})
		assert.Error(t, err)
	})

	t.Run("requires webhook secret", func(t *testing.T) {
		t.Parallel()
		_, err := billing.NewPaddleProvider(billing.PaddleConfig{APIKey: "k"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown environment", func(t *testing.T) {
		t.Parallel()
		_, err := billing.NewPaddleProvider(billing.PaddleConfig{
			APIKey:        "k",
			WebhookSecret: "s",
			Environment:   "staging",
		})
		assert.Error(t, err)
	})
}

func TestPaddleProvider_Validation(t *testing.T) {
	t.Parallel()

	provider := newTestProvider(t)
	ctx := context.Background()

	t.Run("checkout requires price ref", func(t *testing.T) {
		t.Parallel()
		_, err := provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
			StoreID: "store-1",
			UserID:  "user-1",
		})
		assert.ErrorIs(t, err, billing.ErrMissingPriceRef)
	})

	t.Run("portal requires external ref", func(t *testing.T) {
		t.Parallel()
		_, err := provider.CreatePortalSession(ctx, billing.PortalParams{
			CustomerRef: "ctm_123",
		})
		assert.ErrorIs(t, err, billing.ErrMissingExternalRef)
	})

	t.Run("snapshot fetch requires external ref", func(t *testing.T) {
		t.Parallel()
		_, err := provider.FetchSubscriptionSnapshot(ctx, "")
		assert.ErrorIs(t, err, billing.ErrMissingExternalRef)
	})
}

func TestPaddleProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	provider := newTestProvider(t)
	ctx := context.Background()

	t.Run("rejects invalid signature", func(t *testing.T) {
		t.Parallel()
		payload := []byte(`{"event_type":"subscription.created","data":{}}`)
		_, err := provider.ParseWebhook(ctx, payload, signPayload(payload, "wrong_secret"))
		assert.ErrorIs(t, err, billing.ErrInvalidWebhookSignature)
	})

	t.Run("rejects tampered payload", func(t *testing.T) {
		t.Parallel()
		payload := []byte(`{"event_type":"subscription.created","data":{}}`)
		sig := signPayload(payload, testWebhookSecret)
		tampered := []byte(`{"event_type":"subscription.canceled","data":{}}`)
		_, err := provider.ParseWebhook(ctx, tampered, sig)
		assert.ErrorIs(t, err, billing.ErrInvalidWebhookSignature)
	})

	t.Run("normalizes subscription event", func(t *testing.T) {
		t.Parallel()
		payload := []byte(`{
			"event_id": "evt_123",
			"event_type": "subscription.created",
			"data": {
				"id": "sub_abc",
				"status": "trialing",
				"custom_data": {"store_id": "store-7", "user_id": "user-42"},
				"items": [{"price": {"id": "pri_pro_monthly"}}]
			}
		}`)

		event, err := provider.ParseWebhook(ctx, payload, signPayload(payload, testWebhookSecret))
		require.NoError(t, err)

		assert.Equal(t, billing.EventSubscriptionCreated, event.Type)
		assert.Equal(t, "subscription.created", event.ProviderEvent)
		assert.Equal(t, "sub_abc", event.ExternalRef)
		assert.Equal(t, "trialing", event.Status)
		assert.Equal(t, "store-7", event.StoreID)
		assert.Equal(t, "user-42", event.UserID)
		assert.Equal(t, "pri_pro_monthly", event.PriceRef)
	})

	t.Run("transaction event resolves subscription ref", func(t *testing.T) {
		t.Parallel()
		payload := []byte(`{
			"event_type": "transaction.payment_failed",
			"data": {
				"id": "txn_001",
				"subscription_id": "sub_abc",
				"custom_data": {"store_id": "store-7"},
				"items": [{"price_id": "pri_pro_monthly"}]
			}
		}`)

		event, err := provider.ParseWebhook(ctx, payload, signPayload(payload, testWebhookSecret))
		require.NoError(t, err)

		assert.Equal(t, billing.EventPaymentFailed, event.Type)
		assert.Equal(t, "sub_abc", event.ExternalRef)
		assert.Equal(t, "pri_pro_monthly", event.PriceRef)
	})

	t.Run("unknown event type passes through", func(t *testing.T) {
		t.Parallel()
		payload := []byte(`{"event_type":"address.created","data":{"id":"add_1"}}`)

		event, err := provider.ParseWebhook(ctx, payload, signPayload(payload, testWebhookSecret))
		require.NoError(t, err)
		assert.Equal(t, billing.EventType("address.created"), event.Type)
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		t.Parallel()
		payload := []byte(`{not json`)
		_, err := provider.ParseWebhook(ctx, payload, signPayload(payload, testWebhookSecret))
		assert.Error(t, err)
		assert.NotErrorIs(t, err, billing.ErrInvalidWebhookSignature)
	})
}

func TestGatewayError(t *testing.T) {
	t.Parallel()

	t.Run("temporary by default", func(t *testing.T) {
		t.Parallel()
		err := &billing.GatewayError{Op: "fetch", Err: errors.New("connection reset")}
		assert.True(t, err.Temporary())
		assert.ErrorContains(t, err, "fetch failed")
	})

	t.Run("permanent card failure", func(t *testing.T) {
		t.Parallel()
		err := &billing.GatewayError{Op: "checkout", Permanent: true, Err: errors.New("card declined")}
		assert.False(t, err.Temporary())
	})

	t.Run("unwraps cause", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("boom")
		wrapped := &billing.GatewayError{Op: "portal", Err: cause}
		assert.ErrorIs(t, wrapped, cause)
	})

	t.Run("extracts from chain", func(t *testing.T) {
		t.Parallel()
		inner := &billing.GatewayError{Op: "fetch", Permanent: true, Err: errors.New("insufficient_funds")}
		wrapped := fmt.Errorf("refresh subscription: %w", inner)

		ge, ok := billing.IsGatewayError(wrapped)
		require.True(t, ok)
		assert.Equal(t, "fetch", ge.Op)
		assert.False(t, ge.Temporary())

		_, ok = billing.IsGatewayError(errors.New("plain"))
		assert.False(t, ok)
	})
}
