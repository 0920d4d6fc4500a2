package subscription

import (
	"context"

	"github.com/dmitrymomot/catalogkit/pkg/billing"
	"github.com/dmitrymomot/catalogkit/pkg/datastore"
	"github.com/dmitrymomot/catalogkit/pkg/eventstore"
	"github.com/dmitrymomot/catalogkit/pkg/lifecycle"
	"github.com/dmitrymomot/catalogkit/pkg/logger"
)

// HandleWebhook verifies and parses a billing processor webhook, then
// reconciles the local subscription by driving the matching lifecycle
// trigger. Reconciliation is idempotent: when the local status already
// matches the processor's view, nothing is appended. Events for
// subscriptions this service does not know are logged and dropped, so
// webhook delivery can always be acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	if s.billing == nil {
		return nil, ErrBillingNotConfigured
	}

	event, err := s.billing.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return nil, err
	}

	desired, relevant := desiredStatus(event)
	if !relevant {
		return event, nil
	}

	state, err := s.resolveWebhookState(ctx, event)
	if err != nil {
		return nil, err
	}
	if state == nil {
		s.log.WarnContext(ctx, "webhook for unknown subscription dropped",
			logger.Component("subscription"),
			logger.StoreID(event.StoreID),
			logger.EventType(string(event.Type)),
		)
		return event, nil
	}

	if event.ExternalRef != "" {
		s.rememberExternalRef(ctx, state.SubscriptionID, event.ExternalRef)
	}

	current := lifecycle.Status(state.Status)
	if current == desired {
		return event, nil
	}

	trigger, ok := triggerFor(s.engine.Graph(), current, desired)
	if !ok {
		s.log.WarnContext(ctx, "no lifecycle path for webhook reconciliation",
			logger.Component("subscription"),
			logger.SubscriptionID(state.SubscriptionID),
			logger.Transition(current.String(), desired.String()),
			logger.EventType(string(event.Type)),
		)
		return event, nil
	}

	meta := lifecycle.Meta{"source": "webhook"}
	if event.StoreID != "" {
		meta["store_id"] = event.StoreID
	} else if state.StoreID != "" {
		meta["store_id"] = state.StoreID
	}
	if event.UserID != "" {
		meta["user_id"] = event.UserID
	}
	if desired == lifecycle.StatusCanceled {
		meta["reason"] = "canceled at billing processor"
	}

	if _, err := s.Transition(ctx, state.SubscriptionID, trigger, meta); err != nil {
		return nil, err
	}

	outcome := "success"
	if desired == lifecycle.StatusPastDue || desired == lifecycle.StatusUnpaid {
		outcome = "failure"
	}
	if event.Type == billing.EventPaymentSucceeded || event.Type == billing.EventPaymentFailed {
		s.mtr.ObservePayment(outcome)
	}
	return event, nil
}

// desiredStatus maps a normalized processor event to the local status it
// implies. Events without a lifecycle meaning report false.
func desiredStatus(event *billing.WebhookEvent) (lifecycle.Status, bool) {
	switch event.Type {
	case billing.EventPaymentSucceeded, billing.EventSubscriptionResumed:
		return lifecycle.StatusActive, true
	case billing.EventPaymentFailed:
		return lifecycle.StatusPastDue, true
	case billing.EventSubscriptionCanceled:
		return lifecycle.StatusCanceled, true
	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated:
		if s := remoteStatus(event.Status); s != "" {
			return s, true
		}
		return "", false
	default:
		return "", false
	}
}

// remoteStatus translates the processor's status vocabulary to ours.
func remoteStatus(status string) lifecycle.Status {
	switch status {
	case "trialing":
		return lifecycle.StatusTrialing
	case "active":
		return lifecycle.StatusActive
	case "past_due":
		return lifecycle.StatusPastDue
	case "paused", "unpaid":
		return lifecycle.StatusUnpaid
	case "canceled":
		return lifecycle.StatusCanceled
	default:
		return ""
	}
}

// reconcileTriggers lists, per desired status, the triggers to try in order.
// The first one legal from the current status wins.
var reconcileTriggers = map[lifecycle.Status][]lifecycle.Trigger{
	lifecycle.StatusActive: {
		lifecycle.TriggerPaymentSucceeded,
		lifecycle.TriggerPaymentRetrySucceeded,
		lifecycle.TriggerReactivate,
		lifecycle.TriggerTrialEnded,
	},
	lifecycle.StatusPastDue: {
		lifecycle.TriggerPaymentFailed,
	},
	lifecycle.StatusUnpaid: {
		lifecycle.TriggerPaymentRetryFailed,
		lifecycle.TriggerPaymentFailed,
	},
	lifecycle.StatusCanceled: {
		lifecycle.TriggerAutoCancel,
		// Portal-driven cancellation arrives as a webhook but is
		// user-initiated, so manual cancel is a legitimate fallback.
		lifecycle.TriggerManualCancel,
	},
	lifecycle.StatusIncomplete: {
		lifecycle.TriggerTrialEnded,
	},
}

func triggerFor(graph lifecycle.Graph, current, desired lifecycle.Status) (lifecycle.Trigger, bool) {
	for _, trigger := range reconcileTriggers[desired] {
		if target, ok := graph.Target(current, trigger); ok && target == desired {
			return trigger, true
		}
	}
	return "", false
}

// resolveWebhookState finds the local subscription the event refers to,
// first by the stored external reference, then by the tenant store id
// carried in the processor's custom data.
func (s *Service) resolveWebhookState(ctx context.Context, event *billing.WebhookEvent) (*eventstore.ProjectedState, error) {
	if event.ExternalRef != "" {
		rows, err := s.rows.Select(ctx, s.subscriptions,
			datastore.Match{"external_ref": event.ExternalRef}, datastore.WithLimit(1))
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			if id, _ := rows[0]["id"].(string); id != "" {
				return s.stateBySubscription(ctx, id)
			}
		}
	}

	if event.StoreID != "" {
		if state, ok := s.cache.getByStore(event.StoreID); ok {
			return state, nil
		}
		state, err := s.events.SnapshotByStore(ctx, event.StoreID)
		if err != nil {
			return nil, err
		}
		if state != nil {
			s.cache.put(state)
		}
		return state, nil
	}

	return nil, nil
}

// rememberExternalRef stores the processor's subscription id on the mirror
// row so later webhooks resolve without custom data. Best effort.
func (s *Service) rememberExternalRef(ctx context.Context, subscriptionID, externalRef string) {
	_, err := s.rows.Update(ctx, s.subscriptions,
		datastore.Match{"id": subscriptionID},
		datastore.Row{"external_ref": externalRef})
	if err != nil {
		s.log.WarnContext(ctx, "storing external billing reference failed",
			logger.Component("subscription"),
			logger.SubscriptionID(subscriptionID),
			logger.Error(err),
		)
	}
}
