package lifecycle

// Status is a subscription's lifecycle state.
type Status string

const (
	StatusInactive          Status = "inactive"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
)

func (s Status) String() string { return string(s) }

// IsActive reports whether the status counts as an active subscription.
func (s Status) IsActive() bool {
	return s == StatusActive || s == StatusTrialing
}

// Trigger is a named cause of a state transition.
type Trigger string

const (
	TriggerCreate                Trigger = "create"
	TriggerPaymentSucceeded      Trigger = "payment_succeeded"
	TriggerPaymentFailed         Trigger = "payment_failed"
	TriggerTrialEnded            Trigger = "trial_ended"
	TriggerManualCancel          Trigger = "manual_cancel"
	TriggerAutoCancel            Trigger = "auto_cancel"
	TriggerPlanChanged           Trigger = "plan_changed"
	TriggerPaymentRetryFailed    Trigger = "payment_retry_failed"
	TriggerPaymentRetrySucceeded Trigger = "payment_retry_succeeded"
	TriggerReactivate            Trigger = "reactivate"
)

func (t Trigger) String() string { return string(t) }
