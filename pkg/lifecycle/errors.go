package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrSubscriptionNotFound is returned when a non-create trigger targets
	// a subscription with no event history.
	ErrSubscriptionNotFound = errors.New("lifecycle: subscription not found")

	// ErrMissingSubscriptionID is returned when a call lacks the subscription id.
	ErrMissingSubscriptionID = errors.New("lifecycle: subscription id is required")
)

// TransitionNotAllowedError indicates the (status, trigger) pair is not in
// the transition table. The stored status is guaranteed untouched.
type TransitionNotAllowedError struct {
	Status  Status
	Trigger Trigger
}

func (e *TransitionNotAllowedError) Error() string {
	return fmt.Sprintf("lifecycle: transition not allowed from status %q for trigger %q", e.Status, e.Trigger)
}

// IsTransitionNotAllowed extracts a TransitionNotAllowedError from an error chain.
func IsTransitionNotAllowed(err error) (*TransitionNotAllowedError, bool) {
	var e *TransitionNotAllowedError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
