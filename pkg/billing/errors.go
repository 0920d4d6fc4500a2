package billing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingPriceRef is returned when checkout is requested without a price.
	ErrMissingPriceRef = errors.New("billing: price reference is required")

	// ErrMissingExternalRef is returned when a call lacks the processor's
	// subscription id.
	ErrMissingExternalRef = errors.New("billing: external subscription reference is required")

	// ErrInvalidWebhookSignature is returned when signature verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: webhook signature verification failed")
)

// GatewayError wraps a processor failure with its retry classification.
// Card-level failures are permanent; connection and API failures are
// temporary.
type GatewayError struct {
	Op        string
	Permanent bool
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("billing: %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Temporary reports whether the failure may resolve on retry.
func (e *GatewayError) Temporary() bool { return !e.Permanent }

// IsGatewayError extracts a GatewayError from an error chain.
func IsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// permanentPaymentMarkers identify card-level failures that retrying
// cannot fix.
var permanentPaymentMarkers = []string{
	"declined",
	"card_expired",
	"expired card",
	"insufficient_funds",
	"insufficient funds",
	"invalid_card",
	"blocked_card",
}

// classify wraps a processor error with its retry classification.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentPaymentMarkers {
		if strings.Contains(msg, marker) {
			return &GatewayError{Op: op, Permanent: true, Err: err}
		}
	}
	return &GatewayError{Op: op, Permanent: false, Err: err}
}
