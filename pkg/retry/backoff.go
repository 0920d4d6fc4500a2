package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines the interface for calculating retry delays.
// Implementations should be safe for concurrent use.
type BackoffStrategy interface {
	// NextInterval returns the next backoff duration based on the attempt number.
	// Attempt starts at 1 for the first retry.
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter.
// Jitter prevents thundering herd when multiple clients retry simultaneously.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval calculates exponential backoff with jitter.
// Formula: min(InitialInterval * (Multiplier ^ (attempt-1)) * (1 ± JitterFactor), MaxInterval)
func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = time.Second
	}

	max := e.MaxInterval
	if max == 0 {
		max = 30 * time.Second
	}

	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	// Zero jitter is intentionally allowed for deterministic behavior
	jitter := e.JitterFactor

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	if jitter > 0 {
		randomJitter := (rand.Float64()*2 - 1) * jitter
		interval = interval * (1 + randomJitter)
	}

	if interval > float64(max) {
		interval = float64(max)
	}

	return time.Duration(interval)
}

// LinearBackoff implements simple linear backoff without jitter.
type LinearBackoff struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

// NextInterval returns linearly increasing delays.
// Formula: min(Interval * attempt, MaxInterval)
func (l LinearBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := l.Interval
	if interval == 0 {
		interval = time.Second
	}

	max := l.MaxInterval
	if max == 0 {
		max = 30 * time.Second
	}

	delay := interval * time.Duration(attempt)
	if delay > max {
		delay = max
	}

	return delay
}

// FixedBackoff implements a constant delay between retries.
type FixedBackoff struct {
	// Interval is the fixed delay between retries
	Interval time.Duration
}

// NextInterval always returns the same interval regardless of attempt number.
func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoffStrategy returns production-ready exponential backoff.
// Balances quick recovery with protection against overloading failing services.
func DefaultBackoffStrategy() BackoffStrategy {
	return ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}
