package utils

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy decides how long a worker pauses after consecutive
// failed evaluations
type BackoffStrategy interface {
	// NextDelay returns the delay for the given attempt number (0-indexed)
	NextDelay(attempt int) time.Duration
}

// NoBackoff never waits
type NoBackoff struct{}

// NextDelay always returns zero
func (NoBackoff) NextDelay(int) time.Duration { return 0 }

// ConstantBackoff waits the same amount after every failure
type ConstantBackoff struct {
	Delay time.Duration
}

// NewConstantBackoff creates a new constant backoff strategy
func NewConstantBackoff(delay time.Duration) *ConstantBackoff {
	return &ConstantBackoff{Delay: delay}
}

// NextDelay returns the constant delay
func (cb *ConstantBackoff) NextDelay(int) time.Duration {
	return cb.Delay
}

// LinearBackoff grows the delay by BaseDelay per attempt up to MaxDelay
type LinearBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NewLinearBackoff creates a new linear backoff strategy
func NewLinearBackoff(baseDelay, maxDelay time.Duration) *LinearBackoff {
	return &LinearBackoff{BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// NextDelay returns the linearly increasing delay
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	delay := lb.BaseDelay * time.Duration(attempt+1)
	if delay > lb.MaxDelay {
		return lb.MaxDelay
	}
	return delay
}

// ExponentialBackoff multiplies the delay on every attempt, optionally with jitter
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     bool
}

// NewExponentialBackoff creates a new exponential backoff strategy
func NewExponentialBackoff(baseDelay, maxDelay time.Duration, multiplier float64, jitter bool) *ExponentialBackoff {
	if multiplier <= 0 {
		multiplier = 2.0
	}
	return &ExponentialBackoff{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
		Jitter:     jitter,
	}
}

// NextDelay returns the exponentially increasing delay
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	if eb.Jitter {
		// between 0.5*delay and 1.5*delay
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// BackoffFromConfig creates a backoff strategy from config parameters
func BackoffFromConfig(backoffType string, baseMs int, maxMs int) BackoffStrategy {
	baseDelay := time.Duration(baseMs) * time.Millisecond
	maxDelay := time.Duration(maxMs) * time.Millisecond
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}

	switch backoffType {
	case "none":
		return NoBackoff{}
	case "constant":
		return NewConstantBackoff(baseDelay)
	case "linear":
		return NewLinearBackoff(baseDelay, maxDelay)
	default:
		return NewExponentialBackoff(baseDelay, maxDelay, 2.0, true)
	}
}

// Pause sleeps for the strategy's delay or until done is closed, whichever
// comes first. It reports false when interrupted.
func Pause(strategy BackoffStrategy, attempt int, done <-chan struct{}) bool {
	if strategy == nil {
		return true
	}
	delay := strategy.NextDelay(attempt)
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-done:
		return false
	}
}
