package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// Default backoff parameters.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 30 * time.Second
)

// ExponentialRetryPolicy retries transient fetch errors with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	multiplier  float64
	maxDelay    time.Duration
	jitter      bool
}

// RetryOption customizes an ExponentialRetryPolicy.
type RetryOption func(*ExponentialRetryPolicy)

// WithoutJitter makes Backoff deterministic.
func WithoutJitter() RetryOption {
	return func(p *ExponentialRetryPolicy) { p.jitter = false }
}

// WithBackoff overrides the base delay, multiplier and cap.
func WithBackoff(base time.Duration, multiplier float64, maxDelay time.Duration) RetryOption {
	return func(p *ExponentialRetryPolicy) {
		p.baseDelay = base
		p.multiplier = multiplier
		p.maxDelay = maxDelay
	}
}

// NewExponentialRetryPolicy builds a policy allowing maxAttempts total attempts.
func NewExponentialRetryPolicy(maxAttempts int, opts ...RetryOption) *ExponentialRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	p := &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   DefaultBaseDelay,
		multiplier:  DefaultMultiplier,
		maxDelay:    DefaultMaxDelay,
		jitter:      true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the total attempt budget.
func (p *ExponentialRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether attempt (1-based, already made) may be followed
// by another one. Only rate limiting and server errors are retried.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait before attempt+1, where attempt is 1-based.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	if p.jitter {
		delay += float64(p.randomJitter(time.Duration(delay) / 10))
		if delay > float64(p.maxDelay) {
			delay = float64(p.maxDelay)
		}
	}
	return time.Duration(delay)
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
