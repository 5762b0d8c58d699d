package crawler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// pauseController abstracts how the crawler waits between requests.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PoliteFetcher decorates a raw Fetcher with robots checks, an optional
// global rate ceiling, a fixed politeness delay before every attempt and a
// retry policy for transient failures.
type PoliteFetcher struct {
	next    Fetcher
	delay   time.Duration
	retry   RetryPolicy
	robots  RobotsPolicy
	limiter RateLimiter
	pauser  pauseController
	logger  *zap.Logger
}

// PoliteOption customizes a PoliteFetcher.
type PoliteOption func(*PoliteFetcher)

// WithRobots enables robots.txt checks.
func WithRobots(policy RobotsPolicy) PoliteOption {
	return func(f *PoliteFetcher) { f.robots = policy }
}

// WithRateLimiter adds a global request ceiling on top of the delay.
func WithRateLimiter(limiter RateLimiter) PoliteOption {
	return func(f *PoliteFetcher) { f.limiter = limiter }
}

func withPauser(p pauseController) PoliteOption {
	return func(f *PoliteFetcher) { f.pauser = p }
}

// NewPoliteFetcher wraps next.
func NewPoliteFetcher(next Fetcher, delay time.Duration, retry RetryPolicy, logger *zap.Logger, opts ...PoliteOption) *PoliteFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry == nil {
		retry = NewExponentialRetryPolicy(DefaultMaxAttempts)
	}
	f := &PoliteFetcher{
		next:   next,
		delay:  delay,
		retry:  retry,
		pauser: &timerPauseController{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher.
func (f *PoliteFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		metrics.ObserveRobotsBlocked()
		return Page{}, &FetchError{URL: rawURL, Kind: ErrRobotsDisallowed}
	}
	for attempt := 1; ; attempt++ {
		if err := f.pauser.Pause(ctx, f.delay); err != nil {
			return Page{}, err
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				return Page{}, err
			}
		}

		metrics.IncInFlight()
		page, err := f.next.Fetch(ctx, rawURL)
		metrics.DecInFlight()
		metrics.ObserveFetch(statusOf(page, err), page.Duration)
		if err == nil {
			return page, nil
		}

		if !f.retry.ShouldRetry(err, attempt) {
			return Page{}, err
		}
		wait := f.retry.Backoff(attempt)
		metrics.ObserveRetry()
		f.logger.Warn("Transient fetch failure, backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if perr := f.pauser.Pause(ctx, wait); perr != nil {
			return Page{}, perr
		}
	}
}

func statusOf(page Page, err error) int {
	if err == nil {
		return page.StatusCode
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
