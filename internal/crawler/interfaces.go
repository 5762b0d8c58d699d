package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves one URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// ListingParser extracts links from category and listing pages.
type ListingParser interface {
	ParseListing(html, currentURL string) (ListingResult, error)
	IsProductPage(html string) bool
}

// ProductParser converts a product page into a Product.
type ProductParser interface {
	ParseProduct(html, productURL string) (Product, error)
}

// StateStore persists the frontier checkpoint. Load returns (nil, nil) when
// no checkpoint exists.
type StateStore interface {
	LoadState(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, state State) error
	DeleteState(ctx context.Context) error
}

// ResultWriter serializes the final outputs.
type ResultWriter interface {
	WriteCatalog(ctx context.Context, products []Product) error
	WriteReport(ctx context.Context, report CrawlReport) error
}

// Exporter ships finished outputs somewhere downstream.
type Exporter interface {
	Export(ctx context.Context, report CrawlReport) error
}

// Exporters runs each exporter in order and stops at the first failure.
type Exporters []Exporter

// Export implements Exporter.
func (xs Exporters) Export(ctx context.Context, report CrawlReport) error {
	for _, x := range xs {
		if err := x.Export(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

// RobotsPolicy decides whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RateLimiter blocks until a request to rawURL may proceed.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RetryPolicy decides whether and when to retry a failed fetch.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
