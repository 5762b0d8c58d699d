// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// DefaultHeaders are sent with every page request.
var DefaultHeaders = http.Header{
	"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
	"Accept-Language": {"en-US,en;q=0.5"},
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
}

// Fetcher performs single HTTP GETs through a Colly collector. Robots,
// pacing and retries are layered on top by crawler.PoliteFetcher.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ crawler.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// fetchOutcome collects what the collector callbacks observed.
type fetchOutcome struct {
	page   crawler.Page
	status int
	err    error
}

// Fetch executes a single HTTP GET. Non-2xx responses and transport
// failures come back as *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	var outcome fetchOutcome
	start := time.Now()
	collector := f.buildCollector(rawURL, start, &outcome)

	if err := f.runCollector(ctx, collector, rawURL); err != nil {
		if ctx.Err() != nil {
			return crawler.Page{}, err
		}
		return crawler.Page{}, classify(rawURL, outcome, err)
	}
	if outcome.err != nil {
		return crawler.Page{}, classify(rawURL, outcome, outcome.err)
	}
	return outcome.page, nil
}

func (f *Fetcher) buildCollector(rawURL string, start time.Time, outcome *fetchOutcome) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	// Retries re-enter with the same URL.
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, rawURL, start, outcome)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, rawURL string, start time.Time, outcome *fetchOutcome) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		page := crawler.Page{
			URL:        rawURL,
			FinalURL:   rawURL,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Headers != nil {
			page.Headers = r.Headers.Clone()
		}
		if r.Request != nil && r.Request.URL != nil {
			page.FinalURL = r.Request.URL.String()
		}
		outcome.page = page
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			outcome.status = r.StatusCode
		}
		outcome.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// classify maps what Colly reported onto the crawler error kinds. A zero
// status means the request never produced a response.
func classify(rawURL string, outcome fetchOutcome, err error) error {
	if outcome.status != 0 {
		fetchErr := crawler.NewStatusError(rawURL, outcome.status)
		fetchErr.Cause = err
		return fetchErr
	}
	return &crawler.FetchError{URL: rawURL, Kind: crawler.ErrFetchFailed, Cause: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
