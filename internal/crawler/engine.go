package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Engine drives the two-phase crawl: sequential discovery of listing pages
// followed by a bounded-concurrency fetch of every known product page.
type Engine struct {
	cfg      Config
	fetcher  Fetcher
	listing  ListingParser
	products ProductParser
	state    StateStore
	results  ResultWriter
	exporter Exporter
	clock    Clock
	ids      IDGenerator
	logger   *zap.Logger

	frontier *Frontier
	resumed  bool

	mu        sync.Mutex
	phase     Phase
	report    CrawlReport
	collected []Product
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithExporter ships outputs after a successful run.
func WithExporter(exp Exporter) EngineOption {
	return func(e *Engine) { e.exporter = exp }
}

// WithClock overrides the time source.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator sets the generator used for run IDs.
func WithIDGenerator(ids IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = ids }
}

// NewEngine wires the collaborators for one crawl run.
func NewEngine(
	cfg Config,
	fetcher Fetcher,
	listing ListingParser,
	products ProductParser,
	state StateStore,
	results ResultWriter,
	logger *zap.Logger,
	opts ...EngineOption,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		listing:  listing,
		products: products,
		state:    state,
		results:  results,
		clock:    system.New(),
		logger:   logger,
		frontier: NewFrontier(),
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status is a point-in-time view of a running crawl.
type Status struct {
	Phase           Phase       `json:"phase"`
	PagesCrawled    int         `json:"pagesCrawled"`
	CategoriesFound int         `json:"categoriesFound"`
	ProductURLs     int         `json:"productUrls"`
	Pending         int         `json:"pending"`
	ProductsParsed  int         `json:"productsParsed"`
	Resumed         bool        `json:"resumed"`
	Errors          int         `json:"errors"`
	RunID           string      `json:"runId"`
	StartedAt       time.Time   `json:"startedAt"`
	LastErrors      []PageError `json:"lastErrors,omitempty"`
}

// Status returns a snapshot safe to call from other goroutines.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	last := e.report.Errors
	if len(last) > 5 {
		last = last[len(last)-5:]
	}
	return Status{
		Phase:           e.phase,
		PagesCrawled:    e.report.TotalPagesCrawled,
		CategoriesFound: e.report.TotalCategoriesFound,
		ProductURLs:     len(e.frontier.productList),
		Pending:         e.frontier.PendingLen(),
		ProductsParsed:  len(e.collected),
		Resumed:         e.resumed,
		Errors:          len(e.report.Errors),
		RunID:           e.report.RunID,
		StartedAt:       e.report.StartedAt,
		LastErrors:      append([]PageError(nil), last...),
	}
}

// Run executes the crawl. On interruption it persists the frontier and
// returns an error wrapping ErrInterrupted.
func (e *Engine) Run(ctx context.Context) (CrawlReport, error) {
	if err := e.cfg.Validate(); err != nil {
		return CrawlReport{}, fmt.Errorf("invalid crawler config: %w", err)
	}
	e.begin()

	if err := e.initFrontier(ctx); err != nil {
		return e.snapshotReport(), err
	}

	e.setPhase(PhaseDiscovering)
	if err := e.discover(ctx); err != nil {
		return e.interrupt(ctx, err)
	}

	productURLs := e.productURLs()
	if len(productURLs) == 0 && e.pagesCrawled() == 0 {
		return e.snapshotReport(), e.nothingDiscovered()
	}
	e.logger.Info("Discovery complete", zap.Int("products", len(productURLs)), zap.Int("pages", e.pagesCrawled()))

	e.setPhase(PhaseFetchingProducts)
	e.fetchProducts(ctx, productURLs)
	if err := ctx.Err(); err != nil {
		return e.interrupt(ctx, err)
	}

	e.setPhase(PhaseWritingResults)
	report, err := e.writeResults(ctx)
	if err != nil {
		return report, err
	}

	if err := e.state.DeleteState(ctx); err != nil {
		e.logger.Warn("Failed to remove crawl state", zap.Error(err))
	}

	if e.exporter != nil {
		if err := e.exporter.Export(ctx, report); err != nil {
			e.logger.Error("Export failed; local outputs are intact", zap.Error(err))
		}
	}

	e.setPhase(PhaseDone)
	return report, nil
}

func (e *Engine) begin() {
	runID := ""
	if e.ids != nil {
		id, err := e.ids.NewID()
		if err != nil {
			e.logger.Warn("Failed to generate run id", zap.Error(err))
		} else {
			runID = id
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report = CrawlReport{
		RunID:     runID,
		BaseURL:   e.cfg.BaseURL,
		StartPath: e.cfg.StartPath,
		Errors:    []PageError{},
		Warnings:  []string{},
		Settings:  e.cfg.Settings(),
		StartedAt: e.clock.Now().UTC(),
	}
	e.collected = nil
	e.resumed = false
	if e.cfg.DownloadImages {
		e.report.Warnings = append(e.report.Warnings, "download-images is reserved and currently has no effect")
	}
}

func (e *Engine) initFrontier(ctx context.Context) error {
	if e.cfg.Force {
		if err := e.state.DeleteState(ctx); err != nil {
			return fmt.Errorf("discard saved state: %w", err)
		}
	} else {
		saved, err := e.state.LoadState(ctx)
		if err != nil {
			return fmt.Errorf("load crawl state: %w", err)
		}
		if saved != nil {
			e.mu.Lock()
			e.frontier.Restore(*saved)
			e.resumed = true
			e.mu.Unlock()
			e.logger.Info("Resuming crawl",
				zap.Int("visited", len(saved.VisitedURLs)),
				zap.Int("pending", len(saved.PendingURLs)),
				zap.Int("products", len(saved.ProductURLs)),
			)
			return nil
		}
	}

	start, err := e.cfg.StartURL()
	if err != nil {
		return fmt.Errorf("resolve start url: %w", err)
	}
	e.mu.Lock()
	e.frontier.Enqueue(start)
	e.mu.Unlock()
	return nil
}

// discover processes the pending queue one URL at a time.
func (e *Engine) discover(ctx context.Context) error {
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.cfg.MaxPages > 0 && pages >= e.cfg.MaxPages {
			e.mu.Lock()
			left := e.frontier.PendingLen()
			e.mu.Unlock()
			if left > 0 {
				e.logger.Info("Reached max pages limit", zap.Int("max_pages", e.cfg.MaxPages), zap.Int("pending", left))
				e.warn(fmt.Sprintf("discovery stopped at max-pages limit %d with %d URLs pending", e.cfg.MaxPages, left))
			}
			return nil
		}

		e.mu.Lock()
		url, ok := e.frontier.Next()
		e.mu.Unlock()
		if !ok {
			return nil
		}

		page, err := e.fetcher.Fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				e.mu.Lock()
				e.frontier.Requeue(url)
				e.mu.Unlock()
				return ctx.Err()
			}
			e.logger.Error("Error crawling page", zap.String("url", url), zap.Error(err))
			e.recordError(url, err)
			continue
		}

		pages++
		e.handleDiscoveryPage(url, page)

		if pages%e.cfg.CheckpointEvery == 0 {
			if err := e.saveState(ctx); err != nil {
				e.logger.Warn("Checkpoint failed", zap.Error(err))
			}
		}
	}
}

func (e *Engine) handleDiscoveryPage(url string, page Page) {
	base := page.FinalURL
	if base == "" {
		base = url
	}
	html := page.HTML()

	if e.listing.IsProductPage(html) {
		e.mu.Lock()
		e.frontier.MarkVisited(url)
		e.report.TotalPagesCrawled++
		e.frontier.AddProductURL(url)
		e.mu.Unlock()
		metrics.ObserveDiscoveryPage("product")
		return
	}

	result, err := e.listing.ParseListing(html, base)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.frontier.MarkVisited(url)
	e.report.TotalPagesCrawled++
	metrics.ObserveDiscoveryPage("listing")
	if err != nil {
		e.logger.Error("Error parsing listing page", zap.String("url", url), zap.Error(err))
		e.report.Errors = append(e.report.Errors, PageError{URL: url, Error: err.Error()})
		return
	}

	for _, productURL := range result.ProductURLs {
		e.frontier.AddProductURL(productURL)
	}
	for _, categoryURL := range result.CategoryURLs {
		if e.frontier.Enqueue(categoryURL) {
			e.report.TotalCategoriesFound++
		}
	}
	for _, pageURL := range result.PaginationURLs {
		e.frontier.Enqueue(pageURL)
	}
	if result.NextPageURL != "" {
		e.frontier.Enqueue(result.NextPageURL)
	}
	metrics.SetFrontier(e.frontier.PendingLen(), len(e.frontier.productList))
	e.logger.Debug("Listing page parsed",
		zap.String("url", url),
		zap.Int("products", len(result.ProductURLs)),
		zap.Int("categories", len(result.CategoryURLs)),
		zap.Int("pagination", len(result.PaginationURLs)),
	)
}

// fetchProducts fans out one fetch+parse per URL, at most Concurrency at a
// time. Failures are isolated per product.
func (e *Engine) fetchProducts(ctx context.Context, urls []string) {
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.fetchProduct(ctx, url)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) fetchProduct(ctx context.Context, url string) {
	if ctx.Err() != nil {
		return
	}
	page, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error("Error fetching product", zap.String("url", url), zap.Error(err))
		metrics.ObserveProduct("failed")
		e.recordError(url, err)
		return
	}

	product, err := e.products.ParseProduct(page.HTML(), url)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frontier.MarkVisited(url)
	if err != nil {
		e.logger.Error("Error parsing product", zap.String("url", url), zap.Error(err))
		metrics.ObserveProduct("failed")
		e.report.Errors = append(e.report.Errors, PageError{URL: url, Error: err.Error()})
		return
	}
	if product.TimestampCollected.IsZero() {
		product.TimestampCollected = e.clock.Now().UTC()
	}
	metrics.ObserveProduct("parsed")
	e.collected = append(e.collected, product)
}

func (e *Engine) writeResults(ctx context.Context) (CrawlReport, error) {
	e.mu.Lock()
	products := append([]Product(nil), e.collected...)
	completed := e.clock.Now().UTC()
	e.report.CompletedAt = &completed
	e.report.DurationSeconds = completed.Sub(e.report.StartedAt).Seconds()
	e.report.TotalProductsFound = len(products)
	e.mu.Unlock()

	if err := e.results.WriteCatalog(ctx, products); err != nil {
		return e.snapshotReport(), fmt.Errorf("write catalog: %w", err)
	}
	e.logger.Info("Saved catalog", zap.Int("products", len(products)))

	report := e.snapshotReport()
	if err := e.results.WriteReport(ctx, report); err != nil {
		return report, fmt.Errorf("write report: %w", err)
	}
	return report, nil
}

// interrupt flushes the frontier synchronously before reporting cause.
func (e *Engine) interrupt(ctx context.Context, cause error) (CrawlReport, error) {
	e.setPhase(PhaseInterrupted)
	flushCtx := context.WithoutCancel(ctx)
	if err := e.saveState(flushCtx); err != nil {
		e.logger.Error("Failed to save crawl state on interrupt", zap.Error(err))
		return e.snapshotReport(), errors.Join(fmt.Errorf("%w: %w", ErrInterrupted, cause), err)
	}
	status := e.Status()
	e.logger.Warn("Crawl interrupted; state saved for resume",
		zap.Int("pending", status.Pending),
		zap.Int("products", status.ProductURLs),
	)
	return e.snapshotReport(), fmt.Errorf("%w: %w", ErrInterrupted, cause)
}

func (e *Engine) nothingDiscovered() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.report.Errors) > 0 {
		first := e.report.Errors[0]
		return fmt.Errorf("%w: %s: %s", ErrNothingDiscovered, first.URL, first.Error)
	}
	return ErrNothingDiscovered
}

func (e *Engine) saveState(ctx context.Context) error {
	e.mu.Lock()
	snapshot := e.frontier.Snapshot(e.clock.Now())
	e.mu.Unlock()
	if err := e.state.SaveState(ctx, snapshot); err != nil {
		return fmt.Errorf("save crawl state: %w", err)
	}
	return nil
}

func (e *Engine) recordError(url string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report.Errors = append(e.report.Errors, PageError{URL: url, Error: err.Error()})
}

func (e *Engine) warn(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report.Warnings = append(e.report.Warnings, msg)
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
	e.logger.Debug("Phase changed", zap.String("phase", string(p)))
}

func (e *Engine) productURLs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frontier.ProductURLs()
}

func (e *Engine) pagesCrawled() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report.TotalPagesCrawled
}

func (e *Engine) snapshotReport() CrawlReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.report
	r.Errors = append([]PageError{}, e.report.Errors...)
	r.Warnings = append([]string{}, e.report.Warnings...)
	return r
}
