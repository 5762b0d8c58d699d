// Package cmd defines and implements the CLI commands for the catalog-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
	"github.com/JakeFAU/catalog-crawler/internal/parser"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/catalog-crawler/internal/telemetry"
)

// newCrawlCmd creates the 'crawl' subcommand. It shares the root's flags.
func newCrawlCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the storefront and writes the catalog",
		Long: `Discovers listing and product pages starting from --start, then
fetches every product page with bounded concurrency and writes catalog.jsonl,
catalog.csv and report.json to --out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, v)
		},
	}
}

func runCrawl(cmd *cobra.Command, v *viper.Viper) error {
	logger, err := logging.New(v.GetString("log.level"), v.GetBool("log.development"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	if used := v.ConfigFileUsed(); used != "" {
		logger.Info("Using config file", zap.String("path", used))
	}

	cfg, err := crawler.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("load crawler config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: "catalog-crawler",
		ProjectID:   v.GetString("trace.project_id"),
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	store, err := local.New(local.Config{BaseDir: cfg.OutputDir})
	if err != nil {
		return fmt.Errorf("init output directory: %w", err)
	}
	listing, err := parser.NewListing(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("init listing parser: %w", err)
	}

	exporter, closeExport, err := buildExporter(ctx, v, cfg, store, logger.Named("export"))
	if err != nil {
		return err
	}
	defer closeExport()

	opts := []crawler.EngineOption{crawler.WithIDGenerator(uuid.New())}
	if exporter != nil {
		opts = append(opts, crawler.WithExporter(exporter))
	}
	engine := crawler.NewEngine(
		cfg,
		buildFetcher(cfg, logger),
		listing,
		parser.NewProduct(),
		store,
		store,
		logger.Named("engine"),
		opts...,
	)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if addr := v.GetString("metrics.addr"); addr != "" {
		srv := api.NewServer(engine, logger.Named("api"))
		go func() {
			if err := srv.ListenAndServe(serverCtx, addr); err != nil {
				logger.Error("Status server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Starting crawl",
		zap.String("base_url", cfg.BaseURL),
		zap.String("start", cfg.StartPath),
		zap.String("out", cfg.OutputDir),
		zap.Int("concurrency", cfg.Concurrency),
	)
	runCtx, span := telemetry.Tracer().Start(ctx, "crawl.run")
	report, runErr := engine.Run(runCtx)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.End()
	printSummary(cmd.OutOrStdout(), report, store)

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, crawler.ErrInterrupted):
		logger.Warn("Crawl interrupted; run again without --force to resume", zap.String("state", store.Path(local.StateFile)))
		return runErr
	case errors.Is(runErr, crawler.ErrCorruptState):
		return fmt.Errorf("%w; rerun with --force to start over", runErr)
	default:
		return runErr
	}
}

// buildFetcher stacks robots, rate ceiling, delay and retries on top of the
// raw Colly fetcher.
func buildFetcher(cfg crawler.Config, logger *zap.Logger) crawler.Fetcher {
	raw := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	})
	opts := []crawler.PoliteOption{
		crawler.WithRobots(collyfetcher.NewRobotsPolicy(cfg.RespectRobots, cfg.UserAgent, logger.Named("robots"))),
	}
	if cfg.MaxRPS > 0 {
		opts = append(opts, crawler.WithRateLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.MaxRPS,
			DefaultBurst: 1,
		})))
	}
	return crawler.NewPoliteFetcher(
		raw,
		cfg.Delay,
		crawler.NewExponentialRetryPolicy(cfg.Retries),
		logger.Named("fetcher"),
		opts...,
	)
}

// buildExporter wires the optional GCS upload and Pub/Sub notice. It returns
// a nil exporter when neither is configured.
func buildExporter(
	ctx context.Context,
	v *viper.Viper,
	cfg crawler.Config,
	store *local.Store,
	logger *zap.Logger,
) (crawler.Exporter, func(), error) {
	var (
		exporters crawler.Exporters
		closers   []func()
		locator   pubsubpublisher.Locator = store
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if bucket := v.GetString("export.gcs_bucket"); bucket != "" {
		var clientOpts []option.ClientOption
		if endpoint := v.GetString("export.gcs_endpoint"); endpoint != "" {
			clientOpts = append(clientOpts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
		}
		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, closeAll, fmt.Errorf("init gcs client: %w", err)
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close gcs client", zap.Error(err))
			}
		})
		uploader, err := gcs.New(client, gcs.Config{
			Bucket:    bucket,
			Prefix:    v.GetString("export.gcs_prefix"),
			SourceDir: cfg.OutputDir,
		}, logger)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("init gcs uploader: %w", err)
		}
		verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = uploader.Verify(verifyCtx)
		cancel()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		exporters = append(exporters, uploader)
		locator = uploader
	}

	if topicID := v.GetString("export.pubsub_topic"); topicID != "" {
		project := v.GetString("export.pubsub_project")
		if project == "" {
			closeAll()
			return nil, func() {}, fmt.Errorf("export.pubsub_project is required when export.pubsub_topic is set")
		}
		client, err := pubsub.NewClient(ctx, project)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("init pubsub client: %w", err)
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close pubsub client", zap.Error(err))
			}
		})
		publisher, err := pubsubpublisher.New(client.Topic(topicID), locator, logger)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("init pubsub publisher: %w", err)
		}
		closers = append(closers, publisher.Stop)
		exporters = append(exporters, publisher)
	}

	if len(exporters) == 0 {
		return nil, closeAll, nil
	}
	return exporters, closeAll, nil
}

func printSummary(w io.Writer, report crawler.CrawlReport, store *local.Store) {
	if report.StartedAt.IsZero() {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Crawl summary")
	if report.RunID != "" {
		fmt.Fprintf(w, "  Run ID:      %s\n", report.RunID)
	}
	fmt.Fprintf(w, "  Pages:       %d\n", report.TotalPagesCrawled)
	fmt.Fprintf(w, "  Categories:  %d\n", report.TotalCategoriesFound)
	fmt.Fprintf(w, "  Products:    %d\n", report.TotalProductsFound)
	fmt.Fprintf(w, "  Errors:      %d\n", len(report.Errors))
	if report.CompletedAt != nil {
		fmt.Fprintf(w, "  Duration:    %.1fs\n", report.DurationSeconds)
		fmt.Fprintf(w, "  Catalog:     %s\n", store.Path(local.CatalogJSON))
		fmt.Fprintf(w, "  Report:      %s\n", store.Path(local.ReportFile))
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  Warning:     %s\n", warning)
	}
}
