package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-crawler/pkg/config"
)

// flagKeys maps each CLI flag onto the Viper key it overrides.
var flagKeys = map[string]string{
	"base-url":         "crawler.base_url",
	"start":            "crawler.start",
	"out":              "crawler.out",
	"user-agent":       "crawler.user_agent",
	"concurrency":      "crawler.concurrency",
	"delay":            "crawler.delay",
	"timeout":          "crawler.timeout",
	"retries":          "crawler.retries",
	"max-pages":        "crawler.max_pages",
	"checkpoint-every": "crawler.checkpoint_every",
	"download-images":  "crawler.download_images",
	"force":            "crawler.force",
	"respect-robots":   "crawler.respect_robots",
	"max-rps":          "crawler.max_rps",
	"metrics-addr":     "metrics.addr",
	"gcs-bucket":       "export.gcs_bucket",
	"gcs-prefix":       "export.gcs_prefix",
	"gcs-endpoint":     "export.gcs_endpoint",
	"pubsub-project":   "export.pubsub_project",
	"pubsub-topic":     "export.pubsub_topic",
	"trace-project":    "trace.project_id",
	"log-level":        "log.level",
	"log-development":  "log.development",
}

// newRootCmd creates the root command. Running it without a subcommand
// performs a crawl, so the flat flag surface works directly.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "catalog-crawler",
		Short: "Crawls a storefront and exports its product catalog.",
		Long: `catalog-crawler walks the category and listing pages of a
WooCommerce-style storefront, fetches every product page it discovers and
writes a structured catalog (JSON Lines and CSV) plus a run report.

Interrupted runs checkpoint their progress and resume on the next invocation
unless --force is given.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if _, err := config.InitConfig(v, cfgFile); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, v)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.catalog-crawler/config.yaml)")
	registerFlags(flags)
	if err := bindFlags(v, flags); err != nil {
		panic(err)
	}

	cmd.AddCommand(newCrawlCmd(v))
	return cmd
}

func registerFlags(flags *pflag.FlagSet) {
	flags.String("base-url", config.DefaultBaseURL, "storefront origin")
	flags.String("start", config.DefaultStartPath, "path of the first listing page")
	flags.String("out", config.DefaultOutputDir, "output directory")
	flags.String("user-agent", config.DefaultUserAgent, "User-Agent header sent with every request")
	flags.Int("concurrency", config.DefaultConcurrency, "maximum concurrent product fetches")
	flags.Float64("delay", config.DefaultDelaySeconds, "seconds to wait before every request")
	flags.Float64("timeout", config.DefaultTimeoutSeconds, "per-request timeout in seconds")
	flags.Int("retries", config.DefaultRetries, "attempts per URL for rate-limited or server errors")
	flags.Int("max-pages", 0, "stop discovery after this many listing pages (0 = unbounded)")
	flags.Int("checkpoint-every", config.DefaultCheckpointEvery, "save crawl state every N discovery pages")
	flags.Bool("download-images", false, "reserved; currently has no effect")
	flags.Bool("force", false, "ignore and discard saved crawl state")
	flags.Bool("respect-robots", true, "honor robots.txt")
	flags.Float64("max-rps", 0, "global requests-per-second ceiling (0 = off)")
	flags.String("metrics-addr", "", "serve /metrics and /v1/status on this address while crawling")
	flags.String("gcs-bucket", "", "upload outputs to this GCS bucket after a successful run")
	flags.String("gcs-prefix", "catalog", "object prefix inside the bucket")
	flags.String("gcs-endpoint", "", "override the GCS endpoint (emulators)")
	flags.String("pubsub-project", "", "GCP project of the completion topic")
	flags.String("pubsub-topic", "", "publish a catalog-ready message to this topic")
	flags.String("trace-project", "", "export spans to Cloud Trace in this project")
	flags.String("log-level", config.DefaultLogLevel, "debug, info, warn or error")
	flags.Bool("log-development", false, "human-readable console logs")
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %q is not registered", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Execute is the main entry point. Any error exits non-zero.
func Execute() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}
