// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Defaults shared by the flag definitions and Viper.
const (
	DefaultBaseURL         = "https://vanleeuwenicecream.com"
	DefaultStartPath       = "/store/"
	DefaultOutputDir       = "./out"
	DefaultConcurrency     = 5
	DefaultDelaySeconds    = 0.5
	DefaultTimeoutSeconds  = 30.0
	DefaultRetries         = 3
	DefaultCheckpointEvery = 10
	DefaultUserAgent       = "CatalogCrawler/1.0 (+https://github.com/JakeFAU/catalog-crawler)"
	DefaultLogLevel        = "info"
	EnvPrefix              = "CATALOG"
)

// SetDefaults registers every known key so env overrides work even when no
// config file or flag mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("crawler.base_url", DefaultBaseURL)
	v.SetDefault("crawler.start", DefaultStartPath)
	v.SetDefault("crawler.out", DefaultOutputDir)
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.concurrency", DefaultConcurrency)
	v.SetDefault("crawler.delay", DefaultDelaySeconds)
	v.SetDefault("crawler.timeout", DefaultTimeoutSeconds)
	v.SetDefault("crawler.retries", DefaultRetries)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.checkpoint_every", DefaultCheckpointEvery)
	v.SetDefault("crawler.download_images", false)
	v.SetDefault("crawler.force", false)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.max_rps", 0.0)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.gcs_prefix", "catalog")
	v.SetDefault("export.gcs_endpoint", "")
	v.SetDefault("export.pubsub_project", "")
	v.SetDefault("export.pubsub_topic", "")

	v.SetDefault("trace.project_id", "")

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.development", false)
}

// InitConfig sets defaults, enables CATALOG_* environment overrides and reads
// the config file. cfgFile wins over the search paths when set. A missing
// config file is not an error; it returns the path of the file used, if any.
func InitConfig(v *viper.Viper, cfgFile string) (string, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.catalog-crawler")
	}

	v.SetEnvPrefix(EnvPrefix) // e.g. CATALOG_CRAWLER_CONCURRENCY=8
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}
