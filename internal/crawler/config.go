package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every configuration knob that influences a crawl run.
// All values originate from Viper so the crawler can be configured via files,
// env vars, or CLI flags.
type Config struct {
	BaseURL         string
	StartPath       string
	OutputDir       string
	UserAgent       string
	Concurrency     int
	Delay           time.Duration
	RequestTimeout  time.Duration
	Retries         int
	MaxPages        int
	CheckpointEvery int
	DownloadImages  bool
	Force           bool
	RespectRobots   bool
	MaxRPS          float64
}

// LoadConfig constructs a Config by reading from Viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		BaseURL:         strings.TrimRight(strings.TrimSpace(v.GetString("crawler.base_url")), "/"),
		StartPath:       v.GetString("crawler.start"),
		OutputDir:       v.GetString("crawler.out"),
		UserAgent:       v.GetString("crawler.user_agent"),
		Concurrency:     v.GetInt("crawler.concurrency"),
		Delay:           seconds(v.GetFloat64("crawler.delay")),
		RequestTimeout:  seconds(v.GetFloat64("crawler.timeout")),
		Retries:         v.GetInt("crawler.retries"),
		MaxPages:        v.GetInt("crawler.max_pages"),
		CheckpointEvery: v.GetInt("crawler.checkpoint_every"),
		DownloadImages:  v.GetBool("crawler.download_images"),
		Force:           v.GetBool("crawler.force"),
		RespectRobots:   v.GetBool("crawler.respect_robots"),
		MaxRPS:          v.GetFloat64("crawler.max_rps"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("crawler.base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.StartPath == "" {
		return fmt.Errorf("crawler.start must be set")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("crawler.out must be set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Delay < 0 {
		return fmt.Errorf("crawler.delay must be >= 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.timeout must be > 0")
	}
	if c.Retries <= 0 {
		return fmt.Errorf("crawler.retries must be > 0")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.CheckpointEvery <= 0 {
		return fmt.Errorf("crawler.checkpoint_every must be > 0")
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("crawler.max_rps must be >= 0")
	}
	return nil
}

// StartURL resolves the start path against the base URL.
func (c Config) StartURL() (string, error) {
	joined, err := JoinURL(c.BaseURL, c.StartPath)
	if err != nil {
		return "", err
	}
	return Canonicalize(joined)
}

// Settings returns the snapshot stored in the report.
func (c Config) Settings() Settings {
	return Settings{
		Concurrency:     c.Concurrency,
		DelaySeconds:    c.Delay.Seconds(),
		TimeoutSeconds:  c.RequestTimeout.Seconds(),
		Retries:         c.Retries,
		MaxPages:        c.MaxPages,
		CheckpointEvery: c.CheckpointEvery,
		RespectRobots:   c.RespectRobots,
		MaxRPS:          c.MaxRPS,
		DownloadImages:  c.DownloadImages,
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
