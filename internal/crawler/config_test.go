package crawler

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseViper() *viper.Viper {
	v := viper.New()
	v.Set("crawler.base_url", "https://shop.test/")
	v.Set("crawler.start", "/store/")
	v.Set("crawler.out", "./out")
	v.Set("crawler.user_agent", "CatalogCrawler/1.0")
	v.Set("crawler.concurrency", 5)
	v.Set("crawler.delay", 0.5)
	v.Set("crawler.timeout", 30)
	v.Set("crawler.retries", 3)
	v.Set("crawler.max_pages", 0)
	v.Set("crawler.checkpoint_every", 10)
	v.Set("crawler.respect_robots", true)
	return v
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(baseViper())
	require.NoError(t, err)

	assert.Equal(t, "https://shop.test", cfg.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 500*time.Millisecond, cfg.Delay)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.True(t, cfg.RespectRobots)
	assert.False(t, cfg.Force)

	start, err := cfg.StartURL()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/store/", start)

	s := cfg.Settings()
	assert.Equal(t, 0.5, s.DelaySeconds)
	assert.Equal(t, 30.0, s.TimeoutSeconds)
	assert.Equal(t, 10, s.CheckpointEvery)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{"crawler.base_url", "shop.test"},
		{"crawler.base_url", "ftp://shop.test"},
		{"crawler.start", ""},
		{"crawler.out", ""},
		{"crawler.user_agent", ""},
		{"crawler.concurrency", 0},
		{"crawler.delay", -1},
		{"crawler.timeout", 0},
		{"crawler.retries", 0},
		{"crawler.max_pages", -1},
		{"crawler.checkpoint_every", 0},
		{"crawler.max_rps", -2},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := baseViper()
			v.Set(tt.key, tt.value)
			_, err := LoadConfig(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
