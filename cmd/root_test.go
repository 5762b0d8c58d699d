package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
)

const storePage = `<html><body>
<ul class="products">
  <li class="product"><a class="woocommerce-LoopProduct-link" href="/product/vanilla/">Vanilla</a></li>
  <li class="product"><a class="woocommerce-LoopProduct-link" href="/product/mint/">Mint</a></li>
</ul>
</body></html>`

const productPage = `<html><body class="single-product">
<h1 class="product_title">%s</h1>
<p class="price"><span class="woocommerce-Price-amount">$12.00</span></p>
</body></html>`

func newStorefront(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/store/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(storePage))
	})
	mux.HandleFunc("/product/vanilla/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fmt.Sprintf(productPage, "Vanilla Bean")))
	})
	mux.HandleFunc("/product/mint/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fmt.Sprintf(productPage, "Mint Chip")))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	root := newRootCmd(viper.New())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCrawlCommandWritesCatalog(t *testing.T) {
	srv := newStorefront(t)
	outDir := filepath.Join(t.TempDir(), "out")

	stdout, err := runCLI(t, "crawl",
		"--base-url", srv.URL,
		"--start", "/store/",
		"--out", outDir,
		"--delay", "0",
		"--timeout", "5",
		"--respect-robots=false",
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Products:    2")

	f, err := os.Open(filepath.Join(outDir, local.CatalogJSON))
	require.NoError(t, err)
	defer f.Close()
	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var p crawler.Product
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &p))
		names = append(names, p.Name)
	}
	require.NoError(t, scanner.Err())
	assert.ElementsMatch(t, []string{"Vanilla Bean", "Mint Chip"}, names)

	assert.FileExists(t, filepath.Join(outDir, local.CatalogCSV))
	assert.FileExists(t, filepath.Join(outDir, local.ReportFile))
	assert.NoFileExists(t, filepath.Join(outDir, local.StateFile))

	raw, err := os.ReadFile(filepath.Join(outDir, local.ReportFile))
	require.NoError(t, err)
	var report crawler.CrawlReport
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, 1, report.TotalPagesCrawled)
	assert.Equal(t, 2, report.TotalProductsFound)
	assert.NotEmpty(t, report.RunID)
}

func TestRootCommandRunsCrawl(t *testing.T) {
	srv := newStorefront(t)
	outDir := filepath.Join(t.TempDir(), "out")

	_, err := runCLI(t,
		"--base-url", srv.URL,
		"--out", outDir,
		"--delay", "0",
		"--respect-robots=false",
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, local.CatalogJSON))
}

func TestCrawlCommandCorruptState(t *testing.T) {
	srv := newStorefront(t)
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, local.StateFile), []byte("{not json"), 0o600))

	_, err := runCLI(t, "crawl",
		"--base-url", srv.URL,
		"--out", outDir,
		"--delay", "0",
		"--respect-robots=false",
		"--log-level", "error",
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrCorruptState)
	assert.Contains(t, err.Error(), "--force")
}

func TestCrawlCommandNothingDiscovered(t *testing.T) {
	srv := newStorefront(t)

	_, err := runCLI(t, "crawl",
		"--base-url", srv.URL,
		"--start", "/missing/",
		"--out", t.TempDir(),
		"--delay", "0",
		"--retries", "1",
		"--respect-robots=false",
		"--log-level", "error",
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrNothingDiscovered)
}

func TestCrawlCommandRejectsBadConfig(t *testing.T) {
	_, err := runCLI(t, "crawl", "--base-url", "ftp://shop.test", "--out", t.TempDir(), "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawler.base_url")

	_, err = runCLI(t, "crawl", "--concurrency", "0", "--out", t.TempDir(), "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawler.concurrency")
}

func TestFlagsBindToViperKeys(t *testing.T) {
	v := viper.New()
	root := newRootCmd(v)
	require.NoError(t, root.PersistentFlags().Parse([]string{"--concurrency", "7", "--max-rps", "2.5", "--gcs-bucket", "catalogs"}))

	assert.Equal(t, 7, v.GetInt("crawler.concurrency"))
	assert.Equal(t, 2.5, v.GetFloat64("crawler.max_rps"))
	assert.Equal(t, "catalogs", v.GetString("export.gcs_bucket"))
	assert.Equal(t, "/store/", v.GetString("crawler.start"), "unset flags fall back to their defaults")
	for name := range flagKeys {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}
