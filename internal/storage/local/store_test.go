// Package local_test tests the local filesystem store.
package local_test

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup.
			_ = os.Chmod(tempDir, 0o700)
		})

		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "no checkpoint yet")

	state := crawler.State{
		VisitedURLs: []string{"https://shop.example.com/store/"},
		PendingURLs: []string{"https://shop.example.com/store/page/3/", "https://shop.example.com/store/page/2/"},
		ProductURLs: []string{"https://shop.example.com/product/a/"},
		LastUpdated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.SaveState(ctx, state))
	first, err := os.ReadFile(filepath.Join(dir, local.StateFile))
	require.NoError(t, err)

	require.NoError(t, store.SaveState(ctx, state))
	second, err := os.ReadFile(filepath.Join(dir, local.StateFile))
	require.NoError(t, err)
	assert.Equal(t, first, second, "saving twice is idempotent")
	assert.Contains(t, string(first), `"pendingUrls"`)

	loaded, err = store.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state, *loaded)

	require.NoError(t, store.DeleteState(ctx))
	require.NoError(t, store.DeleteState(ctx), "deleting twice is fine")
	_, err = os.Stat(filepath.Join(dir, local.StateFile))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestLoadStateCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, local.StateFile), []byte(`{"visitedUrls": [`), 0o600))

	_, err = store.LoadState(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrCorruptState)
}

func sampleProduct(slug string) crawler.Product {
	price := "$12.00"
	return crawler.Product{
		ProductURL:         "https://shop.example.com/product/" + slug + "/",
		Slug:               slug,
		Name:               strings.ToUpper(slug),
		RegularPrice:       &price,
		InStock:            true,
		Categories:         []crawler.Category{{Name: "Pints"}, {Name: "Vegan"}},
		Tags:               []string{"new", "dairy free"},
		MainImage:          &crawler.ProductImage{URL: "https://shop.example.com/" + slug + ".jpg"},
		GalleryImages:      []crawler.ProductImage{{URL: "https://shop.example.com/g1.jpg"}, {URL: "https://shop.example.com/g2.jpg"}},
		Allergens:          []string{"Milk", "Eggs"},
		TimestampCollected: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteCatalog(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	products := []crawler.Product{sampleProduct("honeycomb"), sampleProduct("vanilla")}
	require.NoError(t, store.WriteCatalog(context.Background(), products))

	f, err := os.Open(filepath.Join(dir, local.CatalogJSON))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var decoded crawler.Product
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		assert.Equal(t, products[lines].ProductURL, decoded.ProductURL)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, len(products), lines)

	csvFile, err := os.Open(filepath.Join(dir, local.CatalogCSV))
	require.NoError(t, err)
	t.Cleanup(func() { _ = csvFile.Close() })
	rows, err := csv.NewReader(csvFile).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, crawler.CSVHeader, rows[0])

	row := map[string]string{}
	for i, col := range rows[1] {
		row[rows[0][i]] = col
	}
	assert.Equal(t, "Pints, Vegan", row["categories"])
	assert.Equal(t, "new, dairy free", row["tags"])
	assert.Equal(t, "https://shop.example.com/honeycomb.jpg", row["main_image_url"])
	assert.Equal(t, "2", row["gallery_image_count"])
	assert.Equal(t, "Milk, Eggs", row["allergens"])
	assert.Equal(t, "true", row["in_stock"])
	assert.Equal(t, "2026-05-01T12:00:00Z", row["timestamp_collected"])
}

func TestWriteCatalogEncodesEmptyListsAsArrays(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	minimal := crawler.Product{
		ProductURL:         "https://shop.example.com/product/mystery/",
		Slug:               "mystery",
		Name:               "Mystery Flavor",
		TimestampCollected: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.WriteCatalog(context.Background(), []crawler.Product{minimal}))

	raw, err := os.ReadFile(filepath.Join(dir, local.CatalogJSON))
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	assert.Contains(t, line, `"tags":[]`)
	assert.Contains(t, line, `"categories":[]`)
	assert.Contains(t, line, `"galleryImages":[]`)
	assert.NotContains(t, line, `:null,"categories"`)
}

func TestWriteCatalogEmptySkipsCSV(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	require.NoError(t, store.WriteCatalog(context.Background(), nil))

	info, err := os.Stat(filepath.Join(dir, local.CatalogJSON))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	_, err = os.Stat(filepath.Join(dir, local.CatalogCSV))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	report := crawler.CrawlReport{
		RunID:              "run-1",
		BaseURL:            "https://shop.example.com",
		StartPath:          "/store/",
		TotalPagesCrawled:  4,
		TotalProductsFound: 2,
		Errors:             []crawler.PageError{{URL: "https://shop.example.com/product/x/", Error: "boom"}},
		Warnings:           []string{},
	}
	require.NoError(t, store.WriteReport(context.Background(), report))

	data, err := os.ReadFile(filepath.Join(dir, local.ReportFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \""), "report is pretty-printed")

	var decoded crawler.CrawlReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.TotalProductsFound, decoded.TotalProductsFound)
	assert.Equal(t, report.Errors, decoded.Errors)
}

func TestURI(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, local.ReportFile), store.URI("ignored", local.ReportFile))
}
