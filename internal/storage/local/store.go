// Package local persists crawl outputs and the resume checkpoint on the
// local filesystem.
package local

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Output file names inside the base directory.
const (
	StateFile   = ".crawl_state.json"
	CatalogJSON = "catalog.jsonl"
	CatalogCSV  = "catalog.csv"
	ReportFile  = "report.json"
)

// Artifacts lists the files a completed run leaves behind, in upload order.
var Artifacts = []string{CatalogJSON, CatalogCSV, ReportFile}

// Config captures the parameters for the local store.
type Config struct {
	// BaseDir is the output directory; it is created when missing.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store reads and writes crawl files under one directory.
type Store struct {
	baseDir string
}

var (
	_ crawler.StateStore   = (*Store)(nil)
	_ crawler.ResultWriter = (*Store)(nil)
)

// New creates the output directory if needed and checks that it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{baseDir: cfg.BaseDir}, nil
}

// Path returns the full path of name inside the base directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// URI returns a file:// URI for an artifact. The run ID is not part of the
// local layout.
func (s *Store) URI(_ string, name string) string {
	abs, err := filepath.Abs(s.Path(name))
	if err != nil {
		abs = s.Path(name)
	}
	return "file://" + abs
}

// LoadState reads the checkpoint. It returns (nil, nil) when none exists
// and an error wrapping crawler.ErrCorruptState when it cannot be decoded.
func (s *Store) LoadState(_ context.Context) (*crawler.State, error) {
	// #nosec G304 -- path is fixed inside the configured output directory.
	data, err := os.ReadFile(s.Path(StateFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read crawl state: %w", err)
	}
	var state crawler.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", crawler.ErrCorruptState, s.Path(StateFile), err)
	}
	return &state, nil
}

// SaveState writes the checkpoint atomically. Saving the same state twice
// leaves the same file.
func (s *Store) SaveState(_ context.Context, state crawler.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal crawl state: %w", err)
	}
	return s.writeAtomic(StateFile, data)
}

// DeleteState removes the checkpoint; a missing file is not an error.
func (s *Store) DeleteState(_ context.Context) error {
	err := os.Remove(s.Path(StateFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove crawl state: %w", err)
	}
	return nil
}

// WriteCatalog writes one JSON object per product to catalog.jsonl and,
// when there is at least one product, a flattened catalog.csv.
func (s *Store) WriteCatalog(_ context.Context, products []crawler.Product) error {
	var jsonl bytes.Buffer
	enc := json.NewEncoder(&jsonl)
	enc.SetEscapeHTML(false)
	for i := range products {
		if err := enc.Encode(products[i]); err != nil {
			return fmt.Errorf("encode product %s: %w", products[i].ProductURL, err)
		}
	}
	if err := s.writeAtomic(CatalogJSON, jsonl.Bytes()); err != nil {
		return err
	}

	if len(products) == 0 {
		return nil
	}
	var table bytes.Buffer
	w := csv.NewWriter(&table)
	if err := w.Write(crawler.CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range products {
		if err := w.Write(products[i].FlatRecord()); err != nil {
			return fmt.Errorf("write csv row %s: %w", products[i].ProductURL, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.writeAtomic(CatalogCSV, table.Bytes())
}

// WriteReport writes the pretty-printed run report.
func (s *Store) WriteReport(_ context.Context, report crawler.CrawlReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.writeAtomic(ReportFile, append(data, '\n'))
}

// writeAtomic writes to a temp file in the same directory and renames it
// over name so readers never see a partial file.
func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.baseDir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
