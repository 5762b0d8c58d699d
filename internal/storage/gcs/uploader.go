// Package gcs uploads finished crawl outputs to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
)

// Config captures the parameters required to export to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name; the run ID follows it.
	Prefix string
	// SourceDir is the local output directory holding the artifacts.
	SourceDir string
}

// Uploader copies the local artifacts of a run into a bucket.
type Uploader struct {
	client *storage.Client
	cfg    Config
	logger *zap.Logger
}

var _ crawler.Exporter = (*Uploader)(nil)

// New creates a GCS uploader.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Uploader, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.SourceDir == "" {
		return nil, fmt.Errorf("source directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Uploader{client: client, cfg: cfg, logger: logger}, nil
}

// Verify checks that the bucket exists and is reachable so misconfiguration
// fails before the crawl starts.
func (u *Uploader) Verify(ctx context.Context) error {
	if _, err := u.client.Bucket(u.cfg.Bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", u.cfg.Bucket, err)
	}
	return nil
}

// Export uploads every artifact present in the source directory.
func (u *Uploader) Export(ctx context.Context, report crawler.CrawlReport) error {
	for _, name := range local.Artifacts {
		src := filepath.Join(u.cfg.SourceDir, name)
		// #nosec G304 -- artifact names are fixed constants.
		f, err := os.Open(src)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("open %s: %w", src, err)
		}
		uri, err := u.PutObject(ctx, u.objectName(report.RunID, name), contentType(name), f)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			u.logger.Debug("Failed to close artifact", zap.String("path", src), zap.Error(closeErr))
		}
		u.logger.Info("Uploaded artifact", zap.String("uri", uri))
	}
	return nil
}

// URI returns the gs:// location of an artifact for runID.
func (u *Uploader) URI(runID, name string) string {
	return fmt.Sprintf("gs://%s/%s", u.cfg.Bucket, u.objectName(runID, name))
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (u *Uploader) PutObject(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(objectName) == "" {
		return "", fmt.Errorf("object name is required")
	}
	writer := u.client.Bucket(u.cfg.Bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for object %s: %w", objectName, err)
	}
	return fmt.Sprintf("gs://%s/%s", u.cfg.Bucket, objectName), nil
}

func (u *Uploader) objectName(runID, name string) string {
	return path.Join(u.cfg.Prefix, runID, name)
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
