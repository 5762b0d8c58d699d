// Package pubsub announces finished crawls on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
)

// Locator maps an artifact name to where downstream consumers can read it.
type Locator interface {
	URI(runID, name string) string
}

// CatalogReady is the JSON payload published after a successful run.
type CatalogReady struct {
	RunID           string            `json:"runId"`
	BaseURL         string            `json:"baseUrl"`
	PagesCrawled    int               `json:"pagesCrawled"`
	ProductsFound   int               `json:"productsFound"`
	CategoriesFound int               `json:"categoriesFound"`
	Errors          int               `json:"errors"`
	CompletedAt     *time.Time        `json:"completedAt"`
	Artifacts       map[string]string `json:"artifacts"`
}

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic   *pubsub.Topic
	locator Locator
	logger  *zap.Logger
}

var _ crawler.Exporter = (*Publisher)(nil)

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic, locator Locator, logger *zap.Logger) (*Publisher, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	if locator == nil {
		return nil, fmt.Errorf("artifact locator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{topic: topic, locator: locator, logger: logger}, nil
}

// Export publishes a CatalogReady message for report and waits for the
// server to acknowledge it.
func (p *Publisher) Export(ctx context.Context, report crawler.CrawlReport) error {
	payload := CatalogReady{
		RunID:           report.RunID,
		BaseURL:         report.BaseURL,
		PagesCrawled:    report.TotalPagesCrawled,
		ProductsFound:   report.TotalProductsFound,
		CategoriesFound: report.TotalCategoriesFound,
		Errors:          len(report.Errors),
		CompletedAt:     report.CompletedAt,
		Artifacts:       make(map[string]string, len(local.Artifacts)),
	}
	for _, name := range local.Artifacts {
		if name == local.CatalogCSV && report.TotalProductsFound == 0 {
			continue
		}
		payload.Artifacts[name] = p.locator.URI(report.RunID, name)
	}

	id, err := p.Publish(ctx, payload, map[string]string{"run_id": report.RunID, "event": "catalog_ready"})
	if err != nil {
		return err
	}
	p.logger.Info("Published catalog notification", zap.String("message_id", id), zap.String("run_id", report.RunID))
	return nil
}

// Publish marshals the payload to JSON and publishes it to the topic.
func (p *Publisher) Publish(ctx context.Context, payload any, attrs map[string]string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: make(map[string]string, len(attrs)+2)}
	for k, v := range attrs {
		msg.Attributes[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes outstanding messages and releases the topic's goroutines.
func (p *Publisher) Stop() {
	p.topic.Stop()
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
