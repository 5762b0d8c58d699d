// Package crawler defines core types shared across subsystems.
package crawler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Page is the raw result of a single successful fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// HTML returns the body as text.
func (p Page) HTML() string {
	return string(p.Body)
}

// SrcsetCandidate is one entry of an image srcset attribute. Width is zero
// when the descriptor is not a width (for example "2x").
type SrcsetCandidate struct {
	URL        string `json:"url"`
	Width      int    `json:"width,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`
}

// ProductImage describes a resolved product image.
type ProductImage struct {
	URL    string            `json:"url"`
	Alt    *string           `json:"alt"`
	Width  *int              `json:"width"`
	Height *int              `json:"height"`
	Srcset []SrcsetCandidate `json:"srcset"`
}

// MarshalJSON encodes a missing srcset as an empty list.
func (i ProductImage) MarshalJSON() ([]byte, error) {
	type plain ProductImage
	out := plain(i)
	if out.Srcset == nil {
		out.Srcset = []SrcsetCandidate{}
	}
	return json.Marshal(out)
}

// Category is a product category link.
type Category struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Slug string `json:"slug,omitempty"`
}

// AdditionalInfo is a key/value row from a specification table.
type AdditionalInfo struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NutritionFact is a label/value row from a nutrition table.
type NutritionFact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Product is the structured record extracted from one product page.
// Prices are kept as raw strings since storefront formatting varies.
type Product struct {
	ProductURL string `json:"productUrl"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`

	PriceText      *string `json:"priceText"`
	CurrencySymbol *string `json:"currencySymbol"`
	RegularPrice   *string `json:"regularPrice"`
	SalePrice      *string `json:"salePrice"`

	StockText *string `json:"stockText"`
	InStock   bool    `json:"inStock"`

	ShortDescription *string `json:"shortDescription"`
	LongDescription  *string `json:"longDescription"`

	AdditionalInfo []AdditionalInfo `json:"additionalInfo"`
	Categories     []Category       `json:"categories"`
	Tags           []string         `json:"tags"`

	MainImage     *ProductImage  `json:"mainImage"`
	GalleryImages []ProductImage `json:"galleryImages"`

	Ingredients     *string         `json:"ingredients"`
	Allergens       []string        `json:"allergens"`
	NutritionInfo   []NutritionFact `json:"nutritionInfo"`
	NutritionPDFURL *string         `json:"nutritionPdfUrl"`

	SKU                *string   `json:"sku"`
	TimestampCollected time.Time `json:"timestampCollected"`
}

// MarshalJSON encodes list fields as [] rather than null when empty.
func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	out := plain(p)
	if out.AdditionalInfo == nil {
		out.AdditionalInfo = []AdditionalInfo{}
	}
	if out.Categories == nil {
		out.Categories = []Category{}
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.GalleryImages == nil {
		out.GalleryImages = []ProductImage{}
	}
	if out.Allergens == nil {
		out.Allergens = []string{}
	}
	if out.NutritionInfo == nil {
		out.NutritionInfo = []NutritionFact{}
	}
	return json.Marshal(out)
}

// CSVHeader lists the flattened column names in output order.
var CSVHeader = []string{
	"product_url",
	"slug",
	"name",
	"price_text",
	"currency_symbol",
	"regular_price",
	"sale_price",
	"stock_text",
	"in_stock",
	"short_description",
	"long_description",
	"categories",
	"tags",
	"main_image_url",
	"gallery_image_count",
	"ingredients",
	"allergens",
	"sku",
	"timestamp_collected",
}

// FlatRecord reduces the product to one CSV row aligned with CSVHeader.
func (p Product) FlatRecord() []string {
	categoryNames := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		categoryNames = append(categoryNames, c.Name)
	}
	mainImage := ""
	if p.MainImage != nil {
		mainImage = p.MainImage.URL
	}
	return []string{
		p.ProductURL,
		p.Slug,
		p.Name,
		deref(p.PriceText),
		deref(p.CurrencySymbol),
		deref(p.RegularPrice),
		deref(p.SalePrice),
		deref(p.StockText),
		strconv.FormatBool(p.InStock),
		deref(p.ShortDescription),
		deref(p.LongDescription),
		strings.Join(categoryNames, ", "),
		strings.Join(p.Tags, ", "),
		mainImage,
		strconv.Itoa(len(p.GalleryImages)),
		deref(p.Ingredients),
		strings.Join(p.Allergens, ", "),
		deref(p.SKU),
		p.TimestampCollected.UTC().Format(time.RFC3339),
	}
}

// ListingResult holds the links found on a category or listing page.
type ListingResult struct {
	ProductURLs    []string
	CategoryURLs   []string
	PaginationURLs []string
	NextPageURL    string
}

// PageError records a URL that could not be crawled.
type PageError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Settings is the configuration snapshot stored in the report.
type Settings struct {
	Concurrency     int     `json:"concurrency"`
	DelaySeconds    float64 `json:"delay"`
	TimeoutSeconds  float64 `json:"timeout"`
	Retries         int     `json:"retries"`
	MaxPages        int     `json:"maxPages"`
	CheckpointEvery int     `json:"checkpointEvery"`
	RespectRobots   bool    `json:"respectRobots"`
	MaxRPS          float64 `json:"maxRps"`
	DownloadImages  bool    `json:"downloadImages"`
}

// CrawlReport aggregates run metadata.
type CrawlReport struct {
	RunID                string      `json:"runId"`
	BaseURL              string      `json:"baseUrl"`
	StartPath            string      `json:"startPath"`
	TotalPagesCrawled    int         `json:"totalPagesCrawled"`
	TotalProductsFound   int         `json:"totalProductsFound"`
	TotalCategoriesFound int         `json:"totalCategoriesFound"`
	Errors               []PageError `json:"errors"`
	Warnings             []string    `json:"warnings"`
	Settings             Settings    `json:"settings"`
	StartedAt            time.Time   `json:"startedAt"`
	CompletedAt          *time.Time  `json:"completedAt"`
	DurationSeconds      float64     `json:"durationSeconds"`
}

// State is the persisted frontier checkpoint.
type State struct {
	VisitedURLs []string  `json:"visitedUrls"`
	PendingURLs []string  `json:"pendingUrls"`
	ProductURLs []string  `json:"productUrls"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Phase names the orchestrator state.
type Phase string

// Orchestrator phases.
const (
	PhaseIdle             Phase = "idle"
	PhaseDiscovering      Phase = "discovering"
	PhaseFetchingProducts Phase = "fetching_products"
	PhaseWritingResults   Phase = "writing_results"
	PhaseDone             Phase = "done"
	PhaseInterrupted      Phase = "interrupted"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
