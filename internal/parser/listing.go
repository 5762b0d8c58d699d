package parser

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Listing extracts crawl links from category and listing pages.
type Listing struct {
	baseURL string
}

var _ crawler.ListingParser = (*Listing)(nil)

// NewListing returns a listing parser that keeps links on baseURL's host.
func NewListing(baseURL string) (*Listing, error) {
	canonical, err := crawler.Canonicalize(baseURL)
	if err != nil {
		return nil, fmt.Errorf("listing parser base url: %w", err)
	}
	return &Listing{baseURL: canonical}, nil
}

// ParseListing collects product, category and pagination links from html.
// Links are resolved against currentURL, canonicalized and filtered to the
// configured host. Each list keeps first-seen order without duplicates.
func (l *Listing) ParseListing(html, currentURL string) (crawler.ListingResult, error) {
	root, err := parseHTML(html)
	if err != nil {
		return crawler.ListingResult{}, err
	}
	return crawler.ListingResult{
		ProductURLs:    l.collect(root, currentURL, productLinkSelectors, productPathMarker),
		CategoryURLs:   l.collect(root, currentURL, categoryLinkSelectors, categoryPathMarker),
		PaginationURLs: l.collect(root, currentURL, paginationSelectors, ""),
		NextPageURL:    l.nextPage(root, currentURL),
	}, nil
}

// IsProductPage reports whether html carries any single-product marker.
func (l *Listing) IsProductPage(html string) bool {
	root, err := parseHTML(html)
	if err != nil {
		return false
	}
	for _, marker := range productPageMarkers {
		if root.exists(marker) {
			return true
		}
	}
	return false
}

func (l *Listing) collect(root node, currentURL string, selectors []string, marker string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, selector := range selectors {
		for _, link := range root.all(selector) {
			href := link.attr("href")
			if marker != "" && !strings.Contains(href, marker) {
				continue
			}
			resolved, ok := l.normalize(currentURL, href)
			if !ok {
				continue
			}
			if _, dup := seen[resolved]; dup {
				continue
			}
			seen[resolved] = struct{}{}
			out = append(out, resolved)
		}
	}
	return out
}

func (l *Listing) nextPage(root node, currentURL string) string {
	for _, selector := range nextPageSelectors {
		link, ok := root.first(selector)
		if !ok {
			continue
		}
		if resolved, ok := l.normalize(currentURL, link.attr("href")); ok {
			return resolved
		}
	}
	return ""
}

// normalize resolves href and drops anything that is not an http(s) link
// on the configured host.
func (l *Listing) normalize(currentURL, href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}
	abs, err := crawler.Resolve(currentURL, href)
	if err != nil {
		return "", false
	}
	canonical, err := crawler.Canonicalize(abs)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(canonical, "http://") && !strings.HasPrefix(canonical, "https://") {
		return "", false
	}
	if !crawler.SameHost(canonical, l.baseURL) {
		return "", false
	}
	return canonical, true
}
