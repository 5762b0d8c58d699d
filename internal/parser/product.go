package parser

import (
	"strings"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Product extracts a product record from a single-product page.
// Missing optional fields degrade to nil or empty values; only an empty or
// unparsable document is an error.
type Product struct {
	now func() time.Time
}

var _ crawler.ProductParser = (*Product)(nil)

// ProductOption customizes a Product parser.
type ProductOption func(*Product)

// WithClock sets the clock used for the collection timestamp.
func WithClock(clock crawler.Clock) ProductOption {
	return func(p *Product) {
		p.now = clock.Now
	}
}

// NewProduct returns a product page parser.
func NewProduct(opts ...ProductOption) *Product {
	p := &Product{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseProduct builds the product record for productURL from html.
func (p *Product) ParseProduct(html, productURL string) (crawler.Product, error) {
	root, err := parseHTML(html)
	if err != nil {
		return crawler.Product{}, err
	}

	canonical, err := crawler.Canonicalize(productURL)
	if err != nil {
		canonical = productURL
	}

	product := crawler.Product{
		ProductURL:         canonical,
		Slug:               crawler.Slug(canonical),
		Name:               firstField(root, nameRules),
		StockText:          optional(firstField(root, stockRules)),
		ShortDescription:   optional(firstField(root, shortDescriptionRules)),
		LongDescription:    optional(firstField(root, longDescriptionRules)),
		AdditionalInfo:     additionalInfo(root),
		Categories:         categories(root, canonical),
		Tags:               tags(root),
		NutritionInfo:      nutritionFacts(root),
		NutritionPDFURL:    nutritionPDF(root, canonical),
		SKU:                optional(firstField(root, skuRules)),
		TimestampCollected: p.now().UTC(),
	}
	if product.Name == "" {
		product.Name = unknownProductName
	}

	product.PriceText, product.CurrencySymbol, product.RegularPrice, product.SalePrice = price(root)
	product.InStock, product.StockText = stock(root, product.StockText)
	product.MainImage, product.GalleryImages = images(root, canonical)

	sections := sectionTexts(root)
	product.Ingredients = ingredients(sections)
	product.Allergens = allergens(sections)

	return product, nil
}

func firstField(root node, rules []fieldRule) string {
	for _, rule := range rules {
		for _, n := range root.all(rule.selector) {
			if v := strings.TrimSpace(rule.extract(n)); v != "" {
				return v
			}
		}
	}
	return ""
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func price(root node) (text, currency, regular, sale *string) {
	for _, selector := range priceContainerSelectors {
		container, ok := root.first(selector)
		if !ok || container.text() == "" {
			continue
		}
		text = optional(container.text())
		if symbol, ok := container.first(".woocommerce-Price-currencySymbol"); ok {
			currency = optional(symbol.text())
		}
		del, hasDel := container.first("del .amount")
		ins, hasIns := container.first("ins .amount")
		switch {
		case hasDel && hasIns:
			regular = optional(del.text())
			sale = optional(ins.text())
		default:
			if amount, ok := container.first(".amount"); ok {
				regular = optional(amount.text())
			} else {
				regular = text
			}
		}
		return text, currency, regular, sale
	}

	if meta, ok := root.first("meta[itemprop='price']"); ok {
		if v := optional(meta.attr("content")); v != nil {
			return v, nil, v, nil
		}
	}
	return nil, nil, nil, nil
}

func stock(root node, stockText *string) (bool, *string) {
	inStock := true
	if el, ok := root.first(".stock"); ok && el.hasClass("out-of-stock") {
		inStock = false
	}
	if stockText != nil && strings.Contains(strings.ToLower(*stockText), "out of stock") {
		inStock = false
	}
	for _, marker := range outOfStockMarkers {
		if root.exists(marker) {
			inStock = false
			if stockText == nil {
				stockText = optional(outOfStockText)
			}
			break
		}
	}
	return inStock, stockText
}

func additionalInfo(root node) []crawler.AdditionalInfo {
	var out []crawler.AdditionalInfo
	for _, row := range root.all("#tab-additional_information tr") {
		th, okTh := row.first("th")
		td, okTd := row.first("td")
		if !okTh || !okTd {
			continue
		}
		if key, value := th.text(), td.text(); key != "" && value != "" {
			out = append(out, crawler.AdditionalInfo{Key: key, Value: value})
		}
	}
	for _, row := range root.all(".woocommerce-product-attributes tr") {
		if row.within("#tab-additional_information") {
			continue
		}
		label, okLabel := row.first(".woocommerce-product-attributes-item__label")
		value, okValue := row.first(".woocommerce-product-attributes-item__value")
		if !okLabel || !okValue {
			continue
		}
		if key, val := label.text(), value.text(); key != "" && val != "" {
			out = append(out, crawler.AdditionalInfo{Key: key, Value: val})
		}
	}
	return out
}

func categories(root node, base string) []crawler.Category {
	seen := make(map[string]struct{})
	var out []crawler.Category
	for _, selector := range categoryRules {
		for _, link := range root.all(selector) {
			name := link.text()
			if name == "" || !strings.Contains(link.attr("href"), categoryPathMarker) {
				continue
			}
			key := strings.ToLower(name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			category := crawler.Category{Name: name}
			if href := link.attr("href"); href != "" {
				if abs, err := crawler.Resolve(base, href); err == nil {
					if canonical, err := crawler.Canonicalize(abs); err == nil {
						category.URL = canonical
						category.Slug = crawler.Slug(canonical)
					}
				}
			}
			out = append(out, category)
		}
	}
	return out
}

func tags(root node) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, selector := range tagSelectors {
		for _, link := range root.all(selector) {
			tag := link.text()
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

func images(root node, base string) (*crawler.ProductImage, []crawler.ProductImage) {
	var main *crawler.ProductImage
	for _, selector := range mainImageSelectors {
		for _, img := range root.all(selector) {
			if main = imageFrom(img, base); main != nil {
				break
			}
		}
		if main != nil {
			break
		}
	}

	seen := make(map[string]struct{})
	if main != nil {
		seen[main.URL] = struct{}{}
	}
	var gallery []crawler.ProductImage
	add := func(image *crawler.ProductImage) {
		if image == nil {
			return
		}
		if _, dup := seen[image.URL]; dup {
			return
		}
		seen[image.URL] = struct{}{}
		gallery = append(gallery, *image)
	}

	for _, selector := range gallerySelectors {
		for _, el := range root.all(selector) {
			img := el
			if !el.is("img") {
				inner, ok := el.first("img")
				if !ok {
					add(imageFromLarge(el, base))
					continue
				}
				img = inner
			}
			add(imageFrom(img, base))
			add(imageFromLarge(img, base))
		}
	}
	return main, gallery
}

func sectionTexts(root node) []string {
	var out []string
	for _, el := range root.all(sectionSelectors) {
		if el.within("script, style, noscript") {
			continue
		}
		text := el.text()
		if text == "" || len(text) >= maxSectionLength {
			continue
		}
		out = append(out, text)
	}
	return out
}

// ingredients picks the most specific section mentioning an ingredient
// keyword. Only sections that read as a list of at least
// minIngredientFields comma-separated items qualify, so headings never win.
func ingredients(sections []string) *string {
	for _, keywords := range ingredientKeywordTiers {
		best := ""
		for _, text := range sections {
			if !containsAny(strings.ToLower(text), keywords) {
				continue
			}
			if listFields(text) < minIngredientFields {
				continue
			}
			if best == "" || len(text) < len(best) {
				best = text
			}
		}
		if best != "" {
			return &best
		}
	}
	return nil
}

func listFields(text string) int {
	n := 0
	for _, field := range strings.Split(text, ",") {
		if strings.TrimSpace(field) != "" {
			n++
		}
	}
	return n
}

// allergens reads "keyword: a, b, c." lists out of section text.
func allergens(sections []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, text := range sections {
		lower := strings.ToLower(text)
		source := text
		if len(lower) != len(text) {
			source = lower
		}
		for _, keyword := range allergenKeywords {
			idx := strings.Index(lower, keyword)
			if idx < 0 {
				continue
			}
			rest := source[idx+len(keyword):]
			colon := strings.Index(rest, ":")
			if colon < 0 {
				continue
			}
			list := rest[colon+1:]
			if dot := strings.Index(list, "."); dot >= 0 {
				list = list[:dot]
			}
			for _, item := range strings.Split(list, ",") {
				item = strings.TrimSpace(item)
				item = strings.TrimPrefix(item, "and ")
				item = strings.Trim(item, " ;")
				if item == "" || len(item) > maxAllergenLength {
					continue
				}
				key := strings.ToLower(item)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, item)
			}
		}
	}
	return out
}

func nutritionFacts(root node) []crawler.NutritionFact {
	var out []crawler.NutritionFact
	for _, table := range root.all("table") {
		var headers []string
		for _, th := range table.all("th") {
			headers = append(headers, strings.ToLower(th.text()))
		}
		if !containsAny(strings.Join(headers, " "), nutritionHeaderKeywords) {
			continue
		}
		for _, row := range table.all("tr") {
			cells := row.all("th, td")
			if len(cells) < 2 {
				continue
			}
			headerRow := true
			for _, cell := range cells {
				if !cell.is("th") {
					headerRow = false
					break
				}
			}
			if headerRow {
				continue
			}
			label, value := cells[0].text(), cells[1].text()
			if label == "" && value == "" {
				continue
			}
			out = append(out, crawler.NutritionFact{Label: label, Value: value})
		}
	}
	return out
}

func nutritionPDF(root node, base string) *string {
	for _, link := range root.all("a[href]") {
		href := link.attr("href")
		lowerHref := strings.ToLower(href)
		if !strings.Contains(lowerHref, ".pdf") {
			continue
		}
		if !containsAny(lowerHref, nutritionPDFKeywords) && !containsAny(strings.ToLower(link.text()), nutritionPDFKeywords) {
			continue
		}
		if resolved, err := crawler.Resolve(base, href); err == nil {
			return &resolved
		}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
