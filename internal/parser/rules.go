package parser

// Selector tables for WooCommerce-style storefronts. Order matters for
// field rules: the first rule producing a non-empty value wins.

var productLinkSelectors = []string{
	"a.woocommerce-LoopProduct-link",
	".product a.woocommerce-loop-product__link",
	".products .product a[href*='/product/']",
	".product-item a[href*='/product/']",
	"li.product a[href]",
	".wc-block-grid__product a[href]",
	"a[href*='/product/']",
}

var categoryLinkSelectors = []string{
	".product-categories a",
	".widget_product_categories a",
	"a[href*='/product-category/']",
	".wc-block-product-categories a",
	"nav.woocommerce-breadcrumb a",
	".cat-item a",
}

var paginationSelectors = []string{
	".woocommerce-pagination a",
	".page-numbers a",
	"a.page-numbers",
	"nav.pagination a",
	".pagination a",
}

var nextPageSelectors = []string{
	"a[rel~='next']",
	"link[rel~='next']",
	".woocommerce-pagination a.next",
	"a.next.page-numbers",
	".pagination a.next",
}

const (
	productPathMarker  = "/product/"
	categoryPathMarker = "/product-category/"
)

var productPageMarkers = []string{
	".single-product",
	".product_title",
	".woocommerce-product-gallery",
	"form.cart",
	".single_add_to_cart_button",
}

type extractor func(node) string

func textOf(n node) string      { return n.text() }
func plainTextOf(n node) string { return n.plainText() }

func attrOf(name string) extractor {
	return func(n node) string { return n.attr(name) }
}

// fieldRule pairs a selector with the way its value is read.
type fieldRule struct {
	selector string
	extract  extractor
}

var nameRules = []fieldRule{
	{".product_title", textOf},
	{"h1.entry-title", textOf},
	{".single-product h1", textOf},
	{"h1[itemprop='name']", textOf},
	{".product-title h1", textOf},
	{"h1", textOf},
	{"meta[property='og:title']", attrOf("content")},
}

const unknownProductName = "Unknown Product"

var skuRules = []fieldRule{
	{".product_meta .sku", textOf},
	{".sku", textOf},
	{"meta[itemprop='sku']", attrOf("content")},
	{"[itemprop='sku']", textOf},
}

var shortDescriptionRules = []fieldRule{
	{".woocommerce-product-details__short-description", plainTextOf},
	{".product-short-description", plainTextOf},
}

var longDescriptionRules = []fieldRule{
	{"#tab-description", plainTextOf},
	{".woocommerce-Tabs-panel--description", plainTextOf},
	{".product-description", plainTextOf},
}

var priceContainerSelectors = []string{
	".summary .price",
	".product .price",
	".price",
	"[itemprop='price']",
}

var stockRules = []fieldRule{
	{".summary .stock", textOf},
	{".stock", textOf},
	{"[itemprop='availability']", textOf},
}

var outOfStockMarkers = []string{".out-of-stock", ".sold-out"}

const outOfStockText = "Out of Stock"

var categoryRules = []string{
	".posted_in a",
	".product_meta a[rel='tag'][href*='/product-category/']",
	"a[href*='/product-category/']",
}

var tagSelectors = []string{".tagged_as a"}

var mainImageSelectors = []string{
	".woocommerce-product-gallery__image img",
	".wp-post-image",
	".product-image img",
	".single-product img.attachment-shop_single",
}

var gallerySelectors = []string{
	".woocommerce-product-gallery__image",
	".product-gallery-image",
	".flex-control-thumbs img",
}

var imageSourceAttrs = []string{"src", "data-src", "data-lazy-src", "data-original"}

var srcsetAttrs = []string{"srcset", "data-srcset", "data-lazy-srcset"}

// Keyword heuristics. Matching is case-insensitive and bounded by
// maxSectionLength so page-wide wrappers are ignored.
const maxSectionLength = 2000

var sectionSelectors = "div, section, p, span, li"

// Ingredient keywords are tiered; a later tier is only used when the earlier
// one found nothing.
var ingredientKeywordTiers = [][]string{
	{"ingredients", "ingredient"},
	{"contains"},
}

const minIngredientFields = 3

var allergenKeywords = []string{"allergens", "allergen", "allergy", "may contain"}

const maxAllergenLength = 50

var nutritionHeaderKeywords = []string{"nutrition", "calories", "fat", "protein"}

var nutritionPDFKeywords = []string{"nutrition", "ingredient", "spec"}
