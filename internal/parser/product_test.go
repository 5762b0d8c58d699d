package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestParseProduct(t *testing.T) {
	t.Parallel()

	collected := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	parser := NewProduct(WithClock(fixedClock{t: collected}))

	product, err := parser.ParseProduct(loadFixture(t, "product.html"), "https://shop.example.com/product/honeycomb/?ref=grid")
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com/product/honeycomb/", product.ProductURL)
	assert.Equal(t, "honeycomb", product.Slug)
	assert.Equal(t, "Honeycomb", product.Name)
	assert.Equal(t, collected, product.TimestampCollected)

	t.Run("price", func(t *testing.T) {
		assert.Equal(t, strPtr("$15.00 $12.00"), product.PriceText)
		assert.Equal(t, strPtr("$"), product.CurrencySymbol)
		assert.Equal(t, strPtr("$15.00"), product.RegularPrice)
		assert.Equal(t, strPtr("$12.00"), product.SalePrice)
	})

	t.Run("stock", func(t *testing.T) {
		assert.True(t, product.InStock)
		assert.Equal(t, strPtr("12 in stock"), product.StockText)
	})

	t.Run("descriptions", func(t *testing.T) {
		assert.Equal(t, strPtr("Sweet cream ice cream with honeycomb toffee pieces.\nMade in small batches."), product.ShortDescription)
		require.NotNil(t, product.LongDescription)
		assert.Contains(t, *product.LongDescription, "Description\nOur honeycomb is made in-house.\n")
		assert.NotContains(t, *product.ShortDescription, "tracking")
	})

	t.Run("additional info", func(t *testing.T) {
		assert.Equal(t, []crawler.AdditionalInfo{
			{Key: "Size", Value: "Pint"},
			{Key: "Weight", Value: "1 lb"},
			{Key: "Dietary", Value: "Gluten free"},
		}, product.AdditionalInfo)
	})

	t.Run("taxonomy", func(t *testing.T) {
		assert.Equal(t, []crawler.Category{
			{Name: "Pints", URL: "https://shop.example.com/product-category/pints/", Slug: "pints"},
			{Name: "Classics", URL: "https://shop.example.com/product-category/pints/classics/", Slug: "classics"},
		}, product.Categories)
		assert.Equal(t, []string{"toffee", "bestseller"}, product.Tags)
		assert.Equal(t, strPtr("VL-HC-01"), product.SKU)
	})

	t.Run("images", func(t *testing.T) {
		require.NotNil(t, product.MainImage)
		assert.Equal(t, "https://shop.example.com/wp-content/uploads/honeycomb-1200x1200.jpg", product.MainImage.URL)
		assert.Equal(t, strPtr("Honeycomb pint"), product.MainImage.Alt)
		assert.Equal(t, intPtr(600), product.MainImage.Width)
		assert.Len(t, product.MainImage.Srcset, 3)

		require.Len(t, product.GalleryImages, 2)
		assert.Equal(t, "https://shop.example.com/wp-content/uploads/honeycomb.jpg", product.GalleryImages[0].URL)
		assert.Equal(t, intPtr(2000), product.GalleryImages[0].Width)
		assert.Equal(t, "https://shop.example.com/wp-content/uploads/honeycomb-scoop-600x600.jpg", product.GalleryImages[1].URL)
		assert.Nil(t, product.GalleryImages[1].Alt)
	})

	t.Run("food labelling", func(t *testing.T) {
		assert.Equal(t, strPtr("Ingredients: Cream, skim milk, cane sugar, egg yolks, honeycomb toffee."), product.Ingredients)
		assert.Equal(t, []string{"Milk", "Eggs", "Tree nuts", "Peanuts"}, product.Allergens)
		assert.Equal(t, []crawler.NutritionFact{
			{Label: "Calories", Value: "290"},
			{Label: "Total Fat", Value: "19g"},
		}, product.NutritionInfo)
		assert.Equal(t, strPtr("https://shop.example.com/wp-content/uploads/honeycomb-nutrition.pdf"), product.NutritionPDFURL)
	})
}

func TestParseProductDegradesGracefully(t *testing.T) {
	t.Parallel()

	product, err := NewProduct().ParseProduct(loadFixture(t, "product_minimal.html"), "https://shop.example.com/product/mystery/")
	require.NoError(t, err)

	assert.Equal(t, "Mystery Flavor", product.Name)
	assert.Equal(t, "mystery", product.Slug)
	assert.Equal(t, strPtr("9.99"), product.RegularPrice)
	assert.Nil(t, product.SalePrice)
	assert.Nil(t, product.CurrencySymbol)
	assert.Equal(t, strPtr("MY-1"), product.SKU)
	assert.False(t, product.InStock)
	assert.Equal(t, strPtr("Sold out"), product.StockText)
	assert.Nil(t, product.MainImage)
	assert.Empty(t, product.GalleryImages)
	assert.Empty(t, product.Categories)
	assert.Nil(t, product.Ingredients)
	assert.Empty(t, product.Allergens)
	assert.Nil(t, product.NutritionPDFURL)
	assert.False(t, product.TimestampCollected.IsZero())
}

func TestParseProductFallbacks(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<div class="product"><span class="sold-out">gone</span></div>
		<p class="price"><span class="amount">&pound;4.50</span></p>
	</body></html>`

	product, err := NewProduct().ParseProduct(html, "https://shop.example.com/product/nameless")
	require.NoError(t, err)

	assert.Equal(t, "Unknown Product", product.Name)
	assert.Equal(t, strPtr("£4.50"), product.RegularPrice)
	assert.False(t, product.InStock)
	assert.Equal(t, strPtr("Out of Stock"), product.StockText)
}

func TestParseProductIngredientsSkipsHeadings(t *testing.T) {
	t.Parallel()

	html := `<html><body class="single-product">
		<h1 class="product_title">Vanilla</h1>
		<div class="ingredients-panel">
			<span>Ingredients and allergens</span>
			<p>Ingredients: cream, skim milk, cane sugar, egg yolks.</p>
		</div>
	</body></html>`

	product, err := NewProduct().ParseProduct(html, "https://shop.example.com/product/vanilla/")
	require.NoError(t, err)

	assert.Equal(t, strPtr("Ingredients: cream, skim milk, cane sugar, egg yolks."), product.Ingredients)
}

func TestParseProductIngredientsNeedsAList(t *testing.T) {
	t.Parallel()

	html := `<html><body class="single-product">
		<h1 class="product_title">Vanilla</h1>
		<p>See the label for ingredients, thanks.</p>
	</body></html>`

	product, err := NewProduct().ParseProduct(html, "https://shop.example.com/product/vanilla/")
	require.NoError(t, err)

	assert.Nil(t, product.Ingredients)
}

func TestParseProductCategoriesRequireCategoryLinks(t *testing.T) {
	t.Parallel()

	html := `<html><body class="single-product">
		<h1 class="product_title">Vanilla</h1>
		<div class="product_meta">
			<span class="posted_in">Categories:
				<a href="/product-category/pints/">Pints</a>,
				<a href="/product-tag/summer/">Summer</a>,
				<a href="/brand/classic/">Classic</a>
			</span>
		</div>
	</body></html>`

	product, err := NewProduct().ParseProduct(html, "https://shop.example.com/product/vanilla/")
	require.NoError(t, err)

	require.Len(t, product.Categories, 1)
	assert.Equal(t, "Pints", product.Categories[0].Name)
	assert.Equal(t, "https://shop.example.com/product-category/pints/", product.Categories[0].URL)
}

func TestParseProductRejectsEmptyDocument(t *testing.T) {
	t.Parallel()

	_, err := NewProduct().ParseProduct("", "https://shop.example.com/product/x/")
	require.Error(t, err)
}

func TestParseSrcset(t *testing.T) {
	t.Parallel()

	candidates := ParseSrcset("a-300.jpg 300w, https://cdn.example.com/a-1200.jpg 1200w,a-600.jpg 600w, a@2x.jpg 2x", "https://shop.example.com/img/")
	require.Len(t, candidates, 4)
	assert.Equal(t, crawler.SrcsetCandidate{URL: "https://shop.example.com/img/a-300.jpg", Width: 300, Descriptor: "300w"}, candidates[0])
	assert.Equal(t, crawler.SrcsetCandidate{URL: "https://shop.example.com/img/a@2x.jpg", Descriptor: "2x"}, candidates[3])

	best, ok := largest(candidates)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/a-1200.jpg", best.URL)

	_, ok = largest(ParseSrcset("x.jpg 1x, y.jpg 2x", "https://shop.example.com/"))
	assert.False(t, ok)
}

func TestImageFromPrefersWidestSrcset(t *testing.T) {
	t.Parallel()

	root, err := parseHTML(`<img src="/p-300.jpg" srcset="/p-300.jpg 300w, /p-600.jpg 600w, /p-1200.jpg 1200w">`)
	require.NoError(t, err)
	img, ok := root.first("img")
	require.True(t, ok)

	image := imageFrom(img, "https://shop.example.com/product/p/")
	require.NotNil(t, image)
	assert.Equal(t, "https://shop.example.com/p-1200.jpg", image.URL)
	assert.Nil(t, image.Width)
}
