package crawler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestProductFlatRecord(t *testing.T) {
	p := Product{
		ProductURL:   "https://shop.test/product/honeycomb/",
		Slug:         "honeycomb",
		Name:         "Honeycomb",
		PriceText:    strPtr("$12.00"),
		RegularPrice: strPtr("$12.00"),
		InStock:      true,
		Categories: []Category{
			{Name: "Pints", URL: "https://shop.test/category/pints/", Slug: "pints"},
			{Name: "Classics"},
		},
		Tags:          []string{"vegan", "new"},
		MainImage:     &ProductImage{URL: "https://cdn.shop.test/honeycomb.jpg"},
		GalleryImages: []ProductImage{{URL: "a"}, {URL: "b"}},
		Allergens:     []string{"Milk", "Eggs"},
		TimestampCollected: time.Date(2024, 1, 2, 3, 4, 5, 0,
			time.FixedZone("PST", -8*3600)),
	}

	row := p.FlatRecord()
	require.Len(t, row, len(CSVHeader))

	byName := make(map[string]string, len(row))
	for i, col := range CSVHeader {
		byName[col] = row[i]
	}
	assert.Equal(t, "honeycomb", byName["slug"])
	assert.Equal(t, "$12.00", byName["price_text"])
	assert.Equal(t, "", byName["sale_price"])
	assert.Equal(t, "true", byName["in_stock"])
	assert.Equal(t, "Pints, Classics", byName["categories"])
	assert.Equal(t, "vegan, new", byName["tags"])
	assert.Equal(t, "https://cdn.shop.test/honeycomb.jpg", byName["main_image_url"])
	assert.Equal(t, "2", byName["gallery_image_count"])
	assert.Equal(t, "Milk, Eggs", byName["allergens"])
	assert.Equal(t, "2024-01-02T11:04:05Z", byName["timestamp_collected"])
}

func TestProductFlatRecordEmpty(t *testing.T) {
	row := Product{ProductURL: "u", Name: "Unknown Product"}.FlatRecord()
	require.Len(t, row, len(CSVHeader))
	assert.Equal(t, "false", row[8])
	assert.Equal(t, "", row[13])
	assert.Equal(t, "0", row[14])
}

func TestProductJSONEmptyLists(t *testing.T) {
	p := Product{
		ProductURL: "https://shop.test/product/mystery/",
		Name:       "Mystery",
		MainImage:  &ProductImage{URL: "https://cdn.shop.test/mystery.jpg"},
	}

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"additionalInfo", "categories", "tags", "galleryImages", "allergens", "nutritionInfo"} {
		assert.JSONEq(t, "[]", string(fields[key]), key)
	}
	assert.JSONEq(t, "null", string(fields["ingredients"]))

	var image map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fields["mainImage"], &image))
	assert.JSONEq(t, "[]", string(image["srcset"]))
}

func TestProductJSONKeepsListContents(t *testing.T) {
	p := Product{
		Tags:          []string{"vegan"},
		GalleryImages: []ProductImage{{URL: "a", Srcset: []SrcsetCandidate{{URL: "a-600", Width: 600}}}},
	}

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Product
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []string{"vegan"}, decoded.Tags)
	assert.Equal(t, p.GalleryImages, decoded.GalleryImages)
}
