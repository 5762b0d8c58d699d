package parser

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// ParseSrcset splits a srcset attribute into candidates. Candidate URLs are
// resolved against base; entries that fail to resolve are dropped.
func ParseSrcset(srcset, base string) []crawler.SrcsetCandidate {
	var out []crawler.SrcsetCandidate
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		resolved, err := crawler.Resolve(base, fields[0])
		if err != nil {
			continue
		}
		candidate := crawler.SrcsetCandidate{URL: resolved}
		if len(fields) > 1 {
			candidate.Descriptor = fields[1]
			if w, ok := strings.CutSuffix(fields[1], "w"); ok {
				if width, err := strconv.Atoi(w); err == nil && width > 0 {
					candidate.Width = width
				}
			}
		}
		out = append(out, candidate)
	}
	return out
}

// largest returns the candidate with the greatest width, if any has one.
func largest(candidates []crawler.SrcsetCandidate) (crawler.SrcsetCandidate, bool) {
	var (
		best  crawler.SrcsetCandidate
		found bool
	)
	for _, c := range candidates {
		if c.Width > 0 && (!found || c.Width > best.Width) {
			best = c
			found = true
		}
	}
	return best, found
}

// imageFrom builds an image record from an img element. The widest srcset
// candidate replaces src when present. Returns nil when the element has no
// usable source.
func imageFrom(img node, base string) *crawler.ProductImage {
	src := firstAttr(img, imageSourceAttrs, func(v string) bool {
		return !strings.HasPrefix(strings.ToLower(v), "data:")
	})
	srcset := firstAttr(img, srcsetAttrs, nil)
	if src == "" && srcset == "" {
		return nil
	}

	image := &crawler.ProductImage{}
	if src != "" {
		if resolved, err := crawler.Resolve(base, src); err == nil {
			image.URL = resolved
		}
	}
	if srcset != "" {
		image.Srcset = ParseSrcset(srcset, base)
		if best, ok := largest(image.Srcset); ok {
			image.URL = best.URL
		} else if image.URL == "" && len(image.Srcset) > 0 {
			image.URL = image.Srcset[0].URL
		}
	}
	if image.URL == "" {
		return nil
	}

	if alt, ok := img.sel.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
		alt = strings.TrimSpace(alt)
		image.Alt = &alt
	}
	image.Width = positiveInt(img.attr("width"))
	image.Height = positiveInt(img.attr("height"))
	return image
}

// imageFromLarge builds an image record from data-large_image attributes.
func imageFromLarge(n node, base string) *crawler.ProductImage {
	large := n.attr("data-large_image")
	if large == "" {
		return nil
	}
	resolved, err := crawler.Resolve(base, large)
	if err != nil {
		return nil
	}
	return &crawler.ProductImage{
		URL:    resolved,
		Width:  positiveInt(n.attr("data-large_image_width")),
		Height: positiveInt(n.attr("data-large_image_height")),
	}
}

func firstAttr(n node, names []string, accept func(string) bool) string {
	for _, name := range names {
		v := n.attr(name)
		if v == "" {
			continue
		}
		if accept != nil && !accept(v) {
			continue
		}
		return v
	}
	return ""
}

func positiveInt(raw string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}
