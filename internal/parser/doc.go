// Package parser turns storefront HTML into crawl links and product records.
//
// Storefront themes disagree on markup, so every field is extracted through
// an ordered table of selector rules. Link rules are unioned; field rules are
// tried in order until one yields a non-empty value. All queries go through
// the small node wrapper in dom.go so rules never touch goquery directly.
package parser
