package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Candidate is a node being turned into a record: the card (or document
// root for detail pages), its canonical link and the identifier derived
// from that link.
type Candidate struct {
	Node       *goquery.Selection
	Link       *goquery.Selection
	Identifier string
}

// Extractor yields one field value from a candidate.
type Extractor func(Candidate) (string, bool)

// FirstOf applies the chain in order and returns the first non-empty value.
func FirstOf(c Candidate, chain ...Extractor) string {
	for _, extract := range chain {
		if value, ok := extract(c); ok && value != "" {
			return value
		}
	}
	return ""
}

// ChildText returns the normalised text of the first descendant matching
// selector that has any text.
func ChildText(selector string) Extractor {
	return func(c Candidate) (string, bool) {
		if c.Node == nil || selector == "" {
			return "", false
		}
		var out string
		c.Node.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = NormalizeSpace(s.Text())
			return out == ""
		})
		return out, out != ""
	}
}

// ChildAttr returns the trimmed attribute of the first descendant matching
// selector that carries it.
func ChildAttr(selector, attr string) Extractor {
	return func(c Candidate) (string, bool) {
		if c.Node == nil {
			return "", false
		}
		var out string
		c.Node.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr(attr); ok {
				out = NormalizeSpace(v)
			}
			return out == ""
		})
		return out, out != ""
	}
}

// LinkText returns the canonical link's own text.
func LinkText() Extractor {
	return func(c Candidate) (string, bool) {
		if c.Link == nil || c.Link.Length() == 0 {
			return "", false
		}
		text := NormalizeSpace(c.Link.First().Text())
		return text, text != ""
	}
}

// LinkAttr returns an attribute of the canonical link, such as aria-label.
func LinkAttr(attr string) Extractor {
	return func(c Candidate) (string, bool) {
		if c.Link == nil || c.Link.Length() == 0 {
			return "", false
		}
		v, ok := c.Link.First().Attr(attr)
		if !ok {
			return "", false
		}
		v = NormalizeSpace(v)
		return v, v != ""
	}
}

// SlugName derives a title from the identifier's last path segment.
func SlugName() Extractor {
	return func(c Candidate) (string, bool) {
		name := SlugTitle(c.Identifier)
		return name, name != ""
	}
}

// Fixed returns value as-is; used to feed an already known value into a chain.
func Fixed(value string) Extractor {
	value = NormalizeSpace(value)
	return func(Candidate) (string, bool) {
		return value, value != ""
	}
}

// PriceIn scans descendants matching selector for the first currency amount.
func PriceIn(selector string) Extractor {
	return func(c Candidate) (string, bool) {
		if c.Node == nil || selector == "" {
			return "", false
		}
		var out string
		c.Node.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out, _ = FindPrice(s.Text())
			return out == ""
		})
		return out, out != ""
	}
}

// PriceInText scans the candidate's visible text for a currency amount.
func PriceInText() Extractor {
	return func(c Candidate) (string, bool) {
		if c.Node == nil {
			return "", false
		}
		return FindPrice(VisibleText(c.Node))
	}
}

// SKUInText extracts the token following a "SKU" marker in the candidate's
// visible text.
func SKUInText() Extractor {
	return func(c Candidate) (string, bool) {
		if c.Node == nil {
			return "", false
		}
		return FindSKU(VisibleText(c.Node))
	}
}

// SKUIn returns the text of a dedicated SKU element, stripping a leading
// "SKU:" label when the element carries one.
func SKUIn(selector string) Extractor {
	text := ChildText(selector)
	return func(c Candidate) (string, bool) {
		v, ok := text(c)
		if !ok {
			return "", false
		}
		if sku, found := FindSKU(v); found && strings.HasPrefix(strings.ToUpper(v), "SKU") {
			return sku, true
		}
		return v, true
	}
}
