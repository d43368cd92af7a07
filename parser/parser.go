package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-parts/models"
)

var (
	priceRE      = regexp.MustCompile(`\$\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)
	skuRE        = regexp.MustCompile(`(?i)\bSKU[:\s-]*([A-Za-z0-9\-._/]+)\b`)
	outOfStockRE = regexp.MustCompile(`(?i)\b(out\s*of\s*stock|sold\s*out|unavailable)\b`)
)

// Class tokens a storefront uses to mark a card as unavailable.
var outOfStockClasses = map[string]struct{}{
	"is-not-available":          {},
	"is-currently-out-of-stock": {},
	"out-of-stock":              {},
	"sold-out":                  {},
}

// StockAttribute holds the numeric stock count on a listing card.
const StockAttribute = "data-stock"

// ValidateProduct ensures the harvester produced the required fields.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Identifier) == "" {
		return fmt.Errorf("product missing identifier")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product missing name for %s", p.Identifier)
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing url for %s", p.Identifier)
	}
	return nil
}

// NormalizeSpace collapses runs of whitespace and trims the result.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FindPrice returns the first currency amount in text.
func FindPrice(text string) (string, bool) {
	match := priceRE.FindString(text)
	if match == "" {
		return "", false
	}
	return match, true
}

// FindSKU returns the token following a "SKU" marker in text.
func FindSKU(text string) (string, bool) {
	m := skuRE.FindStringSubmatch(text)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// SlugTitle turns the last path segment of href into a title:
// "/product/front-brake-lever" becomes "Front Brake Lever".
func SlugTitle(href string) string {
	href = strings.TrimRight(href, "/")
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	slug := href
	if i := strings.LastIndex(href, "/"); i >= 0 {
		slug = href[i+1:]
	}

	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
}

// ClassifyAttributes reads availability from a listing card's class tokens
// and stock attribute. A card without any signal is in stock.
func ClassifyAttributes(node *goquery.Selection) models.Availability {
	a, _ := AttributeAvailability(node)
	return a
}

// AttributeAvailability is ClassifyAttributes that also reports whether the
// card carried structured stock data: an out-of-stock class token or a
// numeric stock attribute.
func AttributeAvailability(node *goquery.Selection) (models.Availability, bool) {
	if class, ok := node.Attr("class"); ok {
		for _, token := range strings.Fields(strings.ToLower(class)) {
			if _, hit := outOfStockClasses[token]; hit {
				return models.OutOfStock, true
			}
		}
	}

	if raw, ok := node.Attr(StockAttribute); ok {
		if stock, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			if stock == 0 {
				return models.OutOfStock, true
			}
			return models.InStock, true
		}
	}

	return models.InStock, false
}

// ClassifyText matches out-of-stock phrases in visible page text. Used when
// no structured availability data exists, e.g. on a standalone product page.
func ClassifyText(text string) models.Availability {
	if outOfStockRE.MatchString(text) {
		return models.OutOfStock
	}
	return models.InStock
}
