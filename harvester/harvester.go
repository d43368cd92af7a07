// Package harvester turns a stabilized listing document into product records.
package harvester

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/parser"
)

// Skip reasons reported in Result.Skipped.
const (
	SkipNoCanonicalLink = "no_canonical_link"
	SkipExcludedID      = "excluded_id"
	SkipNoName          = "no_name"
)

// Rules describes how to find and read product cards in a listing.
type Rules struct {
	// BaseURL resolves relative canonical links into absolute URLs.
	BaseURL *url.URL

	ItemSelector          string
	CanonicalLinkSelector string
	ProductPathPrefix     string
	// ExcludedIDs lists data-id values (case-insensitive) of cards that
	// share the item container but are not products, such as a search widget.
	ExcludedIDs []string

	TitleSelector string
	PriceSelector string
	SKUSelector   string

	DedupeBySKU bool
	// ScrapedAt stamps every record of the harvest.
	ScrapedAt time.Time
}

// Result is the outcome of one harvest.
type Result struct {
	Products   []models.Product
	Candidates int
	Skipped    map[string]int
	Duplicates int
}

// Harvest reads every card matching ItemSelector, skips non-product cards,
// extracts a record per card, drops duplicates in document order and
// returns the records sorted.
func Harvest(doc *goquery.Document, rules Rules) Result {
	res := Result{Skipped: map[string]int{}}
	excluded := make(map[string]struct{}, len(rules.ExcludedIDs))
	for _, id := range rules.ExcludedIDs {
		excluded[strings.ToLower(strings.TrimSpace(id))] = struct{}{}
	}

	var records []models.Product
	doc.Find(rules.ItemSelector).Each(func(_ int, node *goquery.Selection) {
		res.Candidates++

		c, ok := canonical(node, rules)
		if !ok {
			res.Skipped[SkipNoCanonicalLink]++
			return
		}
		if id, has := node.Attr("data-id"); has {
			if _, skip := excluded[strings.ToLower(strings.TrimSpace(id))]; skip {
				res.Skipped[SkipExcludedID]++
				return
			}
		}

		p, ok := extract(c, rules)
		if !ok {
			res.Skipped[SkipNoName]++
			return
		}
		records = append(records, p)
	})

	res.Products, res.Duplicates = Dedupe(records, rules.DedupeBySKU)
	Sort(res.Products)
	return res
}

// canonical finds the first canonical link under node that points at a
// storefront product page.
func canonical(node *goquery.Selection, rules Rules) (parser.Candidate, bool) {
	var c parser.Candidate
	node.Find(rules.CanonicalLinkSelector).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		path, ok := productPath(href, rules.ProductPathPrefix, rules.BaseURL)
		if !ok {
			return true
		}
		c = parser.Candidate{Node: node, Link: link, Identifier: path}
		return false
	})
	return c, c.Link != nil
}

// productPath returns the path of href when it names a product page. Links
// carrying a host must point at the storefront's own host.
func productPath(href, prefix string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if u.Host != "" && base != nil && !strings.EqualFold(u.Host, base.Host) {
		return "", false
	}
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	return u.Path, true
}

func extract(c parser.Candidate, rules Rules) (models.Product, bool) {
	name := parser.FirstOf(c,
		parser.ChildText(rules.TitleSelector),
		parser.LinkText(),
		parser.LinkAttr("aria-label"),
		parser.LinkAttr("title"),
		parser.SlugName(),
	)
	if name == "" {
		return models.Product{}, false
	}

	availability, signal := parser.AttributeAvailability(c.Node)
	return models.Product{
		Identifier:   c.Identifier,
		Name:         name,
		Price:        parser.FirstOf(c, parser.PriceIn(rules.PriceSelector), parser.PriceInText()),
		SKU:          parser.FirstOf(c, parser.SKUIn(rules.SKUSelector), parser.SKUInText()),
		Availability: availability,
		URL:          absolute(rules.BaseURL, c.Link),
		ScrapedAt:    rules.ScrapedAt,
		StockSignal:  signal,
	}, true
}

func absolute(base *url.URL, link *goquery.Selection) string {
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
