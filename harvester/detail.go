package harvester

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/parser"
)

// UnknownTitle is used when a detail page yields no title at all.
const UnknownTitle = "Unknown"

// DetailRules locates fields on a standalone product page.
type DetailRules struct {
	PriceSelector string
	SKUSelector   string
}

// ExtractDetail reads a product page and merges it over the listing record.
// Availability read from listing attributes is kept; otherwise it comes from
// the page's visible text.
func ExtractDetail(doc *goquery.Document, listing models.Product, rules DetailRules) models.Product {
	root := parser.Candidate{Node: doc.Selection, Identifier: listing.Identifier}
	body := parser.Candidate{Node: doc.Find("body"), Identifier: listing.Identifier}
	if body.Node.Length() == 0 {
		body.Node = doc.Selection
	}

	out := listing
	out.Name = parser.FirstOf(root,
		parser.ChildText("h1"),
		parser.ChildAttr(`meta[property="og:title"]`, "content"),
		parser.Fixed(listing.Name),
		parser.SlugName(),
		parser.Fixed(UnknownTitle),
	)
	out.Price = parser.FirstOf(body,
		parser.PriceIn(rules.PriceSelector),
		parser.PriceInText(),
		parser.Fixed(listing.Price),
	)
	out.SKU = parser.FirstOf(body,
		parser.SKUIn(rules.SKUSelector),
		parser.SKUInText(),
		parser.Fixed(listing.SKU),
	)
	if !listing.StockSignal {
		out.Availability = parser.ClassifyText(parser.VisibleText(body.Node))
	}
	return out
}
