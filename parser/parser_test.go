package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-parts/models"
)

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{
			name: "valid product",
			product: &models.Product{
				Identifier: "/product/brake-lever",
				Name:       "Brake Lever",
				URL:        "https://shop.example/product/brake-lever",
				ScrapedAt:  time.Now(),
			},
			wantErr: false,
		},
		{
			name:    "nil product",
			product: nil,
			wantErr: true,
		},
		{
			name: "missing name",
			product: &models.Product{
				Identifier: "/product/brake-lever",
				Name:       "   ",
				URL:        "https://shop.example/product/brake-lever",
			},
			wantErr: true,
		},
		{
			name: "missing identifier",
			product: &models.Product{
				Name: "Brake Lever",
				URL:  "https://shop.example/product/brake-lever",
			},
			wantErr: true,
		},
		{
			name: "missing url",
			product: &models.Product{
				Identifier: "/product/brake-lever",
				Name:       "Brake Lever",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlugTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/product/front-brake-lever", "Front Brake Lever"},
		{"/product/front-brake-lever/", "Front Brake Lever"},
		{"/product/LED-headlight-KIT", "Led Headlight Kit"},
		{"/product/chain?variant=2", "Chain"},
		{"front--fork", "Front Fork"},
		{"", ""},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SlugTitle(tt.input); got != tt.expected {
				t.Errorf("SlugTitle(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindPrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{name: "plain", input: "Price: $49.99", expected: "$49.99", ok: true},
		{name: "thousands", input: "now $1,299.00 only", expected: "$1,299.00", ok: true},
		{name: "spaced symbol", input: "$ 12", expected: "$ 12", ok: true},
		{name: "first wins", input: "$10.00 was $15.00", expected: "$10.00", ok: true},
		{name: "no amount", input: "Call for price", ok: false},
		{name: "other currency", input: "£10.00", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindPrice(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("FindPrice(%q) = %q/%v, want %q/%v", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestFindSKU(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{name: "colon", input: "SKU: RW-1042", expected: "RW-1042", ok: true},
		{name: "lowercase marker", input: "sku rw.55/b", expected: "rw.55/b", ok: true},
		{name: "trailing punctuation", input: "Part SKU-AB12.", expected: "AB12", ok: true},
		{name: "no marker", input: "Part number 44", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindSKU(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("FindSKU(%q) = %q/%v, want %q/%v", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestClassifyAttributes(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected models.Availability
		signal   bool
	}{
		{name: "zero stock", html: `<smootify-product data-stock="0"></smootify-product>`, expected: models.OutOfStock, signal: true},
		{name: "zero stock padded", html: `<smootify-product data-stock=" 0 "></smootify-product>`, expected: models.OutOfStock, signal: true},
		{name: "not available class", html: `<smootify-product class="card is-not-available" data-stock="4"></smootify-product>`, expected: models.OutOfStock, signal: true},
		{name: "currently out of stock class", html: `<smootify-product class="IS-CURRENTLY-OUT-OF-STOCK"></smootify-product>`, expected: models.OutOfStock, signal: true},
		{name: "positive stock", html: `<smootify-product data-stock="7"></smootify-product>`, expected: models.InStock, signal: true},
		{name: "no signals", html: `<smootify-product class="card"></smootify-product>`, expected: models.InStock},
		{name: "non numeric stock", html: `<smootify-product data-stock="many"></smootify-product>`, expected: models.InStock},
		{name: "class substring is not a token", html: `<smootify-product class="was-not-available-before"></smootify-product>`, expected: models.InStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := firstNode(t, tt.html, "smootify-product")
			if got := ClassifyAttributes(node); got != tt.expected {
				t.Errorf("ClassifyAttributes() = %v, want %v", got, tt.expected)
			}
			got, signal := AttributeAvailability(node)
			if got != tt.expected || signal != tt.signal {
				t.Errorf("AttributeAvailability() = %v, %v, want %v, %v", got, signal, tt.expected, tt.signal)
			}
		})
	}
}

func TestVisibleText(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "adjacent blocks",
			html:     `<div><h1>Chain Guard</h1><p>Sold out</p></div>`,
			expected: "Chain Guard Sold out",
		},
		{
			name:     "hidden content skipped",
			html:     `<div><script>var sku = "SKU: JS-1";</script><style>.x{}</style><noscript>Sold out</noscript><p>Add  to cart</p></div>`,
			expected: "Add to cart",
		},
		{
			name:     "nested inline",
			html:     `<div><p>Only <b>$24.50</b> today<!-- promo --></p></div>`,
			expected: "Only $24.50 today",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VisibleText(firstNode(t, tt.html, "div")); got != tt.expected {
				t.Errorf("VisibleText() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestClassifyText(t *testing.T) {
	tests := []struct {
		input    string
		expected models.Availability
	}{
		{"This item is Out of Stock", models.OutOfStock},
		{"SOLD OUT", models.OutOfStock},
		{"Currently unavailable online", models.OutOfStock},
		{"outofstock", models.OutOfStock},
		{"Add to cart", models.InStock},
		{"", models.InStock},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ClassifyText(tt.input); got != tt.expected {
				t.Errorf("ClassifyText(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNameChain(t *testing.T) {
	chain := func() []Extractor {
		return []Extractor{
			ChildText(`[product="title"]`),
			LinkText(),
			LinkAttr("aria-label"),
			LinkAttr("title"),
			SlugName(),
		}
	}

	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "title element",
			html:     `<div><h5 product="title"> Rear  Shock </h5><a product="url" href="/product/rear-shock">View</a></div>`,
			expected: "Rear Shock",
		},
		{
			name:     "link text",
			html:     `<div><h5 product="title"></h5><a product="url" href="/product/rear-shock">Rear Shock Pro</a></div>`,
			expected: "Rear Shock Pro",
		},
		{
			name:     "aria label",
			html:     `<div><a product="url" href="/product/rear-shock" aria-label="Shock (rear)"></a></div>`,
			expected: "Shock (rear)",
		},
		{
			name:     "title attribute",
			html:     `<div><a product="url" href="/product/rear-shock" title="Rear shock absorber"><img></a></div>`,
			expected: "Rear shock absorber",
		},
		{
			name:     "slug",
			html:     `<div><a product="url" href="/product/rear-shock"><img></a></div>`,
			expected: "Rear Shock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := firstNode(t, tt.html, "div")
			link := node.Find(`a[product="url"]`)
			href, _ := link.Attr("href")
			c := Candidate{Node: node, Link: link, Identifier: href}
			if got := FirstOf(c, chain()...); got != tt.expected {
				t.Errorf("FirstOf() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPriceAndSKUChains(t *testing.T) {
	html := `<div>
		<span class="badge">Save $5</span>
		<span class="price">Sale $1,049.50</span>
		<p>Specs. SKU: FRK-300 fits all models.</p>
		<span class="product-sku">SKU: FRK-300B</span>
	</div>`
	node := firstNode(t, html, "div")
	c := Candidate{Node: node}

	if got := FirstOf(c, PriceIn(".price"), PriceInText()); got != "$1,049.50" {
		t.Errorf("price from element = %q", got)
	}
	if got := FirstOf(c, PriceIn(".missing"), PriceInText()); got != "$5" {
		t.Errorf("price from text = %q", got)
	}
	if got := FirstOf(c, SKUIn(".product-sku"), SKUInText()); got != "FRK-300B" {
		t.Errorf("sku from element = %q", got)
	}
	if got := FirstOf(c, SKUIn(".missing"), SKUInText()); got != "FRK-300" {
		t.Errorf("sku from text = %q", got)
	}
	if got := FirstOf(c, SKUIn(".missing")); got != "" {
		t.Errorf("empty chain result = %q", got)
	}

	joined := Candidate{Node: firstNode(t, `<section><h1>Chain Guard</h1><div>SKU: CG-1</div></section>`, "section")}
	if got := FirstOf(joined, SKUInText()); got != "CG-1" {
		t.Errorf("sku after a heading = %q, want CG-1", got)
	}
}

func TestNormalizeSpace(t *testing.T) {
	if got := NormalizeSpace("  Brake \n\t Lever  "); got != "Brake Lever" {
		t.Fatalf("NormalizeSpace = %q", got)
	}
}

func firstNode(t *testing.T, html, selector string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		t.Fatalf("fixture has no %q", selector)
	}
	return node
}
