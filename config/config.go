package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Config holds harvester configuration.
type Config struct {
	StartURL string

	// Rendering surface.
	Engine            string // chromedp or playwright
	Headless          bool
	ExecPath          string
	UserAgent         string
	NoSandbox         bool
	NavigationTimeout time.Duration
	ReadySelector     string
	ReadyTimeout      time.Duration

	// Listing selectors.
	ItemSelector          string
	CanonicalLinkSelector string
	ProductPathPrefix     string
	TitleSelector         string
	PriceSelector         string
	SKUSelector           string
	ExcludedIDs           []string

	// Stabilization.
	Signal         string // count or height
	MaxRounds      int
	StableRounds   int
	SettleDelay    time.Duration
	ScrollDelay    time.Duration
	JiggleOffset   int
	JiggleDelay    time.Duration
	ControlTimeout time.Duration

	// Harvest and detail pages.
	Details        bool
	Parallelism    int
	DedupeBySKU    bool
	OutOfStockOnly bool

	// Pipeline and output.
	DedupeMaxSize      int
	BatchSize          int
	PipelineBufferSize int
	OutputFile         string
	OutputFormat       string // comma-separated csv, json, table; dual means csv,json
	CSVLayout          string // minimal or detailed
	MetricsAddr        string
	Verbose            bool
}

// DefaultConfig returns the settings for the parts collection storefront.
func DefaultConfig() *Config {
	return &Config{
		StartURL: "https://www.riderawrr.com/collection/parts",

		Engine:            "chromedp",
		Headless:          true,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		NavigationTimeout: 45 * time.Second,
		ReadySelector:     "smootify-product[data-stock]",
		ReadyTimeout:      60 * time.Second,

		ItemSelector:          "smootify-product",
		CanonicalLinkSelector: `a[product="url"]`,
		ProductPathPrefix:     "/product/",
		TitleSelector:         `h5[product="title"].product-title, h5.product-title, [product="title"]`,
		PriceSelector:         `[product="price"], .product-price, .price`,
		SKUSelector:           `[product="sku"], .product-sku, .sku`,
		ExcludedIDs:           []string{"search"},

		Signal:         "count",
		MaxRounds:      50,
		StableRounds:   3,
		SettleDelay:    800 * time.Millisecond,
		ScrollDelay:    900 * time.Millisecond,
		JiggleOffset:   200,
		JiggleDelay:    250 * time.Millisecond,
		ControlTimeout: 2 * time.Second,

		Details:     false,
		Parallelism: 4,

		DedupeMaxSize:      100_000,
		BatchSize:          64,
		PipelineBufferSize: 512,
		OutputFile:         "output/parts.csv",
		OutputFormat:       "csv",
		CSVLayout:          "detailed",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("start URL must include a host")
	}

	switch c.Engine {
	case "chromedp", "playwright":
	default:
		return fmt.Errorf("engine must be chromedp or playwright")
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("ready timeout cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if strings.TrimSpace(c.ItemSelector) == "" {
		return fmt.Errorf("item selector cannot be empty")
	}
	if strings.TrimSpace(c.CanonicalLinkSelector) == "" {
		return fmt.Errorf("canonical link selector cannot be empty")
	}
	if !strings.HasPrefix(c.ProductPathPrefix, "/") {
		return fmt.Errorf("product path prefix must start with /")
	}

	if c.Signal != "count" && c.Signal != "height" {
		return fmt.Errorf("signal must be count or height")
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("max rounds must be positive")
	}
	if c.StableRounds <= 0 {
		return fmt.Errorf("stable rounds must be positive")
	}
	if c.StableRounds >= c.MaxRounds {
		return fmt.Errorf("stable rounds (%d) must be lower than max rounds (%d)", c.StableRounds, c.MaxRounds)
	}
	if c.SettleDelay < 0 || c.ScrollDelay < 0 || c.JiggleDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.JiggleOffset < 0 {
		return fmt.Errorf("jiggle offset cannot be negative")
	}
	if c.ControlTimeout <= 0 {
		return fmt.Errorf("control timeout must be positive")
	}

	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}

	formats, err := OutputFormats(c.OutputFormat)
	if err != nil {
		return err
	}
	if c.OutputFile == "" && !slices.Equal(formats, []string{"table"}) {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.CSVLayout != "minimal" && c.CSVLayout != "detailed" {
		return fmt.Errorf("csv layout must be minimal or detailed")
	}

	return nil
}

// OutputFormats splits a comma-separated format list such as "csv,table"
// into its distinct formats in the order given. "dual" stands for csv and json.
func OutputFormats(spec string) ([]string, error) {
	var formats []string
	add := func(f string) {
		if !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	for _, f := range strings.Split(spec, ",") {
		switch f = strings.ToLower(strings.TrimSpace(f)); f {
		case "csv", "json", "table":
			add(f)
		case "dual":
			add("csv")
			add("json")
		default:
			return nil, fmt.Errorf("output format must be csv, json, dual, or table, got %q", f)
		}
	}
	return formats, nil
}
