// Package models defines data structures for the harvester.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Availability is the stock status of a catalog entry.
type Availability int

const (
	InStock Availability = iota
	OutOfStock
)

func (a Availability) String() string {
	if a == OutOfStock {
		return "Out of stock"
	}
	return "In stock"
}

// MarshalText encodes the availability as its display string.
func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts the display strings written by MarshalText.
func (a *Availability) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "in stock", "instock", "":
		*a = InStock
	case "out of stock", "outofstock":
		*a = OutOfStock
	default:
		return fmt.Errorf("unknown availability %q", text)
	}
	return nil
}

// Product is one catalog entry harvested from the storefront.
type Product struct {
	Identifier   string       `json:"identifier"`
	Name         string       `json:"name"`
	Price        string       `json:"price,omitempty"`
	SKU          string       `json:"sku,omitempty"`
	Availability Availability `json:"availability"`
	URL          string       `json:"url"`
	ScrapedAt    time.Time    `json:"scraped_at"`

	// StockSignal is set when Availability came from structured listing
	// data rather than the default.
	StockSignal bool `json:"-"`
}

// ScraperResult holds the overall result of a harvesting run.
type ScraperResult struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	Rounds         int
	LoadMoreClicks int
	Converged      bool
	FinalSignal    int

	Candidates   int
	Skipped      map[string]int
	Harvested    int
	DetailPages  int
	TotalCount   int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
}
