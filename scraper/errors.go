package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-parts/browser"
)

// ErrElementNotFound indicates a waited-for element never appeared.
type ErrElementNotFound struct {
	Selector string
	Err      error
}

func (e ErrElementNotFound) Error() string {
	return fmt.Errorf("element_not_found %q: %w", e.Selector, e.Err).Error()
}

func (e ErrElementNotFound) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates a page operation ran past its deadline.
type ErrTimeout struct {
	Op  string
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout during %s: %w", e.Op, e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrItemScrape indicates one detail page could not be scraped.
type ErrItemScrape struct {
	URL string
	Err error
}

func (e ErrItemScrape) Error() string {
	return fmt.Errorf("item_scrape %s: %w", e.URL, e.Err).Error()
}

func (e ErrItemScrape) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var notFound ErrElementNotFound
	if errors.As(err, &notFound) || errors.Is(err, browser.ErrNotFound) {
		return "element_not_found"
	}
	var launch *browser.LaunchError
	if errors.As(err, &launch) {
		return "launch"
	}
	var item ErrItemScrape
	if errors.As(err, &item) {
		return "item_scrape"
	}
	return "other"
}

// classifyError wraps raw page errors into the taxonomy above.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Op: op, Err: err}
	}
	return err
}
