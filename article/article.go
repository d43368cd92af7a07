// Package article fetches an article page and extracts the paragraphs of its
// main content container.
package article

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// NoContentMessage is printed when the page has no content container.
const NoContentMessage = "No article content found."

// Options configures a Fetcher.
type Options struct {
	ContentSelector string
	UserAgent       string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
}

// DefaultOptions returns options for the tutorial article layout.
func DefaultOptions() Options {
	return Options{
		ContentSelector: "div.article--viewer_content",
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 5 * time.Second,
	}
}

// Article is the extracted content of one page.
type Article struct {
	URL string
	// Found is false when the content container is missing.
	Found      bool
	Paragraphs []string
	Attempts   int
}

// Lines returns the text to print for the article.
func (a *Article) Lines() []string {
	if !a.Found {
		return []string{NoContentMessage}
	}
	return a.Paragraphs
}

// Fetcher downloads article pages with colly.
type Fetcher struct {
	opts      Options
	collector *colly.Collector
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewFetcher builds a synchronous collector configured from opts.
func NewFetcher(opts Options) *Fetcher {
	if opts.ContentSelector == "" {
		opts.ContentSelector = DefaultOptions().ContentSelector
	}

	collectorOpts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}
	collector := colly.NewCollector(collectorOpts...)

	if opts.Timeout > 0 {
		collector.SetRequestTimeout(opts.Timeout)
	}
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Fetcher{
		opts:      opts,
		collector: collector,
		sleep:     sleep,
	}
}

// Fetch downloads pageURL and collects the trimmed text of every paragraph
// inside the first content container. Timeouts, connection failures and
// rate limiting are retried with capped exponential backoff; other HTTP
// failures are returned immediately.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Article, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c := f.collector.Clone()
	art := &Article{URL: pageURL}
	status := 0

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})
	c.OnHTML(f.opts.ContentSelector, func(e *colly.HTMLElement) {
		if art.Found {
			return
		}
		art.Found = true
		e.ForEach("p", func(_ int, p *colly.HTMLElement) {
			art.Paragraphs = append(art.Paragraphs, strings.TrimSpace(p.Text))
		})
	})

	for attempt := 1; ; attempt++ {
		art.Attempts = attempt
		art.Found, art.Paragraphs, status = false, nil, 0

		err := c.Visit(pageURL)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			slog.Debug("article fetched",
				slog.String("url", pageURL),
				slog.Int("status", status),
				slog.Int("paragraphs", len(art.Paragraphs)),
			)
			return art, nil
		}

		classified := classifyError(err, status)
		if !retryable(classified) || attempt > f.opts.MaxRetries {
			return nil, fmt.Errorf("fetch %s: %w", pageURL, classified)
		}

		delay := backoff(attempt, f.opts.RetryBackoff, f.opts.RetryBackoffMax)
		slog.Warn("retrying article fetch",
			slog.String("url", pageURL),
			slog.String("category", ErrorType(classified)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}
