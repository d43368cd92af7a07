package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-parts/browser"
	"github.com/aluiziolira/go-scrape-parts/harvester"
	"github.com/aluiziolira/go-scrape-parts/models"
)

type detailSlot struct {
	product models.Product
	ok      bool
}

// scrapeDetails opens every listing record in its own tab, at most
// cfg.Parallelism at a time. Each worker writes only its own slot; the
// successful slots are returned in listing order.
func (s *Scraper) scrapeDetails(ctx context.Context, session browser.Session, listing []models.Product) []models.Product {
	workers := s.cfg.Parallelism
	if workers <= 0 {
		workers = 1
	}
	if workers > len(listing) {
		workers = len(listing)
	}

	slots := make([]detailSlot, len(listing))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				slog.Info("scraping detail page",
					slog.String("progress", fmt.Sprintf("%d/%d", i+1, len(listing))),
					slog.String("url", listing[i].URL),
				)
				product, err := s.scrapeDetail(ctx, session, listing[i])
				if err != nil {
					if ctx.Err() == nil {
						slog.Error("detail page failed", slog.String("url", listing[i].URL), slog.Any("error", err))
					}
					s.recordError(listing[i].URL, err)
					continue
				}
				slots[i] = detailSlot{product: product, ok: true}
			}
		}()
	}

feed:
	for i := range listing {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	out := make([]models.Product, 0, len(listing))
	for _, slot := range slots {
		if slot.ok {
			out = append(out, slot.product)
		}
	}
	return out
}

// scrapeDetail reads one product page. The tab is closed on every path.
func (s *Scraper) scrapeDetail(ctx context.Context, session browser.Session, listing models.Product) (product models.Product, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		s.Metrics.ObserveDetail(status, time.Since(start))
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		return models.Product{}, ErrItemScrape{URL: listing.URL, Err: fmt.Errorf("open tab: %w", err)}
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Debug("closing detail tab", slog.String("url", listing.URL), slog.Any("error", closeErr))
		}
	}()

	if err := page.Navigate(ctx, listing.URL); err != nil {
		return models.Product{}, ErrItemScrape{URL: listing.URL, Err: classifyError("navigate", err)}
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return models.Product{}, ErrItemScrape{URL: listing.URL, Err: classifyError("snapshot", err)}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.Product{}, ErrItemScrape{URL: listing.URL, Err: err}
	}

	return harvester.ExtractDetail(doc, listing, harvester.DetailRules{
		PriceSelector: s.cfg.PriceSelector,
		SKUSelector:   s.cfg.SKUSelector,
	}), nil
}
