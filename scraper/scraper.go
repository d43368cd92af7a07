// Package scraper drives one harvesting run: it opens the listing in a
// browser, stabilizes it, harvests the records and streams them through the
// pipeline.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-parts/browser"
	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/harvester"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/aluiziolira/go-scrape-parts/pipeline"
	"github.com/aluiziolira/go-scrape-parts/stabilizer"
)

// Scraper runs the listing harvest against one browser engine.
type Scraper struct {
	cfg     *config.Config
	baseURL *url.URL
	engine  browser.Engine
	Metrics *Metrics

	// RunID is copied into the result.
	RunID string

	errorCount int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewScraper builds a scraper for cfg. A nil engine selects the one named
// by cfg.Engine.
func NewScraper(cfg *config.Config, engine browser.Engine) (*Scraper, error) {
	parsed, err := url.Parse(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("start url must include a host")
	}

	if engine == nil {
		engine, err = browser.New(cfg.Engine)
		if err != nil {
			return nil, err
		}
	}

	return &Scraper{
		cfg:          cfg,
		baseURL:      parsed,
		engine:       engine,
		Metrics:      NewMetrics(),
		errorsByType: make(map[string]int),
	}, nil
}

// Run harvests the listing and hands every record to p in a deterministic
// order. Recoverable failures are counted in the result; launch, navigation
// and snapshot failures abort the run.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result := &models.ScraperResult{
		RunID:     s.RunID,
		StartTime: time.Now(),
		Skipped:   map[string]int{},
	}

	session, err := browser.Launch(ctx, s.engine, browser.Options{
		Headless:          s.cfg.Headless,
		ExecPath:          s.cfg.ExecPath,
		UserAgent:         s.cfg.UserAgent,
		NoSandbox:         s.cfg.NoSandbox,
		NavigationTimeout: s.cfg.NavigationTimeout,
	})
	if err != nil {
		s.recordError("", err)
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Debug("closing browser session", slog.Any("error", err))
		}
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		s.recordError("", err)
		return nil, fmt.Errorf("open listing page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			slog.Debug("closing listing page", slog.Any("error", err))
		}
	}()

	slog.Info("opening listing", slog.String("url", s.cfg.StartURL), slog.String("engine", s.engine.Name()))
	if err := page.Navigate(ctx, s.cfg.StartURL); err != nil {
		err = classifyError("navigate", err)
		s.recordError(s.cfg.StartURL, err)
		return nil, fmt.Errorf("navigate %s: %w", s.cfg.StartURL, err)
	}

	if err := s.waitReady(ctx, page); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("listing not ready, continuing", slog.Any("error", err))
	}

	outcome, err := stabilizer.Run(ctx, page, stabilizer.Options{
		Policy: stabilizer.Policy{
			StableRounds: s.cfg.StableRounds,
			MaxRounds:    s.cfg.MaxRounds,
		},
		Signal:         stabilizer.Signal(s.cfg.Signal),
		ItemSelector:   s.cfg.ItemSelector,
		Controls:       browser.DefaultLoadMoreMatchers,
		ControlTimeout: s.cfg.ControlTimeout,
		SettleDelay:    s.cfg.SettleDelay,
		ScrollDelay:    s.cfg.ScrollDelay,
		JiggleOffset:   s.cfg.JiggleOffset,
		JiggleDelay:    s.cfg.JiggleDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("stabilize listing: %w", err)
	}
	result.Rounds = outcome.Rounds
	result.LoadMoreClicks = outcome.Clicks
	result.Converged = outcome.Converged
	result.FinalSignal = outcome.FinalSignal
	s.Metrics.ObserveRounds(outcome.Rounds)
	s.Metrics.AddClicks(outcome.Clicks)

	attrs := []any{
		slog.Int("rounds", outcome.Rounds),
		slog.Int("clicks", outcome.Clicks),
		slog.Int("signal", outcome.FinalSignal),
	}
	if outcome.Converged {
		slog.Info("listing stabilized", attrs...)
	} else {
		slog.Warn("round cap reached before the listing stabilized", attrs...)
	}

	doc, err := s.snapshot(ctx, page)
	if err != nil {
		s.recordError(s.cfg.StartURL, err)
		return nil, err
	}

	harvest := harvester.Harvest(doc, harvester.Rules{
		BaseURL:               s.baseURL,
		ItemSelector:          s.cfg.ItemSelector,
		CanonicalLinkSelector: s.cfg.CanonicalLinkSelector,
		ProductPathPrefix:     s.cfg.ProductPathPrefix,
		ExcludedIDs:           s.cfg.ExcludedIDs,
		TitleSelector:         s.cfg.TitleSelector,
		PriceSelector:         s.cfg.PriceSelector,
		SKUSelector:           s.cfg.SKUSelector,
		DedupeBySKU:           s.cfg.DedupeBySKU,
		ScrapedAt:             time.Now(),
	})
	result.Candidates = harvest.Candidates
	for reason, n := range harvest.Skipped {
		result.Skipped[reason] = n
		s.Metrics.AddCandidates(reason, n)
	}
	if harvest.Duplicates > 0 {
		result.Skipped["duplicate"] = harvest.Duplicates
		s.Metrics.AddCandidates("duplicate", harvest.Duplicates)
	}
	s.Metrics.AddCandidates("accepted", len(harvest.Products))

	slog.Info("harvested listing",
		slog.Int("candidates", harvest.Candidates),
		slog.Int("unique", len(harvest.Products)),
		slog.Int("duplicates", harvest.Duplicates),
	)

	products := harvest.Products
	if s.cfg.Details && len(products) > 0 {
		products = s.scrapeDetails(ctx, session, products)
		result.DetailPages = len(products)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	result.Harvested = len(products)

	batch := make([]*models.Product, len(products))
	for i := range products {
		batch[i] = &products[i]
	}
	if err := p.Process(batch...); err != nil {
		return nil, fmt.Errorf("pipeline process: %w", err)
	}
	s.Metrics.AddItems(len(batch))

	result.EndTime = time.Now()
	result.ErrorCount = int(atomic.LoadInt64(&s.errorCount))
	result.FailedURLs = s.snapshotFailedURLs()
	result.ErrorsByType = s.snapshotErrors()
	return result, nil
}

// waitReady waits for the first rendered product. A miss is recoverable.
func (s *Scraper) waitReady(ctx context.Context, page browser.Page) error {
	selector := strings.TrimSpace(s.cfg.ReadySelector)
	if selector == "" || s.cfg.ReadyTimeout <= 0 {
		return nil
	}
	err := page.WaitFor(ctx, selector, s.cfg.ReadyTimeout)
	if err == nil {
		return nil
	}
	if errors.Is(err, browser.ErrNotFound) {
		return ErrElementNotFound{Selector: selector, Err: err}
	}
	return classifyError("wait ready", err)
}

func (s *Scraper) snapshot(ctx context.Context, page browser.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot listing: %w", classifyError("snapshot", err))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing snapshot: %w", err)
	}
	return doc, nil
}

func (s *Scraper) recordError(target string, err error) {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)

	s.mu.Lock()
	s.errorsByType[category]++
	if target != "" {
		s.failedURLs = append(s.failedURLs, target)
	}
	s.mu.Unlock()

	s.Metrics.IncError(category)
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
