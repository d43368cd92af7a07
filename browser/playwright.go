package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Playwright drives Chromium through the Playwright driver.
type Playwright struct{}

// NewPlaywright returns the playwright engine.
func NewPlaywright() *Playwright {
	return &Playwright{}
}

func (e *Playwright) Name() string { return "playwright" }

// Install fetches the driver and the Chromium build.
func (e *Playwright) Install(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

func (e *Playwright) Start(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(opts.Headless)}
	if opts.ExecPath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecPath)
	}
	if opts.NoSandbox {
		launch.Args = []string{"--no-sandbox", "--disable-setuid-sandbox", "--disable-dev-shm-usage"}
	}
	b, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{UserAgent: playwright.String(ua)})
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	return &playwrightSession{pw: pw, browser: b, bctx: bctx, navTimeout: opts.NavigationTimeout}, nil
}

type playwrightSession struct {
	pw         *playwright.Playwright
	browser    playwright.Browser
	bctx       playwright.BrowserContext
	navTimeout time.Duration
}

func (s *playwrightSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pg, err := s.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &playwrightPage{page: pg, navTimeout: s.navTimeout}, nil
}

func (s *playwrightSession) Close() error {
	return errors.Join(s.bctx.Close(), s.browser.Close(), s.pw.Stop())
}

type playwrightPage struct {
	page       playwright.Page
	navTimeout time.Duration
}

// millis converts a timeout for the playwright API, bounded by ctx's deadline.
func millis(ctx context.Context, d time.Duration) *float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); d <= 0 || left < d {
			d = left
		}
	}
	if d <= 0 {
		return playwright.Float(0)
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(ctx, p.navTimeout),
	})
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: millis(ctx, timeout),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return err
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := p.page.Evaluate(script)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode evaluation result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (p *playwrightPage) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) ScrollHeight(ctx context.Context) (int, error) {
	var h int
	if err := p.Evaluate(ctx, scrollHeightScript, &h); err != nil {
		return 0, err
	}
	return h, nil
}

func (p *playwrightPage) ScrollToBottom(ctx context.Context) error {
	return p.Evaluate(ctx, scrollToBottomScript, nil)
}

func (p *playwrightPage) ScrollBy(ctx context.Context, dy int) error {
	return p.Evaluate(ctx, scrollByScript(dy), nil)
}

// locator builds the playwright locator for m.
func (p *playwrightPage) locator(m Matcher) (playwright.Locator, error) {
	var re *regexp.Regexp
	if m.Pattern != "" {
		var err error
		if re, err = regexp.Compile("(?i)" + m.Pattern); err != nil {
			return nil, fmt.Errorf("matcher %s: %w", m, err)
		}
	}

	switch m.Kind {
	case MatchRole:
		opts := playwright.PageGetByRoleOptions{}
		if re != nil {
			opts.Name = re
		}
		return p.page.GetByRole(playwright.AriaRole(m.Role), opts), nil
	case MatchText:
		if re == nil {
			return nil, fmt.Errorf("matcher %s: empty pattern", m)
		}
		return p.page.GetByText(re), nil
	default:
		opts := playwright.PageLocatorOptions{}
		if re != nil {
			opts.HasText = re
		}
		return p.page.Locator(m.Selector, opts), nil
	}
}

func (p *playwrightPage) Activate(ctx context.Context, m Matcher, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	loc, err := p.locator(m)
	if err != nil {
		return false, err
	}

	n, err := loc.Count()
	if err != nil || n == 0 {
		return false, err
	}
	target := loc.First()
	if visible, err := target.IsVisible(); err != nil || !visible {
		return false, err
	}
	if enabled, err := target.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: millis(ctx, timeout)}); err != nil || !enabled {
		return false, err
	}
	if err := target.Click(playwright.LocatorClickOptions{Timeout: millis(ctx, timeout)}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *playwrightPage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *playwrightPage) Close() error {
	if p.page.IsClosed() {
		return nil
	}
	return p.page.Close()
}
