package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
)

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Chromedp drives Chrome over the DevTools protocol.
type Chromedp struct {
	mu sync.Mutex
	// installed is the binary fetched by Install, used when no exec path is configured.
	installed string
}

// NewChromedp returns the chromedp engine.
func NewChromedp() *Chromedp {
	return &Chromedp{}
}

func (e *Chromedp) Name() string { return "chromedp" }

// Install downloads a Chromium build into the local cache.
func (e *Chromedp) Install(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return fmt.Errorf("download chromium: %w", err)
	}
	slog.Info("chromium installed", slog.String("path", path))

	e.mu.Lock()
	e.installed = path
	e.mu.Unlock()
	return nil
}

// execPath picks the configured binary, then a previously installed one,
// then whatever browser is found on the system.
func (e *Chromedp) execPath(configured string) string {
	if configured != "" {
		return configured
	}
	e.mu.Lock()
	installed := e.installed
	e.mu.Unlock()
	if installed != "" {
		return installed
	}
	if path, ok := launcher.LookPath(); ok {
		return path
	}
	return ""
}

// allocatorOptions returns exec allocator flags for opts.
func (e *Chromedp) allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(ua),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("disable-gpu", true))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	if path := e.execPath(opts.ExecPath); path != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(path))
	}
	return allocOpts
}

// Start launches Chrome. The session outlives ctx; ctx only bounds startup.
func (e *Chromedp) Start(ctx context.Context, opts Options) (Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), e.allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...), slog.String("source", "chromedp"))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...), slog.String("source", "chromedp"), slog.Bool("cdp_error", true))
		}),
	)

	s := &chromedpSession{
		browserCtx: browserCtx,
		cancel:     func() { browserCancel(); allocCancel() },
		navTimeout: opts.NavigationTimeout,
	}
	if err := firstRun(ctx, browserCtx, s.cancel); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return s, nil
}

type chromedpSession struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	closeOnce  sync.Once
}

// NewPage opens a tab in the session's browser.
func (s *chromedpSession) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	if err := firstRun(ctx, tabCtx, cancel); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &chromedpPage{ctx: tabCtx, cancel: cancel, navTimeout: s.navTimeout}, nil
}

func (s *chromedpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.browserCtx)
		s.cancel()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type chromedpPage struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	closeOnce  sync.Once
}

// firstRun does the initial chromedp.Run directly on target: the browser
// process and the tab event loop it starts live as long as that context.
// ctx only bounds the wait; if it ends first, abort tears target down.
func firstRun(ctx, target context.Context, abort context.CancelFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		abort()
		<-done
		return ctx.Err()
	}
}

// runWith runs actions on an already started chromedp target while honoring
// the cancellation and deadline of the caller's ctx.
func runWith(ctx, target context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(target)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	return runWith(ctx, p.ctx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	if p.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.navTimeout)
		defer cancel()
	}
	// Raw page.Navigate returns once the request commits instead of waiting
	// for the load event, which lazily loading storefronts may never fire.
	return p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("navigate %s: %s", url, errorText)
			}
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromedpPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var found bool
	err := p.run(ctx, chromedp.Poll(existsScript(selector), &found, chromedp.WithPollingInterval(250*time.Millisecond)))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return err
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func (p *chromedpPage) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := p.Evaluate(ctx, countScript(selector), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *chromedpPage) ScrollHeight(ctx context.Context) (int, error) {
	var h int
	if err := p.Evaluate(ctx, scrollHeightScript, &h); err != nil {
		return 0, err
	}
	return h, nil
}

func (p *chromedpPage) ScrollToBottom(ctx context.Context) error {
	return p.Evaluate(ctx, scrollToBottomScript, nil)
}

func (p *chromedpPage) ScrollBy(ctx context.Context, dy int) error {
	return p.Evaluate(ctx, scrollByScript(dy), nil)
}

func (p *chromedpPage) Activate(ctx context.Context, m Matcher, timeout time.Duration) (bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var result string
	if err := p.Evaluate(ctx, activateScript(m), &result); err != nil {
		return false, err
	}
	return result == activateClicked, nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close closes the tab. It is safe to call more than once.
func (p *chromedpPage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = chromedp.Cancel(p.ctx)
		p.cancel()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
