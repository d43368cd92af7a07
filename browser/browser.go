// Package browser abstracts the rendering surface the harvester drives.
//
// Two engines are provided: chromedp (default) and playwright. Both expose
// the same Page operations so the stabilization loop and the scraper do not
// care which one is in use.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrNotFound is returned when a waited-for element never appears.
var ErrNotFound = errors.New("element not found")

// Options configures a browser session.
type Options struct {
	Headless          bool
	ExecPath          string
	UserAgent         string
	NoSandbox         bool
	NavigationTimeout time.Duration
}

// Page is one tab of a session.
type Page interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error
	// WaitFor waits until selector is attached, up to timeout. It returns
	// ErrNotFound when the element does not show up in time.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Evaluate runs a script expression and decodes its JSON result into out.
	Evaluate(ctx context.Context, script string, out any) error

	Count(ctx context.Context, selector string) (int, error)
	ScrollHeight(ctx context.Context) (int, error)
	ScrollToBottom(ctx context.Context) error
	ScrollBy(ctx context.Context, dy int) error
	// Activate clicks the first visible, enabled element matching m. It
	// reports false when there is none.
	Activate(ctx context.Context, m Matcher, timeout time.Duration) (bool, error)

	// HTML returns the serialized live document.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Session is a running browser. Pages opened from the same session share
// one browser context.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Engine starts sessions and can install its own browser binary.
type Engine interface {
	Name() string
	Start(ctx context.Context, opts Options) (Session, error)
	Install(ctx context.Context) error
}

// LaunchError reports that no session could be started.
type LaunchError struct {
	Engine    string
	Installed bool
	Err       error
}

func (e *LaunchError) Error() string {
	if e.Installed {
		return fmt.Sprintf("launch %s after install: %v", e.Engine, e.Err)
	}
	return fmt.Sprintf("launch %s: %v", e.Engine, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsMissingBinary reports whether err means the browser executable is absent.
func IsMissingBinary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"executable file not found",
		"Executable doesn't exist",
		"please install the driver",
		"could not find browser",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Launch starts a session. When the browser binary is missing it installs
// it once and retries; a second failure is returned as a *LaunchError.
func Launch(ctx context.Context, engine Engine, opts Options) (Session, error) {
	session, err := engine.Start(ctx, opts)
	if err == nil {
		return session, nil
	}
	if !IsMissingBinary(err) {
		return nil, &LaunchError{Engine: engine.Name(), Err: err}
	}

	slog.Warn("browser binary missing, installing", slog.String("engine", engine.Name()), slog.Any("error", err))
	if installErr := engine.Install(ctx); installErr != nil {
		return nil, &LaunchError{Engine: engine.Name(), Installed: true, Err: fmt.Errorf("install: %w", installErr)}
	}

	session, err = engine.Start(ctx, opts)
	if err != nil {
		return nil, &LaunchError{Engine: engine.Name(), Installed: true, Err: err}
	}
	return session, nil
}

// New returns the engine registered under name.
func New(name string) (Engine, error) {
	switch strings.ToLower(name) {
	case "", "chromedp":
		return NewChromedp(), nil
	case "playwright":
		return NewPlaywright(), nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", name)
	}
}
