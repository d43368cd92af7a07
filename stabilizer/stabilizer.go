package stabilizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-parts/browser"
)

// Surface is the part of a rendered page the loop needs.
type Surface interface {
	Count(ctx context.Context, selector string) (int, error)
	ScrollHeight(ctx context.Context) (int, error)
	ScrollToBottom(ctx context.Context) error
	ScrollBy(ctx context.Context, dy int) error
	Activate(ctx context.Context, m browser.Matcher, timeout time.Duration) (bool, error)
}

// Signal selects the growth signal sampled each round.
type Signal string

const (
	SignalCount  Signal = "count"
	SignalHeight Signal = "height"
)

// Options configures Run.
type Options struct {
	Policy Policy
	Signal Signal
	// ItemSelector is counted when Signal is SignalCount.
	ItemSelector string
	// Controls are tried in order; the first visible and enabled match is clicked.
	Controls       []browser.Matcher
	ControlTimeout time.Duration

	SettleDelay  time.Duration
	ScrollDelay  time.Duration
	JiggleOffset int
	JiggleDelay  time.Duration

	// Sleep waits between actions. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRound, when set, observes every completed round.
	OnRound func(state State, clicked bool)
}

// Outcome summarises a finished loop.
type Outcome struct {
	Rounds      int
	Clicks      int
	FinalSignal int
	Converged   bool
}

// Run triggers growth until the signal is stable or the round cap is hit.
// It returns normally whether or not the listing converged; only context
// cancellation is reported as an error.
func Run(ctx context.Context, surface Surface, opts Options) (Outcome, error) {
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Signal == "" {
		opts.Signal = SignalCount
	}
	if opts.Policy.MaxRounds <= 0 {
		return Outcome{}, fmt.Errorf("max rounds must be positive")
	}

	state := NewState()
	var out Outcome

	for {
		clicked := activateFirst(ctx, surface, opts.Controls, opts.ControlTimeout)
		if clicked {
			out.Clicks++
		}
		if err := opts.Sleep(ctx, opts.SettleDelay); err != nil {
			return out, err
		}

		if err := grow(ctx, surface, opts); err != nil {
			return out, err
		}

		signal := sample(ctx, surface, opts)
		if err := ctx.Err(); err != nil {
			return out, err
		}

		var done bool
		state, done = state.Step(signal, clicked, opts.Policy)
		if opts.OnRound != nil {
			opts.OnRound(state, clicked)
		}
		slog.Debug("stabilization round",
			slog.Int("round", state.Round),
			slog.Int("signal", signal),
			slog.Int("stable_rounds", state.StableRounds),
			slog.Bool("clicked", clicked),
		)

		if done {
			out.Rounds = state.Round
			out.FinalSignal = state.LastSignal
			out.Converged = state.Converged(opts.Policy)
			return out, nil
		}
	}
}

// activateFirst tries each matcher in order. Failures of any kind (detached
// node, timeout, hidden or disabled control) count as "not found".
func activateFirst(ctx context.Context, surface Surface, controls []browser.Matcher, timeout time.Duration) bool {
	for _, m := range controls {
		clicked, err := surface.Activate(ctx, m, timeout)
		if err != nil {
			slog.Debug("load-more matcher failed", slog.String("matcher", m.String()), slog.Any("error", err))
			continue
		}
		if clicked {
			return true
		}
	}
	return false
}

// grow scrolls to the bottom, then nudges up and back down so that
// intersection observers that need a scroll delta fire.
func grow(ctx context.Context, surface Surface, opts Options) error {
	if err := surface.ScrollToBottom(ctx); err != nil && !recoverable(ctx, err) {
		return err
	}
	if err := opts.Sleep(ctx, opts.ScrollDelay); err != nil {
		return err
	}
	if opts.JiggleOffset <= 0 {
		return nil
	}

	if err := surface.ScrollBy(ctx, -opts.JiggleOffset); err != nil && !recoverable(ctx, err) {
		return err
	}
	if err := opts.Sleep(ctx, opts.JiggleDelay); err != nil {
		return err
	}
	if err := surface.ScrollToBottom(ctx); err != nil && !recoverable(ctx, err) {
		return err
	}
	return opts.Sleep(ctx, opts.JiggleDelay)
}

// sample reads the growth signal. A failed read yields -1, which the state
// treats like any other value.
func sample(ctx context.Context, surface Surface, opts Options) int {
	var (
		value int
		err   error
	)
	switch opts.Signal {
	case SignalHeight:
		value, err = surface.ScrollHeight(ctx)
	default:
		value, err = surface.Count(ctx, opts.ItemSelector)
	}
	if err != nil {
		slog.Debug("growth signal unavailable", slog.String("signal", string(opts.Signal)), slog.Any("error", err))
		return -1
	}
	return value
}

// recoverable reports whether a surface error should be ignored. Only
// cancellation of the caller's context stops the loop.
func recoverable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
