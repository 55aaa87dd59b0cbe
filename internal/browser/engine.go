// Package browser owns the single headless browser engine behind the
// proxy service: its process lifecycle, the session wrapper that clears
// or recreates it between requests, and the chromedp-backed engine that
// drives navigation and DOM interaction.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/zoreu/cfresolver/internal/config"
)

// Engine is the minimal surface the fetch pipeline needs from a live
// browser. The production implementation drives Chrome over the DevTools
// protocol; tests substitute in-memory fakes.
type Engine interface {
	// Navigate drives the browser to the given URL.
	Navigate(ctx context.Context, url string) error

	// WaitSettled waits, bounded by the configured settle budget, for the
	// document to become ready. Exhausting the budget is not an error:
	// partial markup is an acceptable outcome.
	WaitSettled(ctx context.Context) error

	// WaitVisible blocks until the element matching the CSS selector is
	// visible, or the interaction budget elapses.
	WaitVisible(ctx context.Context, selector string) error

	// FillField clears and types into the input named name inside the
	// form matching formSelector.
	FillField(ctx context.Context, formSelector, name, value string) error

	// Click activates the element matching the CSS selector.
	Click(ctx context.Context, selector string) error

	// Content returns the full serialized document markup.
	Content(ctx context.Context) (string, error)

	// ClearState wipes cookies and both client-side storage scopes
	// without restarting the browser process.
	ClearState(ctx context.Context) error

	// Close terminates the browser process.
	Close(ctx context.Context) error
}

// EngineFactory creates a fresh Engine. Session uses it on first acquire
// and on every full restart.
type EngineFactory func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Engine, error)

// chromeEngine implements Engine on top of a chromedp exec allocator.
type chromeEngine struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var _ Engine = (*chromeEngine)(nil)

// NewChromeEngine starts a Chrome process and verifies it responds. It is
// the production EngineFactory.
func NewChromeEngine(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Engine, error) {
	e := &chromeEngine{
		cfg:    cfg,
		logger: logger.Named("chrome_engine"),
	}

	opts := e.allocatorOptions()
	e.allocCtx, e.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	e.browserCtx, e.browserCancel = chromedp.NewContext(e.allocCtx,
		chromedp.WithLogf(e.logger.Sugar().Debugf),
		chromedp.WithErrorf(e.logger.Sugar().Errorf),
	)

	// Verify the process actually started. A missing binary or an
	// incompatible driver surfaces here rather than on the first fetch.
	startCtx, cancel := context.WithTimeout(e.browserCtx, cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		e.browserCancel()
		e.allocCancel()
		return nil, fmt.Errorf("failed to start browser engine: %w", err)
	}

	e.logger.Info("Browser engine started",
		zap.Bool("headless", cfg.Headless),
		zap.String("exec_path", cfg.ExecPath),
		zap.Int("window_width", cfg.WindowWidth),
		zap.Int("window_height", cfg.WindowHeight),
	)
	return e, nil
}

// engineFlags computes the browser command-line flag set from config. The
// set is built from scratch instead of chromedp.DefaultExecAllocatorOptions,
// which force headless on regardless of config.
func engineFlags(cfg config.BrowserConfig) map[string]any {
	flags := map[string]any{
		// Stability flags for containerized environments.
		"disable-dev-shm-usage":    true,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"disable-sync":             true,
		"disable-hang-monitor":     true,
		"disable-prompt-on-repost": true,

		// Keep runs deterministic and quiet.
		"disable-extensions":            true,
		"disable-infobars":              true,
		"disable-notifications":         true,
		"disable-default-apps":          true,
		"disable-background-networking": true,
	}
	if cfg.Headless {
		flags["headless"] = "new"
		flags["disable-gpu"] = true
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
	}
	return flags
}

// allocatorOptions configures the flags for the browser executable.
func (e *chromeEngine) allocatorOptions() []chromedp.ExecAllocatorOption {
	cfg := e.cfg
	opts := []chromedp.ExecAllocatorOption{
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for name, value := range engineFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// actionCtx derives a context for one engine operation: bounded by the
// given budget, attached to the browser context (chromedp requires the
// action context to descend from it), and cancelled if the caller gives
// up first.
func (e *chromeEngine) actionCtx(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(e.browserCtx, budget)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	return runCtx, cancel
}

func (e *chromeEngine) Navigate(ctx context.Context, url string) error {
	e.logger.Debug("Navigating", zap.String("url", url))
	runCtx, cancel := e.actionCtx(ctx, e.cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (e *chromeEngine) WaitSettled(ctx context.Context) error {
	runCtx, cancel := e.actionCtx(ctx, e.cfg.SettleTimeout)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if settleTolerated(err, ctx) {
		e.logger.Debug("Settle budget elapsed before document ready, continuing with partial content")
		return nil
	}
	return fmt.Errorf("wait for document ready failed: %w", err)
}

// settleTolerated reports whether a settle failure should be swallowed.
// The settle budget is an upper bound, not a requirement: its own expiry
// means the caller reads whatever markup exists. If the caller's context
// is done the fetch as a whole was abandoned and the error must surface.
func settleTolerated(err error, callerCtx context.Context) bool {
	return errors.Is(err, context.DeadlineExceeded) && callerCtx.Err() == nil
}

func (e *chromeEngine) WaitVisible(ctx context.Context, selector string) error {
	runCtx, cancel := e.actionCtx(ctx, e.cfg.InteractionTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("element %q not visible: %w", selector, err)
	}
	return nil
}

func (e *chromeEngine) FillField(ctx context.Context, formSelector, name, value string) error {
	selector := fmt.Sprintf(`%s [name=%q]`, formSelector, name)
	e.logger.Debug("Filling field", zap.String("selector", selector), zap.Int("length", len(value)))

	runCtx, cancel := e.actionCtx(ctx, e.cfg.InteractionTimeout)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("could not fill field %q: %w", selector, err)
	}
	return nil
}

func (e *chromeEngine) Click(ctx context.Context, selector string) error {
	e.logger.Debug("Clicking", zap.String("selector", selector))
	runCtx, cancel := e.actionCtx(ctx, e.cfg.InteractionTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Click(selector, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("could not click %q: %w", selector, err)
	}
	return nil
}

func (e *chromeEngine) Content(ctx context.Context) (string, error) {
	runCtx, cancel := e.actionCtx(ctx, e.cfg.InteractionTimeout)
	defer cancel()
	var markup string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture document markup: %w", err)
	}
	return markup, nil
}

func (e *chromeEngine) ClearState(ctx context.Context) error {
	runCtx, cancel := e.actionCtx(ctx, e.cfg.InteractionTimeout)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(c context.Context) error {
			return network.ClearBrowserCookies().Do(c)
		}),
		chromedp.Evaluate(`window.localStorage.clear(); window.sessionStorage.clear();`, nil),
	)
	if err != nil {
		return fmt.Errorf("failed to clear browsing state: %w", err)
	}
	return nil
}

func (e *chromeEngine) Close(ctx context.Context) error {
	e.logger.Debug("Closing browser engine")
	// Cancel gracefully closes the browser and waits for the process to
	// exit before the allocator is torn down.
	err := chromedp.Cancel(e.browserCtx)
	e.browserCancel()
	e.allocCancel()
	return err
}
