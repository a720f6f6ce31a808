// Package browser drives a headless Chrome session that looks like a regular
// visitor and reads listing cards from a search results page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

// ErrNotInitialized is returned by Collect before Initialize succeeded.
var ErrNotInitialized = errors.New("browser session not initialized")

// Options configures one Driver.
type Options struct {
	Headless          bool
	ChromeBin         string
	SearchURL         string // fmt template receiving the escaped query
	NavigationTimeout time.Duration
	ScrollRounds      int
	ScrollDelta       int
	ScrollPauseMin    time.Duration
	ScrollPauseMax    time.Duration
	IdleWindow        time.Duration
}

// Driver is one browser session. It is not safe for concurrent use.
type Driver struct {
	opts      Options
	logger    *utils.Logger
	extractor *Extractor

	identity      utils.Identity
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

// NewDriver creates a Driver. Call Initialize before Collect.
func NewDriver(opts Options, extractor *Extractor, logger *utils.Logger) *Driver {
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = 500 * time.Millisecond
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if extractor == nil {
		extractor = NewExtractor()
	}
	return &Driver{opts: opts, logger: logger, extractor: extractor}
}

// Initialize launches the browser with a fresh identity.
func (d *Driver) Initialize(ctx context.Context) error {
	if d.browserCtx != nil {
		return nil
	}

	d.identity = utils.NewIdentity()
	chromeBin := findChromeBinary(d.opts.ChromeBin)
	d.logger.Debug("[browser] Launching %s with UA %q", chromeBin, d.identity.UserAgent)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		utils.StealthOpts(d.opts.Headless, d.identity, chromeBin)...)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			d.logger.Debug("[browser] cdp: "+format, args...)
		}),
	)

	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("launch browser: %w", err)
	}

	d.cancelAlloc = cancelAlloc
	d.browserCtx = browserCtx
	d.cancelBrowser = cancelBrowser
	return nil
}

// Collect opens one tab, loads the results page for searchTerm in location,
// scrolls until enough cards are visible and extracts them.
func (d *Driver) Collect(ctx context.Context, searchTerm, location string, maxResults int) ([]*models.RawListing, error) {
	if d.browserCtx == nil {
		return nil, ErrNotInitialized
	}

	tabCtx, cancelTab := chromedp.NewContext(d.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	tracker := newIdleTracker(nil)
	chromedp.ListenTarget(tabCtx, tracker.handle)

	if err := chromedp.Run(tabCtx, d.prepareTab()); err != nil {
		return nil, d.wrapErr(ctx, "prepare tab", err)
	}

	target := fmt.Sprintf(d.opts.SearchURL, url.QueryEscape(searchTerm+" "+location))
	d.logger.Info("[browser] Navigating to %s", target)

	navCtx, cancelNav := context.WithTimeout(tabCtx, d.opts.NavigationTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(target))
	if err == nil {
		err = tracker.wait(navCtx, d.opts.IdleWindow, 100*time.Millisecond)
	}
	cancelNav()
	if err != nil {
		return nil, d.wrapErr(ctx, "navigate", err)
	}

	if err := d.scroll(tabCtx, maxResults); err != nil {
		return nil, d.wrapErr(ctx, "scroll", err)
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, d.wrapErr(ctx, "read page", err)
	}

	listings, err := d.extractor.Extract(html, maxResults, location)
	if err != nil {
		return nil, err
	}
	d.logger.Info("[browser] Extracted %d listings", len(listings))
	return listings, nil
}

// prepareTab applies the session identity and stealth scripts before the
// first navigation.
func (d *Driver) prepareTab() chromedp.Action {
	id := d.identity
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		if err := emulation.SetUserAgentOverride(id.UserAgent).
			WithAcceptLanguage(id.AcceptLanguage).Do(ctx); err != nil {
			return err
		}
		if err := network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": id.AcceptLanguage,
		}).Do(ctx); err != nil {
			return err
		}
		if err := emulation.SetDeviceMetricsOverride(id.Width, id.Height, 1, false).Do(ctx); err != nil {
			return err
		}
		for _, script := range []string{stealth.JS, id.HideAutomationScript()} {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// scroll reveals more cards in rounds until they stop coming in.
func (d *Driver) scroll(ctx context.Context, maxResults int) error {
	var visible int
	if err := chromedp.Run(ctx, chromedp.Evaluate(countScript(d.extractor.CardSelectors), &visible)); err != nil {
		return err
	}

	progress := newScrollProgress(visible, maxResults)
	if progress.done() {
		return nil
	}

	script := scrollScript(d.extractor.CardSelectors, d.opts.ScrollDelta)
	for round := 1; round <= d.opts.ScrollRounds; round++ {
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
			return err
		}
		if err := utils.RandomDelay(ctx, d.opts.ScrollPauseMin, d.opts.ScrollPauseMax); err != nil {
			return err
		}
		if err := chromedp.Run(ctx, chromedp.Evaluate(countScript(d.extractor.CardSelectors), &visible)); err != nil {
			return err
		}
		d.logger.Debug("[browser] Scroll round %d: %d cards visible", round, visible)
		if progress.observe(visible) {
			break
		}
	}
	return nil
}

// wrapErr prefers the caller's cancellation over the tab error it caused.
func (d *Driver) wrapErr(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("browser %s: %w", step, ctxErr)
	}
	return fmt.Errorf("browser %s: %w", step, err)
}

// Close shuts the browser down. It is safe to call more than once.
func (d *Driver) Close() error {
	if d.browserCtx == nil {
		return nil
	}
	err := chromedp.Cancel(d.browserCtx)
	d.cancelBrowser()
	d.cancelAlloc()
	d.browserCtx = nil
	d.cancelBrowser = nil
	d.cancelAlloc = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// findChromeBinary locates Chrome/Chromium. An explicit path wins.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
