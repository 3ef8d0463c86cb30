package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// browser drives headless Chrome for the JS-rendered listings and
// product pages. One exec allocator is shared; each page load gets its
// own tab context.
type browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

func newBrowser(cfg Config) *browser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &browser{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
}

// Close shuts down the shared allocator.
func (b *browser) Close() {
	b.allocCancel()
}

func (b *browser) newTab(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, timeout)

	// Propagate cancellation from the caller without inheriting its
	// values into the chromedp context tree.
	stop := context.AfterFunc(ctx, timeoutCancel)

	cancel := func() {
		stop()
		timeoutCancel()
		taskCancel()
	}
	return taskCtx, cancel
}

func (b *browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// renderPage loads a product page, waits for the given selector, and
// returns the rendered DOM.
func (b *browser) renderPage(ctx context.Context, url, waitSelector string) (string, error) {
	taskCtx, cancel := b.newTab(ctx, b.cfg.NavigationTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(taskCtx,
		b.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", classifyBrowseErr(url, err)
	}
	return html, nil
}

// loadMoreScript returns a script that clicks the first visible button
// matching the selector whose text contains label, reporting whether a
// click happened. Load-more buttons carry no stable id on these sites,
// only a label.
func loadMoreScript(selector, label string) string {
	return fmt.Sprintf(`(() => {
		for (const b of document.querySelectorAll(%q)) {
			if (b.textContent.includes(%q) && b.offsetParent !== null) {
				b.click();
				return true;
			}
		}
		return false;
	})()`, selector, label)
}

// collectLoadMore loads a listing page and repeatedly clicks the
// load-more button via clickScript, invoking onPage with the rendered
// DOM after every load so new links are harvested incrementally. It
// stops when the button stays gone for a few consecutive checks.
func (b *browser) collectLoadMore(ctx context.Context, url, readySelector, clickScript string, maxClicks int, onPage func(html string) error) error {
	taskCtx, cancel := b.newTab(ctx, b.cfg.DiscoveryTimeout)
	defer cancel()

	if err := chromedp.Run(taskCtx,
		b.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(readySelector, chromedp.ByQuery),
	); err != nil {
		return classifyBrowseErr(url, err)
	}

	noButton := 0
	for clicks := 0; clicks < maxClicks; clicks++ {
		if err := b.harvest(taskCtx, onPage); err != nil {
			return err
		}

		var clicked bool
		if err := chromedp.Run(taskCtx,
			chromedp.Evaluate(clickScript, &clicked),
			chromedp.Sleep(500*time.Millisecond),
		); err != nil {
			return classifyBrowseErr(url, err)
		}
		if !clicked {
			noButton++
			if noButton >= 3 {
				return nil
			}
			continue
		}
		noButton = 0
	}
	return b.harvest(taskCtx, onPage)
}

// collectScroll loads a listing page and lazy-scrolls to the bottom,
// invoking onPage after every scroll. It stops once the page height
// stays unchanged for several consecutive scrolls.
func (b *browser) collectScroll(ctx context.Context, url, readySelector string, maxScrolls int, onPage func(html string) error) error {
	taskCtx, cancel := b.newTab(ctx, b.cfg.DiscoveryTimeout)
	defer cancel()

	if err := chromedp.Run(taskCtx,
		b.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(readySelector, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	); err != nil {
		return classifyBrowseErr(url, err)
	}

	var previousHeight int64
	noChange := 0
	for scrolls := 0; scrolls < maxScrolls; scrolls++ {
		if err := b.harvest(taskCtx, onPage); err != nil {
			return err
		}

		var height int64
		if err := chromedp.Run(taskCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height),
			chromedp.Sleep(3*time.Second),
		); err != nil {
			return classifyBrowseErr(url, err)
		}
		if height == previousHeight {
			noChange++
			if noChange >= 15 {
				return nil
			}
		} else {
			noChange = 0
		}
		previousHeight = height
	}
	return b.harvest(taskCtx, onPage)
}

func (b *browser) harvest(taskCtx context.Context, onPage func(html string) error) error {
	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return classifyBrowseErr("", err)
	}
	return onPage(html)
}

// classifyBrowseErr maps chromedp failures to the taxonomy. Navigation
// errors, renderer crashes, and timeouts are all worth a retry.
func classifyBrowseErr(url string, err error) error {
	return pharma.Transient(fmt.Errorf("browse %s: %w", url, err))
}
