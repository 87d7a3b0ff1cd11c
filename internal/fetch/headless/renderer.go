// Package headless renders JS-heavy listing pages with chromedp.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/catalog"
	"github.com/souqdata/areacrawl/internal/fetch"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// MaxPages caps pagination per unit, mirroring the probe fetcher.
	MaxPages int
}

// Fetcher implements fetch.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates a headless fetcher backed by chromedp.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// extractJS pulls vendor cards and the last pagination index out of the
// rendered DOM in one evaluation.
const extractJS = `(() => {
	const vendors = [];
	const text = (el, sel) => {
		const n = el.querySelector(sel);
		return n ? n.textContent.trim() : "";
	};
	for (const card of document.querySelectorAll("div.vendor-card, a[data-testid=restaurant-a]")) {
		const link = card.tagName === "A" ? card : card.querySelector("a");
		vendors.push({
			name: text(card, "p[data-testid=restaurant-name], h2, .media-heading"),
			cuisine: text(card, "div[data-testid=restaurant-cuisine], .cuisine"),
			rating: text(card, "span[data-testid=restaurant-rating], .rating"),
			delivery_time: text(card, "span[data-testid=restaurant-delivery-time], .delivery-time"),
			url: link && link.href ? link.href : "",
		});
	}
	let lastPage = 1;
	for (const a of document.querySelectorAll("ul[data-test=pagination] a[page]")) {
		const n = parseInt(a.getAttribute("page"), 10);
		if (!isNaN(n) && n > lastPage) lastPage = n;
	}
	return { vendors: vendors, last_page: lastPage };
})()`

type extractResult struct {
	Vendors  []fetch.Vendor `json:"vendors"`
	LastPage int            `json:"last_page"`
}

// Fetch renders every listing page for the unit in a headless browser.
func (f *Fetcher) Fetch(ctx context.Context, unit catalog.Unit) (fetch.Payload, error) {
	start := time.Now()

	first, err := f.renderPage(ctx, unit.URL)
	if err != nil {
		return fetch.Payload{}, fmt.Errorf("page 1: %w", err)
	}

	lastPage := first.LastPage
	if lastPage < 1 {
		lastPage = 1
	}
	if lastPage > f.cfg.MaxPages {
		f.logger.Warn("pagination capped",
			zap.String("unit", unit.ID),
			zap.Int("detected", lastPage),
			zap.Int("cap", f.cfg.MaxPages))
		lastPage = f.cfg.MaxPages
	}

	vendors := first.Vendors
	for page := 2; page <= lastPage; page++ {
		pageURL, err := fetch.PageURL(unit.URL, page)
		if err != nil {
			return fetch.Payload{}, fetch.Permanent(fmt.Errorf("build page url: %w", err))
		}
		res, err := f.renderPage(ctx, pageURL)
		if err != nil {
			return fetch.Payload{}, fmt.Errorf("page %d: %w", page, err)
		}
		vendors = append(vendors, res.Vendors...)
	}

	return fetch.Payload{
		UnitID:       unit.ID,
		URL:          unit.URL,
		Pages:        lastPage,
		Vendors:      vendors,
		FetchedAt:    start.UTC(),
		DurationMs:   time.Since(start).Milliseconds(),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) renderPage(ctx context.Context, pageURL string) (extractResult, error) {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// Tie the browser task to the caller so budget cancellation reaches it.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	var result extractResult
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(extractJS, &result),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return extractResult{}, fmt.Errorf("headless fetch canceled: %w", ctx.Err())
		}
		return extractResult{}, fetch.Transient(fmt.Errorf("chromedp run: %w", err))
	}
	return result, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
