// Package collyfetch implements the listing fetcher using gocolly.
package collyfetch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/catalog"
	"github.com/souqdata/areacrawl/internal/fetch"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxPages caps pagination per unit as a safety bound.
	MaxPages int
	// Delay is the politeness pause between listing pages.
	Delay time.Duration
}

// Fetcher walks an area's paginated listing and extracts vendor cards.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// pageResult accumulates what the collector callbacks observe for one page.
type pageResult struct {
	statusCode int
	bodyLen    int
	vendors    []fetch.Vendor
	lastPage   int
	fetchErr   error
}

// Fetch retrieves every listing page for the unit. The first page reveals the
// total page count; remaining pages are visited in order. Any page failure
// aborts the unit with a classified error so the retry policy can decide.
func (f *Fetcher) Fetch(ctx context.Context, unit catalog.Unit) (fetch.Payload, error) {
	start := time.Now()

	first, err := f.fetchPage(ctx, unit.URL)
	if err != nil {
		return fetch.Payload{}, fmt.Errorf("page 1: %w", err)
	}

	lastPage := first.lastPage
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

	vendors := first.vendors
	for page := 2; page <= lastPage; page++ {
		if err := f.pause(ctx); err != nil {
			return fetch.Payload{}, err
		}
		pageURL, err := fetch.PageURL(unit.URL, page)
		if err != nil {
			return fetch.Payload{}, fetch.Permanent(fmt.Errorf("build page url: %w", err))
		}
		res, err := f.fetchPage(ctx, pageURL)
		if err != nil {
			return fetch.Payload{}, fmt.Errorf("page %d: %w", page, err)
		}
		vendors = append(vendors, res.vendors...)
	}

	return fetch.Payload{
		UnitID:     unit.ID,
		URL:        unit.URL,
		Pages:      lastPage,
		Vendors:    vendors,
		FetchedAt:  start.UTC(),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// fetchPage gets one listing page with a cloned collector.
func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) (pageResult, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	res := &pageResult{}
	f.configureHooks(collector, res)

	visitErr := f.runCollector(ctx, collector, pageURL)
	if ctx.Err() != nil {
		return pageResult{}, fmt.Errorf("listing fetch canceled: %w", ctx.Err())
	}
	// Prefer the HTTP status for classification; colly reports non-2xx
	// responses through OnError and Visit alike.
	if res.statusCode != 0 {
		if clsErr := fetch.ClassifyStatus(res.statusCode); clsErr != nil {
			return pageResult{}, clsErr
		}
	}
	if visitErr != nil {
		return pageResult{}, fetch.Transient(fmt.Errorf("visit listing: %w", visitErr))
	}
	if res.fetchErr != nil {
		return pageResult{}, fetch.Transient(res.fetchErr)
	}
	return *res, nil
}

func (f *Fetcher) configureHooks(collector *colly.Collector, res *pageResult) {
	collector.OnResponse(func(r *colly.Response) {
		res.statusCode = r.StatusCode
		res.bodyLen = len(r.Body)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.statusCode = r.StatusCode
		}
		res.fetchErr = err
	})

	collector.OnHTML("div.vendor-card, a[data-testid=restaurant-a]", func(e *colly.HTMLElement) {
		v := fetch.Vendor{
			Name:         strings.TrimSpace(e.ChildText("p[data-testid=restaurant-name], h2, .media-heading")),
			Cuisine:      strings.TrimSpace(e.ChildText("div[data-testid=restaurant-cuisine], .cuisine")),
			Rating:       strings.TrimSpace(e.ChildText("span[data-testid=restaurant-rating], .rating")),
			DeliveryTime: strings.TrimSpace(e.ChildText("span[data-testid=restaurant-delivery-time], .delivery-time")),
			URL:          e.Request.AbsoluteURL(e.Attr("href")),
		}
		if v.Name == "" && v.URL == "" {
			return
		}
		res.vendors = append(res.vendors, v)
	})

	collector.OnHTML("ul[data-test=pagination] a[page]", func(e *colly.HTMLElement) {
		n, err := strconv.Atoi(e.Attr("page"))
		if err != nil {
			return
		}
		if n > res.lastPage {
			res.lastPage = n
		}
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, pageURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (f *Fetcher) pause(ctx context.Context) error {
	if f.cfg.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("listing fetch canceled: %w", ctx.Err())
	case <-time.After(f.cfg.Delay):
		return nil
	}
}
