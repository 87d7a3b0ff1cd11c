package fetch

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/catalog"
)

// Promoting tries a plain HTTP probe first and falls back to a headless
// renderer when the probe comes back as an empty JS shell. Listing pages
// usually render server-side; the browser is reserved for the ones that
// don't.
type Promoting struct {
	Probe    Fetcher
	Headless Fetcher
	Logger   *zap.Logger
}

// Fetch implements Fetcher.
func (p *Promoting) Fetch(ctx context.Context, unit catalog.Unit) (Payload, error) {
	payload, err := p.Probe.Fetch(ctx, unit)
	if p.Headless == nil {
		return payload, err
	}
	if err == nil && len(payload.Vendors) > 0 {
		return payload, nil
	}
	if ctx.Err() != nil {
		return payload, err
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("probe came back empty, promoting to headless",
		zap.String("unit", unit.ID), zap.Error(err))

	rendered, rErr := p.Headless.Fetch(ctx, unit)
	if rErr != nil {
		logger.Warn("headless promotion failed",
			zap.String("unit", unit.ID), zap.Error(rErr))
		if err != nil {
			return Payload{}, err
		}
		return payload, nil
	}
	rendered.UsedHeadless = true
	return rendered, nil
}

// PageURL returns the listing URL pointing at the given page number.
func PageURL(raw string, page int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
