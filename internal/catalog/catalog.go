// Package catalog defines the universe of delivery areas to be scraped.
package catalog

import (
	"context"
	"errors"
)

// ErrEmpty signals that a provider produced no units; startup cannot proceed.
var ErrEmpty = errors.New("catalog is empty")

// Unit is one atomic item of crawl work: a single area listing page.
type Unit struct {
	// ID is stable and unique within the catalog (e.g. "kw/salmiya").
	ID string `json:"id"`
	// Name is the human-readable area label, possibly non-ASCII.
	Name string `json:"name"`
	// URL is the listing page for the area.
	URL string `json:"url"`
	// Parent optionally groups units (e.g. the owning city).
	Parent string `json:"parent,omitempty"`
}

// Provider enumerates the catalog. Implementations must be idempotent and
// return units in a stable order within one crawl epoch.
type Provider interface {
	List(ctx context.Context) ([]Unit, error)
}
