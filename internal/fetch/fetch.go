// Package fetch defines the fetch/extract collaborator contract and the
// transient/permanent error taxonomy used by the execution loop.
package fetch

import (
	"context"
	"time"

	"github.com/souqdata/areacrawl/internal/catalog"
)

// Vendor is one extracted listing entry (a restaurant/store card).
type Vendor struct {
	Name         string `json:"name"`
	Cuisine      string `json:"cuisine,omitempty"`
	Rating       string `json:"rating,omitempty"`
	DeliveryTime string `json:"delivery_time,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Payload is the scraped output for one work unit: every vendor found
// across all listing pages of the area.
type Payload struct {
	UnitID       string    `json:"unit_id"`
	URL          string    `json:"url"`
	Pages        int       `json:"pages"`
	Vendors      []Vendor  `json:"vendors"`
	FetchedAt    time.Time `json:"fetched_at"`
	DurationMs   int64     `json:"duration_ms"`
	UsedHeadless bool      `json:"used_headless"`
}

// Fetcher fetches and extracts one unit's listing pages.
type Fetcher interface {
	Fetch(ctx context.Context, unit catalog.Unit) (Payload, error)
}
