package headless

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	if f.cfg.NavigationTimeout != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", f.cfg.NavigationTimeout)
	}
	if f.cfg.MaxPages != 50 {
		t.Fatalf("expected default page cap, got %d", f.cfg.MaxPages)
	}
	if f.logger == nil {
		t.Fatal("expected fallback logger")
	}
}

func TestNewKeepsOverrides(t *testing.T) {
	t.Parallel()

	f, err := New(Config{NavigationTimeout: 5 * time.Second, MaxPages: 3, UserAgent: "areacrawl-test"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	if f.cfg.NavigationTimeout != 5*time.Second || f.cfg.MaxPages != 3 {
		t.Fatalf("overrides lost: %+v", f.cfg)
	}
}

func TestExtractResultShape(t *testing.T) {
	t.Parallel()

	// The evaluation result from the browser must unmarshal into extractResult.
	raw := `{"vendors":[{"name":"Shawarma House","cuisine":"Middle Eastern","rating":"4.5","delivery_time":"25 min","url":"https://example.test/r/1"}],"last_page":4}`
	var res extractResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Vendors) != 1 || res.Vendors[0].Name != "Shawarma House" {
		t.Fatalf("unexpected vendors: %+v", res.Vendors)
	}
	if res.LastPage != 4 {
		t.Fatalf("unexpected last page: %d", res.LastPage)
	}
}
