package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRecordsEventsInOrder(t *testing.T) {
	t.Parallel()

	p := New()
	ctx := context.Background()

	id, err := p.Publish(ctx, "crawl-events", map[string]any{"unit_id": "kw/salmiya"})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id)

	id, err = p.Publish(ctx, "crawl-events", map[string]any{"unit_id": "kw/jahra"})
	require.NoError(t, err)
	require.Equal(t, "mem-2", id)

	events := p.Events()
	require.Len(t, events, 2)
	require.Equal(t, "crawl-events", events[0].Topic)
	require.Equal(t, "kw/salmiya", events[0].Body.(map[string]any)["unit_id"])

	// Events hands out a snapshot, not the backing slice.
	events[0].Topic = "mutated"
	require.Equal(t, "crawl-events", p.Events()[0].Topic)
}
