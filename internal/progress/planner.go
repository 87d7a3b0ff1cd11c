package progress

import "github.com/souqdata/areacrawl/internal/catalog"

// Plan reconciles the catalog against a prior record and returns the ordered
// remaining work. The order is total and deterministic for a fixed
// (catalog, record) pair:
//
//  1. units left InProgress by an interrupted prior run, in catalog order
//     (already attempted, so front of queue bounds the abandoned-work window)
//  2. Pending and never-seen units, in catalog order
//  3. Failed units still below the retry cap, in catalog order
//
// Done units and Failed units at the cap are excluded. Plan does not mutate
// the record; the caller applies Reclaim/Requeue before driving the queue.
func Plan(units []catalog.Unit, rec *Record, maxRetries int) []catalog.Unit {
	var dangling, pending, retryable []catalog.Unit
	for _, u := range units {
		st, ok := rec.Units[u.ID]
		if !ok {
			pending = append(pending, u)
			continue
		}
		switch st.Status {
		case StatusInProgress:
			dangling = append(dangling, u)
		case StatusPending:
			pending = append(pending, u)
		case StatusFailed:
			if st.Attempts < maxRetries {
				retryable = append(retryable, u)
			}
		case StatusDone:
			// Once done, never re-attempted.
		}
	}
	queue := make([]catalog.Unit, 0, len(dangling)+len(pending)+len(retryable))
	queue = append(queue, dangling...)
	queue = append(queue, pending...)
	queue = append(queue, retryable...)
	return queue
}
