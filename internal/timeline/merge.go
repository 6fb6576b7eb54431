// Package timeline combines message batches into one ordered, deduplicated
// conversation timeline.
package timeline

import (
	"sort"

	"github.com/raphaelgruber/agentdesk/internal/models"
)

// Merge returns the union of existing and incoming keyed by message ID,
// sorted ascending by timestamp. On a duplicate ID the later write wins
// (incoming over existing, later over earlier within a batch). Neither input
// is modified.
//
// Merge is idempotent: Merge(Merge(a, b), b) equals Merge(a, b).
func Merge(existing, incoming []models.Message) []models.Message {
	if len(incoming) == 0 && isCanonical(existing) {
		return clone(existing)
	}

	index := make(map[string]int, len(existing)+len(incoming))
	out := make([]models.Message, 0, len(existing)+len(incoming))

	put := func(m models.Message) {
		if i, ok := index[m.ID]; ok {
			out[i] = m
			return
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}
	for _, m := range existing {
		put(m)
	}
	for _, m := range incoming {
		put(m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Append merges a single message into the timeline.
func Append(existing []models.Message, m models.Message) []models.Message {
	return Merge(existing, []models.Message{m})
}

// isCanonical reports whether messages already has unique IDs in
// non-decreasing timestamp order.
func isCanonical(messages []models.Message) bool {
	seen := make(map[string]struct{}, len(messages))
	for i, m := range messages {
		if _, dup := seen[m.ID]; dup {
			return false
		}
		seen[m.ID] = struct{}{}
		if i > 0 && m.Timestamp.Before(messages[i-1].Timestamp) {
			return false
		}
	}
	return true
}

func clone(messages []models.Message) []models.Message {
	if messages == nil {
		return nil
	}
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}
