// Package projection builds local timelines from observed snapshots.
// Handles ordering, deduplication, and tie-breaks. Does not emit events
// or interact with storage directly.
package projection

import (
	"sort"

	"wordins/domain"
)

// Timeline is the deterministic ordered view of a room's messages,
// rebuilt from whatever order the store hands the collection back in.
// Every subscriber projecting the same snapshot sees the same sequence.
type Timeline struct {
	Messages []domain.Message
}

// Apply replaces the timeline content with the deduplicated, ordered
// projection of msgs: store timestamp ascending, identifier as the
// lexicographic tie-break. Messages without a timestamp sort as zero,
// which means identifier-only order among themselves, ahead of stamped
// ones.
func (t *Timeline) Apply(msgs []domain.Message) {
	ordered := make([]domain.Message, len(msgs))
	copy(ordered, msgs)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].SentAt.UnixNano(), ordered[j].SentAt.UnixNano()
		if ordered[i].SentAt.IsZero() {
			a = 0
		}
		if ordered[j].SentAt.IsZero() {
			b = 0
		}
		if a != b {
			return a < b
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	seen := make(map[string]struct{}, len(ordered))
	deduped := ordered[:0]
	for _, msg := range ordered {
		key := msg.ID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, msg)
	}
	t.Messages = deduped
}
