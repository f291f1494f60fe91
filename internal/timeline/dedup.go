package timeline

import (
	"time"

	"dayplan/internal/model"
)

// keyPrecision fixes the textual precision of the identity key to one
// second, in UTC so that equal instants key identically regardless of
// their zone representation.
const keyPrecision = "2006-01-02T15:04:05Z"

// IdentityKey derives the content identity of an occurrence from its
// title and both instants. Event id and source id are deliberately
// excluded: the same meeting reported by two calendar backends must
// collapse to one timeline entry.
func IdentityKey(ev model.CalendarEvent) string {
	return ev.Title + "|" +
		ev.Start.UTC().Truncate(time.Second).Format(keyPrecision) + "|" +
		ev.End.UTC().Truncate(time.Second).Format(keyPrecision)
}

// SameEvent reports content equality of two occurrences.
func SameEvent(a, b model.CalendarEvent) bool {
	return IdentityKey(a) == IdentityKey(b)
}

// Dedup collapses occurrences with equal content identity, preserving
// input order. The first-seen occurrence wins, so its id and source id
// are the ones carried downstream for display and debugging.
func Dedup(events []model.CalendarEvent) []model.CalendarEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]model.CalendarEvent, 0, len(events))

	for _, ev := range events {
		k := IdentityKey(ev)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out
}
