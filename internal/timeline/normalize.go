package timeline

import (
	"time"

	"dayplan/internal/model"
)

// Normalizer converts raw calendar timestamps into timezone-aware
// instants in a single reference timezone. It is a pure function of its
// fields and the input.
type Normalizer struct {
	// Location is the reference timezone. If nil, time.Local is used.
	Location *time.Location

	// TrustUTC controls how UTC-tagged timestamps are handled. Some
	// upstream producers mislabel local wall-clock time as UTC; when
	// TrustUTC is false (the default) such values are reinterpreted by
	// keeping the clock-face fields and swapping the zone label for the
	// reference timezone. When TrustUTC is true a genuine instant
	// conversion is performed instead.
	TrustUTC bool
}

func (n Normalizer) location() *time.Location {
	if n.Location != nil {
		return n.Location
	}
	return time.Local
}

// Event normalizes both endpoints of a raw event independently.
func (n Normalizer) Event(ev model.RawEvent) (start, end time.Time) {
	return n.Instant(ev.Start), n.Instant(ev.End)
}

// Instant normalizes a single raw timestamp:
//
//   - a bare date becomes midnight of that date in the reference zone
//   - an explicitly zoned datetime is converted (instant preserved)
//   - a UTC-tagged datetime is reinterpreted as local wall-clock time
//     unless TrustUTC is set, in which case it is converted
//   - a floating datetime is tagged with the reference zone directly
func (n Normalizer) Instant(rt model.RawTime) time.Time {
	loc := n.location()
	v := rt.Value

	switch rt.Kind {
	case model.TimeDateOnly:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, loc)
	case model.TimeZoned:
		return v.In(loc)
	case model.TimeUTC:
		if n.TrustUTC {
			return v.In(loc)
		}
		return retag(v, loc)
	default: // model.TimeFloating
		return retag(v, loc)
	}
}

// retag keeps the wall-clock fields of t and re-anchors them in loc.
func retag(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
