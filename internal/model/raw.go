package model

import "time"

// TimeKind classifies how a raw calendar timestamp was tagged on the
// wire. The normalizer decides per kind how to anchor the value in the
// reference timezone.
type TimeKind int

const (
	// TimeDateOnly is a bare date with no time component (all-day).
	TimeDateOnly TimeKind = iota
	// TimeUTC is a datetime explicitly tagged as UTC ("Z" suffix).
	TimeUTC
	// TimeZoned is a datetime carrying an explicit non-UTC timezone.
	TimeZoned
	// TimeFloating is a datetime with no timezone information at all.
	TimeFloating
)

// RawTime is a decoded calendar timestamp before normalization. For
// TimeZoned the Value's location is meaningful; for the other kinds only
// the wall-clock fields are, and the carrier location is arbitrary.
type RawTime struct {
	Kind  TimeKind
	Value time.Time
}

// RecurrenceRule is the recurrence metadata attached to at most one base
// event. It is consumed once during expansion and not retained.
type RecurrenceRule struct {
	// Freq is one of DAILY, WEEKLY, MONTHLY, YEARLY. Unknown values are
	// treated as WEEKLY.
	Freq string
	// ByDay holds weekday selectors (MO..SU); tokens outside that set
	// are ignored.
	ByDay []string
	// Until is the inclusive end of the recurrence, if bounded. Naive
	// UNTIL values are anchored in UTC by the parser.
	Until *time.Time
}

// RawEvent is one decoded event record as handed over by a calendar
// source, before normalization and recurrence expansion.
type RawEvent struct {
	ID       string
	Title    string
	SourceID string

	Start RawTime
	End   RawTime

	Rule *RecurrenceRule
}
