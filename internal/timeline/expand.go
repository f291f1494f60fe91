package timeline

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
)

// lookaround widens the recurrence search range on both sides of the
// query window. A recurring event's local start can land outside the
// UTC-normalized query day while the instance still overlaps it.
const lookaround = 24 * time.Hour

// Window is the half-open query range [Start, End) a day timeline is
// resolved for.
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) strictly overlaps the window.
// Touching at either boundary does not count.
func (w Window) Overlaps(start, end time.Time) bool {
	return start.Before(w.End) && end.After(w.Start)
}

var freqByName = map[string]rrule.Frequency{
	"DAILY":   rrule.DAILY,
	"WEEKLY":  rrule.WEEKLY,
	"MONTHLY": rrule.MONTHLY,
	"YEARLY":  rrule.YEARLY,
}

// newRRule is swapped out in tests to exercise the degraded path.
var newRRule = rrule.NewRRule

var weekdayByName = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// ExpandEvent produces the concrete occurrences of a raw event that
// overlap the query window. start/end are the event's normalized base
// endpoints; the base duration is preserved for every occurrence.
//
// Expansion failures are non-fatal: a malformed rule degrades to just
// the base occurrence so one bad record never aborts a whole resolution.
func ExpandEvent(ev model.RawEvent, start, end time.Time, win Window) []model.CalendarEvent {
	if ev.Rule == nil {
		if !win.Overlaps(start, end) {
			return nil
		}
		return []model.CalendarEvent{occurrence(ev, start, end)}
	}

	r, err := buildRule(*ev.Rule, start)
	if err != nil {
		appLog.Error("recurrence expansion failed; using base occurrence", err, "id", ev.ID, "freq", ev.Rule.Freq)
		return []model.CalendarEvent{occurrence(ev, start, end)}
	}

	dur := end.Sub(start)
	searchStart := win.Start.Add(-lookaround)
	searchEnd := win.End.Add(lookaround)

	var out []model.CalendarEvent
	for _, occStart := range r.Between(searchStart, searchEnd, true) {
		occEnd := occStart.Add(dur)
		if win.Overlaps(occStart, occEnd) {
			out = append(out, occurrence(ev, occStart, occEnd))
		}
	}
	return out
}

// buildRule maps a RecurrenceRule onto an rrule anchored at the base
// start. Unknown frequencies default to WEEKLY; unknown weekday tokens
// are dropped rather than rejected.
func buildRule(rule model.RecurrenceRule, dtstart time.Time) (*rrule.RRule, error) {
	freq, ok := freqByName[rule.Freq]
	if !ok {
		freq = rrule.WEEKLY
	}

	var days []rrule.Weekday
	for _, d := range rule.ByDay {
		if wd, ok := weekdayByName[d]; ok {
			days = append(days, wd)
		}
	}

	opt := rrule.ROption{
		Freq:      freq,
		Dtstart:   dtstart,
		Byweekday: days,
	}
	if rule.Until != nil {
		opt.Until = *rule.Until
	}

	return newRRule(opt)
}

func occurrence(ev model.RawEvent, start, end time.Time) model.CalendarEvent {
	return model.CalendarEvent{
		ID:       ev.ID,
		Title:    ev.Title,
		SourceID: ev.SourceID,
		Start:    start,
		End:      end,
	}
}
