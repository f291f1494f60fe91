package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
)

// ParseICS decodes a single ICS payload into raw event records. It
// records recurrence metadata but does not expand it; expansion belongs
// to the timeline core.
//
// A malformed VEVENT is logged and skipped so one bad component never
// loses the rest of the feed.
func ParseICS(src Source, body []byte) ([]model.RawEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]model.RawEvent, 0)

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (model.RawEvent, error) {
	var out model.RawEvent
	out.SourceID = src.ID

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = uidProp.Value

	out.Title = "Untitled"
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
		out.Title = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || startProp.Value == "" {
		return out, errors.New("missing DTSTART")
	}
	start, err := parseRawTime(startProp)
	if err != nil {
		return out, err
	}
	out.Start = start

	// DTEND is optional; a missing end collapses to the start.
	out.End = start
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && endProp.Value != "" {
		end, eerr := parseRawTime(endProp)
		if eerr != nil {
			return out, eerr
		}
		out.End = end
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil && rruleProp.Value != "" {
		out.Rule = parseRule(rruleProp.Value)
	}

	return out, nil
}

// parseRawTime classifies and decodes a DTSTART/DTEND property value.
//
//   - VALUE=DATE (or a value without a time part) -> bare date
//   - trailing "Z" -> UTC-tagged datetime
//   - TZID parameter -> explicitly zoned datetime
//   - otherwise -> floating datetime
func parseRawTime(p *ical.IANAProperty) (model.RawTime, error) {
	val := strings.TrimSpace(p.Value)
	if val == "" {
		return model.RawTime{}, errors.New("empty time value")
	}

	if paramEquals(p, "VALUE", "DATE") || !strings.Contains(val, "T") {
		t, err := time.ParseInLocation("20060102", val, time.UTC)
		if err != nil {
			return model.RawTime{}, err
		}
		return model.RawTime{Kind: model.TimeDateOnly, Value: t}, nil
	}

	if strings.HasSuffix(val, "Z") {
		t, err := time.Parse("20060102T150405Z", val)
		if err != nil {
			return model.RawTime{}, err
		}
		return model.RawTime{Kind: model.TimeUTC, Value: t}, nil
	}

	if tzid := param(p, "TZID"); tzid != "" {
		loc, err := time.LoadLocation(tzid)
		if err != nil {
			// Unknown TZID: degrade to a floating datetime.
			appLog.Error("unknown TZID; treating value as floating", err, "tzid", tzid)
		} else {
			t, perr := time.ParseInLocation("20060102T150405", val, loc)
			if perr != nil {
				return model.RawTime{}, perr
			}
			if loc == time.UTC {
				return model.RawTime{Kind: model.TimeUTC, Value: t}, nil
			}
			return model.RawTime{Kind: model.TimeZoned, Value: t}, nil
		}
	}

	t, err := time.ParseInLocation("20060102T150405", val, time.UTC)
	if err != nil {
		return model.RawTime{}, err
	}
	return model.RawTime{Kind: model.TimeFloating, Value: t}, nil
}

// parseRule decodes the FREQ/BYDAY/UNTIL parts of a raw RRULE value.
// Other rule parts are not used by the expander and are ignored here.
func parseRule(raw string) *model.RecurrenceRule {
	rule := &model.RecurrenceRule{Freq: "WEEKLY"}

	for _, part := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || v == "" {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(k)) {
		case "FREQ":
			rule.Freq = strings.ToUpper(strings.TrimSpace(v))
		case "BYDAY":
			for _, d := range strings.Split(v, ",") {
				d = strings.ToUpper(strings.TrimSpace(d))
				if d != "" {
					rule.ByDay = append(rule.ByDay, d)
				}
			}
		case "UNTIL":
			if t, err := parseUntil(strings.TrimSpace(v)); err == nil {
				rule.Until = &t
			} else {
				appLog.Error("unparseable UNTIL; leaving rule unbounded", err, "until", v)
			}
		}
	}

	return rule
}

// parseUntil decodes an UNTIL timestamp. Naive values are anchored in
// UTC, consistent with the zone the query window is widened around.
func parseUntil(v string) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	default:
		return time.ParseInLocation("20060102", v, time.UTC)
	}
}

func param(p *ical.IANAProperty, name string) string {
	if p.ICalParameters == nil {
		return ""
	}
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func paramEquals(p *ical.IANAProperty, name, want string) bool {
	return strings.EqualFold(param(p, name), want)
}
