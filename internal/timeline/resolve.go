package timeline

import (
	"sort"
	"time"

	"dayplan/internal/model"
)

const (
	defaultCushion      = 5 * time.Minute
	defaultTaskDuration = 30 * time.Minute
)

// ResolveConfig parameterizes a single timeline resolution.
type ResolveConfig struct {
	// Now is where the scheduling cursor starts. Zero means time.Now()
	// in the local zone.
	Now time.Time

	// Cushion is inserted after every scheduled item before the next
	// may start. Zero means 5 minutes.
	Cushion time.Duration

	// TaskDuration sizes gap-scheduled tasks. Zero means 30 minutes.
	TaskDuration time.Duration
}

func (c ResolveConfig) withDefaults() ResolveConfig {
	if c.Now.IsZero() {
		c.Now = time.Now().In(time.Local)
	}
	if c.Cushion <= 0 {
		c.Cushion = defaultCushion
	}
	if c.TaskDuration <= 0 {
		c.TaskDuration = defaultTaskDuration
	}
	return c
}

// Resolve merges deduplicated event occurrences with pending tasks into
// a single ordered day timeline. Tasks with a parent event ride inside
// that event's folder; the remaining uncompleted tasks are packed
// greedily into the gaps before, between, and after events, FIFO, and
// whatever does not fit is appended after the last event so no
// standalone task is ever dropped.
//
// The pass is deterministic: events are sorted by start time with input
// order breaking ties, and the packing never backtracks.
func Resolve(events []model.CalendarEvent, tasks []model.Task, cfg ResolveConfig) []model.TimelineItem {
	cfg = cfg.withDefaults()

	standalone := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Standalone() {
			standalone = append(standalone, t)
		}
	}

	sorted := make([]model.CalendarEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	timeline := make([]model.TimelineItem, 0, len(sorted)+len(standalone))
	current := cfg.Now

	for _, ev := range sorted {
		// Pack as many standalone tasks as fit before this event
		// without overlapping it.
		for len(standalone) > 0 && !current.Add(cfg.TaskDuration+cfg.Cushion).After(ev.Start) {
			timeline = append(timeline, gapTask(standalone[0], current, cfg.TaskDuration))
			standalone = standalone[1:]
			current = current.Add(cfg.TaskDuration + cfg.Cushion)
		}

		timeline = append(timeline, eventFolder(ev, nestedTasks(tasks, ev.ID)))

		// An event never moves the cursor backward.
		if next := ev.End.Add(cfg.Cushion); next.After(current) {
			current = next
		}
	}

	// Drain the remainder at the end of the day.
	for _, t := range standalone {
		timeline = append(timeline, gapTask(t, current, cfg.TaskDuration))
		current = current.Add(cfg.TaskDuration + cfg.Cushion)
	}

	return timeline
}

func nestedTasks(tasks []model.Task, eventID string) []model.Task {
	var out []model.Task
	for _, t := range tasks {
		if t.ParentEventID != "" && t.ParentEventID == eventID {
			out = append(out, t)
		}
	}
	return out
}

func gapTask(t model.Task, start time.Time, dur time.Duration) model.TimelineItem {
	end := start.Add(dur)
	return model.TimelineItem{
		ItemType:    model.ItemGapTask,
		Title:       t.Title,
		StartTime:   start,
		EndTime:     &end,
		NestedTasks: []model.Task{t},
	}
}

func eventFolder(ev model.CalendarEvent, nested []model.Task) model.TimelineItem {
	if nested == nil {
		// Keeps the JSON field a list rather than null for childless folders.
		nested = []model.Task{}
	}
	end := ev.End
	return model.TimelineItem{
		ItemType:    model.ItemEventFolder,
		Title:       ev.Title,
		StartTime:   ev.Start,
		EndTime:     &end,
		NestedTasks: nested,
		SourceID:    ev.ID,
	}
}
