package model

import "time"

// TaskSource identifies which backend a task originated from.
type TaskSource string

const (
	TaskSourceLocal     TaskSource = "Local"
	TaskSourceEvolution TaskSource = "Evolution"
	TaskSourceGitHub    TaskSource = "GitHub"
)

// Task is a unit of work managed by the task store. The timeline core
// treats tasks as read-only input; only the store mutates them.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Completed bool       `json:"completed"`
	Source    TaskSource `json:"source"`

	// ParentEventID, when non-empty, nests this task under a specific
	// calendar event instead of scheduling it into a free gap.
	ParentEventID string `json:"parent_event_id,omitempty"`

	TimeSpentSeconds int  `json:"time_spent_seconds"`
	IsActive         bool `json:"is_active"`
}

// Standalone reports whether this task is eligible for gap scheduling.
func (t Task) Standalone() bool {
	return t.ParentEventID == "" && !t.Completed
}

// CalendarEvent is one concrete event occurrence after recurrence
// expansion and timezone normalization. Start and End are in the
// configured reference timezone; End is never before Start.
//
// ID and SourceID are carried for display and debugging only; they do
// not participate in occurrence identity (see internal/timeline dedup).
type CalendarEvent struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SourceID string `json:"source_id"`

	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// ItemType distinguishes the two kinds of timeline items.
type ItemType string

const (
	ItemEventFolder ItemType = "EventFolder"
	ItemGapTask     ItemType = "GapTask"
)

// TimelineItem is the resolved output unit of a day timeline. An
// EventFolder wraps a calendar event plus any tasks nested under it; a
// GapTask wraps exactly one standalone task scheduled into free time.
type TimelineItem struct {
	ItemType    ItemType   `json:"item_type"`
	Title       string     `json:"title"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	NestedTasks []Task     `json:"nested_tasks"`
	SourceID    string     `json:"source_id,omitempty"`
}
