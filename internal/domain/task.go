package domain

import "time"

// TaskOrigin says where a task came from.
type TaskOrigin int

const (
	OriginAssignment TaskOrigin = iota // mirrored Canvas assignment
	OriginEvent                        // mirrored Canvas calendar event
	OriginManual                       // created by the user in chat
)

func (o TaskOrigin) String() string {
	switch o {
	case OriginAssignment:
		return "canvas_assignment"
	case OriginEvent:
		return "canvas_event"
	case OriginManual:
		return "manual_entry"
	}
	return "unknown"
}

// ReminderMarks tracks which reminder windows have already fired for a
// task. Marks are monotonic: once set they are never cleared except by a
// hard re-creation of the task.
type ReminderMarks struct {
	Week       bool
	ThreeDays  bool
	Day        bool
	EightHours bool
	TwoHours   bool
	Hour       bool
}

// Marked reports whether the given window's reminder was already sent.
func (m ReminderMarks) Marked(w Window) bool {
	switch w {
	case Window1Week:
		return m.Week
	case Window3Days:
		return m.ThreeDays
	case Window1Day:
		return m.Day
	case Window8Hours:
		return m.EightHours
	case Window2Hours:
		return m.TwoHours
	case Window1Hour:
		return m.Hour
	}
	return false
}

// With returns a copy of the marks with the given window set.
func (m ReminderMarks) With(w Window) ReminderMarks {
	switch w {
	case Window1Week:
		m.Week = true
	case Window3Days:
		m.ThreeDays = true
	case Window1Day:
		m.Day = true
	case Window8Hours:
		m.EightHours = true
	case Window2Hours:
		m.TwoHours = true
	case Window1Hour:
		m.Hour = true
	}
	return m
}

// Task is a snapshot of one academic obligation.
// Exactly one of AssignmentID/EventID is set for remote origins; both are
// empty for manual tasks.
type Task struct {
	ID           int64
	UserID       int64
	CourseID     *int64
	AssignmentID string
	EventID      string

	Title  string
	DueAt  time.Time // UTC, always present
	Origin TaskOrigin

	Completed bool
	Deleted   bool

	Sent ReminderMarks

	CreatedAt time.Time // UTC
}

// Live reports whether the task still participates in reminders.
func (t Task) Live() bool { return !t.Completed && !t.Deleted }

// Overdue reports whether the task's due time has passed unfinished.
func (t Task) Overdue(now time.Time) bool {
	return now.After(t.DueAt) && !t.Completed
}

// CorrelationID returns the upstream identifier this task mirrors, or ""
// for manual tasks.
func (t Task) CorrelationID() string {
	switch t.Origin {
	case OriginAssignment:
		return t.AssignmentID
	case OriginEvent:
		return t.EventID
	}
	return ""
}
