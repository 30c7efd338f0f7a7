package domain

import "time"

// Window is a named offset before a task's due time at which a reminder
// becomes eligible to fire.
type Window int

const (
	Window1Week Window = iota
	Window3Days
	Window1Day
	Window8Hours
	Window2Hours
	Window1Hour
)

// Offset returns how long before the due time this window sits.
func (w Window) Offset() time.Duration {
	switch w {
	case Window1Week:
		return 168 * time.Hour
	case Window3Days:
		return 72 * time.Hour
	case Window1Day:
		return 24 * time.Hour
	case Window8Hours:
		return 8 * time.Hour
	case Window2Hours:
		return 2 * time.Hour
	case Window1Hour:
		return time.Hour
	}
	return 0
}

func (w Window) String() string {
	switch w {
	case Window1Week:
		return "1_week"
	case Window3Days:
		return "3_days"
	case Window1Day:
		return "1_day"
	case Window8Hours:
		return "8_hours"
	case Window2Hours:
		return "2_hours"
	case Window1Hour:
		return "1_hour"
	}
	return "unknown"
}

// AllWindows lists every window in descending offset order
// (furthest-out first). Selection depends on this order.
func AllWindows() []Window {
	return []Window{Window1Week, Window3Days, Window1Day, Window8Hours, Window2Hours, Window1Hour}
}

// WindowsFor returns the windows a user is entitled to at the given
// instant: one 24-hour window on the free tier, all six with an active
// premium subscription. Order is descending offset.
func WindowsFor(u User, now time.Time) []Window {
	if u.ActivePremium(now) {
		return AllWindows()
	}
	return []Window{Window1Day}
}

// Due reports whether now falls within tolerance of this window's exact
// offset before due.
func (w Window) Due(due, now time.Time, tolerance time.Duration) bool {
	target := due.Add(-w.Offset())
	diff := now.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// NextDue picks the reminder to send for a task, if any: the first
// entitled window (in the given order) that is due and not yet marked
// sent. At most one window is ever returned per call, so a task gets at
// most one notification per scheduler invocation even when several
// windows are due at once.
func NextDue(t Task, entitled []Window, now time.Time, tolerance time.Duration) (Window, bool) {
	if !t.Live() {
		return 0, false
	}
	for _, w := range entitled {
		if t.Sent.Marked(w) {
			continue
		}
		if w.Due(t.DueAt, now, tolerance) {
			return w, true
		}
	}
	return 0, false
}
