package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/keanlouis30/Easely/internal/domain"
	"github.com/keanlouis30/Easely/internal/metrics"
	"github.com/keanlouis30/Easely/internal/store"
)

// Sender delivers one plain-text message to a chat.
type Sender interface {
	SendText(chatID int64, text string) error
}

// ReminderStore is the slice of the repository the reminder job needs.
type ReminderStore interface {
	ListReminderCandidates(ctx context.Context, now time.Time, tolerance time.Duration) ([]store.ReminderCandidate, error)
	SetReminderSent(ctx context.Context, taskID int64, w domain.Window) error
}

// Reminders sends tier-gated deadline reminders. A task gets at most one
// message per run, for the furthest-out window that is due and unsent.
// The persisted markers are the only idempotence mechanism, so the sent
// marker flips only after the message is confirmed delivered.
type Reminders struct {
	store     ReminderStore
	sender    Sender
	tolerance time.Duration
	log       *zap.Logger
	met       *metrics.Metrics
}

func NewReminders(store ReminderStore, sender Sender, tolerance time.Duration, log *zap.Logger, met *metrics.Metrics) *Reminders {
	return &Reminders{store: store, sender: sender, tolerance: tolerance, log: log, met: met}
}

// ReminderStats summarizes one reminder run.
type ReminderStats struct {
	Candidates int
	Sent       int
	Failed     int
}

// RunOnce evaluates every candidate task once against the owner's
// entitled windows. Delivery failures are logged and leave the marker
// untouched, so the next run retries while the window tolerance holds.
func (r *Reminders) RunOnce(ctx context.Context, now time.Time) (ReminderStats, error) {
	var stats ReminderStats

	cands, err := r.store.ListReminderCandidates(ctx, now, r.tolerance)
	if err != nil {
		return stats, fmt.Errorf("list reminder candidates: %w", err)
	}
	stats.Candidates = len(cands)

	for _, c := range cands {
		w, ok := domain.NextDue(c.Task, domain.WindowsFor(c.User, now), now, r.tolerance)
		if !ok {
			continue
		}

		if err := r.sender.SendText(c.User.ChatID, reminderText(c.Task, w, now)); err != nil {
			stats.Failed++
			r.met.RemindersFailed.Inc()
			r.log.Warn("reminder delivery failed",
				zap.Int64("user", c.User.ID),
				zap.Int64("task", c.Task.ID),
				zap.String("window", w.String()),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			continue
		}

		if err := r.store.SetReminderSent(ctx, c.Task.ID, w); err != nil {
			// The message went out but the marker did not stick; the
			// next run may repeat this reminder. Surface it loudly.
			r.log.Error("reminder sent but marker not persisted",
				zap.Int64("task", c.Task.ID),
				zap.String("window", w.String()),
				zap.Error(err),
			)
		}
		stats.Sent++
		r.met.RemindersSent.Inc()
	}

	r.log.Info("reminder pass finished",
		zap.Int("candidates", stats.Candidates),
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func reminderText(t domain.Task, w domain.Window, now time.Time) string {
	left := t.DueAt.Sub(now).Round(time.Minute)
	return fmt.Sprintf("⏰ Due in %s: %s\n%s (%s reminder)",
		formatLeft(left), t.Title, t.DueAt.Format("Mon, 02 Jan 15:04 MST"), w)
}

func formatLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
