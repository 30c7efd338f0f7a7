package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keanlouis30/Easely/internal/domain"
	"github.com/keanlouis30/Easely/internal/store"
)

// fakeReminderStore serves candidates from memory and records marker
// writes back into them, so consecutive RunOnce calls see the markers a
// real repository would persist.
type fakeReminderStore struct {
	cands []store.ReminderCandidate
}

func (f *fakeReminderStore) ListReminderCandidates(ctx context.Context, now time.Time, tolerance time.Duration) ([]store.ReminderCandidate, error) {
	out := make([]store.ReminderCandidate, len(f.cands))
	copy(out, f.cands)
	return out, nil
}

func (f *fakeReminderStore) SetReminderSent(ctx context.Context, taskID int64, w domain.Window) error {
	for i := range f.cands {
		if f.cands[i].Task.ID == taskID {
			f.cands[i].Task.Sent = f.cands[i].Task.Sent.With(w)
			return nil
		}
	}
	return errors.New("no such task")
}

type fakeSender struct {
	sent []sentMsg
	err  error
}

type sentMsg struct {
	chatID int64
	text   string
}

func (f *fakeSender) SendText(chatID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMsg{chatID, text})
	return nil
}

func premiumUser(id int64, now time.Time) domain.User {
	until := now.Add(720 * time.Hour)
	return domain.User{ID: id, ChatID: 1000 + id, Tier: domain.TierPremium, PremiumUntil: &until, RemindersEnabled: true}
}

func freeUser(id int64) domain.User {
	return domain.User{ID: id, ChatID: 1000 + id, Tier: domain.TierFree, RemindersEnabled: true}
}

func newTestReminders(fs *fakeReminderStore, sender *fakeSender) *Reminders {
	return NewReminders(fs, sender, 30*time.Minute, zap.NewNop(), newTestMetrics())
}

func TestRemindersAtMostOncePerTaskPerRun(t *testing.T) {
	now := time.Date(2025, 1, 9, 12, 5, 0, 0, time.UTC)
	due := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	fs := &fakeReminderStore{cands: []store.ReminderCandidate{{
		Task: domain.Task{ID: 1, UserID: 1, Title: "Essay", DueAt: due, Origin: domain.OriginAssignment},
		User: premiumUser(1, now),
	}}}
	sender := &fakeSender{}
	job := newTestReminders(fs, sender)

	stats, err := job.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, ReminderStats{Candidates: 1, Sent: 1}, stats)
	require.Len(t, sender.sent, 1)
	require.True(t, fs.cands[0].Task.Sent.Marked(domain.Window1Day))

	// Same timestamp, marker now set: nothing more goes out.
	stats, err = job.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, ReminderStats{Candidates: 1}, stats)
	require.Len(t, sender.sent, 1)
}

func TestRemindersFreeTierOnlyGetsDayWindow(t *testing.T) {
	now := time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)

	fs := &fakeReminderStore{cands: []store.ReminderCandidate{
		{
			// Inside the 8h band; free tier is not entitled to it.
			Task: domain.Task{ID: 1, UserID: 1, Title: "Quiz", DueAt: now.Add(8 * time.Hour), Origin: domain.OriginAssignment},
			User: freeUser(1),
		},
		{
			// Inside the 24h band; this one goes out.
			Task: domain.Task{ID: 2, UserID: 1, Title: "Essay", DueAt: now.Add(24 * time.Hour), Origin: domain.OriginAssignment},
			User: freeUser(1),
		},
	}}
	sender := &fakeSender{}
	job := newTestReminders(fs, sender)

	stats, err := job.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sent)
	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0].text, "Essay")
	require.False(t, fs.cands[0].Task.Sent.Marked(domain.Window8Hours))
}

func TestRemindersExpiredPremiumTreatedAsFree(t *testing.T) {
	now := time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)
	lapsed := now.Add(-time.Hour)
	u := domain.User{ID: 1, ChatID: 1001, Tier: domain.TierPremium, PremiumUntil: &lapsed, RemindersEnabled: true}

	fs := &fakeReminderStore{cands: []store.ReminderCandidate{{
		Task: domain.Task{ID: 1, UserID: 1, Title: "Quiz", DueAt: now.Add(2 * time.Hour), Origin: domain.OriginAssignment},
		User: u,
	}}}
	sender := &fakeSender{}
	job := newTestReminders(fs, sender)

	stats, err := job.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, stats.Sent, "lapsed premium gets only the 24h window")
}

func TestRemindersFurthestDueWindowWins(t *testing.T) {
	now := time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)

	// Due in exactly 8h: the 8h window is due, the closer ones are not yet.
	fs := &fakeReminderStore{cands: []store.ReminderCandidate{{
		Task: domain.Task{ID: 1, UserID: 1, Title: "Lab", DueAt: now.Add(8 * time.Hour), Origin: domain.OriginAssignment},
		User: premiumUser(1, now),
	}}}
	sender := &fakeSender{}
	job := newTestReminders(fs, sender)

	_, err := job.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.True(t, fs.cands[0].Task.Sent.Marked(domain.Window8Hours))
	require.False(t, fs.cands[0].Task.Sent.Marked(domain.Window2Hours))
}

func TestRemindersDeliveryFailureLeavesMarkerUnset(t *testing.T) {
	now := time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)

	fs := &fakeReminderStore{cands: []store.ReminderCandidate{{
		Task: domain.Task{ID: 1, UserID: 1, Title: "Essay", DueAt: now.Add(24 * time.Hour), Origin: domain.OriginAssignment},
		User: premiumUser(1, now),
	}}}
	sender := &fakeSender{err: errors.New("chat unreachable")}
	job := newTestReminders(fs, sender)

	stats, err := job.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, ReminderStats{Candidates: 1, Failed: 1}, stats)
	require.False(t, fs.cands[0].Task.Sent.Marked(domain.Window1Day))

	// Sender recovers while the tolerance still holds: next run delivers.
	sender.err = nil
	stats, err = job.RunOnce(context.Background(), now.Add(10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sent)
	require.True(t, fs.cands[0].Task.Sent.Marked(domain.Window1Day))
}
