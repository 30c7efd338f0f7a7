// Package jobs holds the three periodic jobs: mirror sync, deadline
// reminders, and the premium expiry sweep. Each job exposes a RunOnce
// that takes the current time, so the cron wiring stays in app and the
// jobs stay testable.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/keanlouis30/Easely/internal/canvas"
	"github.com/keanlouis30/Easely/internal/domain"
	"github.com/keanlouis30/Easely/internal/metrics"
)

// Gateway is the slice of the Canvas client the sync job needs.
type Gateway interface {
	ListCourses(ctx context.Context, cred domain.Credential) ([]canvas.RemoteCourse, error)
	ListAssignments(ctx context.Context, cred domain.Credential) ([]canvas.RemoteAssignment, error)
}

// SyncStore is the slice of the repository the sync job needs.
type SyncStore interface {
	ListUsersDueForSync(ctx context.Context, olderThan time.Time, limit int) ([]domain.User, error)
	SetCredentialInvalid(ctx context.Context, userID int64, invalid bool) error
	SetLastSync(ctx context.Context, userID int64, at time.Time) error
	UpsertCourse(ctx context.Context, c *domain.Course) error
	ListActiveAssignmentTasks(ctx context.Context, userID int64) ([]domain.Task, error)
	UpsertRemoteTask(ctx context.Context, t *domain.Task) error
	UpdateTaskSchedule(ctx context.Context, taskID int64, title string, dueAt time.Time) error
	SoftDeleteTask(ctx context.Context, taskID int64) error
}

// SyncConfig tunes the sync driver.
type SyncConfig struct {
	Staleness     time.Duration // mirrors older than this get refreshed
	UserDelay     time.Duration // pause between consecutive users
	RateLimitWait time.Duration // pause before the single 429 retry
	BatchSize     int           // max users per run
}

// Sync reconciles local mirrors against upstream snapshots, one user at
// a time.
type Sync struct {
	store SyncStore
	gw    Gateway
	cfg   SyncConfig
	log   *zap.Logger
	met   *metrics.Metrics

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSync(store SyncStore, gw Gateway, cfg SyncConfig, log *zap.Logger, met *metrics.Metrics) *Sync {
	return &Sync{store: store, gw: gw, cfg: cfg, log: log, met: met, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SyncStats summarizes one driver run.
type SyncStats struct {
	Users   int
	Failed  int
	Added   int
	Updated int
	Removed int
}

// RunOnce refreshes every stale mirror in one sequential pass. A failing
// user is logged and skipped; the pass keeps going unless the context is
// canceled.
func (s *Sync) RunOnce(ctx context.Context, now time.Time) (SyncStats, error) {
	var stats SyncStats

	users, err := s.store.ListUsersDueForSync(ctx, now.Add(-s.cfg.Staleness), s.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list users due for sync: %w", err)
	}

	for i, u := range users {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.UserDelay); err != nil {
				return stats, err
			}
		}

		stats.Users++
		diff, err := s.ReconcileUser(ctx, u, now)
		if err != nil {
			stats.Failed++
			s.met.SyncFailures.Inc()
			s.log.Warn("user sync failed", zap.Int64("user", u.ID), zap.Error(err))
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			continue
		}
		stats.Added += diff.Added
		stats.Updated += diff.Updated
		stats.Removed += diff.Removed
	}

	s.log.Info("sync pass finished",
		zap.Int("users", stats.Users),
		zap.Int("failed", stats.Failed),
		zap.Int("added", stats.Added),
		zap.Int("updated", stats.Updated),
		zap.Int("removed", stats.Removed),
	)
	return stats, nil
}

// Diff counts the changes one reconciliation applied.
type Diff struct {
	Added   int
	Updated int
	Removed int
}

// ReconcileUser fetches a full upstream snapshot and brings the user's
// mirror in line with it. On a rate-limited snapshot it waits once and
// retries once; on an invalid token it flags the credential and stops
// without touching the mirror.
func (s *Sync) ReconcileUser(ctx context.Context, u domain.User, now time.Time) (Diff, error) {
	var diff Diff

	courses, remote, err := s.snapshot(ctx, u.Credential)
	if errors.Is(err, canvas.ErrRateLimited) {
		if serr := s.sleep(ctx, s.cfg.RateLimitWait); serr != nil {
			return diff, serr
		}
		courses, remote, err = s.snapshot(ctx, u.Credential)
	}
	if errors.Is(err, canvas.ErrAuthInvalid) {
		if ferr := s.store.SetCredentialInvalid(ctx, u.ID, true); ferr != nil {
			return diff, fmt.Errorf("flag invalid credential: %w", ferr)
		}
		return diff, err
	}
	if err != nil {
		return diff, err
	}

	courseIDs := make(map[string]int64, len(courses))
	for _, rc := range courses {
		c := &domain.Course{
			UserID:         u.ID,
			CanvasCourseID: rc.ID,
			Name:           rc.Name,
			Code:           rc.Code,
			Active:         true,
		}
		if err := s.store.UpsertCourse(ctx, c); err != nil {
			return diff, fmt.Errorf("upsert course %s: %w", rc.ID, err)
		}
		courseIDs[rc.ID] = c.ID
	}

	local, err := s.store.ListActiveAssignmentTasks(ctx, u.ID)
	if err != nil {
		return diff, fmt.Errorf("list mirror: %w", err)
	}
	byAssignment := make(map[string]domain.Task, len(local))
	for _, t := range local {
		byAssignment[t.AssignmentID] = t
	}

	seen := make(map[string]bool, len(remote))
	for _, ra := range remote {
		seen[ra.ID] = true

		existing, ok := byAssignment[ra.ID]
		if !ok {
			t := &domain.Task{
				UserID:       u.ID,
				AssignmentID: ra.ID,
				Title:        ra.Title,
				DueAt:        ra.DueAt,
				Origin:       domain.OriginAssignment,
			}
			if id, ok := courseIDs[ra.CourseID]; ok {
				t.CourseID = &id
			}
			if err := s.store.UpsertRemoteTask(ctx, t); err != nil {
				return diff, fmt.Errorf("upsert task %s: %w", ra.ID, err)
			}
			diff.Added++
			continue
		}

		if existing.Title != ra.Title || !existing.DueAt.Equal(ra.DueAt) {
			if err := s.store.UpdateTaskSchedule(ctx, existing.ID, ra.Title, ra.DueAt); err != nil {
				return diff, fmt.Errorf("update task %s: %w", ra.ID, err)
			}
			diff.Updated++
		}
	}

	for _, t := range local {
		if seen[t.AssignmentID] {
			continue
		}
		if err := s.store.SoftDeleteTask(ctx, t.ID); err != nil {
			return diff, fmt.Errorf("soft delete task %s: %w", t.AssignmentID, err)
		}
		diff.Removed++
	}

	if err := s.store.SetLastSync(ctx, u.ID, now); err != nil {
		return diff, fmt.Errorf("record sync time: %w", err)
	}

	s.met.TasksAdded.Add(float64(diff.Added))
	s.met.TasksUpdated.Add(float64(diff.Updated))
	s.met.TasksRemoved.Add(float64(diff.Removed))
	return diff, nil
}

// snapshot fetches courses and assignments as one unit so the retry and
// auth handling above see a single result.
func (s *Sync) snapshot(ctx context.Context, cred domain.Credential) ([]canvas.RemoteCourse, []canvas.RemoteAssignment, error) {
	courses, err := s.gw.ListCourses(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	assignments, err := s.gw.ListAssignments(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	return courses, assignments, nil
}
