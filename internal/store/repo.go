package store

import (
	"context"
	"errors"
	"time"

	"github.com/keanlouis30/Easely/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// ReminderCandidate pairs a task with its owner for the reminder job.
type ReminderCandidate struct {
	Task domain.Task
	User domain.User
}

// Repo defines storage operations for users, courses and tasks. Every
// mutation is a single row-scoped statement, so a job crashing between
// calls leaves the store valid.
type Repo interface {
	// Users.
	GetUserByChatID(ctx context.Context, chatID int64) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateCredential(ctx context.Context, userID int64, cred domain.Credential, canvasUserID string) error
	SetCredentialInvalid(ctx context.Context, userID int64, invalid bool) error
	UpdateTierAndExpiry(ctx context.Context, userID int64, tier domain.Tier, until *time.Time) error
	SetRemindersEnabled(ctx context.Context, userID int64, enabled bool) error
	SetLastSync(ctx context.Context, userID int64, at time.Time) error
	IncrementManualTasks(ctx context.Context, userID int64, now time.Time) error
	ListUsersDueForSync(ctx context.Context, olderThan time.Time, limit int) ([]domain.User, error)
	ListExpiredPremium(ctx context.Context, now time.Time) ([]domain.User, error)

	// Courses.
	UpsertCourse(ctx context.Context, c *domain.Course) error
	ListCourses(ctx context.Context, userID int64) ([]domain.Course, error)

	// Tasks. UpsertRemoteTask creates a mirror row keyed by its upstream
	// correlation id; on conflict the row is re-created in place (title,
	// due, flags and reminder marks reset), which is the one path that
	// may clear marks. UpdateTaskSchedule touches title/due only and
	// preserves marks.
	UpsertRemoteTask(ctx context.Context, t *domain.Task) error
	CreateManualTask(ctx context.Context, t *domain.Task) error
	UpdateTaskSchedule(ctx context.Context, taskID int64, title string, dueAt time.Time) error
	SoftDeleteTask(ctx context.Context, taskID int64) error
	CompleteTask(ctx context.Context, userID, taskID int64) error
	ListActiveAssignmentTasks(ctx context.Context, userID int64) ([]domain.Task, error)
	ListUpcomingTasks(ctx context.Context, userID int64, from, to time.Time, limit int) ([]domain.Task, error)
	ListOverdueTasks(ctx context.Context, userID int64, now time.Time) ([]domain.Task, error)
	SetReminderSent(ctx context.Context, taskID int64, w domain.Window) error
	ListReminderCandidates(ctx context.Context, now time.Time, tolerance time.Duration) ([]ReminderCandidate, error)

	Close() error
}
