package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/keanlouis30/Easely/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Users ---

// GetUserByChatID returns the user owning a chat, or ErrNotFound.
func (r *SQLiteRepo) GetUserByChatID(ctx context.Context, chatID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE chat_id = ?`,
		chatID,
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// CreateUser inserts a new user row and fills in its id.
func (r *SQLiteRepo) CreateUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	tier, err := tierToString(u.Tier)
	if err != nil {
		return err
	}

	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	monthReset := u.MonthResetAt
	if monthReset.IsZero() {
		monthReset = domain.MonthStart(created)
	}

	return r.db.QueryRowContext(ctx, `
		INSERT INTO users (
			chat_id, canvas_token, canvas_base_url, canvas_user_id, token_invalid,
			tier, premium_until, reminders_enabled, manual_tasks_this_month,
			month_reset_at, last_sync_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		u.ChatID, nullString(u.Credential.Token), nullString(u.Credential.BaseURL),
		nullString(u.CanvasUserID), boolToInt(u.CredentialInvalid),
		tier, toNullInt64(u.PremiumUntil), boolToInt(u.RemindersEnabled),
		u.ManualTasksThisMonth, monthReset.UTC().Unix(),
		toNullInt64(u.LastSyncAt), created.UTC().Unix(),
	).Scan(&u.ID)
}

// UpdateCredential stores a freshly validated credential and clears the
// invalid flag.
func (r *SQLiteRepo) UpdateCredential(ctx context.Context, userID int64, cred domain.Credential, canvasUserID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET canvas_token = ?, canvas_base_url = ?, canvas_user_id = ?, token_invalid = 0
		WHERE id = ?`,
		nullString(cred.Token), nullString(cred.BaseURL), nullString(canvasUserID), userID,
	)
	return err
}

// SetCredentialInvalid flags (or clears) a revoked Canvas token.
func (r *SQLiteRepo) SetCredentialInvalid(ctx context.Context, userID int64, invalid bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET token_invalid = ?
		WHERE id = ?`,
		boolToInt(invalid), userID,
	)
	return err
}

// UpdateTierAndExpiry sets the subscription tier and expiry in one
// atomic statement.
func (r *SQLiteRepo) UpdateTierAndExpiry(ctx context.Context, userID int64, tier domain.Tier, until *time.Time) error {
	ts, err := tierToString(tier)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE users
		SET tier = ?, premium_until = ?
		WHERE id = ?`,
		ts, toNullInt64(until), userID,
	)
	return err
}

// SetRemindersEnabled toggles reminder delivery for a user.
func (r *SQLiteRepo) SetRemindersEnabled(ctx context.Context, userID int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET reminders_enabled = ?
		WHERE id = ?`,
		boolToInt(enabled), userID,
	)
	return err
}

// SetLastSync records a completed mirror refresh.
func (r *SQLiteRepo) SetLastSync(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_sync_at = ?
		WHERE id = ?`,
		at.UTC().Unix(), userID,
	)
	return err
}

// IncrementManualTasks bumps the monthly manual-task counter, starting a
// fresh month when the previous one rolled over 31 days ago. The whole
// decision runs inside one statement so a crash cannot split it.
func (r *SQLiteRepo) IncrementManualTasks(ctx context.Context, userID int64, now time.Time) error {
	const monthSeconds = 31 * 24 * 60 * 60
	nowUnix := now.UTC().Unix()
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET manual_tasks_this_month = CASE
				WHEN ? >= month_reset_at + ? THEN 1
				ELSE manual_tasks_this_month + 1
			END,
			month_reset_at = CASE
				WHEN ? >= month_reset_at + ? THEN ?
				ELSE month_reset_at
			END
		WHERE id = ?`,
		nowUnix, monthSeconds, nowUnix, monthSeconds,
		domain.MonthStart(now).Unix(), userID,
	)
	return err
}

// ListUsersDueForSync returns users with a linked, unflagged credential
// whose mirror is older than the threshold, never-synced users first.
// SQLite sorts NULLs first on ASC, which is exactly the priority we want.
func (r *SQLiteRepo) ListUsersDueForSync(ctx context.Context, olderThan time.Time, limit int) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE canvas_token IS NOT NULL
		  AND token_invalid = 0
		  AND (last_sync_at IS NULL OR last_sync_at < ?)
		ORDER BY last_sync_at ASC
		LIMIT ?`,
		olderThan.UTC().Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

// ListExpiredPremium returns users whose stored tier is premium but whose
// paid period has ended by now. A premium row with no expiry is invalid
// state and is included so the sweep can repair it.
func (r *SQLiteRepo) ListExpiredPremium(ctx context.Context, now time.Time) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tier = 'premium'
		  AND (premium_until IS NULL OR premium_until <= ?)`,
		now.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// --- Courses ---

// UpsertCourse inserts or refreshes a mirrored course row.
func (r *SQLiteRepo) UpsertCourse(ctx context.Context, c *domain.Course) error {
	if c == nil {
		return errors.New("nil course")
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO courses (user_id, canvas_course_id, name, code, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, canvas_course_id) DO UPDATE SET
			name   = excluded.name,
			code   = excluded.code,
			active = excluded.active
		RETURNING id`,
		c.UserID, c.CanvasCourseID, c.Name, nullString(c.Code),
		boolToInt(c.Active), created.UTC().Unix(),
	).Scan(&c.ID)
}

// ListCourses returns a user's active mirrored courses.
func (r *SQLiteRepo) ListCourses(ctx context.Context, userID int64) ([]domain.Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, canvas_course_id, name, code, active, created_at
		FROM courses
		WHERE user_id = ? AND active = 1
		ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Course
	for rows.Next() {
		var (
			c       domain.Course
			code    sql.NullString
			active  int
			created int64
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.CanvasCourseID, &c.Name, &code, &active, &created); err != nil {
			return nil, err
		}
		c.Code = code.String
		c.Active = active != 0
		c.CreatedAt = time.Unix(created, 0).UTC()
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- Tasks ---

// UpsertRemoteTask mirrors an upstream row keyed by its correlation id.
// A conflict means the id came back after a soft delete: the row is
// re-created in place, which resets flags and reminder marks.
func (r *SQLiteRepo) UpsertRemoteTask(ctx context.Context, t *domain.Task) error {
	if t == nil {
		return errors.New("nil task")
	}
	origin, err := originToString(t.Origin)
	if err != nil {
		return err
	}
	var conflict string
	switch t.Origin {
	case domain.OriginAssignment:
		if t.AssignmentID == "" {
			return errors.New("remote assignment task without assignment id")
		}
		conflict = "(user_id, canvas_assignment_id) WHERE canvas_assignment_id IS NOT NULL"
	case domain.OriginEvent:
		if t.EventID == "" {
			return errors.New("remote event task without event id")
		}
		conflict = "(user_id, canvas_event_id) WHERE canvas_event_id IS NOT NULL"
	default:
		return fmt.Errorf("origin %s is not a remote origin", t.Origin)
	}

	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (
			user_id, course_id, canvas_assignment_id, canvas_event_id,
			title, due_at, origin, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT`+conflict+` DO UPDATE SET
			course_id    = excluded.course_id,
			title        = excluded.title,
			due_at       = excluded.due_at,
			completed    = 0,
			deleted      = 0,
			sent_1_week  = 0,
			sent_3_days  = 0,
			sent_1_day   = 0,
			sent_8_hours = 0,
			sent_2_hours = 0,
			sent_1_hour  = 0
		RETURNING id`,
		t.UserID, courseIDValue(t.CourseID), nullString(t.AssignmentID), nullString(t.EventID),
		t.Title, t.DueAt.UTC().Unix(), origin, created.UTC().Unix(),
	).Scan(&t.ID)
}

// CreateManualTask inserts a user-authored task.
func (r *SQLiteRepo) CreateManualTask(ctx context.Context, t *domain.Task) error {
	if t == nil {
		return errors.New("nil task")
	}
	if t.Origin != domain.OriginManual {
		return fmt.Errorf("origin %s is not manual", t.Origin)
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (user_id, course_id, title, due_at, origin, created_at)
		VALUES (?, ?, ?, ?, 'manual_entry', ?)
		RETURNING id`,
		t.UserID, courseIDValue(t.CourseID), t.Title, t.DueAt.UTC().Unix(), created.UTC().Unix(),
	).Scan(&t.ID)
}

func courseIDValue(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// UpdateTaskSchedule overwrites title and due time only; reminder marks
// stay as they are even when the due date moves.
func (r *SQLiteRepo) UpdateTaskSchedule(ctx context.Context, taskID int64, title string, dueAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, due_at = ?
		WHERE id = ?`,
		title, dueAt.UTC().Unix(), taskID,
	)
	return err
}

// SoftDeleteTask removes a task from the active mirror without dropping
// the row.
func (r *SQLiteRepo) SoftDeleteTask(ctx context.Context, taskID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET deleted = 1
		WHERE id = ?`,
		taskID,
	)
	return err
}

// CompleteTask marks a live task finished. The user id guards against
// completing someone else's task from chat.
func (r *SQLiteRepo) CompleteTask(ctx context.Context, userID, taskID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET completed = 1
		WHERE id = ? AND user_id = ? AND deleted = 0`,
		taskID, userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveAssignmentTasks returns the non-deleted mirrored assignments
// for a user; this is the mirror side of the sync diff.
func (r *SQLiteRepo) ListActiveAssignmentTasks(ctx context.Context, userID int64) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id = ? AND origin = 'canvas_assignment' AND deleted = 0`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListUpcomingTasks returns live tasks due inside [from, to].
func (r *SQLiteRepo) ListUpcomingTasks(ctx context.Context, userID int64, from, to time.Time, limit int) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id = ? AND deleted = 0 AND completed = 0
		  AND due_at >= ? AND due_at <= ?
		ORDER BY due_at
		LIMIT ?`,
		userID, from.UTC().Unix(), to.UTC().Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListOverdueTasks returns live tasks already past due, most recently
// overdue first.
func (r *SQLiteRepo) ListOverdueTasks(ctx context.Context, userID int64, now time.Time) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id = ? AND deleted = 0 AND completed = 0 AND due_at < ?
		ORDER BY due_at DESC`,
		userID, now.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()

	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

// SetReminderSent flips one window's sent marker. Markers only ever go
// from false to true here.
func (r *SQLiteRepo) SetReminderSent(ctx context.Context, taskID int64, w domain.Window) error {
	col, err := windowColumn(w)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE tasks SET `+col+` = 1 WHERE id = ?`,
		taskID,
	)
	return err
}

// ListReminderCandidates pre-filters to live tasks whose due time falls
// inside any window's tolerance band around now, for users who have
// reminders enabled. Window/tier/marker selection happens in the job.
func (r *SQLiteRepo) ListReminderCandidates(ctx context.Context, now time.Time, tolerance time.Duration) ([]ReminderCandidate, error) {
	nowUTC := now.UTC()

	bands := ""
	args := make([]any, 0, 2*6)
	for i, w := range domain.AllWindows() {
		if i > 0 {
			bands += " OR "
		}
		bands += "(t.due_at BETWEEN ? AND ?)"
		target := nowUTC.Add(w.Offset())
		args = append(args, target.Add(-tolerance).Unix(), target.Add(tolerance).Unix())
	}

	query := `
		SELECT ` + taskColumnsQualified("t") + `, ` + userColumnsQualified("u") + `
		FROM tasks t
		JOIN users u ON u.id = t.user_id
		WHERE t.deleted = 0 AND t.completed = 0
		  AND u.reminders_enabled = 1
		  AND (` + bands + `)
		ORDER BY t.due_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ReminderCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *c)
	}
	return res, rows.Err()
}
