package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/keanlouis30/Easely/internal/domain"
)

func toNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullInt64(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Tier and origin are stored as strings; encoding and decoding happen
// only here, with unknown values rejected at the boundary.

func tierToString(t domain.Tier) (string, error) {
	switch t {
	case domain.TierFree:
		return "free", nil
	case domain.TierPremium:
		return "premium", nil
	}
	return "", fmt.Errorf("store: unknown tier %d", int(t))
}

func tierFromString(s string) (domain.Tier, error) {
	switch s {
	case "free":
		return domain.TierFree, nil
	case "premium":
		return domain.TierPremium, nil
	}
	return 0, fmt.Errorf("store: unknown tier %q", s)
}

func originToString(o domain.TaskOrigin) (string, error) {
	switch o {
	case domain.OriginAssignment:
		return "canvas_assignment", nil
	case domain.OriginEvent:
		return "canvas_event", nil
	case domain.OriginManual:
		return "manual_entry", nil
	}
	return "", fmt.Errorf("store: unknown origin %d", int(o))
}

func originFromString(s string) (domain.TaskOrigin, error) {
	switch s {
	case "canvas_assignment":
		return domain.OriginAssignment, nil
	case "canvas_event":
		return domain.OriginEvent, nil
	case "manual_entry":
		return domain.OriginManual, nil
	}
	return 0, fmt.Errorf("store: unknown origin %q", s)
}

// windowColumn maps a reminder window to its sent-marker column.
func windowColumn(w domain.Window) (string, error) {
	switch w {
	case domain.Window1Week:
		return "sent_1_week", nil
	case domain.Window3Days:
		return "sent_3_days", nil
	case domain.Window1Day:
		return "sent_1_day", nil
	case domain.Window8Hours:
		return "sent_8_hours", nil
	case domain.Window2Hours:
		return "sent_2_hours", nil
	case domain.Window1Hour:
		return "sent_1_hour", nil
	}
	return "", fmt.Errorf("store: unknown window %d", int(w))
}

const userColumns = `id, chat_id, canvas_token, canvas_base_url, canvas_user_id, token_invalid,
	tier, premium_until, reminders_enabled, manual_tasks_this_month, month_reset_at,
	last_sync_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		token      sql.NullString
		baseURL    sql.NullString
		canvasUID  sql.NullString
		invalid    int
		tier       string
		premiumNS  sql.NullInt64
		enabled    int
		monthReset int64
		lastSyncNS sql.NullInt64
		created    int64
	)
	if err := row.Scan(
		&u.ID, &u.ChatID, &token, &baseURL, &canvasUID, &invalid,
		&tier, &premiumNS, &enabled, &u.ManualTasksThisMonth, &monthReset,
		&lastSyncNS, &created,
	); err != nil {
		return nil, err
	}

	t, err := tierFromString(tier)
	if err != nil {
		return nil, err
	}
	u.Credential = domain.Credential{Token: token.String, BaseURL: baseURL.String}
	u.CanvasUserID = canvasUID.String
	u.CredentialInvalid = invalid != 0
	u.Tier = t
	u.PremiumUntil = fromNullInt64(premiumNS)
	u.RemindersEnabled = enabled != 0
	u.MonthResetAt = time.Unix(monthReset, 0).UTC()
	u.LastSyncAt = fromNullInt64(lastSyncNS)
	u.CreatedAt = time.Unix(created, 0).UTC()
	return &u, nil
}

const taskColumns = `id, user_id, course_id, canvas_assignment_id, canvas_event_id, title, due_at,
	origin, completed, deleted, sent_1_week, sent_3_days, sent_1_day, sent_8_hours,
	sent_2_hours, sent_1_hour, created_at`

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t            domain.Task
		courseID     sql.NullInt64
		assignmentID sql.NullString
		eventID      sql.NullString
		due          int64
		origin       string
		completed    int
		deleted      int
		sent         [6]int
		created      int64
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &courseID, &assignmentID, &eventID, &t.Title, &due,
		&origin, &completed, &deleted, &sent[0], &sent[1], &sent[2], &sent[3],
		&sent[4], &sent[5], &created,
	); err != nil {
		return nil, err
	}

	o, err := originFromString(origin)
	if err != nil {
		return nil, err
	}
	if courseID.Valid {
		id := courseID.Int64
		t.CourseID = &id
	}
	t.AssignmentID = assignmentID.String
	t.EventID = eventID.String
	t.DueAt = time.Unix(due, 0).UTC()
	t.Origin = o
	t.Completed = completed != 0
	t.Deleted = deleted != 0
	t.Sent = domain.ReminderMarks{
		Week:       sent[0] != 0,
		ThreeDays:  sent[1] != 0,
		Day:        sent[2] != 0,
		EightHours: sent[3] != 0,
		TwoHours:   sent[4] != 0,
		Hour:       sent[5] != 0,
	}
	t.CreatedAt = time.Unix(created, 0).UTC()
	return &t, nil
}

var userColumnList = []string{
	"id", "chat_id", "canvas_token", "canvas_base_url", "canvas_user_id", "token_invalid",
	"tier", "premium_until", "reminders_enabled", "manual_tasks_this_month", "month_reset_at",
	"last_sync_at", "created_at",
}

var taskColumnList = []string{
	"id", "user_id", "course_id", "canvas_assignment_id", "canvas_event_id", "title", "due_at",
	"origin", "completed", "deleted", "sent_1_week", "sent_3_days", "sent_1_day", "sent_8_hours",
	"sent_2_hours", "sent_1_hour", "created_at",
}

func qualify(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

func userColumnsQualified(alias string) string { return qualify(alias, userColumnList) }
func taskColumnsQualified(alias string) string { return qualify(alias, taskColumnList) }

// scanCandidate reads a task row joined with its owning user.
func scanCandidate(row rowScanner) (*ReminderCandidate, error) {
	var (
		c            ReminderCandidate
		courseID     sql.NullInt64
		assignmentID sql.NullString
		eventID      sql.NullString
		due          int64
		origin       string
		completed    int
		deleted      int
		sent         [6]int
		taskCreated  int64

		token       sql.NullString
		baseURL     sql.NullString
		canvasUID   sql.NullString
		invalid     int
		tier        string
		premiumNS   sql.NullInt64
		enabled     int
		monthReset  int64
		lastSyncNS  sql.NullInt64
		userCreated int64
	)
	if err := row.Scan(
		&c.Task.ID, &c.Task.UserID, &courseID, &assignmentID, &eventID, &c.Task.Title, &due,
		&origin, &completed, &deleted, &sent[0], &sent[1], &sent[2], &sent[3],
		&sent[4], &sent[5], &taskCreated,
		&c.User.ID, &c.User.ChatID, &token, &baseURL, &canvasUID, &invalid,
		&tier, &premiumNS, &enabled, &c.User.ManualTasksThisMonth, &monthReset,
		&lastSyncNS, &userCreated,
	); err != nil {
		return nil, err
	}

	o, err := originFromString(origin)
	if err != nil {
		return nil, err
	}
	ti, err := tierFromString(tier)
	if err != nil {
		return nil, err
	}

	if courseID.Valid {
		id := courseID.Int64
		c.Task.CourseID = &id
	}
	c.Task.AssignmentID = assignmentID.String
	c.Task.EventID = eventID.String
	c.Task.DueAt = time.Unix(due, 0).UTC()
	c.Task.Origin = o
	c.Task.Completed = completed != 0
	c.Task.Deleted = deleted != 0
	c.Task.Sent = domain.ReminderMarks{
		Week:       sent[0] != 0,
		ThreeDays:  sent[1] != 0,
		Day:        sent[2] != 0,
		EightHours: sent[3] != 0,
		TwoHours:   sent[4] != 0,
		Hour:       sent[5] != 0,
	}
	c.Task.CreatedAt = time.Unix(taskCreated, 0).UTC()

	c.User.Credential = domain.Credential{Token: token.String, BaseURL: baseURL.String}
	c.User.CanvasUserID = canvasUID.String
	c.User.CredentialInvalid = invalid != 0
	c.User.Tier = ti
	c.User.PremiumUntil = fromNullInt64(premiumNS)
	c.User.RemindersEnabled = enabled != 0
	c.User.MonthResetAt = time.Unix(monthReset, 0).UTC()
	c.User.LastSyncAt = fromNullInt64(lastSyncNS)
	c.User.CreatedAt = time.Unix(userCreated, 0).UTC()
	return &c, nil
}

// nullString converts "" to NULL so the partial unique indexes on the
// correlation columns only see real ids.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
