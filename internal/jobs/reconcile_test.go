package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keanlouis30/Easely/internal/canvas"
	"github.com/keanlouis30/Easely/internal/domain"
	"github.com/keanlouis30/Easely/internal/metrics"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// fakeGateway serves a scripted snapshot, optionally failing the first
// N calls with a fixed error.
type fakeGateway struct {
	courses     []canvas.RemoteCourse
	assignments []canvas.RemoteAssignment

	failNext int
	failWith error
	calls    int
}

func (g *fakeGateway) fail() error {
	g.calls++
	if g.failNext > 0 {
		g.failNext--
		return g.failWith
	}
	return nil
}

func (g *fakeGateway) ListCourses(ctx context.Context, cred domain.Credential) ([]canvas.RemoteCourse, error) {
	if err := g.fail(); err != nil {
		return nil, err
	}
	return g.courses, nil
}

func (g *fakeGateway) ListAssignments(ctx context.Context, cred domain.Credential) ([]canvas.RemoteAssignment, error) {
	if err := g.fail(); err != nil {
		return nil, err
	}
	return g.assignments, nil
}

// fakeSyncStore is an in-memory SyncStore keyed the way the SQLite repo
// keys things: courses and tasks by upstream id per user.
type fakeSyncStore struct {
	dueUsers []domain.User

	nextID   int64
	courses  map[string]*domain.Course
	tasks    map[string]*domain.Task
	invalid  map[int64]bool
	lastSync map[int64]time.Time
}

func newFakeSyncStore(users ...domain.User) *fakeSyncStore {
	return &fakeSyncStore{
		dueUsers: users,
		courses:  map[string]*domain.Course{},
		tasks:    map[string]*domain.Task{},
		invalid:  map[int64]bool{},
		lastSync: map[int64]time.Time{},
	}
}

func (f *fakeSyncStore) ListUsersDueForSync(ctx context.Context, olderThan time.Time, limit int) ([]domain.User, error) {
	if len(f.dueUsers) > limit {
		return f.dueUsers[:limit], nil
	}
	return f.dueUsers, nil
}

func (f *fakeSyncStore) SetCredentialInvalid(ctx context.Context, userID int64, invalid bool) error {
	f.invalid[userID] = invalid
	return nil
}

func (f *fakeSyncStore) SetLastSync(ctx context.Context, userID int64, at time.Time) error {
	f.lastSync[userID] = at
	return nil
}

func (f *fakeSyncStore) UpsertCourse(ctx context.Context, c *domain.Course) error {
	if prev, ok := f.courses[c.CanvasCourseID]; ok {
		c.ID = prev.ID
	} else {
		f.nextID++
		c.ID = f.nextID
	}
	cp := *c
	f.courses[c.CanvasCourseID] = &cp
	return nil
}

func (f *fakeSyncStore) ListActiveAssignmentTasks(ctx context.Context, userID int64) ([]domain.Task, error) {
	var res []domain.Task
	for _, t := range f.tasks {
		if t.UserID == userID && !t.Deleted {
			res = append(res, *t)
		}
	}
	return res, nil
}

func (f *fakeSyncStore) UpsertRemoteTask(ctx context.Context, t *domain.Task) error {
	if prev, ok := f.tasks[t.AssignmentID]; ok {
		t.ID = prev.ID
	} else {
		f.nextID++
		t.ID = f.nextID
	}
	cp := *t
	cp.Completed, cp.Deleted, cp.Sent = false, false, domain.ReminderMarks{}
	f.tasks[t.AssignmentID] = &cp
	return nil
}

func (f *fakeSyncStore) UpdateTaskSchedule(ctx context.Context, taskID int64, title string, dueAt time.Time) error {
	for _, t := range f.tasks {
		if t.ID == taskID {
			t.Title, t.DueAt = title, dueAt
			return nil
		}
	}
	return errors.New("no such task")
}

func (f *fakeSyncStore) SoftDeleteTask(ctx context.Context, taskID int64) error {
	for _, t := range f.tasks {
		if t.ID == taskID {
			t.Deleted = true
			return nil
		}
	}
	return errors.New("no such task")
}

func newTestSync(store *fakeSyncStore, gw *fakeGateway) *Sync {
	s := NewSync(store, gw, SyncConfig{
		Staleness:     6 * time.Hour,
		UserDelay:     2 * time.Second,
		RateLimitWait: 5 * time.Second,
		BatchSize:     10,
	}, zap.NewNop(), newTestMetrics())
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func testUser(id int64) domain.User {
	return domain.User{ID: id, ChatID: 1000 + id, Credential: domain.Credential{Token: "tok", BaseURL: "https://c.example"}}
}

func TestReconcileDiffsMirrorAgainstSnapshot(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := testUser(1)
	store := newFakeSyncStore(u)
	gw := &fakeGateway{
		courses: []canvas.RemoteCourse{{ID: "c1", Name: "Algorithms", Code: "CS201"}},
		assignments: []canvas.RemoteAssignment{
			{ID: "A", CourseID: "c1", Title: "Problem set 1", DueAt: now.Add(24 * time.Hour)},
			{ID: "B", CourseID: "c1", Title: "Problem set 2", DueAt: now.Add(48 * time.Hour)},
			{ID: "C", CourseID: "c1", Title: "Problem set 3", DueAt: now.Add(72 * time.Hour)},
		},
	}
	sync := newTestSync(store, gw)

	diff, err := sync.ReconcileUser(context.Background(), u, now)
	require.NoError(t, err)
	require.Equal(t, Diff{Added: 3}, diff)
	require.Equal(t, now, store.lastSync[u.ID])

	// Upstream moves B and replaces C with D.
	gw.assignments = []canvas.RemoteAssignment{
		{ID: "A", CourseID: "c1", Title: "Problem set 1", DueAt: now.Add(24 * time.Hour)},
		{ID: "B", CourseID: "c1", Title: "Problem set 2", DueAt: now.Add(96 * time.Hour)},
		{ID: "D", CourseID: "c1", Title: "Problem set 4", DueAt: now.Add(120 * time.Hour)},
	}

	diff, err = sync.ReconcileUser(context.Background(), u, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, Diff{Added: 1, Updated: 1, Removed: 1}, diff)

	require.True(t, store.tasks["C"].Deleted)
	require.True(t, store.tasks["B"].DueAt.Equal(now.Add(96*time.Hour)))
	require.False(t, store.tasks["D"].Deleted)
}

func TestReconcileIsIdempotent(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := testUser(1)
	store := newFakeSyncStore(u)
	gw := &fakeGateway{
		courses: []canvas.RemoteCourse{{ID: "c1", Name: "Algorithms"}},
		assignments: []canvas.RemoteAssignment{
			{ID: "A", CourseID: "c1", Title: "Quiz", DueAt: now.Add(24 * time.Hour)},
		},
	}
	sync := newTestSync(store, gw)

	_, err := sync.ReconcileUser(context.Background(), u, now)
	require.NoError(t, err)

	diff, err := sync.ReconcileUser(context.Background(), u, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, Diff{}, diff, "unchanged snapshot applies no writes")
}

func TestReconcileUpdatePreservesReminderMarks(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := testUser(1)
	store := newFakeSyncStore(u)
	gw := &fakeGateway{
		courses: []canvas.RemoteCourse{{ID: "c1", Name: "Algorithms"}},
		assignments: []canvas.RemoteAssignment{
			{ID: "A", CourseID: "c1", Title: "Quiz", DueAt: now.Add(24 * time.Hour)},
		},
	}
	sync := newTestSync(store, gw)

	_, err := sync.ReconcileUser(context.Background(), u, now)
	require.NoError(t, err)
	store.tasks["A"].Sent = domain.ReminderMarks{}.With(domain.Window1Day)

	gw.assignments[0].DueAt = now.Add(72 * time.Hour)
	diff, err := sync.ReconcileUser(context.Background(), u, now)
	require.NoError(t, err)
	require.Equal(t, Diff{Updated: 1}, diff)
	require.True(t, store.tasks["A"].Sent.Marked(domain.Window1Day), "due-date move keeps markers")
}

func TestReconcileRetriesOnceOnRateLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := testUser(1)
	store := newFakeSyncStore(u)
	gw := &fakeGateway{
		failNext: 1,
		failWith: canvas.ErrRateLimited,
		courses:  []canvas.RemoteCourse{{ID: "c1", Name: "Algorithms"}},
		assignments: []canvas.RemoteAssignment{
			{ID: "A", CourseID: "c1", Title: "Quiz", DueAt: now.Add(24 * time.Hour)},
		},
	}
	sync := newTestSync(store, gw)

	var waited []time.Duration
	sync.sleep = func(ctx context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}

	diff, err := sync.ReconcileUser(context.Background(), u, now)
	require.NoError(t, err)
	require.Equal(t, Diff{Added: 1}, diff)
	require.Equal(t, []time.Duration{5 * time.Second}, waited)
}

func TestReconcileGivesUpAfterSecondRateLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := testUser(1)
	store := newFakeSyncStore(u)
	gw := &fakeGateway{failNext: 2, failWith: canvas.ErrRateLimited}
	sync := newTestSync(store, gw)

	_, err := sync.ReconcileUser(context.Background(), u, now)
	require.ErrorIs(t, err, canvas.ErrRateLimited)
	require.Empty(t, store.lastSync, "failed sync must not advance the sync time")
}

func TestReconcileFlagsInvalidCredential(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := testUser(1)
	store := newFakeSyncStore(u)
	gw := &fakeGateway{failNext: 1, failWith: canvas.ErrAuthInvalid}
	sync := newTestSync(store, gw)

	_, err := sync.ReconcileUser(context.Background(), u, now)
	require.ErrorIs(t, err, canvas.ErrAuthInvalid)
	require.True(t, store.invalid[u.ID])
	require.Empty(t, store.tasks, "mirror untouched on auth failure")
	require.Empty(t, store.lastSync)
}

func TestRunOnceIsolatesPerUserFailures(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u1, u2 := testUser(1), testUser(2)
	store := newFakeSyncStore(u1, u2)
	// First user's snapshot fails hard twice (initial try and retry);
	// the second user's succeeds.
	gw := &fakeGateway{
		failNext: 2,
		failWith: canvas.ErrRateLimited,
		courses:  []canvas.RemoteCourse{{ID: "c1", Name: "Algorithms"}},
		assignments: []canvas.RemoteAssignment{
			{ID: "A", CourseID: "c1", Title: "Quiz", DueAt: now.Add(24 * time.Hour)},
		},
	}
	sync := newTestSync(store, gw)

	stats, err := sync.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Users)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, stats.Added)
	require.Contains(t, store.lastSync, u2.ID)
	require.NotContains(t, store.lastSync, u1.ID)
}
