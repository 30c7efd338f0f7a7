// Package metrics exposes Prometheus counters for the background jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RemindersSent   prometheus.Counter
	RemindersFailed prometheus.Counter

	TasksAdded   prometheus.Counter
	TasksUpdated prometheus.Counter
	TasksRemoved prometheus.Counter
	SyncFailures prometheus.Counter

	UsersDowngraded prometheus.Counter
}

// New registers all counters on the given registerer. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RemindersSent: f.NewCounter(prometheus.CounterOpts{
			Name: "easely_reminders_sent_total",
			Help: "Deadline reminders successfully delivered.",
		}),
		RemindersFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "easely_reminders_failed_total",
			Help: "Deadline reminders that failed to deliver.",
		}),
		TasksAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "easely_sync_tasks_added_total",
			Help: "Tasks added to local mirrors during sync.",
		}),
		TasksUpdated: f.NewCounter(prometheus.CounterOpts{
			Name: "easely_sync_tasks_updated_total",
			Help: "Tasks whose title or due date changed during sync.",
		}),
		TasksRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "easely_sync_tasks_removed_total",
			Help: "Tasks soft-deleted during sync.",
		}),
		SyncFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "easely_sync_failures_total",
			Help: "Per-user sync attempts that ended in an error.",
		}),
		UsersDowngraded: f.NewCounter(prometheus.CounterOpts{
			Name: "easely_users_downgraded_total",
			Help: "Premium users downgraded by the expiry sweep.",
		}),
	}
}
