package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
// Tracks user lifecycle counts, rejected writes, and critical path durations.
type Metrics struct {
	UsersCreated         prometheus.Counter
	UsersUpdated         prometheus.Counter
	UsersDeleted         prometheus.Counter
	DuplicateKeys        *prometheus.CounterVec
	ConcurrencyConflicts prometheus.Counter
	CreateUserDuration   prometheus.Histogram
	UpdateUserDuration   prometheus.Histogram
	FindUserDuration     prometheus.Histogram
}

// New creates a new Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idstore_users_created_total",
			Help: "Total number of users created",
		}),
		UsersUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idstore_users_updated_total",
			Help: "Total number of user updates applied",
		}),
		UsersDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idstore_users_deleted_total",
			Help: "Total number of users deleted",
		}),
		DuplicateKeys: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idstore_duplicate_key_rejections_total",
			Help: "Writes rejected by a uniqueness guard, by field",
		}, []string{"field"}),
		ConcurrencyConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idstore_concurrency_conflicts_total",
			Help: "Updates rejected due to a stale concurrency stamp",
		}),
		CreateUserDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idstore_create_user_duration_seconds",
			Help:    "Duration of CreateUser operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		UpdateUserDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idstore_update_user_duration_seconds",
			Help:    "Duration of UpdateUser operations (stamp check included)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		FindUserDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idstore_find_user_duration_seconds",
			Help:    "Duration of user lookups (login critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementUsersCreated records a successful user creation.
func (m *Metrics) IncrementUsersCreated() {
	m.UsersCreated.Inc()
}

// IncrementUsersUpdated records a successfully applied update.
func (m *Metrics) IncrementUsersUpdated() {
	m.UsersUpdated.Inc()
}

// IncrementUsersDeleted records a successful deletion.
func (m *Metrics) IncrementUsersDeleted() {
	m.UsersDeleted.Inc()
}

// IncrementDuplicateKey records a write rejected by the uniqueness guard on
// the given field.
func (m *Metrics) IncrementDuplicateKey(field string) {
	m.DuplicateKeys.WithLabelValues(field).Inc()
}

// IncrementConcurrencyConflict records an update rejected by the stamp check.
func (m *Metrics) IncrementConcurrencyConflict() {
	m.ConcurrencyConflicts.Inc()
}

// ObserveCreateUser records the duration of a CreateUser operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreateUser(start time.Time) {
	m.CreateUserDuration.Observe(time.Since(start).Seconds())
}

// ObserveUpdateUser records the duration of an UpdateUser operation.
func (m *Metrics) ObserveUpdateUser(start time.Time) {
	m.UpdateUserDuration.Observe(time.Since(start).Seconds())
}

// ObserveFindUser records the duration of a lookup operation.
func (m *Metrics) ObserveFindUser(start time.Time) {
	m.FindUserDuration.Observe(time.Since(start).Seconds())
}
