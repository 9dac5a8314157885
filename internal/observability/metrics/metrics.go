package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config labels every collector with the running service.
type Config struct {
	ServiceName string
	Environment string
}

const (
	RegistrationCreated = "created"
	RegistrationUpdated = "updated"

	ReminderArmed    = "armed"
	ReminderCanceled = "canceled"
	ReminderPast     = "past"
	ReminderRestored = "restored"
	ReminderExpired  = "expired"

	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"

	ImportInserted = "inserted"
	ImportUpdated  = "updated"
	ImportFailed   = "failed"
	ImportWarning  = "warning"

	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonUnknown              = "unknown"
)

// Metrics holds the lifecycle engine collectors.
type Metrics struct {
	registrations *prometheus.CounterVec
	renewals      prometheus.Counter
	renewedAmount prometheus.Counter
	statusChanges *prometheus.CounterVec
	reminderJobs  *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	sweepRuns     *prometheus.CounterVec
	sweepDuration prometheus.Observer
	importRows    *prometheus.CounterVec
	storageErrors *prometheus.CounterVec

	push *pushed
}

var (
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// Default returns the process-wide collectors registered on the default registry.
func Default() *Metrics {
	return WithConfig(Config{})
}

// WithConfig returns the process-wide collectors, labelled from cfg on first use.
func WithConfig(cfg Config) *Metrics {
	defaultOnce.Do(func() {
		defaultSet = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return defaultSet
}

// ResetForTest drops the singleton so tests can register on a fresh registry.
func ResetForTest() {
	defaultOnce = sync.Once{}
	defaultSet = nil
}

// NewForRegistry builds collectors on a dedicated registerer.
func NewForRegistry(registerer prometheus.Registerer, cfg Config) *Metrics {
	return newMetrics(registerer, cfg)
}

func newMetrics(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "subtrack"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_subscriber_registrations_total",
			Help:        "Subscriber registrations by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		renewals: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "subtrack_subscriber_renewals_total",
			Help:        "Completed subscription renewals.",
			ConstLabels: constLabels,
		}),
		renewedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "subtrack_subscriber_renewed_amount_total",
			Help:        "Sum of amounts recorded on renewal.",
			ConstLabels: constLabels,
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_subscriber_status_changes_total",
			Help:        "Explicit status transitions by target status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		reminderJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_reminder_jobs_total",
			Help:        "Reminder job scheduling events.",
			ConstLabels: constLabels,
		}, []string{"event"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_notification_deliveries_total",
			Help:        "Outbound notification attempts by kind and result.",
			ConstLabels: constLabels,
		}, []string{"kind", "result"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_sweep_runs_total",
			Help:        "Daily sweep runs by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_import_rows_total",
			Help:        "Imported rows by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "subtrack_storage_errors_total",
			Help:        "Storage failures by operation and low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"operation", "reason"}),
	}
	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "subtrack_sweep_duration_seconds",
		Help:        "Daily sweep latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	m.sweepDuration = sweepDuration

	registerer.MustRegister(
		m.registrations,
		m.renewals,
		m.renewedAmount,
		m.statusChanges,
		m.reminderJobs,
		m.deliveries,
		m.sweepRuns,
		sweepDuration,
		m.importRows,
		m.storageErrors,
	)
	return m
}

func (m *Metrics) IncRegistration(created bool) {
	if m == nil {
		return
	}
	outcome := RegistrationUpdated
	if created {
		outcome = RegistrationCreated
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRenewal(amount int64) {
	if m == nil {
		return
	}
	m.renewals.Inc()
	if amount > 0 {
		m.renewedAmount.Add(float64(amount))
	}
	m.push.renewal(amount)
}

func (m *Metrics) IncStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncReminderJob(event string) {
	if m == nil {
		return
	}
	m.reminderJobs.WithLabelValues(event).Inc()
}

func (m *Metrics) IncDelivery(kind, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, result).Inc()
	m.push.delivery(kind, result)
}

func (m *Metrics) ObserveSweep(duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(duration.Seconds())
}

func (m *Metrics) AddImportRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importRows.WithLabelValues(outcome).Add(float64(n))
	m.push.imported(outcome, n)
}

func (m *Metrics) IncStorageError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.storageErrors.WithLabelValues(operation, ClassifyError(err)).Inc()
}

// ClassifyError maps storage errors to low-cardinality reasons.
func ClassifyError(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ReasonUniqueViolation
	}
	if hasPGCode(err, "55P03") {
		return ReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ReasonSerializationFailure
	}
	return ReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
