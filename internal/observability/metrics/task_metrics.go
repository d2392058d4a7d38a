package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"gorm.io/gorm"
)

const (
	TaskReasonDeadlineExceeded     = "deadline_exceeded"
	TaskReasonPermanent            = "permanent"
	TaskReasonUnavailable          = "unavailable"
	TaskReasonSerializationFailure = "serialization_failure"
	TaskReasonUniqueViolation      = "unique_violation"
	TaskReasonLockTimeout          = "db_lock_timeout"
	TaskReasonUnknown              = "unknown"
)

// TaskMetrics tracks background task health: runs, latency, failures by
// reason and tasks abandoned after the retry budget.
type TaskMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	failures  *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	swept     *prometheus.CounterVec
}

func NewTaskMetrics(cfg Config) *TaskMetrics {
	return newTaskMetrics(prometheus.DefaultRegisterer, cfg)
}

func newTaskMetrics(registerer prometheus.Registerer, cfg Config) *TaskMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ticketing_task_runs_total",
		Help:        "Background task attempts by topic.",
		ConstLabels: constLabels,
	}, []string{"topic"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "ticketing_task_duration_seconds",
		Help:        "Background task attempt latency by topic.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"topic"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ticketing_task_failures_total",
		Help:        "Background task attempt failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"topic", "reason"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ticketing_task_exhausted_total",
		Help:        "Tasks dropped after the retry budget or a permanent failure.",
		ConstLabels: constLabels,
	}, []string{"topic"})
	swept := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ticketing_sweeper_items_total",
		Help:        "Orders touched by the recovery sweeper.",
		ConstLabels: constLabels,
	}, []string{"action"})

	registerer.MustRegister(runs, duration, failures, exhausted, swept)
	return &TaskMetrics{
		runs:      runs,
		duration:  duration,
		failures:  failures,
		exhausted: exhausted,
		swept:     swept,
	}
}

// ObserveAttempt records one handler invocation and its outcome.
func (m *TaskMetrics) ObserveAttempt(topic string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(topic).Inc()
	m.duration.WithLabelValues(topic).Observe(elapsed.Seconds())
	if err != nil {
		m.failures.WithLabelValues(topic, ClassifyTaskReason(err)).Inc()
	}
}

func (m *TaskMetrics) IncExhausted(topic string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(topic).Inc()
}

// AddSwept counts orders re-enqueued or expired by the sweeper.
func (m *TaskMetrics) AddSwept(action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.swept.WithLabelValues(action).Add(float64(count))
}

// ClassifyTaskReason maps task errors to low-cardinality reasons.
func ClassifyTaskReason(err error) string {
	switch {
	case err == nil:
		return TaskReasonUnknown
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return TaskReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return TaskReasonLockTimeout
	case hasPGCode(err, "40001"):
		return TaskReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505"):
		return TaskReasonUniqueViolation
	case apperror.IsPermanent(err):
		return TaskReasonPermanent
	case apperror.KindOf(err) == apperror.KindUnavailable:
		return TaskReasonUnavailable
	default:
		return TaskReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
