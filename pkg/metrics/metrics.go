package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_total",
			Help: "Total number of queued events by outcome",
		},
		[]string{"outcome"},
	)

	EventsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_persisted_total",
			Help: "Total number of events written to the local queue by group",
		},
		[]string{"group"},
	)

	ValidationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_validation_errors_total",
			Help: "Total number of validation errors raised while cleaning events",
		},
	)

	ProfileChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_profile_changes_total",
			Help: "Total number of profile attribute changes detected",
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_queue_depth",
			Help: "Number of events waiting in the local queue by group",
		},
		[]string{"group"},
	)

	// Flush metrics
	FlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_flush_total",
			Help: "Total number of flush attempts by group and status",
		},
		[]string{"group", "status"},
	)

	FlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_flush_duration_seconds",
			Help:    "Flush duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"group"},
	)

	FlushScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_flush_scheduled_total",
			Help: "Total number of flush timers installed by lane",
		},
		[]string{"lane"},
	)

	EventsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_sent_total",
			Help: "Total number of events accepted by the collector by group",
		},
		[]string{"group"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(EventsPersisted)
	prometheus.MustRegister(ValidationErrors)
	prometheus.MustRegister(ProfileChanges)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(FlushTotal)
	prometheus.MustRegister(FlushDuration)
	prometheus.MustRegister(FlushScheduled)
	prometheus.MustRegister(EventsSent)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in h
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in the labelled child of h
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
