package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricGenerationsTotal    = "newsfeed_generations_total"
	MetricGenerationDuration  = "newsfeed_generation_duration_seconds"
	MetricStageErrorsTotal    = "newsfeed_stage_errors_total"
	MetricMalformedCandidates = "newsfeed_malformed_candidates_total"
	MetricLastCachedEntries   = "newsfeed_last_cached_entries"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus metrics for newsfeed generation.
// All operations are thread-safe.
type Metrics struct {
	generationsTotal    *prometheus.CounterVec
	generationDuration  prometheus.Histogram
	stageErrors         *prometheus.CounterVec
	malformedCandidates prometheus.Counter
	lastCachedEntries   prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		generationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricGenerationsTotal,
				Help: "Total number of newsfeed generation runs by status",
			},
			[]string{"status"},
		),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricGenerationDuration,
			Help:    "Histogram of newsfeed generation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		stageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStageErrorsTotal,
				Help: "Total number of failed newsfeed generations by failing stage",
			},
			[]string{"stage"},
		),
		malformedCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMalformedCandidates,
			Help: "Total number of candidates whose payload could not be parsed during scoring",
		}),
		lastCachedEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastCachedEntries,
			Help: "Number of entries written by the most recent successful generation",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncGenerations increments the generation counter for status.
func (m *Metrics) IncGenerations(status string) {
	m.generationsTotal.WithLabelValues(status).Inc()
}

// ObserveGenerationDuration records a generation duration sample.
func (m *Metrics) ObserveGenerationDuration(seconds float64) {
	m.generationDuration.Observe(seconds)
}

// IncStageErrors increments the failure counter for stage.
func (m *Metrics) IncStageErrors(stage Stage) {
	m.stageErrors.WithLabelValues(string(stage)).Inc()
}

// AddMalformedCandidates adds n to the malformed candidate counter.
func (m *Metrics) AddMalformedCandidates(n int) {
	m.malformedCandidates.Add(float64(n))
}

// SetLastCachedEntries sets the last cached entries gauge.
func (m *Metrics) SetLastCachedEntries(n int) {
	m.lastCachedEntries.Set(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.generationsTotal,
		m.generationDuration,
		m.stageErrors,
		m.malformedCandidates,
		m.lastCachedEntries,
	}
}
