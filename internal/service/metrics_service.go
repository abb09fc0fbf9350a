package service

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edtsuite/timetable-core/internal/dto"
)

// MetricsService encapsulates Prometheus instrumentation for the
// scheduling pipeline. All methods are nil-safe so instrumentation can
// be left unwired in tests.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	generatorRuns     *prometheus.CounterVec
	generatedSessions prometheus.Counter
	optimizerRuns     *prometheus.CounterVec
	optimizerDuration prometheus.Histogram
	optimizerGain     prometheus.Histogram
	conflictGauge     prometheus.Gauge
	sessionGauge      prometheus.Gauge

	generatorRunCount uint64
	optimizerRunCount uint64
}

// NewMetricsService registers the scheduling collectors on a private
// registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	generatorRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_generator_runs_total",
		Help: "Total generator runs, partitioned by outcome",
	}, []string{"outcome"})

	generatedSessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_generated_sessions_total",
		Help: "Total sessions created by the generator",
	})

	optimizerRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_optimizer_runs_total",
		Help: "Total optimizer runs, partitioned by outcome",
	}, []string{"outcome"})

	optimizerDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_optimizer_duration_seconds",
		Help:    "Wall-clock duration of optimizer runs",
		Buckets: prometheus.DefBuckets,
	})

	optimizerGain := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_optimizer_score_gain",
		Help:    "Score improvement achieved per optimizer run",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})

	conflictGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_schedule_conflicts",
		Help: "Conflicts in the last scored schedule",
	})

	sessionGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_sessions",
		Help: "Sessions in the active schedule",
	})

	registry.MustRegister(generatorRuns, generatedSessions, optimizerRuns, optimizerDuration, optimizerGain, conflictGauge, sessionGauge)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		generatorRuns:     generatorRuns,
		generatedSessions: generatedSessions,
		optimizerRuns:     optimizerRuns,
		optimizerDuration: optimizerDuration,
		optimizerGain:     optimizerGain,
		conflictGauge:     conflictGauge,
		sessionGauge:      sessionGauge,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// GeneratorRun records one generator run and its produced sessions.
func (m *MetricsService) GeneratorRun(report *dto.GenerateReport) {
	if m == nil || report == nil {
		return
	}
	outcome := "complete"
	if report.Failed > 0 {
		outcome = "partial"
	}
	m.generatorRuns.WithLabelValues(outcome).Inc()
	m.generatedSessions.Add(float64(report.Created))
	atomic.AddUint64(&m.generatorRunCount, 1)
}

// OptimizerRun records one optimizer run.
func (m *MetricsService) OptimizerRun(result *dto.OptimizeResult, duration time.Duration) {
	if m == nil || result == nil {
		return
	}
	outcome := "unchanged"
	if result.Success {
		outcome = "improved"
	}
	m.optimizerRuns.WithLabelValues(outcome).Inc()
	m.optimizerDuration.Observe(duration.Seconds())
	if gain := result.Improvement.Score; gain > 0 {
		m.optimizerGain.Observe(gain)
	}
	m.conflictGauge.Set(float64(result.OptimizedStats.Conflicts))
	atomic.AddUint64(&m.optimizerRunCount, 1)
}

// SetScheduleSize tracks the active session count.
func (m *MetricsService) SetScheduleSize(sessions int) {
	if m == nil {
		return
	}
	m.sessionGauge.Set(float64(sessions))
}

// RunCounts returns aggregate run totals for diagnostics.
func (m *MetricsService) RunCounts() (generator, optimizer uint64) {
	if m == nil {
		return 0, 0
	}
	return atomic.LoadUint64(&m.generatorRunCount), atomic.LoadUint64(&m.optimizerRunCount)
}
