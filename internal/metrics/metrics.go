package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AnalysesTotal counts analysis runs by result.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Total number of analysis runs, labeled by result.",
	}, []string{"result"})

	// AnalysisDurationSeconds is end-to-end time per analysis run.
	AnalysisDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "oracle",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "End-to-end time of an analysis run including narrative generation.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120, 300},
	})

	// MessagesParsed observes the number of messages per transcript.
	MessagesParsed = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "oracle",
		Subsystem: "analysis",
		Name:      "messages_parsed",
		Help:      "Messages extracted per uploaded transcript.",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
	})

	// ExtractionMissesTotal counts narratives without a readable match likelihood.
	ExtractionMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "analysis",
		Name:      "extraction_misses_total",
		Help:      "Narratives where no match-likelihood pattern matched.",
	})

	// ModelAttemptsTotal counts generator attempts by model and error class.
	ModelAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "narrative",
		Name:      "model_attempts_total",
		Help:      "Narrative generation attempts, labeled by model and outcome class.",
	}, []string{"model", "class"})

	// AllowListSize is the number of purchaser IDs currently allowed.
	AllowListSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "oracle",
		Subsystem: "auth",
		Name:      "allowlist_size",
		Help:      "Number of distinct purchaser IDs in the allow-list.",
	})

	// LoginsTotal counts login attempts by result.
	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oracle",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts, labeled by result.",
	}, []string{"result"})
)

// Register registers the service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AnalysesTotal,
			AnalysisDurationSeconds,
			MessagesParsed,
			ExtractionMissesTotal,
			ModelAttemptsTotal,
			AllowListSize,
			LoginsTotal,
		)
	})
}
