package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalyzerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsignal",
			Subsystem: "analyzer",
			Name:      "latency_seconds",
			Help:      "Latency of each analyzer call during evaluation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"analyzer"},
	)

	AnalyzerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finsignal",
			Subsystem: "analyzer",
			Name:      "errors_total",
			Help:      "Failed analyzer calls; the evaluation continues without them",
		},
		[]string{"analyzer"},
	)

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finsignal",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of analysis endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyzerLatency, AnalyzerErrors, APILatency)
	})
}
