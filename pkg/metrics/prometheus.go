package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal    *prometheus.CounterVec
	confidence      *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	cycleSize       prometheus.Gauge
	cycleSignals    prometheus.Counter
	cyclesCompleted prometheus.Counter
}

// New registers the recorder's collectors on reg, or on the default
// registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_signals_total",
				Help: "Signals emitted, by instrument and side",
			},
			[]string{"symbol", "side"},
		),
		confidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsignal_signal_confidence",
				Help:    "Confidence of emitted signals",
				Buckets: []float64{70, 75, 80, 85, 90, 95},
			},
			[]string{"side"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_notifications_total",
				Help: "Notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsignal_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsignal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cycleSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "finsignal_scan_instruments",
			Help: "Instruments evaluated in the last scan cycle",
		}),
		cycleSignals: f.NewCounter(prometheus.CounterOpts{
			Name: "finsignal_scan_signals_total",
			Help: "Fired signals found by scan cycles",
		}),
		cyclesCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "finsignal_scan_cycles_total",
			Help: "Completed scan cycles",
		}),
	}
}

// RecordSignal counts an emitted signal.
func (r *Recorder) RecordSignal(symbol, side string, confidence int) {
	r.signalsTotal.WithLabelValues(symbol, side).Inc()
	r.confidence.WithLabelValues(side).Observe(float64(confidence))
}

// RecordNotification counts a delivery attempt on channel.
func (r *Recorder) RecordNotification(channel string, ok bool) {
	r.notifications.WithLabelValues(channel, strconv.FormatBool(ok)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCycle records the outcome of one scan cycle.
func (r *Recorder) RecordCycle(instruments, signals int) {
	r.cycleSize.Set(float64(instruments))
	r.cycleSignals.Add(float64(signals))
	r.cyclesCompleted.Inc()
}
