// Package metrics collects per-run Prometheus metrics for drf-pp.
//
// drf-pp is a batch job, so metrics are not served over HTTP. They are
// written once at the end of a run in the node-exporter textfile format.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "drfpp"

// Metrics holds the collectors for one run
type Metrics struct {
	registry *prometheus.Registry

	stepDuration  *prometheus.HistogramVec
	acquisitions  *prometheus.CounterVec
	downloadBytes prometheus.Gauge
	samples       prometheus.Gauge
	epochs        prometheus.Counter
	epochLoss     *prometheus.GaugeVec
	testLoss      prometheus.Gauge
	testAccuracy  prometheus.Gauge
	lastRun       prometheus.Gauge
}

// New creates a Metrics instance on its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "acquire",
				Name:      "step_duration_seconds",
				Help:      "Duration of each acquisition step in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 120, 600},
			},
			[]string{"step", "status"},
		),
		acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "acquire",
				Name:      "runs_total",
				Help:      "Acquisition attempts by outcome",
			},
			[]string{"outcome"},
		),
		downloadBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "acquire",
			Name:      "pdf_bytes",
			Help:      "Size of the last downloaded program PDF",
		}),
		samples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "samples",
			Help:      "Number of prepared training sequences",
		}),
		epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "epochs_total",
			Help:      "Completed training epochs",
		}),
		epochLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "train",
				Name:      "epoch_loss",
				Help:      "Binary cross-entropy of the last completed epoch",
			},
			[]string{"split"},
		),
		testLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "test_loss",
			Help:      "Binary cross-entropy on the held-out test split",
		}),
		testAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "test_accuracy",
			Help:      "Accuracy on the held-out test split",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished",
		}),
	}

	m.registry.MustRegister(
		m.stepDuration,
		m.acquisitions,
		m.downloadBytes,
		m.samples,
		m.epochs,
		m.epochLoss,
		m.testLoss,
		m.testAccuracy,
		m.lastRun,
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStep records how long an acquisition step took
func (m *Metrics) ObserveStep(step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// RecordAcquisition counts an acquisition outcome ("success" or "failure")
func (m *Metrics) RecordAcquisition(outcome string) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(outcome).Inc()
}

// SetDownloadBytes records the downloaded PDF size
func (m *Metrics) SetDownloadBytes(n int) {
	if m == nil {
		return
	}
	m.downloadBytes.Set(float64(n))
}

// SetSamples records the prepared sample count
func (m *Metrics) SetSamples(n int) {
	if m == nil {
		return
	}
	m.samples.Set(float64(n))
}

// ObserveEpoch records the losses of a completed epoch
func (m *Metrics) ObserveEpoch(loss, valLoss float64) {
	if m == nil {
		return
	}
	m.epochs.Inc()
	m.epochLoss.WithLabelValues("train").Set(loss)
	m.epochLoss.WithLabelValues("validation").Set(valLoss)
}

// SetEvaluation records held-out test results
func (m *Metrics) SetEvaluation(loss, accuracy float64) {
	if m == nil {
		return
	}
	m.testLoss.Set(loss)
	m.testAccuracy.Set(accuracy)
}

// WriteTextfile stamps the finish time and writes all metrics to path
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	m.lastRun.Set(float64(time.Now().Unix()))
	return prometheus.WriteToTextfile(path, m.registry)
}
