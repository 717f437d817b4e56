// Package metrics records build outcomes as Prometheus metrics that can be
// written out in the node-exporter textfile format.
package metrics

import (
	"github.com/groove/dualpack/internal/bundle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder records metrics on its own registry so that separate
// runs in one process never share counters.
type PrometheusRecorder struct {
	registry      *prometheus.Registry
	buildsTotal   *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	emittedFiles  *prometheus.GaugeVec
	diagnostics   *prometheus.CounterVec
	externals     *prometheus.GaugeVec
}

func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &PrometheusRecorder{
		registry: registry,
		buildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dualpack_builds_total",
				Help: "Total number of format builds by format and status",
			},
			[]string{"format", "status"},
		),
		buildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dualpack_build_duration_seconds",
				Help:    "Duration of a single format build in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),
		emittedFiles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dualpack_emitted_files",
				Help: "Number of files written by the last build of a format",
			},
			[]string{"format"},
		),
		diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dualpack_diagnostics_total",
				Help: "Diagnostics reported by format, severity and kind",
			},
			[]string{"format", "severity", "kind"},
		),
		externals: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dualpack_referenced_externals",
				Help: "Number of external modules the last build of a format imports",
			},
			[]string{"format"},
		),
	}
}

// ObserveOutcome records metrics for a completed format build.
func (p *PrometheusRecorder) ObserveOutcome(outcome bundle.BuildOutcome) {
	format := outcome.Format.String()
	status := "success"
	if !outcome.Succeeded {
		status = "error"
	}

	p.buildsTotal.WithLabelValues(format, status).Inc()
	p.buildDuration.WithLabelValues(format).Observe(outcome.Duration.Seconds())
	p.emittedFiles.WithLabelValues(format).Set(float64(len(outcome.EmittedFiles)))
	p.externals.WithLabelValues(format).Set(float64(len(outcome.ReferencedExternals)))
	for _, d := range outcome.Diagnostics {
		p.diagnostics.WithLabelValues(format, string(d.Severity), string(d.Kind)).Inc()
	}
}

func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// WriteTextfile writes the current metrics to path, replacing it atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}
