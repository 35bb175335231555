package light

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "light"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Height of the latest trusted light block.
	TrustedHeight metrics.Gauge
	// Number of headers verified.
	VerifiedHeaders metrics.Counter
	// Number of headers that failed verification.
	FailedHeaders metrics.Counter
	// Histogram of the number of bisection steps needed to verify a header.
	BisectionDepth metrics.Histogram
	// Number of conflicting headers detected (possible forks).
	ConflictingHeaders metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		TrustedHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "trusted_height",
			Help:      "Height of the latest trusted light block.",
		}, []string{}),
		VerifiedHeaders: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "verified_headers",
			Help:      "Number of headers verified.",
		}, []string{}),
		FailedHeaders: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "failed_headers",
			Help:      "Number of headers that failed verification.",
		}, []string{}),
		BisectionDepth: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bisection_depth",
			Help:      "Number of bisection steps needed to verify a header.",
			Buckets:   stdprometheus.LinearBuckets(0, 2, 10),
		}, []string{}),
		ConflictingHeaders: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "conflicting_headers",
			Help:      "Number of conflicting headers detected.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		TrustedHeight:      discard.NewGauge(),
		VerifiedHeaders:    discard.NewCounter(),
		FailedHeaders:      discard.NewCounter(),
		BisectionDepth:     discard.NewHistogram(),
		ConflictingHeaders: discard.NewCounter(),
	}
}
