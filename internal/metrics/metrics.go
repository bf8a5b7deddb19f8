package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	FetchAttempts    prometheus.Counter
	FetchSuccesses   prometheus.Counter
	FetchFailures    *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	AccountsImported prometheus.Counter
	ImportSkips      prometheus.Counter
	AccountsExported prometheus.Counter
}

// NewMetrics creates metrics registered against the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered against reg; tests pass a fresh
// registry to avoid duplicate registration
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_code_fetch_attempts_total",
			Help: "Total number of verification code fetch attempts",
		}),
		FetchSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_code_fetch_successes_total",
			Help: "Total number of fetch attempts that produced a code",
		}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_code_fetch_failures_total",
			Help: "Total number of failed fetch attempts by reason",
		}, []string{"reason"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail_code_fetch_duration_seconds",
			Help:    "Time spent fetching verification codes",
			Buckets: prometheus.DefBuckets,
		}),
		AccountsImported: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_code_accounts_imported_total",
			Help: "Total number of accounts added via bulk import",
		}),
		ImportSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_code_import_skips_total",
			Help: "Total number of bulk import candidates skipped",
		}),
		AccountsExported: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_code_accounts_exported_total",
			Help: "Total number of accounts dispensed via export",
		}),
	}
}
