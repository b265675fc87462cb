package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// data synchronization core.
type Metrics struct {
	// Forecast polling metrics.
	ForecastFetches       *prometheus.CounterVec // labels: outcome={success,network_error,validation_error}
	ForecastFetchDuration prometheus.Histogram
	PollTicksSkipped      prometheus.Counter
	ActivePollers         prometheus.Gauge

	// Geocode search metrics.
	SearchRequests *prometheus.CounterVec // labels: outcome={success,error}

	// Geolocation metrics.
	GeolocationAttempts *prometheus.CounterVec // labels: tier={high,low}, outcome={success,error}
	LookupCache         *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all core metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ForecastFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherclock",
			Name:      "forecast_fetches_total",
			Help:      "Forecast fetch attempts by outcome.",
		}, []string{"outcome"}),
		ForecastFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weatherclock",
			Name:      "forecast_fetch_duration_seconds",
			Help:      "Duration of a complete forecast fetch including decode.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		PollTicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weatherclock",
			Name:      "poll_ticks_skipped_total",
			Help:      "Scheduled ticks skipped because a fetch was already in flight.",
		}),
		ActivePollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weatherclock",
			Name:      "active_pollers",
			Help:      "Number of live per-entity pollers.",
		}),
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherclock",
			Name:      "search_requests_total",
			Help:      "Geocode search requests by outcome.",
		}, []string{"outcome"}),
		GeolocationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherclock",
			Name:      "geolocation_attempts_total",
			Help:      "Device geolocation attempts by accuracy tier and outcome.",
		}, []string{"tier", "outcome"}),
		LookupCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherclock",
			Name:      "lookup_cache_total",
			Help:      "Reverse-geocode cache lookups by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.ForecastFetches,
		m.ForecastFetchDuration,
		m.PollTicksSkipped,
		m.ActivePollers,
		m.SearchRequests,
		m.GeolocationAttempts,
		m.LookupCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ForecastFetches:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weatherclock", Name: "forecast_fetches_total"}, []string{"outcome"}),
		ForecastFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "weatherclock", Name: "forecast_fetch_duration_seconds"}),
		PollTicksSkipped:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weatherclock", Name: "poll_ticks_skipped_total"}),
		ActivePollers:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weatherclock", Name: "active_pollers"}),
		SearchRequests:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weatherclock", Name: "search_requests_total"}, []string{"outcome"}),
		GeolocationAttempts:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weatherclock", Name: "geolocation_attempts_total"}, []string{"tier", "outcome"}),
		LookupCache:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weatherclock", Name: "lookup_cache_total"}, []string{"result"}),
	}
}
