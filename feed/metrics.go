package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks feed load behavior
type Metrics struct {
	ListingsLoaded  prometheus.Gauge
	ListingsDropped prometheus.Counter
	LoadFailures    prometheus.Counter
	LoadDuration    prometheus.Histogram
}

// NewMetrics registers feed metrics on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ListingsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketd",
			Subsystem: "feed",
			Name:      "listings_loaded",
			Help:      "Number of listings in the current feed",
		}),
		ListingsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketd",
			Subsystem: "feed",
			Name:      "listings_dropped_total",
			Help:      "Listings dropped due to failed contract reads",
		}),
		LoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketd",
			Subsystem: "feed",
			Name:      "load_failures_total",
			Help:      "Feed load attempts that failed",
		}),
		LoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "marketd",
			Subsystem: "feed",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading the feed from the chain",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
