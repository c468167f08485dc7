package errorfix

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics are the Prometheus collectors for one Service.
type storeMetrics struct {
	records        prometheus.Gauge
	operations     *prometheus.CounterVec
	searchDuration prometheus.Histogram
	searchResults  prometheus.Histogram
	successRate    prometheus.Histogram
	redactions     *prometheus.CounterVec
}

// newStoreMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func newStoreMetrics(reg prometheus.Registerer, backend string) *storeMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"backend": backend}

	return &storeMetrics{
		records: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "fixstore",
			Subsystem:   "store",
			Name:        "records",
			Help:        "Number of fix records in the store",
			ConstLabels: labels,
		}),
		// Labels: op (insert, get, search, feedback), result (success, error)
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "fixstore",
			Subsystem:   "store",
			Name:        "operations_total",
			Help:        "Total number of store operations",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		searchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "fixstore",
			Subsystem:   "store",
			Name:        "search_duration_seconds",
			Help:        "Duration of search operations in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		searchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "fixstore",
			Subsystem:   "store",
			Name:        "search_results",
			Help:        "Number of fixes returned per search",
			ConstLabels: labels,
			Buckets:     []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		successRate: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "fixstore",
			Subsystem:   "store",
			Name:        "success_rate",
			Help:        "Success rate of fixes after each feedback update",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(0, 0.1, 11),
		}),
		redactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "fixstore",
			Subsystem:   "store",
			Name:        "redactions_total",
			Help:        "Secrets redacted from recorded fixes",
			ConstLabels: labels,
		}, []string{"rule"}),
	}
}

func (m *storeMetrics) recordOp(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}
