package featured

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"curator/services/metadata"
)

// Metrics holds the featured-content collectors. A nil *Metrics records nothing.
type Metrics struct {
	cacheLookups      *prometheus.CounterVec
	aggregateDuration prometheus.Histogram
	aggregateOutcomes *prometheus.CounterVec
	enrichments       *prometheus.CounterVec
	categoryItems     *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curator",
			Subsystem: "featured",
			Name:      "cache_lookups_total",
			Help:      "Featured content cache lookups by result.",
		}, []string{"result"}),
		aggregateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "curator",
			Subsystem: "featured",
			Name:      "aggregate_duration_seconds",
			Help:      "Time spent building a featured content document.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		aggregateOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curator",
			Subsystem: "featured",
			Name:      "aggregations_total",
			Help:      "Aggregation runs by outcome.",
		}, []string{"outcome"}),
		enrichments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curator",
			Subsystem: "featured",
			Name:      "enrichments_total",
			Help:      "Item enrichment attempts by status.",
		}, []string{"status"}),
		categoryItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "curator",
			Subsystem: "featured",
			Name:      "category_items",
			Help:      "Items in each category of the last live aggregation.",
		}, []string{"category"}),
	}
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) aggregated(outcome Outcome, seconds float64) {
	if m == nil {
		return
	}
	m.aggregateDuration.Observe(seconds)
	m.aggregateOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) enriched(status metadata.Status) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) categorySize(id string, n int) {
	if m == nil {
		return
	}
	m.categoryItems.WithLabelValues(id).Set(float64(n))
}
