// Package metrics provides Prometheus metrics for the identity service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolverOperationsTotal tracks resolver operations by status
	ResolverOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "resolver",
			Name:      "operations_total",
			Help:      "Total number of identity resolver operations by status",
		},
		[]string{"operation", "status"},
	)

	// ResolverOperationDuration tracks resolver operation duration in seconds
	ResolverOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "identity",
			Subsystem: "resolver",
			Name:      "operation_duration_seconds",
			Help:      "Duration of identity resolver operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// SessionLinksTotal tracks BELONGS_TO link outcomes
	SessionLinksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "graph",
			Name:      "session_links_total",
			Help:      "Total number of session to customer links by outcome",
		},
		[]string{"outcome"},
	)

	// StoreUnitsOpen tracks units of work currently open against the store
	StoreUnitsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "identity",
			Subsystem: "graph",
			Name:      "units_open",
			Help:      "Number of store units of work currently open",
		},
	)

	// KafkaMessagesPublished tracks identity events published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of identity events published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// BrandCacheLookups tracks brand cache hits and misses
	BrandCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "redis",
			Name:      "brand_cache_lookups_total",
			Help:      "Total number of brand cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordOperation records one resolver operation
func RecordOperation(operation, status string, durationSeconds float64) {
	ResolverOperationsTotal.WithLabelValues(operation, status).Inc()
	ResolverOperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordLink records a session link outcome
func RecordLink(outcome string) {
	SessionLinksTotal.WithLabelValues(outcome).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordBrandCacheLookup records a brand cache hit or miss
func RecordBrandCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	BrandCacheLookups.WithLabelValues(result).Inc()
}
