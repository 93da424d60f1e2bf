package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application.
// A nil *Collector is valid and records nothing.
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Business metrics
	TopicsCreated   prometheus.Counter
	TopicMentions   prometheus.Counter
	SynonymsAdded   prometheus.Counter
	TopicsMerged    prometheus.Counter
	BatchesFlushed  prometheus.Counter
	FlushesDropped  prometheus.Counter
	BatchSize       prometheus.Histogram
	RegistryTopics  prometheus.Gauge
	PendingTexts    prometheus.Gauge
	SimilarityPaths *prometheus.CounterVec

	// Oracle metrics
	OracleCalls    *prometheus.CounterVec
	OracleDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry, so several
// collectors (one per test) can coexist.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		TopicsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_created_total",
			Help:      "Total number of topics created",
		}),
		TopicMentions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topic_mentions_total",
			Help:      "Total number of mentions recorded on existing topics",
		}),
		SynonymsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synonyms_added_total",
			Help:      "Total number of variants mapped onto a canonical topic",
		}),
		TopicsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_merged_total",
			Help:      "Total number of topics merged by the planner",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Total number of batches sent to the oracle",
		}),
		FlushesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_dropped_total",
			Help:      "Flush requests dropped because another flush was running",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_texts",
			Help:      "Number of texts per flushed batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		RegistryTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_topics",
			Help:      "Number of live topics",
		}),
		PendingTexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_texts",
			Help:      "Texts buffered for the next batch",
		}),
		SimilarityPaths: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "similarity_resolutions_total",
				Help:      "Similarity resolutions by path and outcome",
			},
			[]string{"path", "matched"},
		),
		OracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_calls_total",
				Help:      "Total number of oracle calls",
			},
			[]string{"command", "status"},
		),
		OracleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "oracle_call_duration_seconds",
				Help:      "Oracle call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_operations_total",
				Help:      "Total number of snapshot store operations",
			},
			[]string{"operation", "status"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_operation_duration_seconds",
				Help:      "Snapshot store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.TopicsCreated,
		c.TopicMentions,
		c.SynonymsAdded,
		c.TopicsMerged,
		c.BatchesFlushed,
		c.FlushesDropped,
		c.BatchSize,
		c.RegistryTopics,
		c.PendingTexts,
		c.SimilarityPaths,
		c.OracleCalls,
		c.OracleDuration,
		c.StoreOperations,
		c.StoreDuration,
	)

	return c
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordOracleCall records one oracle round trip
func (c *Collector) RecordOracleCall(command string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.OracleCalls.WithLabelValues(command, statusLabel(err)).Inc()
	c.OracleDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordStoreOperation records one snapshot load or save
func (c *Collector) RecordStoreOperation(operation string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.StoreOperations.WithLabelValues(operation, statusLabel(err)).Inc()
	c.StoreDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordBatch records a flushed batch
func (c *Collector) RecordBatch(size int) {
	if c == nil {
		return
	}
	c.BatchesFlushed.Inc()
	c.BatchSize.Observe(float64(size))
}

// RecordDroppedFlush records a flush that lost the race to a running one
func (c *Collector) RecordDroppedFlush() {
	if c == nil {
		return
	}
	c.FlushesDropped.Inc()
}

// RecordDiscovery records the outcome of one batch of candidates
func (c *Collector) RecordDiscovery(created, mentions, synonyms int) {
	if c == nil {
		return
	}
	c.TopicsCreated.Add(float64(created))
	c.TopicMentions.Add(float64(mentions))
	c.SynonymsAdded.Add(float64(synonyms))
}

// RecordMerges records merges executed by the planner
func (c *Collector) RecordMerges(n int) {
	if c == nil {
		return
	}
	c.TopicsMerged.Add(float64(n))
}

// RecordSimilarity records which resolution path answered and whether it matched
func (c *Collector) RecordSimilarity(path string, matched bool) {
	if c == nil {
		return
	}
	c.SimilarityPaths.WithLabelValues(path, strconv.FormatBool(matched)).Inc()
}

// SetRegistrySize updates the live topic gauge
func (c *Collector) SetRegistrySize(topics int) {
	if c == nil {
		return
	}
	c.RegistryTopics.Set(float64(topics))
}

// SetPending updates the buffered text gauge
func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.PendingTexts.Set(float64(n))
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the collector in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
