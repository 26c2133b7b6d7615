package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the feed playback core:
// pool lifecycle, storyboard cache behavior, telemetry delivery, and the
// loopback collector.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter

	poolAcquisitionsTotal    prometheus.Counter
	poolRecyclesTotal        prometheus.Counter
	poolExhaustionsTotal     prometheus.Counter
	poolPrepareFailuresTotal prometheus.Counter
	poolAvailable            prometheus.Gauge

	cacheHitsTotal       prometheus.Counter
	cacheMissesTotal     prometheus.Counter
	cacheEvictionsTotal  prometheus.Counter
	cachePrefetchesTotal prometheus.Counter

	batchesSentTotal      prometheus.Counter
	batchesFailedTotal    prometheus.Counter
	eventsSentTotal       prometheus.Counter
	batchesReceivedTotal  prometheus.Counter
	eventsReceivedTotal   prometheus.Counter
	batchesRetainedActive prometheus.Gauge
}

// New creates and registers all feed metrics on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Total number of HTTP requests received",
	})
	m.errorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	m.poolAcquisitionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_pool_acquisitions_total",
		Help: "Total number of successful player handle acquisitions",
	})
	m.poolRecyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_pool_recycles_total",
		Help: "Total number of handles recycled from a prefetch role under pressure",
	})
	m.poolExhaustionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_pool_exhaustions_total",
		Help: "Total number of acquire or preload calls that found no reclaimable handle",
	})
	m.poolPrepareFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_pool_prepare_failures_total",
		Help: "Total number of media preparations that ended in an error state",
	})
	m.poolAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feed_pool_available_handles",
		Help: "Number of handles currently in the pool's available set",
	})

	m.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_storyboard_cache_hits_total",
		Help: "Total number of sprite sheet cache hits",
	})
	m.cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_storyboard_cache_misses_total",
		Help: "Total number of sprite sheet cache misses (fetch and decode)",
	})
	m.cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_storyboard_cache_evictions_total",
		Help: "Total number of sprite sheets evicted by the LRU policy",
	})
	m.cachePrefetchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_storyboard_prefetches_total",
		Help: "Total number of neighbor sprite sheet prefetches started",
	})

	m.batchesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_telemetry_batches_sent_total",
		Help: "Total number of telemetry batches delivered to the collector",
	})
	m.batchesFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_telemetry_batches_failed_total",
		Help: "Total number of telemetry batches dropped after a failed send",
	})
	m.eventsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_telemetry_events_sent_total",
		Help: "Total number of telemetry events delivered to the collector",
	})
	m.batchesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_collector_batches_received_total",
		Help: "Total number of telemetry batches accepted by the collector",
	})
	m.eventsReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_collector_events_received_total",
		Help: "Total number of telemetry events accepted by the collector",
	})
	m.batchesRetainedActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feed_collector_batches_retained",
		Help: "Number of batches currently retained in the collector's window",
	})

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.poolAcquisitionsTotal,
		m.poolRecyclesTotal,
		m.poolExhaustionsTotal,
		m.poolPrepareFailuresTotal,
		m.poolAvailable,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheEvictionsTotal,
		m.cachePrefetchesTotal,
		m.batchesSentTotal,
		m.batchesFailedTotal,
		m.eventsSentTotal,
		m.batchesReceivedTotal,
		m.eventsReceivedTotal,
		m.batchesRetainedActive,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// IncPoolAcquisitions increments the handle acquisition counter.
func (m *Metrics) IncPoolAcquisitions() { m.poolAcquisitionsTotal.Inc() }

// IncPoolRecycles increments the handle recycle counter.
func (m *Metrics) IncPoolRecycles() { m.poolRecyclesTotal.Inc() }

// IncPoolExhaustions increments the pool exhaustion counter.
func (m *Metrics) IncPoolExhaustions() { m.poolExhaustionsTotal.Inc() }

// IncPoolPrepareFailures increments the prepare failure counter.
func (m *Metrics) IncPoolPrepareFailures() { m.poolPrepareFailuresTotal.Inc() }

// SetPoolAvailable sets the available-handles gauge.
func (m *Metrics) SetPoolAvailable(n int) { m.poolAvailable.Set(float64(n)) }

// IncCacheHits increments the sprite cache hit counter.
func (m *Metrics) IncCacheHits() { m.cacheHitsTotal.Inc() }

// IncCacheMisses increments the sprite cache miss counter.
func (m *Metrics) IncCacheMisses() { m.cacheMissesTotal.Inc() }

// IncCacheEvictions increments the sprite cache eviction counter.
func (m *Metrics) IncCacheEvictions() { m.cacheEvictionsTotal.Inc() }

// IncCachePrefetches increments the neighbor prefetch counter.
func (m *Metrics) IncCachePrefetches() { m.cachePrefetchesTotal.Inc() }

// IncBatchesSent increments the delivered batch counter.
func (m *Metrics) IncBatchesSent() { m.batchesSentTotal.Inc() }

// IncBatchesFailed increments the dropped batch counter.
func (m *Metrics) IncBatchesFailed() { m.batchesFailedTotal.Inc() }

// AddEventsSent adds n to the delivered event counter.
func (m *Metrics) AddEventsSent(n int) { m.eventsSentTotal.Add(float64(n)) }

// IncBatchesReceived increments the collector's accepted batch counter.
func (m *Metrics) IncBatchesReceived() { m.batchesReceivedTotal.Inc() }

// AddEventsReceived adds n to the collector's accepted event counter.
func (m *Metrics) AddEventsReceived(n int) { m.eventsReceivedTotal.Add(float64(n)) }

// SetBatchesRetained sets the collector retention gauge.
func (m *Metrics) SetBatchesRetained(n int) { m.batchesRetainedActive.Set(float64(n)) }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. available handles, retained batches).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
