package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "whale_futures"

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Order polling metrics
	PollBatchesTotal  *prometheus.CounterVec
	PollBatchDuration prometheus.Histogram
	PollPassesTotal   prometheus.Counter
	RowsTracked       prometheus.Gauge
	RowsPrunedTotal   prometheus.Counter
	UIDsTracked       prometheus.Gauge

	// Price refresh metrics
	PriceRefreshesTotal *prometheus.CounterVec
	SymbolsPriced       prometheus.Gauge

	// Trader discovery metrics
	DiscoveryRunsTotal *prometheus.CounterVec

	// AI summary metrics
	SummariesTotal   *prometheus.CounterVec
	SummaryDuration  *prometheus.HistogramVec
	ArchiveUploads   *prometheus.CounterVec
	StreamClients    prometheus.Gauge
	StreamBroadcasts prometheus.Counter

	// External API metrics
	ExternalAPIRequestsTotal *prometheus.CounterVec
	ExternalAPIErrorsTotal   *prometheus.CounterVec
	ExternalAPIDuration      *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// summaryBuckets cover slow LLM calls
var summaryBuckets = []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		PollBatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "batches_total",
				Help:      "Total number of order batches fetched, by outcome",
			},
			[]string{"status"},
		),
		PollBatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "batch_duration_seconds",
				Help:      "Duration of one order batch fetch and merge",
				Buckets:   defaultBuckets,
			},
		),
		PollPassesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "passes_total",
				Help:      "Total number of completed passes over the UID list",
			},
		),
		RowsTracked: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "rows",
				Help:      "Number of position rows currently stored",
			},
		),
		RowsPrunedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "rows_pruned_total",
				Help:      "Total number of rows removed because they vanished upstream",
			},
		),
		UIDsTracked: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "uids",
				Help:      "Number of trader UIDs being polled",
			},
		),
		PriceRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prices",
				Name:      "refreshes_total",
				Help:      "Total number of price refresh ticks, by outcome",
			},
			[]string{"status"},
		),
		SymbolsPriced: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "prices",
				Name:      "symbols",
				Help:      "Number of symbols with a known live price",
			},
		),
		DiscoveryRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "runs_total",
				Help:      "Total number of trader UID discovery runs, by outcome",
			},
			[]string{"status"},
		),
		SummariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "summary",
				Name:      "requests_total",
				Help:      "Total number of AI summary requests",
			},
			[]string{"provider", "kind", "status"},
		),
		SummaryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "summary",
				Name:      "duration_seconds",
				Help:      "Duration of AI summary requests in seconds",
				Buckets:   summaryBuckets,
			},
			[]string{"provider", "kind"},
		),
		ArchiveUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "uploads_total",
				Help:      "Total number of CSV snapshot uploads",
			},
			[]string{"status"},
		),
		StreamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "clients",
				Help:      "Number of connected WebSocket clients",
			},
		),
		StreamBroadcasts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "broadcasts_total",
				Help:      "Total number of row snapshots pushed to clients",
			},
		),

		// External API metrics
		ExternalAPIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "external_api",
				Name:      "requests_total",
				Help:      "Total number of external API requests",
			},
			[]string{"service", "operation"},
		),
		ExternalAPIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "external_api",
				Name:      "errors_total",
				Help:      "Total number of external API errors",
			},
			[]string{"service", "operation", "error_type"},
		),
		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "external_api",
				Name:      "duration_seconds",
				Help:      "Duration of external API calls in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"service", "operation"},
		),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "database",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "database",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "database",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		// Circuit breaker metrics
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of circuit breakers (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"service"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// SetMetrics replaces the global metrics instance (for tests)
func SetMetrics(m *Metrics) {
	globalMetrics = m
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordPollBatch records one order batch outcome
func (m *Metrics) RecordPollBatch(err error, duration time.Duration) {
	m.PollBatchesTotal.WithLabelValues(statusLabel(err)).Inc()
	m.PollBatchDuration.Observe(duration.Seconds())
}

// RecordPollPass records a completed pass over the UID list
func (m *Metrics) RecordPollPass() {
	m.PollPassesTotal.Inc()
}

// SetRows sets the stored row count
func (m *Metrics) SetRows(n int) {
	m.RowsTracked.Set(float64(n))
}

// RecordPruned adds pruned rows
func (m *Metrics) RecordPruned(n int) {
	if n > 0 {
		m.RowsPrunedTotal.Add(float64(n))
	}
}

// SetUIDs sets the tracked UID count
func (m *Metrics) SetUIDs(n int) {
	m.UIDsTracked.Set(float64(n))
}

// RecordPriceRefresh records a price tick outcome and the symbols now priced
func (m *Metrics) RecordPriceRefresh(err error, symbols int) {
	m.PriceRefreshesTotal.WithLabelValues(statusLabel(err)).Inc()
	if err == nil {
		m.SymbolsPriced.Set(float64(symbols))
	}
}

// RecordDiscovery records a trader discovery run outcome
func (m *Metrics) RecordDiscovery(err error) {
	m.DiscoveryRunsTotal.WithLabelValues(statusLabel(err)).Inc()
}

// RecordSummary records an AI summary request
func (m *Metrics) RecordSummary(provider, kind string, err error, duration time.Duration) {
	m.SummariesTotal.WithLabelValues(provider, kind, statusLabel(err)).Inc()
	m.SummaryDuration.WithLabelValues(provider, kind).Observe(duration.Seconds())
}

// RecordArchiveUpload records a snapshot upload outcome
func (m *Metrics) RecordArchiveUpload(err error) {
	m.ArchiveUploads.WithLabelValues(statusLabel(err)).Inc()
}

// SetStreamClients sets the connected WebSocket client count
func (m *Metrics) SetStreamClients(n int) {
	m.StreamClients.Set(float64(n))
}

// RecordBroadcast records a snapshot pushed to clients
func (m *Metrics) RecordBroadcast() {
	m.StreamBroadcasts.Inc()
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(service, operation string) {
	m.ExternalAPIRequestsTotal.WithLabelValues(service, operation).Inc()
}

// RecordExternalAPIError records an external API error
func (m *Metrics) RecordExternalAPIError(service, operation, errorType string) {
	m.ExternalAPIErrorsTotal.WithLabelValues(service, operation, errorType).Inc()
}

// RecordExternalAPIDuration records the duration of an external API call
func (m *Metrics) RecordExternalAPIDuration(service, operation string, duration time.Duration) {
	m.ExternalAPIDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// SetCircuitBreakerState sets the current state of a circuit breaker
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveExternalAPI records the external API duration
func (t *Timer) ObserveExternalAPI(service, operation string) {
	t.metrics.RecordExternalAPIDuration(service, operation, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
