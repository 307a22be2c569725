package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Price cache metrics
	cacheLookups       *prometheus.CounterVec
	sourceFetches      *prometheus.CounterVec
	sourceFetchTickers *prometheus.CounterVec
	sourceFetchLatency *prometheus.HistogramVec

	// Business metrics
	alertsCreated    prometheus.Counter
	alertsTriggered  prometheus.Counter
	ordersTotal      *prometheus.CounterVec
	refreshCycles    *prometheus.CounterVec
	refreshDuration  prometheus.Histogram
	accountEquity    prometheus.Gauge
	accountCash      prometheus.Gauge
	notifications    *prometheus.CounterVec
	watchlistTickers prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "paperdesk_http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Price cache metrics
	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_cache_lookups_total",
			Help: "Price cache lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)
	r.sourceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_source_fetches_total",
			Help: "Batch calls made to the price source",
		},
		[]string{"source"},
	)
	r.sourceFetchTickers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_source_fetch_tickers_total",
			Help: "Tickers requested from the price source by outcome",
		},
		[]string{"source", "status"},
	)
	r.sourceFetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paperdesk_source_fetch_duration_seconds",
			Help:    "Price source batch call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	reg.MustRegister(r.cacheLookups)
	reg.MustRegister(r.sourceFetches)
	reg.MustRegister(r.sourceFetchTickers)
	reg.MustRegister(r.sourceFetchLatency)

	// Business metrics
	r.alertsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paperdesk_alerts_created_total",
			Help: "Total number of alerts created",
		},
	)
	r.alertsTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paperdesk_alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
	)
	r.ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_orders_total",
			Help: "Orders submitted by side and outcome",
		},
		[]string{"side", "outcome"},
	)
	r.refreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_refresh_cycles_total",
			Help: "Refresh cycles by status",
		},
		[]string{"status"},
	)
	r.refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paperdesk_refresh_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	r.accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paperdesk_account_equity",
			Help: "Account equity at the last revaluation",
		},
	)
	r.accountCash = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paperdesk_account_cash",
			Help: "Uninvested account cash",
		},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_notifications_total",
			Help: "Alert notifications delivered by notifier and status",
		},
		[]string{"notifier", "status"},
	)
	r.watchlistTickers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paperdesk_watchlist_tickers",
			Help: "Number of tickers in the watchlist",
		},
	)

	reg.MustRegister(r.alertsCreated)
	reg.MustRegister(r.alertsTriggered)
	reg.MustRegister(r.ordersTotal)
	reg.MustRegister(r.refreshCycles)
	reg.MustRegister(r.refreshDuration)
	reg.MustRegister(r.accountEquity)
	reg.MustRegister(r.accountCash)
	reg.MustRegister(r.notifications)
	reg.MustRegister(r.watchlistTickers)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// CacheHit records a lookup served from a fresh entry.
func (r *Registry) CacheHit() {
	r.cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss records a lookup that required a fetch.
func (r *Registry) CacheMiss() {
	r.cacheLookups.WithLabelValues("miss").Inc()
}

// CacheStale records a lookup answered with a last-known-good quote.
func (r *Registry) CacheStale() {
	r.cacheLookups.WithLabelValues("stale").Inc()
}

// SourceFetch records one batch call to the price source.
func (r *Registry) SourceFetch(source string, tickers, failed int, duration time.Duration) {
	r.sourceFetches.WithLabelValues(source).Inc()
	r.sourceFetchTickers.WithLabelValues(source, "ok").Add(float64(tickers - failed))
	r.sourceFetchTickers.WithLabelValues(source, "failed").Add(float64(failed))
	r.sourceFetchLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAlertCreated records a new alert.
func (r *Registry) RecordAlertCreated() {
	r.alertsCreated.Inc()
}

// RecordAlertsTriggered adds n triggered alerts.
func (r *Registry) RecordAlertsTriggered(n int) {
	r.alertsTriggered.Add(float64(n))
}

// RecordOrder records an order attempt. outcome is "filled" or an error code.
func (r *Registry) RecordOrder(side, outcome string) {
	r.ordersTotal.WithLabelValues(side, outcome).Inc()
}

// RecordRefreshCycle records a refresh cycle completion.
func (r *Registry) RecordRefreshCycle(status string, duration float64) {
	r.refreshCycles.WithLabelValues(status).Inc()
	r.refreshDuration.Observe(duration)
}

// SetAccount sets the equity and cash gauges.
func (r *Registry) SetAccount(equity, cash float64) {
	r.accountEquity.Set(equity)
	r.accountCash.Set(cash)
}

// RecordNotification records a delivery attempt.
func (r *Registry) RecordNotification(notifier, status string) {
	r.notifications.WithLabelValues(notifier, status).Inc()
}

// SetWatchlistSize sets the watchlist size.
func (r *Registry) SetWatchlistSize(size int) {
	r.watchlistTickers.Set(float64(size))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
