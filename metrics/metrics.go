// Package metrics exposes the engine's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prize_wheel"

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	ticketsSold = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tickets_sold_total",
			Help:      "Tickets sold per pool.",
		},
		[]string{"pool"},
	)

	spins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "spins_total",
			Help:      "Spins recorded per pool and outcome.",
		},
		[]string{"pool", "outcome"},
	)

	exhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "items_exhausted_total",
			Help:      "Limited items whose supply ran out.",
		},
		[]string{"pool"},
	)

	claimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "claimed_value_total",
			Help:      "Value paid out to winning tickets.",
		},
		[]string{"pool"},
	)

	withdrawn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "withdrawn_value_total",
			Help:      "Surplus withdrawn by pool owners.",
		},
		[]string{"pool"},
	)

	fundsHeld = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "funds_held",
			Help:      "Funds the pool believes its vault holds.",
		},
		[]string{"pool"},
	)

	pendingPayouts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "pending_payouts",
			Help:      "Value owed to spun but unclaimed winning tickets.",
		},
		[]string{"pool"},
	)

	operationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_errors_total",
			Help:      "Failed operations by error code.",
		},
		[]string{"operation", "code"},
	)

	compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "compensations_total",
			Help:      "Transfers reversed after a failed commit.",
		},
		[]string{"operation", "result"},
	)

	reconcileDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "drift",
			Help:      "Custody balance minus funds held, per pool.",
		},
		[]string{"pool"},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconcile passes by result.",
		},
		[]string{"result"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		ticketsSold,
		spins,
		exhausted,
		claimed,
		withdrawn,
		fundsHeld,
		pendingPayouts,
		operationErrors,
		compensations,
		reconcileDrift,
		reconcileRuns,
		httpInFlight,
		httpRequests,
		httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func TicketSold(poolID string) { ticketsSold.WithLabelValues(poolID).Inc() }

func Spin(poolID string, win, itemExhausted bool) {
	outcome := "lose"
	if win {
		outcome = "win"
	}
	spins.WithLabelValues(poolID, outcome).Inc()
	if itemExhausted {
		exhausted.WithLabelValues(poolID).Inc()
	}
}

func Claimed(poolID string, amount uint64) {
	claimed.WithLabelValues(poolID).Add(float64(amount))
}

func Withdrawn(poolID string, amount uint64) {
	withdrawn.WithLabelValues(poolID).Add(float64(amount))
}

// PoolBalances sets the funds gauges after a committed operation.
func PoolBalances(poolID string, held, pending uint64) {
	fundsHeld.WithLabelValues(poolID).Set(float64(held))
	pendingPayouts.WithLabelValues(poolID).Set(float64(pending))
}

func OperationError(operation, code string) {
	if code == "" {
		code = "INTERNAL"
	}
	operationErrors.WithLabelValues(operation, code).Inc()
}

func Compensation(operation string, ok bool) {
	result := "reversed"
	if !ok {
		result = "failed"
	}
	compensations.WithLabelValues(operation, result).Inc()
}

func Drift(poolID string, drift float64) {
	reconcileDrift.WithLabelValues(poolID).Set(drift)
}

func ReconcileRun(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	reconcileRuns.WithLabelValues(result).Inc()
}

// InstrumentHandler records request counts and latency. Used as router
// middleware so the route template, not the raw path, labels the series.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
