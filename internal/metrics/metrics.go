package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"globalroute/internal/policy"
	"globalroute/internal/search"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Searches counts route searches by outcome
	Searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_searches_total", Help: "Route searches by outcome."},
		[]string{"outcome"},
	)
	// SearchDuration records search wall time in seconds
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_search_duration_seconds", Help: "Route search duration in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}},
	)
	// SearchExpansions records the number of settled expansions per search
	SearchExpansions = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_search_expansions", Help: "Locations expanded per search.", Buckets: prometheus.ExponentialBuckets(10, 4, 10)},
	)

	// Classifications counts country policy resolutions by outcome
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "policy_classifications_total", Help: "Country policy classifications by outcome and cache hit."},
		[]string{"outcome", "cached"},
	)
	// ClassificationLatency tracks classifier latency in milliseconds
	ClassificationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "policy_classification_latency_ms", Help: "Classifier latency in ms.", Buckets: []float64{1, 10, 50, 100, 200, 500, 1000, 2000, 5000, 10000}},
	)

	// GraphSize reports the loaded graph dimensions
	GraphSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "route_graph_size", Help: "Loaded graph size by kind."},
		[]string{"kind"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Searches)
		Registry.MustRegister(SearchDuration)
		Registry.MustRegister(SearchExpansions)
		Registry.MustRegister(Classifications)
		Registry.MustRegister(ClassificationLatency)
		Registry.MustRegister(GraphSize)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler serves the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path, code).Inc()
	HTTPDuration.WithLabelValues(method, path, code).Observe(d.Seconds())
}

// SetGraph publishes graph dimensions.
func SetGraph(locations, links int) {
	GraphSize.WithLabelValues("locations").Set(float64(locations))
	GraphSize.WithLabelValues("links").Set(float64(links))
}

// Observer adapts the collectors to the search and policy observer hooks.
type Observer struct{}

var (
	_ search.Observer = Observer{}
	_ policy.Observer = Observer{}
)

// ObserveSearch implements search.Observer.
func (Observer) ObserveSearch(st search.Stats, err error) {
	Searches.WithLabelValues(SearchOutcome(st, err)).Inc()
	SearchDuration.Observe(st.Duration.Seconds())
	SearchExpansions.Observe(float64(st.Expanded))
}

// ObserveClassification implements policy.Observer.
func (Observer) ObserveClassification(outcome policy.Outcome, cached bool, d time.Duration) {
	Classifications.WithLabelValues(string(outcome), strconv.FormatBool(cached)).Inc()
	if !cached {
		ClassificationLatency.Observe(float64(d.Milliseconds()))
	}
}

// SearchOutcome is the label recorded for a finished search.
func SearchOutcome(st search.Stats, err error) string {
	switch {
	case err == nil && st.LimitHit:
		return "truncated"
	case err == nil:
		return "ok"
	case errors.Is(err, search.ErrNotFound):
		return "not_found"
	case errors.Is(err, search.ErrBannedEndpoint):
		return "banned_endpoint"
	case errors.Is(err, search.ErrNoPathFound):
		return "no_path"
	case errors.Is(err, search.ErrSearchLimit):
		return "limit"
	case errors.Is(err, search.ErrInvalidQuery):
		return "invalid"
	default:
		return "error"
	}
}
