// Package metrics exposes Prometheus instrumentation for screening, planning
// and feed ingestion.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitops_http_requests_total",
			Help: "Total number of HTTP requests to the admin server.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbitops_http_duration_seconds",
			Help:    "Admin server request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	screeningCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitops_screening_candidates_total",
			Help: "Screening candidates by outcome (pruned, screened, failed, duplicate, conjunction).",
		},
		[]string{"outcome"},
	)

	screeningDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbitops_screening_duration_seconds",
			Help:    "Duration of one screening pass for a primary.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	conjunctionsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitops_conjunctions_written_total",
			Help: "Conjunction events upserted into the catalog by provenance.",
		},
		[]string{"provenance"},
	)

	maneuverPlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitops_maneuver_plans_total",
			Help: "Maneuver planning attempts by outcome (solved, not_required, no_solution, failed).",
		},
		[]string{"outcome"},
	)

	maneuverDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbitops_maneuver_duration_seconds",
			Help:    "Duration of a single maneuver search.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	feedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitops_feed_records_total",
			Help: "External feed records by outcome (accepted, skipped).",
		},
		[]string{"outcome"},
	)

	catalogObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbitops_catalog_objects",
			Help: "Number of tracked objects currently loaded.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(screeningCandidatesTotal)
	prometheus.MustRegister(screeningDurationSeconds)
	prometheus.MustRegister(conjunctionsWrittenTotal)
	prometheus.MustRegister(maneuverPlansTotal)
	prometheus.MustRegister(maneuverDurationSeconds)
	prometheus.MustRegister(feedRecordsTotal)
	prometheus.MustRegister(catalogObjects)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScreening records the candidate outcomes and duration of one pass.
func RecordScreening(pruned, screened, failed, duplicates, events int, d time.Duration) {
	screeningCandidatesTotal.WithLabelValues("pruned").Add(float64(pruned))
	screeningCandidatesTotal.WithLabelValues("screened").Add(float64(screened))
	screeningCandidatesTotal.WithLabelValues("failed").Add(float64(failed))
	screeningCandidatesTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	screeningCandidatesTotal.WithLabelValues("conjunction").Add(float64(events))
	screeningDurationSeconds.Observe(d.Seconds())
}

// RecordConjunctionsWritten counts events upserted with the given provenance.
func RecordConjunctionsWritten(provenance string, n int) {
	conjunctionsWrittenTotal.WithLabelValues(provenance).Add(float64(n))
}

// RecordManeuver records one planning outcome and its search duration.
func RecordManeuver(outcome string, d time.Duration) {
	maneuverPlansTotal.WithLabelValues(outcome).Inc()
	maneuverDurationSeconds.Observe(d.Seconds())
}

// RecordFeed counts accepted and skipped feed records.
func RecordFeed(accepted, skipped int) {
	feedRecordsTotal.WithLabelValues("accepted").Add(float64(accepted))
	feedRecordsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// SetCatalogObjects sets the loaded object count.
func SetCatalogObjects(n int) {
	catalogObjects.Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// knownRoutes are the admin server paths kept as distinct labels.
var knownRoutes = map[string]bool{
	"/metrics": true,
	"/healthz": true,
	"/readyz":  true,
}

// normalizeRoute collapses unknown paths into one label so scanners cannot
// inflate label cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
