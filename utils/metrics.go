package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of active HTTP requests",
		},
	)

	// Database Metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "collection"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"}, // hit, miss
	)

	// Attendance Metrics
	AttendanceMarksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_marks_total",
			Help: "Attendance marking attempts by outcome",
		},
		[]string{"outcome"}, // created, existing, location_error, restricted, invalid_code, error
	)

	EligibilityDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_eligibility_decisions_total",
			Help: "Device eligibility decisions by result",
		},
		[]string{"result"}, // allowed, device_conflict, user_conflict
	)

	GeofenceDistance = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_geofence_distance_meters",
			Help:    "Measured distance from the geofence center",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)

	RestrictionsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_restrictions_purged_total",
			Help: "Restriction entries removed by the cleanup sweep",
		},
	)

	FingerprintsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_fingerprints_generated_total",
			Help: "Fingerprints generated, labelled by how many signals were unavailable",
		},
		[]string{"degraded"}, // "0", "1", ...
	)

	StoreFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_fallbacks_total",
			Help: "Times a device-local store degraded to memory",
		},
		[]string{"backend"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type", "detail"},
	)
)

// TrackDBOperation tracks database operation duration
func TrackDBOperation(operation, collection string) *prometheus.Timer {
	return prometheus.NewTimer(DBOperationDuration.WithLabelValues(operation, collection))
}

// TrackCacheOperation counts a cache hit or miss
func TrackCacheOperation(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheOperations.WithLabelValues(cache, result).Inc()
}

// TrackAttendanceMark counts a markPresent outcome
func TrackAttendanceMark(outcome string) {
	AttendanceMarksTotal.WithLabelValues(outcome).Inc()
}

// TrackEligibility counts an eligibility decision
func TrackEligibility(result string) {
	EligibilityDecisions.WithLabelValues(result).Inc()
}

// TrackError increments the error counter by type
func TrackError(errorType, detail string) {
	ErrorsTotal.WithLabelValues(errorType, detail).Inc()
}
