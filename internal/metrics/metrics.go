package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transform runs
	TransformsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_transforms_total",
			Help: "Total number of transform runs by outcome",
		},
		[]string{"outcome"}, // "results", "error", "discarded"
	)

	TransformDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salon_transform_duration_seconds",
			Help:    "Wall-clock duration of transform runs in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180, 300},
		},
		[]string{"outcome"},
	)

	// Collaborator calls
	CollaboratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_collaborator_calls_total",
			Help: "Total number of analysis/generation calls by result",
		},
		[]string{"call", "result"}, // result: "ok", "error", "timeout", "panic"
	)

	CollaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salon_collaborator_duration_seconds",
			Help:    "Duration of collaborator calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 180},
		},
		[]string{"call"},
	)

	AnalysisDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_analysis_degraded_total",
			Help: "Analysis results replaced by a fallback, by reason",
		},
		[]string{"reason"},
	)

	ImageSources = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_generated_image_refs_total",
			Help: "Generated image references by kind",
		},
		[]string{"kind"}, // "data_uri", "url"
	)

	// Sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "salon_active_sessions",
			Help: "Current number of in-memory sessions",
		},
	)

	ProgressSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "salon_progress_subscribers",
			Help: "Current number of open progress WebSocket connections",
		},
	)

	// Exports and captures
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_exports_total",
			Help: "Total number of report/image downloads",
		},
		[]string{"kind"}, // "report", "image"
	)

	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_camera_captures_total",
			Help: "Total number of camera snapshot attempts",
		},
		[]string{"result"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salon_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTransform(outcome string, duration time.Duration) {
	TransformsTotal.WithLabelValues(outcome).Inc()
	TransformDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordCollaboratorCall(call, result string, duration time.Duration) {
	CollaboratorCalls.WithLabelValues(call, result).Inc()
	CollaboratorDuration.WithLabelValues(call).Observe(duration.Seconds())
}

func RecordAnalysisDegraded(reason string) {
	AnalysisDegraded.WithLabelValues(reason).Inc()
}

func RecordImageSource(isDataURI bool) {
	kind := "url"
	if isDataURI {
		kind = "data_uri"
	}
	ImageSources.WithLabelValues(kind).Inc()
}

func RecordExport(kind string) {
	ExportsTotal.WithLabelValues(kind).Inc()
}

func RecordCapture(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CapturesTotal.WithLabelValues(result).Inc()
}

func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}

func TrackProgressSubscriber(inc bool) {
	if inc {
		ProgressSubscribers.Inc()
	} else {
		ProgressSubscribers.Dec()
	}
}
