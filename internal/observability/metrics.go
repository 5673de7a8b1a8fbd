package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecognitionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Name:      "recognition_attempts_total",
		Help:      "Total recognition attempts by outcome (matched, no_match, no_face, error)",
	}, []string{"outcome"})

	PresenceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Name:      "presence_events_total",
		Help:      "Presence events created, by direction",
	}, []string{"direction", "location"})

	DuplicatesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Name:      "duplicates_suppressed_total",
		Help:      "Observations suppressed by the debounce window",
	}, []string{"location"})

	VisitorCheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campuswatch",
		Name:      "visitor_checkins_total",
		Help:      "Visitor check-ins, by kind (new, returning, rejected_member)",
	}, []string{"kind"})

	GallerySize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "campuswatch",
		Name:      "gallery_size",
		Help:      "Number of embeddings in each in-memory gallery",
	}, []string{"gallery"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "campuswatch",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "campuswatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "campuswatch",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
