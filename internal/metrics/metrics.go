package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dahdouh",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by modality and outcome",
		},
		[]string{"modality", "outcome"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dahdouh",
			Subsystem: "inference",
			Name:      "provider_duration_seconds",
			Help:      "Inference provider call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "outcome"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dahdouh",
			Subsystem: "storage",
			Name:      "uploads_total",
			Help:      "Uploaded assets by backend and status",
		},
		[]string{"backend", "status"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dahdouh",
			Subsystem: "storage",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"content_type"},
	)

	TitleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dahdouh",
			Subsystem: "worker",
			Name:      "title_events_total",
			Help:      "Turn events consumed by the chat title worker",
		},
		[]string{"result"},
	)
)

// Outcome maps an error to a metric label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
