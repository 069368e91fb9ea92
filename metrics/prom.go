package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FramesTotal counts frames read from the capture source.
	FramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dwellcam_frames_total",
			Help: "Total number of frames processed",
		},
	)

	// FrameReadErrors counts failed capture reads.
	FrameReadErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dwellcam_frame_read_errors_total",
			Help: "Total number of failed frame reads",
		},
	)

	// InferenceDuration observes per-frame detector latency.
	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dwellcam_inference_duration_seconds",
			Help:    "Object detection inference duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// TrackedPeople is the number of identities currently in the tracker
	// registry.
	TrackedPeople = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dwellcam_tracked_people",
			Help: "Number of people currently tracked",
		},
	)

	// PeopleSeen is the count of distinct identities ever recorded this
	// session. A gauge because a restored checkpoint can move it in either
	// direction across restarts.
	PeopleSeen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dwellcam_people_seen",
			Help: "Distinct people seen this session",
		},
	)

	// DwellSeconds is the summed dwell time across all records.
	DwellSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dwellcam_dwell_seconds",
			Help: "Total accumulated dwell time in seconds",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FramesTotal,
		FrameReadErrors,
		InferenceDuration,
		TrackedPeople,
		PeopleSeen,
		DwellSeconds,
	)
}
