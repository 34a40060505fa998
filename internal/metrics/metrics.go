// Package metrics exposes pipeline counters over Prometheus. The /metrics
// handler is mounted by the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Frame metrics
	FramesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_frames_processed_total",
			Help: "Total frames run through the detection pipeline",
		},
		[]string{"camera"},
	)

	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_frames_dropped_total",
			Help: "Frames skipped because the pipeline was still busy",
		},
		[]string{"camera"},
	)

	FrameReadErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_frame_read_errors_total",
			Help: "Transient frame read failures from the video source",
		},
		[]string{"camera"},
	)

	// Session lifecycle metrics
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_sessions_started_total",
			Help: "Usage sessions opened",
		},
		[]string{"camera"},
	)

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_sessions_ended_total",
			Help: "Usage sessions finalised",
		},
		[]string{"camera"},
	)

	AlertsTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_alerts_triggered_total",
			Help: "Long-usage alerts fired",
		},
		[]string{"camera"},
	)

	SessionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usage_sessions_open",
			Help: "Currently open usage sessions",
		},
		[]string{"camera"},
	)

	// Audit metrics
	AuditWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_audit_write_failures_total",
			Help: "Audit events dropped by a failing sink",
		},
		[]string{"camera"},
	)
)

func init() {
	prometheus.MustRegister(
		FramesProcessed,
		FramesDropped,
		FrameReadErrors,
		SessionsStarted,
		SessionsEnded,
		AlertsTriggered,
		SessionsOpen,
		AuditWriteFailures,
	)
}
