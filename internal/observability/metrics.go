package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	Frames           *prometheus.CounterVec
	DroppedFrames    prometheus.Counter
	ScheduledBuffers prometheus.Gauge
	ActionResults    *prometheus.CounterVec
	CRUDErrors       prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Whether a realtime voice session is currently active.",
		}),
		Frames: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Realtime frames by direction and type.",
		}, []string{"direction", "type"}),
		DroppedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Outbound frames dropped because the transport was not active.",
		}),
		ScheduledBuffers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_playback_buffers",
			Help:      "Playback buffers scheduled but not yet finished.",
		}),
		ActionResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_results_total",
			Help:      "Assistant action outcomes by action and status.",
		}, []string{"action", "status"}),
		CRUDErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crud_errors_total",
			Help:      "Failed REST calls against the todo service.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
