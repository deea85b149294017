package sessionhub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	registry *prometheus.Registry

	activeSessions  prometheus.Gauge
	updatesAccepted prometheus.Counter
	updatesRejected prometheus.Counter
	malformedFrames prometheus.Counter
	snapshotsSent   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &metrics{
		registry: registry,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "viewsync_active_sessions",
			Help: "Number of connected session channels.",
		}),
		updatesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "viewsync_updates_accepted_total",
			Help: "Client updates applied to the session record.",
		}),
		updatesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "viewsync_updates_rejected_total",
			Help: "Client updates rejected on version or validation grounds.",
		}),
		malformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "viewsync_malformed_frames_total",
			Help: "Inbound frames that failed to decode.",
		}),
		snapshotsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "viewsync_snapshots_sent_total",
			Help: "StateSync snapshots sent to clients.",
		}),
	}
}
