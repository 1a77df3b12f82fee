// Package metrics exposes the node's Prometheus instrumentation.
//
// Grounded on SAGE-X-project-sage/internal/metrics (promauto-registered
// CounterVec/Gauge/HistogramVec grouped by concern, a package-level
// Registry + namespace) — the teacher's own internal/telemetry was a
// hand-rolled ring-buffer reporter with no exporter; this package
// replaces it with the pack's actual Prometheus convention (see
// DESIGN.md, "Adapted, not carried").
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quietmesh"

// Registry is this node's private Prometheus registry rather than the
// global default, so multiple nodes can run in the same test process
// (e.g. the orchestrator's handshake tests) without colliding on
// metric registration.
var Registry = prometheus.NewRegistry()

var (
	HandshakesInitiated = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "initiated_total",
			Help:      "Total number of handshakes this node initiated.",
		},
	)

	HandshakesEstablished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "established_total",
			Help:      "Total number of handshakes that reached an established session.",
		},
		[]string{"role"}, // initiator, responder
	)

	HandshakesFailed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "failed_total",
			Help:      "Total number of handshakes that failed verification or decapsulation.",
		},
		[]string{"reason"}, // invalid_signature, no_pending, aead_failure, other
	)

	SessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of currently established peer sessions.",
		},
	)

	FramesDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "frames_dropped_total",
			Help:      "Total number of inbound frames dropped by the routing filter.",
		},
		[]string{"reason"}, // cross_talk, short_frame, malformed, unknown_topic, foreign_channel
	)

	RoomsJoined = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "joined",
			Help:      "Number of rooms currently subscribed to.",
		},
	)

	MessagesPublished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "published_total",
			Help:      "Total number of InteractionMessages published, by kind.",
		},
		[]string{"kind"},
	)
)
