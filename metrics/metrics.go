// Package metrics holds the prometheus collectors for NTRIP sessions.  A nil
// *Metrics is valid and records nothing, so the client works without a
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ntrip"

// Metrics is the set of collectors.
type Metrics struct {
	sessionsActive   prometheus.Gauge
	framesDecoded    *prometheus.CounterVec
	parseErrors      *prometheus.CounterVec
	bytesReceived    *prometheus.CounterVec
	bytesDropped     *prometheus.CounterVec
	sourcetableMount prometheus.Gauge
	sessionEnds      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of mount subscriptions currently streaming",
		}),
		framesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "RTCM3 frames decoded and delivered",
		}, []string{"mount", "message_type"}),
		parseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Failed attempts to decode a frame at the head of the buffer",
		}, []string{"mount"}),
		bytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Bytes read from the caster after the handshake",
		}, []string{"mount"}),
		bytesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_dropped_total",
			Help:      "Bytes discarded while looking for the start of a frame",
		}, []string{"mount"}),
		sourcetableMount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sourcetable_mounts",
			Help:      "Number of mounts in the last sourcetable fetched",
		}),
		sessionEnds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_ends_total",
			Help:      "Mount subscriptions ended, by reason",
		}, []string{"mount", "reason"}),
	}
}

// Handler returns the HTTP handler that serves the metrics in reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// SessionStarted records the start of a subscription.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionEnded records the end of a subscription.  Reason is "eof",
// "shutdown", "parse_errors" or "transport".
func (m *Metrics) SessionEnded(mount, reason string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionEnds.WithLabelValues(mount, reason).Inc()
}

// FrameDecoded counts a frame delivered to the consumer.
func (m *Metrics) FrameDecoded(mount, messageType string) {
	if m == nil {
		return
	}
	m.framesDecoded.WithLabelValues(mount, messageType).Inc()
}

// ParseError counts a failed decode.
func (m *Metrics) ParseError(mount string) {
	if m == nil {
		return
	}
	m.parseErrors.WithLabelValues(mount).Inc()
}

// BytesReceived counts bytes read from the caster.
func (m *Metrics) BytesReceived(mount string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.WithLabelValues(mount).Add(float64(n))
}

// BytesDropped counts bytes thrown away during resynchronisation.
func (m *Metrics) BytesDropped(mount string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesDropped.WithLabelValues(mount).Add(float64(n))
}

// SourcetableMounts records the size of a sourcetable.
func (m *Metrics) SourcetableMounts(n int) {
	if m == nil {
		return
	}
	m.sourcetableMount.Set(float64(n))
}
