package websocket

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const metricsNamespace = "signal_channel"

type metrics struct {
	emitted    *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	written    prometheus.Counter
	inbound    prometheus.Counter
	reconnects prometheus.Counter
	connected  prometheus.Gauge
}

// newMetrics creates channel collectors and registers them on reg when it is not nil.
// Already registered collectors are tolerated, other registration errors are logged.
func newMetrics(reg prometheus.Registerer, channelID string, logger *zerolog.Logger) *metrics {
	labels := prometheus.Labels{"channel": channelID}
	m := &metrics{
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "events_emitted_total",
			Help:        "Events accepted into the outbound buffer.",
			ConstLabels: labels,
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "events_dropped_total",
			Help:        "Events dropped before reaching the wire.",
			ConstLabels: labels,
		}, []string{"reason"}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "events_written_total",
			Help:        "Events written to the websocket connection.",
			ConstLabels: labels,
		}),
		inbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "events_received_total",
			Help:        "Events decoded from the websocket connection.",
			ConstLabels: labels,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "reconnects_total",
			Help:        "Reconnection attempts after a lost or failed connection.",
			ConstLabels: labels,
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "connected",
			Help:        "1 while the websocket connection is established.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.emitted, m.dropped, m.written, m.inbound, m.reconnects, m.connected} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					logger.Error().Err(err).Msg("failed to register channel metrics")
				}
			}
		}
	}
	return m
}
