package websocket

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_AlreadyRegistered(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	reg := prometheus.NewRegistry()

	newMetrics(reg, "ch-1", &logger)
	m := newMetrics(reg, "ch-1", &logger)
	m.written.Inc()

	assert.Empty(t, buf.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.written))
}

func TestMetrics_RegistrationConflictIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "connected",
		Help:      "conflicting help and labels",
	}))

	newMetrics(reg, "ch-1", &logger)

	assert.Contains(t, buf.String(), "failed to register channel metrics")
	n, err := testutil.GatherAndCount(reg, metricsNamespace+"_reconnects_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
