package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	var reg = prometheus.NewRegistry()
	var m = New(reg)

	m.HandlesLive.Set(3)
	m.HostMemory.WithLabelValues(":00000001").Set(1024)
	m.TrapSignals.WithLabelValues(":00000001", "0").Inc()

	var families, err = reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var names = map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["actorcore_handle_live"])
	require.True(t, names["actorcore_scripthost_memory_bytes"])
	require.True(t, names["actorcore_scripthost_trap_signals_total"])
}

func TestHostMemoryGaugeTracksPerHandle(t *testing.T) {
	var reg = prometheus.NewRegistry()
	var m = New(reg)

	m.HostMemory.WithLabelValues(":00000002").Set(2048)

	var metric dto.Metric
	require.NoError(t, m.HostMemory.WithLabelValues(":00000002").Write(&metric))
	require.Equal(t, float64(2048), metric.GetGauge().GetValue())
}
