package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SyncRuns.Inc()
	m.ProviderFallbacks.WithLabelValues("fetch").Inc()
	m.ProviderFallbacks.WithLabelValues("fetch").Inc()
	m.ProcessingTime.Observe(0.2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRuns))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderFallbacks.WithLabelValues("fetch")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["inbox_triage_sync_runs_total"])
	assert.True(t, names["inbox_triage_provider_fallbacks_total"])
	assert.True(t, names["inbox_triage_run_duration_seconds"])
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
