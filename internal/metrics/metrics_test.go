package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value returns the value of the first sample of family name whose labels
// include want, or 0 when no such sample has been recorded yet.
func value(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func registry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg), "registering twice is tolerated")
	return reg
}

func TestObserveBatch(t *testing.T) {
	reg := registry(t)
	before := value(t, reg, "testpulse_upserts_total", map[string]string{"kind": "inserted"})

	ObserveBatch(3, 1, 42, -time.Second)

	assert.Equal(t, before+3, value(t, reg, "testpulse_upserts_total", map[string]string{"kind": "inserted"}))
	assert.Equal(t, 42.0, value(t, reg, "testpulse_records", nil))

	SetRecords(0)
	assert.Zero(t, value(t, reg, "testpulse_records", nil))
}

func TestObserveQuery_NormalisesOutcome(t *testing.T) {
	reg := registry(t)

	ObserveQuery("history", time.Millisecond, "something")
	ObserveQuery("history", time.Millisecond, OutcomeEmpty)

	assert.Equal(t, 1.0, value(t, reg, "testpulse_queries_total", map[string]string{"query": "history", "outcome": OutcomeHit}))
	assert.Equal(t, 1.0, value(t, reg, "testpulse_queries_total", map[string]string{"query": "history", "outcome": OutcomeEmpty}))
	assert.Equal(t, 2.0, value(t, reg, "testpulse_query_seconds", map[string]string{"query": "history"}))
}

func TestIngestErrors(t *testing.T) {
	reg := registry(t)
	before := value(t, reg, "testpulse_ingest_errors_total", nil)

	IngestErrors(0)
	IngestErrors(2)

	assert.Equal(t, before+2, value(t, reg, "testpulse_ingest_errors_total", nil))
}
