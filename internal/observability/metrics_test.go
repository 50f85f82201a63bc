package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatherValue returns the value of the first sample of a counter or gauge family.
func gatherValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		require.NotEmpty(t, f.GetMetric())
		m := f.GetMetric()[0]
		if m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TradesTotal.WithLabelValues("success").Inc()
	m.TradesTotal.WithLabelValues("success").Inc()
	m.GovernorSuppressions.Inc()

	assert.Equal(t, 2.0, gatherValue(t, reg, "pnlbot_execution_trades_total"))
	assert.Equal(t, 1.0, gatherValue(t, reg, "pnlbot_loop_governor_suppressions_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.Contains(t, f.GetName(), Namespace+"_")
	}
}

func TestRecordHelpers(t *testing.T) {
	RecordRPCCall("getBalance", 10*time.Millisecond, errors.New("boom"))
	RecordRPCCall("getBalance", 10*time.Millisecond, nil)
	assert.GreaterOrEqual(t, gatherValue(t, prometheus.DefaultGatherer, "pnlbot_solana_rpc_call_errors_total"), 1.0)

	RecordCycle("ok", time.Second, 3)
	assert.Equal(t, 3.0, gatherValue(t, prometheus.DefaultGatherer, "pnlbot_ledger_open_positions"))

	UpdateDriftedMints(2)
	assert.Equal(t, 2.0, gatherValue(t, prometheus.DefaultGatherer, "pnlbot_reconcile_drifted_mints"))
}
