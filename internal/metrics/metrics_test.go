package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePass(ModeLive)
	m.ObservePass(ModeDemo)
	m.ObservePass(ModeDemo)
	m.ObserveFailure(FailureBlock)
	m.ObserveMerged(3)
	m.ObserveMerged(0)
	m.ObserveMined(7, false)
	m.SetHeight(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcilePasses.WithLabelValues(ModeLive)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReconcilePasses.WithLabelValues(ModeDemo)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues(FailureBlock)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BlocksMerged))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PowAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PowBlocks.WithLabelValues("false")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.ChainHeight))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePass(ModeLive)
		m.ObserveFailure(FailureHeight)
		m.ObserveMined(1, true)
		m.ObserveValidated("Validator 1")
		m.ObserveRejected("transfer", "network")
		m.SetPending(1)
	})
}
