package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordCycle("ok", 3*time.Second, time.Unix(1700000000, 0))
	r.RecordCycle("no_data", time.Second, time.Unix(1700000300, 0))
	r.RecordFetch("ok", 18)
	r.RecordFetch("timeout", 2)
	r.RecordFetch("transport", 0)
	r.RecordAlert("absolute_threshold")
	r.SetBaselineSymbols(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("no_data")))
	assert.Equal(t, 18.0, testutil.ToFloat64(r.fetchResults.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.fetchResults.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alerts.WithLabelValues("absolute_threshold")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.baselineSymbols))
	assert.Equal(t, 1700000300.0, testutil.ToFloat64(r.lastCycle))

	count, err := testutil.GatherAndCount(reg, "signalbot_cycle_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordCycle("ok", time.Second, time.Now())
	r.RecordFetch("ok", 1)
	r.RecordAlert("x")
	r.SetBaselineSymbols(1)
}
