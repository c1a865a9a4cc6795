package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/trace"
)

func TestRecordStatAccumulatesNodeSeconds(t *testing.T) {
	r := New()
	r.RecordStat(trace.Stat{Work: 2000, IO: 1000, Ckpt: 500, Wasted: 0})
	r.RecordStat(trace.Stat{Work: 1000})

	assert.InDelta(t, 3.0, testutil.ToFloat64(r.nodeSecondsTotal.WithLabelValues("work")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.nodeSecondsTotal.WithLabelValues("io")), 1e-9)
	assert.InDelta(t, 0.5, testutil.ToFloat64(r.nodeSecondsTotal.WithLabelValues("ckpt")), 1e-9)
}

func TestRecordReplicationSetsConvergenceGauge(t *testing.T) {
	r := New()
	r.RecordReplication(0.01, true)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.convergence))

	r.RecordReplication(0.02, false)
	assert.Equal(t, float64(0), testutil.ToFloat64(r.convergence))
}
