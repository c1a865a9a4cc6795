package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/rng"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

func TestGetStatAccumulatesOverlapByCategory(t *testing.T) {
	st := NewStatTrace()
	st.IgnoreStart = 0
	st.IgnoreEnd = 1
	app := &workload.App{NbNodes: 2}
	st.Record(app, Work, 0, 100)
	st.Record(app, IO, 100, 20)
	st.Record(app, Ckpt, 120, 10)

	stat, err := st.GetStat(130, rng.New(1))
	require.NoError(t, err)
	assert.Equal(t, simtime.Time(200), stat.Work)
	assert.Equal(t, simtime.Time(40), stat.IO)
	assert.Equal(t, simtime.Time(20), stat.Ckpt)
	assert.Equal(t, stat.Work+stat.IO+stat.Ckpt+stat.Wasted, stat.Total)
}

func TestGetStatRejectsAWindowLargerThanTheAdmissibleRange(t *testing.T) {
	st := NewStatTrace()
	app := &workload.App{NbNodes: 1}
	st.Record(app, Work, 0, 1000)

	_, err := st.GetStat(10000, rng.New(1))
	assert.Error(t, err)
}

func TestInterruptActionRelabelsBackToTheLastCheckpoint(t *testing.T) {
	st := NewStatTrace()
	app := &workload.App{NbNodes: 1}
	st.Record(app, Ckpt, 0, 5)
	st.Record(app, Work, 5, 10)
	st.Record(app, IO, 15, 5)

	st.InterruptAction(app, 20)

	assert.Equal(t, Ckpt, st.entries[0].action)
	assert.Equal(t, Wasted, st.entries[1].action)
	assert.Equal(t, Wasted, st.entries[2].action)
}

func TestPNGTraceClosesToValidPNGBytes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPNGTrace(&buf, 4, 1000, 10)
	app := &workload.App{Nodes: []int{0, 1}}
	p.Record(app, Work, 0, 500)

	require.NoError(t, p.Close())
	assert.Greater(t, buf.Len(), 0)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, buf.Bytes()[:4])
}
