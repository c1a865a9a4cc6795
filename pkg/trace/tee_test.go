package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

func TestTeeTraceFeedsBothSinksFromOnePass(t *testing.T) {
	st := NewStatTrace()
	st.IgnoreStart = 0
	st.IgnoreEnd = 1
	var buf bytes.Buffer
	png := NewPNGTrace(&buf, 2, 1000, 10)
	tee := TeeTrace{Sinks: []Trace{st, png}}

	app := &workload.App{NbNodes: 1, Nodes: []int{0}}
	tee.Record(app, Work, 0, 500)
	require.NoError(t, tee.Close())

	assert.Equal(t, 1, len(st.entries))
	assert.Greater(t, buf.Len(), 0)
}
