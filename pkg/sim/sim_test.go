package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/event"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/fault"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/iomodel"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/planner"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/rng"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/trace"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

func smallSystem(t *testing.T) *workload.System {
	t.Helper()
	sys := workload.NewSystem("test", 8, 16, 1e9, 1e10, 1e9, 1e9, 100)
	sys.AddAppClass(workload.AppClassSpec{
		NbCores:     32,
		InputPct:    0.001,
		OutputPct:   0.001,
		WallSeconds: 50,
		IOPct:       0,
		CkptPct:     0.01,
		TargetShare: 1,
	})
	sys.Finalize(rng.NewStreams(1))
	return sys
}

func newSim(t *testing.T, sys *workload.System, withFaults bool) *Simulation {
	t.Helper()
	p := planner.New(sys)
	q := event.NewQueue()
	model := iomodel.NewNoInterference(q)
	st := trace.NewStatTrace()

	var gen *fault.Generator
	var restarter *fault.Restarter
	if withFaults {
		gen = fault.NewGenerator(q, rng.New(2), sys.NbNodes, sys.MTBFInd)
		restarter = fault.NewRestarter(q, p, sys)
	}

	return New(sys, p, q, model, gen, restarter, st, nil)
}

func TestRunWithoutFaultsConvergesAndRecordsWorkAndIO(t *testing.T) {
	sys := smallSystem(t)
	p := planner.New(sys)
	q := event.NewQueue()
	model := iomodel.NewNoInterference(q)
	st := trace.NewStatTrace()
	s := New(sys, p, q, model, nil, nil, st, nil)

	converged := s.Run(100 * sys.MinDuration)
	assert.True(t, converged)

	for _, app := range sys.Apps {
		assert.True(t, app.Completed)
		assert.Equal(t, simtime.Time(0), app.RemainingWork)
	}

	stat, err := st.GetStat(sys.MinDuration/2, rng.New(3))
	require.NoError(t, err)
	assert.Greater(t, stat.Work, simtime.Time(0))
	assert.Greater(t, stat.IO, simtime.Time(0))
}

func TestRunWithFaultsEventuallyRestartsAnApp(t *testing.T) {
	sys := workload.NewSystem("faulty", 8, 16, 1e9, 1e10, 1e9, 2, 50)
	sys.AddAppClass(workload.AppClassSpec{
		NbCores:     32,
		InputPct:    0.001,
		OutputPct:   0.001,
		WallSeconds: 50,
		IOPct:       0,
		CkptPct:     0.01,
		TargetShare: 1,
	})
	sys.Finalize(rng.NewStreams(1))

	s := newSim(t, sys, true)
	_ = s.Run(200 * sys.MinDuration)

	sawRestart := false
	for _, app := range sys.Apps {
		if app.InstanceIndex > 0 {
			sawRestart = true
		}
	}
	assert.True(t, sawRestart, "expected at least one app to have been restarted under a short MTBF")
}

func TestSyncScheduleArmsAppStartOnlyOnce(t *testing.T) {
	sys := smallSystem(t)
	s := newSim(t, sys, false)
	s.Planner.RescheduleFrom(0)

	s.syncSchedule(0)
	firstLen := s.Queue.Len()
	s.syncSchedule(0)
	require.Equal(t, firstLen, s.Queue.Len(), "a second sync at the same instant must not re-arm already-scheduled apps")
}
