package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/rng"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
)

func demoSystem() *System {
	sys := NewSystem("demo", 300, 1, 1e6, 1e3, 100, 100, 0)
	sys.AddAppClass(AppClassSpec{NbCores: 30, InputPct: 0.5, OutputPct: 2.0, WallSeconds: 25, IOPct: 0, CkptPct: 0.2, TargetShare: 0.6})
	sys.AddAppClass(AppClassSpec{NbCores: 50, InputPct: 0.3, OutputPct: 1.0, WallSeconds: 30, IOPct: 0, CkptPct: 0.2, TargetShare: 0.4})
	sys.SetFixedCheckpointInterval(10)
	return sys
}

func TestAddAppClassDerivesDurations(t *testing.T) {
	sys := demoSystem()
	require.Len(t, sys.Classes, 2)
	c0 := sys.Classes[0]
	assert.Equal(t, 30, c0.NbNodes)
	assert.Greater(t, int64(c0.InputTime), int64(0))
	assert.Greater(t, int64(c0.OutputTime), int64(0))
}

func TestFinalizePopulatesAndIsIdempotentOnReplication(t *testing.T) {
	sys := demoSystem()
	streams := rng.NewStreams(1)
	sys.Finalize(streams)
	require.NotEmpty(t, sys.Apps)
	firstCount := len(sys.Apps)
	for _, a := range sys.Apps {
		assert.Equal(t, 0, a.InstanceIndex)
	}

	// Simulate a restart instance lingering from a prior replication.
	restarted := RestartApp(sys.Apps[0])
	sys.Apps = append(sys.Apps, restarted)

	sys.Finalize(streams)
	assert.Len(t, sys.Apps, firstCount)
}

func TestNewAppNeverNegativeWork(t *testing.T) {
	sys := demoSystem()
	order := rng.New(5)
	for i := 0; i < 50; i++ {
		app := NewApp(sys.Classes[0], order)
		assert.GreaterOrEqual(t, int64(app.RemainingWork), int64(0))
	}
}

func TestRestartAppCarriesIdentity(t *testing.T) {
	sys := demoSystem()
	order := rng.New(9)
	original := NewApp(sys.Classes[0], order)
	original.LastSuccessfulCkpt = 1234
	restarted := RestartApp(original)

	assert.Equal(t, original.AppIndex, restarted.AppIndex)
	assert.Equal(t, original.InstanceIndex+1, restarted.InstanceIndex)
	assert.Equal(t, original.RemainingWork, restarted.WorkRemainingAtLastCkpt)
	assert.Equal(t, sys.Classes[0].CkptTime, restarted.RemainingIO)
}

func TestRestartAppUsesInputTimeWithoutPriorCheckpoint(t *testing.T) {
	sys := demoSystem()
	order := rng.New(3)
	original := NewApp(sys.Classes[0], order)
	original.LastSuccessfulCkpt = simtime.Undefined
	restarted := RestartApp(original)
	assert.Equal(t, sys.Classes[0].InputTime, restarted.RemainingIO)
}

func TestStartStopWorkingAccruesRemainingWork(t *testing.T) {
	sys := demoSystem()
	order := rng.New(2)
	app := NewApp(sys.Classes[0], order)
	before := app.RemainingWork
	app.StartWorking(0)
	app.StopWorking(100)
	assert.Equal(t, before-100, app.RemainingWork)
	assert.False(t, app.Working)
}

func TestCkptIntervalUsesFixedOverride(t *testing.T) {
	sys := demoSystem()
	order := rng.New(4)
	app := NewApp(sys.Classes[0], order)
	assert.Equal(t, simtime.FromSeconds(10), app.CkptInterval())
}

func TestCkptIntervalUsesDalyWhenUnset(t *testing.T) {
	sys := demoSystem()
	sys.SetDalyCheckpointInterval()
	order := rng.New(4)
	app := NewApp(sys.Classes[0], order)
	expected := simtime.DalyInterval(sys.MTBFPerApp(app.NbNodes), sys.Classes[0].CkptTime)
	assert.Equal(t, expected, app.CkptInterval())
}
