package workload

import (
	"github.com/pkg/errors"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/rng"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
)

// App is one execution attempt of a workload drawn from an AppClass.
// Identity persists across restarts via AppIndex; InstanceIndex bumps on
// every restart. App carries no reference to the event queue or planner —
// those consume it from pkg/sim — so it stays a plain, independently
// testable state machine.
type App struct {
	Class *AppClass

	Nodes   []int
	NbNodes int

	StartDate simtime.Time
	EndDate   simtime.Time

	RemainingWork           simtime.Time
	WallTime                simtime.Time
	RemainingIO             simtime.Time
	CurrentIORate           float64
	LastSuccessfulCkpt      simtime.Time
	WorkRemainingAtLastCkpt simtime.Time
	DateStartWork           simtime.Time
	Working                 bool
	IsCheckpointing         bool

	AppIndex      int
	InstanceIndex int
	Completed     bool

	// Scheduled and IOStartDate are pkg/sim's own bookkeeping: whether this
	// instance's AppStart event has already been armed, and when its
	// current I/O or checkpoint transfer began (for trace durations). App
	// itself never reads them.
	Scheduled   bool
	IOStartDate simtime.Time
}

var nextAppIndex int

// NewApp draws a fresh App instance from class, assigning it the next
// sequential AppIndex. The random draw of remaining_work mirrors
// App::App(AppClass*, seed) exactly, including the 1.1x wall-time slack
// and the "negative duration" logic-fault panic.
func NewApp(class *AppClass, order *rng.Stream) *App {
	a := &App{
		Class:         class,
		AppIndex:      nextAppIndex,
		InstanceIndex: 0,
	}
	nextAppIndex++
	a.draw(order)
	return a
}

// Reset redraws an instance-0 App in place for a new replication run,
// matching System::finalize's refinalize branch ("(*ait)->clear(seed)").
func (a *App) Reset(order *rng.Stream) {
	a.Nodes = nil
	a.StartDate = simtime.Undefined
	a.EndDate = simtime.Undefined
	a.LastSuccessfulCkpt = simtime.Undefined
	a.DateStartWork = simtime.Undefined
	a.CurrentIORate = 1.0
	a.Working = false
	a.IsCheckpointing = false
	a.Scheduled = false
	a.InstanceIndex = 0
	a.Completed = false
	a.draw(order)
}

func (a *App) draw(order *rng.Stream) {
	c := a.Class
	a.NbNodes = c.NbNodes
	a.StartDate = simtime.Undefined
	a.EndDate = simtime.Undefined
	a.LastSuccessfulCkpt = simtime.Undefined
	a.DateStartWork = simtime.Undefined
	a.CurrentIORate = 1.0
	a.Working = false

	remainingWork := 0.9*float64(c.WallTime) + float64(c.WallTime)*0.2*order.Float64()
	remainingWork -= float64(c.InputTime) + float64(c.OutputTime)
	if remainingWork < 0 {
		panic(errors.New("workload: app class produced a negative-duration app draw"))
	}
	a.RemainingWork = simtime.Time(remainingWork)

	nbckpt := int64(remainingWork / float64(a.CkptInterval()))
	wallTime := remainingWork + float64(nbckpt)*float64(c.CkptTime)
	a.WallTime = simtime.FromSeconds(1.1 * wallTime / float64(simtime.Unit))
	if a.WallTime < 0 {
		panic(errors.New("workload: integer overflow deriving app wall time"))
	}
	a.RemainingIO = c.InputTime
	a.WorkRemainingAtLastCkpt = a.RemainingWork
}

// RestartApp builds the next instance of failing's workload after a
// fault, mirroring App::App(App *restarting_app). The caller must capture
// failing.RemainingWork *before* zeroing it on the old instance — this
// function reads it directly, so call it before mutating failing.
func RestartApp(failing *App) *App {
	c := failing.Class
	a := &App{
		Class:              c,
		AppIndex:           failing.AppIndex,
		InstanceIndex:      failing.InstanceIndex + 1,
		LastSuccessfulCkpt: failing.LastSuccessfulCkpt,
		StartDate:          simtime.Undefined,
		EndDate:            simtime.Undefined,
		DateStartWork:      simtime.Undefined,
		CurrentIORate:      1.0,
		Working:            false,
		Completed:          false,
		NbNodes:            failing.NbNodes,
		RemainingWork:      failing.RemainingWork,
	}
	if a.RemainingWork < 0 {
		panic(errors.New("workload: restarting an app with negative remaining work"))
	}
	nbckpt := int64(float64(a.RemainingWork) / float64(a.CkptInterval()))
	if a.LastSuccessfulCkpt == simtime.Undefined {
		a.RemainingIO = c.InputTime
	} else {
		a.RemainingIO = c.CkptTime
	}
	a.WallTime = a.RemainingWork + simtime.Time(nbckpt)*c.CkptTime + c.OutputTime + a.RemainingIO
	a.WorkRemainingAtLastCkpt = a.RemainingWork
	return a
}

// CkptInterval returns this app's checkpoint interval: the system's
// fixed override, or Daly's formula for this app's node count.
func (a *App) CkptInterval() simtime.Time {
	return a.Class.system.CkptIntervalFor(a.NbNodes, a.Class.CkptTime)
}

// StartWorking marks the app as accruing compute from now.
func (a *App) StartWorking(now simtime.Time) {
	if a.Working {
		panic(errors.New("workload: app started working while already working"))
	}
	a.DateStartWork = now
	a.Working = true
}

// StopWorking accrues compute since DateStartWork into RemainingWork and
// clears the working flag. A no-op if the app wasn't working.
func (a *App) StopWorking(now simtime.Time) {
	if !a.Working {
		return
	}
	accrued := now - a.DateStartWork
	if a.RemainingWork < accrued {
		panic(errors.New("workload: app accrued more work than it had remaining"))
	}
	a.RemainingWork -= accrued
	a.DateStartWork = simtime.Undefined
	a.Working = false
}

// CheckpointSuccess records a successful checkpoint's recovery point.
func (a *App) CheckpointSuccess(date simtime.Time) {
	a.LastSuccessfulCkpt = date
	a.WorkRemainingAtLastCkpt = a.RemainingWork
}
