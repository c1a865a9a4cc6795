// Package sim wires the event queue, planner, interference model, fault
// generator and trace sink together into the dispatch loop described in
// SPEC_FULL.md 5.3: the numbered transition table is implemented here as
// one handler per event kind, in the karpenter Reconcile() numbered-step
// comment idiom.
package sim

import (
	"math"

	"go.uber.org/zap"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/event"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/fault"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/iomodel"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/planner"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/trace"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// Simulation owns one replication's worth of mutable run state: the
// queue, the planner, the chosen interference model, the (optional)
// fault generator and the trace sink apps report activity into.
type Simulation struct {
	System    *workload.System
	Planner   *planner.Planner
	Queue     *event.Queue
	Model     iomodel.Model
	Faults    *fault.Generator
	Restarter *fault.Restarter
	Trace     trace.Trace
	Log       *zap.SugaredLogger

	pendingAppEnd map[*workload.App]*event.Event
}

// New builds a Simulation around q, which the caller must also have
// threaded into model/faults/restarter so every component shares one
// queue. faults and restarter may be nil to disable fault injection
// entirely (e.g. for isolating interference-model behaviour in tests).
func New(sys *workload.System, p *planner.Planner, q *event.Queue, model iomodel.Model, faults *fault.Generator, restarter *fault.Restarter, tr trace.Trace, log *zap.SugaredLogger) *Simulation {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Simulation{
		System:        sys,
		Planner:       p,
		Queue:         q,
		Model:         model,
		Faults:        faults,
		Restarter:     restarter,
		Trace:         tr,
		Log:           log,
		pendingAppEnd: map[*workload.App]*event.Event{},
	}
}

// Run dispatches events until the queue drains (full convergence) or an
// event's date exceeds safetyCap, matching the CLI's "20x min_run"
// non-convergence cutoff. Returns whether the run converged.
func (s *Simulation) Run(safetyCap simtime.Time) bool {
	s.bootstrap()
	for {
		e, ok := s.Queue.PopEarliest()
		if !ok {
			return true
		}
		if e.Date > safetyCap {
			return false
		}
		s.dispatch(e)
	}
}

func (s *Simulation) bootstrap() {
	if s.Faults != nil {
		s.Faults.ScheduleNext(0)
	}
	s.Planner.RescheduleFrom(0)
	s.syncSchedule(0)
}

// syncSchedule arms AppStart/AppEnd events for every app whose planner
// dates changed since the last sync. The planner itself never touches
// the event queue (pkg/planner has no pkg/event dependency, by design),
// so pkg/sim is responsible for observing StartDate/EndDate changes and
// re-arming accordingly — this is the mechanism behind step 6's "not
// re-armed directly, the new schedule arms the next AppEnd".
func (s *Simulation) syncSchedule(now simtime.Time) {
	for _, app := range s.System.Apps {
		if app.Completed {
			continue
		}
		if app.StartDate.Defined() && !app.Scheduled {
			app.Scheduled = true
			s.Queue.Insert(&event.Event{Kind: event.AppStart, Date: app.StartDate, App: app})
		}
		if !app.EndDate.Defined() {
			continue
		}
		if pending, ok := s.pendingAppEnd[app]; !ok || pending.Date != app.EndDate {
			s.armAppEnd(app, app.EndDate)
		}
	}
}

// armAppEnd (re)arms app's AppEnd event at date, cancelling whatever
// AppEnd was previously pending for it. Both syncSchedule (reacting to a
// planner EndDate change) and handleIoEnd (detecting the final output
// completed ahead of the projected end) go through this, so there is
// never more than one live AppEnd per app.
func (s *Simulation) armAppEnd(app *workload.App, date simtime.Time) {
	if pending, ok := s.pendingAppEnd[app]; ok {
		s.Queue.Remove(pending)
	}
	s.pendingAppEnd[app] = s.Queue.Insert(&event.Event{Kind: event.AppEnd, Date: date, App: app})
}

func (s *Simulation) dispatch(e *event.Event) {
	if s.Log.Desugar().Core().Enabled(zap.DebugLevel) {
		if e.App != nil {
			s.Log.Debugw("dispatch", "kind", e.Kind.String(), "date", e.Date, "app", e.App.AppIndex, "instance", e.App.InstanceIndex)
		} else {
			s.Log.Debugw("dispatch", "kind", e.Kind.String(), "date", e.Date, "node", e.Node)
		}
	}
	switch e.Kind {
	case event.NodeFault:
		s.handleNodeFault(e.Date, e.Node)
	case event.AppStart:
		s.handleAppStart(e.Date, e.App)
	case event.IoStart:
		s.handleIoStart(e.Date, e.App)
	case event.IoEnd:
		s.handleIoEnd(e.Date, e.App)
	case event.CkptStart:
		s.handleCkptStart(e.Date, e.App)
	case event.CkptEnd:
		s.handleCkptEnd(e.Date, e.App)
	case event.CkptIoStart:
		s.handleCkptIoStart(e.Date, e.App)
	case event.CkptIoEnd:
		s.handleCkptIoEnd(e.Date, e.App)
	case event.AppEnd:
		s.handleAppEnd(e.Date, e.App)
	case event.AppFailure:
		s.handleAppFailure(e.Date, e.App)
	}
	s.syncSchedule(e.Date)
}

// 1. AppStart -> schedule IoStart (reads initial input).
func (s *Simulation) handleAppStart(now simtime.Time, app *workload.App) {
	s.Queue.Insert(&event.Event{Kind: event.IoStart, Date: now, App: app})
}

// 2. IoStart -> ask the I/O model to start; RemainingIO was already set
// by whoever scheduled this event (construction, for the first call; the
// IoEnd handler below, for the final output).
func (s *Simulation) handleIoStart(now simtime.Time, app *workload.App) {
	s.stopWorkingAndRecord(now, app)
	app.IOStartDate = now
	s.Model.StartIO(now, app)
}

// stopWorkingAndRecord closes out app's current Work interval (if it was
// working) before a transition into IO or Ckpt, mirroring
// StatTrace::interrupt_action's WORK-closing branch.
func (s *Simulation) stopWorkingAndRecord(now simtime.Time, app *workload.App) {
	if !app.Working {
		return
	}
	start := app.DateStartWork
	app.StopWorking(now)
	s.Trace.Record(app, trace.Work, start, now-start)
}

// 3. IoEnd -> let the I/O model finish; end the app if that was its
// final output, else resume compute and schedule the next checkpoint or
// the final output.
func (s *Simulation) handleIoEnd(now simtime.Time, app *workload.App) {
	s.Model.EndIO(now, app)
	s.Trace.Record(app, trace.IO, app.IOStartDate, now-app.IOStartDate)

	if app.RemainingWork == 0 {
		s.armAppEnd(app, now)
		return
	}

	app.StartWorking(now)
	interval := app.CkptInterval()
	if app.RemainingWork > interval {
		s.Queue.Insert(&event.Event{Kind: event.CkptStart, Date: now + interval, App: app})
		return
	}
	app.RemainingIO = app.Class.OutputTime
	s.Queue.Insert(&event.Event{Kind: event.IoStart, Date: now + app.RemainingWork, App: app})
}

// 4. CkptStart -> the model decides whether this is a real start now
// (stop compute) or deferred (leave compute running; the model re-posts
// its own CkptStart later).
func (s *Simulation) handleCkptStart(now simtime.Time, app *workload.App) {
	started := s.Model.StartCkpt(now, app)
	if started {
		s.stopWorkingAndRecord(now, app)
		app.IOStartDate = now
	}
}

// 4a. CkptIoEnd drives the burst-buffer two-phase checkpoint: the local
// BB write's completion (posted as CkptIoEnd by
// SimpleInterferenceWithBurstBuffers.StartCkpt) begins the PFS drain. No
// model posts CkptIoStart, and its handler does nothing.
func (s *Simulation) handleCkptIoStart(now simtime.Time, app *workload.App) {}

func (s *Simulation) handleCkptIoEnd(now simtime.Time, app *workload.App) {
	m, ok := s.Model.(iomodel.CkptIOModel)
	if !ok {
		return
	}
	m.EndCkptIO(now, app)
	if !app.Working {
		app.StartWorking(now)
	}
	app.IOStartDate = now
	m.StartCkptIO(now, app)
}

// 5. CkptEnd -> on success, record the checkpoint, resume compute (unless
// a burst-buffer model already resumed it back at CkptIoEnd) and schedule
// the next checkpoint or the final output.
func (s *Simulation) handleCkptEnd(now simtime.Time, app *workload.App) {
	if !s.Model.EndCkpt(now, app) {
		return
	}
	s.Trace.Record(app, trace.Ckpt, app.IOStartDate, now-app.IOStartDate)
	if !app.Working {
		app.StartWorking(now)
	}
	interval := app.CkptInterval()
	if app.RemainingWork > interval {
		s.Queue.Insert(&event.Event{Kind: event.CkptStart, Date: now + interval, App: app})
		return
	}
	app.RemainingIO = app.Class.OutputTime
	s.Queue.Insert(&event.Event{Kind: event.IoStart, Date: now + app.RemainingWork, App: app})
}

// 6. AppEnd -> if genuinely done, mark complete and shrink the planner
// end to now; else push a new projected end (which re-arms the next
// AppEnd via syncSchedule) and dismiss this one.
func (s *Simulation) handleAppEnd(now simtime.Time, app *workload.App) {
	if app.RemainingWork == 0 && app.RemainingIO == 0 {
		app.Completed = true
		s.Planner.UpdateEnd(app, now)
		return
	}

	nbckpt := math.Floor(float64(app.RemainingWork) / float64(app.CkptInterval()))
	rate := app.CurrentIORate
	if rate <= 0 {
		rate = 1
	}
	projected := float64(app.RemainingIO)/rate + float64(app.RemainingWork) + nbckpt*float64(app.Class.CkptTime)
	newEnd := now + simtime.Time(math.Ceil(1.2*projected))
	s.Planner.UpdateEnd(app, newEnd)
}

// 7. NodeFault -> keep the fault stream fed; if it lands on a running
// app, post an AppFailure for it at the same instant.
func (s *Simulation) handleNodeFault(now simtime.Time, node int) {
	impacted, found := s.Faults.HandleNodeFault(now, node, s.Planner)
	if found {
		s.Queue.Insert(&event.Event{Kind: event.AppFailure, Date: now, App: impacted})
	}
}

// 8. AppFailure -> relabel wasted work in the trace, restart the app,
// and let syncSchedule re-arm the new instance.
func (s *Simulation) handleAppFailure(now simtime.Time, app *workload.App) {
	if app.Working {
		s.Trace.Record(app, trace.Work, app.DateStartWork, now-app.DateStartWork)
	}
	s.Trace.InterruptAction(app, now)
	delete(s.pendingAppEnd, app)
	s.Restarter.Restart(now, app)
}
