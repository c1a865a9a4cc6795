// Package fault generates node failures and carries out the resulting
// app restart. The two concerns are grounded on two different original
// functions (Simulation::inject_next_fault and
// Task.C::AppFailureTask::vstep) but share a package because both speak
// directly to the planner and the event queue and nothing else needs
// either in isolation.
package fault

import (
	"math"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/event"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/planner"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/rng"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// Generator draws NodeFault events from an exponential inter-arrival
// distribution with rate nbNodes/mtbfInd, plus a uniformly chosen node
// index, using the fault-dedicated PRNG stream (never the app-order one,
// so identical seeds reproduce identical traces independent of workload
// draw order).
type Generator struct {
	Queue   *event.Queue
	Stream  *rng.Stream
	NbNodes int
	MTBFInd simtime.Time
}

func NewGenerator(q *event.Queue, stream *rng.Stream, nbNodes int, mtbfInd simtime.Time) *Generator {
	return &Generator{Queue: q, Stream: stream, NbNodes: nbNodes, MTBFInd: mtbfInd}
}

// ScheduleNext draws and inserts the next NodeFault after from.
func (g *Generator) ScheduleNext(from simtime.Time) *event.Event {
	lambda := float64(g.NbNodes) / float64(g.MTBFInd)
	u := g.Stream.Float64()
	delta := simtime.Time(math.Ceil(-math.Log(1-u) / lambda))
	node := g.Stream.IntN(g.NbNodes)
	return g.Queue.Insert(&event.Event{Kind: event.NodeFault, Date: from + delta, Node: node})
}

// HandleNodeFault keeps the fault stream fed and reports which app, if
// any, the fault landed on. A fault on an idle node is harmless.
func (g *Generator) HandleNodeFault(now simtime.Time, node int, p *planner.Planner) (*workload.App, bool) {
	g.ScheduleNext(now)
	return p.AppAtNode(now, node)
}

// Restarter performs the AppFailure restart: it tears down the failing
// instance's queued events and planner placement, and prepends a new
// instance to the System's workload so RescheduleFrom places it before
// any other app still waiting for placement (apps that already hold a
// start date keep it).
type Restarter struct {
	Queue   *event.Queue
	Planner *planner.Planner
	System  *workload.System
}

func NewRestarter(q *event.Queue, p *planner.Planner, sys *workload.System) *Restarter {
	return &Restarter{Queue: q, Planner: p, System: sys}
}

// Restart builds the next instance of failing's workload and splices it
// to the front of the System's app list. The new instance's
// remaining_work is captured from failing *before* failing's own
// remaining_work is zeroed below — RestartApp reads it directly, so the
// order here is load-bearing, not incidental.
func (r *Restarter) Restart(now simtime.Time, failing *workload.App) *workload.App {
	r.Queue.RemoveAllForApp(failing)
	restarted := workload.RestartApp(failing)

	failing.RemainingWork = 0
	failing.Completed = true

	// Splice the new instance in before shrinking the old one's planner
	// end: UpdateEnd's shrink path calls RescheduleFrom internally, and
	// it must see the restarted instance already pending to place it
	// immediately, ahead of any other app still waiting for placement.
	r.System.Apps = append([]*workload.App{restarted}, r.System.Apps...)

	if failing.EndDate.Defined() {
		r.Planner.UpdateEnd(failing, now)
	}
	return restarted
}
