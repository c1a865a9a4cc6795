package iomodel

import (
	"sort"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/event"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// OrderedIOBlockingFCFS serialises every I/O and checkpoint onto one
// global lane. Compute blocks for the entire queued wait, the simplest
// and most pessimistic of the five models.
type OrderedIOBlockingFCFS struct {
	Queue        *event.Queue
	dateOfLastIO simtime.Time
}

func NewOrderedIOBlockingFCFS(q *event.Queue) *OrderedIOBlockingFCFS {
	return &OrderedIOBlockingFCFS{Queue: q}
}

func (m *OrderedIOBlockingFCFS) enqueue(now simtime.Time, duration simtime.Time, kind event.Kind, app *workload.App) simtime.Time {
	start := maxTime(now, m.dateOfLastIO)
	end := start + duration
	m.dateOfLastIO = end
	m.Queue.Insert(&event.Event{Kind: kind, Date: end, App: app})
	return end
}

func (m *OrderedIOBlockingFCFS) StartIO(now simtime.Time, app *workload.App) {
	m.enqueue(now, app.RemainingIO, event.IoEnd, app)
}

func (m *OrderedIOBlockingFCFS) EndIO(now simtime.Time, app *workload.App) {
	app.RemainingIO = 0
}

func (m *OrderedIOBlockingFCFS) StartCkpt(now simtime.Time, app *workload.App) bool {
	app.RemainingIO = app.Class.CkptTime
	app.IsCheckpointing = true
	m.enqueue(now, app.RemainingIO, event.CkptEnd, app)
	return true
}

func (m *OrderedIOBlockingFCFS) EndCkpt(now simtime.Time, app *workload.App) bool {
	app.RemainingIO = 0
	app.IsCheckpointing = false
	app.CheckpointSuccess(now)
	return true
}

// OrderedIOFCFS keeps the same single-lane serialisation for data I/O,
// but lets compute continue while the lane is busy: a checkpoint request
// made while the lane is occupied is deferred to the lane's free time if
// the app has enough remaining work to cover the wait, or cancelled (in
// favour of scheduling the app's unavoidable final output) otherwise.
type OrderedIOFCFS struct {
	Queue        *event.Queue
	dateOfLastIO simtime.Time
}

func NewOrderedIOFCFS(q *event.Queue) *OrderedIOFCFS {
	return &OrderedIOFCFS{Queue: q}
}

func (m *OrderedIOFCFS) StartIO(now simtime.Time, app *workload.App) {
	start := maxTime(now, m.dateOfLastIO)
	end := start + app.RemainingIO
	m.dateOfLastIO = end
	m.Queue.Insert(&event.Event{Kind: event.IoEnd, Date: end, App: app})
}

func (m *OrderedIOFCFS) EndIO(now simtime.Time, app *workload.App) {
	app.RemainingIO = 0
}

func (m *OrderedIOFCFS) StartCkpt(now simtime.Time, app *workload.App) bool {
	if app.IsCheckpointing {
		// The CkptStart this model posted when it deferred the request:
		// its lane slot and CkptEnd are already reserved, so it starts now.
		app.RemainingIO = app.Class.CkptTime
		return true
	}
	if m.dateOfLastIO <= now {
		app.RemainingIO = app.Class.CkptTime
		app.IsCheckpointing = true
		end := now + app.RemainingIO
		m.dateOfLastIO = end
		m.Queue.Insert(&event.Event{Kind: event.CkptEnd, Date: end, App: app})
		return true
	}

	tail := m.dateOfLastIO
	wait := tail - now
	realRemainingWork := app.RemainingWork
	if app.Working {
		realRemainingWork -= now - app.DateStartWork
	}
	if realRemainingWork > wait {
		app.IsCheckpointing = true
		m.Queue.Insert(&event.Event{Kind: event.CkptStart, Date: tail, App: app})
		end := tail + app.Class.CkptTime
		m.Queue.Insert(&event.Event{Kind: event.CkptEnd, Date: end, App: app})
		m.dateOfLastIO = end
		return false
	}

	finalStart := app.DateStartWork + app.RemainingWork
	app.RemainingIO = app.Class.OutputTime
	m.Queue.Insert(&event.Event{Kind: event.IoStart, Date: finalStart, App: app})
	return false
}

func (m *OrderedIOFCFS) EndCkpt(now simtime.Time, app *workload.App) bool {
	app.RemainingIO = 0
	app.IsCheckpointing = false
	app.CheckpointSuccess(now)
	return true
}

// request is one pending I/O or checkpoint waiting for the single lane
// in OrderedIOCoop.
type request struct {
	app         *workload.App
	isCkpt      bool
	size        simtime.Time
	requestedAt simtime.Time
}

// OrderedIOCoop serialises I/O onto one lane like the FCFS models, but
// at every EndIO picks whichever pending request minimises the estimated
// aggregate work other apps would lose while it runs, per the cost
// heuristic in SPEC_FULL.md 5.4.
type OrderedIOCoop struct {
	Queue        *event.Queue
	MTBFInd      simtime.Time
	dateOfLastIO simtime.Time
	pending      map[*workload.App]*request
}

func NewOrderedIOCoop(q *event.Queue, mtbfInd simtime.Time) *OrderedIOCoop {
	return &OrderedIOCoop{Queue: q, MTBFInd: mtbfInd, pending: map[*workload.App]*request{}}
}

func (m *OrderedIOCoop) StartIO(now simtime.Time, app *workload.App) {
	m.pending[app] = &request{app: app, isCkpt: false, size: app.RemainingIO, requestedAt: now}
	m.runNext(now)
}

// StartCkpt begins the checkpoint immediately if the lane is free
// (returning true so the caller stops compute now), or defers it into
// the pending set otherwise — compute keeps running until runNext
// actually dispatches this request, via a fresh CkptStart event, just
// like select_next_io_task re-entering start_ckpt through a new
// CkptStartTask.
func (m *OrderedIOCoop) StartCkpt(now simtime.Time, app *workload.App) bool {
	app.RemainingIO = app.Class.CkptTime
	app.IsCheckpointing = true
	if m.dateOfLastIO <= now {
		end := now + app.RemainingIO
		m.dateOfLastIO = end
		m.Queue.Insert(&event.Event{Kind: event.CkptEnd, Date: end, App: app})
		return true
	}
	m.pending[app] = &request{app: app, isCkpt: true, size: app.RemainingIO, requestedAt: now}
	return false
}

func (m *OrderedIOCoop) EndIO(now simtime.Time, app *workload.App) {
	app.RemainingIO = 0
	m.runNext(now)
}

func (m *OrderedIOCoop) EndCkpt(now simtime.Time, app *workload.App) bool {
	app.RemainingIO = 0
	app.IsCheckpointing = false
	app.CheckpointSuccess(now)
	m.runNext(now)
	return true
}

// delay is the time since r's request was issued (I/O) or since the
// owning app's last checkpoint / start of execution (checkpoints).
func (m *OrderedIOCoop) delay(now simtime.Time, r *request) simtime.Time {
	if !r.isCkpt {
		return now - r.requestedAt
	}
	ref := r.app.LastSuccessfulCkpt
	if !ref.Defined() {
		ref = r.app.DateStartWork
	}
	return now - ref
}

// cost estimates the aggregate work every other currently pending
// request would lose while req runs: each other request contributes
// using its own type and delay, not req's.
func (m *OrderedIOCoop) cost(now simtime.Time, req *request) float64 {
	var total float64
	size := float64(req.size)
	for _, other := range m.pending {
		if other.app == req.app {
			continue
		}
		d := float64(m.delay(now, other))
		if other.isCkpt {
			total += float64(other.app.NbNodes) * (d + size)
			continue
		}
		total += float64(other.app.NbNodes*other.app.NbNodes) * size / float64(m.MTBFInd) *
			(float64(other.app.Class.CkptTime) + d + size/2)
	}
	return total
}

func (m *OrderedIOCoop) pickNext(now simtime.Time) *request {
	if len(m.pending) == 0 {
		return nil
	}
	var reqs []*request
	for _, r := range m.pending {
		reqs = append(reqs, r)
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].app.AppIndex != reqs[j].app.AppIndex {
			return reqs[i].app.AppIndex < reqs[j].app.AppIndex
		}
		return reqs[i].app.InstanceIndex < reqs[j].app.InstanceIndex
	})
	best := reqs[0]
	bestCost := m.cost(now, best)
	for _, r := range reqs[1:] {
		c := m.cost(now, r)
		if c < bestCost {
			best, bestCost = r, c
		}
	}
	return best
}

func (m *OrderedIOCoop) runNext(now simtime.Time) {
	if m.dateOfLastIO > now {
		return
	}
	r := m.pickNext(now)
	if r == nil {
		return
	}
	delete(m.pending, r.app)
	end := now + r.size
	if r.isCkpt {
		// Re-enter through CkptStart so sim.go stops r.app's compute at
		// the instant its checkpoint actually begins, rather than the
		// instant it was only requested.
		m.Queue.Insert(&event.Event{Kind: event.CkptStart, Date: now, App: r.app})
	} else {
		m.dateOfLastIO = end
		m.Queue.Insert(&event.Event{Kind: event.IoEnd, Date: end, App: r.app})
	}

	// Sweep remaining checkpoint requests: cancel any whose owning app
	// would have no time left to run a deferred checkpoint after r, and
	// schedule that app's final output instead.
	for app, pr := range m.pending {
		if !pr.isCkpt {
			continue
		}
		if app.RemainingWork <= end-now {
			delete(m.pending, app)
			app.IsCheckpointing = false
			app.RemainingIO = app.Class.OutputTime
			finalStart := app.DateStartWork + app.RemainingWork
			m.Queue.Insert(&event.Event{Kind: event.IoStart, Date: finalStart, App: app})
		}
	}
}
