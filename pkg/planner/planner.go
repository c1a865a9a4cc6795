// Package planner implements the backfill occupancy timeline: a
// time-ordered sequence of node-occupancy snapshots, and the placement
// operations (Fit, RescheduleFrom, UpdateEnd, RemoveEventsAtDate) that
// keep it consistent as apps start, end, grow, shrink or get torn down by
// a fault. Every invariant violation here is a logic fault — it panics,
// it never tries to "recover" a corrupted timeline.
package planner

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// Snapshot is a planner entry valid from its key time up to the next
// entry's key (or forever, for the last entry). It mirrors SchedEvent.
type Snapshot struct {
	Occ  []bool
	Apps map[*workload.App]struct{}
}

func newSnapshot(nbNodes int) *Snapshot {
	return &Snapshot{Occ: make([]bool, nbNodes), Apps: map[*workload.App]struct{}{}}
}

func (s *Snapshot) clone() *Snapshot {
	occ := make([]bool, len(s.Occ))
	copy(occ, s.Occ)
	apps := make(map[*workload.App]struct{}, len(s.Apps))
	for a := range s.Apps {
		apps[a] = struct{}{}
	}
	return &Snapshot{Occ: occ, Apps: apps}
}

// Planner is the ordered time -> Snapshot timeline for one System.
type Planner struct {
	system    *workload.System
	nbNodes   int
	times     []simtime.Time
	snapshots map[simtime.Time]*Snapshot
}

// New builds a Planner seeded with a single, all-free snapshot at t=0,
// matching Schedule::Schedule.
func New(system *workload.System) *Planner {
	p := &Planner{system: system, nbNodes: system.NbNodes}
	p.Clear()
	return p
}

// Clear resets the timeline to its initial single, all-free snapshot.
func (p *Planner) Clear() {
	p.times = []simtime.Time{0}
	p.snapshots = map[simtime.Time]*Snapshot{0: newSnapshot(p.nbNodes)}
}

// floorIndex returns the index of the latest time <= t, or -1 if every
// known time is after t.
func (p *Planner) floorIndex(t simtime.Time) int {
	i := sort.Search(len(p.times), func(i int) bool { return p.times[i] > t })
	return i - 1
}

func (p *Planner) snapshotAt(t simtime.Time) *Snapshot {
	idx := p.floorIndex(t)
	if idx < 0 {
		panic(errors.Errorf("planner: no snapshot covers time %d", t))
	}
	return p.snapshots[p.times[idx]]
}

// ensureSnapshotAt returns the snapshot keyed exactly at t, creating one
// derived (cloned) from its floor predecessor if none exists yet. A newly
// inserted mid-timeline snapshot is, by construction, identical to its
// predecessor until the caller mutates it — preserving the invariant that
// consecutive snapshots differ only where an app starts or ends.
func (p *Planner) ensureSnapshotAt(t simtime.Time) *Snapshot {
	if snap, ok := p.snapshots[t]; ok {
		return snap
	}
	pred := p.snapshotAt(t)
	snap := pred.clone()
	p.snapshots[t] = snap
	idx := sort.Search(len(p.times), func(i int) bool { return p.times[i] >= t })
	p.times = append(p.times, 0)
	copy(p.times[idx+1:], p.times[idx:])
	p.times[idx] = t
	return snap
}

// timesIn returns the snapshot keys with key in [from, to).
func (p *Planner) timesIn(from, to simtime.Time) []simtime.Time {
	lo := sort.Search(len(p.times), func(i int) bool { return p.times[i] >= from })
	hi := sort.Search(len(p.times), func(i int) bool { return p.times[i] >= to })
	return p.times[lo:hi]
}

// nodeRemainsFree reports whether node n is free across every snapshot
// overlapping [from, to).
func (p *Planner) nodeRemainsFree(n int, from, to simtime.Time) bool {
	idx := p.floorIndex(from)
	for idx < len(p.times) && p.times[idx] < to {
		if p.snapshots[p.times[idx]].Occ[n] {
			return false
		}
		idx++
	}
	return true
}

// Fit returns the node indices app would occupy starting at t, or false
// if no non-migrating placement exists. See DESIGN.md Open Question #1:
// the fast pre-pass below is a faithful, deliberately single-candidate-set
// port of the original's effectively single-pass "fast" branch.
func (p *Planner) Fit(app *workload.App, t simtime.Time) ([]int, bool) {
	snap := p.snapshotAt(t)
	candidates := make([]int, 0, app.NbNodes)
	for i := 0; i < p.nbNodes && len(candidates) < app.NbNodes; i++ {
		if !snap.Occ[i] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == app.NbNodes {
		allFree := true
		for _, n := range candidates {
			if !p.nodeRemainsFree(n, t, t+app.WallTime) {
				allFree = false
				break
			}
		}
		if allFree {
			return candidates, true
		}
	}

	survivors := make([]int, 0, app.NbNodes)
	for n := 0; n < p.nbNodes && len(survivors) < app.NbNodes; n++ {
		if p.nodeRemainsFree(n, t, t+app.WallTime) {
			survivors = append(survivors, n)
		}
	}
	if len(survivors) < app.NbNodes {
		return nil, false
	}
	return survivors, true
}

// place splices app into the timeline across [start, start+app.WallTime).
func (p *Planner) place(app *workload.App, start simtime.Time, nodes []int) {
	end := start + app.WallTime

	startSnap := p.ensureSnapshotAt(start)
	for _, n := range nodes {
		if startSnap.Occ[n] {
			panic(errors.Errorf("planner: node %d double-booked at t=%d", n, start))
		}
		startSnap.Occ[n] = true
	}
	startSnap.Apps[app] = struct{}{}

	for _, t := range p.timesIn(start+1, end) {
		snap := p.snapshots[t]
		for _, n := range nodes {
			snap.Occ[n] = true
		}
		snap.Apps[app] = struct{}{}
	}

	endSnap := p.ensureSnapshotAt(end)
	for _, n := range nodes {
		endSnap.Occ[n] = false
	}
	delete(endSnap.Apps, app)

	app.Nodes = nodes
	app.StartDate = start
	app.EndDate = end
}

// RescheduleFrom places every app in the System's workload that has no
// start date yet, scanning forward from t for the earliest snapshot that
// accepts it. Apps that cannot be placed anywhere are left pending.
func (p *Planner) RescheduleFrom(t simtime.Time) {
	for _, app := range p.system.Apps {
		if app.StartDate.Defined() {
			continue
		}
		p.placeOne(app, t)
	}
}

func (p *Planner) placeOne(app *workload.App, from simtime.Time) {
	idx := p.floorIndex(from)
	if idx < 0 {
		idx = 0
	}
	candidate := from
	for {
		if nodes, ok := p.Fit(app, candidate); ok {
			p.place(app, candidate, nodes)
			return
		}
		nextIdx := idx + 1
		if nextIdx >= len(p.times) {
			// Last snapshot is always all-free (invariant 4); Fit must
			// have succeeded there. Reaching here means nbNodes exceeds
			// the machine size entirely — leave pending.
			return
		}
		idx = nextIdx
		candidate = p.times[nextIdx]
	}
}

// UpdateEnd moves app's end date, splicing a terminator snapshot and
// (for a shrink) calling RescheduleFrom to backfill the freed space. A
// call with newEnd == app.EndDate is a no-op, by construction below.
func (p *Planner) UpdateEnd(app *workload.App, newEnd simtime.Time) {
	if newEnd == app.EndDate {
		return
	}
	oldEnd := app.EndDate
	if newEnd < oldEnd {
		p.shrink(app, oldEnd, newEnd)
	} else {
		p.grow(app, oldEnd, newEnd)
	}
	app.EndDate = newEnd
}

func (p *Planner) shrink(app *workload.App, oldEnd, newEnd simtime.Time) {
	for _, t := range p.timesIn(newEnd, oldEnd) {
		snap := p.snapshots[t]
		for _, n := range app.Nodes {
			snap.Occ[n] = false
		}
		delete(snap.Apps, app)
	}
	terminator := p.ensureSnapshotAt(newEnd)
	for _, n := range app.Nodes {
		terminator.Occ[n] = false
	}
	delete(terminator.Apps, app)

	p.RescheduleFrom(newEnd)
}

func (p *Planner) grow(app *workload.App, oldEnd, newEnd simtime.Time) {
	// Backfill routinely places other pending apps into the space freed
	// at app's projected end date; evict them before claiming the
	// window so an undershot wall-time estimate doesn't double-book.
	p.RemoveEventsAtDate(oldEnd)
	for _, t := range p.timesIn(oldEnd, newEnd) {
		snap := p.snapshots[t]
		for _, n := range app.Nodes {
			if snap.Occ[n] {
				panic(errors.Errorf("planner: node %d double-booked growing app end to %d", n, newEnd))
			}
			snap.Occ[n] = true
		}
		snap.Apps[app] = struct{}{}
	}
	terminator := p.ensureSnapshotAt(newEnd)
	for _, n := range app.Nodes {
		terminator.Occ[n] = false
	}
	delete(terminator.Apps, app)

	p.RescheduleFrom(oldEnd)
}

// RemoveEventsAtDate unplaces every app whose start date is at or after t,
// treating them as pending candidates for replanning. Apps that started
// before t keep their snapshots untouched.
func (p *Planner) RemoveEventsAtDate(t simtime.Time) {
	for _, app := range p.system.Apps {
		if !app.StartDate.Defined() || app.StartDate < t {
			continue
		}
		for _, ts := range p.timesIn(app.StartDate, app.EndDate) {
			snap := p.snapshots[ts]
			for _, n := range app.Nodes {
				snap.Occ[n] = false
			}
			delete(snap.Apps, app)
		}
		app.StartDate = simtime.Undefined
		app.EndDate = simtime.Undefined
		app.Nodes = nil
	}
}

// AppAtNode returns the app occupying node n at time t, if any — the
// lookup the fault generator uses to decide whether a NodeFault is
// harmless or lands on a running app.
func (p *Planner) AppAtNode(t simtime.Time, n int) (*workload.App, bool) {
	snap := p.snapshotAt(t)
	if !snap.Occ[n] {
		return nil, false
	}
	for app := range snap.Apps {
		for _, node := range app.Nodes {
			if node == n {
				return app, true
			}
		}
	}
	return nil, false
}

// CheckInvariants verifies two planner invariants: every snapshot's
// occupied-node count equals the node total of the apps it lists, and the
// last snapshot is empty. It returns a descriptive error for the first
// violation found; it does not check that each app's own nodes are marked
// occupied.
func (p *Planner) CheckInvariants() error {
	for i, t := range p.times {
		snap := p.snapshots[t]
		occupiedCount := 0
		for _, b := range snap.Occ {
			if b {
				occupiedCount++
			}
		}
		wantOccupied := 0
		for a := range snap.Apps {
			wantOccupied += a.NbNodes
		}
		if occupiedCount != wantOccupied {
			return errors.Errorf("planner: snapshot at t=%d has %d occupied nodes but apps account for %d", t, occupiedCount, wantOccupied)
		}
		if i == len(p.times)-1 {
			if occupiedCount != 0 || len(snap.Apps) != 0 {
				return errors.Errorf("planner: terminal snapshot at t=%d is not empty", t)
			}
		}
	}
	return nil
}
