package iomodel

import (
	"math"

	"github.com/pkg/errors"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/event"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// SimpleInterference models fair-share contention: every concurrently
// active issuer's rate is its node count divided by the total node count
// of all active issuers. A rate change retroactively drains every active
// issuer's remaining_io for the epoch that just ended, then reschedules
// every completion event at the new rate.
type SimpleInterference struct {
	Queue  *event.Queue
	active map[*workload.App]*event.Event

	lastChange simtime.Time
}

func NewSimpleInterference(q *event.Queue) *SimpleInterference {
	return &SimpleInterference{Queue: q, active: map[*workload.App]*event.Event{}}
}

func (m *SimpleInterference) totalActiveNodes() int {
	sum := 0
	for a := range m.active {
		sum += a.NbNodes
	}
	return sum
}

// updateRemainingIOs drains every active issuer's remaining_io by its
// current rate over the epoch [lastChange, now), matching
// SimSimpleInterference::update_remaining_ios's overdraw guard exactly
// (see DESIGN.md Open Question #3 — the 1-time-unit slack is preserved
// unexplained).
func (m *SimpleInterference) updateRemainingIOs(now simtime.Time) {
	delta := now - m.lastChange
	for a := range m.active {
		drained := simtime.Time(math.Ceil(float64(delta) * a.CurrentIORate))
		if drained > a.RemainingIO+simtime.Unit {
			panic(errors.Errorf("iomodel: io rate epoch overdrew app %d's remaining_io", a.AppIndex))
		}
		a.RemainingIO -= drained
		if a.RemainingIO < 0 {
			a.RemainingIO = 0
		}
	}
	m.lastChange = now
}

// rescheduleEndIOs recomputes every active issuer's rate and posts a
// fresh completion event for it, cancelling whatever was pending before.
func (m *SimpleInterference) rescheduleEndIOs(now simtime.Time) {
	total := m.totalActiveNodes()
	if total == 0 {
		return
	}
	for a, pending := range m.active {
		rate := float64(a.NbNodes) / float64(total)
		a.CurrentIORate = rate
		if pending != nil {
			m.Queue.Remove(pending)
		}
		kind := event.IoEnd
		if a.IsCheckpointing {
			kind = event.CkptEnd
		}
		dur := simtime.Time(math.Floor(float64(a.RemainingIO) / rate))
		m.active[a] = m.Queue.Insert(&event.Event{Kind: kind, Date: now + dur, App: a})
	}
}

func (m *SimpleInterference) StartIO(now simtime.Time, app *workload.App) {
	m.updateRemainingIOs(now)
	m.active[app] = nil
	m.rescheduleEndIOs(now)
}

func (m *SimpleInterference) EndIO(now simtime.Time, app *workload.App) {
	m.updateRemainingIOs(now)
	if pending := m.active[app]; pending != nil {
		m.Queue.Remove(pending)
	}
	delete(m.active, app)
	app.RemainingIO = 0
	m.rescheduleEndIOs(now)
}

func (m *SimpleInterference) StartCkpt(now simtime.Time, app *workload.App) bool {
	app.RemainingIO = app.Class.CkptTime
	app.IsCheckpointing = true
	m.StartIO(now, app)
	return true
}

func (m *SimpleInterference) EndCkpt(now simtime.Time, app *workload.App) bool {
	m.EndIO(now, app)
	app.IsCheckpointing = false
	app.CheckpointSuccess(now)
	return true
}

// SimpleInterferenceWithBurstBuffers splits a checkpoint into an
// instantaneous-to-local-memory stage (duration bb_ckpt_time, no
// contention) followed by a burst-buffer-to-PFS drain that contends
// exactly like SimpleInterference.
type SimpleInterferenceWithBurstBuffers struct {
	*SimpleInterference
}

func NewSimpleInterferenceWithBurstBuffers(q *event.Queue) *SimpleInterferenceWithBurstBuffers {
	return &SimpleInterferenceWithBurstBuffers{SimpleInterference: NewSimpleInterference(q)}
}

// StartCkpt begins the local BB stage: compute pauses for BBCkptTime,
// then resumes (at the CkptIoEnd handler) while the slower PFS drain
// that StartCkptIO begins runs in the background.
func (m *SimpleInterferenceWithBurstBuffers) StartCkpt(now simtime.Time, app *workload.App) bool {
	app.IsCheckpointing = true
	m.Queue.Insert(&event.Event{Kind: event.CkptIoEnd, Date: now + app.Class.BBCkptTime, App: app})
	return true
}

// StartCkptIO begins the PFS-drain stage once the local BB write
// completes, entering the fair-share lane like any other I/O.
func (m *SimpleInterferenceWithBurstBuffers) StartCkptIO(now simtime.Time, app *workload.App) {
	app.RemainingIO = app.Class.CkptTime
	m.SimpleInterference.StartIO(now, app)
}

// EndCkptIO completes the local BB stage. It reports false: the
// checkpoint itself is still pending the PFS drain that StartCkptIO
// begins next, completed later via EndCkpt.
func (m *SimpleInterferenceWithBurstBuffers) EndCkptIO(now simtime.Time, app *workload.App) bool {
	return false
}

// CancelDrain aborts an in-flight PFS-drain for app, e.g. when the app
// reaches its final output and the drain would otherwise race it.
func (m *SimpleInterferenceWithBurstBuffers) CancelDrain(now simtime.Time, app *workload.App) {
	if pending, ok := m.active[app]; ok {
		if pending != nil {
			m.Queue.Remove(pending)
		}
		delete(m.active, app)
		m.rescheduleEndIOs(now)
	}
}

func (m *SimpleInterferenceWithBurstBuffers) EndCkpt(now simtime.Time, app *workload.App) bool {
	m.SimpleInterference.EndIO(now, app)
	app.IsCheckpointing = false
	app.CheckpointSuccess(now)
	return true
}
