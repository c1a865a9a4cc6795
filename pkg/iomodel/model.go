// Package iomodel implements the simulator's five interchangeable I/O
// interference models behind one interface. Every model owns the
// bookkeeping needed to turn "an app started an I/O or checkpoint" into
// the right completion event(s) on the shared queue; pkg/sim only ever
// calls through the interface and never inspects a model's internals.
package iomodel

import (
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/event"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// Model is the interference model interface every variant satisfies.
// StartCkpt/EndCkpt return whether the call actually started or
// completed a checkpoint; the fixed-order models may defer or cancel it.
type Model interface {
	StartIO(now simtime.Time, app *workload.App)
	EndIO(now simtime.Time, app *workload.App)
	StartCkpt(now simtime.Time, app *workload.App) bool
	EndCkpt(now simtime.Time, app *workload.App) bool
}

// CkptIOModel is implemented by models that split a checkpoint into a
// local burst-buffer stage and a separate PFS-drain stage.
type CkptIOModel interface {
	Model
	StartCkptIO(now simtime.Time, app *workload.App)
	EndCkptIO(now simtime.Time, app *workload.App) bool
}

func maxTime(a, b simtime.Time) simtime.Time {
	if a > b {
		return a
	}
	return b
}

// NoInterference lets every I/O run at full speed regardless of others.
type NoInterference struct {
	Queue *event.Queue
}

func NewNoInterference(q *event.Queue) *NoInterference {
	return &NoInterference{Queue: q}
}

func (m *NoInterference) StartIO(now simtime.Time, app *workload.App) {
	m.Queue.Insert(&event.Event{Kind: event.IoEnd, Date: now + app.RemainingIO, App: app})
}

func (m *NoInterference) EndIO(now simtime.Time, app *workload.App) {
	app.RemainingIO = 0
}

func (m *NoInterference) StartCkpt(now simtime.Time, app *workload.App) bool {
	app.RemainingIO = app.Class.CkptTime
	app.IsCheckpointing = true
	m.Queue.Insert(&event.Event{Kind: event.CkptEnd, Date: now + app.RemainingIO, App: app})
	return true
}

func (m *NoInterference) EndCkpt(now simtime.Time, app *workload.App) bool {
	app.RemainingIO = 0
	app.IsCheckpointing = false
	app.CheckpointSuccess(now)
	return true
}
