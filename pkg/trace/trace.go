// Package trace defines the simulator's event sink interface and its two
// concrete implementations: StatTrace (windowed node-second statistics,
// the one consumed by cmd/ckptsim's stdout summary) and PNGTrace (a
// schedule visualisation written on Close).
package trace

import (
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// Action categorises one interval of an app's lifetime for accounting.
type Action int

const (
	Work Action = iota
	IO
	Ckpt
	Wasted
)

// Trace receives one record per completed interval of app activity, plus
// a retroactive correction when a fault strikes mid-interval.
type Trace interface {
	Record(app *workload.App, action Action, start, duration simtime.Time)
	InterruptAction(app *workload.App, now simtime.Time)
	Close() error
}
