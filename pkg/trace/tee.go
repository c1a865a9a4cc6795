package trace

import (
	"go.uber.org/multierr"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// TeeTrace forwards every call to all of Sinks, so a run can feed both a
// StatTrace and a PNGTrace from the same simulation pass instead of
// running it twice.
type TeeTrace struct {
	Sinks []Trace
}

func (t TeeTrace) Record(app *workload.App, action Action, start, duration simtime.Time) {
	for _, sink := range t.Sinks {
		sink.Record(app, action, start, duration)
	}
}

func (t TeeTrace) InterruptAction(app *workload.App, now simtime.Time) {
	for _, sink := range t.Sinks {
		sink.InterruptAction(app, now)
	}
}

func (t TeeTrace) Close() error {
	var err error
	for _, sink := range t.Sinks {
		err = multierr.Append(err, sink.Close())
	}
	return err
}
