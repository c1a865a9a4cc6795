package trace

import (
	"math"

	"github.com/pkg/errors"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/rng"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

type entry struct {
	app      *workload.App
	action   Action
	start    simtime.Time
	duration simtime.Time
}

// Stat is one windowed node-second accounting result, in simtime units
// (the caller divides by simtime.Unit to report seconds).
type Stat struct {
	Work, IO, Ckpt, Wasted, Total simtime.Time
}

// StatTrace accumulates every recorded interval and answers GetStat over
// a randomly placed window, mirroring StatTrace::getStat.
type StatTrace struct {
	entries     []entry
	lastEvent   simtime.Time
	IgnoreStart float64
	IgnoreEnd   float64
}

// NewStatTrace returns a StatTrace with the original's default ignore
// ratios: the first 10% and last 10% of the run are excluded from the
// statistical window to avoid startup/drain transients.
func NewStatTrace() *StatTrace {
	return &StatTrace{IgnoreStart: 0.1, IgnoreEnd: 0.9}
}

func (s *StatTrace) Record(app *workload.App, action Action, start, duration simtime.Time) {
	s.entries = append(s.entries, entry{app: app, action: action, start: start, duration: duration})
	if end := start + duration; end > s.lastEvent {
		s.lastEvent = end
	}
}

// InterruptAction retroactively relabels the most recent contiguous run
// of this app's entries as Wasted, stopping at (and not touching) the
// first Ckpt-typed entry encountered walking backward — checkpoint I/O
// before a fault is not wasted, the compute since the last successful
// checkpoint is.
func (s *StatTrace) InterruptAction(app *workload.App, now simtime.Time) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := &s.entries[i]
		if e.app != app {
			continue
		}
		if e.action == Ckpt {
			return
		}
		e.action = Wasted
	}
}

// GetStat draws a window of length intvLength from
// [IgnoreStart*last, IgnoreEnd*last] at a uniformly chosen offset, and
// returns the node-second totals per category over that window.
func (s *StatTrace) GetStat(intvLength simtime.Time, seed *rng.Stream) (Stat, error) {
	last := float64(s.lastEvent)
	lo := s.IgnoreStart * last
	hi := s.IgnoreEnd * last
	admissible := (hi - lo) - float64(intvLength)
	if admissible < 0 {
		return Stat{}, errors.New("Interval too big")
	}
	offset := lo + seed.Float64()*admissible
	windowStart := simtime.Time(math.Round(offset))
	windowEnd := windowStart + intvLength

	var stat Stat
	for _, e := range s.entries {
		overlap := overlapDuration(e.start, e.start+e.duration, windowStart, windowEnd)
		if overlap <= 0 {
			continue
		}
		amount := overlap * simtime.Time(e.app.NbNodes)
		switch e.action {
		case Work:
			stat.Work += amount
		case IO:
			stat.IO += amount
		case Ckpt:
			stat.Ckpt += amount
		case Wasted:
			stat.Wasted += amount
		}
		stat.Total += amount
	}
	return stat, nil
}

func overlapDuration(aStart, aEnd, bStart, bEnd simtime.Time) simtime.Time {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

func (s *StatTrace) Close() error { return nil }
