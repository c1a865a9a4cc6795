package workload

import (
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/cache"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
)

// AppClassSpec is the declarative template an operator writes down: node
// count and volume percentages (of machine-scaled memory), expressed the
// way the original CLI and config file express them, before any of it has
// been turned into simulated time.
type AppClassSpec struct {
	NbCores      int
	InputPct     float64
	OutputPct    float64
	WallSeconds  float64
	IOPct        float64
	CkptPct      float64
	TargetShare  float64
}

// AppClass is an AppClassSpec with its durations derived against a
// specific System's bandwidth figures. ClassID is assigned sequentially
// by System.AddAppClass, mirroring the original's class_id numbering.
type AppClass struct {
	ClassID int
	NbNodes int

	WallTime     simtime.Time
	InputTime    simtime.Time
	OutputTime   simtime.Time
	IOTime       simtime.Time
	CkptTime     simtime.Time
	BBCkptTime   simtime.Time

	TargetShare float64

	system *System
}

// deriveDurations computes the AppClass's time fields from its volume
// percentages and the owning System's bandwidths, memoized per distinct
// input tuple via the System's duration cache.
func deriveDurations(sys *System, spec AppClassSpec, appSize int) cache.Durations {
	return sys.durationCache.GetOrCompute(cache.DurationInputs{
		NbCores:      spec.NbCores,
		InputPct:     spec.InputPct,
		OutputPct:    spec.OutputPct,
		IOPct:        spec.IOPct,
		CkptPct:      spec.CkptPct,
		Bandwidth:    sys.Bandwidth,
		BBBandwidth:  sys.BBBandwidth,
		MemPerNode:   sys.MemPerNode,
		CoresPerNode: sys.CoresPerNode,
	}, func(in cache.DurationInputs) cache.Durations {
		inputSize := float64(appSize) * in.MemPerNode * in.InputPct
		outputSize := float64(appSize) * in.MemPerNode * in.OutputPct
		ioSize := float64(appSize) * in.MemPerNode * in.IOPct
		ckptSize := float64(appSize) * in.MemPerNode * in.CkptPct

		return cache.Durations{
			InputTime:  int64(simtime.CeilDiv(float64(simtime.Unit)*inputSize, in.Bandwidth)),
			OutputTime: int64(simtime.CeilDiv(float64(simtime.Unit)*outputSize, in.Bandwidth)),
			IOTime:     int64(simtime.CeilDiv(float64(simtime.Unit)*ioSize, in.Bandwidth)),
			CkptTime:   int64(simtime.CeilDiv(float64(simtime.Unit)*ckptSize, in.Bandwidth)),
			BBCkptTime: int64(simtime.CeilDiv(float64(simtime.Unit)*ckptSize/float64(appSize), in.BBBandwidth)),
		}
	})
}
