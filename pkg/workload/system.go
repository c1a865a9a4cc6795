// Package workload holds the declarative machine/workload model: System,
// AppClass and App, plus the population algorithm that turns a target
// resource-share mix into a concrete list of App instances. It is
// deliberately free of any event-queue or planner dependency — those
// consume App, they don't define it — so this package only ever needs
// pkg/simtime, pkg/rng and pkg/cache.
package workload

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/cache"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/rng"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
)

// System is the immutable-once-finalized machine description: node count,
// per-node resources, bandwidths and the MTBF the fault generator draws
// against.
type System struct {
	Name         string
	NbNodes      int
	CoresPerNode int
	Bandwidth    float64
	BBBandwidth  float64
	MemPerNode   float64

	// MTBFInd is the per-node mean time between failures, derived once at
	// construction as systemMTBF * NbNodes (the original's mtbf_ind).
	MTBFInd simtime.Time

	// FixedCheckpointInterval overrides Daly's formula when Defined.
	FixedCheckpointInterval simtime.Time

	// MinDuration is the minimum simulated run length used by the
	// population algorithm and by the CLI's safety cap (20x this value).
	MinDuration simtime.Time

	Classes []*AppClass
	Apps    []*App

	finalized     bool
	nextClassID   int
	durationCache *cache.DerivationCache
}

// NewSystem builds a System. systemMTBFSeconds is the *system-wide* MTBF
// in seconds (as the CLI's -m flag expresses it); the per-node MTBFInd is
// derived as systemMTBFSeconds * nbNodes, matching the original's
// `mtbf_ind(ceil(_mtbf_sys*nb_nodes*TIME_UNIT))`.
func NewSystem(name string, nbNodes, coresPerNode int, bandwidth, bbBandwidth, memPerNode, systemMTBFSeconds, minDurationSeconds float64) *System {
	return &System{
		Name:                    name,
		NbNodes:                 nbNodes,
		CoresPerNode:            coresPerNode,
		Bandwidth:               bandwidth,
		BBBandwidth:             bbBandwidth,
		MemPerNode:              memPerNode,
		MTBFInd:                 simtime.FromSeconds(systemMTBFSeconds * float64(nbNodes)),
		FixedCheckpointInterval: simtime.Undefined,
		MinDuration:             simtime.FromSeconds(minDurationSeconds),
		durationCache:           cache.New(),
	}
}

// AddAppClass derives a new AppClass from spec and appends it to the
// System's class list, mirroring System::add_app_class.
func (s *System) AddAppClass(spec AppClassSpec) *AppClass {
	appSize := spec.NbCores / s.CoresPerNode
	d := deriveDurations(s, spec, appSize)

	ac := &AppClass{
		ClassID:     s.nextClassID,
		NbNodes:     appSize,
		WallTime:    simtime.FromSeconds(spec.WallSeconds),
		InputTime:   simtime.Time(d.InputTime),
		OutputTime:  simtime.Time(d.OutputTime),
		IOTime:      simtime.Time(d.IOTime),
		CkptTime:    simtime.Time(d.CkptTime),
		BBCkptTime:  simtime.Time(d.BBCkptTime),
		TargetShare: spec.TargetShare,
		system:      s,
	}
	s.nextClassID++
	s.Classes = append(s.Classes, ac)
	return ac
}

// SetFixedCheckpointInterval overrides Daly's formula with a fixed
// interval, in seconds.
func (s *System) SetFixedCheckpointInterval(seconds float64) {
	if seconds < 0 {
		panic(errors.New("workload: negative checkpoint interval"))
	}
	s.FixedCheckpointInterval = simtime.FromSeconds(seconds)
}

// SetDalyCheckpointInterval reverts to Daly's formula.
func (s *System) SetDalyCheckpointInterval() {
	s.FixedCheckpointInterval = simtime.Undefined
}

// MTBFPerApp returns the per-node MTBF scaled for an app of nbNodes nodes,
// i.e. mtbf_ind / nbNodes.
func (s *System) MTBFPerApp(nbNodes int) simtime.Time {
	return simtime.Time(float64(s.MTBFInd) / float64(nbNodes))
}

// Clear does nothing: System holds no per-run state, and the
// already-finalized workload is left as it is.
func (s *System) Clear() {}

// Finalize (re)populates s.Apps. On the first call it runs the full
// resource-share balancing loop (System::finalize's "else" branch); on
// every subsequent call (starting a new replication) it redraws every
// instance-0 app in place and drops any leftover restarted instances,
// matching the original's idempotent-refinalize behavior.
func (s *System) Finalize(streams rng.Streams) {
	if s.finalized {
		kept := s.Apps[:0]
		for _, a := range s.Apps {
			if a.InstanceIndex == 0 {
				a.Reset(streams.AppOrder)
				kept = append(kept, a)
			}
		}
		s.Apps = kept
		return
	}
	s.populate(streams.AppOrder)
	s.finalized = true
}

// populate runs the greedy weighted-random resource-share balancing loop
// from System::finalize's first-time branch.
func (s *System) populate(appOrder *rng.Stream) {
	if len(s.Classes) == 0 {
		s.Apps = nil
		return
	}
	sum := lo.SumBy(s.Classes, func(c *AppClass) float64 { return c.TargetShare })
	for _, c := range s.Classes {
		c.TargetShare = c.TargetShare / sum
	}

	currentResource := make([]float64, len(s.Classes))
	var resourceSum float64

restart:
	s.Apps = nil
	for i := range currentResource {
		currentResource[i] = 0
	}
	resourceSum = 0

	for {
		if resourceSum/float64(s.NbNodes) > 2*float64(s.MinDuration) {
			goto restart
		}

		goals := lo.Filter(s.Classes, func(c *AppClass, i int) bool {
			return resourceSum/float64(s.NbNodes) < float64(s.MinDuration) ||
				currentResource[i]/resourceSum < c.TargetShare
		})
		if len(goals) == 0 {
			goals = lo.Filter(s.Classes, func(c *AppClass, i int) bool {
				return currentResource[i]/resourceSum < c.TargetShare+0.01
			})
		}

		picked := s.pickClass(goals, appOrder)
		app := NewApp(picked, appOrder)
		s.Apps = append(s.Apps, app)

		resource := float64(app.NbNodes) * float64(app.WallTime)
		idx := picked.ClassID
		currentResource[idx] += resource
		resourceSum += resource

		converged := true
		for i, c := range s.Classes {
			ratio := currentResource[i] / resourceSum
			if ratio < c.TargetShare-0.01 || ratio > c.TargetShare+0.01 {
				converged = false
				break
			}
		}
		if resourceSum/float64(s.NbNodes) >= float64(s.MinDuration) && converged {
			break
		}
	}
}

// pickClass performs a weighted-random pick among goals by TargetShare,
// mirroring System::pick_class.
func (s *System) pickClass(goals []*AppClass, appOrder *rng.Stream) *AppClass {
	var weight float64
	cum := make([]float64, len(goals))
	for i, c := range goals {
		weight += c.TargetShare
		cum[i] = weight
	}
	coin := weight * appOrder.Float64()
	for i, c := range goals {
		if coin <= cum[i] {
			return c
		}
	}
	// Floating point rounding can leave coin fractionally above the last
	// cumulative bound; the last goal is the only sound fallback.
	return goals[len(goals)-1]
}

// CkptIntervalFor returns the checkpoint interval an App with nbNodes
// nodes should use: the fixed override if set, else Daly's formula.
func (s *System) CkptIntervalFor(nbNodes int, ckptTime simtime.Time) simtime.Time {
	if s.FixedCheckpointInterval.Defined() {
		return s.FixedCheckpointInterval
	}
	return simtime.DalyInterval(s.MTBFPerApp(nbNodes), ckptTime)
}
