package sim

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// VerifyInvariants checks the planner's occupancy invariants for this
// replication's final state. Used by the CLI's -verify-invariants
// diagnostic mode, which runs this after every replication rather than
// trusting that a bug would always manifest as a panic mid-run.
func (s *Simulation) VerifyInvariants() error {
	if err := s.Planner.CheckInvariants(); err != nil {
		return errors.Wrap(err, "sim: invariant check failed")
	}
	return nil
}

// VerifyAll aggregates VerifyInvariants across every replication in sims,
// via multierr, reporting one error per failing simulation instead of
// stopping at the first. The CLI's -verify-invariants mode does not use
// it: it calls VerifyInvariants per model run and stops at the first error.
func VerifyAll(sims []*Simulation) error {
	var err error
	for i, s := range sims {
		if verr := s.VerifyInvariants(); verr != nil {
			err = multierr.Append(err, errors.Wrapf(verr, "replication %d", i))
		}
	}
	return err
}
