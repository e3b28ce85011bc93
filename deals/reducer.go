package deals

import (
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/proofs"
)

// Advance is the deal state machine: a pure reducer folding one ledger
// observation into a tracked deal. Applying the same observation twice yields
// the same deal and no duplicate submit effects, and observations older than
// the last applied height are discarded so a stale read can never regress
// status.
//
// Effects are requests, not accomplishments: the tracker executes them, and
// their outcome is only ever learned through later observations.
func Advance(d Deal, obs Observation) (Deal, []Effect, error) {
	if d.Status.IsTerminal() {
		return d, nil, nil
	}
	if obs.Height < d.LastAppliedHeight {
		// stale read delivered out of order
		return d, nil, nil
	}

	if err := checkConsistent(&d, obs); err != nil {
		return d, nil, err
	}

	// external termination observed during a poll wins from any state
	if obs.Status == types.DealStatusTerminated {
		d.Status = types.DealStatusTerminated
		d.LastAppliedHeight = obs.Height
		return d, nil, nil
	}

	// a missed window is terminal; the forfeiture itself is the ledger's
	// business, observed not enforced
	if d.Status == types.DealStatusProofMissed {
		d.Status = types.DealStatusTerminated
		d.LastAppliedHeight = obs.Height
		return d, nil, nil
	}

	var effects []Effect

	if d.Status == types.DealStatusProposed {
		if obs.Status == types.DealStatusActive && obs.StartBlock > 0 {
			d.StartBlock = obs.StartBlock
			d.Status = types.DealStatusActive
		} else {
			d.LastAppliedHeight = obs.Height
			return d, nil, nil
		}
	}

	if obs.Status == types.DealStatusCompleted {
		d.Status = types.DealStatusCompleted
		d.LastAppliedHeight = obs.Height
		return d, nil, nil
	}

	switch d.Status {
	case types.DealStatusActive, types.DealStatusProofAccepted:
		if obs.Height >= d.EndBlock() {
			d.Status = types.DealStatusCompleted
			break
		}
		w, err := proofs.WindowAt(d.StartBlock, d.Proposal.DealLength, d.Proposal.ProofFrequency, obs.Height)
		if err != nil {
			break
		}
		if w >= 1 && (d.ProvenWindow == nil || *d.ProvenWindow < w) {
			d.CurrentWindow = w
			d.Status = types.DealStatusAwaitingProof
			effects = awaitProof(&d, obs, effects)
		}

	case types.DealStatusAwaitingProof:
		effects = awaitProof(&d, obs, effects)
	}

	d.LastAppliedHeight = obs.Height
	return d, effects, nil
}

// awaitProof resolves the awaited window: acknowledge a landed proof, mark
// the window missed once its deadline passes, or emit a single submit effect.
func awaitProof(d *Deal, obs Observation, effects []Effect) []Effect {
	deadline := proofs.WindowDeadline(d.StartBlock, d.Proposal.ProofFrequency, d.CurrentWindow)

	if obs.ProofBlock != nil && *obs.ProofBlock < deadline {
		w := d.CurrentWindow
		d.ProvenWindow = &w
		d.Status = types.DealStatusProofAccepted
		if obs.Height >= d.EndBlock() {
			d.Status = types.DealStatusCompleted
		}
		return effects
	}

	if obs.Height >= deadline {
		d.Status = types.DealStatusProofMissed
		return effects
	}

	if len(obs.WindowSeed) == 0 {
		return effects
	}
	if d.SubmittedWindow != nil && *d.SubmittedWindow >= d.CurrentWindow {
		// already asked for this window; resubmission is never automatic
		return effects
	}
	w := d.CurrentWindow
	d.SubmittedWindow = &w
	return append(effects, Effect{
		Kind:      EffectSubmitProof,
		Challenge: proofs.DeriveChallenge(d.ID, d.CurrentWindow, obs.WindowSeed),
	})
}

// checkConsistent rejects observations that contradict immutable facts of
// the tracked deal. Such contradictions cannot be explained by reordering
// and poison the deal until reconciled manually.
func checkConsistent(d *Deal, obs Observation) error {
	if d.StartBlock > 0 && obs.StartBlock > 0 && obs.StartBlock != d.StartBlock {
		return xerrors.Errorf("deal %s: observed start block %d, tracked %d: %w",
			d.ID, obs.StartBlock, d.StartBlock, ErrStateConflict)
	}
	if d.Status != types.DealStatusProposed && obs.Status == types.DealStatusProposed && d.StartBlock > 0 {
		return xerrors.Errorf("deal %s: ledger reports unaccepted offer for started deal: %w", d.ID, ErrStateConflict)
	}
	return nil
}
