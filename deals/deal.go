package deals

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/proofs"
)

// Deal is the locally tracked record of an accepted offer. The authoritative
// state lives on the ledger; this record caches it plus the reducer
// bookkeeping needed to derive window states and stay idempotent. Owned
// exclusively by the Tracker.
type Deal struct {
	ID       types.DealID
	Proposal types.DealProposal
	Creator  common.Address
	Executor common.Address
	// StartBlock is zero until the ledger confirms acceptance.
	StartBlock types.BlockNum
	Status     types.DealStatus

	// LastAppliedHeight guards against out-of-order observations; reads
	// below this height are discarded rather than applied.
	LastAppliedHeight types.BlockNum
	// CurrentWindow is the window being awaited while in AwaitingProof.
	CurrentWindow uint64
	// SubmittedWindow is the last window a submit effect was emitted for.
	SubmittedWindow *uint64
	// ProvenWindow is the last window the ledger acknowledged a proof for.
	ProvenWindow *uint64
}

// EndBlock is the first block past the deal's proving obligation.
func (d *Deal) EndBlock() types.BlockNum {
	return d.StartBlock + d.Proposal.DealLength
}

// DealFromOffer seeds a tracked record from an on-chain offer read.
func DealFromOffer(info *types.OnChainDealInfo, creator common.Address) Deal {
	status := types.DealStatusProposed
	if info.StartBlock > 0 {
		status = types.DealStatusActive
	}
	if info.Status.IsTerminal() {
		status = info.Status
	}
	return Deal{
		ID:         info.ID,
		Proposal:   info.Proposal,
		Creator:    creator,
		Executor:   info.Proposal.Executor,
		StartBlock: info.StartBlock,
		Status:     status,
	}
}

// Observation is one consistent snapshot of ledger state for a deal, taken at
// a single height. The reducer consumes nothing else.
type Observation struct {
	// Height the snapshot was taken at.
	Height types.BlockNum
	// Status as reported by the contract (coarse states only).
	Status types.DealStatus
	// StartBlock reported by the contract; zero before acceptance.
	StartBlock types.BlockNum
	// WindowSeed is the challenge seed for the window open at Height, when
	// the deal is inside its proving obligation.
	WindowSeed []byte
	// ProofBlock is the block the open window's proof landed in, nil if
	// none has been recorded.
	ProofBlock *types.BlockNum
}

// EffectKind discriminates reducer effects.
type EffectKind int

const (
	// EffectSubmitProof instructs the tracker to materialize and submit a
	// proof for the carried challenge.
	EffectSubmitProof EffectKind = iota + 1
)

// Effect is an action the reducer asks the tracker to perform. The reducer
// itself never does I/O; the challenge deterministically defines the
// artifact, so replays of the same observation yield the same effect set.
type Effect struct {
	Kind      EffectKind
	Challenge proofs.Challenge
}
