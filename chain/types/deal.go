package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// DealStatus is the lifecycle state of a deal. The escrow contract reports
// only the coarse subset (Proposed/Active/Completed/Terminated); the
// window-level states are derived locally from chain height and proof
// receipts.
type DealStatus uint64

const (
	DealStatusUnknown DealStatus = iota
	DealStatusProposed
	DealStatusActive
	DealStatusAwaitingProof
	DealStatusProofAccepted
	DealStatusProofMissed
	DealStatusCompleted
	DealStatusTerminated
)

// DealStates maps deal statuses to human readable strings.
var DealStates = map[DealStatus]string{
	DealStatusUnknown:       "Unknown",
	DealStatusProposed:      "Proposed",
	DealStatusActive:        "Active",
	DealStatusAwaitingProof: "AwaitingProof",
	DealStatusProofAccepted: "ProofAccepted",
	DealStatusProofMissed:   "ProofMissed",
	DealStatusCompleted:     "Completed",
	DealStatusTerminated:    "Terminated",
}

func (s DealStatus) String() string {
	if name, ok := DealStates[s]; ok {
		return name
	}
	return fmt.Sprintf("DealStatus(%d)", uint64(s))
}

// IsTerminal reports whether a deal in this status will never transition
// again.
func (s DealStatus) IsTerminal() bool {
	return s == DealStatusCompleted || s == DealStatusTerminated
}

// OnChain reports whether this status is one the contract itself can report,
// as opposed to a locally derived window state.
func (s DealStatus) OnChain() bool {
	switch s {
	case DealStatusUnknown, DealStatusProposed, DealStatusActive, DealStatusCompleted, DealStatusTerminated:
		return true
	default:
		return false
	}
}

// DealProposal carries the economic and temporal terms submitted to the
// escrow contract to open an offer. Immutable once built; see
// deals.ProposalBuilder for validated construction.
type DealProposal struct {
	// Executor is the storage provider the offer is extended to.
	Executor common.Address
	// DealLength is the total deal duration in blocks.
	DealLength BlockNum
	// ProofFrequency is the proof window size in blocks.
	ProofFrequency BlockNum
	// Bounty is the total payment to the executor, in Token base units.
	Bounty big.Int
	// Collateral the executor must bond, in Token base units.
	Collateral big.Int
	// Token denominating bounty and collateral.
	Token common.Address
	// PayloadCID locates the content on the storage network. It is not
	// cross-checked against Checksum here; both must be derived from the
	// same bytes by the caller.
	PayloadCID cid.Cid
	// FileSize is the content length in bytes.
	FileSize uint64
	// Checksum commits to the content for proof verification.
	Checksum Checksum
}

// Validate checks the proposal invariants. It performs no I/O.
func (p *DealProposal) Validate() error {
	if p.ProofFrequency == 0 {
		return xerrors.New("proof frequency must be greater than zero")
	}
	if p.ProofFrequency > p.DealLength {
		return xerrors.Errorf("proof frequency %d exceeds deal length %d", p.ProofFrequency, p.DealLength)
	}
	if p.Executor == (common.Address{}) {
		return xerrors.New("executor address not set")
	}
	if !p.PayloadCID.Defined() {
		return xerrors.New("payload cid not set")
	}
	if !p.Checksum.Defined() {
		return xerrors.New("checksum not set")
	}
	if p.FileSize == 0 {
		return xerrors.New("file size must be greater than zero")
	}
	if p.FileSize != p.Checksum.Size {
		return xerrors.Errorf("file size %d does not match checksum size %d", p.FileSize, p.Checksum.Size)
	}
	if p.Bounty.Nil() || p.Collateral.Nil() {
		return xerrors.New("bounty and collateral must be set")
	}
	return nil
}

// OnChainDealInfo is the full deal record as read back from the contract.
type OnChainDealInfo struct {
	ID         DealID
	StartBlock BlockNum
	Proposal   DealProposal
	Creator    common.Address
	Status     DealStatus
}

// EndBlock is the first block past the deal's proving obligation.
func (i *OnChainDealInfo) EndBlock() BlockNum {
	return i.StartBlock + i.Proposal.DealLength
}

// Proof is the artifact submitted to the contract for one proof window. The
// bytes are opaque to the ledger and interpreted only by the proofs package.
type Proof struct {
	DealID      DealID
	WindowIndex uint64
	ProofBytes  []byte
}
