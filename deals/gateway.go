package deals

import (
	"context"

	"github.com/stowage-dev/stowage/chain/types"
)

// LedgerGateway is the contract surface this package consumes. The concrete
// implementation lives in chain/ledger; it is always passed in explicitly and
// owns its own connection lifecycle.
type LedgerGateway interface {
	// SubmitOffer records a validated proposal on the escrow contract and
	// returns the ledger-assigned deal id.
	SubmitOffer(ctx context.Context, p types.DealProposal) (types.DealID, error)

	// GetOffer reads the full on-chain record for a deal.
	GetOffer(ctx context.Context, id types.DealID) (*types.OnChainDealInfo, error)

	// GetDealStatus reads the contract-reported status code.
	GetDealStatus(ctx context.Context, id types.DealID) (types.DealStatus, error)

	// GetProofBlock returns the block a window's proof landed in, or nil if
	// no proof has been recorded for that window.
	GetProofBlock(ctx context.Context, id types.DealID, window uint64) (*types.BlockNum, error)

	// SubmitProof submits a window proof and returns the block it landed in.
	SubmitProof(ctx context.Context, proof types.Proof) (types.BlockNum, error)

	// ChainHead returns the current block height.
	ChainHead(ctx context.Context) (types.BlockNum, error)

	// BlockSeed returns the challenge seed for a block, i.e. its hash.
	BlockSeed(ctx context.Context, n types.BlockNum) ([]byte, error)
}
