package deals

import (
	"crypto/sha256"
	"io"
	"math"
	gobig "math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/proofs"
)

// TokenBase is the base-unit multiplier applied to per-TiB prices, assuming
// an 18-decimal token.
const TokenBase = 1_000_000_000_000_000_000

const bytesPerTiB = 1 << 40

// ProposalBuilder shapes validated DealProposals from operator-facing
// parameters. It performs no I/O beyond reading the content handed to it and
// never signs or submits anything.
type ProposalBuilder struct {
	// Executor is the provider address the offer is extended to.
	Executor string
	// DealLength is the deal duration in blocks.
	DealLength uint64
	// ProofFrequency is the proof window size in blocks.
	ProofFrequency uint64
	// PricePerTiB is the bounty per TiB stored, in whole tokens.
	PricePerTiB float64
	// CollateralPerTiB is the executor bond per TiB, in whole tokens.
	CollateralPerTiB float64
	// Token is the ERC-20 denomination address.
	Token string
}

// tokenAmount scales a whole-token per-TiB rate to base units for the given
// payload size. Amounts round to at least one base unit so a tiny file never
// produces a zero bounty the contract would reject.
func tokenAmount(perTiB float64, fileSize uint64) big.Int {
	units := math.Round(perTiB * (float64(fileSize) / bytesPerTiB) * TokenBase)
	if units < 1 {
		units = 1
	}
	return big.NewFromGo(new(gobig.Int).SetUint64(uint64(units)))
}

// Build assembles a proposal for content whose checksum and CID were derived
// elsewhere. The pair is trusted as-is; callers wanting both derived from one
// pass over the bytes should use BuildFromReader.
func (b *ProposalBuilder) Build(payload cid.Cid, cs types.Checksum) (*types.DealProposal, error) {
	if b.Executor == "" || !common.IsHexAddress(b.Executor) {
		return nil, xerrors.Errorf("executor address %q is not a valid address: %w", b.Executor, ErrInvalidTerms)
	}
	if b.Token == "" || !common.IsHexAddress(b.Token) {
		return nil, xerrors.Errorf("token address %q is not a valid address: %w", b.Token, ErrInvalidTerms)
	}

	p := &types.DealProposal{
		Executor:       common.HexToAddress(b.Executor),
		DealLength:     types.BlockNum(b.DealLength),
		ProofFrequency: types.BlockNum(b.ProofFrequency),
		Bounty:         tokenAmount(b.PricePerTiB, cs.Size),
		Collateral:     tokenAmount(b.CollateralPerTiB, cs.Size),
		Token:          common.HexToAddress(b.Token),
		PayloadCID:     payload,
		FileSize:       cs.Size,
		Checksum:       cs,
	}
	if err := p.Validate(); err != nil {
		return nil, xerrors.Errorf("%s: %w", err, ErrInvalidTerms)
	}
	return p, nil
}

// BuildFromReader derives the checksum, the payload CID and the commitment
// outboard from a single pass over r, then builds the proposal. This is the
// only path that guarantees CID and checksum refer to the same bytes.
func (b *ProposalBuilder) BuildFromReader(r io.Reader) (*types.DealProposal, *proofs.Outboard, error) {
	hasher := sha256.New()
	ob, cs, err := proofs.BuildOutboard(io.TeeReader(r, hasher))
	if err != nil {
		return nil, nil, xerrors.Errorf("committing to content: %w", err)
	}

	digest, err := mh.Encode(hasher.Sum(nil), mh.SHA2_256)
	if err != nil {
		return nil, nil, xerrors.Errorf("encoding multihash: %w", err)
	}
	payload := cid.NewCidV1(cid.Raw, digest)

	p, err := b.Build(payload, cs)
	if err != nil {
		return nil, nil, err
	}
	return p, ob, nil
}
