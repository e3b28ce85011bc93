package deals

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/proofs"
)

// testDeal is active with start 1000, ten 100-block windows, ending at 2000.
func testDeal(t *testing.T) Deal {
	t.Helper()
	h, err := mh.Sum([]byte("payload"), mh.SHA2_256, -1)
	require.NoError(t, err)

	cs, err := types.ParseChecksum(
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 4096)
	require.NoError(t, err)

	return Deal{
		ID: 7,
		Proposal: types.DealProposal{
			Executor:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
			DealLength:     1000,
			ProofFrequency: 100,
			Bounty:         big.NewInt(100),
			Collateral:     big.NewInt(50),
			PayloadCID:     cid.NewCidV1(cid.Raw, h),
			FileSize:       4096,
			Checksum:       cs,
		},
		Executor:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		StartBlock: 1000,
		Status:     types.DealStatusActive,
	}
}

func seed() []byte { return bytes.Repeat([]byte{0xaa}, 32) }

func TestAdvanceProposedToActive(t *testing.T) {
	d := testDeal(t)
	d.StartBlock = 0
	d.Status = types.DealStatusProposed

	// still pending on chain
	next, effects, err := Advance(d, Observation{Height: 50, Status: types.DealStatusProposed})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusProposed, next.Status)
	require.Equal(t, types.BlockNum(50), next.LastAppliedHeight)

	next, effects, err = Advance(next, Observation{
		Height:     1010,
		Status:     types.DealStatusActive,
		StartBlock: 1000,
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusActive, next.Status)
	require.Equal(t, types.BlockNum(1000), next.StartBlock)
}

func TestAdvanceNoObligationInFirstWindow(t *testing.T) {
	d := testDeal(t)

	next, effects, err := Advance(d, Observation{
		Height: 1050, Status: types.DealStatusActive, StartBlock: 1000, WindowSeed: seed(),
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusActive, next.Status)
}

func TestAdvanceEmitsSubmitOncePerWindow(t *testing.T) {
	d := testDeal(t)

	obs := Observation{
		Height: 1100, Status: types.DealStatusActive, StartBlock: 1000, WindowSeed: seed(),
	}
	next, effects, err := Advance(d, obs)
	require.NoError(t, err)
	require.Equal(t, types.DealStatusAwaitingProof, next.Status)
	require.Equal(t, uint64(1), next.CurrentWindow)
	require.Len(t, effects, 1)
	require.Equal(t, EffectSubmitProof, effects[0].Kind)
	require.Equal(t, proofs.DeriveChallenge(d.ID, 1, seed()), effects[0].Challenge)
	require.NotNil(t, next.SubmittedWindow)
	require.Equal(t, uint64(1), *next.SubmittedWindow)

	// replaying the identical observation must not emit again
	again, effects, err := Advance(next, obs)
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, next, again)

	// nor does a later poll inside the same window
	later := obs
	later.Height = 1150
	_, effects, err = Advance(next, later)
	require.NoError(t, err)
	require.Empty(t, effects)
}

func TestAdvanceWithoutSeedEmitsNothing(t *testing.T) {
	d := testDeal(t)

	next, effects, err := Advance(d, Observation{
		Height: 1100, Status: types.DealStatusActive, StartBlock: 1000,
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusAwaitingProof, next.Status)
	require.Nil(t, next.SubmittedWindow)

	// the seed arriving on a later poll releases the submission
	_, effects, err = Advance(next, Observation{
		Height: 1110, Status: types.DealStatusActive, StartBlock: 1000, WindowSeed: seed(),
	})
	require.NoError(t, err)
	require.Len(t, effects, 1)
}

func TestAdvanceProofAccepted(t *testing.T) {
	d := testDeal(t)
	d.Status = types.DealStatusAwaitingProof
	d.CurrentWindow = 1
	w := uint64(1)
	d.SubmittedWindow = &w

	pb := types.BlockNum(1120)
	next, effects, err := Advance(d, Observation{
		Height: 1150, Status: types.DealStatusActive, StartBlock: 1000,
		WindowSeed: seed(), ProofBlock: &pb,
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusProofAccepted, next.Status)
	require.NotNil(t, next.ProvenWindow)
	require.Equal(t, uint64(1), *next.ProvenWindow)

	// the next window restarts the cycle
	next2, effects, err := Advance(next, Observation{
		Height: 1250, Status: types.DealStatusActive, StartBlock: 1000, WindowSeed: seed(),
	})
	require.NoError(t, err)
	require.Equal(t, types.DealStatusAwaitingProof, next2.Status)
	require.Equal(t, uint64(2), next2.CurrentWindow)
	require.Len(t, effects, 1)
	require.Equal(t, uint64(2), effects[0].Challenge.WindowIndex)
}

func TestAdvanceMissedWindowTerminates(t *testing.T) {
	d := testDeal(t)
	d.Status = types.DealStatusAwaitingProof
	d.CurrentWindow = 1
	w := uint64(1)
	d.SubmittedWindow = &w

	// deadline for window 1 is block 1200; no proof landed
	next, effects, err := Advance(d, Observation{
		Height: 1200, Status: types.DealStatusActive, StartBlock: 1000, WindowSeed: seed(),
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusProofMissed, next.Status)
	require.False(t, next.Status.IsTerminal())

	next2, effects, err := Advance(next, Observation{
		Height: 1201, Status: types.DealStatusActive, StartBlock: 1000,
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusTerminated, next2.Status)
}

func TestAdvanceProofObservedAfterBoundary(t *testing.T) {
	d := testDeal(t)
	d.Status = types.DealStatusAwaitingProof
	d.CurrentWindow = 1
	w := uint64(1)
	d.SubmittedWindow = &w

	// the proof landed before the window 1 deadline (1200) but the next
	// observation only happens inside window 2
	pb := types.BlockNum(1150)
	next, effects, err := Advance(d, Observation{
		Height: 1205, Status: types.DealStatusActive, StartBlock: 1000,
		WindowSeed: seed(), ProofBlock: &pb,
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusProofAccepted, next.Status)
	require.NotNil(t, next.ProvenWindow)
	require.Equal(t, uint64(1), *next.ProvenWindow)
}

func TestAdvanceProofAfterDeadlineDoesNotCount(t *testing.T) {
	d := testDeal(t)
	d.Status = types.DealStatusAwaitingProof
	d.CurrentWindow = 1

	// a proof recorded at the deadline block is late
	pb := types.BlockNum(1200)
	next, _, err := Advance(d, Observation{
		Height: 1210, Status: types.DealStatusActive, StartBlock: 1000, ProofBlock: &pb,
	})
	require.NoError(t, err)
	require.Equal(t, types.DealStatusProofMissed, next.Status)
}

func TestAdvanceStaleObservationDiscarded(t *testing.T) {
	d := testDeal(t)
	d.LastAppliedHeight = 1150

	next, effects, err := Advance(d, Observation{
		Height: 1100, Status: types.DealStatusActive, StartBlock: 1000, WindowSeed: seed(),
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, d, next)
}

func TestAdvanceTerminatedWinsFromAnyState(t *testing.T) {
	for _, status := range []types.DealStatus{
		types.DealStatusProposed,
		types.DealStatusActive,
		types.DealStatusAwaitingProof,
		types.DealStatusProofAccepted,
		types.DealStatusProofMissed,
	} {
		d := testDeal(t)
		d.Status = status

		next, effects, err := Advance(d, Observation{
			Height: 1150, Status: types.DealStatusTerminated, StartBlock: 1000,
		})
		require.NoError(t, err, status.String())
		require.Empty(t, effects)
		require.Equal(t, types.DealStatusTerminated, next.Status, status.String())
	}
}

func TestAdvanceCompletion(t *testing.T) {
	d := testDeal(t)
	d.Status = types.DealStatusProofAccepted
	w := uint64(9)
	d.ProvenWindow = &w
	d.CurrentWindow = 9

	next, effects, err := Advance(d, Observation{
		Height: 2000, Status: types.DealStatusActive, StartBlock: 1000,
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusCompleted, next.Status)
}

func TestAdvanceFinalWindowProofThenCompletion(t *testing.T) {
	d := testDeal(t)
	d.Status = types.DealStatusAwaitingProof
	d.CurrentWindow = 9
	w := uint64(9)
	d.SubmittedWindow = &w

	pb := types.BlockNum(1950)
	next, _, err := Advance(d, Observation{
		Height: 1999, Status: types.DealStatusActive, StartBlock: 1000, ProofBlock: &pb,
	})
	require.NoError(t, err)
	require.Equal(t, types.DealStatusProofAccepted, next.Status)

	next2, _, err := Advance(next, Observation{
		Height: 2000, Status: types.DealStatusActive, StartBlock: 1000,
	})
	require.NoError(t, err)
	require.Equal(t, types.DealStatusCompleted, next2.Status)
}

func TestAdvanceObservedCompleted(t *testing.T) {
	d := testDeal(t)

	next, effects, err := Advance(d, Observation{
		Height: 2005, Status: types.DealStatusCompleted, StartBlock: 1000,
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, types.DealStatusCompleted, next.Status)
}

func TestAdvanceTerminalIsFrozen(t *testing.T) {
	d := testDeal(t)
	d.Status = types.DealStatusCompleted

	next, effects, err := Advance(d, Observation{
		Height: 3000, Status: types.DealStatusTerminated, StartBlock: 1000,
	})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, d, next)
}

func TestAdvanceStartBlockConflict(t *testing.T) {
	d := testDeal(t)

	_, _, err := Advance(d, Observation{
		Height: 1100, Status: types.DealStatusActive, StartBlock: 1001,
	})
	require.ErrorIs(t, err, ErrStateConflict)
}
