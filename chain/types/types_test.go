package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

func testCid(t *testing.T) cid.Cid {
	t.Helper()
	h, err := mh.Sum([]byte("payload"), mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, h)
}

func validProposal(t *testing.T) DealProposal {
	t.Helper()
	cs, err := ParseChecksum(strings.Repeat("ab", 32), 4096)
	require.NoError(t, err)
	return DealProposal{
		Executor:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		DealLength:     1000,
		ProofFrequency: 100,
		Bounty:         big.NewInt(1000),
		Collateral:     big.NewInt(500),
		Token:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
		PayloadCID:     testCid(t),
		FileSize:       4096,
		Checksum:       cs,
	}
}

func TestProposalValidate(t *testing.T) {
	p := validProposal(t)
	require.NoError(t, p.Validate())

	for _, tc := range []struct {
		name  string
		mutate func(*DealProposal)
	}{
		{"zero frequency", func(p *DealProposal) { p.ProofFrequency = 0 }},
		{"frequency exceeds length", func(p *DealProposal) { p.ProofFrequency = 1001 }},
		{"no executor", func(p *DealProposal) { p.Executor = common.Address{} }},
		{"no payload cid", func(p *DealProposal) { p.PayloadCID = cid.Undef }},
		{"no checksum", func(p *DealProposal) { p.Checksum = Checksum{} }},
		{"zero size", func(p *DealProposal) { p.FileSize = 0; p.Checksum.Size = 0 }},
		{"size mismatch", func(p *DealProposal) { p.FileSize = 4095 }},
		{"nil bounty", func(p *DealProposal) { p.Bounty = big.Int{} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := validProposal(t)
			tc.mutate(&p)
			require.Error(t, p.Validate())
		})
	}
}

func TestDealStatus(t *testing.T) {
	require.Equal(t, "AwaitingProof", DealStatusAwaitingProof.String())
	require.Equal(t, "DealStatus(99)", DealStatus(99).String())

	require.True(t, DealStatusCompleted.IsTerminal())
	require.True(t, DealStatusTerminated.IsTerminal())
	require.False(t, DealStatusProofMissed.IsTerminal())
	require.False(t, DealStatusActive.IsTerminal())

	require.True(t, DealStatusActive.OnChain())
	require.False(t, DealStatusAwaitingProof.OnChain())
	require.False(t, DealStatusProofAccepted.OnChain())
}

func TestChecksumParse(t *testing.T) {
	hexSum := strings.Repeat("0f", 32)
	cs, err := ParseChecksum(hexSum, 123)
	require.NoError(t, err)
	require.Equal(t, ChecksumBlake3, cs.Algorithm)
	require.Equal(t, uint64(123), cs.Size)
	require.Equal(t, hexSum, cs.Hex())
	require.True(t, cs.Defined())

	_, err = ParseChecksum("zz", 1)
	require.Error(t, err)
	_, err = ParseChecksum(strings.Repeat("ab", 16), 1)
	require.Error(t, err)

	require.False(t, Checksum{}.Defined())
}

func TestChecksumJSON(t *testing.T) {
	cs, err := ParseChecksum(strings.Repeat("cd", 32), 2048)
	require.NoError(t, err)

	b, err := json.Marshal(cs)
	require.NoError(t, err)
	require.Contains(t, string(b), `"algorithm":"blake3"`)

	var back Checksum
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, cs, back)

	require.Error(t, json.Unmarshal([]byte(`{"algorithm":"sha256","sum":"","size":1}`), &back))
}

func TestOnChainDealInfoEndBlock(t *testing.T) {
	info := OnChainDealInfo{StartBlock: 500, Proposal: DealProposal{DealLength: 1000}}
	require.Equal(t, BlockNum(1500), info.EndBlock())
}
