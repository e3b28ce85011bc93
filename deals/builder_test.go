package deals

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stowage-dev/stowage/proofs"
)

func testBuilder() *ProposalBuilder {
	return &ProposalBuilder{
		Executor:         "0x1111111111111111111111111111111111111111",
		DealLength:       1000,
		ProofFrequency:   100,
		PricePerTiB:      2.5,
		CollateralPerTiB: 1.0,
		Token:            "0x2222222222222222222222222222222222222222",
	}
}

func TestBuildFromReader(t *testing.T) {
	content := make([]byte, 3*proofs.ChunkSize+5)
	rand.New(rand.NewSource(1)).Read(content)

	p, ob, err := testBuilder().BuildFromReader(bytes.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, p.Validate())
	require.Equal(t, uint64(len(content)), p.FileSize)
	require.Equal(t, p.FileSize, p.Checksum.Size)
	require.True(t, p.PayloadCID.Defined())
	require.Equal(t, p.Checksum.Sum, ob.Root())

	// checksum and CID must come from the same bytes
	ok, err := proofs.VerifyContent(p.Checksum, bytes.NewReader(content))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBuildRejectsBadTerms(t *testing.T) {
	content := bytes.Repeat([]byte{1}, 100)

	for _, tc := range []struct {
		name   string
		mutate func(*ProposalBuilder)
	}{
		{"empty executor", func(b *ProposalBuilder) { b.Executor = "" }},
		{"garbage executor", func(b *ProposalBuilder) { b.Executor = "not-an-address" }},
		{"empty token", func(b *ProposalBuilder) { b.Token = "" }},
		{"zero frequency", func(b *ProposalBuilder) { b.ProofFrequency = 0 }},
		{"frequency exceeds length", func(b *ProposalBuilder) { b.ProofFrequency = 1001 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := testBuilder()
			tc.mutate(b)
			_, _, err := b.BuildFromReader(bytes.NewReader(content))
			require.ErrorIs(t, err, ErrInvalidTerms)
		})
	}
}

func TestBuildRejectsEmptyContent(t *testing.T) {
	_, _, err := testBuilder().BuildFromReader(bytes.NewReader(nil))
	require.ErrorIs(t, err, proofs.ErrEmptyInput)
}

func TestTokenAmount(t *testing.T) {
	// a full TiB at 2 tokens per TiB is exactly 2e18 base units
	amt := tokenAmount(2, 1<<40)
	require.Equal(t, "2000000000000000000", amt.String())

	// half a TiB scales linearly
	amt = tokenAmount(2, 1<<39)
	require.Equal(t, "1000000000000000000", amt.String())

	// a tiny file still costs at least one base unit
	amt = tokenAmount(0, 1)
	require.Equal(t, "1", amt.String())
}
