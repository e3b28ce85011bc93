package proofs

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stowage-dev/stowage/chain/types"
)

func testContent(t *testing.T, size int) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(int64(size)))
	b := make([]byte, size)
	_, err := r.Read(b)
	require.NoError(t, err)
	return b
}

func TestProveVerifyRoundtrip(t *testing.T) {
	sizes := []int{1, 7, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3 * ChunkSize, 4 * ChunkSize, 5*ChunkSize + 100, 64 * ChunkSize}

	for _, size := range sizes {
		content := testContent(t, size)
		ob, cs, err := BuildOutboard(bytes.NewReader(content))
		require.NoError(t, err)
		require.Equal(t, uint64(size), cs.Size)

		// every window a distinct seed, every proof must verify
		for w := uint64(0); w < 8; w++ {
			seed := bytes.Repeat([]byte{byte(w + 1)}, 32)
			ch := DeriveChallenge(7, w, seed)

			proof, err := Prove(ch, bytes.NewReader(content), ob)
			require.NoError(t, err)
			require.NoError(t, Verify(ch, cs, proof), "size %d window %d", size, w)
		}
	}
}

func TestVerifyRejectsWrongContent(t *testing.T) {
	content := testContent(t, 5*ChunkSize)
	_, cs, err := BuildOutboard(bytes.NewReader(content))
	require.NoError(t, err)

	// commitment over different bytes of the same length
	other := testContent(t, 5*ChunkSize)
	other[0] ^= 0xff
	obOther, _, err := BuildOutboard(bytes.NewReader(other))
	require.NoError(t, err)

	ch := DeriveChallenge(1, 0, []byte("seed"))
	proof, err := Prove(ch, bytes.NewReader(other), obOther)
	require.NoError(t, err)

	err = Verify(ch, cs, proof)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestVerifyRejectsFlippedChunkBit(t *testing.T) {
	content := testContent(t, 9*ChunkSize)
	ob, cs, err := BuildOutboard(bytes.NewReader(content))
	require.NoError(t, err)

	ch := DeriveChallenge(1, 0, []byte("seed"))
	proof, err := Prove(ch, bytes.NewReader(content), ob)
	require.NoError(t, err)

	proof.ProofBytes[10] ^= 0x01
	require.ErrorIs(t, Verify(ch, cs, proof), ErrChecksumMismatch)
}

func TestVerifyRejectsStaleWindow(t *testing.T) {
	content := testContent(t, 2*ChunkSize)
	ob, cs, err := BuildOutboard(bytes.NewReader(content))
	require.NoError(t, err)

	old := DeriveChallenge(1, 3, []byte("old seed"))
	proof, err := Prove(old, bytes.NewReader(content), ob)
	require.NoError(t, err)

	current := DeriveChallenge(1, 4, []byte("new seed"))
	require.ErrorIs(t, Verify(current, cs, proof), ErrStaleWindow)
}

func TestVerifyRejectsTruncatedProof(t *testing.T) {
	content := testContent(t, 16*ChunkSize)
	ob, cs, err := BuildOutboard(bytes.NewReader(content))
	require.NoError(t, err)

	ch := DeriveChallenge(1, 0, []byte("seed"))
	proof, err := Prove(ch, bytes.NewReader(content), ob)
	require.NoError(t, err)

	for _, cut := range []int{1, 32, len(proof.ProofBytes) / 2} {
		truncated := proof
		truncated.ProofBytes = proof.ProofBytes[:len(proof.ProofBytes)-cut]
		require.ErrorIs(t, Verify(ch, cs, truncated), ErrMalformedProof, "cut %d", cut)
	}

	padded := proof
	padded.ProofBytes = append(append([]byte{}, proof.ProofBytes...), 0)
	require.ErrorIs(t, Verify(ch, cs, padded), ErrMalformedProof)
}

func TestVerifyRejectsWrongDeal(t *testing.T) {
	content := testContent(t, 2*ChunkSize)
	ob, cs, err := BuildOutboard(bytes.NewReader(content))
	require.NoError(t, err)

	ch := DeriveChallenge(1, 0, []byte("seed"))
	proof, err := Prove(ch, bytes.NewReader(content), ob)
	require.NoError(t, err)

	other := DeriveChallenge(2, 0, []byte("seed"))
	require.ErrorIs(t, Verify(other, cs, proof), ErrMalformedProof)
}

func TestProofSizeIsSuccinct(t *testing.T) {
	// a megabyte commits to 1024 chunks; the opening is one chunk plus ten
	// sibling hashes
	content := testContent(t, 1024*ChunkSize)
	ob, _, err := BuildOutboard(bytes.NewReader(content))
	require.NoError(t, err)

	ch := DeriveChallenge(1, 0, []byte("seed"))
	proof, err := Prove(ch, bytes.NewReader(content), ob)
	require.NoError(t, err)
	require.Equal(t, ChunkSize+10*32, len(proof.ProofBytes))
}

func TestChallengeDeterminism(t *testing.T) {
	a := DeriveChallenge(42, 3, []byte("block seed"))
	b := DeriveChallenge(42, 3, []byte("block seed"))
	require.Equal(t, a, b)

	require.NotEqual(t, a.Seed, DeriveChallenge(43, 3, []byte("block seed")).Seed)
	require.NotEqual(t, a.Seed, DeriveChallenge(42, 4, []byte("block seed")).Seed)
	require.NotEqual(t, a.Seed, DeriveChallenge(42, 3, []byte("other seed")).Seed)
}

func TestChallengeChunkRange(t *testing.T) {
	var ch Challenge
	// seed zero selects chunk zero
	off, length := ch.ChunkRange(ChunkSize + 100)
	require.Equal(t, uint64(0), off)
	require.Equal(t, uint64(ChunkSize), length)

	ch.Seed[31] = 1 // selects chunk 1 of 2
	off, length = ch.ChunkRange(ChunkSize + 100)
	require.Equal(t, uint64(ChunkSize), off)
	require.Equal(t, uint64(100), length)
}

func TestComputeChecksum(t *testing.T) {
	content := testContent(t, 3*ChunkSize+17)

	a, err := ComputeChecksum(bytes.NewReader(content))
	require.NoError(t, err)
	b, err := ComputeChecksum(bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, types.ChecksumBlake3, a.Algorithm)
	require.Equal(t, uint64(3*ChunkSize+17), a.Size)

	ok, err := VerifyContent(a, bytes.NewReader(content))
	require.NoError(t, err)
	require.True(t, ok)

	content[42] ^= 0xff
	ok, err = VerifyContent(a, bytes.NewReader(content))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmptyInput(t *testing.T) {
	_, err := ComputeChecksum(bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrEmptyInput)

	_, _, err = BuildOutboard(bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestOutboardRoundtrip(t *testing.T) {
	for _, size := range []int{1, ChunkSize, 5*ChunkSize + 3, 33 * ChunkSize} {
		content := testContent(t, size)
		ob, cs, err := BuildOutboard(bytes.NewReader(content))
		require.NoError(t, err)

		b, err := ob.MarshalBinary()
		require.NoError(t, err)

		var back Outboard
		require.NoError(t, back.UnmarshalBinary(b))
		require.Equal(t, ob.Size(), back.Size())
		require.Equal(t, ob.Root(), back.Root())

		ch := DeriveChallenge(9, 2, []byte("seed"))
		proof, err := Prove(ch, bytes.NewReader(content), &back)
		require.NoError(t, err)
		require.NoError(t, Verify(ch, cs, proof))
	}
}

func TestOutboardUnmarshalRejectsGarbage(t *testing.T) {
	var ob Outboard
	require.Error(t, ob.UnmarshalBinary(nil))
	require.Error(t, ob.UnmarshalBinary(make([]byte, 7)))
	require.Error(t, ob.UnmarshalBinary(make([]byte, 8))) // size zero

	good, _, err := BuildOutboard(bytes.NewReader(testContent(t, 4*ChunkSize)))
	require.NoError(t, err)
	b, err := good.MarshalBinary()
	require.NoError(t, err)
	require.Error(t, ob.UnmarshalBinary(b[:len(b)-32]))
	require.Error(t, ob.UnmarshalBinary(append(b, make([]byte, 32)...)))
}
