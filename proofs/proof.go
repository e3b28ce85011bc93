package proofs

import (
	"crypto/subtle"
	"io"

	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
)

// Prove opens the challenged chunk of the committed payload. The artifact is
// the raw chunk followed by its sibling path, so its size is bounded by
// ChunkSize plus a logarithmic number of hashes regardless of file size.
//
// content must cover the full committed payload; only the challenged range is
// read.
func Prove(ch Challenge, content io.ReaderAt, ob *Outboard) (types.Proof, error) {
	offset, length := ch.ChunkRange(ob.Size())
	chunk := make([]byte, length)
	if _, err := content.ReadAt(chunk, int64(offset)); err != nil {
		return types.Proof{}, xerrors.Errorf("reading challenged chunk at %d: %w", offset, err)
	}

	path, err := ob.PathForChunk(ch.ChunkIndex(ob.Size()))
	if err != nil {
		return types.Proof{}, err
	}

	out := make([]byte, 0, len(chunk)+len(path)*32)
	out = append(out, chunk...)
	for _, h := range path {
		out = append(out, h[:]...)
	}
	return types.Proof{
		DealID:      ch.DealID,
		WindowIndex: ch.WindowIndex,
		ProofBytes:  out,
	}, nil
}

// Verify checks an artifact against a challenge and the deal's committed
// checksum. The verifier never touches content; everything is recomputed
// from the checksum, the challenge and the artifact itself.
//
// A nil return means accepted. Rejections are ErrStaleWindow,
// ErrMalformedProof or ErrChecksumMismatch.
func Verify(ch Challenge, cs types.Checksum, proof types.Proof) error {
	if proof.WindowIndex != ch.WindowIndex {
		return xerrors.Errorf("artifact window %d, open window %d: %w", proof.WindowIndex, ch.WindowIndex, ErrStaleWindow)
	}
	if proof.DealID != ch.DealID {
		return xerrors.Errorf("artifact deal %d, challenge deal %d: %w", proof.DealID, ch.DealID, ErrMalformedProof)
	}
	if cs.Algorithm != types.ChecksumBlake3 || cs.Size == 0 {
		return xerrors.Errorf("undefined checksum: %w", ErrChecksumMismatch)
	}

	chunk := ch.ChunkIndex(cs.Size)
	_, chunkLen := ch.ChunkRange(cs.Size)
	want := int(chunkLen) + 32*pathLen(chunk, NumChunks(cs.Size))
	if len(proof.ProofBytes) != want {
		return xerrors.Errorf("artifact is %d bytes, expected %d: %w", len(proof.ProofBytes), want, ErrMalformedProof)
	}

	leaf := leafHash(proof.ProofBytes[:chunkLen])
	rest := proof.ProofBytes[chunkLen:]
	path := make([][32]byte, 0, len(rest)/32)
	for i := 0; i < len(rest); i += 32 {
		var h [32]byte
		copy(h[:], rest[i:i+32])
		path = append(path, h)
	}

	root, ok := foldPath(leaf, chunk, NumChunks(cs.Size), path)
	if !ok {
		return ErrMalformedProof
	}
	if subtle.ConstantTimeCompare(root[:], cs.Sum[:]) != 1 {
		return ErrChecksumMismatch
	}
	return nil
}
