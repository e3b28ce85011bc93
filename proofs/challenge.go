package proofs

import (
	"encoding/binary"
	"math/big"

	"lukechampine.com/blake3"

	"github.com/stowage-dev/stowage/chain/types"
)

const challengeDomain = "stowage/proof-challenge/v1"

// Challenge parameterizes a single window's proof. It is derived purely from
// ledger-observable data, so prover and verifier recompute it independently
// without sharing a channel.
type Challenge struct {
	DealID      types.DealID
	WindowIndex uint64
	Seed        [32]byte
}

// DeriveChallenge combines the deal id, window index and the block seed for
// the window's opening block into a challenge seed. Deterministic.
func DeriveChallenge(id types.DealID, window uint64, blockSeed []byte) Challenge {
	h := blake3.New(32, nil)
	h.Write([]byte(challengeDomain))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(id))
	binary.BigEndian.PutUint64(buf[8:], window)
	h.Write(buf[:])
	h.Write(blockSeed)

	ch := Challenge{DealID: id, WindowIndex: window}
	copy(ch.Seed[:], h.Sum(nil))
	return ch
}

// ChunkIndex maps the challenge seed onto one of the payload's chunks.
func (c *Challenge) ChunkIndex(fileSize uint64) uint64 {
	n := new(big.Int).SetUint64(NumChunks(fileSize))
	return new(big.Int).Mod(new(big.Int).SetBytes(c.Seed[:]), n).Uint64()
}

// ChunkRange returns the byte offset and length of the challenged chunk. The
// final chunk may be shorter than ChunkSize.
func (c *Challenge) ChunkRange(fileSize uint64) (offset, length uint64) {
	chunk := c.ChunkIndex(fileSize)
	offset = chunk * ChunkSize
	length = ChunkSize
	if offset+length > fileSize {
		length = fileSize - offset
	}
	return offset, length
}
