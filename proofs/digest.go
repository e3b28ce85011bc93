package proofs

import (
	"crypto/subtle"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
	"lukechampine.com/blake3"

	"github.com/stowage-dev/stowage/chain/types"
)

// ChunkSize is the leaf granularity of the content commitment. Challenges
// select one chunk per window, so this is also the proof payload size.
const ChunkSize = 1024

const (
	leafDomain = 0x00
	nodeDomain = 0x01
)

// NumChunks returns how many ChunkSize leaves a payload of the given length
// occupies.
func NumChunks(size uint64) uint64 {
	return (size + ChunkSize - 1) / ChunkSize
}

func leafHash(chunk []byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte{leafDomain})
	h.Write(chunk)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func nodeHash(left, right [32]byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte{nodeDomain})
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// buildLevels folds leaf hashes pairwise up to the root. A lone trailing node
// on an odd level is promoted unchanged. The returned slice includes the leaf
// level first and the single-root level last.
func buildLevels(leaves [][32]byte) [][][32]byte {
	levels := [][][32]byte{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([][32]byte, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, nodeHash(cur[i], cur[i+1]))
			} else {
				next = append(next, cur[i])
			}
		}
		levels = append(levels, next)
		cur = next
	}
	return levels
}

func readLeaves(r io.Reader) ([][32]byte, uint64, error) {
	var (
		leaves [][32]byte
		size   uint64
		buf    = make([]byte, ChunkSize)
	)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			leaves = append(leaves, leafHash(buf[:n]))
			size += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, 0, xerrors.Errorf("reading content: %w", err)
		}
	}
	if size == 0 {
		return nil, 0, ErrEmptyInput
	}
	return leaves, size, nil
}

// ComputeChecksum commits to the content readable from r. Deterministic:
// equal bytes always produce an equal checksum.
func ComputeChecksum(r io.Reader) (types.Checksum, error) {
	leaves, size, err := readLeaves(r)
	if err != nil {
		return types.Checksum{}, err
	}
	levels := buildLevels(leaves)
	root := levels[len(levels)-1][0]
	return types.Checksum{Algorithm: types.ChecksumBlake3, Sum: root, Size: size}, nil
}

// VerifyContent recomputes the commitment of r and compares it against cs in
// constant time.
func VerifyContent(cs types.Checksum, r io.Reader) (bool, error) {
	got, err := ComputeChecksum(r)
	if err != nil {
		return false, err
	}
	if got.Size != cs.Size || got.Algorithm != cs.Algorithm {
		return false, nil
	}
	return subtle.ConstantTimeCompare(got.Sum[:], cs.Sum[:]) == 1, nil
}

// Outboard holds the full commitment tree for a payload, leaves included, so
// a prover can open any challenged chunk without rehashing the file. It is
// generated once per deal and kept off the storage network; publishing it
// would let an executor answer challenges without the data.
type Outboard struct {
	size   uint64
	levels [][][32]byte
}

// BuildOutboard computes the commitment tree and checksum of r in one pass.
func BuildOutboard(r io.Reader) (*Outboard, types.Checksum, error) {
	leaves, size, err := readLeaves(r)
	if err != nil {
		return nil, types.Checksum{}, err
	}
	levels := buildLevels(leaves)
	cs := types.Checksum{
		Algorithm: types.ChecksumBlake3,
		Sum:       levels[len(levels)-1][0],
		Size:      size,
	}
	return &Outboard{size: size, levels: levels}, cs, nil
}

// Size returns the committed payload length in bytes.
func (o *Outboard) Size() uint64 {
	return o.size
}

// Root returns the commitment root.
func (o *Outboard) Root() [32]byte {
	return o.levels[len(o.levels)-1][0]
}

// PathForChunk returns the sibling hashes opening the given leaf, bottom up.
// Levels where the node was promoted without a sibling contribute nothing.
func (o *Outboard) PathForChunk(chunk uint64) ([][32]byte, error) {
	if chunk >= uint64(len(o.levels[0])) {
		return nil, xerrors.Errorf("chunk %d out of range (%d leaves)", chunk, len(o.levels[0]))
	}
	var path [][32]byte
	idx := chunk
	for _, level := range o.levels[:len(o.levels)-1] {
		if sib := idx ^ 1; sib < uint64(len(level)) {
			path = append(path, level[sib])
		}
		idx >>= 1
	}
	return path, nil
}

// pathLen is the number of sibling hashes an opening of the given leaf
// carries. Verifiers use it to pin the exact artifact length.
func pathLen(chunk, numChunks uint64) int {
	count := 0
	idx, n := chunk, numChunks
	for n > 1 {
		if idx^1 < n {
			count++
		}
		idx >>= 1
		n = (n + 1) / 2
	}
	return count
}

// foldPath recomputes the root from a leaf and its opening. The bool reports
// whether the path was consumed exactly.
func foldPath(leaf [32]byte, chunk, numChunks uint64, path [][32]byte) ([32]byte, bool) {
	cur := leaf
	idx, n := chunk, numChunks
	pi := 0
	for n > 1 {
		if idx^1 < n {
			if pi >= len(path) {
				return cur, false
			}
			if idx&1 == 0 {
				cur = nodeHash(cur, path[pi])
			} else {
				cur = nodeHash(path[pi], cur)
			}
			pi++
		}
		idx >>= 1
		n = (n + 1) / 2
	}
	return cur, pi == len(path)
}

// MarshalBinary serializes the outboard: size header followed by all levels,
// leaves first.
func (o *Outboard) MarshalBinary() ([]byte, error) {
	total := 0
	for _, level := range o.levels {
		total += len(level)
	}
	out := make([]byte, 8, 8+total*32)
	binary.BigEndian.PutUint64(out[:8], o.size)
	for _, level := range o.levels {
		for _, h := range level {
			out = append(out, h[:]...)
		}
	}
	return out, nil
}

// UnmarshalBinary reconstructs an outboard serialized by MarshalBinary.
func (o *Outboard) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return xerrors.New("outboard too short")
	}
	size := binary.BigEndian.Uint64(b[:8])
	if size == 0 {
		return ErrEmptyInput
	}
	b = b[8:]
	if len(b)%32 != 0 {
		return xerrors.New("outboard not a whole number of hashes")
	}
	var levels [][][32]byte
	n := NumChunks(size)
	for {
		if uint64(len(b)) < n*32 {
			return xerrors.New("outboard truncated")
		}
		level := make([][32]byte, n)
		for i := range level {
			copy(level[i][:], b[uint64(i)*32:])
		}
		b = b[n*32:]
		levels = append(levels, level)
		if n == 1 {
			break
		}
		n = (n + 1) / 2
	}
	if len(b) != 0 {
		return xerrors.New("trailing bytes after outboard")
	}
	o.size = size
	o.levels = levels
	return nil
}
