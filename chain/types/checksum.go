package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/xerrors"
)

// ChecksumAlgorithm tags the digest scheme a Checksum was computed with.
type ChecksumAlgorithm uint8

const (
	// ChecksumBlake3 is a blake3 chunk-tree commitment (1024-byte chunks).
	ChecksumBlake3 ChecksumAlgorithm = 1
)

// ChecksumSize is the fixed digest length for all supported algorithms.
const ChecksumSize = 32

func (a ChecksumAlgorithm) String() string {
	switch a {
	case ChecksumBlake3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Checksum commits to the content of a stored payload, independently of its
// storage-network identifier. The CID locates bytes; the checksum is what
// proofs are verified against.
type Checksum struct {
	Algorithm ChecksumAlgorithm
	Sum       [ChecksumSize]byte
	Size      uint64
}

func (c Checksum) Defined() bool {
	return c.Algorithm != 0
}

// Hex returns the digest as a hex string, without the algorithm tag or size.
func (c Checksum) Hex() string {
	return hex.EncodeToString(c.Sum[:])
}

func (c Checksum) String() string {
	return c.Hex()
}

// ParseChecksum reconstructs a blake3 Checksum from its hex digest and the
// committed payload size.
func ParseChecksum(hexSum string, size uint64) (Checksum, error) {
	b, err := hex.DecodeString(hexSum)
	if err != nil {
		return Checksum{}, xerrors.Errorf("decoding checksum hex: %w", err)
	}
	if len(b) != ChecksumSize {
		return Checksum{}, xerrors.Errorf("checksum must be %d bytes, got %d", ChecksumSize, len(b))
	}
	c := Checksum{Algorithm: ChecksumBlake3, Size: size}
	copy(c.Sum[:], b)
	return c, nil
}

type checksumJSON struct {
	Algorithm string `json:"algorithm"`
	Sum       string `json:"sum"`
	Size      uint64 `json:"size"`
}

func (c Checksum) MarshalJSON() ([]byte, error) {
	return json.Marshal(checksumJSON{
		Algorithm: c.Algorithm.String(),
		Sum:       c.Hex(),
		Size:      c.Size,
	})
}

func (c *Checksum) UnmarshalJSON(b []byte) error {
	var cj checksumJSON
	if err := json.Unmarshal(b, &cj); err != nil {
		return err
	}
	if cj.Algorithm != ChecksumBlake3.String() {
		return xerrors.Errorf("unsupported checksum algorithm %q", cj.Algorithm)
	}
	out, err := ParseChecksum(cj.Sum, cj.Size)
	if err != nil {
		return err
	}
	*c = out
	return nil
}
