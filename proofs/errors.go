package proofs

import "golang.org/x/xerrors"

var (
	// ErrEmptyInput is returned when asked to commit to zero-length
	// content. Zero-byte deals are rejected before they reach the chain.
	ErrEmptyInput = xerrors.New("content is empty")

	// ErrStaleWindow rejects an artifact whose window does not match the
	// challenge being verified against.
	ErrStaleWindow = xerrors.New("proof targets a stale window")

	// ErrMalformedProof rejects an artifact that cannot be parsed into a
	// chunk and an opening path of the expected shape.
	ErrMalformedProof = xerrors.New("malformed proof")

	// ErrChecksumMismatch rejects an artifact whose opening does not fold
	// to the committed checksum.
	ErrChecksumMismatch = xerrors.New("proof does not match checksum")

	// ErrDealNotStarted and ErrDealElapsed mark heights outside the deal's
	// proving obligation.
	ErrDealNotStarted = xerrors.New("deal has not started")
	ErrDealElapsed    = xerrors.New("deal has elapsed")
)
