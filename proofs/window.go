package proofs

import (
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
)

// WindowAt returns the proof window index open at the given height. Window k
// covers [start+k*freq, start+(k+1)*freq). Heights before the start block or
// at/after the deal end are errors.
func WindowAt(start, length, freq types.BlockNum, height types.BlockNum) (uint64, error) {
	if freq == 0 {
		return 0, xerrors.New("proof frequency must be greater than zero")
	}
	if height < start {
		return 0, ErrDealNotStarted
	}
	if height >= start+length {
		return 0, ErrDealElapsed
	}
	return uint64((height - start) / freq), nil
}

// WindowStart is the first block of window w, i.e. the block whose hash seeds
// the window's challenge.
func WindowStart(start, freq types.BlockNum, w uint64) types.BlockNum {
	return start + freq*types.BlockNum(w)
}

// WindowDeadline is the first block at which window w's proof is late.
func WindowDeadline(start, freq types.BlockNum, w uint64) types.BlockNum {
	return start + freq*types.BlockNum(w+1)
}

// NumWindows is how many proof windows a deal of the given length carries.
func NumWindows(length, freq types.BlockNum) (uint64, error) {
	if freq == 0 {
		return 0, xerrors.New("proof frequency must be greater than zero")
	}
	return uint64((length + freq - 1) / freq), nil
}
