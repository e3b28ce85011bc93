package types

import (
	"strconv"
)

// DealID is the on-chain identifier of a deal. It is assigned by the escrow
// contract when an offer is recorded and is never generated locally.
type DealID uint64

func (id DealID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// BlockNum is a ledger block height.
type BlockNum uint64

func (n BlockNum) String() string {
	return strconv.FormatUint(uint64(n), 10)
}
