package ledger

import (
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
)

// escrowABI is the interface of the deal escrow contract. The contract tracks
// coarse lifecycle states only; window-level states are derived client-side
// from heights and proof blocks.
const escrowABI = `[
  {
    "type": "function",
    "name": "startOffer",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "executor", "type": "address"},
      {"name": "dealLength", "type": "uint64"},
      {"name": "proofFrequency", "type": "uint64"},
      {"name": "bounty", "type": "uint256"},
      {"name": "collateral", "type": "uint256"},
      {"name": "token", "type": "address"},
      {"name": "fileSize", "type": "uint64"},
      {"name": "payloadCid", "type": "string"},
      {"name": "checksum", "type": "bytes32"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getOffer",
    "stateMutability": "view",
    "inputs": [{"name": "dealId", "type": "uint256"}],
    "outputs": [
      {"name": "creator", "type": "address"},
      {"name": "executor", "type": "address"},
      {"name": "startBlock", "type": "uint64"},
      {"name": "dealLength", "type": "uint64"},
      {"name": "proofFrequency", "type": "uint64"},
      {"name": "bounty", "type": "uint256"},
      {"name": "collateral", "type": "uint256"},
      {"name": "token", "type": "address"},
      {"name": "fileSize", "type": "uint64"},
      {"name": "payloadCid", "type": "string"},
      {"name": "checksum", "type": "bytes32"},
      {"name": "status", "type": "uint8"}
    ]
  },
  {
    "type": "function",
    "name": "getDealStatus",
    "stateMutability": "view",
    "inputs": [{"name": "dealId", "type": "uint256"}],
    "outputs": [{"name": "status", "type": "uint8"}]
  },
  {
    "type": "function",
    "name": "getProofBlock",
    "stateMutability": "view",
    "inputs": [
      {"name": "dealId", "type": "uint256"},
      {"name": "window", "type": "uint64"}
    ],
    "outputs": [{"name": "blockNum", "type": "uint64"}]
  },
  {
    "type": "function",
    "name": "submitProof",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "dealId", "type": "uint256"},
      {"name": "window", "type": "uint64"},
      {"name": "proof", "type": "bytes"}
    ],
    "outputs": []
  },
  {
    "type": "event",
    "name": "OfferCreated",
    "inputs": [
      {"name": "dealId", "type": "uint256", "indexed": true},
      {"name": "creator", "type": "address", "indexed": true},
      {"name": "executor", "type": "address", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "ProofSubmitted",
    "inputs": [
      {"name": "dealId", "type": "uint256", "indexed": true},
      {"name": "window", "type": "uint64", "indexed": false}
    ]
  }
]`

// Contract status codes. The contract only distinguishes the states it has to
// enforce economically; everything window-shaped lives off chain.
const (
	contractStatusNone uint8 = iota
	contractStatusPending
	contractStatusActive
	contractStatusCompleted
	contractStatusTerminated
)

func statusFromContract(code uint8) (types.DealStatus, error) {
	switch code {
	case contractStatusNone:
		return types.DealStatusUnknown, nil
	case contractStatusPending:
		return types.DealStatusProposed, nil
	case contractStatusActive:
		return types.DealStatusActive, nil
	case contractStatusCompleted:
		return types.DealStatusCompleted, nil
	case contractStatusTerminated:
		return types.DealStatusTerminated, nil
	default:
		return types.DealStatusUnknown, xerrors.Errorf("unknown contract status code %d", code)
	}
}
