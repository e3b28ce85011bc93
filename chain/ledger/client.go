package ledger

import (
	"context"
	"crypto/ecdsa"
	gobig "math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	stbig "github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/deals"
)

var log = logging.Logger("ledger")

var _ deals.LedgerGateway = (*Client)(nil)

// ErrNoSigner is returned when a submission requires signing key material
// that was not configured.
var ErrNoSigner = xerrors.New("no signing key configured")

// Config parameterizes the escrow client.
type Config struct {
	// Endpoint is the JSON-RPC URL of an Ethereum-compatible node.
	Endpoint string
	// ChainID of the target network, used for transaction signing.
	ChainID int64
	// Contract is the deployed escrow contract address.
	Contract string
	// PrivateKey is a hex-encoded secp256k1 key. Optional; read-only clients
	// leave it empty.
	PrivateKey string
	// GasLimit for escrow transactions.
	GasLimit uint64
	// MaxRetries bounds retry attempts for transient read failures. Writes
	// are never retried.
	MaxRetries int
	// RetryMin and RetryMax bound the retry backoff.
	RetryMin time.Duration
	RetryMax time.Duration
}

func DefaultConfig() Config {
	return Config{
		GasLimit:   1_000_000,
		MaxRetries: 5,
		RetryMin:   time.Second,
		RetryMax:   30 * time.Second,
	}
}

// Client talks to the deal escrow contract. It implements the ledger gateway
// the deals package consumes. Reads retry transient failures with bounded
// backoff; a definitive rejection is surfaced immediately and never retried.
type Client struct {
	ec       *ethclient.Client
	abi      abi.ABI
	contract common.Address
	chainID  *gobig.Int

	key  *ecdsa.PrivateKey
	from common.Address

	gasLimit   uint64
	maxRetries int
	retryMin   time.Duration
	retryMax   time.Duration
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, xerrors.Errorf("invalid contract address %q", cfg.Contract)
	}

	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, xerrors.Errorf("parsing escrow abi: %w", err)
	}

	ec, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, xerrors.Errorf("dialing ledger node %s: %w", cfg.Endpoint, err)
	}

	c := &Client{
		ec:         ec,
		abi:        parsed,
		contract:   common.HexToAddress(cfg.Contract),
		chainID:    gobig.NewInt(cfg.ChainID),
		gasLimit:   cfg.GasLimit,
		maxRetries: cfg.MaxRetries,
		retryMin:   cfg.RetryMin,
		retryMax:   cfg.RetryMax,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			ec.Close()
			return nil, xerrors.Errorf("parsing private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

func (c *Client) Close() {
	c.ec.Close()
}

// withRetry runs fn, retrying transient failures with jittered backoff until
// MaxRetries or the context ends. Rejections pass through untouched.
func (c *Client) withRetry(ctx context.Context, label string, fn func() error) error {
	bo := &backoff.Backoff{Min: c.retryMin, Max: c.retryMax, Jitter: true}
	for {
		err := classify(fn())
		if err == nil || IsRejected(err) {
			return err
		}
		if int(bo.Attempt()) >= c.maxRetries {
			return xerrors.Errorf("%s: retries exhausted: %w", label, err)
		}
		d := bo.Duration()
		log.Warnw("transient ledger failure, retrying", "op", label, "backoff", d, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Errorf("packing %s call: %w", method, err)
	}

	var out []byte
	err = c.withRetry(ctx, method, func() error {
		var cerr error
		out, cerr = c.ec.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, xerrors.Errorf("unpacking %s result: %w", method, err)
	}
	return vals, nil
}

// transact signs, sends and waits for a state-changing call. Not retried; the
// caller cannot know whether an ambiguous failure landed.
func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (*ethtypes.Receipt, error) {
	if c.key == nil {
		return nil, ErrNoSigner
	}

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Errorf("packing %s transaction: %w", method, err)
	}

	nonce, err := c.ec.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, classify(xerrors.Errorf("reading nonce: %w", err))
	}
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify(xerrors.Errorf("reading gas price: %w", err))
	}

	tx := ethtypes.NewTransaction(nonce, c.contract, gobig.NewInt(0), c.gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, xerrors.Errorf("signing %s transaction: %w", method, err)
	}

	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return nil, classify(xerrors.Errorf("sending %s transaction: %w", method, err))
	}
	log.Debugw("transaction sent", "method", method, "tx", signed.Hash())

	receipt, err := bind.WaitMined(ctx, c.ec, signed)
	if err != nil {
		return nil, classify(xerrors.Errorf("waiting for %s transaction %s: %w", method, signed.Hash(), err))
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, &RejectedError{Err: xerrors.Errorf("%s transaction %s reverted", method, signed.Hash())}
	}
	return receipt, nil
}

// SubmitOffer records the proposal on the escrow contract and returns the
// ledger-assigned deal id from the OfferCreated event.
func (c *Client) SubmitOffer(ctx context.Context, p types.DealProposal) (types.DealID, error) {
	if err := p.Validate(); err != nil {
		return 0, xerrors.Errorf("refusing to submit invalid proposal: %w", err)
	}

	receipt, err := c.transact(ctx, "startOffer",
		p.Executor,
		uint64(p.DealLength),
		uint64(p.ProofFrequency),
		p.Bounty.Int,
		p.Collateral.Int,
		p.Token,
		p.FileSize,
		p.PayloadCID.String(),
		p.Checksum.Sum,
	)
	if err != nil {
		return 0, err
	}

	created := c.abi.Events["OfferCreated"].ID
	for _, l := range receipt.Logs {
		if len(l.Topics) == 4 && l.Topics[0] == created {
			id := new(gobig.Int).SetBytes(l.Topics[1].Bytes())
			return types.DealID(id.Uint64()), nil
		}
	}
	return 0, xerrors.Errorf("offer transaction %s mined without OfferCreated event", receipt.TxHash)
}

// GetOffer reads the full on-chain record for a deal.
func (c *Client) GetOffer(ctx context.Context, id types.DealID) (*types.OnChainDealInfo, error) {
	vals, err := c.call(ctx, "getOffer", new(gobig.Int).SetUint64(uint64(id)))
	if err != nil {
		return nil, err
	}
	if len(vals) != 12 {
		return nil, xerrors.Errorf("getOffer returned %d values, want 12", len(vals))
	}

	creator, ok0 := vals[0].(common.Address)
	executor, ok1 := vals[1].(common.Address)
	startBlock, ok2 := vals[2].(uint64)
	dealLength, ok3 := vals[3].(uint64)
	proofFreq, ok4 := vals[4].(uint64)
	bounty, ok5 := vals[5].(*gobig.Int)
	collateral, ok6 := vals[6].(*gobig.Int)
	token, ok7 := vals[7].(common.Address)
	fileSize, ok8 := vals[8].(uint64)
	payloadStr, ok9 := vals[9].(string)
	sum, ok10 := vals[10].([32]byte)
	statusCode, ok11 := vals[11].(uint8)
	if !(ok0 && ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8 && ok9 && ok10 && ok11) {
		return nil, xerrors.Errorf("getOffer returned unexpected output types")
	}

	payload, err := cid.Decode(payloadStr)
	if err != nil {
		return nil, xerrors.Errorf("decoding payload cid %q: %w", payloadStr, err)
	}
	status, err := statusFromContract(statusCode)
	if err != nil {
		return nil, err
	}

	return &types.OnChainDealInfo{
		ID:         id,
		StartBlock: types.BlockNum(startBlock),
		Creator:    creator,
		Status:     status,
		Proposal: types.DealProposal{
			Executor:       executor,
			DealLength:     types.BlockNum(dealLength),
			ProofFrequency: types.BlockNum(proofFreq),
			Bounty:         stbig.NewFromGo(bounty),
			Collateral:     stbig.NewFromGo(collateral),
			Token:          token,
			PayloadCID:     payload,
			FileSize:       fileSize,
			Checksum:       types.Checksum{Algorithm: types.ChecksumBlake3, Sum: sum, Size: fileSize},
		},
	}, nil
}

// GetDealStatus reads the contract-reported status code for a deal.
func (c *Client) GetDealStatus(ctx context.Context, id types.DealID) (types.DealStatus, error) {
	vals, err := c.call(ctx, "getDealStatus", new(gobig.Int).SetUint64(uint64(id)))
	if err != nil {
		return types.DealStatusUnknown, err
	}
	code, ok := vals[0].(uint8)
	if !ok {
		return types.DealStatusUnknown, xerrors.Errorf("getDealStatus returned unexpected output type")
	}
	return statusFromContract(code)
}

// GetProofBlock returns the block a window's proof landed in, or nil if none
// has been recorded. The contract encodes absence as zero.
func (c *Client) GetProofBlock(ctx context.Context, id types.DealID, window uint64) (*types.BlockNum, error) {
	vals, err := c.call(ctx, "getProofBlock", new(gobig.Int).SetUint64(uint64(id)), window)
	if err != nil {
		return nil, err
	}
	blockNum, ok := vals[0].(uint64)
	if !ok {
		return nil, xerrors.Errorf("getProofBlock returned unexpected output type")
	}
	if blockNum == 0 {
		return nil, nil
	}
	bn := types.BlockNum(blockNum)
	return &bn, nil
}

// SubmitProof submits a window proof and returns the block it landed in.
func (c *Client) SubmitProof(ctx context.Context, proof types.Proof) (types.BlockNum, error) {
	receipt, err := c.transact(ctx, "submitProof",
		new(gobig.Int).SetUint64(uint64(proof.DealID)),
		proof.WindowIndex,
		proof.ProofBytes,
	)
	if err != nil {
		return 0, err
	}
	return types.BlockNum(receipt.BlockNumber.Uint64()), nil
}

// ChainHead returns the current block height.
func (c *Client) ChainHead(ctx context.Context) (types.BlockNum, error) {
	var head uint64
	err := c.withRetry(ctx, "blockNumber", func() error {
		var cerr error
		head, cerr = c.ec.BlockNumber(ctx)
		return cerr
	})
	if err != nil {
		return 0, err
	}
	return types.BlockNum(head), nil
}

// BlockSeed returns the hash of block n, which seeds the challenges of
// windows opening at n.
func (c *Client) BlockSeed(ctx context.Context, n types.BlockNum) ([]byte, error) {
	var seed []byte
	err := c.withRetry(ctx, "headerByNumber", func() error {
		h, cerr := c.ec.HeaderByNumber(ctx, new(gobig.Int).SetUint64(uint64(n)))
		if cerr != nil {
			return cerr
		}
		seed = h.Hash().Bytes()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seed, nil
}
