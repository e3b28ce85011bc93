package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"
)

var log = logging.Logger("config")

// Duration is a wrapper around time.Duration that supports the human
// readable form ("30s", "10m") in TOML and environment variables.
type Duration time.Duration

func (dur Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(dur).String()), nil
}

func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return nil
}

// Config is the node configuration. Values come from the TOML file first,
// then STOWAGE_* environment variables override. Credentials are handed to
// collaborators opaquely and never re-validated here.
type Config struct {
	Ledger  Ledger
	IPFS    IPFS
	Pinning Pinning
	Tracker Tracker
}

type Ledger struct {
	// Endpoint is the JSON-RPC URL of an Ethereum-compatible node.
	Endpoint string
	// ChainID of the target network.
	ChainID int64
	// Contract is the deployed escrow contract address.
	Contract string
	// PrivateKey is a hex-encoded signing key. Leave empty for a read-only
	// node; prefer setting it through STOWAGE_LEDGER_PRIVATEKEY.
	PrivateKey string
	// GasLimit for escrow transactions.
	GasLimit uint64
	// MaxRetries bounds retries of transient read failures.
	MaxRetries int
	RetryMin   Duration
	RetryMax   Duration
}

type IPFS struct {
	// APIAddr is the IPFS node API multiaddr.
	APIAddr string
}

type Pinning struct {
	// Hostname of the remote pinning service. Empty disables replication.
	Hostname string
	// Key is the bearer token.
	Key string
	// Timeout bounds each request.
	Timeout Duration
}

type Tracker struct {
	// PollInterval is how often tracked deals are re-observed.
	PollInterval Duration
	// CallTimeout bounds each ledger read.
	CallTimeout Duration
	// SubmitTimeout bounds one proof submission end to end.
	SubmitTimeout Duration
	// PollParallelism caps concurrent deal polls.
	PollParallelism int
}

func DefaultConfig() *Config {
	return &Config{
		Ledger: Ledger{
			Endpoint:   "http://127.0.0.1:8545",
			ChainID:    1,
			GasLimit:   1_000_000,
			MaxRetries: 5,
			RetryMin:   Duration(time.Second),
			RetryMax:   Duration(30 * time.Second),
		},
		IPFS: IPFS{
			APIAddr: "/ip4/127.0.0.1/tcp/5001",
		},
		Pinning: Pinning{
			Timeout: Duration(5 * time.Minute),
		},
		Tracker: Tracker{
			PollInterval:    Duration(30 * time.Second),
			CallTimeout:     Duration(30 * time.Second),
			SubmitTimeout:   Duration(10 * time.Minute),
			PollParallelism: 8,
		},
	}
}

// FromFile loads configuration from a TOML file, falling back to defaults if
// the file does not exist, then applies environment overrides.
func FromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, xerrors.Errorf("opening config %s: %w", path, err)
	default:
		defer f.Close() //nolint:errcheck
		if err := FromReader(f, cfg); err != nil {
			return nil, xerrors.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("stowage", cfg); err != nil {
		return nil, xerrors.Errorf("processing environment overrides: %w", err)
	}
	return cfg, nil
}

// FromReader decodes TOML into cfg, leaving unset keys untouched.
func FromReader(r io.Reader, cfg *Config) error {
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return err
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		log.Warnw("unknown config keys ignored", "keys", undec)
	}
	return nil
}

// WriteConfig renders cfg as TOML.
func WriteConfig(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, xerrors.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}
