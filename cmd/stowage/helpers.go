package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	levelds "github.com/ipfs/go-ds-leveldb"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/ledger"
	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/deals"
	"github.com/stowage-dev/stowage/node/config"
	"github.com/stowage-dev/stowage/storage/ipfs"
)

func repoPath(cctx *cli.Context) (string, error) {
	p, err := homedir.Expand(cctx.String("repo"))
	if err != nil {
		return "", xerrors.Errorf("expanding repo path: %w", err)
	}
	if err := os.MkdirAll(p, 0755); err != nil {
		return "", xerrors.Errorf("creating repo dir: %w", err)
	}
	return p, nil
}

func loadConfig(cctx *cli.Context) (*config.Config, error) {
	path := cctx.String("config")
	if path == "" {
		repo, err := repoPath(cctx)
		if err != nil {
			return nil, err
		}
		path = filepath.Join(repo, "config.toml")
	}
	return config.FromFile(path)
}

func openLedger(cctx *cli.Context, cfg *config.Config) (*ledger.Client, error) {
	return ledger.New(cctx.Context, ledger.Config{
		Endpoint:   cfg.Ledger.Endpoint,
		ChainID:    cfg.Ledger.ChainID,
		Contract:   cfg.Ledger.Contract,
		PrivateKey: cfg.Ledger.PrivateKey,
		GasLimit:   cfg.Ledger.GasLimit,
		MaxRetries: cfg.Ledger.MaxRetries,
		RetryMin:   time.Duration(cfg.Ledger.RetryMin),
		RetryMax:   time.Duration(cfg.Ledger.RetryMax),
	})
}

func openIPFS(cfg *config.Config) (*ipfs.Client, error) {
	return ipfs.New(cfg.IPFS.APIAddr)
}

func openStore(cctx *cli.Context) (*deals.Store, func() error, error) {
	repo, err := repoPath(cctx)
	if err != nil {
		return nil, nil, err
	}
	ds, err := levelds.NewDatastore(filepath.Join(repo, "deals"), nil)
	if err != nil {
		return nil, nil, xerrors.Errorf("opening deal store: %w", err)
	}
	return deals.NewStore(ds), ds.Close, nil
}

func parseDealID(s string) (types.DealID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("invalid deal id %q: %w", s, err)
	}
	return types.DealID(n), nil
}
