package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/deals"
	"github.com/stowage-dev/stowage/storage/pinning"
)

var proposeCmd = &cli.Command{
	Name:      "propose",
	Usage:     "Build a deal proposal for a file and submit it as an offer",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "executor",
			Usage:    "storage provider address the offer is extended to",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "duration",
			Usage:    "deal length in blocks",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "frequency",
			Usage:    "proof window size in blocks",
			Required: true,
		},
		&cli.Float64Flag{
			Name:  "price",
			Usage: "bounty per TiB in whole tokens",
		},
		&cli.Float64Flag{
			Name:  "collateral",
			Usage: "executor bond per TiB in whole tokens",
		},
		&cli.StringFlag{
			Name:     "token",
			Usage:    "ERC-20 token address denominating payment",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print the proposal without submitting",
		},
		&cli.BoolFlag{
			Name:  "stage",
			Usage: "replicate the payload to the configured pinning service",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected one file argument")
		}
		path := cctx.Args().First()

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}

		b := &deals.ProposalBuilder{
			Executor:         cctx.String("executor"),
			DealLength:       cctx.Uint64("duration"),
			ProofFrequency:   cctx.Uint64("frequency"),
			PricePerTiB:      cctx.Float64("price"),
			CollateralPerTiB: cctx.Float64("collateral"),
			Token:            cctx.String("token"),
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck

		p, _, err := b.BuildFromReader(f)
		if err != nil {
			return err
		}

		// the node derives the canonical CID during import; the builder's
		// raw-leaf CID only stands in for dry runs
		if !cctx.Bool("dry-run") {
			ic, err := openIPFS(cfg)
			if err != nil {
				return err
			}
			cf, err := os.Open(path)
			if err != nil {
				return err
			}
			defer cf.Close() //nolint:errcheck
			imported, err := ic.Add(cctx.Context, cf)
			if err != nil {
				return err
			}
			p.PayloadCID = imported
		}

		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if cctx.Bool("dry-run") {
			return nil
		}

		lc, err := openLedger(cctx, cfg)
		if err != nil {
			return err
		}
		defer lc.Close()

		id, err := lc.SubmitOffer(cctx.Context, *p)
		if err != nil {
			return err
		}
		fmt.Printf("offer submitted, deal id %s\n", id)

		store, closeStore, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore() //nolint:errcheck

		info, err := lc.GetOffer(cctx.Context, id)
		if err != nil {
			return err
		}
		if err := store.Put(cctx.Context, deals.DealFromOffer(info, info.Creator)); err != nil {
			return err
		}

		if cctx.Bool("stage") && cfg.Pinning.Hostname != "" {
			sf, err := os.Open(path)
			if err != nil {
				return err
			}
			defer sf.Close() //nolint:errcheck

			pc := pinning.New(pinning.Config{
				Hostname: cfg.Pinning.Hostname,
				Key:      cfg.Pinning.Key,
			})
			staged, err := pc.StageContent(cctx.Context, sf, cctx.Args().First(), id, p.Checksum)
			if err != nil {
				return xerrors.Errorf("staging to pinning service: %w", err)
			}
			fmt.Printf("staged remotely as content %d (%s)\n", staged.ContentID, staged.CID)
		}
		return nil
	},
}

var offerCmd = &cli.Command{
	Name:      "offer",
	Usage:     "Read the on-chain record of a deal",
	ArgsUsage: "<deal-id>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected one deal id argument")
		}
		id, err := parseDealID(cctx.Args().First())
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		lc, err := openLedger(cctx, cfg)
		if err != nil {
			return err
		}
		defer lc.Close()

		info, err := lc.GetOffer(cctx.Context, id)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var statusCmd = &cli.Command{
	Name:      "status",
	Usage:     "Show local and on-chain status for a tracked deal",
	ArgsUsage: "<deal-id>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected one deal id argument")
		}
		id, err := parseDealID(cctx.Args().First())
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore() //nolint:errcheck

		d, err := store.Get(cctx.Context, id)
		if err != nil {
			return err
		}

		fmt.Printf("deal:\t\t%s\n", d.ID)
		fmt.Printf("status:\t\t%s\n", d.Status)
		fmt.Printf("payload:\t%s\n", d.Proposal.PayloadCID)
		fmt.Printf("start block:\t%s\n", d.StartBlock)
		fmt.Printf("end block:\t%s\n", d.EndBlock())
		if d.Status == types.DealStatusAwaitingProof {
			fmt.Printf("window:\t\t%d\n", d.CurrentWindow)
		}

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		lc, err := openLedger(cctx, cfg)
		if err != nil {
			log.Warnf("ledger unreachable: %s", err)
			return nil
		}
		defer lc.Close()

		chainStatus, err := lc.GetDealStatus(cctx.Context, id)
		if err != nil {
			return err
		}
		fmt.Printf("on chain:\t%s\n", chainStatus)
		return nil
	},
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List all locally tracked deals",
	Action: func(cctx *cli.Context) error {
		store, closeStore, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore() //nolint:errcheck

		ds, err := store.List(cctx.Context)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPAYLOAD\tSTART\tEND")
		for _, d := range ds {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.Status, d.Proposal.PayloadCID, d.StartBlock, d.EndBlock())
		}
		return w.Flush()
	},
}
