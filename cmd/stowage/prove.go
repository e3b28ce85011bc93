package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/deals"
	"github.com/stowage-dev/stowage/proofs"
)

var proveCmd = &cli.Command{
	Name:      "prove",
	Usage:     "Build and submit the proof for one window of a deal",
	ArgsUsage: "<deal-id> <window>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "file",
			Usage: "prove from a local file instead of fetching the payload",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "build and verify the proof locally without submitting",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return xerrors.New("expected deal id and window arguments")
		}
		id, err := parseDealID(cctx.Args().Get(0))
		if err != nil {
			return err
		}
		window, err := strconv.ParseUint(cctx.Args().Get(1), 10, 64)
		if err != nil {
			return xerrors.Errorf("invalid window %q: %w", cctx.Args().Get(1), err)
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
		if info.StartBlock == 0 {
			return xerrors.Errorf("deal %s has not been accepted yet", id)
		}
		nw, err := proofs.NumWindows(info.Proposal.DealLength, info.Proposal.ProofFrequency)
		if err != nil {
			return err
		}
		if window >= nw {
			return xerrors.Errorf("window %d out of range, deal has %d windows", window, nw)
		}

		seed, err := lc.BlockSeed(cctx.Context,
			proofs.WindowStart(info.StartBlock, info.Proposal.ProofFrequency, window))
		if err != nil {
			return err
		}
		ch := proofs.DeriveChallenge(id, window, seed)

		var content deals.ReadAtCloser
		if path := cctx.String("file"); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			content = f
		} else {
			ic, err := openIPFS(cfg)
			if err != nil {
				return err
			}
			content, err = ic.Open(cctx.Context, info.Proposal.PayloadCID)
			if err != nil {
				return err
			}
		}
		defer content.Close() //nolint:errcheck

		ob, cs, err := proofs.BuildOutboard(
			io.NewSectionReader(content, 0, int64(info.Proposal.FileSize)))
		if err != nil {
			return err
		}
		if cs != info.Proposal.Checksum {
			return xerrors.Errorf("content does not match deal checksum %s", info.Proposal.Checksum)
		}

		proof, err := proofs.Prove(ch, content, ob)
		if err != nil {
			return err
		}
		if err := proofs.Verify(ch, info.Proposal.Checksum, proof); err != nil {
			return xerrors.Errorf("proof failed local verification: %w", err)
		}
		fmt.Printf("proof for deal %s window %d: %d bytes\n", id, window, len(proof.ProofBytes))

		if cctx.Bool("dry-run") {
			return nil
		}

		landed, err := lc.SubmitProof(cctx.Context, proof)
		if err != nil {
			return err
		}
		fmt.Printf("proof landed in block %s\n", landed)
		return nil
	},
}
