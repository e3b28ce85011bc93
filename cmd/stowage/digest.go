package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/proofs"
)

var digestCmd = &cli.Command{
	Name:      "digest",
	Usage:     "Compute the storage commitment for a file",
	ArgsUsage: "<file>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected one file argument")
		}

		f, err := os.Open(cctx.Args().First())
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck

		_, cs, err := proofs.BuildOutboard(f)
		if err != nil {
			return xerrors.Errorf("digesting %s: %w", cctx.Args().First(), err)
		}

		fmt.Printf("checksum:\t%s\n", cs.Hex())
		fmt.Printf("size:\t\t%d\n", cs.Size)
		fmt.Printf("chunks:\t\t%d\n", proofs.NumChunks(cs.Size))
		return nil
	},
}
