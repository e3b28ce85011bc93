package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("stowage")

const version = "0.3.0"

func main() {
	app := &cli.App{
		Name:    "stowage",
		Usage:   "storage deals with windowed proofs of storage",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Value:   "~/.stowage",
				EnvVars: []string{"STOWAGE_PATH"},
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config.toml (default: <repo>/config.toml)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
			},
		},
		Before: func(cctx *cli.Context) error {
			return logging.SetLogLevelRegex(".*", cctx.String("log-level"))
		},
		Commands: []*cli.Command{
			digestCmd,
			proposeCmd,
			offerCmd,
			statusCmd,
			listCmd,
			proveCmd,
			daemonCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}
