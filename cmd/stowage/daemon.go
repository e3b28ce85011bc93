package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/deals"
)

var daemonCmd = &cli.Command{
	Name:  "daemon",
	Usage: "Run the deal tracker until interrupted",
	Flags: []cli.Flag{
		&cli.Uint64SliceFlag{
			Name:  "track",
			Usage: "additional deal ids to start tracking from their on-chain offers",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}

		lc, err := openLedger(cctx, cfg)
		if err != nil {
			return err
		}
		defer lc.Close()

		ic, err := openIPFS(cfg)
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore() //nolint:errcheck

		tracker := deals.NewTracker(lc, store, ic, deals.TrackerConfig{
			PollInterval:    time.Duration(cfg.Tracker.PollInterval),
			CallTimeout:     time.Duration(cfg.Tracker.CallTimeout),
			SubmitTimeout:   time.Duration(cfg.Tracker.SubmitTimeout),
			PollParallelism: cfg.Tracker.PollParallelism,
		})

		ctx, cancel := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := tracker.Restore(ctx); err != nil {
			return err
		}
		for _, raw := range cctx.Uint64Slice("track") {
			id := types.DealID(raw)
			if _, err := tracker.TrackOffer(ctx, id); err != nil {
				return xerrors.Errorf("tracking deal %s: %w", id, err)
			}
		}

		log.Infow("tracker running", "poll", cfg.Tracker.PollInterval)
		if err := tracker.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		log.Info("shutting down")
		return nil
	},
}
