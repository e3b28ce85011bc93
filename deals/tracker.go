package deals

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
	"github.com/stowage-dev/stowage/proofs"
)

var log = logging.Logger("deals")

// ReadAtCloser is random-access payload content.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// ContentSource resolves a payload CID to its bytes. The storage/ipfs client
// implements this over the IPFS HTTP API.
type ContentSource interface {
	Open(ctx context.Context, c cid.Cid) (ReadAtCloser, error)
}

// TrackerConfig bounds the tracker's polling and gateway interactions.
type TrackerConfig struct {
	// PollInterval is how often every tracked deal is re-observed.
	PollInterval time.Duration
	// CallTimeout bounds each individual gateway read.
	CallTimeout time.Duration
	// SubmitTimeout bounds a proof submission end to end, content fetch
	// included. A submission abandoned here is picked up as a missed window
	// once the deadline passes on chain.
	SubmitTimeout time.Duration
	// PollParallelism caps how many deals are polled concurrently.
	PollParallelism int
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		PollInterval:    30 * time.Second,
		CallTimeout:     30 * time.Second,
		SubmitTimeout:   10 * time.Minute,
		PollParallelism: 8,
	}
}

// Tracker drives tracked deals through their lifecycle: it polls the ledger,
// folds observations through the reducer, persists the result and executes
// emitted effects. All per-deal work happens under that deal's mutex, so at
// most one reducer application is in flight per deal while distinct deals
// proceed in parallel.
type Tracker struct {
	gw      LedgerGateway
	store   *Store
	content ContentSource
	cfg     TrackerConfig

	clock clock.Clock

	lk    sync.Mutex
	deals map[types.DealID]*trackedDeal
}

type trackedDeal struct {
	lk   sync.Mutex
	deal Deal
}

func NewTracker(gw LedgerGateway, store *Store, content ContentSource, cfg TrackerConfig) *Tracker {
	def := DefaultTrackerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = def.SubmitTimeout
	}
	if cfg.PollParallelism <= 0 {
		cfg.PollParallelism = def.PollParallelism
	}
	return &Tracker{
		gw:      gw,
		store:   store,
		content: content,
		cfg:     cfg,
		clock:   clock.New(),
		deals:   map[types.DealID]*trackedDeal{},
	}
}

// Restore loads persisted deals into the working set. Terminal records stay
// in the store for inspection but are not re-tracked.
func (t *Tracker) Restore(ctx context.Context) error {
	ds, err := t.store.List(ctx)
	if err != nil {
		return xerrors.Errorf("restoring deals: %w", err)
	}

	t.lk.Lock()
	defer t.lk.Unlock()
	for _, d := range ds {
		if d.Status.IsTerminal() {
			continue
		}
		if _, ok := t.deals[d.ID]; ok {
			continue
		}
		t.deals[d.ID] = &trackedDeal{deal: d}
		log.Infow("restored deal", "deal", d.ID, "status", d.Status)
	}
	return nil
}

// Track persists a deal and adds it to the working set.
func (t *Tracker) Track(ctx context.Context, d Deal) error {
	t.lk.Lock()
	if _, ok := t.deals[d.ID]; ok {
		t.lk.Unlock()
		return xerrors.Errorf("deal %s is already tracked", d.ID)
	}
	td := &trackedDeal{deal: d}
	t.deals[d.ID] = td
	t.lk.Unlock()

	if err := t.store.Put(ctx, d); err != nil {
		t.lk.Lock()
		delete(t.deals, d.ID)
		t.lk.Unlock()
		return err
	}
	log.Infow("tracking deal", "deal", d.ID, "status", d.Status, "payload", d.Proposal.PayloadCID)
	return nil
}

// TrackOffer reads an offer from the ledger and starts tracking it.
func (t *Tracker) TrackOffer(ctx context.Context, id types.DealID) (Deal, error) {
	cctx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	defer cancel()

	info, err := t.gw.GetOffer(cctx, id)
	if err != nil {
		return Deal{}, xerrors.Errorf("reading offer %s: %w", id, err)
	}
	d := DealFromOffer(info, info.Creator)
	if err := t.Track(ctx, d); err != nil {
		return Deal{}, err
	}
	return d, nil
}

// Get returns the tracked deal, falling back to the store for terminal
// records evicted from the working set.
func (t *Tracker) Get(ctx context.Context, id types.DealID) (Deal, error) {
	t.lk.Lock()
	td, ok := t.deals[id]
	t.lk.Unlock()
	if !ok {
		return t.store.Get(ctx, id)
	}

	td.lk.Lock()
	defer td.lk.Unlock()
	return td.deal, nil
}

// List returns every persisted deal.
func (t *Tracker) List(ctx context.Context) ([]Deal, error) {
	return t.store.List(ctx)
}

// Run polls all tracked deals every PollInterval until the context ends.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := t.clock.Ticker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.pollAll(ctx); err != nil {
				return err
			}
		}
	}
}

func (t *Tracker) pollAll(ctx context.Context) error {
	t.lk.Lock()
	ids := make([]types.DealID, 0, len(t.deals))
	for id := range t.deals {
		ids = append(ids, id)
	}
	t.lk.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.PollParallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := t.PollAndAdvance(gctx, id); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// one broken deal must not stall the rest
				log.Errorw("poll failed", "deal", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// PollAndAdvance takes one ledger observation for the deal and folds it
// through the reducer, executing any emitted effects. Safe to call
// concurrently with itself and with Run.
func (t *Tracker) PollAndAdvance(ctx context.Context, id types.DealID) error {
	t.lk.Lock()
	td, ok := t.deals[id]
	t.lk.Unlock()
	if !ok {
		return xerrors.Errorf("deal %s: %w", id, ErrDealNotFound)
	}

	td.lk.Lock()
	defer td.lk.Unlock()

	obs, err := t.observe(ctx, td.deal)
	if err != nil {
		return xerrors.Errorf("observing deal %s: %w", id, err)
	}

	next, effects, err := Advance(td.deal, obs)
	if err != nil {
		return err
	}

	if next.Status != td.deal.Status {
		log.Infow("deal advanced", "deal", id,
			"from", td.deal.Status, "to", next.Status, "height", obs.Height)
	}
	td.deal = next
	if err := t.store.Put(ctx, next); err != nil {
		return xerrors.Errorf("persisting deal %s: %w", id, err)
	}

	for _, eff := range effects {
		switch eff.Kind {
		case EffectSubmitProof:
			if err := t.submitProof(ctx, td.deal, eff.Challenge); err != nil {
				// the window deadline converts a lost submission into a
				// missed window on a later poll
				log.Errorw("proof submission failed", "deal", id,
					"window", eff.Challenge.WindowIndex, "error", err)
			}
		}
	}

	if td.deal.Status.IsTerminal() {
		t.lk.Lock()
		delete(t.deals, id)
		t.lk.Unlock()
		log.Infow("deal reached terminal state", "deal", id, "status", td.deal.Status)
	}
	return nil
}

// observe snapshots the ledger state the reducer needs, all reads bounded by
// CallTimeout. The snapshot is not atomic across calls; the reducer's height
// guard absorbs the skew.
func (t *Tracker) observe(ctx context.Context, d Deal) (Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	defer cancel()

	head, err := t.gw.ChainHead(ctx)
	if err != nil {
		return Observation{}, xerrors.Errorf("reading chain head: %w", err)
	}
	status, err := t.gw.GetDealStatus(ctx, d.ID)
	if err != nil {
		return Observation{}, xerrors.Errorf("reading deal status: %w", err)
	}

	obs := Observation{Height: head, Status: status}

	start := d.StartBlock
	if start == 0 {
		info, err := t.gw.GetOffer(ctx, d.ID)
		if err != nil {
			return Observation{}, xerrors.Errorf("reading offer: %w", err)
		}
		start = info.StartBlock
	}
	obs.StartBlock = start
	if start == 0 {
		return obs, nil
	}

	// The reducer resolves the awaited window, not the window open at head.
	// A poll can straddle a window boundary, so while awaiting a proof the
	// seed and proof block must come from CurrentWindow even if head has
	// moved past its deadline or past the deal end.
	var window uint64
	if d.Status == types.DealStatusAwaitingProof {
		window = d.CurrentWindow
	} else {
		w, err := proofs.WindowAt(start, d.Proposal.DealLength, d.Proposal.ProofFrequency, head)
		if err != nil || w < 1 {
			return obs, nil
		}
		window = w
	}

	seed, err := t.gw.BlockSeed(ctx, proofs.WindowStart(start, d.Proposal.ProofFrequency, window))
	if err != nil {
		return Observation{}, xerrors.Errorf("reading window seed: %w", err)
	}
	obs.WindowSeed = seed

	pb, err := t.gw.GetProofBlock(ctx, d.ID, window)
	if err != nil {
		return Observation{}, xerrors.Errorf("reading proof block: %w", err)
	}
	obs.ProofBlock = pb

	return obs, nil
}

// submitProof materializes the proof artifact for the challenge and submits
// it. Called with the deal's mutex held.
func (t *Tracker) submitProof(ctx context.Context, d Deal, ch proofs.Challenge) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.SubmitTimeout)
	defer cancel()

	content, err := t.content.Open(ctx, d.Proposal.PayloadCID)
	if err != nil {
		return xerrors.Errorf("opening payload %s: %w", d.Proposal.PayloadCID, err)
	}
	defer content.Close() //nolint:errcheck

	ob, cs, err := proofs.BuildOutboard(io.NewSectionReader(content, 0, int64(d.Proposal.FileSize)))
	if err != nil {
		return xerrors.Errorf("committing to payload: %w", err)
	}
	if cs != d.Proposal.Checksum {
		return xerrors.Errorf("payload %s does not match committed checksum %s",
			d.Proposal.PayloadCID, d.Proposal.Checksum)
	}

	proof, err := proofs.Prove(ch, content, ob)
	if err != nil {
		return xerrors.Errorf("building proof: %w", err)
	}

	landed, err := t.gw.SubmitProof(ctx, proof)
	if err != nil {
		return err
	}
	log.Infow("proof submitted", "deal", d.ID, "window", ch.WindowIndex, "block", landed)
	return nil
}
