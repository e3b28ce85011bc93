package deals

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	dsq "github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
)

var dealsPrefix = datastore.NewKey("/deals/v1")

// Store persists tracked deal records so the tracker survives restarts.
// Records are JSON under /deals/v1/<id>; the datastore handles durability.
type Store struct {
	ds datastore.Batching
}

func NewStore(ds datastore.Batching) *Store {
	return &Store{ds: namespace.Wrap(ds, dealsPrefix)}
}

func dealKey(id types.DealID) datastore.Key {
	return datastore.NewKey(id.String())
}

func (s *Store) Put(ctx context.Context, d Deal) error {
	b, err := json.Marshal(&d)
	if err != nil {
		return xerrors.Errorf("marshaling deal %s: %w", d.ID, err)
	}
	return s.ds.Put(ctx, dealKey(d.ID), b)
}

func (s *Store) Get(ctx context.Context, id types.DealID) (Deal, error) {
	b, err := s.ds.Get(ctx, dealKey(id))
	switch {
	case xerrors.Is(err, datastore.ErrNotFound):
		return Deal{}, xerrors.Errorf("deal %s: %w", id, ErrDealNotFound)
	case err != nil:
		return Deal{}, xerrors.Errorf("reading deal %s: %w", id, err)
	}

	var d Deal
	if err := json.Unmarshal(b, &d); err != nil {
		return Deal{}, xerrors.Errorf("decoding deal %s: %w", id, err)
	}
	return d, nil
}

func (s *Store) Has(ctx context.Context, id types.DealID) (bool, error) {
	return s.ds.Has(ctx, dealKey(id))
}

func (s *Store) Delete(ctx context.Context, id types.DealID) error {
	return s.ds.Delete(ctx, dealKey(id))
}

// List returns every persisted deal, terminal ones included.
func (s *Store) List(ctx context.Context) ([]Deal, error) {
	res, err := s.ds.Query(ctx, dsq.Query{})
	if err != nil {
		return nil, xerrors.Errorf("querying deals: %w", err)
	}
	defer res.Close() //nolint:errcheck

	var out []Deal
	for {
		e, ok := res.NextSync()
		if !ok {
			break
		}
		if e.Error != nil {
			return nil, xerrors.Errorf("iterating deals: %w", e.Error)
		}
		var d Deal
		if err := json.Unmarshal(e.Value, &d); err != nil {
			return nil, xerrors.Errorf("decoding deal at %s: %w", e.Key, err)
		}
		out = append(out, d)
	}
	return out, nil
}
