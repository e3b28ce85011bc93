package deals

import "golang.org/x/xerrors"

var (
	// ErrInvalidTerms marks a proposal that violates the terms invariants.
	// Always detected before any network call.
	ErrInvalidTerms = xerrors.New("invalid deal terms")

	// ErrDealNotFound is returned for deal ids absent from the store or the
	// tracker working set.
	ErrDealNotFound = xerrors.New("deal not found")

	// ErrStateConflict marks an observed ledger state that contradicts the
	// locally tracked deal in a way block-order discard cannot reconcile.
	// Fatal for the deal; requires manual reconciliation.
	ErrStateConflict = xerrors.New("ledger state conflicts with tracked deal")
)
