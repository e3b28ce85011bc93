package ledger

import (
	"context"
	"errors"
	"net"
	"strings"

	"golang.org/x/xerrors"
)

// TransientError wraps ledger failures that are expected to clear on their
// own: network trouble, timeouts, a node that is still syncing. Safe to
// retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient ledger error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// RejectedError wraps a definitive refusal from the contract or the node: a
// reverted call, an invalid transaction. Retrying the same input cannot
// succeed.
type RejectedError struct {
	Err error
}

func (e *RejectedError) Error() string { return "ledger rejected request: " + e.Err.Error() }
func (e *RejectedError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// classify sorts a raw client error into the transient/rejected taxonomy.
// go-ethereum surfaces reverts as opaque strings, so this matches on the
// revert marker rather than a typed error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return &RejectedError{Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) ||
		xerrors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "EOF") {
		return &TransientError{Err: err}
	}
	// unknown failures are treated as transient; a rejection always
	// announces itself
	return &TransientError{Err: err}
}
