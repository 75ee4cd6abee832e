// Package forward contains the sinks a sync run pushes deduplicated data
// into: the external REST API and the messaging bot.
package forward

import (
	"context"

	"github.com/carson-networks/fints-sync/internal/banking"
)

// Outcome classifies one forward attempt.
type Outcome int

const (
	// Accepted: the sink took the item.
	Accepted Outcome = iota
	// Duplicate: the sink already had the item. Treated as Accepted for
	// ledger-recording purposes, since the sink deduplicates itself.
	Duplicate
	// Failed: transient failure, the item is retried on the next run.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Forwarder is one configured sink. A Failed outcome comes with the error
// that caused it; an error wrapping banking.ErrAuthRejected is fatal and
// aborts the remaining forwards of the run.
type Forwarder interface {
	Name() string
	ForwardTransaction(ctx context.Context, tx banking.Transaction) (Outcome, error)
	ForwardBalance(ctx context.Context, balance banking.Balance) (Outcome, error)
}
