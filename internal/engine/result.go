package engine

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/carson-networks/fints-sync/internal/banking"
)

// Result is what one sync run produced. Failed items are not recorded in
// the ledger and therefore retried on the next run.
type Result struct {
	RunID   uuid.UUID
	Account string

	Balance          decimal.Decimal
	BalanceAsOf      time.Time
	BalanceChanged   bool
	BalanceForwarded bool

	// Skipped counts transactions the ledger pre-filtered as already
	// forwarded; they never reached a sink.
	Skipped    int
	Forwarded  int
	Duplicates int
	Failed     int

	// NewTransactions are the items accepted by the sinks this run, in
	// fetch order.
	NewTransactions []banking.Transaction

	// Fetched is everything the bank returned for the window, known or
	// not. Interactive mode displays it.
	Fetched []banking.Transaction
}

// Changed reports whether this run has anything worth telling a human.
func (r *Result) Changed() bool {
	return r.BalanceChanged || len(r.NewTransactions) > 0
}

// Summary renders the run counts, e.g.
// "forwarded: 2, duplicates: 1, failed: 0 (skipped pre-filter: 5)".
func (r *Result) Summary() string {
	return fmt.Sprintf("forwarded: %d, duplicates: %d, failed: %d (skipped pre-filter: %d)",
		r.Forwarded, r.Duplicates, r.Failed, r.Skipped)
}
