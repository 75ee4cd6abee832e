package sqlconfig

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SentTransaction is one forwarded transaction in the ledger. A row
// existing for the identity key (account, date, amount, purpose hash)
// means "already forwarded, never forward again".
type SentTransaction struct {
	ID              int64
	AccountName     string
	TransactionDate time.Time
	Amount          decimal.Decimal
	Counterparty    string
	PurposeHash     string
	SentAt          time.Time
}

// ISentTable defines the interface for ledger dedup operations.
// This abstraction allows swapping the implementation without changing callers.
//
//go:generate mockery --name ISentTable --output mock_ISentTable.go
type ISentTable interface {
	// IsKnown is a pure lookup against the identity key: no fuzzy
	// matching. Transactions identical in date, amount and purpose text
	// are indistinguishable on purpose.
	IsKnown(ctx context.Context, account string, date time.Time, amount decimal.Decimal, purpose string) (bool, error)

	// Record marks a transaction as forwarded. Recording an
	// already-known key is a no-op, not an error.
	Record(ctx context.Context, account string, date time.Time, amount decimal.Decimal, counterparty, purpose string) error

	// Count returns the number of recorded rows for the account, or for
	// all accounts when account is empty.
	Count(ctx context.Context, account string) (int, error)
}

// BalanceSnapshot is the most recent known balance of one account. Used
// purely for change detection, not for dedup identity.
type BalanceSnapshot struct {
	AccountName string
	Amount      decimal.Decimal
	AsOf        time.Time
	UpdatedAt   time.Time
}

// IBalanceTable defines the interface for balance snapshot storage.
//
//go:generate mockery --name IBalanceTable --output mock_IBalanceTable.go
type IBalanceTable interface {
	// Get returns the last snapshot, or nil when none was stored yet.
	Get(ctx context.Context, account string) (*BalanceSnapshot, error)

	// Set upserts the snapshot for the account.
	Set(ctx context.Context, account string, amount decimal.Decimal, asOf time.Time) error
}
