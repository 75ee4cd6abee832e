package sqlconfig

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var _ ISentTable = (*SentTable)(nil)

// SentTable provides access to the sent_transactions ledger table.
type SentTable struct {
	exec Execer
}

func NewSentTable(exec Execer) *SentTable {
	return &SentTable{exec: exec}
}

// IsKnown checks the identity key (account, date, amount, purpose hash).
func (t *SentTable) IsKnown(ctx context.Context, account string, date time.Time, amount decimal.Decimal, purpose string) (bool, error) {
	row := t.exec.QueryRowContext(ctx, `
		SELECT 1 FROM sent_transactions
		WHERE account_name = $1
		  AND transaction_date = $2
		  AND amount = $3
		  AND purpose_hash = $4
		LIMIT 1`,
		account, dateOnly(date), amount.String(), PurposeHash(purpose),
	)

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record inserts the ledger row; conflicts on the identity key are ignored
// so partial-failure retries cannot double-insert.
func (t *SentTable) Record(ctx context.Context, account string, date time.Time, amount decimal.Decimal, counterparty, purpose string) error {
	_, err := t.exec.ExecContext(ctx, `
		INSERT INTO sent_transactions
			(account_name, transaction_date, amount, counterparty, purpose_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_name, transaction_date, amount, purpose_hash) DO NOTHING`,
		account, dateOnly(date), amount.String(), counterparty, PurposeHash(purpose),
	)
	return err
}

// Count returns recorded rows for one account, or all rows when account is empty.
func (t *SentTable) Count(ctx context.Context, account string) (int, error) {
	var row *sql.Row
	if account == "" {
		row = t.exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM sent_transactions`)
	} else {
		row = t.exec.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sent_transactions WHERE account_name = $1`, account)
	}

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// dateOnly strips the time-of-day so the DATE column gets a stable value
// regardless of the timezone the bank reported.
func dateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}
