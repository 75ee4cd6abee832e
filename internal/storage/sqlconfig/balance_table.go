package sqlconfig

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var _ IBalanceTable = (*BalanceTable)(nil)

// BalanceTable provides access to the last_balance table, one row per account.
type BalanceTable struct {
	exec Execer
}

func NewBalanceTable(exec Execer) *BalanceTable {
	return &BalanceTable{exec: exec}
}

func (t *BalanceTable) Get(ctx context.Context, account string) (*BalanceSnapshot, error) {
	row := t.exec.QueryRowContext(ctx, `
		SELECT balance_value, balance_date, updated_at
		FROM last_balance
		WHERE account_name = $1`,
		account,
	)

	var (
		value     string
		asOf      time.Time
		updatedAt time.Time
	)
	err := row.Scan(&value, &asOf, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return &BalanceSnapshot{
		AccountName: account,
		Amount:      amount,
		AsOf:        asOf,
		UpdatedAt:   updatedAt,
	}, nil
}

func (t *BalanceTable) Set(ctx context.Context, account string, amount decimal.Decimal, asOf time.Time) error {
	_, err := t.exec.ExecContext(ctx, `
		INSERT INTO last_balance (account_name, balance_value, balance_date, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_name)
		DO UPDATE SET balance_value = EXCLUDED.balance_value,
		              balance_date = EXCLUDED.balance_date,
		              updated_at = EXCLUDED.updated_at`,
		account, amount.String(), dateOnly(asOf),
	)
	return err
}
