package storage

import (
	"database/sql"

	"github.com/carson-networks/fints-sync/internal/storage/sqlconfig"
)

var _ LedgerWriter = (*Writer)(nil)

type Writer struct {
	tx       *sql.Tx
	Sent     sqlconfig.ISentTable
	Balances sqlconfig.IBalanceTable
}

func NewWriter(tx *sql.Tx) *Writer {
	return &Writer{
		tx:       tx,
		Sent:     sqlconfig.NewSentTable(tx),
		Balances: sqlconfig.NewBalanceTable(tx),
	}
}

func (w *Writer) SentTable() sqlconfig.ISentTable       { return w.Sent }
func (w *Writer) BalanceTable() sqlconfig.IBalanceTable { return w.Balances }

func (w *Writer) Commit() error {
	return w.tx.Commit()
}

func (w *Writer) Rollback() error {
	return w.tx.Rollback()
}
