package storage

import (
	"context"
	"database/sql"
	"log"

	_ "github.com/lib/pq"

	"github.com/carson-networks/fints-sync/internal/config"
	"github.com/carson-networks/fints-sync/internal/storage/sqlconfig"
)

// Ledger is the persistence surface a sync run works against.
// This abstraction allows swapping the implementation without changing callers.
type Ledger interface {
	SentTable() sqlconfig.ISentTable
	BalanceTable() sqlconfig.IBalanceTable

	// Write begins a transaction-scoped writer for the commit step, so a
	// process interruption mid-commit cannot leave half-applied state.
	Write(ctx context.Context) (LedgerWriter, error)
}

// LedgerWriter is one open ledger transaction.
type LedgerWriter interface {
	SentTable() sqlconfig.ISentTable
	BalanceTable() sqlconfig.IBalanceTable
	Commit() error
	Rollback() error
}

var _ Ledger = (*Storage)(nil)

type Storage struct {
	DB       *sql.DB
	Sent     sqlconfig.ISentTable
	Balances sqlconfig.IBalanceTable
}

func NewStorage(env *config.Config) *Storage {
	db, err := sql.Open("postgres", env.PostgresDSN())
	if err != nil {
		log.Fatal(err)
	}

	return &Storage{
		DB:       db,
		Sent:     sqlconfig.NewSentTable(db),
		Balances: sqlconfig.NewBalanceTable(db),
	}
}

func (s *Storage) SentTable() sqlconfig.ISentTable       { return s.Sent }
func (s *Storage) BalanceTable() sqlconfig.IBalanceTable { return s.Balances }

func (s *Storage) Write(ctx context.Context) (LedgerWriter, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return NewWriter(tx), nil
}
