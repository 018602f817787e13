package repository

import (
	"context"
	"errors"

	"payments_engine/internal/domain"
)

// AccountRepository stores one account per client. Accounts are created
// lazily on first reference and never deleted.
type AccountRepository interface {
	GetOrCreate(ctx context.Context, client domain.ClientID) (*domain.Account, error)
	Get(ctx context.Context, client domain.ClientID) (*domain.Account, error)
	Update(ctx context.Context, account *domain.Account) error
	// Snapshot returns a copy of every account, ordered by client id.
	Snapshot(ctx context.Context) ([]domain.Account, error)
}

// LedgerRepository is the append-only store of amount-bearing transactions.
// A transaction id is written at most once; the first writer wins.
type LedgerRepository interface {
	Record(ctx context.Context, entry domain.LedgerEntry) error
	Get(ctx context.Context, tx domain.TxID) (domain.LedgerEntry, error)
	SetDisputed(ctx context.Context, tx domain.TxID, disputed bool) error
	Size(ctx context.Context) (int, error)
}

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)
