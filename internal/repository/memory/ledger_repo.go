package memory

import (
	"context"
	"fmt"
	"sync"

	"payments_engine/internal/domain"
	"payments_engine/internal/repository"
)

// LedgerRepository keeps ledger entries in a map keyed by transaction id.
// Entries are write-once; an existing entry is never overwritten.
type LedgerRepository struct {
	mu      sync.RWMutex
	entries map[domain.TxID]*domain.LedgerEntry
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		entries: make(map[domain.TxID]*domain.LedgerEntry),
	}
}

func (r *LedgerRepository) Record(ctx context.Context, entry domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.TxID]; exists {
		return fmt.Errorf("%w: tx %d", repository.ErrDuplicateTransaction, entry.TxID)
	}
	r.entries[entry.TxID] = &entry
	return nil
}

func (r *LedgerRepository) Get(ctx context.Context, tx domain.TxID) (domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[tx]
	if !exists {
		return domain.LedgerEntry{}, fmt.Errorf("%w: tx %d", repository.ErrNotFound, tx)
	}
	return *entry, nil
}

func (r *LedgerRepository) SetDisputed(ctx context.Context, tx domain.TxID, disputed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[tx]
	if !exists {
		return fmt.Errorf("%w: tx %d", repository.ErrNotFound, tx)
	}
	entry.UnderDispute = disputed
	return nil
}

func (r *LedgerRepository) Size(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}
