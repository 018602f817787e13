package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"payments_engine/internal/domain"
	"payments_engine/internal/repository"
)

// AccountRepository keeps accounts in a map guarded by a RWMutex. The
// processing loop is the only writer; readers are expected only after the
// stream has been drained.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[domain.ClientID]*domain.Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[domain.ClientID]*domain.Account),
	}
}

func (r *AccountRepository) GetOrCreate(ctx context.Context, client domain.ClientID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[client]
	if !exists {
		account = domain.NewAccount(client)
		r.accounts[client] = account
	}
	return account, nil
}

func (r *AccountRepository) Get(ctx context.Context, client domain.ClientID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[client]
	if !exists {
		return nil, fmt.Errorf("%w: account %d", repository.ErrNotFound, client)
	}
	return account, nil
}

func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ClientID]; !exists {
		return fmt.Errorf("%w: account %d", repository.ErrNotFound, account.ClientID)
	}
	r.accounts[account.ClientID] = account
	return nil
}

func (r *AccountRepository) Snapshot(ctx context.Context) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		result = append(result, *account)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ClientID < result[j].ClientID
	})
	return result, nil
}
