package processor

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments_engine/internal/domain"
	"payments_engine/internal/repository"
	"payments_engine/internal/repository/memory"
	"payments_engine/pkg/metrics"
)

type captureObserver struct {
	rejected []error
	ignored  []string
}

func (o *captureObserver) EventRejected(tx domain.Transaction, err error) {
	o.rejected = append(o.rejected, err)
}

func (o *captureObserver) EventIgnored(tx domain.Transaction, reason string) {
	o.ignored = append(o.ignored, reason)
}

type testEnv struct {
	processor   *TransactionProcessor
	accountRepo *memory.AccountRepository
	ledgerRepo  *memory.LedgerRepository
	observer    *captureObserver
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	accountRepo := memory.NewAccountRepository()
	ledgerRepo := memory.NewLedgerRepository()
	observer := &captureObserver{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		processor:   NewTransactionProcessor(accountRepo, ledgerRepo, metrics.NewCollector(logger), observer, logger, 16),
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		observer:    observer,
	}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func deposit(t *testing.T, client domain.ClientID, tx domain.TxID, amount string) domain.Transaction {
	return domain.NewTransaction(domain.TypeDeposit, client, tx, dec(t, amount))
}

func withdrawal(t *testing.T, client domain.ClientID, tx domain.TxID, amount string) domain.Transaction {
	return domain.NewTransaction(domain.TypeWithdrawal, client, tx, dec(t, amount))
}

func dispute(client domain.ClientID, tx domain.TxID) domain.Transaction {
	return domain.NewTransaction(domain.TypeDispute, client, tx, decimal.Decimal{})
}

func resolve(client domain.ClientID, tx domain.TxID) domain.Transaction {
	return domain.NewTransaction(domain.TypeResolve, client, tx, decimal.Decimal{})
}

func chargeback(client domain.ClientID, tx domain.TxID) domain.Transaction {
	return domain.NewTransaction(domain.TypeChargeback, client, tx, decimal.Decimal{})
}

func (env *testEnv) mustProcess(t *testing.T, txs ...domain.Transaction) {
	t.Helper()
	for _, tx := range txs {
		require.NoError(t, env.processor.ProcessTransaction(context.Background(), tx))
	}
}

func (env *testEnv) requireBalances(t *testing.T, client domain.ClientID, available, held, total string, locked bool) {
	t.Helper()
	account, err := env.accountRepo.Get(context.Background(), client)
	require.NoError(t, err)
	assert.True(t, account.Available.Equal(dec(t, available)),
		"available: want %s, got %s", available, account.Available)
	assert.True(t, account.Held.Equal(dec(t, held)),
		"held: want %s, got %s", held, account.Held)
	assert.True(t, account.Total.Equal(dec(t, total)),
		"total: want %s, got %s", total, account.Total)
	assert.Equal(t, locked, account.Locked, "locked")
	assert.True(t, account.Total.Equal(account.Available.Add(account.Held)),
		"invariant total = available + held broken")
}

func TestProcessor_Deposit(t *testing.T) {
	env := setup(t)

	env.mustProcess(t, deposit(t, 1, 1, "1.5"))

	env.requireBalances(t, 1, "1.5", "0", "1.5", false)

	entry, err := env.ledgerRepo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ClientID(1), entry.ClientID)
	assert.False(t, entry.UnderDispute)
}

func TestProcessor_DuplicateTxIDAppliesOnce(t *testing.T) {
	env := setup(t)
	env.mustProcess(t, deposit(t, 1, 1, "1.5"))

	err := env.processor.ProcessTransaction(context.Background(), deposit(t, 1, 1, "1.5"))

	require.ErrorIs(t, err, repository.ErrDuplicateTransaction)
	env.requireBalances(t, 1, "1.5", "0", "1.5", false)
}

func TestProcessor_DuplicateWithdrawalTxID(t *testing.T) {
	// Tx ids are unique across deposits and withdrawals; a withdrawal
	// reusing a deposit's id is rejected before the balance moves.
	env := setup(t)
	env.mustProcess(t, deposit(t, 1, 1, "5"))

	err := env.processor.ProcessTransaction(context.Background(), withdrawal(t, 1, 1, "2"))

	require.ErrorIs(t, err, repository.ErrDuplicateTransaction)
	env.requireBalances(t, 1, "5", "0", "5", false)
}

func TestProcessor_WithdrawalInsufficientFunds(t *testing.T) {
	env := setup(t)
	env.mustProcess(t, deposit(t, 2, 1, "3.3333"), withdrawal(t, 2, 2, "1"))
	env.requireBalances(t, 2, "2.3333", "0", "2.3333", false)

	err := env.processor.ProcessTransaction(context.Background(), withdrawal(t, 2, 3, "10"))

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	env.requireBalances(t, 2, "2.3333", "0", "2.3333", false)

	// The failed withdrawal must not claim its tx id either.
	_, err = env.ledgerRepo.Get(context.Background(), 3)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProcessor_DisputeHoldsFunds(t *testing.T) {
	env := setup(t)

	env.mustProcess(t,
		deposit(t, 1, 1, "1.5"),
		deposit(t, 1, 2, "3"),
		dispute(1, 2),
	)

	env.requireBalances(t, 1, "1.5", "3", "4.5", false)

	entry, err := env.ledgerRepo.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, entry.UnderDispute)
}

func TestProcessor_DisputeResolveRoundTrip(t *testing.T) {
	env := setup(t)

	env.mustProcess(t,
		deposit(t, 1, 2, "3"),
		dispute(1, 2),
		resolve(1, 2),
	)

	env.requireBalances(t, 1, "3", "0", "3", false)

	entry, err := env.ledgerRepo.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, entry.UnderDispute, "resolve must clear the dispute flag")
}

func TestProcessor_DisputeUnknownTxIsSilentNoOp(t *testing.T) {
	env := setup(t)
	env.mustProcess(t, deposit(t, 1, 1, "2"))

	err := env.processor.ProcessTransaction(context.Background(), dispute(1, 999))

	require.NoError(t, err, "unknown tx dispute is tolerated, not an error")
	env.requireBalances(t, 1, "2", "0", "2", false)
	assert.Equal(t, []string{"unknown transaction"}, env.observer.ignored)
}

func TestProcessor_DisputeAlreadyDisputedIsSilentNoOp(t *testing.T) {
	env := setup(t)
	env.mustProcess(t, deposit(t, 1, 1, "2"), dispute(1, 1))

	require.NoError(t, env.processor.ProcessTransaction(context.Background(), dispute(1, 1)))

	env.requireBalances(t, 1, "0", "2", "2", false)
	assert.Contains(t, env.observer.ignored, "transaction already under dispute")
}

func TestProcessor_ResolveWithoutDisputeIsSilentNoOp(t *testing.T) {
	env := setup(t)
	env.mustProcess(t, deposit(t, 1, 1, "2"))

	require.NoError(t, env.processor.ProcessTransaction(context.Background(), resolve(1, 1)))

	env.requireBalances(t, 1, "2", "0", "2", false)
	assert.Contains(t, env.observer.ignored, "transaction not under dispute")
}

func TestProcessor_ChargebackWithoutDisputeIsSilentNoOp(t *testing.T) {
	env := setup(t)
	env.mustProcess(t, deposit(t, 1, 1, "2"))

	require.NoError(t, env.processor.ProcessTransaction(context.Background(), chargeback(1, 1)))

	env.requireBalances(t, 1, "2", "0", "2", false)
}

func TestProcessor_DisputeInsufficientAvailableFunds(t *testing.T) {
	// The disputed deposit has already been withdrawn, so there is nothing
	// left to freeze.
	env := setup(t)
	env.mustProcess(t,
		deposit(t, 1, 1, "3"),
		withdrawal(t, 1, 2, "2.5"),
	)

	err := env.processor.ProcessTransaction(context.Background(), dispute(1, 1))

	require.ErrorIs(t, err, domain.ErrInsufficientFundsForDispute)
	env.requireBalances(t, 1, "0.5", "0", "0.5", false)

	entry, lerr := env.ledgerRepo.Get(context.Background(), 1)
	require.NoError(t, lerr)
	assert.False(t, entry.UnderDispute, "failed dispute must not flag the entry")
}

func TestProcessor_ChargebackLocksAndFinal(t *testing.T) {
	env := setup(t)
	env.mustProcess(t,
		deposit(t, 1, 1, "1.5"),
		deposit(t, 1, 2, "3"),
		dispute(1, 2),
	)
	env.requireBalances(t, 1, "1.5", "3", "4.5", false)

	env.mustProcess(t, chargeback(1, 2))
	env.requireBalances(t, 1, "1.5", "0", "1.5", true)

	entry, err := env.ledgerRepo.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, entry.UnderDispute, "chargeback clears the dispute flag")

	// Every later event against the locked account is rejected unchanged.
	for _, tx := range []domain.Transaction{
		deposit(t, 1, 3, "5"),
		withdrawal(t, 1, 4, "1"),
		dispute(1, 1),
		resolve(1, 1),
		chargeback(1, 1),
	} {
		err := env.processor.ProcessTransaction(context.Background(), tx)
		require.ErrorIs(t, err, domain.ErrAccountLocked)
		env.requireBalances(t, 1, "1.5", "0", "1.5", true)
	}
}

func TestProcessor_WithdrawalEntryCanBeDisputed(t *testing.T) {
	// Withdrawals are recorded in the ledger like deposits and may be
	// disputed the same way.
	env := setup(t)
	env.mustProcess(t,
		deposit(t, 1, 1, "10"),
		withdrawal(t, 1, 2, "4"),
		dispute(1, 2),
	)

	env.requireBalances(t, 1, "2", "4", "6", false)
}

func TestProcessor_InvalidAmountRejected(t *testing.T) {
	env := setup(t)

	for _, tx := range []domain.Transaction{
		domain.NewTransaction(domain.TypeDeposit, 1, 1, decimal.Zero),
		domain.NewTransaction(domain.TypeDeposit, 1, 2, dec(t, "-1")),
		domain.NewTransaction(domain.TypeWithdrawal, 1, 3, decimal.Zero),
	} {
		err := env.processor.ProcessTransaction(context.Background(), tx)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	}

	env.requireBalances(t, 1, "0", "0", "0", false)

	size, err := env.ledgerRepo.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, size, "rejected events must not reach the ledger")
}

func TestProcessor_FailuresDoNotAbortStream(t *testing.T) {
	env := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- env.processor.Run(ctx)
	}()

	stream := []domain.Transaction{
		deposit(t, 1, 1, "5"),
		withdrawal(t, 1, 2, "100"), // rejected, stream continues
		deposit(t, 1, 1, "5"),      // duplicate, rejected
		withdrawal(t, 1, 3, "2"),
	}
	for _, tx := range stream {
		require.NoError(t, env.processor.Submit(ctx, tx))
	}
	env.processor.Close()
	require.NoError(t, <-done)

	env.requireBalances(t, 1, "3", "0", "3", false)
	assert.Len(t, env.observer.rejected, 2)
}

func TestProcessor_RunCancelled(t *testing.T) {
	env := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.processor.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
}
