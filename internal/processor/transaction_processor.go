package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payments_engine/internal/domain"
	"payments_engine/internal/repository"
	"payments_engine/pkg/metrics"
)

// TransactionProcessor applies transaction events to account and ledger
// state, one at a time and in arrival order. Events enter through Submit
// and are drained by a single Run goroutine; closing the input with Close
// is the normal termination signal.
//
// A failed event is observed, counted and dropped. It never aborts the
// stream and is never retried.
type TransactionProcessor struct {
	accountRepo repository.AccountRepository
	ledgerRepo  repository.LedgerRepository
	events      chan domain.Transaction
	observer    Observer
	metrics     *metrics.Collector
	logger      *slog.Logger
}

func NewTransactionProcessor(
	accountRepo repository.AccountRepository,
	ledgerRepo repository.LedgerRepository,
	collector *metrics.Collector,
	observer Observer,
	logger *slog.Logger,
	bufferSize int,
) *TransactionProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	return &TransactionProcessor{
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		events:      make(chan domain.Transaction, bufferSize),
		observer:    observer,
		metrics:     collector,
		logger:      logger,
	}
}

// Submit enqueues one event for processing. It blocks when the buffer is
// full and fails only when ctx is cancelled before the event is accepted.
func (p *TransactionProcessor) Submit(ctx context.Context, tx domain.Transaction) error {
	select {
	case p.events <- tx:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no further events will be submitted. Run drains the
// remaining buffered events and then returns.
func (p *TransactionProcessor) Close() {
	close(p.events)
}

// Run consumes events until the input is closed or ctx is cancelled.
// Cancellation abandons buffered events; normal shutdown drops none.
func (p *TransactionProcessor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-p.events:
			if !ok {
				return nil
			}
			p.apply(ctx, tx)
		}
	}
}

func (p *TransactionProcessor) apply(ctx context.Context, tx domain.Transaction) {
	start := time.Now()

	err := p.ProcessTransaction(ctx, tx)
	if err != nil {
		p.logger.Warn("transaction rejected",
			slog.String("type", string(tx.Type)),
			slog.Uint64("client", uint64(tx.ClientID)),
			slog.Uint64("tx", uint64(tx.TxID)),
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.RecordFailed(time.Since(start), failureReason(err))
		}
		if p.observer != nil {
			p.observer.EventRejected(tx, err)
		}
		return
	}

	if p.metrics != nil {
		p.metrics.RecordProcessed(time.Since(start))
	}
}

// ProcessTransaction applies a single event. It mutates at most one account
// and one ledger entry, and leaves both untouched when it returns an error.
func (p *TransactionProcessor) ProcessTransaction(ctx context.Context, tx domain.Transaction) error {
	account, err := p.accountRepo.GetOrCreate(ctx, tx.ClientID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	if account.Locked {
		return fmt.Errorf("%w: client %d", domain.ErrAccountLocked, tx.ClientID)
	}

	switch tx.Type {
	case domain.TypeDeposit:
		return p.processDeposit(ctx, account, tx)
	case domain.TypeWithdrawal:
		return p.processWithdrawal(ctx, account, tx)
	case domain.TypeDispute:
		return p.processDispute(ctx, account, tx)
	case domain.TypeResolve:
		return p.processResolve(ctx, account, tx)
	case domain.TypeChargeback:
		return p.processChargeback(ctx, account, tx)
	default:
		return fmt.Errorf("unknown transaction type: %s", tx.Type)
	}
}

// processDeposit credits the account and records the transaction in the
// ledger. Ledger absence is checked before the balance mutation so a
// duplicate tx id leaves the account untouched.
func (p *TransactionProcessor) processDeposit(ctx context.Context, account *domain.Account, tx domain.Transaction) error {
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("%w: deposit tx %d", domain.ErrInvalidAmount, tx.TxID)
	}
	if err := p.checkLedgerAbsence(ctx, tx.TxID); err != nil {
		return err
	}

	account.Deposit(tx.Amount)
	if err := p.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("update account %d: %w", account.ClientID, err)
	}
	return p.recordLedgerEntry(ctx, tx)
}

func (p *TransactionProcessor) processWithdrawal(ctx context.Context, account *domain.Account, tx domain.Transaction) error {
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("%w: withdrawal tx %d", domain.ErrInvalidAmount, tx.TxID)
	}
	if err := p.checkLedgerAbsence(ctx, tx.TxID); err != nil {
		return err
	}

	if err := account.Withdraw(tx.Amount); err != nil {
		return fmt.Errorf("withdrawal tx %d: %w", tx.TxID, err)
	}
	if err := p.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("update account %d: %w", account.ClientID, err)
	}
	return p.recordLedgerEntry(ctx, tx)
}

// processDispute freezes the disputed amount. References to unknown or
// already-disputed transactions are tolerated counterparty noise, not
// errors.
func (p *TransactionProcessor) processDispute(ctx context.Context, account *domain.Account, tx domain.Transaction) error {
	entry, ok, err := p.lookupEntry(ctx, tx)
	if err != nil || !ok {
		return err
	}
	if entry.UnderDispute {
		p.ignore(tx, "transaction already under dispute")
		return nil
	}

	if err := account.Dispute(entry.Amount); err != nil {
		return fmt.Errorf("dispute tx %d: %w", tx.TxID, err)
	}
	if err := p.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("update account %d: %w", account.ClientID, err)
	}
	return p.ledgerRepo.SetDisputed(ctx, tx.TxID, true)
}

func (p *TransactionProcessor) processResolve(ctx context.Context, account *domain.Account, tx domain.Transaction) error {
	entry, ok, err := p.lookupEntry(ctx, tx)
	if err != nil || !ok {
		return err
	}
	if !entry.UnderDispute {
		p.ignore(tx, "transaction not under dispute")
		return nil
	}

	if err := account.Resolve(entry.Amount); err != nil {
		return fmt.Errorf("resolve tx %d: %w", tx.TxID, err)
	}
	if err := p.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("update account %d: %w", account.ClientID, err)
	}
	return p.ledgerRepo.SetDisputed(ctx, tx.TxID, false)
}

// processChargeback reverses the disputed amount and locks the account.
// This is the only path that sets the lock.
func (p *TransactionProcessor) processChargeback(ctx context.Context, account *domain.Account, tx domain.Transaction) error {
	entry, ok, err := p.lookupEntry(ctx, tx)
	if err != nil || !ok {
		return err
	}
	if !entry.UnderDispute {
		p.ignore(tx, "transaction not under dispute")
		return nil
	}

	if err := account.Chargeback(entry.Amount); err != nil {
		return fmt.Errorf("chargeback tx %d: %w", tx.TxID, err)
	}
	if err := p.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("update account %d: %w", account.ClientID, err)
	}
	return p.ledgerRepo.SetDisputed(ctx, tx.TxID, false)
}

// checkLedgerAbsence enforces tx id uniqueness before any balance change,
// keeping deposit and withdrawal atomic per event.
func (p *TransactionProcessor) checkLedgerAbsence(ctx context.Context, tx domain.TxID) error {
	_, err := p.ledgerRepo.Get(ctx, tx)
	if err == nil {
		return fmt.Errorf("%w: tx %d", repository.ErrDuplicateTransaction, tx)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("ledger lookup tx %d: %w", tx, err)
	}
	return nil
}

func (p *TransactionProcessor) recordLedgerEntry(ctx context.Context, tx domain.Transaction) error {
	return p.ledgerRepo.Record(ctx, domain.LedgerEntry{
		ClientID: tx.ClientID,
		TxID:     tx.TxID,
		Amount:   tx.Amount,
	})
}

// lookupEntry fetches the referenced ledger entry for a dispute-family
// event. An unknown tx id is a defined no-op (ok=false, err=nil).
func (p *TransactionProcessor) lookupEntry(ctx context.Context, tx domain.Transaction) (domain.LedgerEntry, bool, error) {
	entry, err := p.ledgerRepo.Get(ctx, tx.TxID)
	if errors.Is(err, repository.ErrNotFound) {
		p.ignore(tx, "unknown transaction")
		return domain.LedgerEntry{}, false, nil
	}
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("ledger lookup tx %d: %w", tx.TxID, err)
	}
	return entry, true, nil
}

func (p *TransactionProcessor) ignore(tx domain.Transaction, reason string) {
	if p.metrics != nil {
		p.metrics.RecordIgnored(string(tx.Type))
	}
	if p.observer != nil {
		p.observer.EventIgnored(tx, reason)
	}
}

// failureReason maps an error to a low-cardinality metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInsufficientFundsForDispute):
		return "insufficient_funds_for_dispute"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, repository.ErrDuplicateTransaction):
		return "duplicate_transaction"
	case errors.Is(err, domain.ErrInvariantViolation):
		return "invariant_violation"
	default:
		return "internal"
	}
}
