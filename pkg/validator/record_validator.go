package validator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"payments_engine/internal/domain"
)

var (
	ErrUnknownType     = errors.New("unknown transaction type")
	ErrInvalidClientID = errors.New("invalid client id")
	ErrInvalidTxID     = errors.New("invalid transaction id")
	ErrMissingAmount   = errors.New("missing amount")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrAmountPrecision = errors.New("amount exceeds four decimal places")
)

// RawRecord is one untyped row from the input, fields still as strings.
type RawRecord struct {
	Type   string
	Client string
	Tx     string
	Amount string
}

// RecordValidator is the upstream filter in front of the processing core:
// only well-typed transactions with a present, positive, four-decimal-place
// amount (for deposits and withdrawals) ever reach it. Malformed records are
// rejected here and never delivered.
type RecordValidator struct{}

func NewRecordValidator() *RecordValidator {
	return &RecordValidator{}
}

// Validate maps a raw record to a domain transaction or explains why it is
// malformed.
func (v *RecordValidator) Validate(rec RawRecord) (domain.Transaction, error) {
	txType := strings.ToLower(strings.TrimSpace(rec.Type))
	if !domain.KnownType(txType) {
		return domain.Transaction{}, fmt.Errorf("%w: %q", ErrUnknownType, rec.Type)
	}

	client, err := strconv.ParseUint(strings.TrimSpace(rec.Client), 10, 16)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %q", ErrInvalidClientID, rec.Client)
	}

	tx, err := strconv.ParseUint(strings.TrimSpace(rec.Tx), 10, 32)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %q", ErrInvalidTxID, rec.Tx)
	}

	kind := domain.TransactionType(txType)

	var amount decimal.Decimal
	if kind.RequiresAmount() {
		amount, err = v.parseAmount(rec.Amount)
		if err != nil {
			return domain.Transaction{}, err
		}
	}
	// Dispute-family rows may carry a stray amount column; it is ignored.

	return domain.NewTransaction(kind, domain.ClientID(client), domain.TxID(tx), amount), nil
}

func (v *RecordValidator) parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, ErrMissingAmount
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q must be positive", ErrInvalidAmount, raw)
	}
	// Rounding a sub-unit remainder away silently would lose money; reject
	// instead.
	if !amount.Equal(amount.Round(4)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrAmountPrecision, raw)
	}
	return amount, nil
}
