package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"payments_engine/internal/domain"
	"payments_engine/pkg/validator"
)

// TransactionReader streams transactions out of a CSV source without
// loading the whole input into memory. Rows are
// "type,client,tx,amount" with an optional header and an optional amount
// column for dispute-family rows. Malformed rows are logged, counted and
// skipped; they never reach the caller.
type TransactionReader struct {
	csv       *csv.Reader
	validator *validator.RecordValidator
	logger    *slog.Logger
	row       int
	skipped   int
}

func NewTransactionReader(r io.Reader, v *validator.RecordValidator, logger *slog.Logger) *TransactionReader {
	if logger == nil {
		logger = slog.Default()
	}

	cr := csv.NewReader(bufio.NewReader(r))
	cr.TrimLeadingSpace = true
	// Dispute-family rows legitimately omit the amount column.
	cr.FieldsPerRecord = -1

	return &TransactionReader{
		csv:       cr,
		validator: v,
		logger:    logger,
	}
}

// Next returns the next well-formed transaction, or io.EOF once the source
// is exhausted.
func (tr *TransactionReader) Next() (domain.Transaction, error) {
	for {
		fields, err := tr.csv.Read()
		if errors.Is(err, io.EOF) {
			return domain.Transaction{}, io.EOF
		}
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("read csv: %w", err)
		}
		tr.row++

		rec, err := toRawRecord(fields)
		if err != nil {
			tr.skip(fields, err)
			continue
		}
		if tr.row == 1 && strings.EqualFold(rec.Type, "type") {
			// Header row.
			continue
		}

		tx, err := tr.validator.Validate(rec)
		if err != nil {
			tr.skip(fields, err)
			continue
		}
		return tx, nil
	}
}

// Skipped reports how many malformed rows were dropped so far.
func (tr *TransactionReader) Skipped() int {
	return tr.skipped
}

func (tr *TransactionReader) skip(fields []string, err error) {
	tr.skipped++
	tr.logger.Warn("skipping malformed record",
		slog.Int("row", tr.row),
		slog.String("record", strings.Join(fields, ",")),
		slog.String("error", err.Error()))
}

func toRawRecord(fields []string) (validator.RawRecord, error) {
	if len(fields) < 3 || len(fields) > 4 {
		return validator.RawRecord{}, fmt.Errorf("expected 3 or 4 columns, got %d", len(fields))
	}

	rec := validator.RawRecord{
		Type:   strings.TrimSpace(fields[0]),
		Client: strings.TrimSpace(fields[1]),
		Tx:     strings.TrimSpace(fields[2]),
	}
	if len(fields) == 4 {
		rec.Amount = strings.TrimSpace(fields[3])
	}
	return rec, nil
}
