package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"payments_engine/internal/domain"
)

// SnapshotWriter serializes the final account mapping as
// "client,available,held,total,locked" rows.
type SnapshotWriter struct {
	w *csv.Writer
}

func NewSnapshotWriter(w io.Writer) *SnapshotWriter {
	return &SnapshotWriter{w: csv.NewWriter(w)}
}

// WriteAccounts writes the header and one row per account, balances
// normalized to the four-decimal amount domain. Callers pass accounts in
// the order they want them emitted.
func (sw *SnapshotWriter) WriteAccounts(accounts []domain.Account) error {
	if err := sw.w.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, account := range accounts {
		account.Normalize()
		row := []string{
			strconv.FormatUint(uint64(account.ClientID), 10),
			account.Available.String(),
			account.Held.String(),
			account.Total.String(),
			strconv.FormatBool(account.Locked),
		}
		if err := sw.w.Write(row); err != nil {
			return fmt.Errorf("write account %d: %w", account.ClientID, err)
		}
	}

	sw.w.Flush()
	return sw.w.Error()
}
