package memory

import (
	"payments_engine/internal/repository"
)

var (
	_ repository.AccountRepository = (*AccountRepository)(nil)
	_ repository.LedgerRepository  = (*LedgerRepository)(nil)
)
