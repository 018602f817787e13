package processor

import (
	"payments_engine/internal/domain"
)

// Observer receives events the processor could not apply. Rejections are
// real failures (insufficient funds, duplicates, locked accounts); ignored
// events are the defined no-ops for dispute-family references that name an
// unknown or wrong-state transaction. Both are diagnostics only and never
// influence processing.
type Observer interface {
	EventRejected(tx domain.Transaction, err error)
	EventIgnored(tx domain.Transaction, reason string)
}
