package ledger

import "context"

// Store is durable keyed storage of ledger entries.
//
// Put is conditional: an ISSUED entry whose non-empty transaction id already
// has an ISSUED entry is not written and Put reports false. Entries without a
// transaction id are always written.
type Store interface {
	Put(ctx context.Context, entry *Entry) (bool, error)
	Query(ctx context.Context, status Status, date string) ([]Entry, error)
	// GetByTransactionID returns the entry for id, preferring the ISSUED one,
	// or an error matching pkg/errors.ErrNotFound.
	GetByTransactionID(ctx context.Context, id string) (*Entry, error)
}
