// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"loyalty/internal/ledger"
	apperrors "loyalty/pkg/errors"
)

var ErrInjected = errors.New("injected store failure")

// MemoryStore enforces the same ISSUED transaction id uniqueness as the
// database stores. Failures can be injected per operation.
type MemoryStore struct {
	mu      sync.Mutex
	entries []ledger.Entry

	puts int
	// FailPutAt makes the n-th Put call (1-based) fail; zero disables it.
	FailPutAt  int
	FailQuery  map[ledger.Status]bool
	FailLookup bool
}

func NewMemoryStore(entries ...ledger.Entry) *MemoryStore {
	return &MemoryStore{entries: append([]ledger.Entry(nil), entries...)}
}

func (s *MemoryStore) Put(_ context.Context, entry *ledger.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++
	if s.FailPutAt > 0 && s.puts == s.FailPutAt {
		return false, apperrors.StoreUnavailable("ledger.put", ErrInjected)
	}
	if err := entry.Validate(); err != nil {
		return false, apperrors.ErrValidation.WithCause(err)
	}

	if entry.Status == ledger.StatusIssued && entry.TransactionID != "" {
		for _, e := range s.entries {
			if e.Status == ledger.StatusIssued && e.TransactionID == entry.TransactionID {
				return false, nil
			}
		}
	}

	s.entries = append(s.entries, *entry)
	return true, nil
}

func (s *MemoryStore) Query(_ context.Context, status ledger.Status, date string) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQuery[status] {
		return nil, apperrors.StoreUnavailable("ledger.query", ErrInjected)
	}

	result := make([]ledger.Entry, 0)
	for _, e := range s.entries {
		if e.Status == status && e.Date == date {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *MemoryStore) GetByTransactionID(_ context.Context, id string) (*ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailLookup {
		return nil, apperrors.StoreUnavailable("ledger.get", ErrInjected)
	}

	var found *ledger.Entry
	for i := range s.entries {
		e := s.entries[i]
		if e.TransactionID != id {
			continue
		}
		if e.Status == ledger.StatusIssued {
			return &e, nil
		}
		if found == nil {
			found = &e
		}
	}
	if found == nil {
		return nil, apperrors.ErrNotFound.WithDetail("transaction_id", id)
	}
	return found, nil
}

// Entries returns a copy of everything written so far.
func (s *MemoryStore) Entries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Entry(nil), s.entries...)
}

// Issued counts ISSUED entries carrying transactionID.
func (s *MemoryStore) Issued(transactionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.Status == ledger.StatusIssued && e.TransactionID == transactionID {
			n++
		}
	}
	return n
}
