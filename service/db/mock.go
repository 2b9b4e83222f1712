package db

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory implementation of the Store journal methods for testing.
type MockStore struct {
	mu      sync.RWMutex
	entries map[string]*JournalEntry
	err     error
	now     func() time.Time
}

// NewMockStore creates a new empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		entries: make(map[string]*JournalEntry),
		now:     time.Now,
	}
}

// RecordPrepared stores the entry unless the message is already journaled.
func (m *MockStore) RecordPrepared(ctx context.Context, params RecordPreparedParams) (*JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	digest := MessageDigest(params.Message)
	if existing, ok := m.entries[digest]; ok {
		return cloneEntry(existing), nil
	}

	entry := &JournalEntry{
		MessageDigest: digest,
		Shape:         params.Shape,
		FromAddress:   params.FromAddress,
		ToAddress:     params.ToAddress,
		TokenMint:     params.TokenMint,
		Amount:        params.Amount,
		Decimals:      params.Decimals,
		Blockhash:     params.Blockhash,
		Message:       append([]byte(nil), params.Message...),
		Status:        StatusPrepared,
		CreatedAt:     m.now().UTC(),
	}
	m.entries[digest] = entry
	return cloneEntry(entry), nil
}

// RecordSigned marks a journaled message as signed.
func (m *MockStore) RecordSigned(ctx context.Context, params RecordSignedParams) (*JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	entry, ok := m.entries[MessageDigest(params.Message)]
	if !ok {
		return nil, ErrNotFound
	}

	signedAt := m.now().UTC()
	id := params.TransactionID
	entry.Status = StatusSigned
	entry.TransactionID = &id
	entry.SignedTransaction = append([]byte(nil), params.SignedTransaction...)
	entry.SignedAt = &signedAt
	return cloneEntry(entry), nil
}

// GetByDigest returns the entry for a message digest.
func (m *MockStore) GetByDigest(ctx context.Context, digest string) (*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	entry, ok := m.entries[digest]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(entry), nil
}

// GetByTransactionID returns the signed entry with the given id.
func (m *MockStore) GetByTransactionID(ctx context.Context, transactionID string) (*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	for _, entry := range m.entries {
		if entry.TransactionID != nil && *entry.TransactionID == transactionID {
			return cloneEntry(entry), nil
		}
	}
	return nil, ErrNotFound
}

// ListByAddress returns entries sent from or to an address, newest first.
func (m *MockStore) ListByAddress(ctx context.Context, params ListByAddressParams) ([]*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	matches := make([]*JournalEntry, 0)
	for _, entry := range m.entries {
		if entry.FromAddress == params.Address || entry.ToAddress == params.Address {
			matches = append(matches, cloneEntry(entry))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	offset := int(params.Offset)
	if offset >= len(matches) {
		return []*JournalEntry{}, nil
	}
	matches = matches[offset:]
	if params.Limit > 0 && int(params.Limit) < len(matches) {
		matches = matches[:params.Limit]
	}
	return matches, nil
}

// SetError configures the mock to fail every call with err.
func (m *MockStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetClock overrides the time source used for CreatedAt and SignedAt.
func (m *MockStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Count returns the number of journaled messages.
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cloneEntry(e *JournalEntry) *JournalEntry {
	c := *e
	return &c
}
