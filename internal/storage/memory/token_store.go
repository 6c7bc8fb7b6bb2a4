package memory

import (
	"context"
	"sort"
	"sync"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu        sync.RWMutex
	byAddress map[string]*domain.TokenRecord
	seq       map[string]uint64 // upsert sequence, for recency ordering
	nextSeq   uint64
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byAddress: make(map[string]*domain.TokenRecord),
		seq:       make(map[string]uint64),
	}
}

// Upsert inserts a record or replaces the stored one for the same address.
func (s *TokenStore) Upsert(_ context.Context, rec *domain.TokenRecord) error {
	if rec == nil || rec.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := *rec
	s.byAddress[rec.Address] = &recCopy
	s.nextSeq++
	s.seq[rec.Address] = s.nextSeq
	return nil
}

// GetByAddress retrieves a record by contract address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, address string) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byAddress[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// List retrieves up to limit records, most recently upserted first.
func (s *TokenStore) List(_ context.Context, limit int) ([]*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.TokenRecord, 0, len(s.byAddress))
	for _, rec := range s.byAddress {
		recCopy := *rec
		records = append(records, &recCopy)
	}
	sort.Slice(records, func(i, j int) bool {
		return s.seq[records[i].Address] > s.seq[records[j].Address]
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
