package memory

import (
	"context"
	"sort"
	"sync"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage"
)

// MarketTickStore is an in-memory implementation of storage.MarketTickStore.
type MarketTickStore struct {
	mu        sync.RWMutex
	byAddress map[string][]*domain.MarketTick
}

// NewMarketTickStore creates a new in-memory market tick store.
func NewMarketTickStore() *MarketTickStore {
	return &MarketTickStore{
		byAddress: make(map[string][]*domain.MarketTick),
	}
}

// InsertBulk adds multiple ticks in one batch.
func (s *MarketTickStore) InsertBulk(_ context.Context, ticks []*domain.MarketTick) error {
	for _, t := range ticks {
		if t == nil || t.Address == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ticks {
		tickCopy := *t
		s.byAddress[t.Address] = append(s.byAddress[t.Address], &tickCopy)
	}
	return nil
}

// GetByAddress retrieves all ticks for an address, ordered by timestamp ASC.
func (s *MarketTickStore) GetByAddress(_ context.Context, address string) ([]*domain.MarketTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byAddress[address]
	ticks := make([]*domain.MarketTick, 0, len(stored))
	for _, t := range stored {
		tickCopy := *t
		ticks = append(ticks, &tickCopy)
	}
	sort.Slice(ticks, func(i, j int) bool {
		return ticks[i].TimestampMs < ticks[j].TimestampMs
	})
	return ticks, nil
}

var _ storage.MarketTickStore = (*MarketTickStore)(nil)
