package storage

import (
	"context"

	"launchfeed/internal/domain"
)

// TokenStore provides access to token record storage.
type TokenStore interface {
	// Upsert inserts a record or replaces the stored one for the same address.
	Upsert(ctx context.Context, rec *domain.TokenRecord) error

	// GetByAddress retrieves a record by contract address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.TokenRecord, error)

	// List retrieves up to limit records, most recently updated first.
	// A limit of zero or less means no limit.
	List(ctx context.Context, limit int) ([]*domain.TokenRecord, error)
}

// MarketTickStore provides access to market tick storage.
type MarketTickStore interface {
	// InsertBulk adds multiple ticks in one batch.
	InsertBulk(ctx context.Context, ticks []*domain.MarketTick) error

	// GetByAddress retrieves all ticks for an address, ordered by timestamp ASC.
	GetByAddress(ctx context.Context, address string) ([]*domain.MarketTick, error)
}
