package clickhouse

import (
	"context"
	"fmt"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage"
)

// MarketTickStore implements storage.MarketTickStore using ClickHouse.
type MarketTickStore struct {
	conn *Conn
}

// NewMarketTickStore creates a new MarketTickStore.
func NewMarketTickStore(conn *Conn) *MarketTickStore {
	return &MarketTickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MarketTickStore = (*MarketTickStore)(nil)

// InsertBulk adds multiple ticks in one batch.
func (s *MarketTickStore) InsertBulk(ctx context.Context, ticks []*domain.MarketTick) error {
	if len(ticks) == 0 {
		return nil
	}
	for _, t := range ticks {
		if t == nil || t.Address == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_ticks (
			address, timestamp_ms, price_usd, market_cap_usd, volume_usd,
			buys, sells, holders, tx_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		err = batch.Append(
			t.Address, t.TimestampMs,
			t.PriceUsd, t.MarketCapUsd, t.VolumeUsd,
			t.Buys, t.Sells, t.Holders, t.TxCount,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAddress retrieves all ticks for an address, ordered by timestamp ASC.
func (s *MarketTickStore) GetByAddress(ctx context.Context, address string) ([]*domain.MarketTick, error) {
	query := `
		SELECT address, timestamp_ms, price_usd, market_cap_usd, volume_usd,
		       buys, sells, holders, tx_count
		FROM market_ticks
		WHERE address = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query ticks by address: %w", err)
	}
	defer rows.Close()

	var ticks []*domain.MarketTick
	for rows.Next() {
		var t domain.MarketTick
		err := rows.Scan(
			&t.Address, &t.TimestampMs,
			&t.PriceUsd, &t.MarketCapUsd, &t.VolumeUsd,
			&t.Buys, &t.Sells, &t.Holders, &t.TxCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick row: %w", err)
		}
		ticks = append(ticks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick rows: %w", err)
	}
	return ticks, nil
}
