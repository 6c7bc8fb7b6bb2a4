package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"launchfeed/internal/domain"
	"launchfeed/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts a record or replaces the stored one for the same address.
func (s *TokenStore) Upsert(ctx context.Context, rec *domain.TokenRecord) error {
	if rec == nil || rec.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (
			address, name, symbol, description, creator, token_type,
			telegram, twitter, website, metadata_uri, icon,
			volume, market_cap, price,
			buys, sells, holders, holders_percent, progress, tx_count,
			last_updated
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			description = EXCLUDED.description,
			creator = EXCLUDED.creator,
			token_type = EXCLUDED.token_type,
			telegram = EXCLUDED.telegram,
			twitter = EXCLUDED.twitter,
			website = EXCLUDED.website,
			metadata_uri = EXCLUDED.metadata_uri,
			icon = EXCLUDED.icon,
			volume = EXCLUDED.volume,
			market_cap = EXCLUDED.market_cap,
			price = EXCLUDED.price,
			buys = EXCLUDED.buys,
			sells = EXCLUDED.sells,
			holders = EXCLUDED.holders,
			holders_percent = EXCLUDED.holders_percent,
			progress = EXCLUDED.progress,
			tx_count = EXCLUDED.tx_count,
			last_updated = EXCLUDED.last_updated,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		rec.Address,
		rec.Name,
		rec.Symbol,
		rec.Description,
		rec.Creator,
		rec.TokenType,
		rec.Telegram,
		rec.Twitter,
		rec.Website,
		rec.MetadataURI,
		rec.Icon,
		rec.Volume,
		rec.MarketCap,
		rec.Price,
		rec.Buys,
		rec.Sells,
		rec.Holders,
		rec.HoldersPercent,
		rec.Progress,
		rec.TxCount,
		rec.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

// GetByAddress retrieves a record by contract address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (*domain.TokenRecord, error) {
	query := tokenSelect + ` WHERE address = $1`

	row := s.pool.QueryRow(ctx, query, address)
	rec, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return rec, nil
}

// List retrieves up to limit records, most recently updated first.
func (s *TokenStore) List(ctx context.Context, limit int) ([]*domain.TokenRecord, error) {
	query := tokenSelect + ` ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var records []*domain.TokenRecord
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}
	return records, nil
}

const tokenSelect = `
	SELECT address, name, symbol, description, creator, token_type,
	       telegram, twitter, website, metadata_uri, icon,
	       volume, market_cap, price,
	       buys, sells, holders, holders_percent, progress, tx_count,
	       last_updated
	FROM tokens
`

// scanToken scans a single row into a TokenRecord.
func scanToken(row pgx.Row) (*domain.TokenRecord, error) {
	var rec domain.TokenRecord

	err := row.Scan(
		&rec.Address,
		&rec.Name,
		&rec.Symbol,
		&rec.Description,
		&rec.Creator,
		&rec.TokenType,
		&rec.Telegram,
		&rec.Twitter,
		&rec.Website,
		&rec.MetadataURI,
		&rec.Icon,
		&rec.Volume,
		&rec.MarketCap,
		&rec.Price,
		&rec.Buys,
		&rec.Sells,
		&rec.Holders,
		&rec.HoldersPercent,
		&rec.Progress,
		&rec.TxCount,
		&rec.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}
