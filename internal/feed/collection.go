// Package feed implements the real-time token feed: the snapshot loader, the
// push channel, the metadata backfill resolver, and the collection reconciler
// that owns the canonical in-memory token set.
package feed

import (
	"sync"

	"launchfeed/internal/domain"
	"launchfeed/internal/mapping"
	"launchfeed/internal/numfmt"
)

// DefaultMaxRecords caps the canonical collection size.
const DefaultMaxRecords = 300

// Collection is the canonical ordered token set: most-recently-touched first,
// unique by lowercase contract address, bounded by eviction from the tail.
// It is the single authoritative mutation point; the snapshot loader, the
// push channel, and the backfill resolver all route their records through it.
type Collection struct {
	mu      sync.RWMutex
	max     int
	records []domain.TokenRecord
}

// NewCollection creates an empty collection with the given size cap.
// A non-positive max falls back to DefaultMaxRecords.
func NewCollection(max int) *Collection {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &Collection{max: max}
}

// ApplyUpdate upserts one push event into the collection: field-level merge
// with absent patch fields keeping the prior record's values, move-to-front
// placement, dedupe, and tail eviction. Returns the merged record and the
// number of records evicted.
func (c *Collection) ApplyUpdate(u *domain.TokenUpdate) (domain.TokenRecord, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.find(u.Address)

	var rec domain.TokenRecord
	if idx >= 0 {
		rec = c.records[idx]
	} else {
		rec = mapping.Skeleton(u.Address)
	}

	mergePatch(&rec, &u.Patch)

	// Icon precedence: validated photo wins, then the patch icon, then
	// whatever the record already had. A valid icon never regresses.
	switch {
	case u.Patch.PhotoIcon != nil:
		rec.Icon = *u.Patch.PhotoIcon
	case u.Patch.Icon != nil:
		rec.Icon = *u.Patch.Icon
	}

	// Timestamp precedence: explicit patch time, then normalized mint time,
	// then the prior value (a brand-new skeleton is already stamped now).
	if u.Patch.LastUpdated == nil && u.MintTimeMs > 0 {
		rec.LastUpdated = numfmt.FormatLocalTime(u.MintTimeMs)
	}

	if idx >= 0 {
		c.records = append(c.records[:idx], c.records[idx+1:]...)
	}
	c.records = append([]domain.TokenRecord{rec}, c.records...)

	c.dedupe()
	evicted := c.evict()

	return rec, evicted
}

// SeedRecord merges one snapshot record into the collection. Non-default
// fields of the incoming record win; fields a concurrent push event already
// filled are kept when the snapshot has nothing better. Seeded records append
// behind existing ones rather than jumping to the front.
func (c *Collection) SeedRecord(rec domain.TokenRecord) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.find(rec.Address)
	if idx >= 0 {
		prior := c.records[idx]
		mergeRecord(&prior, &rec)
		c.records[idx] = prior
	} else {
		c.records = append(c.records, rec)
	}

	c.dedupe()
	return c.evict()
}

// ApplyMetadata soft-patches a record with resolved metadata: the icon only
// when the record has no usable one, name and description only when unset.
// A record that has since been evicted is a no-op.
func (c *Collection) ApplyMetadata(address, icon, name, description string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.find(address)
	if idx < 0 {
		return false
	}

	rec := &c.records[idx]
	changed := false

	if domain.UsableIcon(icon) && !rec.HasUsableIcon() {
		rec.Icon = icon
		changed = true
	}
	if rec.Name == "" || rec.Name == mapping.ShortAddress(rec.Address) {
		if name != "" {
			rec.Name = name
			changed = true
		}
	}
	if rec.Description == "" && description != "" {
		rec.Description = description
		changed = true
	}

	return changed
}

// Get returns a copy of the record for an address.
func (c *Collection) Get(address string) (domain.TokenRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := c.find(address)
	if idx < 0 {
		return domain.TokenRecord{}, false
	}
	return c.records[idx], true
}

// Snapshot returns a copy of the ordered collection.
func (c *Collection) Snapshot() []domain.TokenRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.TokenRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Len returns the current collection size.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// find locates a record by identity. The collection is capped small enough
// that a linear scan stays cheap.
func (c *Collection) find(address string) int {
	for i := range c.records {
		if c.records[i].Address == address {
			return i
		}
	}
	return -1
}

// dedupe drops any later duplicate of an identity already seen, keeping the
// frontmost (most recent) occurrence.
func (c *Collection) dedupe() {
	seen := make(map[string]struct{}, len(c.records))
	out := c.records[:0]
	for _, rec := range c.records {
		if _, dup := seen[rec.Address]; dup {
			continue
		}
		seen[rec.Address] = struct{}{}
		out = append(out, rec)
	}
	c.records = out
}

// evict truncates the oldest records beyond the cap and returns the count.
func (c *Collection) evict() int {
	if len(c.records) <= c.max {
		return 0
	}
	n := len(c.records) - c.max
	c.records = c.records[:c.max]
	return n
}

// mergePatch overwrites rec's fields with every field present in the patch.
// Icon handling is done by the caller because of the photo precedence rule.
func mergePatch(rec *domain.TokenRecord, p *domain.TokenPatch) {
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.Symbol != nil {
		rec.Symbol = *p.Symbol
	}
	if p.Description != nil {
		rec.Description = *p.Description
	}
	if p.Creator != nil {
		rec.Creator = *p.Creator
	}
	if p.TokenType != nil {
		rec.TokenType = *p.TokenType
	}
	if p.Telegram != nil {
		rec.Telegram = *p.Telegram
	}
	if p.Twitter != nil {
		rec.Twitter = *p.Twitter
	}
	if p.Website != nil {
		rec.Website = *p.Website
	}
	if p.MetadataURI != nil {
		rec.MetadataURI = *p.MetadataURI
	}
	if p.Volume != nil {
		rec.Volume = *p.Volume
	}
	if p.MarketCap != nil {
		rec.MarketCap = *p.MarketCap
	}
	if p.Price != nil {
		rec.Price = *p.Price
	}
	if p.Buys != nil {
		rec.Buys = *p.Buys
	}
	if p.Sells != nil {
		rec.Sells = *p.Sells
	}
	if p.Holders != nil {
		rec.Holders = *p.Holders
	}
	if p.HoldersPercent != nil {
		rec.HoldersPercent = *p.HoldersPercent
	}
	if p.Progress != nil {
		rec.Progress = *p.Progress
	}
	if p.TxCount != nil {
		rec.TxCount = *p.TxCount
	}
	if p.LastUpdated != nil {
		rec.LastUpdated = *p.LastUpdated
	}
}

// mergeRecord overlays a full snapshot record onto a prior one: non-empty
// incoming fields win, empty ones keep what is already there.
func mergeRecord(prior, incoming *domain.TokenRecord) {
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&prior.Name, incoming.Name)
	setIf(&prior.Symbol, incoming.Symbol)
	setIf(&prior.Description, incoming.Description)
	setIf(&prior.Creator, incoming.Creator)
	setIf(&prior.TokenType, incoming.TokenType)
	setIf(&prior.Telegram, incoming.Telegram)
	setIf(&prior.Twitter, incoming.Twitter)
	setIf(&prior.Website, incoming.Website)
	setIf(&prior.MetadataURI, incoming.MetadataURI)
	setIf(&prior.LastUpdated, incoming.LastUpdated)

	if domain.UsableIcon(incoming.Icon) && !prior.HasUsableIcon() {
		prior.Icon = incoming.Icon
	}

	display := func(dst *string, v string) {
		if v != "" && v != "-" {
			*dst = v
		}
	}
	display(&prior.Volume, incoming.Volume)
	display(&prior.MarketCap, incoming.MarketCap)
	display(&prior.Price, incoming.Price)

	count := func(dst *int64, v int64) {
		if v != 0 {
			*dst = v
		}
	}
	count(&prior.Buys, incoming.Buys)
	count(&prior.Sells, incoming.Sells)
	count(&prior.Holders, incoming.Holders)
	count(&prior.TxCount, incoming.TxCount)

	if incoming.HoldersPercent != 0 {
		prior.HoldersPercent = incoming.HoldersPercent
	}
	if incoming.Progress != 0 {
		prior.Progress = incoming.Progress
	}
}
