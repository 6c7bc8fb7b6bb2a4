// Package mapping builds canonical token records and sparse patches from the
// heterogeneous entries the REST snapshot and the push channel deliver.
// Every lookup that has more than one possible source field goes through an
// explicit prioritized list so the precedence stays auditable.
package mapping

import (
	"strings"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/numfmt"
)

// ShortAddress truncates a long address to "abcd...wxyz" for display.
func ShortAddress(s string) string {
	if len(s) > 10 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return s
}

// FromSnapshotEntry builds a full token record from one REST snapshot entry.
// Unknown or malformed fields fall back to skeleton defaults so the record is
// always safe to render.
func FromSnapshotEntry(address string, entry map[string]any) domain.TokenRecord {
	lower := strings.ToLower(address)
	if entry == nil {
		return Skeleton(lower)
	}

	r := Skeleton(lower)

	if photo := getString(entry, "photo"); domain.UsableIcon(photo) {
		r.Icon = photo
	} else {
		r.Icon = firstString(entry, "image", "logo", "logoURI")
	}

	if name := firstString(entry, "name", "symbol"); name != "" {
		r.Name = name
	}
	r.Symbol = getString(entry, "symbol")
	r.Description = getString(entry, "description")
	r.Creator = getString(entry, "creator")
	r.Telegram = getString(entry, "telegram")
	r.Twitter = getString(entry, "x")
	r.Website = getString(entry, "website")
	r.MetadataURI = firstString(entry, "metadataUri", "metadata")
	r.TokenType = tokenType(entry, address)

	r.Volume = numfmt.FormatMoney(entry["volumeUsd"])
	r.MarketCap = numfmt.FormatMoney(entry["marketCapUsd"])
	r.Price = numfmt.FormatExactCurrency(entry["priceUsd"])

	r.Buys = getInt64(entry, "buys")
	r.Sells = getInt64(entry, "sells")
	r.Holders = getInt64(entry, "holders")
	r.HoldersPercent = getFloat(entry, "topHoldersPercentage")
	r.TxCount = getInt64(entry, "txCount")

	// Snapshot mint_time arrives in epoch milliseconds.
	if ms, ok := numfmt.ParseNumeric(entry["mint_time"]); ok {
		r.LastUpdated = numfmt.FormatLocalTime(int64(ms))
	}

	return r
}

// Skeleton produces a record with identity set and every other field at its
// documented default, so a first sighting never renders broken.
func Skeleton(address string) domain.TokenRecord {
	lower := strings.ToLower(address)
	return domain.TokenRecord{
		Address:     lower,
		Name:        ShortAddress(lower),
		Volume:      "-",
		MarketCap:   "-",
		Price:       "-",
		LastUpdated: numfmt.FormatLocalTime(time.Now().UnixMilli()),
	}
}

// FromWSPatch builds a sparse patch from a push payload: only fields present
// and non-empty in the event are set, so absent fields fall back to the prior
// record's values during the merge. The second result is the raw market tick
// when the payload carried any numeric market data, nil otherwise.
func FromWSPatch(payload map[string]any) (domain.TokenPatch, *domain.MarketTick) {
	var p domain.TokenPatch

	setString(&p.Creator, payload, "creator")
	if name := firstString(payload, "name", "symbol"); name != "" {
		p.Name = &name
	}
	setString(&p.Description, payload, "description")
	setString(&p.Twitter, payload, "x")
	setString(&p.Website, payload, "website")
	setString(&p.MetadataURI, payload, "metadataUri")

	if photo := getString(payload, "photo"); domain.UsableIcon(photo) {
		p.PhotoIcon = &photo
	}

	tick := &domain.MarketTick{}
	hasTick := false

	setCount := func(dst **int64, tickDst *int64, key string) {
		if n, ok := numfmt.ParseNumeric(payload[key]); ok {
			v := int64(n)
			*dst = &v
			*tickDst = v
			hasTick = true
		}
	}
	setCount(&p.Buys, &tick.Buys, "buys")
	setCount(&p.Sells, &tick.Sells, "sells")
	setCount(&p.Holders, &tick.Holders, "holders")
	setCount(&p.TxCount, &tick.TxCount, "txCount")

	if n, ok := numfmt.ParseNumeric(payload["topHoldersPercentage"]); ok {
		p.HoldersPercent = &n
	}

	if v, present := payload["marketCapUsd"]; present && v != nil && v != "" {
		s := numfmt.FormatMoney(v)
		p.MarketCap = &s
		if n, ok := numfmt.ParseNumeric(v); ok {
			tick.MarketCapUsd = n
			hasTick = true
		}
	}
	if v, present := payload["volumeUsd"]; present && v != nil && v != "" {
		s := numfmt.FormatMoney(v)
		p.Volume = &s
		if n, ok := numfmt.ParseNumeric(v); ok {
			tick.VolumeUsd = n
			hasTick = true
		}
	}
	if v := firstValue(payload, "priceUsd", "price"); v != nil {
		s := numfmt.FormatExactCurrency(v)
		p.Price = &s
		if n, ok := numfmt.ParseNumeric(v); ok {
			tick.PriceUsd = n
			hasTick = true
		}
	}

	// Event time may arrive in seconds or milliseconds.
	if ms := NormalizeEpochMs(firstValue(payload, "last_tx_time", "mint_time")); ms > 0 {
		s := numfmt.FormatLocalTime(ms)
		p.LastUpdated = &s
		tick.TimestampMs = ms
	}

	if !hasTick {
		return p, nil
	}
	return p, tick
}

// tokenType resolves the token type field, falling back to base58 inference
// on the raw address when the entry does not say.
func tokenType(entry map[string]any, rawAddress string) string {
	if t := getString(entry, "tokenType"); t != "" {
		return t
	}
	if v, ok := entry["SPL"]; ok && truthy(v) {
		return "SPL"
	}
	if IsSPLMint(rawAddress) {
		return "SPL"
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "0" && !strings.EqualFold(t, "false")
	case float64:
		return t != 0
	default:
		return v != nil
	}
}

func getString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// firstString returns the first non-empty string among the keys.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := getString(m, key); s != "" {
			return s
		}
	}
	return ""
}

// firstValue returns the first present, non-nil, non-empty-string value.
func firstValue(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func setString(dst **string, m map[string]any, key string) {
	if s := getString(m, key); s != "" {
		*dst = &s
	}
}

func getInt64(m map[string]any, key string) int64 {
	if n, ok := numfmt.ParseNumeric(m[key]); ok {
		return int64(n)
	}
	return 0
}

func getFloat(m map[string]any, key string) float64 {
	if n, ok := numfmt.ParseNumeric(m[key]); ok {
		return n
	}
	return 0
}
