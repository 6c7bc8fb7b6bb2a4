// Package domain defines the canonical data types shared across the feed
// pipeline: the display-ready token record, the sparse patch shape produced
// from push events, and the raw market tick extracted alongside it.
package domain

import "strings"

// PlaceholderIconSuffix marks the upstream "no image" sentinel. An icon whose
// path ends with it is treated the same as an empty icon.
const PlaceholderIconSuffix = "empty.gif"

// TokenRecord is the canonical unit of display data for one token.
// Identity is the lowercase contract address; every other field has a defined
// default so a record never renders partially undefined.
type TokenRecord struct {
	Address     string `json:"ca"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Creator     string `json:"creator"`
	TokenType   string `json:"tokenType"`
	Telegram    string `json:"telegram"`
	Twitter     string `json:"x"`
	Website     string `json:"website"`
	MetadataURI string `json:"metadataUri"`
	Icon        string `json:"icon"`

	// Display strings derived from raw numerics ("-" when unknown).
	Volume    string `json:"volume"`
	MarketCap string `json:"marketCap"`
	Price     string `json:"price"`

	Buys           int64   `json:"buys"`
	Sells          int64   `json:"sells"`
	Holders        int64   `json:"holders"`
	HoldersPercent float64 `json:"holdersPercent"`
	Progress       float64 `json:"percent"`
	TxCount        int64   `json:"txCount"`

	// LastUpdated is a localized timestamp string.
	LastUpdated string `json:"time"`
}

// HasUsableIcon reports whether the record carries a real image, i.e. the
// icon is non-empty and not the upstream placeholder.
func (r *TokenRecord) HasUsableIcon() bool {
	return UsableIcon(r.Icon)
}

// UsableIcon reports whether an icon value is non-empty and not a placeholder.
func UsableIcon(icon string) bool {
	return icon != "" && !strings.HasSuffix(strings.ToLower(icon), PlaceholderIconSuffix)
}

// TokenPatch is a sparse update for a single token. Nil fields are absent and
// must not overwrite prior values during a merge.
type TokenPatch struct {
	Name        *string
	Symbol      *string
	Description *string
	Creator     *string
	TokenType   *string
	Telegram    *string
	Twitter     *string
	Website     *string
	MetadataURI *string

	// PhotoIcon is an icon taken from a validated photo field. It has merge
	// priority over Icon, which comes from the weaker image/logo fields.
	PhotoIcon *string
	Icon      *string

	Volume    *string
	MarketCap *string
	Price     *string

	Buys           *int64
	Sells          *int64
	Holders        *int64
	HoldersPercent *float64
	Progress       *float64
	TxCount        *int64

	LastUpdated *string
}

// TokenUpdate is one accepted push event after payload normalization: the
// lowercase identity, the sparse patch, and the extras the reconciler and the
// backfill resolver need to make dispatch decisions.
type TokenUpdate struct {
	Address     string
	Patch       TokenPatch
	MetadataURI string
	MintTimeMs  int64 // 0 when the event carried no mint/creation time
	PhotoOK     bool  // payload carried a usable (non-placeholder) photo
	Tick        *MarketTick
}
