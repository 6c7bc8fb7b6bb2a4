package mapping

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"launchfeed/internal/numfmt"
)

// payloadKeys are the nested locations a push frame may carry its payload
// under, in priority order.
var payloadKeys = [][]string{
	{"push", "pub", "data"},
	{"push", "data"},
	{"data"},
	{"payload"},
	{"d"},
}

// identityKeys are the field names a payload may carry the contract address
// under, in priority order.
var identityKeys = []string{"ca", "token", "address", "mint", "contract"}

// ExtractPayload locates the event payload inside a decoded push frame.
// The payload may be nested under several key paths and may itself be a
// JSON-encoded string. Returns false when no usable payload is present.
func ExtractPayload(msg map[string]any) (map[string]any, bool) {
	for _, path := range payloadKeys {
		v, ok := lookupPath(msg, path)
		if !ok || v == nil {
			continue
		}
		switch p := v.(type) {
		case map[string]any:
			return p, true
		case string:
			var decoded map[string]any
			if err := json.Unmarshal([]byte(p), &decoded); err != nil {
				return nil, false
			}
			return decoded, true
		default:
			return nil, false
		}
	}
	return nil, false
}

func lookupPath(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ExtractIdentity pulls the contract address out of a payload, checking the
// known field names in priority order. Non-string values are coerced to their
// string form. It returns both the raw value and the lowercase canonical
// identity; ok is false when no identity is present.
func ExtractIdentity(payload map[string]any) (identity, raw string, ok bool) {
	for _, key := range identityKeys {
		v, present := payload[key]
		if !present || v == nil {
			continue
		}
		s := stringify(v)
		if s == "" {
			continue
		}
		return strings.ToLower(s), s, true
	}
	return "", "", false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// NormalizeEpochMs converts a timestamp that may arrive in seconds or
// milliseconds into milliseconds. Values above 1e12 are already milliseconds.
// Returns 0 for absent or non-numeric input.
func NormalizeEpochMs(v any) int64 {
	n, ok := numfmt.ParseNumeric(v)
	if !ok || n <= 0 {
		return 0
	}
	if n > 1e12 {
		return int64(n)
	}
	return int64(n) * 1000
}

// IsSPLMint reports whether a raw (case-sensitive) contract address decodes
// as a 32-byte base58 value, i.e. looks like an SPL token mint.
func IsSPLMint(raw string) bool {
	decoded, err := base58.Decode(raw)
	return err == nil && len(decoded) == 32
}
