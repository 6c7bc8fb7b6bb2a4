package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/mapping"
)

// DefaultSnapshotTimeout bounds the one-shot listing fetch.
const DefaultSnapshotTimeout = 15 * time.Second

// SnapshotConfig configures the one-shot listing fetch.
type SnapshotConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Client    *http.Client
}

// SnapshotLoader fetches the full current token listing once per session
// start and maps it into canonical records.
type SnapshotLoader struct {
	cfg    SnapshotConfig
	client *http.Client
}

// NewSnapshotLoader creates a snapshot loader.
func NewSnapshotLoader(cfg SnapshotConfig) *SnapshotLoader {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSnapshotTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &SnapshotLoader{cfg: cfg, client: client}
}

// Load performs the snapshot request and returns the mapped records in the
// listing's own order. A failure returns an empty slice alongside the error;
// the caller proceeds with an empty collection rather than aborting.
func (l *SnapshotLoader) Load(ctx context.Context) ([]domain.TokenRecord, error) {
	form := url.Values{}
	form.Set("page", "1")
	form.Set("version", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(l.cfg.BaseURL, "/")+"/tokens",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if l.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.AuthToken)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}

	return parseSnapshot(body)
}

// parseSnapshot decodes the listing payload, which arrives either directly as
// an object keyed by contract address or wrapped under "tokens" or "data".
func parseSnapshot(body []byte) ([]domain.TokenRecord, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	source := body
	for _, key := range []string{"tokens", "data"} {
		if raw, ok := top[key]; ok && isJSONObject(raw) {
			source = raw
			break
		}
	}

	entries, err := decodeOrderedObject(source)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot entries: %w", err)
	}

	records := make([]domain.TokenRecord, 0, len(entries))
	for _, e := range entries {
		var fields map[string]any
		if err := json.Unmarshal(e.value, &fields); err != nil || fields == nil {
			// Non-object entries (metadata flags etc.) are not tokens.
			continue
		}
		records = append(records, mapping.FromSnapshotEntry(e.key, fields))
	}
	return records, nil
}

type orderedEntry struct {
	key   string
	value json.RawMessage
}

// decodeOrderedObject decodes a JSON object preserving key order, which a
// plain map would lose. The listing's order is meaningful: it seeds the
// collection's initial recency order.
func decodeOrderedObject(data []byte) ([]orderedEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var entries []orderedEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		entries = append(entries, orderedEntry{key: key, value: raw})
	}
	return entries, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
