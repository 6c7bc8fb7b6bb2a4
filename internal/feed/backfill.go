package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"launchfeed/internal/observability"
)

// DefaultBackfillTimeout bounds a single metadata document fetch.
const DefaultBackfillTimeout = 12 * time.Second

// DefaultGateways is the IPFS gateway list used when none is configured.
// Only the first entry is ever used; the rest are spares for operators.
var DefaultGateways = []string{"https://ipfs.io/ipfs/"}

// BackfillResult carries the fields recovered from one metadata document.
// A result always has an icon; documents without an image reference are
// dropped without producing one. Other empty fields were absent.
type BackfillResult struct {
	Address     string
	Icon        string
	Name        string
	Description string
}

// ResolverConfig configures the metadata backfill resolver.
type ResolverConfig struct {
	Gateways []string
	Timeout  time.Duration
	Client   *http.Client
	Logger   *log.Logger
}

// Resolver fetches token metadata documents for records that arrived without
// a usable image. Each (address, uri) pair is fetched at most once per
// process lifetime, no matter how many events re-announce it.
type Resolver struct {
	cfg    ResolverConfig
	client *http.Client
	logger *log.Logger

	mu   sync.Mutex
	seen map[string]struct{}

	results chan *BackfillResult
	wg      sync.WaitGroup
}

// NewResolver creates a backfill resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	if len(cfg.Gateways) == 0 {
		cfg.Gateways = DefaultGateways
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultBackfillTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Resolver{
		cfg:     cfg,
		client:  client,
		logger:  cfg.Logger,
		seen:    make(map[string]struct{}),
		results: make(chan *BackfillResult, 64),
	}
}

// Results returns the channel on which resolved metadata is delivered.
func (r *Resolver) Results() <-chan *BackfillResult {
	return r.results
}

// Dispatch schedules a metadata fetch for the pair unless it was already
// dispatched. The ledger entry is inserted before the fetch starts, so a
// burst of duplicate events produces exactly one outbound request even if
// the first fetch is still in flight. Reports whether a fetch was started.
func (r *Resolver) Dispatch(ctx context.Context, address, uri string) bool {
	if address == "" || uri == "" {
		return false
	}

	key := address + ":" + uri
	r.mu.Lock()
	if _, dup := r.seen[key]; dup {
		r.mu.Unlock()
		return false
	}
	r.seen[key] = struct{}{}
	r.mu.Unlock()

	observability.RecordBackfillDispatched()
	r.wg.Add(1)
	go r.resolve(ctx, address, uri)
	return true
}

// Wait blocks until all in-flight fetches have finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) resolve(ctx context.Context, address, uri string) {
	defer r.wg.Done()

	result, err := r.fetch(ctx, address, uri)
	if err != nil {
		// Backfill is best effort: the record keeps its placeholder.
		observability.RecordBackfillError()
		r.logger.Printf("[backfill] %s: %v", address, err)
		return
	}
	if result == nil {
		// Document carried no image reference; nothing is applied.
		return
	}

	select {
	case r.results <- result:
	case <-ctx.Done():
	}
}

func (r *Resolver) fetch(ctx context.Context, address, uri string) (*BackfillResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.gatewayURL(uri), nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch metadata: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	icon := ""
	for _, key := range []string{"image", "logo", "icon"} {
		if s, ok := doc[key].(string); ok && s != "" {
			icon = r.gatewayURL(s)
			break
		}
	}
	if icon == "" {
		return nil, nil
	}

	result := &BackfillResult{Address: address, Icon: icon}
	if s, ok := doc["name"].(string); ok {
		result.Name = s
	}
	if s, ok := doc["description"].(string); ok {
		result.Description = s
	}
	return result, nil
}

// gatewayURL rewrites ipfs:// URIs through the first configured gateway.
// Plain HTTP URIs pass through unchanged.
func (r *Resolver) gatewayURL(uri string) string {
	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return r.cfg.Gateways[0] + cid
	}
	return uri
}
