package feed

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"launchfeed/internal/domain"
	"launchfeed/internal/observability"
	"launchfeed/internal/storage"
)

// DefaultTickFlushInterval is how often buffered market ticks are written out.
const DefaultTickFlushInterval = 5 * time.Second

// SessionOptions contains configuration for creating a Session.
type SessionOptions struct {
	Snapshot *SnapshotLoader
	Channel  *Channel
	Resolver *Resolver

	// Collection defaults to a new one with DefaultMaxRecords.
	Collection *Collection

	// Optional persistence. Nil stores disable archiving.
	TokenStore storage.TokenStore
	TickStore  storage.MarketTickStore

	FlushInterval time.Duration
	Logger        *log.Logger
}

// Session owns the live token collection for one process lifetime. It is the
// single writer: snapshot records, push updates and backfill results all
// funnel through its event loop, so merges never race.
type Session struct {
	snapshot   *SnapshotLoader
	channel    *Channel
	resolver   *Resolver
	collection *Collection

	tokenStore storage.TokenStore
	tickStore  storage.MarketTickStore

	flushInterval time.Duration
	logger        *log.Logger

	loading      atomic.Bool
	pendingTicks []*domain.MarketTick
}

// NewSession creates a new session.
func NewSession(opts SessionOptions) *Session {
	collection := opts.Collection
	if collection == nil {
		collection = NewCollection(DefaultMaxRecords)
	}
	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = DefaultTickFlushInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Session{
		snapshot:      opts.Snapshot,
		channel:       opts.Channel,
		resolver:      opts.Resolver,
		collection:    collection,
		tokenStore:    opts.TokenStore,
		tickStore:     opts.TickStore,
		flushInterval: flushInterval,
		logger:        logger,
	}
	s.loading.Store(true)
	return s
}

// Tokens returns the current collection contents, most recent first.
func (s *Session) Tokens() []domain.TokenRecord {
	return s.collection.Snapshot()
}

// Loading reports whether the initial snapshot is still in flight.
func (s *Session) Loading() bool {
	return s.loading.Load()
}

// Run starts the session and blocks until the context is cancelled.
func (s *Session) Run(ctx context.Context) error {
	var updates <-chan *domain.TokenUpdate
	if s.channel != nil {
		updates = s.channel.Subscribe(ctx)
		s.logger.Println("[session] subscribed to live feed")
	}

	var results <-chan *BackfillResult
	if s.resolver != nil {
		results = s.resolver.Results()
	}

	snapCh := make(chan []domain.TokenRecord, 1)
	if s.snapshot != nil {
		go func() {
			start := time.Now()
			records, err := s.snapshot.Load(ctx)
			observability.RecordSnapshot(time.Since(start).Seconds(), len(records))
			if err != nil {
				// The session still runs: the collection fills from the
				// live feed alone.
				s.logger.Printf("[session] snapshot load: %v", err)
			}
			snapCh <- records
		}()
	} else {
		s.loading.Store(false)
		snapCh = nil
	}

	flushTicker := time.NewTicker(s.flushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushTicks(context.WithoutCancel(ctx))
			s.logger.Println("[session] stopping")
			return ctx.Err()

		case records := <-snapCh:
			s.seedSnapshot(ctx, records)
			s.loading.Store(false)
			snapCh = nil

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.handleUpdate(ctx, u)

		case res := <-results:
			s.handleBackfill(ctx, res)

		case <-flushTicker.C:
			s.flushTicks(ctx)
		}
	}
}

func (s *Session) seedSnapshot(ctx context.Context, records []domain.TokenRecord) {
	for _, rec := range records {
		s.collection.SeedRecord(rec)
		merged, ok := s.collection.Get(rec.Address)
		if !ok {
			continue
		}
		if !merged.HasUsableIcon() && merged.MetadataURI != "" && s.resolver != nil {
			s.resolver.Dispatch(ctx, merged.Address, merged.MetadataURI)
		}
		s.archive(ctx, &merged)
	}
	observability.SetCollectionSize(s.collection.Len())
	s.logger.Printf("[session] snapshot seeded %d tokens", len(records))
}

func (s *Session) handleUpdate(ctx context.Context, u *domain.TokenUpdate) {
	rec, evicted := s.collection.ApplyUpdate(u)
	observability.RecordTokenUpsert()
	observability.RecordEvictions(evicted)
	observability.SetCollectionSize(s.collection.Len())

	if !u.PhotoOK && u.MetadataURI != "" && s.resolver != nil {
		s.resolver.Dispatch(ctx, u.Address, u.MetadataURI)
	}

	s.archive(ctx, &rec)

	if u.Tick != nil {
		tick := *u.Tick
		s.pendingTicks = append(s.pendingTicks, &tick)
	}
}

func (s *Session) handleBackfill(ctx context.Context, res *BackfillResult) {
	if !s.collection.ApplyMetadata(res.Address, res.Icon, res.Name, res.Description) {
		return
	}
	observability.RecordBackfillApplied()
	if rec, ok := s.collection.Get(res.Address); ok {
		s.archive(ctx, &rec)
	}
}

func (s *Session) archive(ctx context.Context, rec *domain.TokenRecord) {
	if s.tokenStore == nil {
		return
	}
	start := time.Now()
	err := s.tokenStore.Upsert(ctx, rec)
	observability.RecordDBQuery("postgres", "upsert_token", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Printf("[session] archive %s: %v", rec.Address, err)
	}
}

func (s *Session) flushTicks(ctx context.Context) {
	if s.tickStore == nil || len(s.pendingTicks) == 0 {
		return
	}
	ticks := s.pendingTicks
	s.pendingTicks = nil

	start := time.Now()
	err := s.tickStore.InsertBulk(ctx, ticks)
	observability.RecordDBQuery("clickhouse", "insert_ticks", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Printf("[session] flush %d ticks: %v", len(ticks), err)
		return
	}
	observability.RecordTicksStored(len(ticks))
}
