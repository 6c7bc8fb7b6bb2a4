package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"launchfeed/internal/feed"
	"launchfeed/internal/observability"
	"launchfeed/internal/storage"
	chstore "launchfeed/internal/storage/clickhouse"
	"launchfeed/internal/storage/memory"
	"launchfeed/internal/storage/migrations"
	pgstore "launchfeed/internal/storage/postgres"
)

func main() {
	// Load .env if present; system env vars win.
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	apiBase := flag.String("api-base", os.Getenv("FEED_API_BASE"), "Token listing REST base URL")
	wsURL := flag.String("ws-url", os.Getenv("FEED_WS_URL"), "Push channel WebSocket URL")
	authToken := flag.String("auth-token", os.Getenv("FEED_AUTH_TOKEN"), "Bearer token for the feed endpoints")
	gateways := flag.String("ipfs-gateways", os.Getenv("IPFS_GATEWAYS"), "Comma-separated IPFS gateway prefixes")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	maxRecords := flag.Int("max-records", feed.DefaultMaxRecords, "Collection size cap")
	addr := flag.String("addr", ":8080", "HTTP address for the token API")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[feedd] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *apiBase == "" {
		logger.Fatal("--api-base is required")
	}
	if *wsURL == "" {
		logger.Fatal("--ws-url is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	tokenStore, tickStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	session := feed.NewSession(feed.SessionOptions{
		Snapshot: feed.NewSnapshotLoader(feed.SnapshotConfig{
			BaseURL:   *apiBase,
			AuthToken: *authToken,
		}),
		Channel: feed.NewChannel(feed.ChannelConfig{
			URL:       *wsURL,
			AuthToken: *authToken,
			Logger:    log.New(os.Stdout, "[channel] ", log.LstdFlags),
		}),
		Resolver: feed.NewResolver(feed.ResolverConfig{
			Gateways: splitList(*gateways),
			Logger:   log.New(os.Stdout, "[backfill] ", log.LstdFlags),
		}),
		Collection: feed.NewCollection(*maxRecords),
		TokenStore: tokenStore,
		TickStore:  tickStore,
		Logger:     logger,
	})

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP servers
	go startAPIServer(logger, *addr, session)
	if *metricsAddr != "" {
		go startMetricsServer(logger, *metricsAddr)
	}

	// Run the session
	err = session.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Session error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates the token and tick stores, applying migrations for the
// database-backed pair.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.TokenStore, storage.MarketTickStore, func(), error) {
	if useMemory {
		return memory.NewTokenStore(), memory.NewMarketTickStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		conn.Close()
	}
	return pgstore.NewTokenStore(pool), chstore.NewMarketTickStore(conn), cleanup, nil
}

func startAPIServer(logger *log.Logger, addr string, session *feed.Session) {
	mux := http.NewServeMux()
	mux.Handle("/api/tokens", session.TokensHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Printf("Starting API server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("API server error: %v", err)
	}
}

func startMetricsServer(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	logger.Printf("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Metrics server error: %v", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
