package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"launchfeed/internal/storage/memory"
)

// feedServer is a minimal push endpoint: it acks the connect and subscribe
// frames, then writes the given publish frames.
func feedServer(t *testing.T, publishes []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 0; i < 3; i++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		for _, p := range publishes {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSession_SnapshotLiveAndBackfill(t *testing.T) {
	meta := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"image": "ipfs://QmImg", "description": "backfilled"}`))
	}))
	defer meta.Close()

	snap := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tokens": {"aaa": {"name": "Alpha", "price": "0.01", "metadata": "ipfs://QmA"}}}`))
	}))
	defer snap.Close()

	ws := feedServer(t, []string{
		`{"push": {"pub": {"data": {"ca": "BBB", "symbol": "BET", "priceUsd": 0.5, "marketCapUsd": 12000}}}}`,
		`{"push": {"pub": {"data": {"ca": "aaa", "priceUsd": 0.02}}}}`,
	})
	defer ws.Close()

	tokenStore := memory.NewTokenStore()
	tickStore := memory.NewMarketTickStore()

	session := NewSession(SessionOptions{
		Snapshot:      NewSnapshotLoader(SnapshotConfig{BaseURL: snap.URL}),
		Channel:       testChannel(wsURL(ws)),
		Resolver:      NewResolver(ResolverConfig{Gateways: []string{meta.URL + "/ipfs/"}}),
		TokenStore:    tokenStore,
		TickStore:     tickStore,
		FlushInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	waitFor(t, 3*time.Second, func() bool {
		if session.Loading() || session.collection.Len() != 2 {
			return false
		}
		rec, ok := session.collection.Get("aaa")
		return ok && rec.HasUsableIcon()
	})

	tokens := session.Tokens()
	if tokens[0].Address != "bbb" && tokens[1].Address != "bbb" {
		t.Fatalf("push identity not lowercased: %+v", tokens)
	}

	alpha, _ := session.collection.Get("aaa")
	if alpha.Name != "Alpha" {
		t.Errorf("Name = %q, want snapshot name preserved", alpha.Name)
	}
	if alpha.Price != "$0.02" {
		t.Errorf("Price = %q, want live update applied", alpha.Price)
	}
	if want := meta.URL + "/ipfs/QmImg"; alpha.Icon != want {
		t.Errorf("Icon = %q, want backfilled %q", alpha.Icon, want)
	}
	if alpha.Description != "backfilled" {
		t.Errorf("Description = %q", alpha.Description)
	}

	// Archive and tick persistence.
	waitFor(t, 3*time.Second, func() bool {
		if _, err := tokenStore.GetByAddress(context.Background(), "bbb"); err != nil {
			return false
		}
		ticks, _ := tickStore.GetByAddress(context.Background(), "bbb")
		return len(ticks) == 1
	})
	ticks, _ := tickStore.GetByAddress(context.Background(), "bbb")
	if ticks[0].PriceUsd != 0.5 || ticks[0].MarketCapUsd != 12000 {
		t.Errorf("tick = %+v", ticks[0])
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSession_SnapshotFailureKeepsRunning(t *testing.T) {
	snap := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer snap.Close()

	ws := feedServer(t, []string{
		`{"push": {"pub": {"data": {"ca": "ccc", "name": "Gamma"}}}}`,
	})
	defer ws.Close()

	session := NewSession(SessionOptions{
		Snapshot: NewSnapshotLoader(SnapshotConfig{BaseURL: snap.URL}),
		Channel:  testChannel(wsURL(ws)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	waitFor(t, 3*time.Second, func() bool {
		return !session.Loading() && session.collection.Len() == 1
	})

	rec, ok := session.collection.Get("ccc")
	if !ok || rec.Name != "Gamma" {
		t.Errorf("live record missing after snapshot failure: %+v", rec)
	}
}

func TestSession_TokensHandler(t *testing.T) {
	session := NewSession(SessionOptions{})
	session.loading.Store(false)
	session.collection.SeedRecord(mapped("aaa", "Alpha", "$0.01"))

	rr := httptest.NewRecorder()
	session.TokensHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tokens", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Loading bool `json:"loading"`
		Tokens  []struct {
			Address string `json:"ca"`
			Name    string `json:"name"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Loading {
		t.Error("loading = true after snapshot settled")
	}
	if len(resp.Tokens) != 1 || resp.Tokens[0].Address != "aaa" || resp.Tokens[0].Name != "Alpha" {
		t.Errorf("tokens = %+v", resp.Tokens)
	}
}
