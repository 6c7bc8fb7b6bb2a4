package feed

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"launchfeed/internal/domain"
	"launchfeed/internal/mapping"
	"launchfeed/internal/observability"
)

// Default channel timings.
const (
	DefaultPingInterval      = 45 * time.Second
	DefaultEchoCooldown      = 5 * time.Second
	DefaultReconnectStep     = 3 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
)

// Subscription names one push channel and the correlation id its subscribe
// frame is tagged with.
type Subscription struct {
	Channel string
	ID      int
}

// DefaultSubscriptions lists the two fixed channels the feed consumes.
func DefaultSubscriptions() []Subscription {
	return []Subscription{
		{Channel: "meteora-tokenUpdates", ID: 3},
		{Channel: "meteora-mintTokens", ID: 2},
	}
}

// ChannelConfig configures the push channel client.
type ChannelConfig struct {
	URL           string
	AuthToken     string
	ClientName    string
	ClientVersion string
	Subscriptions []Subscription

	PingInterval      time.Duration
	EchoCooldown      time.Duration
	ReconnectStep     time.Duration
	MaxReconnectDelay time.Duration
	WriteTimeout      time.Duration

	Logger *log.Logger
}

// Channel maintains the persistent duplex connection to the push endpoint:
// handshake, channel subscriptions, keepalive, tolerant multi-message frame
// decoding, and reconnection with capped linear backoff. Exactly one
// connection is active at a time and payloads for the same identity are
// emitted in receipt order.
type Channel struct {
	cfg    ChannelConfig
	logger *log.Logger

	// lastEcho guards against a ping/pong amplification loop when the
	// server sends its own empty-object heartbeats.
	lastEcho time.Time
}

// NewChannel creates a push channel client. Zero config fields fall back to
// defaults.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.ClientName == "" {
		cfg.ClientName = "go"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "1.0.0"
	}
	if len(cfg.Subscriptions) == 0 {
		cfg.Subscriptions = DefaultSubscriptions()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.EchoCooldown == 0 {
		cfg.EchoCooldown = DefaultEchoCooldown
	}
	if cfg.ReconnectStep == 0 {
		cfg.ReconnectStep = DefaultReconnectStep
	}
	if cfg.MaxReconnectDelay == 0 {
		cfg.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Channel{cfg: cfg, logger: logger}
}

// Subscribe connects and returns a stream of normalized token updates. The
// channel reconnects on abnormal closure with delay min(step*attempt, max)
// and unbounded attempts; cancelling the context tears the connection down
// with a normal close code and closes the stream.
func (c *Channel) Subscribe(ctx context.Context) <-chan *domain.TokenUpdate {
	out := make(chan *domain.TokenUpdate, 256)
	go c.run(ctx, out)
	return out
}

func (c *Channel) run(ctx context.Context, out chan<- *domain.TokenUpdate) {
	defer close(out)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		opened, err := c.session(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if opened {
			attempts = 0
		}

		attempts++
		delay := reconnectDelay(attempts, c.cfg.ReconnectStep, c.cfg.MaxReconnectDelay)
		c.logger.Printf("[feed-ws] connection lost (%v), reconnect %d in %v", err, attempts, delay)
		observability.RecordWSReconnect()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// reconnectDelay computes the capped linear backoff delay for an attempt.
func reconnectDelay(attempt int, step, max time.Duration) time.Duration {
	d := step * time.Duration(attempt)
	if d > max {
		return max
	}
	return d
}

// session runs one connection from dial to close. opened reports whether the
// dial succeeded, which resets the backoff counter.
func (c *Channel) session(ctx context.Context, out chan<- *domain.TokenUpdate) (opened bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	// Handshake, then subscribe immediately without waiting for the ack.
	if err := c.sendConnect(send); err != nil {
		return true, err
	}
	if err := c.sendSubscribes(send); err != nil {
		return true, err
	}

	// done cancels this connection's timers as a unit.
	done := make(chan struct{})
	defer close(done)

	go c.pingLoop(done, send)

	// Teardown closes with the normal code so the peer does not treat it as
	// an abnormal drop.
	go func() {
		select {
		case <-ctx.Done():
			writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session end"),
				time.Now().Add(time.Second))
			writeMu.Unlock()
			// Give the close frame a moment to flush before dropping TCP.
			select {
			case <-done:
			case <-time.After(100 * time.Millisecond):
			}
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handleFrame(ctx, data, out, send)
	}
}

type connectFrame struct {
	Connect connectBody `json:"connect"`
	ID      int         `json:"id"`
}

type connectBody struct {
	Token   string `json:"token"`
	Name    string `json:"name"`
	Client  string `json:"client"`
	Version string `json:"version"`
}

type subscribeFrame struct {
	Subscribe subscribeBody `json:"subscribe"`
	ID        int           `json:"id"`
}

type subscribeBody struct {
	Channel string `json:"channel"`
}

func (c *Channel) sendConnect(send func([]byte) error) error {
	frame, err := json.Marshal(connectFrame{
		Connect: connectBody{
			Token:   c.cfg.AuthToken,
			Name:    c.cfg.ClientName,
			Client:  c.cfg.ClientName,
			Version: c.cfg.ClientVersion,
		},
		ID: 1,
	})
	if err != nil {
		return err
	}
	return send(frame)
}

func (c *Channel) sendSubscribes(send func([]byte) error) error {
	for _, sub := range c.cfg.Subscriptions {
		frame, err := json.Marshal(subscribeFrame{
			Subscribe: subscribeBody{Channel: sub.Channel},
			ID:        sub.ID,
		})
		if err != nil {
			return err
		}
		if err := send(frame); err != nil {
			return err
		}
	}
	return nil
}

// pingLoop sends the empty-object keepalive while the connection is open.
func (c *Channel) pingLoop(done <-chan struct{}, send func([]byte) error) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := send([]byte("{}")); err != nil {
				return
			}
		}
	}
}

// handleFrame decodes one transport frame, which may carry several
// newline-delimited JSON messages. A parse failure on one message never
// aborts its siblings.
func (c *Channel) handleFrame(ctx context.Context, data []byte, out chan<- *domain.TokenUpdate, send func([]byte) error) {
	for _, chunk := range strings.Split(string(data), "\n") {
		msg := strings.TrimSpace(strings.TrimSuffix(chunk, "\r"))
		if msg == "" {
			continue
		}
		c.handleMessage(ctx, msg, out, send)
	}
}

func (c *Channel) handleMessage(ctx context.Context, raw string, out chan<- *domain.TokenUpdate, send func([]byte) error) {
	observability.RecordWSMessage()

	// Server heartbeat: echo one keepalive back, rate-limited so two peers
	// echoing each other cannot amplify into a ping loop.
	if raw == "{}" {
		if now := time.Now(); now.Sub(c.lastEcho) > c.cfg.EchoCooldown {
			c.lastEcho = now
			send([]byte("{}"))
		}
		return
	}

	var msg map[string]any
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		observability.RecordWSParseError()
		return
	}

	if c.isControlMessage(msg) {
		return
	}

	payload, ok := mapping.ExtractPayload(msg)
	if !ok {
		observability.RecordWSParseError()
		return
	}

	identity, _, ok := mapping.ExtractIdentity(payload)
	if !ok {
		observability.RecordWSParseError()
		return
	}

	mintMs := mapping.NormalizeEpochMs(payload["mint_time"])
	patch, tick := mapping.FromWSPatch(payload)

	update := &domain.TokenUpdate{
		Address:    identity,
		Patch:      patch,
		MintTimeMs: mintMs,
		PhotoOK:    patch.PhotoIcon != nil,
		Tick:       tick,
	}
	if patch.MetadataURI != nil {
		update.MetadataURI = *patch.MetadataURI
	}
	if tick != nil {
		tick.Address = identity
		if tick.TimestampMs == 0 {
			tick.TimestampMs = time.Now().UnixMilli()
		}
	}

	select {
	case out <- update:
	case <-ctx.Done():
	}
}

// isControlMessage recognizes handshake acks, subscribe acks and pongs.
func (c *Channel) isControlMessage(msg map[string]any) bool {
	if _, ok := msg["pong"]; ok {
		return true
	}

	id, hasID := msg["id"].(float64)
	if hasID && id == 1 {
		if _, ok := msg["connect"]; ok {
			return true
		}
	}
	if _, ok := msg["subscribe"]; ok && hasID {
		for _, sub := range c.cfg.Subscriptions {
			if int(id) == sub.ID {
				return true
			}
		}
	}
	return false
}
