// Package bus mirrors the conversation onto a websocket hub and accepts
// questions addressed to this shard from it.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "log/slog"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

const (
	KindAsk  = "ask"
	KindBusy = "busy"
)

type Product struct {
	Name        string  `json:"name"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	Image       string  `json:"image,omitempty"`
	Description string  `json:"description,omitempty"`
}

type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Products  []Product `json:"products,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Bus struct {
	url    string
	shard  string
	reconn time.Duration
	dialer *ws.Dialer

	mu   sync.Mutex
	conn *ws.Conn
}

// Dial connects to the hub. The shard name defaults to a fresh UUID.
func Dial(ctx context.Context, url, shard string, reconn time.Duration) (*Bus, error) {
	if shard == "" {
		shard = uuid.NewString()
	}
	if reconn <= 0 {
		reconn = time.Second
	}

	b := &Bus{
		url:    url,
		shard:  shard,
		reconn: reconn,
		dialer: &ws.Dialer{HandshakeTimeout: 10 * time.Second},
	}

	conn, _, err := b.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	b.conn = conn

	log.Info("Connected to bus", "url", url, "shard", shard)
	return b, nil
}

func (b *Bus) Shard() string { return b.shard }

func (b *Bus) current() *ws.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

// Publish writes m, reconnecting once if the connection has dropped.
func (b *Bus) Publish(ctx context.Context, m Message) error {
	if m.From == "" {
		m.From = b.shard
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	err = b.write(data)
	if err == nil {
		return nil
	}
	log.Warn("Bus write failed", "err", err)

	if err := b.reconnect(ctx, b.current()); err != nil {
		return err
	}
	return b.write(data)
}

func (b *Bus) write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.WriteMessage(ws.TextMessage, data)
}

// Read blocks for the next message. Undecodable frames are skipped; a dropped
// connection is re-dialled until ctx ends.
func (b *Bus) Read(ctx context.Context) (*Message, error) {
	for {
		conn := b.current()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("Bus read failed", "err", err, "closed", isClosed(err))
			if err := b.reconnect(ctx, conn); err != nil {
				return nil, err
			}
			continue
		}

		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Warn("Dropping malformed bus message", "err", err)
			continue
		}
		return &m, nil
	}
}

// reconnect replaces stale unless another caller already did.
func (b *Bus) reconnect(ctx context.Context, stale *ws.Conn) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != stale {
		return nil
	}
	stale.Close()

	for {
		conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
		if err == nil {
			b.conn = conn
			log.Info("Reconnected to bus", "url", b.url)
			return nil
		}

		log.Debug("Bus redial failed", "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.reconn):
		}
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return b.conn.Close()
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
