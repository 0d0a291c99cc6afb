package bus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"

	"carevox/internal/backend"
	"carevox/internal/session"
)

type hub struct {
	t        *testing.T
	upgrader ws.Upgrader
	conns    chan *ws.Conn
}

func newHub(t *testing.T) (*hub, string) {
	h := &hub{t: t, conns: make(chan *ws.Conn, 4)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		h.conns <- c
	}))
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (h *hub) accept() *ws.Conn {
	h.t.Helper()
	select {
	case c := <-h.conns:
		h.t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		h.t.Fatal("no connection")
		return nil
	}
}

func readMessage(t *testing.T, c *ws.Conn) Message {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestPublish(t *testing.T) {
	h, url := newHub(t)
	ctx := context.Background()

	b, err := Dial(ctx, url, "kiosk-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer b.Close()
	server := h.accept()

	if err := b.Publish(ctx, Message{ID: "1", Kind: "assistant", Content: "hi"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := readMessage(t, server)
	if got.From != "kiosk-1" || got.Content != "hi" || got.Kind != "assistant" {
		t.Fatalf("got %+v", got)
	}
}

func TestPublishReconnects(t *testing.T) {
	h, url := newHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := Dial(ctx, url, "", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer b.Close()
	if b.Shard() == "" {
		t.Fatal("no default shard")
	}

	// drop the link from our side, as a network failure would
	b.current().Close()

	if err := b.Publish(ctx, Message{ID: "2", Kind: "user", Content: "again"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	h.accept()
	second := h.accept()
	if got := readMessage(t, second); got.ID != "2" {
		t.Fatalf("got %+v", got)
	}
}

func TestReadSkipsMalformed(t *testing.T) {
	h, url := newHub(t)
	ctx := context.Background()

	b, err := Dial(ctx, url, "kiosk-1", 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	server := h.accept()

	server.WriteMessage(ws.TextMessage, []byte("not json"))
	server.WriteJSON(Message{ID: "x", Kind: KindAsk, Content: "hello"})

	m, err := b.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.ID != "x" || m.Content != "hello" {
		t.Fatalf("got %+v", m)
	}
}

type fakeConversation struct {
	mu        sync.Mutex
	sub       chan session.Message
	submitted []string
	accept    bool
	refuse    error
}

func (f *fakeConversation) Subscribe() <-chan session.Message { return f.sub }

func (f *fakeConversation) Submit(text string, src backend.InputType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse != nil {
		return false, f.refuse
	}
	f.submitted = append(f.submitted, text)
	return f.accept, nil
}

func (f *fakeConversation) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func TestMirror(t *testing.T) {
	h, url := newHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := Dial(ctx, url, "kiosk-1", 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	server := h.accept()

	conv := &fakeConversation{sub: make(chan session.Message, 1), accept: true}
	done := make(chan error, 1)
	go func() { done <- Mirror(ctx, b, conv, conv) }()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv.sub <- session.Message{
		ID:        "01ABC",
		Role:      session.RoleAssistant,
		Content:   "Here are some products that might help:",
		Timestamp: ts,
		Products:  []session.ProductSuggestion{{Name: "PainRelief", Category: "Analgesic", UnitPrice: 5.99, Description: "Fast-acting tablets"}},
	}

	got := readMessage(t, server)
	if got.ID != "01ABC" || got.Kind != "assistant" || !got.Timestamp.Equal(ts) {
		t.Fatalf("got %+v", got)
	}
	if len(got.Products) != 1 || got.Products[0].Name != "PainRelief" || got.Products[0].Price != 5.99 ||
		got.Products[0].Description != "Fast-acting tablets" {
		t.Fatalf("products = %+v", got.Products)
	}

	server.WriteJSON(Message{ID: "q1", From: "hub", To: "someone-else", Kind: KindAsk, Content: "ignored"})
	server.WriteJSON(Message{ID: "q2", From: "hub", To: "kiosk-1", Kind: KindAsk, Content: "do you sell zinc"})

	deadline := time.Now().Add(2 * time.Second)
	for len(conv.texts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if texts := conv.texts(); len(texts) != 1 || texts[0] != "do you sell zinc" {
		t.Fatalf("submitted = %v", texts)
	}

	close(conv.sub)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Mirror: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Mirror did not stop")
	}
}

func TestMirrorReportsBusy(t *testing.T) {
	h, url := newHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := Dial(ctx, url, "kiosk-1", 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	server := h.accept()

	conv := &fakeConversation{sub: make(chan session.Message), accept: false}
	go Mirror(ctx, b, conv, conv)

	server.WriteJSON(Message{ID: "q3", From: "hub", Kind: KindAsk, Content: "anyone?"})

	got := readMessage(t, server)
	if got.Kind != KindBusy || got.To != "hub" || got.ID != "q3" {
		t.Fatalf("got %+v", got)
	}
}

func TestMirrorRefusedWhileClosed(t *testing.T) {
	h, url := newHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := Dial(ctx, url, "kiosk-1", 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	server := h.accept()

	conv := &fakeConversation{sub: make(chan session.Message), accept: true, refuse: errors.New("panel is closed")}
	go Mirror(ctx, b, conv, conv)

	server.WriteJSON(Message{ID: "q4", From: "hub", To: "kiosk-1", Kind: KindAsk, Content: "hello?"})

	got := readMessage(t, server)
	if got.Kind != KindBusy || got.To != "hub" || got.ID != "q4" {
		t.Fatalf("got %+v", got)
	}
	if texts := conv.texts(); len(texts) != 0 {
		t.Fatalf("submitted = %v", texts)
	}
}

func TestMessageJSON(t *testing.T) {
	raw, err := json.Marshal(Message{ID: "1", From: "a", Kind: "user", Content: "x"})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"id"`, `"from"`, `"kind"`, `"content"`, `"timestamp"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("missing %s in %s", key, raw)
		}
	}
	if strings.Contains(string(raw), `"products"`) {
		t.Errorf("empty products serialized: %s", raw)
	}
}
