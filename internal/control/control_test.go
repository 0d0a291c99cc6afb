package control

import (
	"context"
	"strings"
	"testing"
	"time"

	"carevox/internal/auth"
	"carevox/internal/backend"
	"carevox/internal/cart"
	"carevox/internal/ipc"
	"carevox/internal/session"
	"carevox/internal/surface"
)

type stubBackend struct{}

func (stubBackend) Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	return &backend.ChatResponse{
		Message:  "Try these.",
		Products: []backend.Product{{Name: "Zinc Tabs", Category: "Supplements", Price: 2}},
	}, nil
}

func (stubBackend) CheckSymptoms(ctx context.Context, req backend.SymptomRequest) (*backend.SymptomResponse, error) {
	return &backend.SymptomResponse{Success: true, Analysis: "Rest."}, nil
}

type stubAuth struct{}

func (stubAuth) Login(ctx context.Context, email, password string) (*backend.AuthResponse, error) {
	return &backend.AuthResponse{Token: "t", User: backend.User{Email: email}}, nil
}

func (stubAuth) Signup(ctx context.Context, name, email, password string) (*backend.AuthResponse, error) {
	return nil, nil
}

func newHandler(t *testing.T) *Handler {
	t.Helper()

	login, err := auth.NewSession("")
	if err != nil {
		t.Fatal(err)
	}

	sess := session.New(session.DefaultConfig(), stubBackend{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	basket := cart.NewMemory()
	return New(sess, surface.New(sess, login, nil, basket), login, stubAuth{}, nil, basket)
}

func TestControlFlow(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()
	call := func(cmd, arg string) ipc.Reply {
		return h.Handle(ctx, ipc.ControlMessage{Cmd: cmd, Arg: arg})
	}

	if r := call("open", ""); r.OK {
		t.Fatalf("opened before login: %+v", r)
	}
	if r := call("send", "hello"); r.OK {
		t.Fatalf("sent while closed: %+v", r)
	}

	if r := call("login", "asha@example.com secret"); !r.OK {
		t.Fatalf("login: %+v", r)
	}
	if r := call("open", ""); !r.OK {
		t.Fatalf("open: %+v", r)
	}
	if r := call("send", "do you have zinc"); !r.OK {
		t.Fatalf("send: %+v", r)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(h.sess.Messages()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	logText := call("log", "").Text
	if !strings.Contains(logText, "3 assistant: Try these.") || !strings.Contains(logText, "1. Zinc Tabs") {
		t.Fatalf("log = %q", logText)
	}

	if r := call("cart", "3 1"); !r.OK || !strings.Contains(r.Text, "Zinc Tabs") {
		t.Fatalf("cart: %+v", r)
	}
	if h.cart.Count() != 1 {
		t.Fatalf("cart count = %d", h.cart.Count())
	}
	if r := call("cart", "1 1"); r.OK {
		t.Fatalf("greeting has no products: %+v", r)
	}

	if r := call("state", ""); !r.OK || !strings.Contains(r.Text, "cart=1") {
		t.Fatalf("state: %+v", r)
	}
}

func TestControlRejects(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()

	for _, msg := range []ipc.ControlMessage{
		{Cmd: "dance"},
		{Cmd: "say", Arg: "/tmp/x.wav"},
		{Cmd: "mic"},
		{Cmd: "cart", Arg: "one"},
	} {
		if r := h.Handle(ctx, msg); r.OK {
			t.Errorf("%s %q succeeded: %+v", msg.Cmd, msg.Arg, r)
		}
	}
}

func TestVoiceControlsNeedSignedInPanel(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()
	call := func(cmd string) ipc.Reply {
		return h.Handle(ctx, ipc.ControlMessage{Cmd: cmd})
	}

	if r := call("open"); r.OK {
		t.Fatalf("opened before login: %+v", r)
	}
	for _, cmd := range []string{"voice", "mic", "hush"} {
		if r := call(cmd); r.OK {
			t.Errorf("%s succeeded while signed out: %+v", cmd, r)
		}
	}
	if st := h.sess.State(); st.VoiceMode || st.Listening {
		t.Fatalf("state changed while signed out: %+v", st)
	}

	if r := h.Handle(ctx, ipc.ControlMessage{Cmd: "login", Arg: "asha@example.com secret"}); !r.OK {
		t.Fatalf("login: %+v", r)
	}
	if r := call("voice"); r.OK {
		t.Fatalf("voice succeeded with the panel closed: %+v", r)
	}
	if r := call("open"); !r.OK {
		t.Fatalf("open: %+v", r)
	}
	if r := call("voice"); !r.OK || r.Text != "voice=true" {
		t.Fatalf("voice: %+v", r)
	}
	if r := call("hush"); !r.OK {
		t.Fatalf("hush: %+v", r)
	}
}
