// Package control maps control-socket commands onto the assistant.
package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"carevox/internal/auth"
	"carevox/internal/backend"
	"carevox/internal/cart"
	"carevox/internal/ipc"
	"carevox/internal/session"
	"carevox/internal/surface"
)

// Enqueuer accepts audio files to be heard as the next utterance.
type Enqueuer interface {
	Enqueue(path string) error
}

type Handler struct {
	sess  *session.Session
	surf  *surface.Surface
	login *auth.Session
	store auth.Authenticator
	files Enqueuer
	cart  *cart.Memory
}

// New wires a handler. files may be nil when speech input is not file-backed.
func New(sess *session.Session, surf *surface.Surface, login *auth.Session, store auth.Authenticator, files Enqueuer, c *cart.Memory) *Handler {
	return &Handler{sess: sess, surf: surf, login: login, store: store, files: files, cart: c}
}

func fail(err error) ipc.Reply { return ipc.Reply{Text: err.Error()} }

func done(format string, args ...any) ipc.Reply {
	return ipc.Reply{OK: true, Text: fmt.Sprintf(format, args...)}
}

func (h *Handler) Handle(ctx context.Context, msg ipc.ControlMessage) ipc.Reply {
	switch msg.Cmd {
	case "open":
		if err := h.surf.Open(); err != nil {
			return fail(err)
		}
		return done("open")
	case "close":
		h.surf.Close()
		return done("closed")
	case "toggle":
		open, err := h.surf.Toggle()
		if err != nil {
			return fail(err)
		}
		return done("open=%v", open)
	case "send":
		return h.send(msg.Arg)
	case "mic":
		if err := h.surf.ToggleListening(); err != nil {
			return fail(err)
		}
		return done("listening=%v", h.sess.State().Listening)
	case "voice":
		on, err := h.surf.ToggleVoiceMode()
		if err != nil {
			return fail(err)
		}
		return done("voice=%v", on)
	case "hush":
		if err := h.surf.StopSpeaking(); err != nil {
			return fail(err)
		}
		return done("quiet")
	case "say":
		if h.files == nil {
			return fail(errors.New("speech input is not reading files"))
		}
		if err := h.files.Enqueue(msg.Arg); err != nil {
			return fail(err)
		}
		return done("queued %s", msg.Arg)
	case "login":
		return h.doLogin(ctx, msg.Arg)
	case "cart":
		return h.addToCart(ctx, msg.Arg)
	case "log":
		return done("%s", renderLog(h.sess.Messages()))
	case "state":
		st := h.sess.State()
		return done("open=%v voice=%v listening=%v speaking=%v loading=%v pending=%v messages=%d cart=%d",
			h.surf.IsOpen(), st.VoiceMode, st.Listening, st.Speaking, st.Loading, st.PendingVoice,
			len(h.sess.Messages()), h.cart.Count())
	default:
		return fail(fmt.Errorf("unknown command %q", msg.Cmd))
	}
}

// send submits arg, or the transcript sitting in the input buffer when arg is
// empty.
func (h *Handler) send(arg string) ipc.Reply {
	text := arg
	if strings.TrimSpace(text) == "" {
		text = h.sess.State().Input
	}

	ok, err := h.surf.Submit(text, backend.InputText)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(errors.New("nothing sent: empty input or still waiting for a reply"))
	}
	return done("sent")
}

func (h *Handler) doLogin(ctx context.Context, arg string) ipc.Reply {
	email, password, _ := strings.Cut(strings.TrimSpace(arg), " ")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := h.login.Login(ctx, h.store, email, strings.TrimSpace(password)); err != nil {
		return fail(err)
	}
	return done("signed in as %s", h.login.User().Email)
}

// addToCart takes "<message> <product>", both 1-based as shown by "log".
func (h *Handler) addToCart(ctx context.Context, arg string) ipc.Reply {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return fail(errors.New("usage: cart <message> <product>"))
	}
	mi, err1 := strconv.Atoi(fields[0])
	pi, err2 := strconv.Atoi(fields[1])
	if err := errors.Join(err1, err2); err != nil {
		return fail(err)
	}

	msgs := h.sess.Messages()
	if mi < 1 || mi > len(msgs) {
		return fail(fmt.Errorf("no message %d", mi))
	}
	products := msgs[mi-1].Products
	if pi < 1 || pi > len(products) {
		return fail(fmt.Errorf("message %d has no product %d", mi, pi))
	}

	item, err := h.surf.AddToCart(ctx, products[pi-1])
	if err != nil {
		return fail(err)
	}
	return done("added %s (%d in cart)", item.Title, h.cart.Count())
}

func renderLog(msgs []session.Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		fmt.Fprintf(&sb, "%d %s: %s\n", i+1, m.Role, m.Content)
		for j, p := range m.Products {
			fmt.Fprintf(&sb, "   %d. %s (%s) $%.2f\n", j+1, p.Name, p.Category, p.UnitPrice)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
