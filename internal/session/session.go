// Package session implements the conversation state machine behind the
// assistant: an append-only message log, an awaiting-response gate, and the
// voice-mode loop that keeps the microphone listening between replies.
//
// All state is owned by a single loop goroutine started with Run. Public
// methods, controller events, timers and backend completions are delivered to
// that goroutine as closures, so transitions never interleave.
package session

import (
	"context"
	"io"
	"math/rand"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	log "log/slog"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"carevox/internal/backend"
	"carevox/internal/nlu"
	"carevox/internal/stt"
	"carevox/internal/tts"
)

type timerKind int

const (
	timerRestart timerKind = iota
	timerDebounce
	timerFollowUp
)

func (k timerKind) String() string {
	switch k {
	case timerRestart:
		return "restart"
	case timerDebounce:
		return "debounce"
	case timerFollowUp:
		return "follow_up"
	default:
		return "unknown"
	}
}

type Option func(*Session)

// WithDucker quiets other audio streams while replies are spoken.
func WithDucker(d tts.Ducker) Option {
	return func(s *Session) {
		if d != nil {
			s.out.WithDucker(d)
		}
	}
}

type Session struct {
	id      string
	cfg     Config
	backend backend.Backend
	in      *stt.Controller
	out     *tts.Controller

	cmds    chan func()
	done    chan struct{}
	running atomic.Bool

	// loop-owned
	ctx      context.Context
	state    State
	messages []Message
	subs     []chan Message
	epoch    uint64
	timers   map[timerKind]*time.Timer
	tokens   map[timerKind]uint64
	entropy  io.Reader
}

// New builds a session seeded with the greeting. rec and synth may be nil when
// the platform lacks speech capabilities; the session then degrades to text.
func New(cfg Config, be backend.Backend, rec stt.Recognizer, synth tts.Synthesizer, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		backend: be,
		cmds:    make(chan func(), 32),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		timers:  make(map[timerKind]*time.Timer),
		tokens:  make(map[timerKind]uint64),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	s.in = stt.NewController(rec, func(ev stt.Event) {
		s.do(func() { s.handleCapture(ev) })
	})
	s.out = tts.NewController(synth, func(ev tts.Event) {
		s.do(func() { s.handleSpeech(ev) })
	})

	for _, opt := range opts {
		opt(s)
	}

	s.state.CanListen = s.in.Available()
	s.state.CanSpeak = s.out.Available()
	s.append(RoleAssistant, cfg.Greeting, time.Now(), nil)

	return s
}

func (s *Session) ID() string { return s.id }

// Run processes events until ctx is cancelled. It must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.ctx = ctx
	defer s.teardown()

	log.Info("Session started", "id", s.id, "stt", s.state.CanListen, "tts", s.state.CanSpeak)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.cmds:
			fn()
		}
	}
}

func (s *Session) teardown() {
	for kind, t := range s.timers {
		t.Stop()
		delete(s.timers, kind)
	}
	s.in.Stop()
	s.out.Stop()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	close(s.done)

	log.Info("Session stopped", "id", s.id)
}

// do queues fn on the loop. It reports false once the loop has exited.
func (s *Session) do(fn func()) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (s *Session) call(fn func()) bool {
	ran := make(chan struct{})
	if !s.do(func() { fn(); close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) State() State {
	var st State
	s.call(func() { st = s.state })
	return st
}

func (s *Session) Messages() []Message {
	var out []Message
	s.call(func() {
		out = make([]Message, len(s.messages))
		for i, m := range s.messages {
			m.Products = slices.Clone(m.Products)
			out[i] = m
		}
	})
	return out
}

// Subscribe returns a channel that receives every message appended from now
// on. The channel is closed when the session stops. Slow readers lose
// messages rather than stall the session.
func (s *Session) Subscribe() <-chan Message {
	ch := make(chan Message, 16)
	if !s.call(func() { s.subs = append(s.subs, ch) }) {
		close(ch)
	}
	return ch
}

func (s *Session) SetInput(text string) {
	s.call(func() { s.state.Input = text })
}

// Submit sends text to the backend. It reports false when the text is blank
// or a response is still outstanding; both are silent no-ops.
func (s *Session) Submit(text string, src backend.InputType) bool {
	var ok bool
	s.call(func() { ok = s.submit(text, src) })
	return ok
}

// ToggleVoiceMode flips hands-free mode and returns the new setting.
func (s *Session) ToggleVoiceMode() bool {
	var on bool
	s.call(func() { on = s.toggleVoiceMode() })
	return on
}

// ToggleListening is the manual microphone control, usable only outside
// voice mode.
func (s *Session) ToggleListening() error {
	err := ErrClosed
	s.call(func() { err = s.toggleListening() })
	return err
}

func (s *Session) StopSpeaking() {
	s.call(func() {
		s.out.Stop()
		s.state.Speaking = false
		s.resumeVoice()
	})
}

func (s *Session) submit(text string, src backend.InputType) bool {
	if strings.TrimSpace(text) == "" || s.state.Loading {
		return false
	}

	s.append(RoleUser, text, time.Now(), nil)
	s.state.Input = ""
	s.state.Loading = true
	s.epoch++

	intent := nlu.Classify(text)
	epoch, parent, timeout := s.epoch, s.ctx, s.cfg.RequestTimeout

	log.Info("Submitting", "intent", intent, "source", src, "epoch", epoch)

	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		r := s.dispatch(ctx, intent, text, src)
		s.do(func() { s.complete(epoch, r) })
	}()

	return true
}

func (s *Session) finish() {
	s.state.Loading = false
	s.resumeVoice()
}

func (s *Session) toggleVoiceMode() bool {
	s.state.VoiceMode = !s.state.VoiceMode

	if s.state.VoiceMode {
		if !s.state.Listening {
			if err := s.startListening(); err != nil {
				log.Warn("Voice mode without speech input", "err", err)
			}
		}
		s.evalPendingVoice()
	} else {
		s.cancelTimer(timerRestart)
		s.cancelTimer(timerDebounce)
		if s.state.Listening {
			s.in.Stop()
			s.state.Listening = false
		}
	}

	log.Info("Voice mode", "on", s.state.VoiceMode)
	return s.state.VoiceMode
}

func (s *Session) toggleListening() error {
	switch {
	case s.state.VoiceMode:
		return ErrVoiceModeActive
	case s.state.Loading:
		return ErrBusy
	}

	if s.state.Listening {
		s.in.Stop()
		s.state.Listening = false
		return nil
	}
	return s.startListening()
}

func (s *Session) startListening() error {
	if err := s.in.Start(); err != nil {
		s.state.Listening = false
		return err
	}
	s.state.Listening = true
	return nil
}

func (s *Session) handleCapture(ev stt.Event) {
	if ev.Generation != s.in.Generation() {
		log.Debug("Dropping stale capture event", "kind", ev.Kind, "gen", ev.Generation)
		return
	}

	switch ev.Kind {
	case stt.CaptureResult:
		s.state.Input = ev.Transcript
		s.state.Listening = false
		s.state.PendingVoice = true
		s.evalPendingVoice()
	case stt.CaptureError:
		log.Warn("Speech capture failed", "err", ev.Err)
		s.state.Listening = false
	case stt.CaptureEnd:
		s.state.Listening = false
		if s.state.VoiceMode && !s.state.Loading {
			s.schedule(timerRestart, s.cfg.RestartDelay, s.restart)
		}
	}
}

func (s *Session) handleSpeech(ev tts.Event) {
	if ev.Generation != s.out.Generation() {
		log.Debug("Dropping stale speech event", "kind", ev.Kind, "gen", ev.Generation)
		return
	}

	switch ev.Kind {
	case tts.SpeakStart:
		s.state.Speaking = true
	case tts.SpeakError:
		log.Warn("Speech output failed", "err", ev.Err)
		fallthrough
	case tts.SpeakEnd:
		s.state.Speaking = false
		s.resumeVoice()
	}
}

// evalPendingVoice submits a voice transcript once the gate allows it.
func (s *Session) evalPendingVoice() {
	if !s.state.VoiceMode || !s.state.PendingVoice || s.state.Loading {
		return
	}
	if strings.TrimSpace(s.state.Input) == "" {
		return
	}

	s.state.PendingVoice = false
	s.schedule(timerDebounce, s.cfg.VoiceDebounce, func() {
		s.submit(s.state.Input, backend.InputVoice)
	})
}

// resumeVoice re-arms listening after a reply or an utterance finishes. A
// restart that was skipped because a request was in flight lands here.
func (s *Session) resumeVoice() {
	s.evalPendingVoice()

	if !s.state.VoiceMode || s.state.Listening || s.state.Loading || s.state.Speaking {
		return
	}
	if s.pending(timerRestart) || s.pending(timerDebounce) {
		return
	}
	s.schedule(timerRestart, s.cfg.RestartDelay, s.restart)
}

func (s *Session) restart() {
	if !s.state.VoiceMode || s.state.Listening || s.state.Loading || s.state.Speaking {
		log.Debug("Restart skipped", "voice", s.state.VoiceMode, "loading", s.state.Loading, "speaking", s.state.Speaking)
		return
	}
	if err := s.startListening(); err != nil {
		log.Warn("Restart listening failed", "err", err)
	}
}

func (s *Session) schedule(kind timerKind, d time.Duration, fn func()) {
	s.cancelTimer(kind)
	tok := s.tokens[kind]

	s.timers[kind] = time.AfterFunc(d, func() {
		s.do(func() {
			if s.tokens[kind] != tok {
				log.Debug("Timer superseded", "timer", kind)
				return
			}
			delete(s.timers, kind)
			fn()
		})
	})
}

func (s *Session) cancelTimer(kind timerKind) {
	if t, ok := s.timers[kind]; ok {
		t.Stop()
		delete(s.timers, kind)
	}
	s.tokens[kind]++
}

func (s *Session) pending(kind timerKind) bool {
	_, ok := s.timers[kind]
	return ok
}

func (s *Session) append(role Role, content string, ts time.Time, products []ProductSuggestion) {
	m := Message{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
		Products:  products,
	}
	s.messages = append(s.messages, m)

	for _, ch := range s.subs {
		select {
		case ch <- m:
		default:
			log.Warn("Subscriber lagging, message dropped", "id", m.ID)
		}
	}
}
