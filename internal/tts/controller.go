// Package tts plays assistant replies one utterance at a time. A new Speak
// always wins: the utterance in flight is cancelled and never reports back.
package tts

import (
	"context"
	"errors"
	"sync"
	"time"

	log "log/slog"
)

var ErrUnavailable = errors.New("tts: speech synthesis unavailable")

// Synthesizer is the platform text-to-speech capability. Speak blocks until
// playback finishes or ctx is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

type SynthesizerFunc func(ctx context.Context, text string) error

func (f SynthesizerFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Ducker quiets other audio while an utterance plays.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type EventKind int

const (
	SpeakStart EventKind = iota + 1
	SpeakEnd
	SpeakError
)

func (k EventKind) String() string {
	switch k {
	case SpeakStart:
		return "speak_start"
	case SpeakEnd:
		return "speak_end"
	case SpeakError:
		return "speak_error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind       EventKind
	Generation uint64
	Err        error
}

type utterance struct {
	gen    uint64
	cancel context.CancelFunc
}

type Controller struct {
	synth  Synthesizer
	emit   func(Event)
	ducker Ducker

	mu     sync.Mutex
	gen    uint64
	live   *utterance
	warned bool

	// duckMu orders Duck and Restore so a finishing utterance cannot restore
	// volume underneath the one that replaced it.
	duckMu sync.Mutex
}

func NewController(synth Synthesizer, emit func(Event)) *Controller {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Controller{synth: synth, emit: emit}
}

func (c *Controller) WithDucker(d Ducker) *Controller {
	c.ducker = d
	return c
}

func (c *Controller) Available() bool {
	return c.synth != nil
}

func (c *Controller) Speak(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.synth == nil {
		if !c.warned {
			log.Warn("Speech synthesis is not available")
			c.warned = true
		}
		return ErrUnavailable
	}

	if c.live != nil {
		log.Debug("Interrupting utterance", "gen", c.live.gen)
		c.live.cancel()
	}

	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	u := &utterance{gen: c.gen, cancel: cancel}
	c.live = u

	go c.play(ctx, u, text)
	return nil
}

func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live == nil {
		return
	}
	c.live.cancel()
	c.live = nil
	c.gen++
}

func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}

func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) current(u *utterance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live == u
}

func (c *Controller) play(ctx context.Context, u *utterance, text string) {
	defer u.cancel()

	if !c.current(u) {
		return
	}
	c.emit(Event{Kind: SpeakStart, Generation: u.gen})

	c.duck(ctx, u)
	err := c.synth.Speak(ctx, text)
	c.restore(u)

	c.mu.Lock()
	current := c.live == u
	if current {
		c.live = nil
	}
	c.mu.Unlock()

	if !current {
		log.Debug("Utterance interrupted", "gen", u.gen)
		return
	}

	if err != nil {
		log.Warn("Speech synthesis failed", "gen", u.gen, "err", err)
		c.emit(Event{Kind: SpeakError, Generation: u.gen, Err: err})
		return
	}
	c.emit(Event{Kind: SpeakEnd, Generation: u.gen})
}

func (c *Controller) duck(ctx context.Context, u *utterance) {
	if c.ducker == nil {
		return
	}
	c.duckMu.Lock()
	defer c.duckMu.Unlock()

	if !c.current(u) {
		return
	}
	if err := c.ducker.Duck(ctx); err != nil {
		log.Warn("Failed to duck other streams", "err", err)
	}
}

// restore brings other streams back unless a newer utterance has taken over
// and still needs them quiet. A stopped utterance restores.
func (c *Controller) restore(u *utterance) {
	if c.ducker == nil {
		return
	}
	c.duckMu.Lock()
	defer c.duckMu.Unlock()

	c.mu.Lock()
	superseded := c.live != nil && c.live != u
	c.mu.Unlock()
	if superseded {
		log.Debug("Keeping streams ducked for next utterance", "gen", u.gen)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.ducker.Restore(ctx); err != nil {
		log.Warn("Failed to restore other streams", "err", err)
	}
}
