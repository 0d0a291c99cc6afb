// Package stt owns the lifecycle of speech capture for one conversation.
//
// A Controller runs at most one capture at a time. Every capture is tagged
// with a generation number; starting a new capture or stopping the live one
// bumps the generation, and events from older generations are never emitted.
package stt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "log/slog"
)

var (
	ErrUnavailable = errors.New("stt: speech recognition unavailable")
	ErrNoSpeech    = errors.New("stt: no speech captured")
)

// SettleDelay is how long a hands-free loop waits before capturing again, so
// the tail of synthesized speech is not picked up.
const SettleDelay = time.Second

// Recognizer is the platform speech-to-text capability. Recognize captures a
// single utterance and blocks until it is transcribed, ctx is cancelled, or
// capture fails. Silence is reported as ErrNoSpeech or an empty transcript.
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

type RecognizerFunc func(ctx context.Context) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context) (string, error) {
	return f(ctx)
}

type EventKind int

const (
	CaptureResult EventKind = iota + 1
	CaptureError
	CaptureEnd
)

func (k EventKind) String() string {
	switch k {
	case CaptureResult:
		return "capture_result"
	case CaptureError:
		return "capture_error"
	case CaptureEnd:
		return "capture_end"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind       EventKind
	Generation uint64
	Transcript string
	Err        error
}

type capture struct {
	gen    uint64
	cancel context.CancelFunc
}

type Controller struct {
	rec  Recognizer
	emit func(Event)

	mu     sync.Mutex
	gen    uint64
	live   *capture
	warned bool
}

// NewController accepts a nil Recognizer; the controller then reports
// ErrUnavailable from Start.
func NewController(rec Recognizer, emit func(Event)) *Controller {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Controller{rec: rec, emit: emit}
}

func (c *Controller) Available() bool {
	return c.rec != nil
}

// Start begins a new capture. A capture that is still live is cancelled
// first and will not emit anything.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		if !c.warned {
			log.Warn("Speech recognition is not available")
			c.warned = true
		}
		return ErrUnavailable
	}

	if c.live != nil {
		log.Debug("Replacing live capture", "gen", c.live.gen)
		c.live.cancel()
	}

	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	cp := &capture{gen: c.gen, cancel: cancel}
	c.live = cp

	go c.run(ctx, cp)
	return nil
}

// Stop cancels the live capture. Its events are suppressed; the caller owns
// the resulting "not listening" transition.
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

func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}

// Generation identifies the newest capture. Events carrying any other
// generation are stale.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) run(ctx context.Context, cp *capture) {
	defer cp.cancel()

	text, err := c.rec.Recognize(ctx)
	text = strings.TrimSpace(text)

	c.mu.Lock()
	current := c.live == cp
	if current {
		c.live = nil
	}
	c.mu.Unlock()

	if !current {
		log.Debug("Dropping superseded capture", "gen", cp.gen)
		return
	}

	switch {
	case err == nil && text != "":
		log.Debug("Captured", "gen", cp.gen, "text", text)
		c.emit(Event{Kind: CaptureResult, Generation: cp.gen, Transcript: text})
	case err == nil, errors.Is(err, ErrNoSpeech):
		log.Debug("Capture ended without speech", "gen", cp.gen)
	default:
		log.Warn("Capture failed", "gen", cp.gen, "err", err)
		c.emit(Event{Kind: CaptureError, Generation: cp.gen, Err: err})
	}

	c.emit(Event{Kind: CaptureEnd, Generation: cp.gen})
}
