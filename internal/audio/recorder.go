package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	log "log/slog"
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms
)

type MicrophoneConfig struct {
	SilenceRMS   float64       // frames below this count as silence
	TrailSilence time.Duration // silence after speech that ends the utterance
	LeadTimeout  time.Duration // give up if nobody starts talking
	MaxUtterance time.Duration
}

func DefaultMicrophoneConfig() MicrophoneConfig {
	return MicrophoneConfig{
		SilenceRMS:   0.015,
		TrailSilence: 600 * time.Millisecond,
		LeadTimeout:  8 * time.Second,
		MaxUtterance: 10 * time.Second,
	}
}

// Microphone captures one utterance at a time from the default input device.
type Microphone struct {
	cfg MicrophoneConfig

	mu   sync.Mutex
	init bool
}

func NewMicrophone(cfg MicrophoneConfig) *Microphone {
	return &Microphone{cfg: cfg}
}

func (m *Microphone) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.init {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	m.init = true
	return nil
}

func (m *Microphone) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.init {
		portaudio.Terminate()
		m.init = false
	}
}

// Record blocks until an utterance has been followed by TrailSilence, the
// utterance hits MaxUtterance, or ctx is done. It returns no samples when no
// speech started within LeadTimeout.
func (m *Microphone) Record(ctx context.Context) ([]float32, error) {
	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	frameDur := time.Second * frameSize / SampleRate
	var (
		out        = make([]float32, 0, SampleRate*3)
		speaking   bool
		silentFor  time.Duration
		waited     time.Duration
		maxSamples = int(m.cfg.MaxUtterance.Seconds() * SampleRate)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		loud := frameRMS(buf) > m.cfg.SilenceRMS
		switch {
		case loud:
			if !speaking {
				log.Debug("Speech detected")
			}
			speaking = true
			silentFor = 0
			out = append(out, buf...)
		case speaking:
			silentFor += frameDur
			if silentFor >= m.cfg.TrailSilence {
				return out, nil
			}
			out = append(out, buf...)
		default:
			waited += frameDur
			if waited >= m.cfg.LeadTimeout {
				return nil, nil
			}
		}

		if maxSamples > 0 && len(out) >= maxSamples {
			return out, nil
		}
	}
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
