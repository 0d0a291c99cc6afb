package stt

import (
	"context"
	"fmt"
	"strings"

	log "log/slog"
)

// Source yields one utterance of mono 16 kHz PCM. An empty result means the
// user never spoke.
type Source interface {
	Record(ctx context.Context) ([]float32, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}

// Cue is played right before capture starts.
type Cue interface {
	Play() error
}

// CaptureRecognizer records from a Source and hands the audio to a
// Transcriber.
type CaptureRecognizer struct {
	src Source
	tr  Transcriber
	cue Cue
}

var _ Recognizer = (*CaptureRecognizer)(nil)

func NewCaptureRecognizer(src Source, tr Transcriber, cue Cue) *CaptureRecognizer {
	return &CaptureRecognizer{src: src, tr: tr, cue: cue}
}

func (r *CaptureRecognizer) Recognize(ctx context.Context) (string, error) {
	if r.cue != nil {
		if err := r.cue.Play(); err != nil {
			log.Warn("Failed to play listening cue", "err", err)
		}
	}

	pcm, err := r.src.Record(ctx)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}

	log.Debug("Transcribing", "samples", len(pcm))

	text, err := r.tr.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" || isNonSpeech(text) {
		return "", ErrNoSpeech
	}
	return text, nil
}

// isNonSpeech catches whisper's annotations for silence and noise such as
// "[BLANK_AUDIO]" or "(music)".
func isNonSpeech(text string) bool {
	if len(text) < 2 {
		return false
	}
	for _, pair := range [][2]string{{"[", "]"}, {"(", ")"}, {"*", "*"}} {
		if strings.HasPrefix(text, pair[0]) && strings.HasSuffix(text, pair[1]) && !strings.Contains(text[1:len(text)-1], pair[1]) {
			return true
		}
	}
	return false
}
