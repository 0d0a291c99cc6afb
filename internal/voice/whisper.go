// Package voice binds the platform speech engines: whisper.cpp for
// transcription and espeak-ng for playback.
package voice

import (
	"context"

	log "log/slog"

	"carevox/internal/stt"
	pstt "carevox/pkg/stt"
)

type Whisper struct {
	t   *pstt.Transcriber
	opt pstt.Options
}

var _ stt.Transcriber = (*Whisper)(nil)

func NewWhisper(modelPath string, opt pstt.Options) (*Whisper, error) {
	t, err := pstt.NewTranscriber(modelPath)
	if err != nil {
		return nil, err
	}
	return &Whisper{t: t, opt: opt}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	res, err := w.t.TranscribePCM(ctx, pcm, w.opt)
	if err != nil {
		return "", err
	}
	log.Debug("Transcribed", "lang", res.Language, "text", res.Text)
	return res.Text, nil
}

func (w *Whisper) Close() error {
	return w.t.Close()
}
