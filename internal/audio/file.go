package audio

import (
	"context"
	"fmt"
	"os"

	log "log/slog"

	"carevox/pkg/audioconv"
)

// FileSource plays back queued audio files as if they were spoken into the
// microphone. Record blocks until a file is queued.
type FileSource struct {
	queue chan string
}

func NewFileSource(depth int) *FileSource {
	if depth <= 0 {
		depth = 8
	}
	return &FileSource{queue: make(chan string, depth)}
}

func (s *FileSource) Enqueue(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	select {
	case s.queue <- path:
		return nil
	default:
		return fmt.Errorf("file queue full (%d)", cap(s.queue))
	}
}

func (s *FileSource) Record(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case path := <-s.queue:
		log.Debug("Replaying audio file", "path", path)
		pcm, err := audioconv.DecodeFile(path, audioconv.Options{
			MaxSamples: 30 * audioconv.TargetRate,
		})
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return pcm, nil
	}
}
