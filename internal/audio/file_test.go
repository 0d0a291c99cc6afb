package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestFileSourceEnqueueMissing(t *testing.T) {
	s := NewFileSource(1)
	if err := s.Enqueue(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("Enqueue of a missing file should fail")
	}
}

func TestFileSourceQueueFull(t *testing.T) {
	path := writeSilence(t, 1600)

	s := NewFileSource(1)
	if err := s.Enqueue(path); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Enqueue(path); err == nil {
		t.Fatal("second Enqueue should report a full queue")
	}
}

func TestFileSourceRecord(t *testing.T) {
	path := writeSilence(t, 3200)

	s := NewFileSource(2)
	if err := s.Enqueue(path); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	pcm, err := s.Record(context.Background())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(pcm) != 3200 {
		t.Errorf("len = %d, want 3200", len(pcm))
	}
}

func TestFileSourceRecordCancelled(t *testing.T) {
	s := NewFileSource(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.Record(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Record err = %v, want deadline exceeded", err)
	}
}

func writeSilence(t *testing.T, samples int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}
