package voice

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
carevox_espeak_init(const char *lang, int rate_percent)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	espeak_VOICE specs;
	memset(&specs, 0, sizeof(specs));
	specs.languages = lang;
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }

	int rate = espeak_GetParameter(espeakRATE, 0);
	if (espeak_SetParameter(espeakRATE, rate * rate_percent / 100, 0) != EE_OK)
	{ return -3; }

	return 0;
}

static int
carevox_espeak_say(const char *text)
{
	espeak_ERROR err = espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	if (err != EE_OK)
	{ return (int)err; }

	return (int)espeak_Synchronize();
}
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"carevox/internal/tts"
)

// RatePercent slows espeak's default words-per-minute to a calmer pace.
const RatePercent = 90

// Espeak plays text through espeak-ng. The engine is process-wide, so only
// one utterance runs at a time.
type Espeak struct {
	mu sync.Mutex
}

var _ tts.Synthesizer = (*Espeak)(nil)

var (
	initOnce sync.Once
	initErr  error
)

func NewEspeak(lang string) (*Espeak, error) {
	if lang == "" {
		lang = "en"
	}

	initOnce.Do(func() {
		clang := C.CString(lang)
		defer C.free(unsafe.Pointer(clang))

		if rc := C.carevox_espeak_init(clang, C.int(RatePercent)); rc != 0 {
			initErr = fmt.Errorf("espeak init failed: %d", int(rc))
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return &Espeak{}, nil
}

// Speak blocks until playback ends. Cancelling ctx cuts playback short.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	done := make(chan C.int, 1)
	go func() { done <- C.carevox_espeak_say(ctext) }()

	select {
	case rc := <-done:
		if rc != 0 {
			return fmt.Errorf("espeak synth failed: %d", int(rc))
		}
		return nil
	case <-ctx.Done():
		C.espeak_Cancel()
		<-done
		return ctx.Err()
	}
}
