package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"carevox/internal/audio"
	"carevox/internal/auth"
	"carevox/internal/backend"
	"carevox/internal/bus"
	"carevox/internal/cart"
	"carevox/internal/config"
	"carevox/internal/control"
	"carevox/internal/ipc"
	"carevox/internal/notify"
	"carevox/internal/proxy"
	"carevox/internal/session"
	"carevox/internal/stt"
	"carevox/internal/surface"
	"carevox/internal/tts"
	"carevox/internal/voice"
	pstt "carevox/pkg/stt"
)

func main() {
	cfg, cfgErr := config.Load(os.Args[1:])

	level, ok := config.LogLevels[cfg.LogLevel]
	if !ok {
		level = log.LevelInfo
	}
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))

	if cfgErr != nil {
		log.Error("Bad configuration", "err", cfgErr)
		os.Exit(1)
	}

	log.Info("Booting up", "backend", cfg.Backend.Kind, "input", cfg.Voice.Input)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewClient(cfg.Proxy, time.Duration(cfg.Backend.Timeout))
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

	login, err := auth.NewSession(cfg.AuthFile)
	if err != nil {
		log.Error("Failed to restore login", "err", err)
		os.Exit(1)
	}

	store := backend.NewHTTP(cfg.Backend.URL, httpClient, login)

	be, err := newBackend(ctx, cfg, store, httpClient)
	if err != nil {
		log.Error("Failed to init backend", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded backend")

	rec, files, closeRec, err := newRecognizer(cfg)
	if err != nil {
		log.Error("Failed to init speech input", "err", err)
		os.Exit(1)
	}
	defer closeRec()

	synth := newSynthesizer(cfg)

	var opts []session.Option
	if cfg.Voice.Duck {
		opts = append(opts, session.WithDucker(audio.NewDucker([]string{"carevox", "espeak"}, 10)))
	}

	sess := session.New(sessionConfig(cfg), be, rec, synth, opts...)
	basket := cart.NewMemory()
	surf := surface.New(sess, login, surface.NavigatorFunc(func(route string) {
		log.Warn("Sign in required", "route", route)
	}), basket)

	var enq control.Enqueuer
	if files != nil {
		enq = files
	}
	ctl := control.New(sess, surf, login, store, enq, basket)

	srv, err := ipc.Listen(cfg.Socket, ctl.Handle)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error("Control socket stopped", "err", err)
		}
	}()

	if cfg.BusURL != "" {
		b, err := bus.Dial(ctx, cfg.BusURL, "", time.Second)
		if err != nil {
			log.Error("Failed to connect to bus", "err", err)
			os.Exit(1)
		}
		defer b.Close()

		go func() {
			if err := bus.Mirror(ctx, b, sess, surf); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Bus mirror stopped", "err", err)
			}
		}()
	}

	log.Info("Boot up - successful", "session", sess.ID(), "socket", srv.Path())

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Session stopped", "err", err)
	}
}

func newBackend(ctx context.Context, cfg config.Config, store *backend.HTTP, httpClient *http.Client) (backend.Backend, error) {
	switch cfg.Backend.Kind {
	case "openai":
		client := openai.NewClient(
			option.WithAPIKey(cfg.OpenAIKey),
			option.WithHTTPClient(httpClient),
		)
		return backend.NewOpenAI(client, cfg.Backend.Model), nil
	case "gemini":
		return backend.NewGemini(ctx, cfg.GeminiKey, cfg.Backend.Model, httpClient)
	case "http":
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
	}
}

// newRecognizer returns a nil Recognizer when speech input is disabled.
func newRecognizer(cfg config.Config) (stt.Recognizer, *audio.FileSource, func(), error) {
	if cfg.Voice.Input == "none" {
		return nil, nil, func() {}, nil
	}

	w, err := voice.NewWhisper(cfg.Voice.Model, pstt.Options{
		Language: cfg.Voice.Language,
		Threads:  cfg.Voice.Threads,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("whisper: %w", err)
	}
	closers := []func(){func() { w.Close() }}

	var (
		src   stt.Source
		files *audio.FileSource
	)
	switch cfg.Voice.Input {
	case "file":
		files = audio.NewFileSource(8)
		src = files
	default:
		mic := audio.NewMicrophone(audio.DefaultMicrophoneConfig())
		if err := mic.Init(); err != nil {
			w.Close()
			return nil, nil, nil, fmt.Errorf("microphone: %w", err)
		}
		closers = append(closers, mic.Close)
		src = mic
	}

	var cue stt.Cue
	if chime := notify.NewChime(cfg.Voice.Chime); chime != nil {
		cue = chime
	}

	log.Debug("Loaded whisper", "model", cfg.Voice.Model)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return stt.NewCaptureRecognizer(src, w, cue), files, closeAll, nil
}

// newSynthesizer degrades to text-only replies when espeak cannot start.
func newSynthesizer(cfg config.Config) tts.Synthesizer {
	if !cfg.Voice.Output {
		return nil
	}

	e, err := voice.NewEspeak(cfg.Voice.OutputLang)
	if err != nil {
		log.Warn("Speech output disabled", "err", err)
		return nil
	}
	return e
}

func sessionConfig(cfg config.Config) session.Config {
	sc := session.DefaultConfig()
	if d := time.Duration(cfg.Session.RestartDelay); d > 0 {
		sc.RestartDelay = d
	}
	if d := time.Duration(cfg.Session.VoiceDebounce); d > 0 {
		sc.VoiceDebounce = d
	}
	if d := time.Duration(cfg.Session.FollowUpDelay); d > 0 {
		sc.FollowUpDelay = d
	}
	if d := time.Duration(cfg.Backend.Timeout); d > 0 {
		sc.RequestTimeout = d
	}
	return sc
}
