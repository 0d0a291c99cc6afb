package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"carevox/internal/auth"
	"carevox/internal/backend"
	"carevox/internal/cart"
	"carevox/internal/config"
	"carevox/internal/proxy"
	"carevox/internal/session"
	"carevox/internal/surface"
	"carevox/internal/tts"
	"carevox/internal/voice"
)

const help = `/login <email> <password>  sign in
/signup <name> <email> <password>
/voice                     speak replies (hands-free mode)
/hush                      stop speaking
/cart <message> <product>  add a suggested product
/close, /open              hide or show the assistant
/quit`

func main() {
	cfg, err := config.Load(os.Args[1:])

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: log.LevelWarn,
	})))

	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewClient(cfg.Proxy, time.Duration(cfg.Backend.Timeout))
	if err != nil {
		log.Error("Failed to dial socks proxy", "err", err)
		os.Exit(1)
	}

	login, err := auth.NewSession(cfg.AuthFile)
	if err != nil {
		log.Error("Failed to restore login", "err", err)
		os.Exit(1)
	}
	store := backend.NewHTTP(cfg.Backend.URL, httpClient, login)

	var be backend.Backend = store
	switch cfg.Backend.Kind {
	case "openai":
		client := openai.NewClient(option.WithAPIKey(cfg.OpenAIKey), option.WithHTTPClient(httpClient))
		be = backend.NewOpenAI(client, cfg.Backend.Model)
	case "gemini":
		if be, err = backend.NewGemini(ctx, cfg.GeminiKey, cfg.Backend.Model, httpClient); err != nil {
			log.Error("Failed to init gemini", "err", err)
			os.Exit(1)
		}
	}

	var synth tts.Synthesizer
	if cfg.Voice.Output {
		if e, err := voice.NewEspeak(cfg.Voice.OutputLang); err == nil {
			synth = e
		} else {
			log.Warn("Speech output disabled", "err", err)
		}
	}

	sess := session.New(session.DefaultConfig(), be, nil, synth)
	basket := cart.NewMemory()
	surf := surface.New(sess, login, surface.NavigatorFunc(func(string) {
		fmt.Println("Please sign in first: /login <email> <password>")
	}), basket)

	styles := surface.NewStyles(surface.DefaultTheme)
	width := 80

	go func() {
		n := len(sess.Messages())
		for m := range sess.Subscribe() {
			n++
			fmt.Println(styles.RenderMessage(n, m, width))
		}
	}()

	go func() {
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Session stopped", "err", err)
		}
	}()

	fmt.Printf("carevox %s\n%s\n\n", sess.ID()[:8], styles.RenderStatus(sess.State(), false, 0))
	for i, m := range sess.Messages() {
		fmt.Println(styles.RenderMessage(i+1, m, width))
	}
	surf.Open()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := command(ctx, strings.TrimSpace(line), sess, surf, login, store, basket); quit {
				return
			}
			if status := styles.RenderStatus(sess.State(), surf.IsOpen(), basket.Count()); status != "" {
				fmt.Println(status)
			}
		}
	}
}

func command(ctx context.Context, line string, sess *session.Session, surf *surface.Surface, login *auth.Session, store auth.Authenticator, basket *cart.Memory) bool {
	if !strings.HasPrefix(line, "/") {
		if _, err := surf.Submit(line, backend.InputText); err != nil {
			fmt.Println(err)
		}
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(help)
	case "/login":
		if len(fields) != 3 {
			fmt.Println("usage: /login <email> <password>")
			return false
		}
		if err := login.Login(ctx, store, fields[1], fields[2]); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Println("Signed in as", login.User().Email)
		surf.Open()
	case "/signup":
		if len(fields) != 4 {
			fmt.Println("usage: /signup <name> <email> <password>")
			return false
		}
		if err := login.Signup(ctx, store, fields[1], fields[2], fields[3]); err != nil {
			fmt.Println(err)
			return false
		}
		surf.Open()
	case "/open":
		surf.Open()
	case "/close":
		surf.Close()
	case "/voice":
		on, err := surf.ToggleVoiceMode()
		if err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Println("voice mode:", on)
	case "/hush":
		if err := surf.StopSpeaking(); err != nil {
			fmt.Println(err)
		}
	case "/cart":
		addToCart(ctx, fields[1:], sess, surf, basket)
	default:
		fmt.Println("unknown command, try /help")
	}
	return false
}

func addToCart(ctx context.Context, args []string, sess *session.Session, surf *surface.Surface, basket *cart.Memory) {
	if len(args) != 2 {
		fmt.Println("usage: /cart <message> <product>")
		return
	}
	mi, err1 := strconv.Atoi(args[0])
	pi, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		fmt.Println("usage: /cart <message> <product>")
		return
	}

	msgs := sess.Messages()
	if mi < 1 || mi > len(msgs) || pi < 1 || pi > len(msgs[mi-1].Products) {
		fmt.Println("no such product")
		return
	}

	item, err := surf.AddToCart(ctx, msgs[mi-1].Products[pi-1])
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Added %s to cart (%d items, $%.2f)\n", item.Title, basket.Count(), basket.Total())
}
