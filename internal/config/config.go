// Package config resolves daemon settings. Later sources win:
// defaults < YAML file < environment (.env included) < command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	log "log/slog"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
)

const EnvPrefix = "CAREVOX_"

var LogLevels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// Duration reads "1s"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(b []byte) error {
	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

type Backend struct {
	Kind    string   `yaml:"kind"` // http, openai, gemini
	URL     string   `yaml:"url"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

type Session struct {
	RestartDelay  Duration `yaml:"restart_delay"`
	VoiceDebounce Duration `yaml:"voice_debounce"`
	FollowUpDelay Duration `yaml:"follow_up_delay"`
}

type Voice struct {
	Input      string `yaml:"input"` // mic, file, none
	Model      string `yaml:"model"`
	Language   string `yaml:"language"`
	Threads    int    `yaml:"threads"`
	Output     bool   `yaml:"output"`
	OutputLang string `yaml:"output_lang"`
	Chime      string `yaml:"chime"`
	Duck       bool   `yaml:"duck"`
}

type Config struct {
	LogLevel string  `yaml:"log"`
	Socket   string  `yaml:"socket"`
	Proxy    string  `yaml:"proxy"`
	BusURL   string  `yaml:"bus"`
	AuthFile string  `yaml:"auth_file"`
	Backend  Backend `yaml:"backend"`
	Session  Session `yaml:"session"`
	Voice    Voice   `yaml:"voice"`

	// secrets never come from the YAML file
	OpenAIKey string `yaml:"-"`
	GeminiKey string `yaml:"-"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Socket:   "/tmp/carevox.sock",
		Backend: Backend{
			Kind:    "http",
			URL:     "http://localhost:5000/api",
			Timeout: Duration(60 * time.Second),
		},
		Session: Session{
			RestartDelay:  Duration(time.Second),
			VoiceDebounce: Duration(500 * time.Millisecond),
			FollowUpDelay: Duration(time.Second),
		},
		Voice: Voice{
			Input:      "mic",
			Model:      "third_party/whisper.cpp/models/ggml-base.bin",
			Language:   "auto",
			Output:     true,
			OutputLang: "en",
		},
	}
}

// Load parses args (without the program name) and layers every source.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := cli.NewFlagSet("carevox-daemon", cli.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "Env file path")
	file := fs.StringP("config", "c", "", "YAML config file")

	flags := cfg
	fs.StringVarP(&flags.LogLevel, "log", "l", cfg.LogLevel, "Log level")
	fs.StringVarP(&flags.Socket, "socket", "s", cfg.Socket, "Control socket path")
	fs.StringVarP(&flags.Proxy, "proxy", "p", cfg.Proxy, "Socks proxy address")
	fs.StringVarP(&flags.BusURL, "bus", "b", cfg.BusURL, "Websocket url to mirror messages to")
	fs.StringVar(&flags.AuthFile, "auth-file", cfg.AuthFile, "File keeping the signed-in user")
	fs.StringVar(&flags.Backend.Kind, "backend", cfg.Backend.Kind, "Backend: http, openai or gemini")
	fs.StringVarP(&flags.Backend.URL, "url", "u", cfg.Backend.URL, "Store API base url")
	fs.StringVarP(&flags.Backend.Model, "model", "m", cfg.Backend.Model, "LLM model for openai/gemini backends")
	fs.StringVar(&flags.Voice.Input, "input", cfg.Voice.Input, "Speech input: mic, file or none")
	fs.StringVar(&flags.Voice.Model, "whisper-model", cfg.Voice.Model, "Whisper model path")
	fs.StringVar(&flags.Voice.Language, "lang", cfg.Voice.Language, "Transcription language")
	fs.BoolVar(&flags.Voice.Output, "speak", cfg.Voice.Output, "Speak replies")
	fs.StringVar(&flags.Voice.Chime, "chime", cfg.Voice.Chime, "Mp3 played when listening starts")
	fs.BoolVar(&flags.Voice.Duck, "duck", cfg.Voice.Duck, "Lower other audio while speaking")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("env file %s: %w", *envFile, err)
	}

	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", *file, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	applyFlags(&cfg, &flags, fs)

	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GOOGLE_API_KEY")
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, ok := LogLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	switch c.Backend.Kind {
	case "http":
		if c.Backend.URL == "" {
			return errors.New("http backend needs a url")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY not set")
		}
	case "gemini":
		if c.GeminiKey == "" {
			return errors.New("GEMINI_API_KEY not set")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend.Kind)
	}

	switch c.Voice.Input {
	case "mic", "file", "none":
	default:
		return fmt.Errorf("unknown speech input %q", c.Voice.Input)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}
	duration := func(key string, dst *Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = Duration(d)
		return nil
	}

	str("LOG", &cfg.LogLevel)
	str("SOCKET", &cfg.Socket)
	str("PROXY", &cfg.Proxy)
	str("BUS", &cfg.BusURL)
	str("AUTH_FILE", &cfg.AuthFile)
	str("BACKEND", &cfg.Backend.Kind)
	str("URL", &cfg.Backend.URL)
	str("MODEL", &cfg.Backend.Model)
	str("INPUT", &cfg.Voice.Input)
	str("WHISPER_MODEL", &cfg.Voice.Model)
	str("LANG", &cfg.Voice.Language)
	str("CHIME", &cfg.Voice.Chime)

	return errors.Join(
		boolean("SPEAK", &cfg.Voice.Output),
		boolean("DUCK", &cfg.Voice.Duck),
		duration("TIMEOUT", &cfg.Backend.Timeout),
		duration("RESTART_DELAY", &cfg.Session.RestartDelay),
	)
}

// applyFlags copies only the flags the user actually set.
func applyFlags(cfg, flags *Config, fs *cli.FlagSet) {
	set := map[string]func(){
		"log":           func() { cfg.LogLevel = flags.LogLevel },
		"socket":        func() { cfg.Socket = flags.Socket },
		"proxy":         func() { cfg.Proxy = flags.Proxy },
		"bus":           func() { cfg.BusURL = flags.BusURL },
		"auth-file":     func() { cfg.AuthFile = flags.AuthFile },
		"backend":       func() { cfg.Backend.Kind = flags.Backend.Kind },
		"url":           func() { cfg.Backend.URL = flags.Backend.URL },
		"model":         func() { cfg.Backend.Model = flags.Backend.Model },
		"input":         func() { cfg.Voice.Input = flags.Voice.Input },
		"whisper-model": func() { cfg.Voice.Model = flags.Voice.Model },
		"lang":          func() { cfg.Voice.Language = flags.Voice.Language },
		"speak":         func() { cfg.Voice.Output = flags.Voice.Output },
		"chime":         func() { cfg.Voice.Chime = flags.Voice.Chime },
		"duck":          func() { cfg.Voice.Duck = flags.Voice.Duck },
	}

	fs.Visit(func(f *cli.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}
