package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"--env", filepath.Join(t.TempDir(), "missing.env")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	if cfg.Backend != want.Backend || cfg.Voice != want.Voice || cfg.Socket != want.Socket {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	file := writeFile(t, "carevox.yaml", strings.Join([]string{
		"log: debug",
		"socket: /tmp/from-yaml.sock",
		"backend:",
		"  url: http://yaml.example/api",
		"  timeout: 5s",
		"session:",
		"  follow_up_delay: 250ms",
		"voice:",
		"  input: file",
		"  language: hi",
	}, "\n"))

	t.Setenv("CAREVOX_SOCKET", "/tmp/from-env.sock")
	t.Setenv("CAREVOX_LANG", "en")
	t.Setenv("CAREVOX_SPEAK", "false")

	cfg, err := Load([]string{
		"--env", filepath.Join(t.TempDir(), "missing.env"),
		"--config", file,
		"--lang", "ta",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log = %q, want yaml value", cfg.LogLevel)
	}
	if cfg.Backend.URL != "http://yaml.example/api" {
		t.Errorf("url = %q", cfg.Backend.URL)
	}
	if time.Duration(cfg.Backend.Timeout) != 5*time.Second {
		t.Errorf("timeout = %v", time.Duration(cfg.Backend.Timeout))
	}
	if time.Duration(cfg.Session.FollowUpDelay) != 250*time.Millisecond {
		t.Errorf("follow-up = %v", time.Duration(cfg.Session.FollowUpDelay))
	}
	if time.Duration(cfg.Session.RestartDelay) != time.Second {
		t.Errorf("restart delay lost its default: %v", time.Duration(cfg.Session.RestartDelay))
	}
	if cfg.Socket != "/tmp/from-env.sock" {
		t.Errorf("socket = %q, want env value", cfg.Socket)
	}
	if cfg.Voice.Language != "ta" {
		t.Errorf("lang = %q, want flag value", cfg.Voice.Language)
	}
	if cfg.Voice.Output {
		t.Error("speak should be disabled by env")
	}
	if cfg.Voice.Input != "file" {
		t.Errorf("input = %q", cfg.Voice.Input)
	}
}

func TestLoadEnvFile(t *testing.T) {
	env := writeFile(t, ".env", "CAREVOX_BACKEND=openai\nOPENAI_API_KEY=sk-test\n")
	t.Cleanup(func() {
		os.Unsetenv("CAREVOX_BACKEND")
		os.Unsetenv("OPENAI_API_KEY")
	})

	cfg, err := Load([]string{"--env", env})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Kind != "openai" || cfg.OpenAIKey != "sk-test" {
		t.Fatalf("backend %q key %q", cfg.Backend.Kind, cfg.OpenAIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"unknown backend", func(c *Config) { c.Backend.Kind = "grpc" }, false},
		{"http without url", func(c *Config) { c.Backend.URL = "" }, false},
		{"openai without key", func(c *Config) { c.Backend.Kind = "openai" }, false},
		{"gemini with key", func(c *Config) { c.Backend.Kind = "gemini"; c.GeminiKey = "k" }, true},
		{"unknown input", func(c *Config) { c.Voice.Input = "bluetooth" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, ok want %v", err, tt.ok)
			}
		})
	}
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("CAREVOX_TIMEOUT", "soon")
	if _, err := Load([]string{"--env", filepath.Join(t.TempDir(), "missing.env")}); err == nil {
		t.Fatal("bad duration accepted")
	}
}
