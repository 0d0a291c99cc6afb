// Package auth keeps the signed-in user for the assistant and hands its token
// to the backend client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	log "log/slog"

	"github.com/goccy/go-yaml"

	"carevox/internal/backend"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.AuthResponse, error)
	Signup(ctx context.Context, name, email, password string) (*backend.AuthResponse, error)
}

type stored struct {
	Token string       `yaml:"token"`
	User  backend.User `yaml:"user"`
}

// Session is safe for concurrent use. The zero value is signed out.
type Session struct {
	mu    sync.RWMutex
	token string
	user  backend.User
	path  string
}

// NewSession restores a previously saved login from path when it exists. An
// empty path keeps the login in memory only.
func NewSession(path string) (*Session, error) {
	s := &Session{path: path}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var st stored
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	s.token, s.user = st.Token, st.User
	return s, nil
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() backend.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) Login(ctx context.Context, a Authenticator, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}

	resp, err := a.Login(ctx, email, password)
	if err != nil {
		return authError(err)
	}
	return s.set(resp)
}

func (s *Session) Signup(ctx context.Context, a Authenticator, name, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}

	resp, err := a.Signup(ctx, strings.TrimSpace(name), email, password)
	if err != nil {
		return authError(err)
	}
	return s.set(resp)
}

func (s *Session) Logout() error {
	s.mu.Lock()
	s.token, s.user = "", backend.User{}
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (s *Session) set(resp *backend.AuthResponse) error {
	if resp == nil || resp.Token == "" {
		return fmt.Errorf("%w: no token in response", ErrInvalidCredentials)
	}

	s.mu.Lock()
	s.token, s.user = resp.Token, resp.User
	path := s.path
	s.mu.Unlock()

	log.Info("Signed in", "user", resp.User.Email)

	if path == "" {
		return nil
	}

	raw, err := yaml.Marshal(stored{Token: resp.Token, User: resp.User})
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func authError(err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
	}
	return fmt.Errorf("login: %w", err)
}
