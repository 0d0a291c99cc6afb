package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "log/slog"
)

// TokenSource supplies the bearer token for authenticated calls; an empty
// token sends no Authorization header.
type TokenSource interface {
	Token() string
}

type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: http %d", e.Status)
	}
	return fmt.Sprintf("backend: http %d: %s", e.Status, e.Message)
}

// HTTP talks to the store API.
type HTTP struct {
	base   string
	client *http.Client
	tokens TokenSource
}

var _ Backend = (*HTTP)(nil)

func NewHTTP(baseURL string, client *http.Client, tokens TokenSource) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTP{
		base:   strings.TrimRight(baseURL, "/"),
		client: client,
		tokens: tokens,
	}
}

func (h *HTTP) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := h.post(ctx, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTP) CheckSymptoms(ctx context.Context, req SymptomRequest) (*SymptomResponse, error) {
	var out SymptomResponse
	if err := h.post(ctx, "/symptom-check", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTP) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := h.post(ctx, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTP) Signup(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := h.post(ctx, "/auth/signup", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTP) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.tokens != nil {
		if tok := h.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	log.Debug("Backend request", "path", path)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Message = body.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
