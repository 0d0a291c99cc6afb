package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestHTTPChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Message != "store hours?" || req.InputType != InputVoice {
			t.Errorf("request = %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"message":   "We are open 9 to 9.",
			"timestamp": "2026-01-02T03:04:05Z",
			"products": []map[string]any{
				{"name": "Vitamin C", "category": "Supplements", "price": 9.5},
			},
		})
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL+"/api/", nil, staticToken("tok-1"))
	resp, err := h.Chat(context.Background(), ChatRequest{Message: "store hours?", InputType: InputVoice})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != "We are open 9 to 9." || resp.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Products) != 1 || resp.Products[0].Name != "Vitamin C" || resp.Products[0].Price != 9.5 {
		t.Errorf("products = %+v", resp.Products)
	}
}

func TestHTTPCheckSymptomsNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/symptom-check" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want none", got)
		}
		var req SymptomRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Symptoms != "fever" || req.InputType != InputText {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"success":true,"analysis":"Rest and fluids.","followUpQuestion":"How long?"}`))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, srv.Client(), staticToken(""))
	resp, err := h.CheckSymptoms(context.Background(), SymptomRequest{Symptoms: "fever", InputType: InputText})
	if err != nil {
		t.Fatalf("CheckSymptoms: %v", err)
	}
	if !resp.Success || resp.Analysis != "Rest and fluids." || resp.FollowUpQuestion != "How long?" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid credentials"}`))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, nil, nil)
	_, err := h.Login(context.Background(), "a@b.c", "nope")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Invalid credentials" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestHTTPLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "asha@example.com" || body["password"] != "secret" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte(`{"token":"jwt","user":{"name":"Asha","email":"asha@example.com"}}`))
	}))
	defer srv.Close()

	resp, err := NewHTTP(srv.URL, nil, nil).Login(context.Background(), "asha@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token != "jwt" || resp.User.Name != "Asha" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHTTPCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewHTTP(srv.URL, nil, nil).Chat(ctx, ChatRequest{Message: "hi"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
