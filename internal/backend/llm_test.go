package backend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedBackend(reply string, err error) (llmBackend, *[]string) {
	var prompts []string
	b := llmBackend{
		complete: func(_ context.Context, system, user string) (string, error) {
			prompts = append(prompts, system, user)
			return reply, err
		},
		now: func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
	return b, &prompts
}

func TestLLMChat(t *testing.T) {
	b, prompts := fixedBackend("```json\n{\"message\":\"Hi there\",\"products\":[{\"name\":\"Zinc\",\"category\":\"Minerals\",\"price\":4}]}\n```", nil)

	resp, err := b.Chat(context.Background(), ChatRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != "Hi there" || len(resp.Products) != 1 || resp.Products[0].Name != "Zinc" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Timestamp != "2026-03-01T10:00:00Z" {
		t.Errorf("timestamp = %q", resp.Timestamp)
	}
	if (*prompts)[0] != chatPrompt || (*prompts)[1] != "hello" {
		t.Errorf("prompts = %q", *prompts)
	}
}

func TestLLMChatRepairsJSON(t *testing.T) {
	b, _ := fixedBackend(`{"message": "Open until 9", "products": [],}`, nil)

	resp, err := b.Chat(context.Background(), ChatRequest{Message: "hours"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != "Open until 9" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestLLMChatEmptyMessage(t *testing.T) {
	b, _ := fixedBackend(`{"message": ""}`, nil)
	if _, err := b.Chat(context.Background(), ChatRequest{Message: "x"}); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestLLMChatCompletionError(t *testing.T) {
	boom := errors.New("rate limited")
	b, _ := fixedBackend("", boom)
	if _, err := b.Chat(context.Background(), ChatRequest{Message: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestLLMCheckSymptoms(t *testing.T) {
	b, prompts := fixedBackend(`{
		"analysis": "Likely tension headache.",
		"products": [{"name": "PainRelief", "category": "Analgesics", "price": 5.99}],
		"followUpQuestion": "How long has it lasted?"
	}`, nil)

	resp, err := b.CheckSymptoms(context.Background(), SymptomRequest{Symptoms: "I have a headache"})
	if err != nil {
		t.Fatalf("CheckSymptoms: %v", err)
	}
	if !resp.Success {
		t.Fatal("Success = false")
	}
	if resp.Analysis != "Likely tension headache." || resp.FollowUpQuestion != "How long has it lasted?" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Products) != 1 || resp.Products[0].Name != "PainRelief" {
		t.Errorf("products = %+v", resp.Products)
	}
	if !strings.Contains((*prompts)[0], "symptom helper") {
		t.Error("triage prompt not used")
	}
}

func TestLLMCheckSymptomsEmptyAnalysis(t *testing.T) {
	b, _ := fixedBackend(`{"analysis": "  "}`, nil)

	resp, err := b.CheckSymptoms(context.Background(), SymptomRequest{Symptoms: "fever"})
	if err != nil {
		t.Fatalf("CheckSymptoms: %v", err)
	}
	if resp.Success {
		t.Error("Success = true for empty analysis")
	}
}

func TestDecodeJSONTypeMismatch(t *testing.T) {
	var out struct {
		Message int `json:"message"`
	}
	if err := decodeJSON(`{"message":"text"}`, &out); err == nil {
		t.Fatal("expected type error")
	}
}
