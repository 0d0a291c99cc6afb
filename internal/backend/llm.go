package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

const chatPrompt = `
You are the Smart Health Store assistant. You help shoppers find health and
wellness products and answer general questions about the store.

Reply with ONLY a JSON object, no markdown:
{
  "message": "<your reply to the shopper>",
  "products": [
    {"name": "<product>", "category": "<category>", "price": <number>, "description": "<one line>"}
  ]
}

Include "products" only when recommending concrete items. Never give a diagnosis.
`

const triagePrompt = `
You are the Smart Health Store symptom helper. The shopper describes how they
feel. Suggest over-the-counter products and self-care, and tell them to see a
doctor when symptoms sound serious. You are not a doctor; never diagnose.

Reply with ONLY a JSON object, no markdown:
{
  "analysis": "<short explanation of likely causes and self-care>",
  "products": [
    {"name": "<product>", "category": "<category>", "price": <number>, "description": "<one line>"}
  ],
  "followUpQuestion": "<one clarifying question, or empty>"
}
`

// completeFunc sends one system+user exchange and returns the raw reply text.
type completeFunc func(ctx context.Context, system, user string) (string, error)

// llmBackend answers both operations from a chat model instead of the store
// API.
type llmBackend struct {
	complete completeFunc
	now      func() time.Time
}

func (b llmBackend) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	content, err := b.complete(ctx, chatPrompt, req.Message)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	var out struct {
		Message  string    `json:"message"`
		Products []Product `json:"products"`
	}
	if err := decodeJSON(content, &out); err != nil {
		return nil, err
	}
	if out.Message == "" {
		return nil, fmt.Errorf("empty chat message (raw: %s)", content)
	}

	return &ChatResponse{
		Message:   out.Message,
		Timestamp: b.clock().Format(time.RFC3339Nano),
		Products:  out.Products,
	}, nil
}

func (b llmBackend) CheckSymptoms(ctx context.Context, req SymptomRequest) (*SymptomResponse, error) {
	content, err := b.complete(ctx, triagePrompt, req.Symptoms)
	if err != nil {
		return nil, fmt.Errorf("triage completion: %w", err)
	}

	var out SymptomResponse
	if err := decodeJSON(content, &out); err != nil {
		return nil, err
	}

	if strings.TrimSpace(out.Analysis) == "" {
		return &SymptomResponse{Success: false, Message: "empty analysis"}, nil
	}
	out.Success = true
	return &out, nil
}

func (b llmBackend) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// decodeJSON tolerates markdown fences and the usual model slips (trailing
// commas, single quotes, truncated objects).
func decodeJSON(content string, v any) error {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	err := json.Unmarshal([]byte(s), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return fmt.Errorf("unmarshal reply: %w (raw: %s)", err, content)
	}

	fixed, rerr := jsonrepair.JSONRepair(s)
	if rerr != nil {
		return fmt.Errorf("repair reply: %w (raw: %s)", rerr, content)
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("unmarshal repaired reply: %w (raw: %s)", err, content)
	}
	return nil
}
