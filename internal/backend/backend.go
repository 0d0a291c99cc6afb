// Package backend holds the request/response operations the assistant
// consumes: general chat and symptom triage, plus account calls on the store
// API. The language understanding behind them is a black box.
package backend

import (
	"context"
	"errors"
)

type InputType string

const (
	InputText  InputType = "text"
	InputVoice InputType = "voice"
)

// ErrFailed marks a structured reply that reported success=false.
var ErrFailed = errors.New("backend: request failed")

type Product struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Image       string  `json:"image,omitempty"`
	Description string  `json:"description,omitempty"`
}

type ChatRequest struct {
	Message   string    `json:"message"`
	InputType InputType `json:"inputType"`
}

type ChatResponse struct {
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Products  []Product `json:"products,omitempty"`
}

type SymptomRequest struct {
	Symptoms  string    `json:"symptoms"`
	InputType InputType `json:"inputType"`
}

type SymptomResponse struct {
	Success          bool      `json:"success"`
	Analysis         string    `json:"analysis,omitempty"`
	Products         []Product `json:"products,omitempty"`
	FollowUpQuestion string    `json:"followUpQuestion,omitempty"`
	Message          string    `json:"message,omitempty"`
}

type Backend interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	CheckSymptoms(ctx context.Context, req SymptomRequest) (*SymptomResponse, error)
}
