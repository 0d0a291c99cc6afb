package session

import (
	"errors"
	"time"

	"carevox/internal/backend"
	"carevox/internal/stt"
)

var (
	ErrVoiceModeActive = errors.New("session: voice mode is active")
	ErrBusy            = errors.New("session: awaiting response")
	ErrClosed          = errors.New("session: closed")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ProductSuggestion is a read-only projection of a product the backend
// recommended.
type ProductSuggestion struct {
	Name        string
	Category    string
	UnitPrice   float64
	ImageRef    string
	Description string
}

// Message is immutable once appended to the log.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	Products  []ProductSuggestion
}

type State struct {
	Loading      bool
	Input        string
	Listening    bool
	Speaking     bool
	VoiceMode    bool
	PendingVoice bool
	CanListen    bool
	CanSpeak     bool
}

type Config struct {
	Greeting     string
	ErrorText    string
	ProductsText string

	RestartDelay   time.Duration
	VoiceDebounce  time.Duration
	FollowUpDelay  time.Duration
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Greeting:       "Hello! I'm your Smart Health Store assistant. How can I help you today?",
		ErrorText:      "Sorry, I encountered an error. Please try again.",
		ProductsText:   "Here are some products that might help:",
		RestartDelay:   stt.SettleDelay,
		VoiceDebounce:  500 * time.Millisecond,
		FollowUpDelay:  time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

func suggestionsFrom(products []backend.Product) []ProductSuggestion {
	if len(products) == 0 {
		return nil
	}

	out := make([]ProductSuggestion, len(products))
	for i, p := range products {
		out[i] = ProductSuggestion{
			Name:        p.Name,
			Category:    p.Category,
			UnitPrice:   p.Price,
			ImageRef:    p.Image,
			Description: p.Description,
		}
	}
	return out
}
