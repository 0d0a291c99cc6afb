package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "log/slog"

	"carevox/internal/backend"
	"carevox/internal/nlu"
)

type reply struct {
	intent nlu.Intent
	source backend.InputType
	chat   *backend.ChatResponse
	triage *backend.SymptomResponse
	err    error
}

// dispatch runs off the loop goroutine. It never panics: a misbehaving
// backend turns into an error reply so the session always gets unblocked.
func (s *Session) dispatch(ctx context.Context, intent nlu.Intent, text string, src backend.InputType) (r reply) {
	r.intent, r.source = intent, src

	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("backend panic: %v", p)
		}
	}()

	switch intent {
	case nlu.SymptomQuery:
		resp, err := s.backend.CheckSymptoms(ctx, backend.SymptomRequest{Symptoms: text, InputType: src})
		switch {
		case err != nil:
			r.err = err
		case resp == nil:
			r.err = errors.New("empty triage response")
		case !resp.Success:
			r.err = fmt.Errorf("%w: %s", backend.ErrFailed, resp.Message)
		default:
			r.triage = resp
		}
	default:
		resp, err := s.backend.Chat(ctx, backend.ChatRequest{Message: text, InputType: src})
		switch {
		case err != nil:
			r.err = err
		case resp == nil:
			r.err = errors.New("empty chat response")
		default:
			r.chat = resp
		}
	}
	return r
}

func (s *Session) complete(epoch uint64, r reply) {
	if epoch != s.epoch || !s.state.Loading {
		log.Warn("Dropping stale backend reply", "epoch", epoch, "current", s.epoch)
		return
	}

	if r.err != nil {
		log.Error("Backend request failed", "intent", r.intent, "err", r.err)
		s.append(RoleAssistant, s.cfg.ErrorText, time.Now(), nil)
		s.finish()
		return
	}

	var spoken string
	switch r.intent {
	case nlu.SymptomQuery:
		spoken = r.triage.Analysis
		s.append(RoleAssistant, r.triage.Analysis, time.Now(), nil)

		if products := suggestionsFrom(r.triage.Products); len(products) > 0 {
			s.append(RoleAssistant, s.cfg.ProductsText, time.Now(), products)
		}

		// the follow-up is the terminal append; the gate stays closed until it lands
		if q := strings.TrimSpace(r.triage.FollowUpQuestion); q != "" {
			s.speakReply(r.source, spoken)
			s.schedule(timerFollowUp, s.cfg.FollowUpDelay, func() {
				s.append(RoleAssistant, q, time.Now(), nil)
				s.finish()
			})
			return
		}
	default:
		spoken = r.chat.Message
		ts := parseTimestamp(r.chat.Timestamp)
		s.append(RoleAssistant, r.chat.Message, ts, suggestionsFrom(r.chat.Products))
	}

	s.speakReply(r.source, spoken)
	s.finish()
}

func (s *Session) speakReply(src backend.InputType, text string) {
	if text == "" || !(s.state.VoiceMode || src == backend.InputVoice) {
		return
	}
	if err := s.out.Speak(text); err != nil {
		log.Debug("Reply not spoken", "err", err)
	}
}

func parseTimestamp(raw string) time.Time {
	if raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts
		}
		log.Warn("Unparseable reply timestamp", "timestamp", raw)
	}
	return time.Now()
}
