package bus

import (
	"context"

	log "log/slog"

	"carevox/internal/backend"
	"carevox/internal/session"
)

type Feed interface {
	Subscribe() <-chan session.Message
}

// Asker takes questions from the bus. It is the assistant panel, so asks are
// refused while it is closed or signed out.
type Asker interface {
	Submit(text string, src backend.InputType) (bool, error)
}

// Mirror publishes every new message from feed and passes asks addressed to
// this shard (or broadcast) to asker as typed input. Refused asks are answered
// with a busy message. It returns when ctx ends or the feed closes.
func Mirror(ctx context.Context, b *Bus, feed Feed, asker Asker) error {
	sub := feed.Subscribe()

	go func() {
		for {
			m, err := b.Read(ctx)
			if err != nil {
				return
			}
			if m.Kind != KindAsk || (m.To != "" && m.To != b.Shard()) {
				continue
			}

			log.Info("Question from bus", "from", m.From)
			ok, err := asker.Submit(m.Content, backend.InputText)
			if ok {
				continue
			}
			if err != nil {
				log.Info("Question refused", "from", m.From, "err", err)
			}

			busy := Message{ID: m.ID, To: m.From, Kind: KindBusy, Content: m.Content}
			if err := b.Publish(ctx, busy); err != nil {
				log.Warn("Failed to report busy", "err", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-sub:
			if !ok {
				return nil
			}
			if err := b.Publish(ctx, FromSession(m)); err != nil {
				log.Error("Failed to mirror message", "id", m.ID, "err", err)
			}
		}
	}
}

func FromSession(m session.Message) Message {
	out := Message{
		ID:        m.ID,
		Kind:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	for _, p := range m.Products {
		out.Products = append(out.Products, Product{
			Name:        p.Name,
			Category:    p.Category,
			Price:       p.UnitPrice,
			Image:       p.ImageRef,
			Description: p.Description,
		})
	}
	return out
}
