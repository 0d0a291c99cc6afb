// Package cart turns product suggestions into store items and holds the
// items the user added from the conversation.
package cart

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"carevox/internal/session"
)

const DefaultImage = "https://images.unsplash.com/photo-1584308666744-24d5c474f2ae?w=400"

var ErrQuantity = errors.New("cart: quantity must be positive")

var whitespace = regexp.MustCompile(`\s+`)

type Item struct {
	ID          string
	Title       string
	Price       float64
	Image       string
	Description string
	Tags        []string
	InStock     bool
}

// ItemFrom derives a store item from a suggestion. The ID is the lowercased
// name with whitespace runs replaced by a hyphen.
func ItemFrom(p session.ProductSuggestion) Item {
	image := p.ImageRef
	if image == "" {
		image = DefaultImage
	}

	return Item{
		ID:          whitespace.ReplaceAllString(strings.ToLower(p.Name), "-"),
		Title:       p.Name,
		Price:       p.UnitPrice,
		Image:       image,
		Description: p.Description,
		Tags:        []string{strings.ToLower(p.Category)},
		InStock:     true,
	}
}

type Cart interface {
	Add(ctx context.Context, item Item, qty int) error
}

type Line struct {
	Item     Item
	Quantity int
}

// Memory is an in-process cart. Adding an item already present bumps its
// quantity.
type Memory struct {
	mu    sync.Mutex
	lines []Line
}

var _ Cart = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Add(ctx context.Context, item Item, qty int) error {
	if qty <= 0 {
		return ErrQuantity
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.lines {
		if m.lines[i].Item.ID == item.ID {
			m.lines[i].Quantity += qty
			return nil
		}
	}
	m.lines = append(m.lines, Line{Item: item, Quantity: qty})
	return nil
}

func (m *Memory) Lines() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Line(nil), m.lines...)
}

// Count is the total quantity across lines.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, l := range m.lines {
		n += l.Quantity
	}
	return n
}

func (m *Memory) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, l := range m.lines {
		total += l.Item.Price * float64(l.Quantity)
	}
	return total
}
