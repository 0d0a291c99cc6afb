package surface

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"carevox/internal/session"
)

type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Dim     lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00b894"),
	Accent:  lipgloss.Color("#74b9ff"),
	Dim:     lipgloss.Color("#6e7681"),
}

type Styles struct {
	Assistant lipgloss.Style
	User      lipgloss.Style
	Time      lipgloss.Style
	Product   lipgloss.Style
	Price     lipgloss.Style
	Status    lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		Time:      lipgloss.NewStyle().Foreground(t.Dim),
		Product:   lipgloss.NewStyle().PaddingLeft(4),
		Price:     lipgloss.NewStyle().Foreground(t.Primary),
		Status:    lipgloss.NewStyle().Italic(true).Foreground(t.Dim),
	}
}

// RenderMessage draws one log entry. index is the 1-based position used to
// address its products.
func (s Styles) RenderMessage(index int, m session.Message, width int) string {
	who := s.Assistant.Render("assistant")
	if m.Role == session.RoleUser {
		who = s.User.Render("you")
	}

	head := fmt.Sprintf("%d %s %s", index, who, s.Time.Render(m.Timestamp.Format("15:04")))
	body := lipgloss.NewStyle().Width(max(20, width-2)).PaddingLeft(2).Render(m.Content)

	lines := []string{head, body}
	for i, p := range m.Products {
		line := fmt.Sprintf("%d. %s", i+1, p.Name)
		if p.Category != "" {
			line += s.Time.Render(" · " + p.Category)
		}
		line += " " + s.Price.Render(fmt.Sprintf("$%.2f", p.UnitPrice))
		lines = append(lines, s.Product.Render(line))
	}
	return strings.Join(lines, "\n")
}

func (s Styles) RenderStatus(st session.State, open bool, cartCount int) string {
	var parts []string
	if !open {
		parts = append(parts, "closed")
	}
	if st.VoiceMode {
		parts = append(parts, "voice")
	}
	if st.Listening {
		parts = append(parts, "listening")
	}
	if st.Speaking {
		parts = append(parts, "speaking")
	}
	if st.Loading {
		parts = append(parts, "thinking...")
	}
	if cartCount > 0 {
		parts = append(parts, fmt.Sprintf("cart %d", cartCount))
	}
	if len(parts) == 0 {
		return ""
	}
	return s.Status.Render("[" + strings.Join(parts, " | ") + "]")
}
