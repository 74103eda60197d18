package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdown renders markdown for the terminal, falling back to the raw text
type markdown struct {
	renderer *glamour.TermRenderer
}

func newMarkdown(enabled bool) *markdown {
	if !enabled {
		return &markdown{}
	}
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	return &markdown{renderer: renderer}
}

func (m *markdown) Render(content string) string {
	rendered := content
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			rendered = out
		}
	}
	// Glamour adds leading/trailing newlines - trim them
	return strings.TrimSpace(rendered)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
