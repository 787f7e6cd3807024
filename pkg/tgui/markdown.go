package tgui

import (
	"strings"

	"pennylane/internal/transport"
)

const ParseMarkdown = "Markdown"

var mdEscaper = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)

// EscMarkdown escapes the legacy Markdown entity characters in s.
func EscMarkdown(s string) string { return mdEscaper.Replace(s) }

// Code wraps s in backticks. Backticks inside s are dropped since legacy
// Markdown cannot escape them within an entity.
func Code(s string) string { return "`" + strings.ReplaceAll(s, "`", "") + "`" }

// Bold wraps escaped s in asterisks.
func Bold(s string) string { return "*" + EscMarkdown(s) + "*" }

// Text accumulates legacy Markdown lines.
type Text struct {
	lines []string
}

func NewText() *Text { return &Text{} }

// Line appends s escaped.
func (t *Text) Line(s string) *Text {
	t.lines = append(t.lines, EscMarkdown(s))
	return t
}

// Raw appends s as already formatted Markdown.
func (t *Text) Raw(s string) *Text {
	t.lines = append(t.lines, s)
	return t
}

func (t *Text) Blank() *Text {
	t.lines = append(t.lines, "")
	return t
}

func (t *Text) String() string { return strings.Join(t.lines, "\n") }

// Options returns Markdown send options with kb attached when non-nil.
func Options(kb *Inline) *transport.SendOptions {
	opt := &transport.SendOptions{ParseMode: ParseMarkdown, DisablePreview: true}
	if kb != nil {
		opt.ReplyMarkup = kb.Markup()
	}
	return opt
}
