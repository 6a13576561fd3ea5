package telegram

import (
	"html"
	"strings"

	"wardenbot/internal/transport"
)

func escapeHTML(s string) string { return html.EscapeString(s) }

func bold(s string) string { return "<b>" + escapeHTML(s) + "</b>" }

func italic(s string) string { return "<i>" + escapeHTML(s) + "</i>" }

func link(text, url string) string {
	return `<a href="` + escapeHTML(url) + `">` + escapeHTML(text) + `</a>`
}

// FormatPayload renders a structured payload as a Telegram HTML message.
// Payload values are plain text and get escaped here; the adapter owns all
// markup.
func FormatPayload(p transport.Payload) string {
	var b strings.Builder

	if p.Title != "" {
		b.WriteString(bold(p.Title))
	}
	if p.AuthorName != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(italic(p.AuthorName))
	}
	if p.Description != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(escapeHTML(p.Description))
	}
	for _, f := range p.Fields {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(bold(f.Name))
		b.WriteString("\n")
		b.WriteString(escapeHTML(f.Value))
	}
	if p.ImageURL != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(link("📷 image", p.ImageURL))
	}
	if p.Footer != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(italic(p.Footer))
	}
	return b.String()
}
