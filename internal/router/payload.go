package router

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"wardenbot/internal/guildconf"
	"wardenbot/internal/render"
	"wardenbot/internal/transport"
)

// maxFieldLen is the delivery primitive's per-field size ceiling. The
// router enforces it; the gateway never sees oversized content.
const maxFieldLen = 1024

const (
	colorRed      = 0xED4245
	colorOrange   = 0xE67E22
	colorGreen    = 0x57F287
	colorDarkGrey = 0x607D8B
	colorBlurple  = 0x5865F2
)

const (
	unknownText   = "Unknown"
	noContentText = "(no content)"
)

// truncate caps s to n characters. Units are runes, matching how the
// delivery primitive counts field length.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n])
}

// contentField applies the "(no content)" fallback before truncation.
func contentField(s string) string {
	if s == "" {
		return noContentText
	}
	return truncate(s, maxFieldLen)
}

// authorLine degrades gracefully when the author was never cached.
func authorLine(u *transport.User) string {
	if u == nil {
		return fmt.Sprintf("%s (N/A)", unknownText)
	}
	name := u.Name
	if name == "" {
		name = unknownText
	}
	return fmt.Sprintf("%s (%d)", name, u.ID)
}

func channelLine(name string) string {
	if name == "" {
		return unknownText
	}
	return name
}

func buildDeleted(ev *transport.MessageDeleted) transport.Payload {
	p := transport.Payload{
		Title:     "Message Deleted",
		Color:     colorRed,
		Timestamp: time.Now().UTC(),
		Fields: []transport.PayloadField{
			{Name: "Author", Value: authorLine(ev.Author)},
			{Name: "Channel", Value: channelLine(ev.ChannelName)},
			{Name: "Content", Value: contentField(ev.Content)},
		},
	}
	if ev.Author != nil && ev.Author.AvatarURL != "" {
		p.ThumbnailURL = ev.Author.AvatarURL
	}
	return p
}

func buildEdited(ev *transport.MessageEdited) transport.Payload {
	p := transport.Payload{
		Title:     "Message Edited",
		Color:     colorOrange,
		Timestamp: time.Now().UTC(),
		Fields: []transport.PayloadField{
			{Name: "Author", Value: authorLine(ev.Author)},
			{Name: "Channel", Value: channelLine(ev.ChannelName)},
			{Name: "Before", Value: contentField(ev.Before)},
			{Name: "After", Value: contentField(ev.After)},
		},
	}
	if ev.Author != nil && ev.Author.AvatarURL != "" {
		p.ThumbnailURL = ev.Author.AvatarURL
	}
	return p
}

func buildMemberLeft(m *transport.MemberChange) transport.Payload {
	p := transport.Payload{
		Title:     "Member Left",
		Color:     colorDarkGrey,
		Timestamp: time.Now().UTC(),
		Fields: []transport.PayloadField{
			{Name: "User", Value: authorLine(&m.User)},
		},
	}
	if m.User.AvatarURL != "" {
		p.ThumbnailURL = m.User.AvatarURL
	}
	return p
}

// BuildWelcome assembles the greeting payload for a member join from the
// tenant's welcome fields, falling back to the documented defaults for
// every unset field. Exported so the administrative preview renders the
// exact payload a real join would produce.
func BuildWelcome(w guildconf.WelcomeConfig, m *transport.MemberChange) transport.Payload {
	ctx := render.ContextForMember(m)

	title := w.Title
	if title == "" {
		title = guildconf.DefaultWelcomeTitle
	}
	message := w.Message
	if message == "" {
		message = guildconf.DefaultWelcomeMessage
	}
	footer := w.Footer
	if footer == "" {
		footer = "Member #" + strconv.Itoa(ctx.MemberCount)
	}

	p := transport.Payload{
		Title:       truncate(render.Render(title, ctx), maxFieldLen),
		Description: truncate(render.Render(message, ctx), maxFieldLen),
		Footer:      truncate(render.Render(footer, ctx), maxFieldLen),
		Color:       colorBlurple,
		Timestamp:   time.Now().UTC(),
	}

	if w.AuthorName != "" {
		p.AuthorName = truncate(render.Render(w.AuthorName, ctx), maxFieldLen)
		p.AuthorIconURL = w.AuthorIcon
	}

	p.ThumbnailURL = w.Thumbnail
	if p.ThumbnailURL == "" && m != nil {
		p.ThumbnailURL = m.User.AvatarURL
	}
	p.ImageURL = w.Image

	return p
}
