// Package render substitutes placeholder tokens into greeting and
// notification templates.
package render

import (
	"strconv"
	"strings"

	"wardenbot/internal/transport"
)

// Context carries the event data a template can reference.
type Context struct {
	UserMention       string
	UserName          string
	UserDiscriminator string
	UserID            int64
	ServerName        string
	MemberCount       int
}

// ContextForMember builds a render context from a member change event.
func ContextForMember(m *transport.MemberChange) Context {
	if m == nil {
		return Context{}
	}
	return Context{
		UserMention:       m.User.Mention,
		UserName:          m.User.Name,
		UserDiscriminator: m.User.Discriminator,
		UserID:            m.User.ID,
		ServerName:        m.ServerName,
		MemberCount:       m.MemberCount,
	}
}

// Placeholder documents one recognized token.
type Placeholder struct {
	Token       string
	Description string
}

// Placeholders lists the recognized tokens in display order.
func Placeholders() []Placeholder {
	return []Placeholder{
		{Token: "{user}", Description: "mention the user"},
		{Token: "{user.name}", Description: "user's username"},
		{Token: "{user.discriminator}", Description: "user's discriminator (e.g., 1234)"},
		{Token: "{user.id}", Description: "user's ID"},
		{Token: "{server}", Description: "server name"},
		{Token: "{member_count}", Description: "server member count"},
	}
}

func (c Context) value(token string) (string, bool) {
	switch token {
	case "{user}":
		return c.UserMention, true
	case "{user.name}":
		return c.UserName, true
	case "{user.discriminator}":
		return c.UserDiscriminator, true
	case "{user.id}":
		return strconv.FormatInt(c.UserID, 10), true
	case "{server}":
		return c.ServerName, true
	case "{member_count}":
		return strconv.Itoa(c.MemberCount), true
	}
	return "", false
}

// tokens is the fixed lookup table, longest-first so "{user.name}" wins
// over "{user}" at the same position.
var tokens = []string{
	"{user.discriminator}",
	"{member_count}",
	"{user.name}",
	"{user.id}",
	"{server}",
	"{user}",
}

// Render substitutes the recognized tokens in a single left-to-right pass.
//
// Leniency contract: unknown or malformed tokens pass through verbatim and
// never raise. Substituted values are written straight to the output buffer
// and are never re-scanned, so a value containing "{user}" cannot trigger
// further expansion. An empty template renders to an empty string.
func Render(template string, ctx Context) string {
	if template == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(template) + 32)

	for i := 0; i < len(template); {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			b.WriteString(template[i:])
			break
		}
		open += i
		b.WriteString(template[i:open])

		matched := false
		for _, tok := range tokens {
			if strings.HasPrefix(template[open:], tok) {
				v, _ := ctx.value(tok)
				b.WriteString(v)
				i = open + len(tok)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte('{')
			i = open + 1
		}
	}
	return b.String()
}
