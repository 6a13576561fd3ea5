package guildconf

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"wardenbot/internal/transport"
)

// EventClass is one of the fixed, enumerable kinds of notifiable occurrence.
type EventClass string

const (
	EventMessageDelete EventClass = "message_delete"
	EventMessageEdit   EventClass = "message_edit"
	EventMemberJoin    EventClass = "member_join"
	EventMemberRemove  EventClass = "member_remove"
)

// Classes returns the supported event classes in stable order.
func Classes() []EventClass {
	return []EventClass{EventMessageDelete, EventMessageEdit, EventMemberJoin, EventMemberRemove}
}

func (c EventClass) Valid() bool {
	switch c {
	case EventMessageDelete, EventMessageEdit, EventMemberJoin, EventMemberRemove:
		return true
	}
	return false
}

// ParseClass normalizes user input into an EventClass.
func ParseClass(s string) (EventClass, error) {
	c := EventClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported event class %q (supported: %s)", s, strings.Join(classNames(), ", "))
	}
	return c, nil
}

func classNames() []string {
	cs := Classes()
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// EventSet is a set over EventClass. The zero value is an empty set that is
// safe to query; Add allocates lazily via the pointer receiver.
type EventSet map[EventClass]struct{}

func (s EventSet) Has(c EventClass) bool {
	_, ok := s[c]
	return ok
}

func (s *EventSet) Add(c EventClass) {
	if *s == nil {
		*s = EventSet{}
	}
	(*s)[c] = struct{}{}
}

func (s EventSet) Remove(c EventClass) {
	delete(s, c)
}

func (s EventSet) Len() int { return len(s) }

// Sorted returns the members in stable order for display and persistence.
func (s EventSet) Sorted() []EventClass {
	out := make([]EventClass, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s EventSet) Clone() EventSet {
	if s == nil {
		return nil
	}
	cp := make(EventSet, len(s))
	for c := range s {
		cp[c] = struct{}{}
	}
	return cp
}

// MarshalJSON persists the set as a sorted string list.
func (s EventSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(s))
	for _, c := range s.Sorted() {
		names = append(names, string(c))
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts a string list and silently drops tags outside the
// supported enum, so stale or hand-edited persisted data can never widen
// the set beyond what the router understands.
func (s *EventSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	set := EventSet{}
	for _, n := range names {
		c := EventClass(strings.ToLower(strings.TrimSpace(n)))
		if c.Valid() {
			set[c] = struct{}{}
		}
	}
	*s = set
	return nil
}

// Documented defaults for unset welcome fields. The footer default is
// dynamic ("Member #<count>") and rendered by the payload builder.
const (
	DefaultWelcomeTitle   = "🎉 Welcome to the Server!"
	DefaultWelcomeMessage = "Welcome {user} to the server!"
)

// WelcomeConfig holds the customizable greeting fields. Empty strings mean
// "unset, use the documented default".
type WelcomeConfig struct {
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Footer     string `json:"footer,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	AuthorIcon string `json:"author_icon,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Image      string `json:"image,omitempty"`
}

// TenantConfig is the per-tenant configuration document.
//
// A tenant with no stored document is indistinguishable from one holding
// the zero value: no notification channel, no enabled events, all welcome
// fields on defaults.
type TenantConfig struct {
	NotificationChannel transport.ChannelID `json:"notification_channel,omitempty"`
	EnabledEvents       EventSet            `json:"enabled_events,omitempty"`
	Welcome             WelcomeConfig       `json:"welcome"`
	CommandPrefix       string              `json:"command_prefix,omitempty"`
}

// Default returns the synthesized document for tenants with no stored state.
func Default() TenantConfig {
	return TenantConfig{}
}

func (c TenantConfig) Clone() TenantConfig {
	cp := c
	cp.EnabledEvents = c.EnabledEvents.Clone()
	return cp
}

// normalize enforces the document invariants after a mutator ran: the
// enabled set stays within the supported enum.
func (c *TenantConfig) normalize() {
	for tag := range c.EnabledEvents {
		if !tag.Valid() {
			delete(c.EnabledEvents, tag)
		}
	}
}
