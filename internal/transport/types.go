package transport

import (
	"context"
	"errors"
	"time"
)

// TenantID identifies one independently configured community (guild/group).
type TenantID int64

// ChannelID identifies a channel within a tenant. Zero means "unset".
type ChannelID int64

// EventKind is the closed set of notifiable occurrences the gateway emits.
// Anything else never reaches the router.
type EventKind string

const (
	EventMessageDelete EventKind = "message_delete"
	EventMessageEdit   EventKind = "message_edit"
	EventMemberJoin    EventKind = "member_join"
	EventMemberRemove  EventKind = "member_remove"
)

// User carries the identity fields the renderer and payload builders need.
type User struct {
	ID            int64
	Name          string
	Discriminator string
	Mention       string
	Bot           bool
	AvatarURL     string
	CreatedAt     time.Time
}

// Event is a tagged variant: Kind selects which payload pointer is set.
// Exactly one of Deleted/Edited/Member is non-nil for a well-formed event.
type Event struct {
	Kind   EventKind
	Tenant TenantID

	Deleted *MessageDeleted
	Edited  *MessageEdited
	Member  *MemberChange
}

// MessageDeleted may arrive with partial data: the author or content can be
// unknown when the message was never cached by the gateway.
type MessageDeleted struct {
	Author      *User
	Channel     ChannelID
	ChannelName string
	Content     string
}

type MessageEdited struct {
	Author      *User
	Channel     ChannelID
	ChannelName string
	Before      string
	After       string
}

// MemberChange covers both join and remove. ServerName and MemberCount are
// snapshotted at event time so the renderer never calls back into the
// gateway.
type MemberChange struct {
	User        User
	ServerName  string
	MemberCount int
}

// PayloadField is one name/value block of a structured notification.
type PayloadField struct {
	Name   string
	Value  string
	Inline bool
}

// Payload is the structured message handed to the delivery primitive.
// How it is rendered (embed, HTML, plain text) is the adapter's business.
type Payload struct {
	Title       string
	Description string
	Color       uint32
	Fields      []PayloadField
	Footer      string

	AuthorName    string
	AuthorIconURL string
	ThumbnailURL  string
	ImageURL      string

	Timestamp time.Time
}

// ChannelInfo is the result of resolving a channel reference within a tenant.
type ChannelInfo struct {
	ID   ChannelID
	Name string
}

// ErrChannelNotFound reports that a channel reference does not resolve
// within the tenant. For the router this is an expected steady state, not
// an error condition.
var ErrChannelNotFound = errors.New("channel not found")

// Gateway is the chat-platform collaborator. It delivers raw events,
// resolves channel references and exposes the send primitive. It is
// injected at construction time; nothing in this repository holds a
// process-wide client handle.
type Gateway interface {
	Start(ctx context.Context, out chan<- Event) error
	Stop(ctx context.Context) error

	ResolveChannel(ctx context.Context, tenant TenantID, channel ChannelID) (ChannelInfo, error)
	SendPayload(ctx context.Context, tenant TenantID, channel ChannelID, p Payload) error
}
