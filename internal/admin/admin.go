// Package admin exposes the validated configuration mutations available to
// the command-parsing collaborator. Every operation checks the principal's
// capability before touching state, validates its input, performs exactly
// one store update and returns the resulting document so the caller can
// verify the mutation took effect. All mutations are idempotent overwrites.
package admin

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"

	"wardenbot/internal/guildconf"
	"wardenbot/internal/render"
	"wardenbot/internal/router"
	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

// CapManageTenant gates every configuration mutation. The command layer
// resolves platform permissions into capabilities before calling in.
const CapManageTenant = "tenant.manage"

// Principal identifies the invoking user and the capabilities the command
// layer granted them.
type Principal struct {
	UserID       int64
	Capabilities []string
}

func (p Principal) Has(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Confirmation carries the state resulting from a mutation, not just "ok".
type Confirmation struct {
	Tenant transport.TenantID
	Config guildconf.TenantConfig
}

// WelcomeField names one customizable greeting field.
type WelcomeField string

const (
	FieldTitle      WelcomeField = "title"
	FieldMessage    WelcomeField = "message"
	FieldFooter     WelcomeField = "footer"
	FieldAuthorName WelcomeField = "author_name"
	FieldAuthorIcon WelcomeField = "author_icon"
	FieldThumbnail  WelcomeField = "thumbnail"
	FieldImage      WelcomeField = "image"
)

// maxTemplateLen bounds stored template fields (matches the platform's
// message input ceiling).
const maxTemplateLen = 2000

type Service struct {
	store    guildconf.Store
	resolver router.Resolver
	log      logx.Logger
}

func New(store guildconf.Store, resolver router.Resolver, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, resolver: resolver, log: log}
}

func (s *Service) authorize(p Principal) error {
	if !p.Has(CapManageTenant) {
		return ErrPermissionDenied
	}
	return nil
}

func (s *Service) update(ctx context.Context, tenant transport.TenantID, fn guildconf.Mutator) (Confirmation, error) {
	cfg, err := s.store.Update(ctx, tenant, fn)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Tenant: tenant, Config: cfg}, nil
}

// SetNotificationChannel points event notifications at a channel. The
// reference must resolve within the tenant.
func (s *Service) SetNotificationChannel(ctx context.Context, p Principal, tenant transport.TenantID, channel transport.ChannelID) (Confirmation, error) {
	if err := s.authorize(p); err != nil {
		return Confirmation{}, err
	}
	if channel == 0 {
		return Confirmation{}, inputErr("channel", "a channel reference is required")
	}
	if _, err := s.resolver.ResolveChannel(ctx, tenant, channel); err != nil {
		if errors.Is(err, transport.ErrChannelNotFound) {
			return Confirmation{}, inputErr("channel", "channel %d does not exist in this server", channel)
		}
		return Confirmation{}, err
	}
	return s.update(ctx, tenant, func(doc *guildconf.TenantConfig) {
		doc.NotificationChannel = channel
	})
}

// EnableEvent turns on notifications for one event class.
func (s *Service) EnableEvent(ctx context.Context, p Principal, tenant transport.TenantID, class string) (Confirmation, error) {
	if err := s.authorize(p); err != nil {
		return Confirmation{}, err
	}
	c, err := guildconf.ParseClass(class)
	if err != nil {
		return Confirmation{}, inputErr("event", "%s", err.Error())
	}
	return s.update(ctx, tenant, func(doc *guildconf.TenantConfig) {
		doc.EnabledEvents.Add(c)
	})
}

// DisableEvent turns off notifications for one event class. Disabling a
// class that was never enabled succeeds and changes nothing.
func (s *Service) DisableEvent(ctx context.Context, p Principal, tenant transport.TenantID, class string) (Confirmation, error) {
	if err := s.authorize(p); err != nil {
		return Confirmation{}, err
	}
	c, err := guildconf.ParseClass(class)
	if err != nil {
		return Confirmation{}, inputErr("event", "%s", err.Error())
	}
	return s.update(ctx, tenant, func(doc *guildconf.TenantConfig) {
		doc.EnabledEvents.Remove(c)
	})
}

// ShowConfig returns the tenant's current configuration document.
func (s *Service) ShowConfig(ctx context.Context, p Principal, tenant transport.TenantID) (Confirmation, error) {
	if err := s.authorize(p); err != nil {
		return Confirmation{}, err
	}
	cfg, err := s.store.Get(ctx, tenant)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Tenant: tenant, Config: cfg}, nil
}

// SetWelcomeField stores one greeting field. Template fields accept
// placeholders; URL fields must be http(s) URLs. An empty value clears the
// field back to its documented default.
func (s *Service) SetWelcomeField(ctx context.Context, p Principal, tenant transport.TenantID, field WelcomeField, value string) (Confirmation, error) {
	if err := s.authorize(p); err != nil {
		return Confirmation{}, err
	}
	value = strings.TrimSpace(value)

	switch field {
	case FieldTitle, FieldMessage, FieldFooter, FieldAuthorName:
		if utf8.RuneCountInString(value) > maxTemplateLen {
			return Confirmation{}, inputErr(string(field), "must be at most %d characters", maxTemplateLen)
		}
	case FieldAuthorIcon, FieldThumbnail, FieldImage:
		if value != "" {
			u, err := url.Parse(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return Confirmation{}, inputErr(string(field), "must be an http(s) URL")
			}
		}
	default:
		return Confirmation{}, inputErr("field", "unknown welcome field %q", string(field))
	}

	return s.update(ctx, tenant, func(doc *guildconf.TenantConfig) {
		switch field {
		case FieldTitle:
			doc.Welcome.Title = value
		case FieldMessage:
			doc.Welcome.Message = value
		case FieldFooter:
			doc.Welcome.Footer = value
		case FieldAuthorName:
			doc.Welcome.AuthorName = value
		case FieldAuthorIcon:
			doc.Welcome.AuthorIcon = value
		case FieldThumbnail:
			doc.Welcome.Thumbnail = value
		case FieldImage:
			doc.Welcome.Image = value
		}
	})
}

// SetCommandPrefix stores the tenant's command prefix.
func (s *Service) SetCommandPrefix(ctx context.Context, p Principal, tenant transport.TenantID, prefix string) (Confirmation, error) {
	if err := s.authorize(p); err != nil {
		return Confirmation{}, err
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return Confirmation{}, inputErr("prefix", "a prefix is required")
	}
	if strings.ContainsAny(prefix, " \t\n") || utf8.RuneCountInString(prefix) > 16 {
		return Confirmation{}, inputErr("prefix", "must be at most 16 characters without whitespace")
	}
	return s.update(ctx, tenant, func(doc *guildconf.TenantConfig) {
		doc.CommandPrefix = prefix
	})
}

// ListPlaceholders returns the tokens usable in welcome templates. Static
// data; no capability required.
func (s *Service) ListPlaceholders() []render.Placeholder {
	return render.Placeholders()
}

// PreviewWelcome renders the greeting payload exactly as a real join would,
// using the given member as the subject.
func (s *Service) PreviewWelcome(ctx context.Context, p Principal, tenant transport.TenantID, member transport.MemberChange) (transport.Payload, error) {
	if err := s.authorize(p); err != nil {
		return transport.Payload{}, err
	}
	cfg, err := s.store.Get(ctx, tenant)
	if err != nil {
		return transport.Payload{}, err
	}
	return router.BuildWelcome(cfg.Welcome, &member), nil
}
