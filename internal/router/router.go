// Package router turns gateway events into notification jobs. Per event it
// takes one snapshot of the owning tenant's configuration, checks whether
// the event class is enabled, resolves the destination channel and builds
// the payload. Anything that does not pass those gates terminates silently:
// an unconfigured tenant is a steady state, not an error.
package router

import (
	"context"

	"wardenbot/internal/dispatch"
	"wardenbot/internal/guildconf"
	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

// Resolver is the slice of the gateway the router needs.
type Resolver interface {
	ResolveChannel(ctx context.Context, tenant transport.TenantID, channel transport.ChannelID) (transport.ChannelInfo, error)
}

// Queue accepts built jobs for asynchronous delivery.
type Queue interface {
	Enqueue(job dispatch.Job) bool
}

type Router struct {
	store    guildconf.Store
	resolver Resolver
	queue    Queue
	log      logx.Logger
}

func New(store guildconf.Store, resolver Resolver, queue Queue, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{store: store, resolver: resolver, queue: queue, log: log}
}

// Run consumes events until the context is cancelled or the channel closes.
func (r *Router) Run(ctx context.Context, events <-chan transport.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Handle(ctx, ev)
		}
	}
}

// Handle processes a single event end to end. It never returns an error:
// every failure on this path degrades to "notification suppressed".
func (r *Router) Handle(ctx context.Context, ev transport.Event) {
	class, ok := classify(ev)
	if !ok {
		return
	}

	// One config snapshot per event. The enabled check and the channel
	// resolution below must not observe different revisions.
	cfg, err := r.store.Get(ctx, ev.Tenant)
	if err != nil {
		r.log.Warn("config lookup failed, suppressing notification",
			logx.Int64("tenant", int64(ev.Tenant)), logx.Err(err))
		return
	}

	if !cfg.EnabledEvents.Has(class) {
		return
	}
	if cfg.NotificationChannel == 0 {
		return
	}
	if _, err := r.resolver.ResolveChannel(ctx, ev.Tenant, cfg.NotificationChannel); err != nil {
		// Stale channel reference: the tenant deleted or hid the channel.
		r.log.Debug("notification channel does not resolve",
			logx.Int64("tenant", int64(ev.Tenant)),
			logx.Int64("channel", int64(cfg.NotificationChannel)))
		return
	}

	payload, ok := buildPayload(ev, cfg)
	if !ok {
		return
	}

	r.queue.Enqueue(dispatch.Job{
		Tenant:  ev.Tenant,
		Channel: cfg.NotificationChannel,
		Class:   string(class),
		Payload: payload,
	})
}

// classify maps a raw event onto the fixed event-class enum. Malformed
// events (kind without its variant payload) and kinds outside the enum are
// ignored.
func classify(ev transport.Event) (guildconf.EventClass, bool) {
	switch ev.Kind {
	case transport.EventMessageDelete:
		return guildconf.EventMessageDelete, ev.Deleted != nil
	case transport.EventMessageEdit:
		return guildconf.EventMessageEdit, ev.Edited != nil
	case transport.EventMemberJoin:
		return guildconf.EventMemberJoin, ev.Member != nil
	case transport.EventMemberRemove:
		return guildconf.EventMemberRemove, ev.Member != nil
	}
	return "", false
}

func buildPayload(ev transport.Event, cfg guildconf.TenantConfig) (transport.Payload, bool) {
	switch ev.Kind {
	case transport.EventMessageDelete:
		return buildDeleted(ev.Deleted), true
	case transport.EventMessageEdit:
		e := ev.Edited
		if e.Author != nil && e.Author.Bot {
			return transport.Payload{}, false
		}
		if e.Before == e.After {
			// Embed-only or otherwise content-neutral edits must not fire.
			return transport.Payload{}, false
		}
		return buildEdited(e), true
	case transport.EventMemberJoin:
		return BuildWelcome(cfg.Welcome, ev.Member), true
	case transport.EventMemberRemove:
		return buildMemberLeft(ev.Member), true
	}
	return transport.Payload{}, false
}
