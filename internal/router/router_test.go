package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"wardenbot/internal/dispatch"
	"wardenbot/internal/guildconf"
	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

type fakeStore struct {
	docs map[transport.TenantID]guildconf.TenantConfig
	err  error
	gets int
}

func (f *fakeStore) Get(_ context.Context, tenant transport.TenantID) (guildconf.TenantConfig, error) {
	f.gets++
	if f.err != nil {
		return guildconf.TenantConfig{}, f.err
	}
	doc, ok := f.docs[tenant]
	if !ok {
		return guildconf.Default(), nil
	}
	return doc.Clone(), nil
}

func (f *fakeStore) Update(_ context.Context, tenant transport.TenantID, fn guildconf.Mutator) (guildconf.TenantConfig, error) {
	doc := f.docs[tenant]
	fn(&doc)
	if f.docs == nil {
		f.docs = map[transport.TenantID]guildconf.TenantConfig{}
	}
	f.docs[tenant] = doc
	return doc.Clone(), nil
}

func (f *fakeStore) Close() error { return nil }

type fakeResolver struct {
	err   error
	calls int
}

func (f *fakeResolver) ResolveChannel(_ context.Context, _ transport.TenantID, channel transport.ChannelID) (transport.ChannelInfo, error) {
	f.calls++
	if f.err != nil {
		return transport.ChannelInfo{}, f.err
	}
	return transport.ChannelInfo{ID: channel, Name: "notifications"}, nil
}

type fakeQueue struct {
	jobs []dispatch.Job
}

func (f *fakeQueue) Enqueue(job dispatch.Job) bool {
	f.jobs = append(f.jobs, job)
	return true
}

func configured(classes ...guildconf.EventClass) guildconf.TenantConfig {
	doc := guildconf.Default()
	doc.NotificationChannel = 77
	for _, c := range classes {
		doc.EnabledEvents.Add(c)
	}
	return doc
}

func newTestRouter(store *fakeStore) (*Router, *fakeResolver, *fakeQueue) {
	res := &fakeResolver{}
	q := &fakeQueue{}
	return New(store, res, q, logx.Nop()), res, q
}

func deleteEvent(tenant transport.TenantID) transport.Event {
	return transport.Event{
		Kind:   transport.EventMessageDelete,
		Tenant: tenant,
		Deleted: &transport.MessageDeleted{
			Author:      &transport.User{ID: 9, Name: "alice"},
			Channel:     12,
			ChannelName: "general",
			Content:     "hello",
		},
	}
}

func joinEvent(tenant transport.TenantID) transport.Event {
	return transport.Event{
		Kind:   transport.EventMemberJoin,
		Tenant: tenant,
		Member: &transport.MemberChange{
			User:        transport.User{ID: 42, Name: "bob", Mention: "@bob"},
			ServerName:  "Acme",
			MemberCount: 128,
		},
	}
}

func TestHandleDeliversEnabledEvent(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: map[transport.TenantID]guildconf.TenantConfig{
		1: configured(guildconf.EventMessageDelete),
	}}
	r, _, q := newTestRouter(store)

	r.Handle(context.Background(), deleteEvent(1))

	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Tenant != 1 || job.Channel != 77 || job.Class != "message_delete" {
		t.Fatalf("job = %+v", job)
	}
	if job.Payload.Title != "Message Deleted" {
		t.Fatalf("Title = %q", job.Payload.Title)
	}
	if store.gets != 1 {
		t.Fatalf("config read %d times, want exactly one snapshot per event", store.gets)
	}
}

func TestHandleSuppressionGates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		doc      guildconf.TenantConfig
		event    transport.Event
		storeErr error
		resErr   error
	}{
		{
			name:  "class disabled",
			doc:   configured(guildconf.EventMemberJoin),
			event: deleteEvent(1),
		},
		{
			name: "channel unset",
			doc: func() guildconf.TenantConfig {
				d := guildconf.Default()
				d.EnabledEvents.Add(guildconf.EventMessageDelete)
				return d
			}(),
			event: deleteEvent(1),
		},
		{
			name:   "channel does not resolve",
			doc:    configured(guildconf.EventMessageDelete),
			event:  deleteEvent(1),
			resErr: transport.ErrChannelNotFound,
		},
		{
			name:     "config lookup failure",
			doc:      configured(guildconf.EventMessageDelete),
			event:    deleteEvent(1),
			storeErr: errors.New("disk gone"),
		},
		{
			name:  "unknown kind",
			doc:   configured(guildconf.Classes()...),
			event: transport.Event{Kind: "reaction_add", Tenant: 1},
		},
		{
			name:  "kind without variant payload",
			doc:   configured(guildconf.Classes()...),
			event: transport.Event{Kind: transport.EventMessageDelete, Tenant: 1},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := &fakeStore{
				docs: map[transport.TenantID]guildconf.TenantConfig{1: tc.doc},
				err:  tc.storeErr,
			}
			r, res, q := newTestRouter(store)
			res.err = tc.resErr

			r.Handle(context.Background(), tc.event)

			if len(q.jobs) != 0 {
				t.Fatalf("expected suppression, got %d jobs", len(q.jobs))
			}
		})
	}
}

func TestHandleEditSuppression(t *testing.T) {
	t.Parallel()

	edit := func(author *transport.User, before, after string) transport.Event {
		return transport.Event{
			Kind:   transport.EventMessageEdit,
			Tenant: 1,
			Edited: &transport.MessageEdited{
				Author:      author,
				Channel:     12,
				ChannelName: "general",
				Before:      before,
				After:       after,
			},
		}
	}

	cases := []struct {
		name string
		ev   transport.Event
		want int
	}{
		{name: "real edit", ev: edit(&transport.User{ID: 9, Name: "alice"}, "a", "b"), want: 1},
		{name: "bot author", ev: edit(&transport.User{ID: 9, Name: "hook", Bot: true}, "a", "b"), want: 0},
		{name: "identical content", ev: edit(&transport.User{ID: 9, Name: "alice"}, "same", "same"), want: 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := &fakeStore{docs: map[transport.TenantID]guildconf.TenantConfig{
				1: configured(guildconf.EventMessageEdit),
			}}
			r, _, q := newTestRouter(store)

			r.Handle(context.Background(), tc.ev)

			if len(q.jobs) != tc.want {
				t.Fatalf("enqueued %d jobs, want %d", len(q.jobs), tc.want)
			}
		})
	}
}

func TestHandleDeleteDegradesMissingData(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: map[transport.TenantID]guildconf.TenantConfig{
		1: configured(guildconf.EventMessageDelete),
	}}
	r, _, q := newTestRouter(store)

	r.Handle(context.Background(), transport.Event{
		Kind:    transport.EventMessageDelete,
		Tenant:  1,
		Deleted: &transport.MessageDeleted{Channel: 12},
	})

	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	fields := map[string]string{}
	for _, f := range q.jobs[0].Payload.Fields {
		fields[f.Name] = f.Value
	}
	if fields["Author"] != "Unknown (N/A)" {
		t.Fatalf("Author = %q", fields["Author"])
	}
	if fields["Content"] != "(no content)" {
		t.Fatalf("Content = %q", fields["Content"])
	}
	if fields["Channel"] != "Unknown" {
		t.Fatalf("Channel = %q", fields["Channel"])
	}
}

func TestHandleTruncatesLongContent(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: map[transport.TenantID]guildconf.TenantConfig{
		1: configured(guildconf.EventMessageDelete),
	}}
	r, _, q := newTestRouter(store)

	ev := deleteEvent(1)
	ev.Deleted.Content = strings.Repeat("ü", 3000)
	r.Handle(context.Background(), ev)

	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	for _, f := range q.jobs[0].Payload.Fields {
		if f.Name == "Content" {
			if n := utf8.RuneCountInString(f.Value); n != maxFieldLen {
				t.Fatalf("Content length = %d runes, want %d", n, maxFieldLen)
			}
			return
		}
	}
	t.Fatal("no Content field in payload")
}

func TestHandleJoinBuildsWelcome(t *testing.T) {
	t.Parallel()
	doc := configured(guildconf.EventMemberJoin)
	doc.Welcome.Title = "Hi {user.name}!"
	store := &fakeStore{docs: map[transport.TenantID]guildconf.TenantConfig{1: doc}}
	r, _, q := newTestRouter(store)

	r.Handle(context.Background(), joinEvent(1))

	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	p := q.jobs[0].Payload
	if p.Title != "Hi bob!" {
		t.Fatalf("Title = %q", p.Title)
	}
	if p.Description != "Welcome @bob to the server!" {
		t.Fatalf("Description = %q", p.Description)
	}
	if p.Footer != "Member #128" {
		t.Fatalf("Footer = %q", p.Footer)
	}
}

func TestRunDrainsUntilClose(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: map[transport.TenantID]guildconf.TenantConfig{
		1: configured(guildconf.EventMemberJoin),
	}}
	r, _, q := newTestRouter(store)

	events := make(chan transport.Event, 2)
	events <- joinEvent(1)
	events <- joinEvent(1)
	close(events)

	if err := r.Run(context.Background(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(q.jobs) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(q.jobs))
	}
}

func TestBuildWelcomeDefaults(t *testing.T) {
	t.Parallel()

	m := &transport.MemberChange{
		User:        transport.User{ID: 42, Name: "bob", Mention: "@bob", AvatarURL: "https://cdn.example/a.png"},
		ServerName:  "Acme",
		MemberCount: 5,
	}

	p := BuildWelcome(guildconf.WelcomeConfig{}, m)

	if p.Title != guildconf.DefaultWelcomeTitle {
		t.Fatalf("Title = %q", p.Title)
	}
	if p.Description != "Welcome @bob to the server!" {
		t.Fatalf("Description = %q", p.Description)
	}
	if p.Footer != "Member #5" {
		t.Fatalf("Footer = %q", p.Footer)
	}
	if p.ThumbnailURL != "https://cdn.example/a.png" {
		t.Fatalf("ThumbnailURL = %q, want avatar fallback", p.ThumbnailURL)
	}
	if p.AuthorName != "" {
		t.Fatalf("AuthorName = %q, want empty when author_name unset", p.AuthorName)
	}
}

func TestBuildWelcomeAuthorBlock(t *testing.T) {
	t.Parallel()

	m := &transport.MemberChange{
		User:        transport.User{ID: 42, Name: "bob", Mention: "@bob"},
		ServerName:  "Acme",
		MemberCount: 5,
	}

	w := guildconf.WelcomeConfig{
		AuthorName: "{server} staff",
		AuthorIcon: "https://cdn.example/icon.png",
		Thumbnail:  "https://cdn.example/thumb.png",
	}
	p := BuildWelcome(w, m)

	if p.AuthorName != "Acme staff" {
		t.Fatalf("AuthorName = %q", p.AuthorName)
	}
	if p.AuthorIconURL != "https://cdn.example/icon.png" {
		t.Fatalf("AuthorIconURL = %q", p.AuthorIconURL)
	}
	if p.ThumbnailURL != "https://cdn.example/thumb.png" {
		t.Fatalf("ThumbnailURL = %q, explicit thumbnail must win over avatar", p.ThumbnailURL)
	}
}
