package admin

import (
	"context"
	"errors"
	"strings"
	"testing"

	"wardenbot/internal/guildconf"
	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

type fakeStore struct {
	docs    map[transport.TenantID]guildconf.TenantConfig
	gets    int
	updates int
}

func (f *fakeStore) Get(_ context.Context, tenant transport.TenantID) (guildconf.TenantConfig, error) {
	f.gets++
	doc, ok := f.docs[tenant]
	if !ok {
		return guildconf.Default(), nil
	}
	return doc.Clone(), nil
}

func (f *fakeStore) Update(_ context.Context, tenant transport.TenantID, fn guildconf.Mutator) (guildconf.TenantConfig, error) {
	f.updates++
	doc, ok := f.docs[tenant]
	if !ok {
		doc = guildconf.Default()
	} else {
		doc = doc.Clone()
	}
	fn(&doc)
	if f.docs == nil {
		f.docs = map[transport.TenantID]guildconf.TenantConfig{}
	}
	f.docs[tenant] = doc
	return doc.Clone(), nil
}

func (f *fakeStore) Close() error { return nil }

type fakeResolver struct {
	err error
}

func (f *fakeResolver) ResolveChannel(_ context.Context, _ transport.TenantID, channel transport.ChannelID) (transport.ChannelInfo, error) {
	if f.err != nil {
		return transport.ChannelInfo{}, f.err
	}
	return transport.ChannelInfo{ID: channel, Name: "notifications"}, nil
}

var (
	manager = Principal{UserID: 1, Capabilities: []string{CapManageTenant}}
	visitor = Principal{UserID: 2}
)

func newTestService() (*Service, *fakeStore, *fakeResolver) {
	store := &fakeStore{}
	res := &fakeResolver{}
	return New(store, res, logx.Nop()), store, res
}

func TestOperationsRequireCapability(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService()
	ctx := context.Background()

	ops := []struct {
		name string
		call func() error
	}{
		{"SetNotificationChannel", func() error {
			_, err := svc.SetNotificationChannel(ctx, visitor, 1, 5)
			return err
		}},
		{"EnableEvent", func() error {
			_, err := svc.EnableEvent(ctx, visitor, 1, "member_join")
			return err
		}},
		{"DisableEvent", func() error {
			_, err := svc.DisableEvent(ctx, visitor, 1, "member_join")
			return err
		}},
		{"ShowConfig", func() error {
			_, err := svc.ShowConfig(ctx, visitor, 1)
			return err
		}},
		{"SetWelcomeField", func() error {
			_, err := svc.SetWelcomeField(ctx, visitor, 1, FieldTitle, "hi")
			return err
		}},
		{"SetCommandPrefix", func() error {
			_, err := svc.SetCommandPrefix(ctx, visitor, 1, "!")
			return err
		}},
		{"PreviewWelcome", func() error {
			_, err := svc.PreviewWelcome(ctx, visitor, 1, transport.MemberChange{})
			return err
		}},
	}

	for _, op := range ops {
		if err := op.call(); !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("%s: err = %v, want ErrPermissionDenied", op.name, err)
		}
	}

	// Authorization fails before any state is read or written.
	if store.gets != 0 || store.updates != 0 {
		t.Fatalf("store touched by denied operations: gets=%d updates=%d", store.gets, store.updates)
	}
}

func TestSetNotificationChannel(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService()

	conf, err := svc.SetNotificationChannel(context.Background(), manager, 1, 5)
	if err != nil {
		t.Fatalf("SetNotificationChannel: %v", err)
	}
	if conf.Config.NotificationChannel != 5 {
		t.Fatalf("confirmation channel = %d", conf.Config.NotificationChannel)
	}
	if store.docs[1].NotificationChannel != 5 {
		t.Fatal("mutation not persisted")
	}
}

func TestSetNotificationChannelUnresolvable(t *testing.T) {
	t.Parallel()
	svc, store, res := newTestService()
	res.err = transport.ErrChannelNotFound

	_, err := svc.SetNotificationChannel(context.Background(), manager, 1, 5)
	if !IsInputError(err) {
		t.Fatalf("err = %v, want input error", err)
	}
	if store.updates != 0 {
		t.Fatal("failed validation must not write")
	}
}

func TestEnableEventInvalidClass(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService()

	_, err := svc.EnableEvent(context.Background(), manager, 1, "typing_start")
	if !IsInputError(err) {
		t.Fatalf("err = %v, want input error", err)
	}
	if !strings.Contains(err.Error(), "message_delete") {
		t.Fatalf("error must name the supported classes, got %q", err)
	}
	if store.updates != 0 {
		t.Fatal("invalid class must not write")
	}
}

func TestEnableDisableRoundTrip(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService()
	ctx := context.Background()

	conf, err := svc.EnableEvent(ctx, manager, 1, "member_join")
	if err != nil {
		t.Fatalf("EnableEvent: %v", err)
	}
	if !conf.Config.EnabledEvents.Has(guildconf.EventMemberJoin) {
		t.Fatal("enable did not take effect")
	}

	conf, err = svc.DisableEvent(ctx, manager, 1, "member_join")
	if err != nil {
		t.Fatalf("DisableEvent: %v", err)
	}
	if conf.Config.EnabledEvents.Has(guildconf.EventMemberJoin) {
		t.Fatal("disable did not take effect")
	}
}

func TestDisableNeverEnabledSucceeds(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService()

	conf, err := svc.DisableEvent(context.Background(), manager, 1, "message_edit")
	if err != nil {
		t.Fatalf("DisableEvent: %v", err)
	}
	if conf.Config.EnabledEvents.Len() != 0 {
		t.Fatalf("enabled set = %v, want empty", conf.Config.EnabledEvents.Sorted())
	}
}

func TestSetWelcomeField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		field   WelcomeField
		value   string
		wantErr bool
	}{
		{name: "template", field: FieldMessage, value: "Hi {user}"},
		{name: "template too long", field: FieldTitle, value: strings.Repeat("x", maxTemplateLen+1), wantErr: true},
		{name: "clear template", field: FieldMessage, value: ""},
		{name: "valid url", field: FieldThumbnail, value: "https://cdn.example/a.png"},
		{name: "clear url", field: FieldThumbnail, value: ""},
		{name: "bad scheme", field: FieldImage, value: "ftp://example/a.png", wantErr: true},
		{name: "not a url", field: FieldAuthorIcon, value: "not a url", wantErr: true},
		{name: "unknown field", field: WelcomeField("banner"), value: "x", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, _, _ := newTestService()
			_, err := svc.SetWelcomeField(context.Background(), manager, 1, tc.field, tc.value)
			if tc.wantErr {
				if !IsInputError(err) {
					t.Fatalf("err = %v, want input error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetWelcomeField: %v", err)
			}
		})
	}
}

func TestSetCommandPrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		prefix  string
		wantErr bool
	}{
		{name: "bang", prefix: "!"},
		{name: "word", prefix: "warden."},
		{name: "empty", prefix: "", wantErr: true},
		{name: "whitespace only", prefix: "   ", wantErr: true},
		{name: "embedded space", prefix: "do it", wantErr: true},
		{name: "too long", prefix: strings.Repeat("!", 17), wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, _, _ := newTestService()
			conf, err := svc.SetCommandPrefix(context.Background(), manager, 1, tc.prefix)
			if tc.wantErr {
				if !IsInputError(err) {
					t.Fatalf("err = %v, want input error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetCommandPrefix: %v", err)
			}
			if conf.Config.CommandPrefix != tc.prefix {
				t.Fatalf("prefix = %q", conf.Config.CommandPrefix)
			}
		})
	}
}

func TestListPlaceholders(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService()

	ps := svc.ListPlaceholders()
	if len(ps) == 0 {
		t.Fatal("no placeholders listed")
	}
	seen := map[string]bool{}
	for _, p := range ps {
		if p.Description == "" {
			t.Errorf("placeholder %q has no description", p.Token)
		}
		seen[p.Token] = true
	}
	for _, want := range []string{"{user}", "{server}", "{member_count}"} {
		if !seen[want] {
			t.Errorf("placeholder %q missing", want)
		}
	}
}

func TestPreviewWelcomeMatchesRealJoin(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SetWelcomeField(ctx, manager, 1, FieldTitle, "Yo {user.name}"); err != nil {
		t.Fatalf("SetWelcomeField: %v", err)
	}

	p, err := svc.PreviewWelcome(ctx, manager, 1, transport.MemberChange{
		User:        transport.User{ID: 3, Name: "carol", Mention: "@carol"},
		ServerName:  "Acme",
		MemberCount: 9,
	})
	if err != nil {
		t.Fatalf("PreviewWelcome: %v", err)
	}
	if p.Title != "Yo carol" {
		t.Fatalf("Title = %q", p.Title)
	}
	if p.Footer != "Member #9" {
		t.Fatalf("Footer = %q", p.Footer)
	}
}
