// Package telegram adapts the Telegram Bot API to the transport.Gateway
// contract. Telegram has no channel hierarchy inside a group, so a
// "channel" here is any chat the bot can reach; resolution checks
// reachability. The Bot API never surfaces message deletions, so this
// adapter emits only the edit/join/leave event classes.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedEvents counts events dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-event spam.
	droppedEvents uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Event) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	emit := func(ev transport.Event) {
		select {
		case out <- ev:
		default:
			atomic.AddUint64(&a.droppedEvents, 1)
		}
	}

	// Periodic summary for dropped events.
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedEvents, 0); n > 0 {
					a.log.Warn("incoming events dropped (channel full)", logx.Uint64("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedEvents, 0); n > 0 {
					a.log.Warn("incoming events dropped (channel full)", logx.Uint64("count", n))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnUserJoined, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		joined := m.UsersJoined
		if len(joined) == 0 && m.UserJoined != nil {
			joined = []tele.User{*m.UserJoined}
		}
		count := a.memberCount(m.Chat)
		for i := range joined {
			emit(transport.Event{
				Kind:   transport.EventMemberJoin,
				Tenant: transport.TenantID(m.Chat.ID),
				Member: &transport.MemberChange{
					User:        userFrom(&joined[i]),
					ServerName:  m.Chat.Title,
					MemberCount: count,
				},
			})
		}
		return nil
	})

	a.bot.Handle(tele.OnUserLeft, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil || m.UserLeft == nil {
			return nil
		}
		emit(transport.Event{
			Kind:   transport.EventMemberRemove,
			Tenant: transport.TenantID(m.Chat.ID),
			Member: &transport.MemberChange{
				User:        userFrom(m.UserLeft),
				ServerName:  m.Chat.Title,
				MemberCount: a.memberCount(m.Chat),
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnEdited, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		var author *transport.User
		if m.Sender != nil {
			u := userFrom(m.Sender)
			author = &u
		}
		// Telegram does not deliver the pre-edit text; the router's
		// identical-content suppression only applies when both sides are known.
		emit(transport.Event{
			Kind:   transport.EventMessageEdit,
			Tenant: transport.TenantID(m.Chat.ID),
			Edited: &transport.MessageEdited{
				Author:      author,
				Channel:     transport.ChannelID(m.Chat.ID),
				ChannelName: m.Chat.Title,
				After:       m.Text,
			},
		})
		return nil
	})

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() is called
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if a.bot != nil {
		go a.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if the long-poll is waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) ResolveChannel(ctx context.Context, tenant transport.TenantID, channel transport.ChannelID) (transport.ChannelInfo, error) {
	_ = ctx
	_ = tenant
	chat, err := a.bot.ChatByID(int64(channel))
	if err != nil {
		if errors.Is(err, tele.ErrChatNotFound) {
			return transport.ChannelInfo{}, transport.ErrChannelNotFound
		}
		return transport.ChannelInfo{}, err
	}
	return transport.ChannelInfo{ID: channel, Name: chat.Title}, nil
}

func (a *Adapter) SendPayload(ctx context.Context, tenant transport.TenantID, channel transport.ChannelID, p transport.Payload) error {
	_ = ctx
	_ = tenant
	chat := &tele.Chat{ID: int64(channel)}
	opt := &tele.SendOptions{
		ParseMode: tele.ModeHTML,
		// Leave the preview on when the payload carries an image so
		// Telegram renders it inline.
		DisableWebPagePreview: p.ImageURL == "" && p.ThumbnailURL == "",
	}
	_, err := a.bot.Send(chat, FormatPayload(p), opt)
	return err
}

func (a *Adapter) memberCount(chat *tele.Chat) int {
	n, err := a.bot.Len(chat)
	if err != nil {
		a.log.Debug("member count lookup failed", logx.Int64("chat_id", chat.ID), logx.Err(err))
		return 0
	}
	return n
}

func userFrom(u *tele.User) transport.User {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	// Payloads carry plain text; markup is applied when formatting, so the
	// mention stays a plain @handle here.
	mention := name
	if u.Username != "" {
		mention = "@" + u.Username
	}
	return transport.User{
		ID:            u.ID,
		Name:          name,
		Discriminator: u.Username,
		Mention:       mention,
		Bot:           u.IsBot,
	}
}
