// Package maint runs periodic store housekeeping on a cron schedule.
package maint

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"wardenbot/internal/guildconf"
	"wardenbot/pkg/logx"
)

// Service drives the store's Maintain hook. A store without the hook, or
// an empty schedule, turns the service into a no-op.
type Service struct {
	log      logx.Logger
	store    guildconf.Store
	schedule string

	cron *cron.Cron
}

func New(schedule string, store guildconf.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, store: store, schedule: schedule}
}

func (s *Service) Start(ctx context.Context) error {
	m, ok := s.store.(guildconf.Maintainer)
	if !ok || s.schedule == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		start := time.Now()
		if err := m.Maintain(mctx); err != nil {
			s.log.Warn("store maintenance failed", logx.Err(err))
			return
		}
		s.log.Debug("store maintenance done", logx.Duration("took", time.Since(start)))
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("maintenance scheduled", logx.String("spec", s.schedule))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}
