// Package dispatch is the best-effort delivery pipeline between the event
// router and the gateway send primitive: bounded queue, worker pool, local
// rate limit. Delivery failures are logged and swallowed; no retry and no
// ordering guarantee is promised for notifications.
package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wardenbot/internal/transport"
	"wardenbot/pkg/logx"
)

// Sender is the slice of the gateway the dispatcher needs.
type Sender interface {
	SendPayload(ctx context.Context, tenant transport.TenantID, channel transport.ChannelID, p transport.Payload) error
}

type Config struct {
	Workers     int
	QueueSize   int
	RatePerSec  int
	SendTimeout time.Duration
}

// Job is one routed notification ready for delivery.
type Job struct {
	Tenant  transport.TenantID
	Channel transport.ChannelID
	Class   string
	Payload transport.Payload
}

// HistoryItem is kept in a small ring for the status surface.
type HistoryItem struct {
	At      time.Time
	Tenant  transport.TenantID
	Channel transport.ChannelID
	Class   string
	OK      bool
	Err     string
}

const historyMax = 200

type Service struct {
	log     logx.Logger
	sender  Sender
	metrics *Metrics

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	queue chan Job

	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger, m *Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	s := &Service{log: log, sender: sender, metrics: m}
	s.applyLocked(cfg)
	return s
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Apply updates the rate limit live. Worker count and queue size take
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.runCancel != nil {
		s.mu.Unlock()
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.queue = make(chan Job, s.cfg.QueueSize)
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		s.workerWG.Add(1)
		go s.worker(rctx)
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	// No worker will drain the queue after this; clearing it makes a late
	// Enqueue report the drop instead of accepting the job.
	s.queue = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("dispatcher stop cancelled", logx.Err(ctx.Err()))
	}
}

// Enqueue hands a job to the pipeline without blocking. A full queue drops
// the job; notification delivery is fire-and-forget by contract.
func (s *Service) Enqueue(job Job) bool {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return false
	}
	select {
	case q <- job:
		return true
	default:
		s.metrics.Dropped.Inc()
		s.log.Warn("delivery queue full, notification dropped",
			logx.Int64("tenant", int64(job.Tenant)), logx.String("class", job.Class))
		return false
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.workerWG.Done()
	for {
		s.mu.Lock()
		q := s.queue
		lim := s.limiter
		timeout := s.cfg.SendTimeout
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case job, ok := <-q:
			if !ok {
				return
			}
			if err := lim.Wait(ctx); err != nil {
				return
			}
			s.deliver(ctx, job, timeout)
		}
	}
}

func (s *Service) deliver(ctx context.Context, job Job, timeout time.Duration) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.sender.SendPayload(sctx, job.Tenant, job.Channel, job.Payload)
	item := HistoryItem{
		At:      time.Now(),
		Tenant:  job.Tenant,
		Channel: job.Channel,
		Class:   job.Class,
		OK:      err == nil,
	}
	if err != nil {
		item.Err = err.Error()
		s.metrics.Failed.WithLabelValues(job.Class).Inc()
		// Transient delivery failure: nobody is waiting on an event
		// callback, so log and move on.
		s.log.Warn("notification send failed",
			logx.Int64("tenant", int64(job.Tenant)),
			logx.Int64("channel", int64(job.Channel)),
			logx.String("class", job.Class),
			logx.Err(err))
	} else {
		s.metrics.Delivered.WithLabelValues(job.Class).Inc()
		s.log.Debug("notification sent",
			logx.Int64("tenant", int64(job.Tenant)),
			logx.Int64("channel", int64(job.Channel)),
			logx.String("class", job.Class))
	}
	s.appendHistory(item)
}

func (s *Service) appendHistory(item HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
}

// History returns a copy of the recent delivery outcomes, newest last.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}
