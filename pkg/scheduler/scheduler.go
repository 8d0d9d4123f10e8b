package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/service"
)

// Scheduler warms the ranking cache on a cron spec so the first morning
// request does not pay the scrape latency. Correctness never depends on it:
// TTL expiry is checked lazily on read.
type Scheduler struct {
	c        *cron.Cron
	cronSpec string
	svc      *service.Service
	timeout  time.Duration
}

// New wires the warmup job on spec (standard 5-field cron, server local
// time).
func New(spec string, svc *service.Service, jobTimeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		c:        cron.New(),
		cronSpec: spec,
		svc:      svc,
		timeout:  jobTimeout,
	}
	_, err := s.c.AddFunc(spec, s.run)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) run() {
	logger.Info("scheduler tick: warming ranking cache")
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.svc.WarmRankings(ctx)
	logger.Info("scheduler warmup done, cache entries: %d", s.svc.CacheLen())
}

func (s *Scheduler) Start() {
	logger.Info("starting scheduler (cron=%s)", s.cronSpec)
	s.c.Start()
}

func (s *Scheduler) Stop() {
	s.c.Stop()
}
