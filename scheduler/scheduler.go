// Package scheduler keeps the durable server records in step with the status
// provider. Each cycle refreshes every enabled server once, spreading the polls
// evenly across the sync interval.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/minelist/status-sync/config"
	"github.com/minelist/status-sync/metrics"
	"github.com/minelist/status-sync/status"
	"github.com/minelist/status-sync/store"
)

type ServerStore interface {
	ListEnabledServers(ctx context.Context) ([]store.ServerRecord, error)
	UpdateServerStatus(ctx context.Context, slug string, upd store.StatusUpdate) error
}

type StatusSource interface {
	Get(ctx context.Context, host string, opts status.GetOptions) status.Result
}

type Scheduler struct {
	interval    time.Duration
	parallelism int

	servers  ServerStore
	statuses StatusSource

	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func New(cfg *config.Sync, servers ServerStore, statuses StatusSource) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	return &Scheduler{
		interval:    cfg.Interval,
		parallelism: parallelism,
		servers:     servers,
		statuses:    statuses,
		logger:      zap.L(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the sync loop. The first cycle begins immediately.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("Status sync is going up...",
			zap.Duration("interval", s.interval),
			zap.Int("parallelism", s.parallelism),
		)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop()
		}()
	})
}

// Stop halts the loop and waits for in-flight refreshes. It is idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.logger.Info("Status sync is down")
	})
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("Status sync cycle failed; will retry on the next one",
				zap.Error(err),
			)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) error {
	metrics.SyncCyclesCount.Add(ctx, 1)
	start := s.now()

	servers, err := s.servers.ListEnabledServers(ctx)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		return nil
	}

	spacing := s.interval / time.Duration(len(servers))
	limiter := rate.NewLimiter(rate.Every(spacing), 1)
	sem := make(chan struct{}, s.parallelism)

	var (
		wg     sync.WaitGroup
		online atomic.Int64
	)

schedule:
	for _, srv := range servers {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break schedule
		}

		wg.Add(1)
		go func(srv store.ServerRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			if s.refresh(ctx, srv) {
				online.Add(1)
			}
		}(srv)
	}
	wg.Wait()

	if ctx.Err() == nil {
		metrics.SyncServersOnline.Record(ctx, online.Load())
	}
	s.logger.Debug("Status sync cycle done",
		zap.Int("servers", len(servers)),
		zap.Int64("online", online.Load()),
		zap.Duration("duration", s.now().Sub(start)),
	)

	return nil
}

// refresh polls one server and persists the result. It reports whether the
// server was found online.
func (s *Scheduler) refresh(ctx context.Context, srv store.ServerRecord) bool {
	l := s.logger.With(
		zap.String("server_slug", srv.Slug),
		zap.String("server_address", srv.Address),
	)

	if srv.Address == "" {
		l.Debug("Server has no address; skipping status sync")
		return false
	}

	res := s.statuses.Get(ctx, srv.Address, status.GetOptions{Force: true})
	if ctx.Err() != nil {
		// shutting down: an aborted poll says nothing about the server
		return false
	}

	err := s.servers.UpdateServerStatus(ctx, srv.Slug, store.StatusUpdate{
		Online:         res.Online,
		Players:        res.Players.Online,
		MaxPlayers:     res.Players.Max,
		LastStatusSync: s.now().UTC(),
	})
	if err != nil {
		metrics.SyncWritesCount.Add(ctx, 1, metrics.With("result", "error"))
		l.Warn("Failed to persist server status",
			zap.Error(err),
		)
		return res.Online
	}
	metrics.SyncWritesCount.Add(ctx, 1, metrics.With("result", "ok"))

	return res.Online
}
