package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/minelist/status-sync/config"
	"github.com/minelist/status-sync/httplogger"
	"github.com/minelist/status-sync/listcache"
	"github.com/minelist/status-sync/logutils"
	"github.com/minelist/status-sync/notify"
	"github.com/minelist/status-sync/scheduler"
	"github.com/minelist/status-sync/status"
	"github.com/minelist/status-sync/store"
	"github.com/minelist/status-sync/vote"
)

type Server struct {
	cfg *config.Config

	failure chan error

	logger *zap.Logger
	server *http.Server

	store     store.Store
	notifier  notify.Notifier
	statuses  *status.Cache
	scheduler *scheduler.Scheduler
	servers   *listcache.Cache
	votes     *vote.Guard
}

func New(cfg *config.Config) (*Server, error) {
	l := zap.L()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := OpenStore(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(&cfg.Notify)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return newServer(cfg, l, st, notifier, status.NewHTTPProvider(&cfg.Status)), nil
}

func newServer(
	cfg *config.Config,
	l *zap.Logger,
	st store.Store,
	notifier notify.Notifier,
	provider status.Provider,
) *Server {
	s := &Server{
		cfg:      cfg,
		failure:  make(chan error, 1),
		logger:   l,
		store:    st,
		notifier: notifier,
	}

	s.statuses = status.New(provider, status.Options{
		TTL:           cfg.Status.TTL,
		Timeout:       cfg.Status.Timeout,
		SweepInterval: cfg.Status.SweepInterval,
		Logger:        l,
	})

	if cfg.Sync.Enabled {
		s.scheduler = scheduler.New(&cfg.Sync, st, s.statuses)
	}

	s.servers = listcache.New(st, listcache.Options{
		TTL:              cfg.ListCache.TTL,
		CleanupThreshold: cfg.ListCache.CleanupThreshold,
		DefaultCooldown:  cfg.Vote.DefaultCooldown,
		Logger:           l,
	})

	s.votes = vote.New(st, notifier, vote.Options{
		DefaultCooldown:  cfg.Vote.DefaultCooldown,
		BroadcastTimeout: cfg.Vote.BroadcastTimeout,
		Logger:           l,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthcheck)
	mux.HandleFunc("GET /api/servers", s.handleListServers)
	mux.HandleFunc("GET /api/servers/{slug}", s.handleGetServer)
	mux.HandleFunc("GET /api/servers/{slug}/votes", s.handleListVotes)
	mux.HandleFunc("POST /api/votes", s.handleVote)
	mux.Handle("GET /metrics", promhttp.Handler())
	handler := httplogger.Middleware(s.logger, mux)

	s.server = &http.Server{
		Addr:              cfg.Server.ListenAddress,
		ErrorLog:          logutils.NewHttpServerErrorLogger(s.logger),
		Handler:           handler,
		MaxHeaderBytes:    4096,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return s
}

func (s *Server) Run() error {
	l := s.logger
	ctx := logutils.ContextWithLogger(context.Background(), l)

	go func() { // run the server
		l.Info("Status sync server is going up...",
			zap.String("server_listen_address", s.cfg.Server.ListenAddress),
		)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.failure <- err
		}
		l.Info("Status sync server is down")
	}()

	if s.scheduler != nil {
		s.scheduler.Start()
	}

	errs := []error{}
	{ // wait until termination or internal failure
		terminator := make(chan os.Signal, 1)
		signal.Notify(terminator, os.Interrupt, syscall.SIGTERM)

		select {
		case stop := <-terminator:
			l.Info("Stop signal received; shutting down...",
				zap.String("signal", stop.String()),
			)
		case err := <-s.failure:
			l.Error("Internal failure; shutting down...",
				zap.Error(err),
			)
			errs = append(errs, err)
		exhaustErrors:
			for { // exhaust the errors
				select {
				case err := <-s.failure:
					l.Error("Extra internal failure",
						zap.Error(err),
					)
					errs = append(errs, err)
				default:
					break exhaustErrors
				}
			}
		}
	}

	{ // stop the server
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			l.Error("Status sync server shutdown failed",
				zap.Error(err),
			)
		}
	}

	errs = append(errs, s.close()...)

	switch len(errs) {
	default:
		return errors.Join(errs...)
	case 1:
		return errs[0]
	case 0:
		return nil
	}
}

// close releases the background workers and backends, in dependency order.
func (s *Server) close() []error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.statuses.Close()

	errs := []error{}
	if err := s.notifier.Close(); err != nil {
		s.logger.Error("Failed to close the notifier",
			zap.Error(err),
		)
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close the store",
			zap.Error(err),
		)
		errs = append(errs, err)
	}
	return errs
}
