// Package server wires the queue, worker pool, supervisor, gateway and sessions into one
// runnable chat server.
package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/and161185/chitchat/internal/config"
	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/gateway"
	"github.com/and161185/chitchat/internal/limiter"
	"github.com/and161185/chitchat/internal/queue"
	"github.com/and161185/chitchat/internal/repository"
	"github.com/and161185/chitchat/internal/service"
	"github.com/and161185/chitchat/internal/session"
	"github.com/and161185/chitchat/internal/worker"
	"go.uber.org/zap"
)

// Server owns every long-lived component of a chat server.
type Server struct {
	log  *zap.Logger
	pool *worker.Pool
	sup  *worker.Supervisor
	gw   *gateway.Gateway

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

// New builds a server over exec. bl holds blacklist entries.
func New(cfg *config.Config, own *crypto.Identity, exec repository.Executor, bl limiter.Blacklist, log *zap.Logger) *Server {
	store := repository.NewStore(exec)
	q := queue.New()
	handlers := worker.NewHandlers(service.NewAuth(store), service.NewChats(store, log.Named("chats")))

	s := &Server{log: log}
	s.pool = worker.NewPool(q, cfg.Workers.Count, handlers, log.Named("workers"),
		worker.WithPollInterval(cfg.Workers.PollInterval),
		worker.WithStuckAfter(cfg.Workers.StuckAfter),
	)
	s.sup = worker.NewSupervisor(log.Named("supervisor"), cfg.Workers.WatchInterval, s.fatal)

	sessions := session.NewHandler(session.Config{
		ReadTimeout:  cfg.Timeouts.SessionRead,
		AwaitTimeout: cfg.Timeouts.Await,
		BulkTimeout:  cfg.Timeouts.BulkAwait,
		IllegalBan:   cfg.Blacklist.IllegalBan,
	}, q, bl)
	s.gw = gateway.New(gateway.Config{
		LoginReadTimeout: cfg.Timeouts.LoginRead,
		AwaitTimeout:     cfg.Timeouts.Await,
		MaxAttempts:      cfg.Blacklist.LoginAttempts,
		AuthBan:          cfg.Blacklist.AuthBan,
		MaxFrame:         cfg.Server.MaxFrame,
	}, own, q, bl, sessions, log.Named("gateway"))
	return s
}

// StoreUnavailable reports that the store stayed unreachable past its retry ceiling.
// The running server shuts down with that error.
func (s *Server) StoreUnavailable(err error) {
	s.sup.Report(worker.Event{Kind: worker.EventStoreUnreachable, Err: err})
}

// Kill asks the server to stop.
func (s *Server) Kill() {
	s.sup.Report(worker.Event{Kind: worker.EventKillRequested})
}

func (s *Server) fatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel(err)
	}
}

// Run serves ln until ctx ends or the supervisor escalates. Shutdown order: stop
// accepting and close connections, stop the supervisor, then drain the workers.
// It returns nil on a requested shutdown and the escalated cause otherwise.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.pool.Start(ctx)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		s.sup.Run(ctx, s.pool)
	}()

	err := s.gw.Serve(ctx, ln)

	cancel(nil)
	<-supDone
	s.pool.Stop()
	s.log.Info("shutdown complete")

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return err
}
