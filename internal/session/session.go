// Package session runs the read loop of an authenticated connection and turns protocol
// items into worker jobs and replies.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/limiter"
	"github.com/and161185/chitchat/internal/model"
	"github.com/and161185/chitchat/internal/protocol"
	"github.com/and161185/chitchat/internal/queue"
	"github.com/and161185/chitchat/internal/transport"
	"github.com/and161185/chitchat/internal/worker"
	"go.uber.org/zap"
)

// Config holds session timeouts.
type Config struct {
	ReadTimeout  time.Duration
	AwaitTimeout time.Duration
	BulkTimeout  time.Duration
	IllegalBan   time.Duration
}

// DefaultConfig returns the stock session timeouts.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:  60 * time.Second,
		AwaitTimeout: queue.DefaultTimeout,
		BulkTimeout:  queue.BulkTimeout,
		IllegalBan:   300 * time.Second,
	}
}

// errLogout ends the session on a client logout item.
var errLogout = errors.New("logout")

// Handler serves authenticated sessions.
type Handler struct {
	cfg Config
	q   *queue.Queue
	bl  limiter.Blacklist
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, q *queue.Queue, bl limiter.Blacklist) *Handler {
	return &Handler{cfg: cfg, q: q, bl: bl}
}

type session struct {
	h    *Handler
	c    *transport.Conn
	user model.User
	me   model.Participant
	log  *zap.Logger
}

// Serve runs the read loop until the client logs out, the connection fails, or the
// client commits an illegal request. It does not close c. On return the user's
// last-seen time is recorded without waiting for the result.
func (h *Handler) Serve(ctx context.Context, log *zap.Logger, c *transport.Conn, u model.User) {
	s := &session{
		h:    h,
		c:    c,
		user: u,
		me:   model.Participant{ID: u.ID, Username: u.Username, Tag: u.Tag},
		log:  log.With(zap.String("user", u.Handle())),
	}
	s.log.Info("session started")
	reason := s.loop(ctx)
	h.q.SubmitDetached(queue.Job{Type: queue.JobLastSeen, Args: worker.UserArgs{UserID: u.ID}})
	s.log.Info("session ended", zap.String("reason", reason))
}

func (s *session) loop(ctx context.Context) string {
	for {
		if ctx.Err() != nil {
			return "shutdown"
		}
		if err := s.c.SetReadTimeout(s.h.cfg.ReadTimeout); err != nil {
			return "deadline: " + err.Error()
		}
		pkt, err := s.c.Recv()
		if err != nil {
			return s.readFailure(err)
		}
		for _, it := range pkt {
			err := s.dispatch(ctx, it)
			switch {
			case err == nil:
				continue
			case errors.Is(err, errLogout):
				return "logout"
			case errors.Is(err, errs.ErrForbidden):
				s.illegal(ctx, it, err)
				return "illegal request"
			case errors.Is(err, errs.ErrProtocol):
				s.log.Warn("protocol violation", zap.String("item", it.Kind.String()), zap.Error(err))
				return "protocol violation"
			default:
				s.log.Warn("send failed", zap.Error(err))
				return "write failed"
			}
		}
	}
}

func (s *session) readFailure(err error) string {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return "closed"
	case errors.As(err, &ne) && ne.Timeout():
		return "read timeout"
	case errors.Is(err, errs.ErrProtocol), errors.Is(err, errs.ErrFrameTooLarge):
		s.log.Warn("protocol violation", zap.Error(err))
		return "protocol violation"
	default:
		s.log.Debug("read failed", zap.Error(err))
		return "read failed"
	}
}

// illegal blacklists the source address of a client that referenced a resource it
// does not belong to.
func (s *session) illegal(ctx context.Context, it protocol.Item, cause error) {
	ip := s.c.RemoteIP()
	until, err := s.h.bl.Ban(ctx, ip, s.h.cfg.IllegalBan)
	if err != nil {
		s.log.Error("blacklist", zap.String("ip", ip), zap.Error(err))
	}
	s.log.Warn("illegal request",
		zap.String("item", it.Kind.String()),
		zap.String("ip", ip),
		zap.Time("until", until),
		zap.Error(cause),
	)
}

// call submits a job and waits for its response. ok is false on timeout.
func (s *session) call(ctx context.Context, t queue.JobType, args any, timeout time.Duration) (queue.Response, bool) {
	tag := s.h.q.Submit(queue.Job{Type: t, Args: args})
	return s.h.q.Await(ctx, tag, timeout, true)
}
