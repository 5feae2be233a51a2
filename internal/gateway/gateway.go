// Package gateway accepts client connections, exchanges keys, authenticates the client
// and hands the connection over to a session.
package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/limiter"
	"github.com/and161185/chitchat/internal/model"
	"github.com/and161185/chitchat/internal/queue"
	"github.com/and161185/chitchat/internal/transport"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Config holds the gateway limits.
type Config struct {
	LoginReadTimeout time.Duration
	AwaitTimeout     time.Duration
	MaxAttempts      int
	AuthBan          time.Duration
	MaxFrame         int
}

// DefaultConfig returns the stock gateway limits.
func DefaultConfig() Config {
	return Config{
		LoginReadTimeout: 120 * time.Second,
		AwaitTimeout:     queue.DefaultTimeout,
		MaxAttempts:      3,
		AuthBan:          60 * time.Second,
		MaxFrame:         transport.MaxFrameSize,
	}
}

// Sessions serves an authenticated connection until it ends.
type Sessions interface {
	Serve(ctx context.Context, log *zap.Logger, c *transport.Conn, u model.User)
}

// Gateway owns the accept loop.
type Gateway struct {
	cfg      Config
	own      *crypto.Identity
	q        *queue.Queue
	bl       limiter.Blacklist
	sessions Sessions
	log      *zap.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]net.Conn
	wg    sync.WaitGroup
}

// New constructs a Gateway.
func New(cfg Config, own *crypto.Identity, q *queue.Queue, bl limiter.Blacklist, sessions Sessions, log *zap.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		own:      own,
		q:        q,
		bl:       bl,
		sessions: sessions,
		log:      log,
		conns:    map[uuid.UUID]net.Conn{},
	}
}

// Serve accepts connections from ln until ctx ends, then closes ln and every live
// connection and waits for their goroutines.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		g.closeAll()
	})
	defer stop()

	g.log.Info("listening", zap.String("addr", ln.Addr().String()))
	var err error
	for {
		var raw net.Conn
		raw, err = ln.Accept()
		if err != nil {
			break
		}
		id, idErr := uuid.NewV4()
		if idErr != nil {
			g.log.Error("conn id", zap.Error(idErr))
			_ = raw.Close()
			continue
		}
		g.track(id, raw)
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			defer g.untrack(id)
			g.handle(ctx, id, raw)
		}()
	}

	g.closeAll()
	g.wg.Wait()
	if ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Active returns the number of open connections.
func (g *Gateway) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) track(id uuid.UUID, c net.Conn) {
	g.mu.Lock()
	g.conns[id] = c
	g.mu.Unlock()
}

func (g *Gateway) untrack(id uuid.UUID) {
	g.mu.Lock()
	delete(g.conns, id)
	g.mu.Unlock()
}

func (g *Gateway) closeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		_ = c.Close()
	}
}

func (g *Gateway) handle(ctx context.Context, id uuid.UUID, raw net.Conn) {
	c := transport.NewConn(raw, g.own, g.cfg.MaxFrame)
	defer c.Close()
	log := g.log.With(zap.String("conn", id.String()), zap.String("peer", c.RemoteIP()))

	start := time.Now()
	final := g.run(ctx, log, c)
	log.Info("connection closed",
		zap.String("state", final.String()),
		zap.Duration("dur", time.Since(start)),
	)
}
