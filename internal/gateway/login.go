package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
	"github.com/and161185/chitchat/internal/protocol"
	"github.com/and161185/chitchat/internal/queue"
	"github.com/and161185/chitchat/internal/transport"
	"github.com/and161185/chitchat/internal/worker"
	"go.uber.org/zap"
)

// State is a connection state.
type State uint8

const (
	StateKeyExchanging State = iota
	StateAuthenticating
	StateAuthenticated
	StateRejected
	StateBlacklisted
	StateClosed
)

var stateNames = [...]string{"key_exchanging", "authenticating", "authenticated", "rejected", "blacklisted", "closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Reply reasons sent on failed attempts.
const (
	reasonBadCredentials = "invalid credentials"
	reasonWeakPassword   = "password too weak"
	reasonExhausted      = "username unavailable"
	reasonInvalid        = "invalid registration"
	reasonTimeout        = "timeout"
	reasonInternal       = "internal error"
)

// run drives one connection to a terminal state. Authenticated connections are served
// by the session before run returns.
func (g *Gateway) run(ctx context.Context, log *zap.Logger, c *transport.Conn) State {
	ip := c.RemoteIP()
	ok, until, err := g.bl.Allow(ctx, ip)
	if err != nil {
		log.Error("blacklist lookup", zap.Error(err))
		return StateRejected
	}
	if !ok {
		_ = c.SendPlain(protocol.Packet{protocol.MustItem(protocol.KindBackoff, protocol.Backoff{Until: until})})
		return StateBlacklisted
	}

	log.Debug("state", zap.Stringer("state", StateKeyExchanging))
	if err := c.SetReadTimeout(g.cfg.LoginReadTimeout); err != nil {
		return StateRejected
	}
	if err := g.exchangeKeys(c); err != nil {
		log.Debug("key exchange failed", zap.Error(err))
		return StateRejected
	}

	log.Debug("state", zap.Stringer("state", StateAuthenticating))
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		u, done, err := g.attempt(ctx, log, c)
		if err != nil {
			log.Info("rejected", zap.Int("attempt", attempt), zap.Error(err))
			return StateRejected
		}
		if done {
			log = log.With(zap.String("user", u.Handle()))
			_ = c.SetReadTimeout(0)
			g.sessions.Serve(ctx, log, c, *u)
			return StateAuthenticated
		}
	}

	until, err = g.bl.Ban(ctx, ip, g.cfg.AuthBan)
	if err != nil {
		log.Error("blacklist", zap.Error(err))
		return StateRejected
	}
	log.Warn("too many failed attempts", zap.String("ip", ip), zap.Time("until", until))
	_ = c.Send(protocol.Packet{protocol.MustItem(protocol.KindBackoff, protocol.Backoff{Until: until})})
	return StateBlacklisted
}

// exchangeKeys sends the server key and installs the client key as the peer identity.
func (g *Gateway) exchangeKeys(c *transport.Conn) error {
	if err := c.SendPlain(protocol.Packet{protocol.MustItem(protocol.KindPubKey, protocol.PubKey{Key: g.own.PublicBytes()})}); err != nil {
		return err
	}
	p, err := c.RecvPlain()
	if err != nil {
		return err
	}
	if len(p) != 1 || p[0].Kind != protocol.KindPubKey {
		return fmt.Errorf("want pub_key: %w", errs.ErrProtocol)
	}
	var pk protocol.PubKey
	if err := p[0].Decode(&pk); err != nil {
		return err
	}
	peer, err := crypto.PeerFromPublicBytes(pk.Key)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrProtocol, err)
	}
	c.SetPeer(peer)
	return nil
}

// attempt reads one login or register item. done reports success; a non-nil error
// rejects the connection; otherwise the attempt failed and counts.
func (g *Gateway) attempt(ctx context.Context, log *zap.Logger, c *transport.Conn) (u *model.User, done bool, err error) {
	p, err := c.Recv()
	if err != nil {
		return nil, false, err
	}
	if len(p) != 1 {
		return nil, false, fmt.Errorf("want one item, got %d: %w", len(p), errs.ErrProtocol)
	}
	switch it := p[0]; it.Kind {
	case protocol.KindLogin:
		var req protocol.Login
		if err := it.Decode(&req); err != nil {
			return nil, false, err
		}
		return g.login(ctx, log, c, req)
	case protocol.KindRegister:
		var req protocol.Register
		if err := it.Decode(&req); err != nil {
			return nil, false, err
		}
		return g.register(ctx, log, c, req)
	default:
		return nil, false, fmt.Errorf("unexpected item %s: %w", it.Kind, errs.ErrProtocol)
	}
}

func (g *Gateway) login(ctx context.Context, log *zap.Logger, c *transport.Conn, req protocol.Login) (*model.User, bool, error) {
	tag := g.q.Submit(queue.Job{Type: queue.JobLogin, Args: worker.LoginArgs{Username: req.Username, Tag: req.Tag, Password: req.Password}})
	resp, ok := g.q.Await(ctx, tag, g.cfg.AwaitTimeout, true)
	if !ok {
		return nil, false, g.fail(c, reasonTimeout)
	}
	if resp.Err != nil {
		reason := reasonBadCredentials
		if !errors.Is(resp.Err, errs.ErrUnauthorized) {
			log.Error("login", zap.Error(resp.Err))
			reason = reasonInternal
		}
		return nil, false, g.fail(c, reason)
	}
	u, _ := resp.Result.(*model.User)
	if u == nil {
		return nil, false, g.fail(c, reasonBadCredentials)
	}
	if err := c.Send(protocol.Packet{protocol.MustItem(protocol.KindSuccess, protocol.Success{Message: "welcome " + u.Handle()})}); err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (g *Gateway) register(ctx context.Context, log *zap.Logger, c *transport.Conn, req protocol.Register) (*model.User, bool, error) {
	pub := c.Peer().PublicBytes()
	req.Username = strings.TrimSpace(req.Username)
	tag := g.q.Submit(queue.Job{Type: queue.JobRegister, Args: worker.RegisterArgs{Username: req.Username, Password: req.Password, PublicKey: pub}})
	resp, ok := g.q.Await(ctx, tag, g.cfg.AwaitTimeout, true)
	if !ok {
		return nil, false, g.fail(c, reasonTimeout)
	}
	switch {
	case errors.Is(resp.Err, errs.ErrWeakPassword):
		return nil, false, g.fail(c, reasonWeakPassword)
	case errors.Is(resp.Err, errs.ErrExhausted):
		return nil, false, g.fail(c, reasonExhausted)
	case errors.Is(resp.Err, errs.ErrInvalidArgument):
		return nil, false, g.fail(c, reasonInvalid)
	case resp.Err != nil:
		log.Error("register", zap.Error(resp.Err))
		return nil, false, g.fail(c, reasonInternal)
	}
	id, _ := resp.Result.(int64)
	if id <= 0 {
		return nil, false, g.fail(c, reasonExhausted)
	}

	tag = g.q.Submit(queue.Job{Type: queue.JobUserTag, Args: worker.UserArgs{UserID: id}})
	resp, ok = g.q.Await(ctx, tag, g.cfg.AwaitTimeout, true)
	if !ok {
		return nil, false, g.fail(c, reasonTimeout)
	}
	if resp.Err != nil {
		log.Error("user tag", zap.Error(resp.Err))
		return nil, false, g.fail(c, reasonInternal)
	}
	discr, _ := resp.Result.(int)

	u := &model.User{ID: id, Username: req.Username, Tag: discr, PublicKey: pub}
	err := c.Send(protocol.Packet{
		protocol.MustItem(protocol.KindSuccess, protocol.Success{Message: "registered " + u.Handle()}),
		protocol.MustItem(protocol.KindTag, protocol.TagInfo{Tag: discr, Username: u.Username}),
	})
	if err != nil {
		return nil, false, err
	}
	log.Info("registered", zap.String("user", u.Handle()))
	return u, true, nil
}

// fail replies an error item; only a write failure is returned.
func (g *Gateway) fail(c *transport.Conn, reason string) error {
	return c.Send(protocol.Packet{protocol.ErrorItem(reason)})
}
