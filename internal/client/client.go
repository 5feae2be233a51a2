// Package client is a reference client for the chat protocol. It keeps a local copy of
// the chats it has seen, with messages ordered by sequence number.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
	"github.com/and161185/chitchat/internal/protocol"
	"github.com/and161185/chitchat/internal/transport"
)

// RemoteError is an error item sent by the server.
type RemoteError struct {
	Kind   protocol.Kind
	Reason string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("server %s: %s", e.Kind, e.Reason) }

// BackoffError reports that the server blacklisted this address until Until.
type BackoffError struct{ Until time.Time }

func (e *BackoffError) Error() string {
	return fmt.Sprintf("blacklisted until %s", e.Until.Format(time.RFC3339))
}

func (e *BackoffError) Is(target error) bool { return target == errs.ErrBlacklisted }

// Client is one connection to the server. Methods are not safe for concurrent use.
type Client struct {
	conn    *transport.Conn
	own     *crypto.Identity
	timeout time.Duration

	mu    sync.Mutex
	self  model.User
	chats map[int64]*model.Chat
}

// DefaultTimeout bounds each request/reply round trip.
const DefaultTimeout = 90 * time.Second

// Dial connects to addr and performs the key exchange with own as the client identity.
func Dial(ctx context.Context, addr string, own *crypto.Identity) (*Client, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    transport.NewConn(raw, own, transport.MaxFrameSize),
		own:     own,
		timeout: DefaultTimeout,
		chats:   map[int64]*model.Chat{},
	}
	if err := c.handshake(); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	_ = c.conn.SetReadTimeout(c.timeout)
	p, err := c.conn.RecvPlain()
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if len(p) != 1 {
		return fmt.Errorf("handshake: %d items: %w", len(p), errs.ErrProtocol)
	}
	switch p[0].Kind {
	case protocol.KindBackoff:
		var b protocol.Backoff
		if err := p[0].Decode(&b); err != nil {
			return err
		}
		return &BackoffError{Until: b.Until}
	case protocol.KindPubKey:
	default:
		return fmt.Errorf("handshake: unexpected %s: %w", p[0].Kind, errs.ErrProtocol)
	}
	var pk protocol.PubKey
	if err := p[0].Decode(&pk); err != nil {
		return err
	}
	server, err := crypto.PeerFromPublicBytes(pk.Key)
	if err != nil {
		return err
	}
	c.conn.SetPeer(server)
	return c.conn.SendPlain(protocol.Packet{protocol.MustItem(protocol.KindPubKey, protocol.PubKey{Key: c.own.PublicBytes()})})
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Self returns the authenticated user.
func (c *Client) Self() model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// roundTrip sends items and returns the reply packet. A reply made of a single error or
// backoff item is returned as an error.
func (c *Client) roundTrip(items ...protocol.Item) (protocol.Packet, error) {
	if err := c.conn.Send(protocol.Packet(items)); err != nil {
		return nil, err
	}
	_ = c.conn.SetReadTimeout(c.timeout)
	p, err := c.conn.Recv()
	if err != nil {
		return nil, err
	}
	if len(p) == 1 {
		switch p[0].Kind {
		case protocol.KindError, protocol.KindCreateChatFail:
			var e protocol.Error
			if err := p[0].Decode(&e); err != nil {
				return nil, err
			}
			return nil, &RemoteError{Kind: p[0].Kind, Reason: e.Reason}
		case protocol.KindBackoff:
			var b protocol.Backoff
			if err := p[0].Decode(&b); err != nil {
				return nil, err
			}
			return nil, &BackoffError{Until: b.Until}
		}
	}
	return p, nil
}

// Register creates an account and authenticates this connection as it.
// It returns the assigned discriminator.
func (c *Client) Register(username, password string) (int, error) {
	p, err := c.roundTrip(protocol.MustItem(protocol.KindRegister, protocol.Register{Password: password, Username: username}))
	if err != nil {
		return 0, err
	}
	for _, it := range p {
		if it.Kind != protocol.KindTag {
			continue
		}
		var ti protocol.TagInfo
		if err := it.Decode(&ti); err != nil {
			return 0, err
		}
		c.mu.Lock()
		c.self = model.User{Username: ti.Username, Tag: ti.Tag}
		c.mu.Unlock()
		return ti.Tag, nil
	}
	return 0, fmt.Errorf("register: no tag in reply: %w", errs.ErrProtocol)
}

// Login authenticates this connection.
func (c *Client) Login(username string, tag int, password string) error {
	p, err := c.roundTrip(protocol.MustItem(protocol.KindLogin, protocol.Login{Password: password, Tag: tag, Username: username}))
	if err != nil {
		return err
	}
	if len(p) == 0 || p[0].Kind != protocol.KindSuccess {
		return fmt.Errorf("login: unexpected reply: %w", errs.ErrProtocol)
	}
	c.mu.Lock()
	c.self = model.User{Username: username, Tag: tag}
	c.mu.Unlock()
	return nil
}

// Ping measures a round trip. The server echoes the timestamp it was sent.
func (c *Client) Ping(now time.Time) (time.Time, error) {
	p, err := c.roundTrip(protocol.MustItem(protocol.KindPing, protocol.Ping{Timestamp: now}))
	if err != nil {
		return time.Time{}, err
	}
	if len(p) != 1 || p[0].Kind != protocol.KindPong {
		return time.Time{}, fmt.Errorf("ping: unexpected reply: %w", errs.ErrProtocol)
	}
	var pong protocol.Pong
	if err := p[0].Decode(&pong); err != nil {
		return time.Time{}, err
	}
	return pong.Timestamp, nil
}

// Send posts content to a chat and returns the server-assigned sequence number.
func (c *Client) Send(chatID int64, content string) (int64, error) {
	p, err := c.roundTrip(protocol.MustItem(protocol.KindMsgSend, protocol.MsgSend{ChatID: chatID, Content: content}))
	if err != nil {
		return 0, err
	}
	if len(p) != 1 || p[0].Kind != protocol.KindMsgSent {
		return 0, fmt.Errorf("send: unexpected reply: %w", errs.ErrProtocol)
	}
	var sent protocol.MsgSent
	if err := p[0].Decode(&sent); err != nil {
		return 0, err
	}
	self := c.Self()
	c.store(chatID).AppendMessage(model.ChatMessage{
		ChatID:  chatID,
		Seq:     sent.Seq,
		Author:  model.Participant{Username: self.Username, Tag: self.Tag},
		Content: content,
	})
	return sent.Seq, nil
}

// Fetch returns unread messages and merges them into the local chats. The server marks
// them delivered once sent.
func (c *Client) Fetch() ([]protocol.Msg, error) {
	p, err := c.roundTrip(protocol.MustItem(protocol.KindMsgGet, nil))
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Msg, 0, len(p))
	for _, it := range p {
		if it.Kind != protocol.KindMsg {
			return nil, fmt.Errorf("fetch: unexpected %s: %w", it.Kind, errs.ErrProtocol)
		}
		var m protocol.Msg
		if err := it.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
		c.store(m.ChatID).AppendMessage(model.ChatMessage{
			ChatID:    m.ChatID,
			Seq:       m.Seq,
			Author:    model.Participant{Username: m.Author.Username, Tag: m.Author.Tag},
			CreatedAt: m.CreatedAt,
			Content:   m.Content,
		})
	}
	return out, nil
}

// ChatIDs lists the chats this user belongs to.
func (c *Client) ChatIDs() ([]int64, error) {
	p, err := c.roundTrip(protocol.MustItem(protocol.KindUpdateChats, nil))
	if err != nil {
		return nil, err
	}
	if len(p) != 1 || p[0].Kind != protocol.KindUpdateChats {
		return nil, fmt.Errorf("update chats: unexpected reply: %w", errs.ErrProtocol)
	}
	var u protocol.UpdateChats
	if err := p[0].Decode(&u); err != nil {
		return nil, err
	}
	return u.ChatIDs, nil
}

// GetChats loads chat metadata. Chats the user cannot see are absent from the result.
func (c *Client) GetChats(ids ...int64) ([]protocol.ChatInfo, error) {
	var req protocol.Item
	if len(ids) == 1 {
		req = protocol.MustItem(protocol.KindGetChat, protocol.GetChat{ChatID: ids[0]})
	} else {
		req = protocol.MustItem(protocol.KindGetChats, protocol.GetChats{ChatIDs: ids})
	}
	p, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.ChatInfo, 0, len(p))
	for _, it := range p {
		if it.Kind != protocol.KindGetChat {
			return nil, fmt.Errorf("get chats: unexpected %s: %w", it.Kind, errs.ErrProtocol)
		}
		var ci protocol.ChatInfo
		if err := it.Decode(&ci); err != nil {
			return nil, err
		}
		c.merge(ci)
		out = append(out, ci)
	}
	return out, nil
}

// CreateChat creates a chat with the given invitees.
func (c *Client) CreateChat(name, description string, invitees ...protocol.UserRef) (protocol.ChatInfo, error) {
	if invitees == nil {
		invitees = []protocol.UserRef{}
	}
	p, err := c.roundTrip(protocol.MustItem(protocol.KindCreateChat, protocol.CreateChat{Description: description, Invitees: invitees, Name: name}))
	if err != nil {
		return protocol.ChatInfo{}, err
	}
	if len(p) != 1 || p[0].Kind != protocol.KindCreateChatSuccess {
		return protocol.ChatInfo{}, fmt.Errorf("create chat: unexpected reply: %w", errs.ErrProtocol)
	}
	var ci protocol.ChatInfo
	if err := p[0].Decode(&ci); err != nil {
		return protocol.ChatInfo{}, err
	}
	c.merge(ci)
	return ci, nil
}

// SetStatus updates presence. The server does not reply.
func (c *Client) SetStatus(st model.Status) error {
	return c.conn.Send(protocol.Packet{protocol.MustItem(protocol.KindSetStatus, protocol.SetStatus{Status: int(st)})})
}

// Logout ends the session; the server closes the connection.
func (c *Client) Logout() error {
	return c.conn.Send(protocol.Packet{protocol.MustItem(protocol.KindLogout, nil)})
}

// Chat returns a copy of the local view of a chat.
func (c *Client) Chat(id int64) (model.Chat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chats[id]
	if !ok {
		return model.Chat{}, false
	}
	cp := *ch
	cp.Messages = append([]model.ChatMessage(nil), ch.Messages...)
	return cp, true
}

// Chats returns the ids of locally known chats in ascending order.
func (c *Client) Chats() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.chats))
	for id := range c.chats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// store returns the local chat, creating it on first sight.
func (c *Client) store(id int64) *lockedChat {
	c.mu.Lock()
	ch, ok := c.chats[id]
	if !ok {
		ch = &model.Chat{ID: id}
		c.chats[id] = ch
	}
	c.mu.Unlock()
	return &lockedChat{mu: &c.mu, c: ch}
}

func (c *Client) merge(ci protocol.ChatInfo) {
	ps := make([]model.Participant, 0, len(ci.Participants))
	for _, p := range ci.Participants {
		ps = append(ps, model.Participant{Username: p.Username, Tag: p.Tag})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chats[ci.ID]
	if !ok {
		ch = &model.Chat{ID: ci.ID}
		c.chats[ci.ID] = ch
	}
	ch.CreatedAt = ci.CreatedAt
	ch.Update(ci.Name, ci.Description, ps)
}

type lockedChat struct {
	mu *sync.Mutex
	c  *model.Chat
}

// AppendMessage adds messages whose seq is not held yet; redelivered ones are skipped.
func (l *lockedChat) AppendMessage(msgs ...model.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range msgs {
		i := sort.Search(len(l.c.Messages), func(i int) bool { return l.c.Messages[i].Seq >= m.Seq })
		if i < len(l.c.Messages) && l.c.Messages[i].Seq == m.Seq {
			continue
		}
		l.c.AppendMessage(m)
	}
}

// IsRemote reports whether err is a server error item, returning its reason.
func IsRemote(err error) (string, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
