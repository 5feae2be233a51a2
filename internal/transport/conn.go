package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/protocol"
)

// Conn carries packets over a net.Conn: plaintext during the key exchange preamble,
// encrypted for the peer afterwards.
type Conn struct {
	raw      net.Conn
	own      *crypto.Identity
	peer     *crypto.Identity
	maxFrame int

	wmu sync.Mutex
}

// NewConn wraps raw with the local full identity.
func NewConn(raw net.Conn, own *crypto.Identity, maxFrame int) *Conn {
	return &Conn{raw: raw, own: own, maxFrame: maxFrame}
}

// RemoteIP returns the host part of the peer address.
func (c *Conn) RemoteIP() string {
	addr := c.raw.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Peer returns the peer identity once the key exchange has completed.
func (c *Conn) Peer() *crypto.Identity { return c.peer }

// SetPeer installs the public-only identity of the remote side.
func (c *Conn) SetPeer(p *crypto.Identity) { c.peer = p }

// SetReadTimeout bounds the next reads; zero clears the deadline.
func (c *Conn) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return c.raw.SetReadDeadline(time.Time{})
	}
	return c.raw.SetReadDeadline(time.Now().Add(d))
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// SendPlain writes an unencrypted packet (preamble only).
func (c *Conn) SendPlain(p protocol.Packet) error {
	b, err := protocol.Marshal(p)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.raw, b)
}

// RecvPlain reads an unencrypted packet.
func (c *Conn) RecvPlain() (protocol.Packet, error) {
	b, err := ReadFrame(c.raw, c.maxFrame)
	if err != nil {
		return nil, err
	}
	return protocol.Unmarshal(b)
}

// Send encrypts p for the peer and writes it as one frame.
func (c *Conn) Send(p protocol.Packet) error {
	if c.peer == nil {
		return errors.New("send before key exchange")
	}
	b, err := protocol.Seal(c.peer, p)
	if err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.raw, b)
}

// SendItems is Send for a packet built from items.
func (c *Conn) SendItems(items ...protocol.Item) error { return c.Send(protocol.Packet(items)) }

// Recv reads one frame and decrypts it with the local identity.
func (c *Conn) Recv() (protocol.Packet, error) {
	b, err := ReadFrame(c.raw, c.maxFrame)
	if err != nil {
		return nil, err
	}
	p, err := protocol.Open(c.own, b)
	if err != nil {
		if !errors.Is(err, errs.ErrProtocol) {
			err = fmt.Errorf("%w: %w", errs.ErrProtocol, err)
		}
		return nil, err
	}
	return p, nil
}
