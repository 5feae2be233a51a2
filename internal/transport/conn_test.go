package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/protocol"
)

func TestConn_PlainThenEncrypted(t *testing.T) {
	t.Parallel()
	serverID, err := crypto.NewIdentity()
	if err != nil {
		t.Fatal(err)
	}
	clientID, err := crypto.NewIdentity()
	if err != nil {
		t.Fatal(err)
	}

	a, b := net.Pipe()
	srv := NewConn(a, serverID, 0)
	cli := NewConn(b, clientID, 0)
	defer srv.Close()
	defer cli.Close()

	if err := cli.Send(nil); err == nil {
		t.Fatalf("send before key exchange must fail")
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.SendPlain(protocol.Packet{protocol.MustItem(protocol.KindPubKey, protocol.PubKey{Key: serverID.PublicBytes()})})
	}()
	p, err := cli.RecvPlain()
	if err != nil {
		t.Fatalf("RecvPlain: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendPlain: %v", err)
	}
	var pk protocol.PubKey
	if err := p[0].Decode(&pk); err != nil {
		t.Fatal(err)
	}
	peer, err := crypto.PeerFromPublicBytes(pk.Key)
	if err != nil {
		t.Fatal(err)
	}
	cli.SetPeer(peer)

	go func() {
		errc <- cli.SendItems(protocol.MustItem(protocol.KindPing, protocol.Ping{Timestamp: time.Unix(100, 0).UTC()}))
	}()
	_ = srv.SetReadTimeout(5 * time.Second)
	got, err := srv.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendItems: %v", err)
	}
	if len(got) != 1 || got[0].Kind != protocol.KindPing {
		t.Fatalf("unexpected packet: %v", got)
	}
}

func TestConn_RecvGarbageIsProtocolError(t *testing.T) {
	t.Parallel()
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatal(err)
	}
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	srv := NewConn(a, id, 0)

	go func() { _ = WriteFrame(b, []byte(`{"ciphertext":"AA==","key":"AA==","nonce":"AA==","tag":"AA=="}`)) }()
	if _, err := srv.Recv(); !errors.Is(err, errs.ErrProtocol) {
		t.Fatalf("want ErrProtocol, got %v", err)
	}
}

func TestConn_ReadTimeout(t *testing.T) {
	t.Parallel()
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatal(err)
	}
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	srv := NewConn(a, id, 0)
	_ = srv.SetReadTimeout(20 * time.Millisecond)

	_, err = srv.RecvPlain()
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("want timeout error, got %v", err)
	}
}
