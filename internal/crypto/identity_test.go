package crypto

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/and161185/chitchat/internal/errs"
)

var (
	sharedOnce sync.Once
	sharedID   *Identity
	sharedErr  error
)

// testIdentity reuses one RSA keypair across tests; key generation dominates runtime.
func testIdentity(t *testing.T) *Identity {
	t.Helper()
	sharedOnce.Do(func() { sharedID, sharedErr = NewIdentity() })
	if sharedErr != nil {
		t.Fatalf("NewIdentity: %v", sharedErr)
	}
	return sharedID
}

func TestIdentity_RoundTrip_VaryingSizes(t *testing.T) {
	t.Parallel()
	id := testIdentity(t)
	if !id.HasPrivate() {
		t.Fatalf("full identity must have private key")
	}

	for _, n := range []int{0, 1, 31, 4096, 70 * 1024} {
		pt, err := RandBytes(n)
		if err != nil {
			t.Fatalf("RandBytes: %v", err)
		}
		s, err := id.Encrypt(pt)
		if err != nil {
			t.Fatalf("Encrypt(%d): %v", n, err)
		}
		if len(s.Ciphertext) != n || len(s.Nonce) == 0 || len(s.Tag) == 0 || len(s.WrappedKey) == 0 {
			t.Fatalf("unexpected sealed shape for n=%d", n)
		}
		got, err := id.Decrypt(s)
		if err != nil {
			t.Fatalf("Decrypt(%d): %v", n, err)
		}
		if !bytes.Equal(got, pt) {
			t.Fatalf("roundtrip mismatch for n=%d", n)
		}
	}
}

func TestIdentity_FreshKeyPerMessage(t *testing.T) {
	t.Parallel()
	id := testIdentity(t)
	a, _ := id.Encrypt([]byte("same"))
	b, _ := id.Encrypt([]byte("same"))
	if bytes.Equal(a.WrappedKey, b.WrappedKey) || bytes.Equal(a.Nonce, b.Nonce) {
		t.Fatalf("wrapped key and nonce must differ per message")
	}
}

func TestIdentity_PeerCannotDecrypt(t *testing.T) {
	t.Parallel()
	id := testIdentity(t)
	peer, err := PeerFromPublicBytes(id.PublicBytes())
	if err != nil {
		t.Fatalf("PeerFromPublicBytes: %v", err)
	}
	if peer.HasPrivate() {
		t.Fatalf("peer must be public-only")
	}

	s, err := peer.Encrypt([]byte("for the owner"))
	if err != nil {
		t.Fatalf("peer Encrypt: %v", err)
	}
	if _, err := peer.Decrypt(s); !errors.Is(err, errs.ErrNoPrivateKey) {
		t.Fatalf("want ErrNoPrivateKey, got %v", err)
	}
	if _, err := peer.Decrypt(Sealed{}); !errors.Is(err, errs.ErrNoPrivateKey) {
		t.Fatalf("want ErrNoPrivateKey on empty input, got %v", err)
	}

	got, err := id.Decrypt(s)
	if err != nil || string(got) != "for the owner" {
		t.Fatalf("owner decrypt: %q %v", got, err)
	}
}

func TestIdentity_TamperFailsIntegrity(t *testing.T) {
	t.Parallel()
	id := testIdentity(t)
	s, err := id.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	bad := s
	bad.Tag = append([]byte(nil), s.Tag...)
	bad.Tag[0] ^= 0xff
	if _, err := id.Decrypt(bad); !errors.Is(err, errs.ErrIntegrity) {
		t.Fatalf("tag tamper: want ErrIntegrity, got %v", err)
	}

	bad = s
	bad.Ciphertext = append([]byte(nil), s.Ciphertext...)
	bad.Ciphertext[0] ^= 0x01
	if _, err := id.Decrypt(bad); !errors.Is(err, errs.ErrIntegrity) {
		t.Fatalf("ciphertext tamper: want ErrIntegrity, got %v", err)
	}

	bad = s
	bad.WrappedKey = []byte("garbage")
	if _, err := id.Decrypt(bad); !errors.Is(err, errs.ErrIntegrity) {
		t.Fatalf("wrapped key tamper: want ErrIntegrity, got %v", err)
	}

	bad = s
	bad.Nonce = s.Nonce[:4]
	if _, err := id.Decrypt(bad); !errors.Is(err, errs.ErrIntegrity) {
		t.Fatalf("short nonce: want ErrIntegrity, got %v", err)
	}
}

func TestLoadOrCreateIdentity_PersistsAndReloads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "keys", "server.pem")

	first, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("perm=%v, want 0600", st.Mode().Perm())
	}

	second, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !bytes.Equal(first.PublicBytes(), second.PublicBytes()) || second.Path() != path {
		t.Fatalf("reloaded identity differs")
	}

	s, _ := first.Encrypt([]byte("x"))
	if got, err := second.Decrypt(s); err != nil || string(got) != "x" {
		t.Fatalf("cross decrypt: %q %v", got, err)
	}
}

func TestLoadOrCreateIdentity_BadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(path, []byte("not pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateIdentity(path); err == nil {
		t.Fatalf("want error for corrupt identity file")
	}
}

func TestPeerFromPublicBytes_Garbage(t *testing.T) {
	t.Parallel()
	if _, err := PeerFromPublicBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("want parse error")
	}
}
