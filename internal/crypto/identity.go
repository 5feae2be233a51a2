package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/and161185/chitchat/internal/errs"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeyBits is the RSA modulus size of generated identities.
	KeyBits = 2048
	// SessionKeyLen is the length of the per-message symmetric key.
	SessionKeyLen = chacha20poly1305.KeySize

	pemType = "PRIVATE KEY"
)

// Sealed is the output of Identity.Encrypt: ciphertext without tag, the RSA-OAEP wrapped
// symmetric key, the AEAD tag and the nonce.
type Sealed struct {
	Ciphertext []byte
	WrappedKey []byte
	Tag        []byte
	Nonce      []byte
}

// Identity wraps an RSA keypair. A peer identity holds the public half only.
type Identity struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
	path string
}

// NewIdentity generates a fresh full identity.
func NewIdentity() (*Identity, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Identity{priv: priv, pub: &priv.PublicKey}, nil
}

// LoadOrCreateIdentity loads a PKCS#8 PEM private key from path, or generates one and
// stores it there with 0600 permissions.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	if b, err := os.ReadFile(path); err == nil {
		block, _ := pem.Decode(b)
		if block == nil || block.Type != pemType {
			return nil, errors.New("bad identity file")
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse identity: %w", err)
		}
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("identity is not an RSA key")
		}
		return &Identity{priv: priv, pub: &priv.PublicKey, path: path}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	id, err := NewIdentity()
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(id.priv)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der}), 0o600); err != nil {
		return nil, err
	}
	id.path = path
	return id, nil
}

// PeerFromPublicBytes imports a PKIX DER public key received over the wire.
func PeerFromPublicBytes(b []byte) (*Identity, error) {
	key, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return &Identity{pub: pub}, nil
}

// HasPrivate reports whether the identity can decrypt.
func (id *Identity) HasPrivate() bool { return id.priv != nil }

// Path returns the file the identity was loaded from or saved to, if any.
func (id *Identity) Path() string { return id.path }

// PublicBytes exports the public key as PKIX DER.
func (id *Identity) PublicBytes() []byte {
	b, err := x509.MarshalPKIXPublicKey(id.pub)
	if err != nil {
		// rsa.PublicKey always marshals
		panic(err)
	}
	return b
}

// Encrypt seals plaintext for the holder of this identity's private key.
func (id *Identity) Encrypt(plaintext []byte) (Sealed, error) {
	key, err := RandBytes(SessionKeyLen)
	if err != nil {
		return Sealed{}, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Sealed{}, err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return Sealed{}, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, id.pub, key, nil)
	if err != nil {
		return Sealed{}, fmt.Errorf("wrap key: %w", err)
	}
	out := aead.Seal(nil, nonce, plaintext, nil)
	split := len(out) - aead.Overhead()
	return Sealed{
		Ciphertext: out[:split],
		WrappedKey: wrapped,
		Tag:        out[split:],
		Nonce:      nonce,
	}, nil
}

// Decrypt unwraps the symmetric key with the private key and authenticates the payload.
func (id *Identity) Decrypt(s Sealed) ([]byte, error) {
	if id.priv == nil {
		return nil, errs.ErrNoPrivateKey
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, id.priv, s.WrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", errs.ErrIntegrity)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() || len(s.Tag) != aead.Overhead() {
		return nil, fmt.Errorf("bad nonce/tag size: %w", errs.ErrIntegrity)
	}
	buf := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)
	pt, err := aead.Open(nil, s.Nonce, buf, nil)
	if err != nil {
		return nil, errs.ErrIntegrity
	}
	if pt == nil {
		pt = []byte{}
	}
	return pt, nil
}
