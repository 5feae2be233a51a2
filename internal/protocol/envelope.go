package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/errs"
)

// Envelope is the encrypted form of a packet on the wire. Binary fields are base64 in JSON.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Key        []byte `json:"key"`
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
}

// Seal serializes p and encrypts it for the holder of recipient's private key.
func Seal(recipient *crypto.Identity, p Packet) ([]byte, error) {
	plain, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	s, err := recipient.Encrypt(plain)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Ciphertext: s.Ciphertext, Key: s.WrappedKey, Nonce: s.Nonce, Tag: s.Tag})
}

// Open decrypts an envelope with own and parses the packet inside.
func Open(own *crypto.Identity, b []byte) (Packet, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %v: %w", err, errs.ErrProtocol)
	}
	plain, err := own.Decrypt(crypto.Sealed{Ciphertext: env.Ciphertext, WrappedKey: env.Key, Tag: env.Tag, Nonce: env.Nonce})
	if err != nil {
		return nil, err
	}
	return Unmarshal(plain)
}
