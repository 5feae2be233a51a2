package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/and161185/chitchat/internal/errs"
)

// Item is the atomic protocol unit.
type Item struct {
	Data json.RawMessage `json:"data,omitempty"`
	Kind Kind            `json:"type"`
}

// Packet is an ordered sequence of items; each item is processed independently.
type Packet []Item

// NewItem builds an item of kind k carrying payload (nil for empty items).
func NewItem(k Kind, payload any) (Item, error) {
	if payload == nil {
		return Item{Kind: k}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Item{}, fmt.Errorf("marshal %s: %w", k, err)
	}
	return Item{Kind: k, Data: b}, nil
}

// MustItem is NewItem for payloads that always marshal (the structs in this package).
func MustItem(k Kind, payload any) Item {
	it, err := NewItem(k, payload)
	if err != nil {
		panic(err)
	}
	return it
}

// ErrorItem is a shorthand for an error reply.
func ErrorItem(reason string) Item { return MustItem(KindError, Error{Reason: reason}) }

// Decode unmarshals the item payload into v.
func (it Item) Decode(v any) error {
	if len(it.Data) == 0 {
		return fmt.Errorf("%s: empty payload: %w", it.Kind, errs.ErrProtocol)
	}
	if err := json.Unmarshal(it.Data, v); err != nil {
		return fmt.Errorf("%s: %v: %w", it.Kind, err, errs.ErrProtocol)
	}
	return nil
}

func (it Item) String() string { return fmt.Sprintf("%s: %s", it.Kind, string(it.Data)) }

// Marshal serializes a packet to its canonical JSON form.
func Marshal(p Packet) ([]byte, error) {
	if p == nil {
		p = Packet{}
	}
	return json.Marshal(p)
}

// Unmarshal parses a packet; unknown item types are a protocol violation.
func Unmarshal(b []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode packet: %v: %w", err, errs.ErrProtocol)
	}
	return p, nil
}
