// Package transport frames messages on a stream and carries encrypted packets over a connection.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/and161185/chitchat/internal/errs"
)

// MaxFrameSize bounds a single frame body.
const MaxFrameSize = 16 << 20

const prefixLen = 4

// WriteFrame writes a 4-byte big-endian length prefix followed by body.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return errs.ErrFrameTooLarge
	}
	buf := make([]byte, prefixLen+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[prefixLen:], body)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame, looping over short reads. A stream that ends
// inside a frame yields io.ErrUnexpectedEOF; a stream that ends before a frame yields io.EOF.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 || limit > MaxFrameSize {
		limit = MaxFrameSize
	}
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if uint64(n) > uint64(limit) {
		return nil, fmt.Errorf("frame of %d bytes: %w", n, errs.ErrFrameTooLarge)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
