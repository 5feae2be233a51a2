package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/and161185/chitchat/internal/errs"
)

func TestFrame_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 100, 70 * 1024} {
		body := bytes.Repeat([]byte{byte(n)}, n)
		var buf bytes.Buffer
		if err := WriteFrame(&buf, body); err != nil {
			t.Fatalf("WriteFrame(%d): %v", n, err)
		}
		if got := binary.BigEndian.Uint32(buf.Bytes()[:4]); int(got) != n {
			t.Fatalf("prefix=%d, want %d", got, n)
		}
		out, err := ReadFrame(&buf, 0)
		if err != nil {
			t.Fatalf("ReadFrame(%d): %v", n, err)
		}
		if !bytes.Equal(out, body) {
			t.Fatalf("roundtrip mismatch for %d bytes", n)
		}
	}
}

func TestFrame_ShortReadsAreLooped(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	_ = WriteFrame(&buf, []byte("first frame"))
	_ = WriteFrame(&buf, []byte("second"))

	r := iotest.OneByteReader(&buf)
	a, err := ReadFrame(r, 0)
	if err != nil || string(a) != "first frame" {
		t.Fatalf("first: %q %v", a, err)
	}
	b, err := ReadFrame(r, 0)
	if err != nil || string(b) != "second" {
		t.Fatalf("second: %q %v", b, err)
	}
	if _, err := ReadFrame(r, 0); !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF at clean end, got %v", err)
	}
}

func TestFrame_TruncatedStreamFails(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	_ = WriteFrame(&buf, []byte("0123456789"))
	cut := buf.Bytes()[:buf.Len()-3]

	if _, err := ReadFrame(bytes.NewReader(cut), 0); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("want ErrUnexpectedEOF for truncated body, got %v", err)
	}
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0}), 0); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("want ErrUnexpectedEOF for truncated prefix, got %v", err)
	}
}

func TestFrame_LimitEnforced(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	_ = WriteFrame(&buf, make([]byte, 64))
	if _, err := ReadFrame(&buf, 32); !errors.Is(err, errs.ErrFrameTooLarge) {
		t.Fatalf("want ErrFrameTooLarge, got %v", err)
	}
	if err := WriteFrame(io.Discard, make([]byte, MaxFrameSize+1)); !errors.Is(err, errs.ErrFrameTooLarge) {
		t.Fatalf("want ErrFrameTooLarge on write, got %v", err)
	}
}
