// Package wire implements the framing used between the agent and the management
// server: a 2-byte big-endian length followed by that many bytes of text in
// Java's modified UTF-8. Callers always see standard UTF-8. One frame is
// exchanged per connection in each direction.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"batch-agent/pkg/types"
)

// MaxFrameSize is the largest payload the 16-bit length prefix can describe.
const MaxFrameSize = 1<<16 - 1

// Common errors.
var (
	ErrFrameTooLarge = errors.New("frame exceeds 65535 bytes")
	ErrMalformed     = errors.New("malformed envelope")
)

// WriteFrame writes UTF-8 payload as one length-prefixed frame. The limit
// applies to the encoded length.
func WriteFrame(w io.Writer, payload []byte) error {
	payload = encodeModified(payload)
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(buf, uint16(len(payload)))
	copy(buf[2:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame and returns it as UTF-8.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	payload := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return decodeModified(payload)
}

// WriteString writes s as one frame.
func WriteString(w io.Writer, s string) error {
	return WriteFrame(w, []byte(s))
}

// WriteJSON encodes v and writes it as one frame.
func WriteJSON(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return WriteFrame(w, b)
}

// ReadEnvelope reads one frame and decodes it as an Envelope.
func ReadEnvelope(r io.Reader) (types.Envelope, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return types.Envelope{}, err
	}
	var env types.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return types.Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Cmd == "" {
		return types.Envelope{}, fmt.Errorf("%w: missing cmd", ErrMalformed)
	}
	return env, nil
}
