package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Framing constants.
const (
	// HeaderSize is the length-prefix size: one big-endian uint32.
	HeaderSize = 4

	// MaxFrameSize bounds the JSON body of a single frame. Whole-document
	// updates can be large, but a length word beyond this is almost
	// certainly a corrupt prefix, and there is no way to resynchronize an
	// unframed byte stream after one.
	MaxFrameSize = 32 << 20
)

// FramingError reports a structurally invalid frame. Recoverable errors
// (bad JSON inside a well-delimited frame) discard the frame and leave the
// stream usable; unrecoverable ones mean the stream offset is lost and the
// connection must be dropped.
type FramingError struct {
	Reason      string
	Recoverable bool
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %s", e.Reason)
}

// Encode serializes a Message into one self-delimited frame:
// 4-byte big-endian length followed by the UTF-8 JSON envelope.
func Encode(msg Message) []byte {
	body, err := json.Marshal(msg)
	if err != nil {
		// Message contains only string fields; Marshal cannot fail.
		panic(fmt.Sprintf("protocol: marshal message: %v", err))
	}
	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)
	return buf
}

// Decoder extracts complete frames from an accumulating byte stream.
// TCP delivers arbitrary chunks, so one Feed may complete zero, one, or
// several frames. Not safe for concurrent use; each Link owns exactly one.
type Decoder struct {
	buf []byte
}

// Feed appends freshly read bytes to the accumulation buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Buffered returns the number of bytes awaiting a complete frame.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next attempts to extract one complete message from the front of the
// buffer. It returns (nil, nil) when the buffer holds an incomplete frame.
// A recoverable *FramingError consumes the offending frame; callers may
// keep reading. An unrecoverable one leaves the buffer unusable and the
// caller must drop the connection.
func (d *Decoder) Next() (*Message, error) {
	if len(d.buf) < HeaderSize {
		return nil, nil
	}

	n := binary.BigEndian.Uint32(d.buf[:HeaderSize])
	if n > MaxFrameSize {
		return nil, &FramingError{
			Reason: fmt.Sprintf("length prefix %d exceeds limit %d", n, MaxFrameSize),
		}
	}

	total := HeaderSize + int(n)
	if len(d.buf) < total {
		return nil, nil
	}

	body := d.buf[HeaderSize:total]
	var msg Message
	err := json.Unmarshal(body, &msg)

	// Consume the frame either way; the delimiter itself was valid.
	d.buf = d.buf[total:]
	if len(d.buf) == 0 {
		d.buf = nil
	}

	if err != nil {
		return nil, &FramingError{
			Reason:      fmt.Sprintf("malformed JSON body: %v", err),
			Recoverable: true,
		}
	}
	return &msg, nil
}
