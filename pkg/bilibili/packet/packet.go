package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// HeaderLen is the fixed size of every frame header on the push channel.
const HeaderLen = 16

type HeaderKind uint16

const (
	HeaderRawJSON   HeaderKind = 0
	HeaderHeartbeat HeaderKind = 1
	HeaderBrotli    HeaderKind = 3
)

func (h HeaderKind) String() string {
	switch h {
	case HeaderRawJSON:
		return "raw_json"
	case HeaderHeartbeat:
		return "heartbeat"
	case HeaderBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("header(%d)", uint16(h))
	}
}

type PackKind uint32

const (
	PackHeartbeat    PackKind = 2
	PackHeartbeatAck PackKind = 3
	PackNotice       PackKind = 5
	PackVerify       PackKind = 7
	PackVerifyAck    PackKind = 8
)

func (p PackKind) String() string {
	switch p {
	case PackHeartbeat:
		return "heartbeat"
	case PackHeartbeatAck:
		return "heartbeat_ack"
	case PackNotice:
		return "notice"
	case PackVerify:
		return "verify"
	case PackVerifyAck:
		return "verify_ack"
	default:
		return fmt.Sprintf("pack(%d)", uint32(p))
	}
}

var (
	ErrUnsupportedFrame = errors.New("unsupported frame")
	ErrCorruptFrame     = errors.New("corrupt frame")
)

type Frame struct {
	Header   HeaderKind
	Pack     PackKind
	Sequence uint32
	Body     []byte
}

// Viewers returns the popularity counter carried by a heartbeat ack.
func (f Frame) Viewers() (uint32, bool) {
	if f.Pack != PackHeartbeatAck || len(f.Body) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(f.Body[:4]), true
}

// Encode builds an outgoing frame. The client only ever sends heartbeats and
// the verify handshake, so any other combination is refused.
func Encode(h HeaderKind, p PackKind, body []byte) ([]byte, error) {
	if h != HeaderHeartbeat {
		return nil, fmt.Errorf("%w: header %s", ErrUnsupportedFrame, h)
	}
	if p != PackHeartbeat && p != PackVerify {
		return nil, fmt.Errorf("%w: pack %s", ErrUnsupportedFrame, p)
	}

	buf := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.BigEndian.PutUint16(buf[4:6], HeaderLen)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h))
	binary.BigEndian.PutUint32(buf[8:12], uint32(p))
	binary.BigEndian.PutUint32(buf[12:16], 1)
	copy(buf[HeaderLen:], body)

	return buf, nil
}

// Decode splits one websocket message into frames. Brotli payloads are
// inflated first and may hold several batched notices.
func Decode(data []byte) ([]Frame, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrCorruptFrame, len(data))
	}

	h := HeaderKind(binary.BigEndian.Uint16(data[6:8]))
	p := PackKind(binary.BigEndian.Uint32(data[8:12]))

	if h == HeaderHeartbeat && p == PackHeartbeatAck {
		body := data[HeaderLen:]
		if len(body) < 4 {
			return nil, fmt.Errorf("%w: heartbeat ack body is %d bytes", ErrCorruptFrame, len(body))
		}
		return []Frame{{
			Header:   h,
			Pack:     p,
			Sequence: binary.BigEndian.Uint32(data[12:16]),
			Body:     body[:4],
		}}, nil
	}

	buf := data
	if h == HeaderBrotli {
		inflated, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data[HeaderLen:])))
		if err != nil {
			return nil, fmt.Errorf("%w: brotli: %v", ErrCorruptFrame, err)
		}
		buf = inflated
	}

	return split(buf)
}

func split(buf []byte) ([]Frame, error) {
	var frames []Frame

	for offset := 0; offset < len(buf); {
		remaining := len(buf) - offset
		if remaining < HeaderLen {
			return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrCorruptFrame, remaining, offset)
		}

		chunk := buf[offset:]
		chunkLen := int(binary.BigEndian.Uint32(chunk[0:4]))
		// a header-only chunk is an empty body, valid only as the last chunk
		if chunkLen < HeaderLen || chunkLen > remaining || (chunkLen == HeaderLen && remaining > HeaderLen) {
			return nil, fmt.Errorf("%w: chunk length %d at offset %d with %d remaining", ErrCorruptFrame, chunkLen, offset, remaining)
		}

		body := make([]byte, chunkLen-HeaderLen)
		copy(body, chunk[HeaderLen:chunkLen])

		frames = append(frames, Frame{
			Header:   HeaderKind(binary.BigEndian.Uint16(chunk[6:8])),
			Pack:     PackKind(binary.BigEndian.Uint32(chunk[8:12])),
			Sequence: binary.BigEndian.Uint32(chunk[12:16]),
			Body:     body,
		})

		offset += chunkLen
	}

	return frames, nil
}
