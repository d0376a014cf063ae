package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// HeaderSize is the width of the big-endian length prefix.
const HeaderSize = 4

// MaxFrameSize bounds the payload length a peer may declare.
const MaxFrameSize = 1_000_000

// ErrIncompleteFrame is returned by Decoder.Next when more bytes are needed.
var ErrIncompleteFrame = errors.New("incomplete frame")

// ErrEmptyQuery is returned when encoding a request without query text.
var ErrEmptyQuery = errors.New("query must not be empty")

// CorruptFrameError reports a frame that can never decode.
type CorruptFrameError struct {
	Reason string
}

func (e *CorruptFrameError) Error() string {
	return "corrupt frame: " + e.Reason
}

// Encode returns the framed wire representation of msg.
func Encode(msg Message) ([]byte, error) {
	var v any
	switch m := msg.(type) {
	case Request:
		if strings.TrimSpace(m.Query) == "" {
			return nil, ErrEmptyQuery
		}
		m.Type = TypeRequest
		v = m
	case Response:
		m.Type = TypeResponse
		v = m
	case StatusRequest:
		m.Type = TypeStatus
		v = m
	case ShutdownRequest:
		m.Type = TypeShutdown
		v = m
	case StatusReport:
		m.Type = TypeStatusReport
		v = m
	default:
		return nil, fmt.Errorf("unsupported message %T", msg)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.messageType(), err)
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("encoding %s: payload of %d bytes exceeds %d", msg.messageType(), len(payload), MaxFrameSize)
	}

	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Decoder reassembles frames from bytes delivered in arbitrary pieces.
// Write never blocks; Next hands back one message at a time.
type Decoder struct {
	max     int
	pending []byte

	header  [HeaderSize]byte
	headerN int

	body   []byte
	bodyN  int
	inBody bool

	err error
}

// NewDecoder returns a decoder enforcing MaxFrameSize.
func NewDecoder() *Decoder {
	return &Decoder{max: MaxFrameSize}
}

// Write buffers p for decoding. It always consumes all of p.
func (d *Decoder) Write(p []byte) (int, error) {
	d.pending = append(d.pending, p...)
	return len(p), nil
}

// Needed reports how many more bytes the current header or body requires
// beyond what is already buffered.
func (d *Decoder) Needed() int {
	var need int
	if d.inBody {
		need = len(d.body) - d.bodyN - len(d.pending)
	} else {
		need = HeaderSize - d.headerN - len(d.pending)
	}
	if need < 0 {
		return 0
	}
	return need
}

// Next decodes the next complete message. It returns ErrIncompleteFrame if the
// buffered bytes do not yet form a frame and a *CorruptFrameError if the stream
// cannot be decoded. A corrupt stream stays corrupt.
func (d *Decoder) Next() (Message, error) {
	if d.err != nil {
		return nil, d.err
	}

	if !d.inBody {
		n := copy(d.header[d.headerN:], d.pending)
		d.headerN += n
		d.consume(n)
		if d.headerN < HeaderSize {
			return nil, ErrIncompleteFrame
		}

		size := binary.BigEndian.Uint32(d.header[:])
		d.headerN = 0
		if size == 0 {
			return nil, d.fail("zero-length frame")
		}
		if uint64(size) > uint64(d.max) {
			return nil, d.fail(fmt.Sprintf("declared length %d exceeds %d", size, d.max))
		}
		d.body = make([]byte, size)
		d.bodyN = 0
		d.inBody = true
	}

	n := copy(d.body[d.bodyN:], d.pending)
	d.bodyN += n
	d.consume(n)
	if d.bodyN < len(d.body) {
		return nil, ErrIncompleteFrame
	}

	payload := d.body
	d.body = nil
	d.bodyN = 0
	d.inBody = false

	msg, err := decodePayload(payload)
	if err != nil {
		return nil, d.fail(err.Error())
	}
	return msg, nil
}

func (d *Decoder) started() bool {
	return d.headerN > 0 || d.inBody || len(d.pending) > 0
}

func (d *Decoder) consume(n int) {
	d.pending = d.pending[n:]
	if len(d.pending) == 0 {
		d.pending = nil
	}
}

func (d *Decoder) fail(reason string) error {
	d.err = &CorruptFrameError{Reason: reason}
	d.pending = nil
	d.body = nil
	return d.err
}

func decodePayload(payload []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("invalid payload: %v", err)
	}

	switch envelope.Type {
	case TypeRequest:
		var m Request
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("invalid request: %v", err)
		}
		return m, nil
	case TypeResponse:
		var m Response
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("invalid response: %v", err)
		}
		switch m.Status {
		case StatusOK, StatusChunk:
		case StatusError:
			if m.ErrorKind == "" {
				return nil, fmt.Errorf("error response without error_kind")
			}
		default:
			return nil, fmt.Errorf("unknown response status %q", m.Status)
		}
		return m, nil
	case TypeStatus:
		return StatusRequest{Type: TypeStatus}, nil
	case TypeShutdown:
		return ShutdownRequest{Type: TypeShutdown}, nil
	case TypeStatusReport:
		var m StatusReport
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("invalid status report: %v", err)
		}
		return m, nil
	case "":
		return nil, fmt.Errorf("missing message type")
	default:
		return nil, fmt.Errorf("unknown message type %q", envelope.Type)
	}
}

// ReadMessage reads from r until dec yields one message. Bytes past the end
// of that message stay buffered in dec for the next call.
func ReadMessage(r io.Reader, dec *Decoder) (Message, error) {
	buf := make([]byte, 4096)
	for {
		msg, err := dec.Next()
		if !errors.Is(err, ErrIncompleteFrame) {
			return msg, err
		}

		n, rerr := r.Read(buf)
		dec.Write(buf[:n]) //nolint:errcheck
		if rerr != nil {
			if msg, err := dec.Next(); !errors.Is(err, ErrIncompleteFrame) {
				return msg, err
			}
			if errors.Is(rerr, io.EOF) && dec.started() {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, rerr
		}
	}
}

// WriteMessage encodes msg and writes it to w as one frame.
func WriteMessage(w io.Writer, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
