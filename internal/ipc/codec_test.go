package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func sampleMessages() []Message {
	return []Message{
		Request{
			Type:    TypeRequest,
			Query:   "find rust files changed today",
			Context: Context{OS: "Linux (Arch Linux)", Shell: "zsh", CWD: "/home/u/src"},
			Model:   "qwen2.5-coder:7b",
			Stream:  true,
		},
		Request{Type: TypeRequest, Query: "list files", Profile: "fast"},
		OK("fd -e rs --changed-within 1d"),
		Chunk("fd "),
		Fail(KindUpstream, "model 'x' not found"),
		StatusRequest{Type: TypeStatus},
		ShutdownRequest{Type: TypeShutdown},
		StatusReport{Type: TypeStatusReport, State: "listening", Backend: "ollama", Model: "m", PID: 42, Active: 1},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, want := range sampleMessages() {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%#v) error = %v", want, err)
		}
		if got := binary.BigEndian.Uint32(data); int(got) != len(data)-HeaderSize {
			t.Fatalf("length prefix = %d, want %d", got, len(data)-HeaderSize)
		}

		dec := NewDecoder()
		dec.Write(data) //nolint:errcheck
		got, err := dec.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Next() = %#v, want %#v", got, want)
		}
		if _, err := dec.Next(); !errors.Is(err, ErrIncompleteFrame) {
			t.Fatalf("Next() on empty decoder error = %v, want %v", err, ErrIncompleteFrame)
		}
	}
}

func TestDecoderIsIndependentOfChunkSize(t *testing.T) {
	var stream []byte
	msgs := sampleMessages()
	for _, m := range msgs {
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		stream = append(stream, data...)
	}

	for _, size := range []int{1, 2, 3, 5, 7, 64, len(stream)} {
		dec := NewDecoder()
		var got []Message
		for off := 0; off < len(stream); off += size {
			end := min(off+size, len(stream))
			dec.Write(stream[off:end]) //nolint:errcheck
			for {
				msg, err := dec.Next()
				if errors.Is(err, ErrIncompleteFrame) {
					break
				}
				if err != nil {
					t.Fatalf("chunk size %d: Next() error = %v", size, err)
				}
				got = append(got, msg)
			}
		}
		if !reflect.DeepEqual(got, msgs) {
			t.Fatalf("chunk size %d: decoded %d messages, want %d", size, len(got), len(msgs))
		}
	}
}

func TestNullableFieldsEncodeAsNull(t *testing.T) {
	data, err := Encode(Request{Query: "ls"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	payload := string(data[HeaderSize:])
	for _, field := range []string{`"model":null`, `"profile":null`, `"type":"request"`} {
		if !strings.Contains(payload, field) {
			t.Fatalf("payload %s missing %s", payload, field)
		}
	}

	data, err = Encode(OK("ls"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(string(data), `"error_kind":null`) {
		t.Fatalf("ok payload %s missing null error_kind", data)
	}
}

func TestEncodeRejectsEmptyQuery(t *testing.T) {
	if _, err := Encode(Request{Query: "  \t"}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("Encode() error = %v, want %v", err, ErrEmptyQuery)
	}
}

func frame(payload string) []byte {
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

func TestDecoderRejectsCorruptFrames(t *testing.T) {
	oversize := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(oversize, MaxFrameSize+1)

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "oversize", input: oversize},
		{name: "zero length", input: []byte{0, 0, 0, 0}},
		{name: "bad json", input: frame("{not json")},
		{name: "unknown type", input: frame(`{"type":"bogus"}`)},
		{name: "missing type", input: frame(`{"query":"x"}`)},
		{name: "bad status", input: frame(`{"type":"response","status":"maybe","text":""}`)},
		{name: "error without kind", input: frame(`{"type":"response","status":"error","text":"x","error_kind":null}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder()
			dec.Write(tt.input) //nolint:errcheck
			_, err := dec.Next()
			var corrupt *CorruptFrameError
			if !errors.As(err, &corrupt) {
				t.Fatalf("Next() error = %v, want *CorruptFrameError", err)
			}
			if _, again := dec.Next(); !errors.As(again, &corrupt) {
				t.Fatalf("second Next() error = %v, want *CorruptFrameError", again)
			}
		})
	}
}

func TestDecoderAcceptsMaxFrameHeader(t *testing.T) {
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header, MaxFrameSize)

	dec := NewDecoder()
	dec.Write(header) //nolint:errcheck
	if _, err := dec.Next(); !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("Next() error = %v, want %v", err, ErrIncompleteFrame)
	}
	if got := dec.Needed(); got != MaxFrameSize {
		t.Fatalf("Needed() = %d, want %d", got, MaxFrameSize)
	}
}

func TestNeededTracksPartialHeaderAndBody(t *testing.T) {
	data := frame(`{"type":"status"}`)
	dec := NewDecoder()
	if got := dec.Needed(); got != HeaderSize {
		t.Fatalf("Needed() = %d, want %d", got, HeaderSize)
	}

	dec.Write(data[:2]) //nolint:errcheck
	if got := dec.Needed(); got != 2 {
		t.Fatalf("Needed() after 2 bytes = %d, want 2", got)
	}

	dec.Write(data[2:6]) //nolint:errcheck
	if _, err := dec.Next(); !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("Next() error = %v, want %v", err, ErrIncompleteFrame)
	}
	if got, want := dec.Needed(), len(data)-6; got != want {
		t.Fatalf("Needed() mid-body = %d, want %d", got, want)
	}

	dec.Write(data[6:]) //nolint:errcheck
	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if _, ok := msg.(StatusRequest); !ok {
		t.Fatalf("Next() = %T, want StatusRequest", msg)
	}
}

func TestReadMessageKeepsTrailingBytes(t *testing.T) {
	var buf bytes.Buffer
	WriteMessage(&buf, Chunk("a")) //nolint:errcheck
	WriteMessage(&buf, OK("ab"))   //nolint:errcheck

	dec := NewDecoder()
	first, err := ReadMessage(&buf, dec)
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	second, err := ReadMessage(&buf, dec)
	if err != nil {
		t.Fatalf("second ReadMessage() error = %v", err)
	}
	if first.(Response).Text != "a" || second.(Response).Text != "ab" {
		t.Fatalf("messages = %#v, %#v", first, second)
	}
	if _, err := ReadMessage(&buf, dec); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadMessage() at end error = %v, want %v", err, io.EOF)
	}
}

func TestReadMessageReportsTruncatedFrame(t *testing.T) {
	data, err := Encode(OK("ls"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	_, err = ReadMessage(bytes.NewReader(data[:len(data)-1]), NewDecoder())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadMessage() error = %v, want %v", err, io.ErrUnexpectedEOF)
	}
}
