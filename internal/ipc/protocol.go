package ipc

import (
	"encoding/json"
)

// Message types carried in the "type" discriminator.
const (
	TypeRequest      = "request"
	TypeResponse     = "response"
	TypeStatus       = "status"
	TypeShutdown     = "shutdown"
	TypeStatusReport = "status_report"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusChunk = "chunk"
)

// ErrorKind classifies an error response.
type ErrorKind string

const (
	KindProtocol           ErrorKind = "protocol"
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindBackendTimeout     ErrorKind = "backend_timeout"
	KindUpstream           ErrorKind = "upstream"
	KindShutdown           ErrorKind = "shutdown"
	KindInternal           ErrorKind = "internal"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUnreachable = 2
	ExitBackend     = 3
)

// Message is any value that travels in one frame.
type Message interface {
	messageType() string
}

// NullString is a string that encodes as JSON null when empty.
type NullString string

func (s NullString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *NullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NullString(v)
	return nil
}

// Context is the caller's environment, passed through to the prompt untouched.
type Context struct {
	OS    string `json:"os"`
	Shell string `json:"shell"`
	CWD   string `json:"cwd"`
}

// Request is sent from the client to the daemon for one query.
type Request struct {
	Type    string     `json:"type"`
	Query   string     `json:"query"`
	Context Context    `json:"context"`
	Model   NullString `json:"model"`   // model override
	Profile NullString `json:"profile"` // profile override
	Stream  bool       `json:"stream"`
}

// Response is sent from the daemon back to the client. A query yields zero or
// more chunk responses followed by exactly one ok or error response.
type Response struct {
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Text      string     `json:"text"`
	ErrorKind NullString `json:"error_kind"`
}

// StatusRequest asks a running daemon to describe itself.
type StatusRequest struct {
	Type string `json:"type"`
}

// ShutdownRequest asks a running daemon to stop.
type ShutdownRequest struct {
	Type string `json:"type"`
}

// StatusReport answers a StatusRequest.
type StatusReport struct {
	Type          string `json:"type"`
	State         string `json:"state"`
	Backend       string `json:"backend"`
	Model         string `json:"model"`
	Profile       string `json:"profile"`
	PID           int    `json:"pid"`
	Socket        string `json:"socket"`
	Active        int    `json:"active"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (Request) messageType() string         { return TypeRequest }
func (Response) messageType() string        { return TypeResponse }
func (StatusRequest) messageType() string   { return TypeStatus }
func (ShutdownRequest) messageType() string { return TypeShutdown }
func (StatusReport) messageType() string    { return TypeStatusReport }

// TypeOf returns the wire discriminator of m.
func TypeOf(m Message) string {
	return m.messageType()
}

// OK builds a terminal success response.
func OK(text string) Response {
	return Response{Type: TypeResponse, Status: StatusOK, Text: text}
}

// Chunk builds a partial streaming response.
func Chunk(text string) Response {
	return Response{Type: TypeResponse, Status: StatusChunk, Text: text}
}

// Fail builds a terminal error response.
func Fail(kind ErrorKind, message string) Response {
	return Response{Type: TypeResponse, Status: StatusError, Text: message, ErrorKind: NullString(kind)}
}

// Terminal reports whether r ends the response stream.
func (r Response) Terminal() bool {
	return r.Status == StatusOK || r.Status == StatusError
}

// Kind returns the error kind of an error response.
func (r Response) Kind() ErrorKind {
	return ErrorKind(r.ErrorKind)
}
