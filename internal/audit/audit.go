package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event records the outcome of one auth operation: a registration, a login
// attempt, a verification, a password change, a session refresh or logout,
// a supervisor invite or a denied authorization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	// EventType is the operation name, such as "login_failure" or
	// "refresh_reuse".
	EventType string `json:"event_type"`
	// UserID and Role describe the account the operation touched. Both are
	// empty when the email did not resolve to an account.
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	// IP and RequestID are copied from the request context by the HTTP layer.
	IP        string `json:"ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Success   bool   `json:"success"`
	// Error is a stable failure code like "invalid_credentials", never the
	// error text.
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PartitionKey groups events that belong to the same actor: the account when
// known, else the client IP, else the request.
func (e Event) PartitionKey() string {
	switch {
	case e.UserID != "":
		return e.UserID
	case e.IP != "":
		return "ip:" + e.IP
	}
	return "req:" + e.RequestID
}

// Sink receives events on the dispatcher goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a reader, typically a test asserting on what
// an operation emitted.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Emit waits for room in the channel unless ctx ends first.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink appends events to w as JSON lines, the format the audit
// file and stdout shipping both expect.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(append(line, '\n'))
}
