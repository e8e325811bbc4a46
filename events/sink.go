package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go"
)

// Sink consumes events. Any Sink can be attached to a Bus topic with [SinkHandler].
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkHandler adapts s to a bus Handler. Non-event payloads are ignored.
func SinkHandler(s Sink) Handler {
	return func(ctx context.Context, _ string, payload any) {
		switch ev := payload.(type) {
		case Event:
			s.Emit(ctx, ev)
		case *Event:
			if ev != nil {
				s.Emit(ctx, *ev)
			}
		}
	}
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MsgPublisher is the subset of *nats.Conn used by NATSSink.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes each event as JSON on "<prefix>.<TYPE>" with the
// severity and id carried in headers.
type NATSSink struct {
	pub    MsgPublisher
	prefix string
	onErr  func(error)
}

// NewNATSSink returns a sink on pub. A nil onErr discards publish errors.
func NewNATSSink(pub MsgPublisher, prefix string, onErr func(error)) *NATSSink {
	if prefix == "" {
		prefix = "goguard.security"
	}
	if onErr == nil {
		onErr = func(error) {}
	}
	return &NATSSink{pub: pub, prefix: prefix, onErr: onErr}
}

// Subject returns the subject an event of type t is published on.
func (s *NATSSink) Subject(t Type) string {
	return s.prefix + "." + string(t)
}

func (s *NATSSink) Emit(_ context.Context, event Event) {
	if s == nil || s.pub == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.onErr(err)
		return
	}

	msg := nats.NewMsg(s.Subject(event.Type))
	msg.Data = data
	msg.Header.Set("Goguard-Event-Id", event.ID)
	msg.Header.Set("Goguard-Severity", string(event.Severity))

	if err := s.pub.PublishMsg(msg); err != nil {
		s.onErr(fmt.Errorf("publish failed: %w", err))
	}
}
