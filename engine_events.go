package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/events"
)

// Subscribe registers h on topic. Topics are events.TopicAll,
// events.TopicAlert, events.TopicFor(type) and the session lifecycle topics
// in the session package. The returned func removes the subscription.
func (e *Engine) Subscribe(topic string, h events.Handler) (unsubscribe func()) {
	if e == nil || e.bus == nil {
		return func() {}
	}
	return e.bus.Subscribe(topic, h)
}

// RecordEvent records a security event raised outside the engine, such as a
// login outcome decided by the caller. The stamped event is returned.
func (e *Engine) RecordEvent(ctx context.Context, ev events.Event) events.Event {
	if e == nil || e.pipeline == nil {
		return ev
	}
	return e.pipeline.Record(ctx, ev)
}

// SecurityEvents reads persisted events, newest first. Without an event
// store it returns nothing.
func (e *Engine) SecurityEvents(ctx context.Context, q events.Query) ([]events.Event, error) {
	if e == nil || e.pipeline == nil {
		return nil, ErrEngineNotReady
	}
	return e.pipeline.Query(ctx, q)
}

// EventsDropped returns how many events were lost to a full queue.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.pipeline == nil {
		return 0
	}
	return e.pipeline.Dropped()
}
