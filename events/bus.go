package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler receives a payload published on a topic.
type Handler func(ctx context.Context, topic string, payload any)

type subscription struct {
	id uint64
	h  Handler
}

// Bus is an in-process publish/subscribe port. Handlers run synchronously in
// Publish; a panicking handler is recovered and logged.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	logger *zap.Logger
}

// NewBus returns an empty bus. A nil logger discards.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{subs: make(map[string][]subscription), logger: logger}
}

// Subscribe registers h on topic and returns a function that removes it.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, s := range list {
				if s.id == id {
					b.subs[topic] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers payload to every handler on topic and returns how many ran.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range list {
		b.invoke(ctx, topic, s.h, payload)
	}
	return len(list)
}

func (b *Bus) invoke(ctx context.Context, topic string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("goGuard: event handler panicked", zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	h(ctx, topic, payload)
}
