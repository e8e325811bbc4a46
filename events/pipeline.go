package events

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Signal is reported to PipelineConfig.Observe as events move through the pipeline.
type Signal int

const (
	SignalRecorded Signal = iota
	SignalEscalated
	SignalEscalationSuppressed
	SignalDropped
	SignalPersistFailed
)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Dispatcher DispatcherConfig
	// EscalationRate and EscalationBurst throttle the alert topic. A zero rate
	// disables throttling.
	EscalationRate  rate.Limit
	EscalationBurst int
	Store           Store
	Logger          *zap.Logger
	Now             func() time.Time
	Observe         func(Signal)
}

// Pipeline records security events.
type Pipeline struct {
	bus        *Bus
	store      Store
	dispatcher *Dispatcher
	escalation *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
	observe    func(Signal)
}

// NewPipeline wires a pipeline onto bus. With the dispatcher disabled,
// delivery happens inline in Record.
func NewPipeline(bus *Bus, cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		bus:     bus,
		store:   cfg.Store,
		logger:  cfg.Logger,
		now:     cfg.Now,
		observe: cfg.Observe,
	}
	if p.bus == nil {
		p.bus = NewBus(cfg.Logger)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.observe == nil {
		p.observe = func(Signal) {}
	}
	if cfg.EscalationRate > 0 {
		burst := cfg.EscalationBurst
		if burst <= 0 {
			burst = 1
		}
		p.escalation = rate.NewLimiter(cfg.EscalationRate, burst)
	}
	p.dispatcher = NewDispatcher(cfg.Dispatcher, p.deliver)
	return p
}

// Bus returns the bus events are published on.
func (p *Pipeline) Bus() *Bus {
	return p.bus
}

// Record stamps ev and queues it for persistence and fan-out. It never fails;
// the stamped event is returned.
func (p *Pipeline) Record(ctx context.Context, ev Event) Event {
	if p == nil {
		return ev
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now()
	}
	if ev.ID == "" {
		ev.ID = internal.NewSortableID(ev.Timestamp)
	}
	if ev.Severity == "" {
		ev.Severity = SeverityOf(ev.Type)
	}
	p.observe(SignalRecorded)

	if p.dispatcher == nil {
		p.deliver(ctx, ev)
		return ev
	}
	if !p.dispatcher.Emit(ctx, ev) {
		p.observe(SignalDropped)
		p.logger.Warn("goGuard: security event dropped",
			zap.String("event_type", string(ev.Type)),
			zap.String("user_id", ev.UserID),
			zap.String("tenant_id", ev.TenantID),
		)
	}
	return ev
}

// Query reads persisted events. Without a store it returns nothing.
func (p *Pipeline) Query(ctx context.Context, q Query) ([]Event, error) {
	if p == nil || p.store == nil {
		return nil, nil
	}
	return p.store.Query(ctx, q)
}

// Dropped returns the number of events lost to a full queue.
func (p *Pipeline) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dispatcher.Dropped()
}

// Close drains queued events.
func (p *Pipeline) Close() {
	if p == nil {
		return
	}
	p.dispatcher.Close()
}

func (p *Pipeline) deliver(ctx context.Context, ev Event) {
	if p.store != nil {
		if err := p.store.Save(ctx, ev); err != nil {
			p.observe(SignalPersistFailed)
			p.logger.Warn("goGuard: security event persist failed",
				zap.String("event_type", string(ev.Type)),
				zap.String("user_id", ev.UserID),
				zap.String("tenant_id", ev.TenantID),
				zap.Error(err),
			)
		}
	}

	p.bus.Publish(ctx, TopicAll, ev)
	p.bus.Publish(ctx, TopicFor(ev.Type), ev)

	if !ev.Severity.Escalates() {
		return
	}
	if p.escalation != nil && !p.escalation.Allow() {
		p.observe(SignalEscalationSuppressed)
		p.logger.Warn("goGuard: security alert throttled",
			zap.String("event_type", string(ev.Type)),
			zap.String("user_id", ev.UserID),
		)
		return
	}
	p.observe(SignalEscalated)
	p.bus.Publish(ctx, TopicAlert, ev)
}
