package outbox

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// Publisher is a pluggable delivery sink. PublishBatch must preserve the
// order of events within batch. Healthy reports whether the sink is
// currently able to accept deliveries; the outbox worker and its
// management methods do not call it.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, topic string, event dcb.Event) error
	PublishBatch(ctx context.Context, topic string, events []dcb.Event) error
	Healthy(ctx context.Context) bool
}

// LogPublisher writes one log line per delivered event.
type LogPublisher struct {
	name   string
	logger *log.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger uses log.Default().
func NewLogPublisher(name string, logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{name: name, logger: logger}
}

func (p *LogPublisher) Name() string { return p.name }

func (p *LogPublisher) Publish(ctx context.Context, topic string, event dcb.Event) error {
	p.logger.Printf("outbox[%s/%s]: %s tx=%d pos=%d", topic, p.name, event.Type, event.TransactionID, event.Position)
	return nil
}

func (p *LogPublisher) PublishBatch(ctx context.Context, topic string, events []dcb.Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, topic, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *LogPublisher) Healthy(ctx context.Context) bool { return true }

// StatsPublisher counts delivered events by (topic, publisher, type)
// instead of delivering anywhere, useful for dashboards and tests.
type StatsPublisher struct {
	name   string
	mu     sync.Mutex
	counts map[string]int64
}

// NewStatsPublisher creates a StatsPublisher.
func NewStatsPublisher(name string) *StatsPublisher {
	return &StatsPublisher{name: name, counts: make(map[string]int64)}
}

func (p *StatsPublisher) Name() string { return p.name }

func (p *StatsPublisher) Publish(ctx context.Context, topic string, event dcb.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[statsKey(topic, p.name, event.Type)]++
	return nil
}

func (p *StatsPublisher) PublishBatch(ctx context.Context, topic string, events []dcb.Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, topic, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *StatsPublisher) Healthy(ctx context.Context) bool { return true }

// Count returns the number of events delivered for (topic, publisher, type).
func (p *StatsPublisher) Count(topic, eventType string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[statsKey(topic, p.name, eventType)]
}

func statsKey(topic, publisher, eventType string) string {
	return fmt.Sprintf("%s|%s|%s", topic, publisher, eventType)
}

// LatchPublisher buffers delivered events on a channel for deterministic
// tests to drain.
type LatchPublisher struct {
	name string
	ch   chan dcb.Event
}

// NewLatchPublisher creates a LatchPublisher with the given channel
// capacity.
func NewLatchPublisher(name string, capacity int) *LatchPublisher {
	return &LatchPublisher{name: name, ch: make(chan dcb.Event, capacity)}
}

func (p *LatchPublisher) Name() string { return p.name }

func (p *LatchPublisher) Publish(ctx context.Context, topic string, event dcb.Event) error {
	select {
	case p.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *LatchPublisher) PublishBatch(ctx context.Context, topic string, events []dcb.Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, topic, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *LatchPublisher) Healthy(ctx context.Context) bool { return true }

// Events exposes the receive side for tests to drain.
func (p *LatchPublisher) Events() <-chan dcb.Event { return p.ch }
