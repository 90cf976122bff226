package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Publish(_ context.Context, e Event) {
	l := s.Logger
	if l == nil {
		l = zap.L()
	}
	l.Info("pool event",
		zap.String("type", string(e.EventType())),
		zap.String("pool_id", e.EventPool()),
		zap.Any("payload", e),
	)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, e)
		}
	}
}

// Buffer holds events until the surrounding operation commits.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Publish(_ context.Context, e Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Flush hands every buffered event to sink and empties the buffer.
func (b *Buffer) Flush(ctx context.Context, sink Sink) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if sink == nil {
		return
	}
	for _, e := range pending {
		sink.Publish(ctx, e)
	}
}

// Discard empties the buffer without delivering anything.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
