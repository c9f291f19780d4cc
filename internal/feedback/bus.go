package feedback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/fpang/poetry-camera/internal/logging"
	"github.com/fpang/poetry-camera/internal/metrics"
)

// Sink consumes events on the bus dispatcher goroutine. Handle must not block
// for long; slow work belongs on the sink's own goroutine.
type Sink interface {
	Handle(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Handle(e Event) { f(e) }

// Bus is an asynchronous, order-preserving event fan-out.
type Bus struct {
	events chan Event
	drops  atomic.Uint64
	logger zerolog.Logger

	mu    sync.RWMutex
	sinks []Sink
}

// NewBus creates a bus buffering up to size undelivered events.
func NewBus(size int, sinks ...Sink) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{
		events: make(chan Event, size),
		sinks:  sinks,
		logger: logging.WithComponent("feedback"),
	}
}

// Subscribe adds a sink. Sinks added while running see only later events.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Emit queues e without blocking. When the buffer is full the event is
// dropped and counted.
func (b *Bus) Emit(e Event) {
	select {
	case b.events <- e:
	default:
		b.drops.Add(1)
		metrics.FeedbackDrops.Inc()
		b.logger.Warn().Str("event", e.Tag()).Msg("Feedback buffer full, event dropped")
	}
}

// Drops returns the number of dropped events.
func (b *Bus) Drops() uint64 {
	return b.drops.Load()
}

// Run dispatches events to every sink in emission order until ctx is done,
// then delivers whatever is still buffered and returns.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case e := <-b.events:
			b.dispatch(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-b.events:
					b.dispatch(e)
				default:
					return nil
				}
			}
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		s.Handle(e)
	}
}
