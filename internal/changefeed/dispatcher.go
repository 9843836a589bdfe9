package changefeed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"example.com/habitsync/internal/observability"
)

// Dispatcher decouples callers from a slow Publisher: Publish enqueues and
// returns, a single worker delivers in order.
type Dispatcher struct {
	name    string
	target  Publisher
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger
	dropped atomic.Uint64
	done    chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithPublishTimeout bounds each delivery.
func WithPublishTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// NewDispatcher constructs a Dispatcher named name in front of target.
func NewDispatcher(name string, target Publisher, buffer int, opts ...DispatcherOption) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		name:    name,
		target:  target,
		queue:   make(chan Event, buffer),
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish implements Publisher. It never blocks; when the queue is full the
// event is dropped and counted.
func (d *Dispatcher) Publish(_ context.Context, event Event) error {
	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		observability.RecordPublish(d.name, errors.New("queue full"))
		d.logger.Warn("change event dropped", zap.String("publisher", d.name), zap.String("type", string(event.Type)))
	}
	return nil
}

// Start runs the delivery loop until ctx is done and the queue is drained. It
// should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case event := <-d.queue:
			d.deliver(context.Background(), event)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	err := d.target.Publish(ctx, event)
	observability.RecordPublish(d.name, err)
	if err != nil {
		d.logger.Error("publish change event failed",
			zap.String("publisher", d.name),
			zap.String("type", string(event.Type)),
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

// Dropped returns how many events were refused because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}
