package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

const (
	DefaultQueueSize   = 1024
	DefaultSinkTimeout = 5 * time.Second
)

// Queue hands events to an external sink on a single worker goroutine.
// Publish never waits on the sink: when the buffer is full the event is
// dropped and counted. Events reach the sink in publish order.
type Queue struct {
	name    string
	sink    Publisher
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	ch      chan models.Event
	done    chan struct{}
	dropped atomic.Uint64
}

func NewQueue(name string, sink Publisher, size int, timeout time.Duration, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		name:    name,
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		ch:      make(chan models.Event, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Publish(_ context.Context, ev models.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return nil
	}
	select {
	case q.ch <- ev:
	default:
		q.dropped.Add(1)
		q.logger.Warn("Event sink queue full, dropping event",
			zap.String("sink", q.name),
			zap.String("event_type", string(ev.Type)),
		)
	}
	return nil
}

func (q *Queue) run() {
	defer close(q.done)
	for ev := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.sink.Publish(ctx, ev)
		cancel()
		if err != nil {
			q.logger.Warn("Failed to publish event",
				zap.String("sink", q.name),
				zap.String("event_type", string(ev.Type)),
				zap.String("parcel_id", ev.ParcelID),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting events and waits for the buffered ones to be handed
// to the sink, or for ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
