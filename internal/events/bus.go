package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

// Bus is an in-process broadcaster. Each subscriber owns a buffered channel;
// when that buffer is full the event is dropped for that subscriber only.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan models.Event
	nextID  int
	buffer  int
	logger  *zap.Logger
	dropped uint64
}

func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]chan models.Event), buffer: buffer, logger: logger}
}

// Subscribe returns a receive channel and a cancel func that closes it.
func (b *Bus) Subscribe() (<-chan models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan models.Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Bus) Publish(_ context.Context, ev models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
			b.logger.Debug("Dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("event_type", string(ev.Type)),
			)
		}
	}
	return nil
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
