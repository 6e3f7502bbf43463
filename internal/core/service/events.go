package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/port"
)

// EventQueue buffers committed events between the services and the
// publishing workers.
type EventQueue struct {
	mu     sync.RWMutex
	ch     chan domain.Event
	closed bool
	logger *zap.Logger
}

func NewEventQueue(size int, logger *zap.Logger) *EventQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventQueue{
		ch:     make(chan domain.Event, size),
		logger: logger,
	}
}

// Enqueue blocks until the event is queued or ctx is done. The sale is
// already committed at this point so a dropped event is only logged.
func (q *EventQueue) Enqueue(ctx context.Context, event domain.Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("event queue closed, dropping event",
			zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
		return
	}

	select {
	case q.ch <- event:
	case <-ctx.Done():
		q.logger.Warn("context done before event was queued",
			zap.String("event_id", event.ID), zap.String("type", string(event.Type)), zap.Error(ctx.Err()))
	}
}

func (q *EventQueue) Events() <-chan domain.Event {
	return q.ch
}

// Close stops accepting events. Workers drain what is left.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// StartWorkers launches count workers publishing queued events. The returned
// WaitGroup is done once the queue is closed and drained.
func StartWorkers(count int, queue *EventQueue, publisher port.EventPublisher, logger *zap.Logger) *sync.WaitGroup {
	if logger == nil {
		logger = zap.NewNop()
	}
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue.Events(), publisher, logger)
		}(i)
	}
	return &wg
}

func workerLoop(id int, events <-chan domain.Event, publisher port.EventPublisher, logger *zap.Logger) {
	log := logger.With(zap.Int("worker", id))
	for event := range events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := publisher.Publish(ctx, event); err != nil {
			log.Error("failed to publish event",
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
				zap.String("key", event.Key),
				zap.Error(err))
		} else {
			log.Debug("published event", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
		}

		cancel()
	}
}
