package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/metrics"
)

const subscriberBuffer = 100

// MemoryBus is an in-process Bus for single-node deployments and tests.
// It fans out to per-topic subscriber sets with buffered channels; a slow
// subscriber drops events rather than blocking the publisher.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *Event]struct{}
	closed      bool

	log     *zap.Logger
	metrics *metrics.Collector
}

func NewMemoryBus(log *zap.Logger, m *metrics.Collector) *MemoryBus {
	return &MemoryBus{
		subscribers: make(map[string]map[chan *Event]struct{}),
		log:         log,
		metrics:     m,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for sub := range b.subscribers[topic] {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full; drop rather than block the mutation path.
			if b.metrics != nil {
				b.metrics.EventsDroppedTotal.Inc()
			}
			b.log.Warn("subscriber buffer full, dropping event",
				zap.String("topic", topic),
				zap.String("type", string(event.Type)),
			)
		}
	}

	if b.metrics != nil {
		b.metrics.EventsPublishedTotal.WithLabelValues(string(event.Type)).Inc()
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (<-chan *Event, error) {
	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan *Event]struct{})
	}
	ch := make(chan *Event, subscriberBuffer)
	b.subscribers[topic][ch] = struct{}{}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.SubscribersGauge.Inc()
	}

	go func() {
		<-ctx.Done()
		b.removeSubscriber(topic, ch)
	}()

	return ch, nil
}

func (b *MemoryBus) removeSubscriber(topic string, ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}

	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}
	if b.metrics != nil {
		b.metrics.SubscribersGauge.Dec()
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for topic, subs := range b.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
	return nil
}
