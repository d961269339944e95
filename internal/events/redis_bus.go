package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/metrics"
)

// RedisBus implements Bus on Redis pub/sub so fan-out reaches subscribers
// on every node. One Redis subscription is held per topic and fanned out
// locally to the node's subscriber channels.
type RedisBus struct {
	client *redis.Client

	mu            sync.RWMutex
	subscriptions map[string]*redis.PubSub
	subscribers   map[string]map[chan *Event]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	log     *zap.Logger
	metrics *metrics.Collector
}

func NewRedisBus(client *redis.Client, log *zap.Logger, m *metrics.Collector) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
		subscribers:   make(map[string]map[chan *Event]struct{}),
		ctx:           ctx,
		cancel:        cancel,
		log:           log,
		metrics:       m,
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	if b.metrics != nil {
		b.metrics.EventsPublishedTotal.WithLabelValues(string(event.Type)).Inc()
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan *Event, error) {
	b.mu.Lock()

	if _, exists := b.subscriptions[topic]; !exists {
		pubsub := b.client.Subscribe(b.ctx, topic)
		b.subscriptions[topic] = pubsub
		go b.receiveMessages(topic, pubsub)
	}

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

// receiveMessages pumps one topic's Redis subscription into the local
// subscriber set.
func (b *RedisBus) receiveMessages(topic string, pubsub *redis.PubSub) {
	defer b.cleanupTopic(topic)

	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Warn("malformed event payload",
					zap.String("topic", topic), zap.Error(err))
				continue
			}

			b.mu.RLock()
			for sub := range b.subscribers[topic] {
				select {
				case sub <- &event:
				default:
					if b.metrics != nil {
						b.metrics.EventsDroppedTotal.Inc()
					}
					b.log.Warn("subscriber buffer full, dropping event",
						zap.String("topic", topic),
						zap.String("type", string(event.Type)),
					)
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisBus) removeSubscriber(topic string, ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, exists := b.subscribers[topic]
	if !exists {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}

	delete(subs, ch)
	close(ch)
	if b.metrics != nil {
		b.metrics.SubscribersGauge.Dec()
	}

	// Tear down the Redis subscription once the last local subscriber leaves.
	if len(subs) == 0 {
		delete(b.subscribers, topic)
		if pubsub, ok := b.subscriptions[topic]; ok {
			_ = pubsub.Close()
			delete(b.subscriptions, topic)
		}
	}
}

func (b *RedisBus) cleanupTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, exists := b.subscribers[topic]; exists {
		for ch := range subs {
			close(ch)
			if b.metrics != nil {
				b.metrics.SubscribersGauge.Dec()
			}
		}
		delete(b.subscribers, topic)
	}

	if pubsub, ok := b.subscriptions[topic]; ok {
		_ = pubsub.Close()
		delete(b.subscriptions, topic)
	}
}

func (b *RedisBus) Close() error {
	b.cancel()

	b.mu.RLock()
	topics := make([]string, 0, len(b.subscriptions))
	for topic := range b.subscriptions {
		topics = append(topics, topic)
	}
	b.mu.RUnlock()

	for _, topic := range topics {
		b.cleanupTopic(topic)
	}
	return nil
}
