package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/telemetry"
)

// TopicItemCompleted is published once per finished execution attempt.
const TopicItemCompleted = "queue:item_completed"

const (
	subscriberBuffer = 64
	sinkBuffer       = 256
	sinkTimeout      = 10 * time.Second
)

// Event is one published message.
type Event struct {
	Topic string
	// Key groups related events; completion events use the item ID.
	Key  string
	Data json.RawMessage
	ctx  context.Context
}

// Context returns the publisher's context, carrying any active trace span.
func (e Event) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// ItemCompleted is the payload of TopicItemCompleted.
type ItemCompleted struct {
	ID       string         `json:"id"`
	Result   queue.Result   `json:"result"`
	Metadata queue.Metadata `json:"metadata"`
}

// Sink delivers events outside the process.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
	Close() error
}

type subscriber struct {
	topic string
	ch    chan Event
}

// Bus fans events out to subscribers and sinks.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	sinks  []Sink

	queue  chan Event
	wg     sync.WaitGroup
	once   sync.Once
	closed bool
}

// NewBus starts a bus and its sink worker.
func NewBus(logger *slog.Logger) *Bus {
	b := &Bus{
		logger: logging.NewComponentLogger(logger, "events"),
		subs:   make(map[int]*subscriber),
		queue:  make(chan Event, sinkBuffer),
	}
	b.wg.Add(1)
	go b.runSinks()
	return b
}

// AddSink registers an external sink. The bus closes it on Close.
func (b *Bus) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Subscribe returns a channel of events for topic and a cancel function.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{topic: topic, ch: make(chan Event, subscriberBuffer)}
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Publish encodes payload and delivers it without blocking.
func (b *Bus) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	event := Event{Topic: topic, Key: key, Data: data, ctx: context.WithoutCancel(ctx)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, sub := range b.subs {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			telemetry.EventsDropped.WithLabelValues("subscriber").Inc()
			logging.WarnWithContext(b.logger, "subscriber buffer full; event dropped", "event_dropped",
				logging.String("topic", topic),
				logging.ItemID(key),
				logging.String(logging.FieldImpact, "a local listener missed one notification"),
			)
		}
	}
	if len(b.sinks) == 0 {
		return nil
	}
	select {
	case b.queue <- event:
	default:
		telemetry.EventsDropped.WithLabelValues("sink_queue").Inc()
		logging.WarnWithContext(b.logger, "sink queue full; event dropped", "event_dropped",
			logging.String("topic", topic),
			logging.ItemID(key),
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
			logging.String(logging.FieldImpact, "external consumers missed one notification"),
		)
	}
	return nil
}

// PublishCompletion publishes the completion event for an item.
func (b *Bus) PublishCompletion(ctx context.Context, item *queue.Item) error {
	if item == nil || item.Result == nil {
		return nil
	}
	return b.Publish(ctx, TopicItemCompleted, item.ID, ItemCompleted{
		ID:       item.ID,
		Result:   *item.Result,
		Metadata: item.Metadata,
	})
}

func (b *Bus) runSinks() {
	defer b.wg.Done()
	for event := range b.queue {
		b.mu.Lock()
		sinks := append([]Sink(nil), b.sinks...)
		b.mu.Unlock()
		for _, sink := range sinks {
			ctx, cancel := context.WithTimeout(event.Context(), sinkTimeout)
			err := sink.Deliver(ctx, event)
			cancel()
			if err != nil {
				telemetry.EventsDropped.WithLabelValues(sink.Name()).Inc()
				logging.WarnWithContext(b.logger, "event delivery failed", "event_delivery_failed",
					logging.String("sink", sink.Name()),
					logging.String("topic", event.Topic),
					logging.ItemID(event.Key),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the sink endpoint in the [events] config"),
					logging.String(logging.FieldImpact, "external consumers missed one notification"),
				)
			}
		}
	}
}

// Close drains pending sink deliveries, closes sinks, and ends subscriptions.
func (b *Bus) Close() error {
	var closeErr error
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		for id, sub := range b.subs {
			close(sub.ch)
			delete(b.subs, id)
		}
		b.mu.Unlock()

		b.wg.Wait()

		b.mu.Lock()
		sinks := b.sinks
		b.sinks = nil
		b.mu.Unlock()
		for _, sink := range sinks {
			if err := sink.Close(); err != nil && closeErr == nil {
				closeErr = fmt.Errorf("close %s sink: %w", sink.Name(), err)
			}
		}
	})
	return closeErr
}
