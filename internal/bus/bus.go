// Package bus carries chat mutation events to live subscribers. Two
// implementations share the contract: Memory broadcasts inside the process,
// Redis relays through redis pub/sub so every instance of the server sees
// every event.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"dmchat/internal/chat"
)

// subscriberBuffer bounds a subscriber's outstanding events. A subscriber
// that falls this far behind is dropped rather than allowed to stall
// publishers.
const subscriberBuffer = 256

type Bus interface {
	chat.Publisher
	Subscribe(topic chat.Topic) *Subscription
}

// Subscription is one live listener on one topic. C delivers events in
// publish order until Cancel or until the bus drops a slow subscriber, at
// which point C is closed.
type Subscription struct {
	C      <-chan chat.Event
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() { s.once.Do(s.cancel) }

// Memory is the in-process broker: a per-topic set of subscriber channels
// behind one mutex.
type Memory struct {
	log *slog.Logger

	mu     sync.Mutex
	nextID int64
	subs   map[chat.Topic]map[int64]chan chat.Event
}

func NewMemory(log *slog.Logger) *Memory {
	return &Memory{
		log:  log,
		subs: make(map[chat.Topic]map[int64]chan chat.Event),
	}
}

func (b *Memory) Publish(ctx context.Context, evt chat.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs[evt.Topic()] {
		select {
		case ch <- evt:
		default:
			// Slow subscriber: cut it loose so publishers never block.
			delete(b.subs[evt.Topic()], id)
			close(ch)
			b.log.Warn("dropping slow subscriber", "topic", evt.Topic())
		}
	}
}

func (b *Memory) Subscribe(topic chat.Topic) *Subscription {
	ch := make(chan chat.Event, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int64]chan chat.Event)
	}
	b.subs[topic][id] = ch
	b.mu.Unlock()

	return &Subscription{
		C: ch,
		cancel: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[topic][id]; ok {
				delete(b.subs[topic], id)
				close(ch)
			}
		},
	}
}
