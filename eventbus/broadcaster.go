// Package eventbus implements the bounded fan-out broadcaster from
// spec.md 4.8: the turn loop publishes onto one EventSender, and the
// broadcaster copies each event out to every subscriber (a TUI render
// loop, a thread-persistence writer, an optional NATS publisher)
// without letting one slow subscriber stall the others.
package eventbus

import (
	"sync"

	"zdx/agent"
)

// DefaultCapacity is the recommended per-subscriber channel buffer,
// per spec.md 4.8.
const DefaultCapacity = 128

// Broadcaster fans one stream of agent.AgentEvent out to many
// subscribers. Each subscriber gets its own buffered channel; a
// subscriber that falls behind only drops events for itself; every
// other subscriber is unaffected.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan agent.AgentEvent
	nextID      int
	capacity    int
}

func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broadcaster{subscribers: make(map[int]chan agent.AgentEvent), capacity: capacity}
}

// Subscription is a handle a caller uses to read published events and
// to unsubscribe when it's done.
type Subscription struct {
	id  int
	ch  chan agent.AgentEvent
	bus *Broadcaster
}

func (s *Subscription) Events() <-chan agent.AgentEvent { return s.ch }

func (s *Subscription) Unsubscribe() { s.bus.unsubscribe(s.id) }

func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan agent.AgentEvent, b.capacity)
	b.subscribers[id] = ch
	return &Subscription{id: id, ch: ch, bus: b}
}

func (b *Broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish copies ev to every current subscriber via a non-blocking
// try-send: a subscriber whose buffer is full drops this one event
// rather than stalling the publisher or any other subscriber. This
// applies uniformly regardless of whether ev originated from
// EventSender.SendDelta or SendImportant — the broadcaster only
// protects its own fan-out fairness; the delta/important distinction
// is enforced once, upstream, by the turn loop's own channel.
func (b *Broadcaster) Publish(ev agent.AgentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close unsubscribes and closes every subscriber's channel, used when
// the turn loop that owns this broadcaster shuts down.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

// AttachNatsPublisher subscribes pub to this broadcaster's event
// stream and forwards every event to it on a dedicated goroutine,
// until the subscription's channel is closed by Broadcaster.Close.
func (b *Broadcaster) AttachNatsPublisher(pub *NatsPublisher) {
	sub := b.Subscribe()
	go func() {
		for ev := range sub.Events() {
			pub.Publish(ev)
		}
		pub.Close()
	}()
}
