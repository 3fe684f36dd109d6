package feed

import (
	"sync"

	"fuelwatch/internal/metrics"
)

// Broker fans out change events to in-process subscribers, one named channel
// per entity. Publishing never blocks: a subscriber that cannot keep up gets
// a CHANNEL_ERROR status instead of backpressure.
type Broker struct {
	mu     sync.Mutex
	buffer int
	subs   map[Entity]map[*brokerSub]struct{}
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		buffer: buffer,
		subs:   make(map[Entity]map[*brokerSub]struct{}),
	}
}

type brokerSub struct {
	broker *Broker
	entity Entity
	events chan Event
	status chan Status
	once   sync.Once
}

func (s *brokerSub) Events() <-chan Event    { return s.events }
func (s *brokerSub) Statuses() <-chan Status { return s.status }

func (s *brokerSub) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
		s.pushStatus(StatusClosed)
		close(s.status)
		close(s.events)
	})
}

func (s *brokerSub) pushStatus(st Status) {
	select {
	case s.status <- st:
	default:
	}
}

// Subscribe opens a stream of events for one entity. The returned Source
// must be closed by the consumer.
func (b *Broker) Subscribe(entity Entity) Source {
	sub := &brokerSub{
		broker: b,
		entity: entity,
		events: make(chan Event, b.buffer),
		status: make(chan Status, 4),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.pushStatus(StatusClosed)
		close(sub.status)
		close(sub.events)
		return sub
	}
	set, ok := b.subs[entity]
	if !ok {
		set = make(map[*brokerSub]struct{})
		b.subs[entity] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	sub.pushStatus(StatusSubscribed)
	return sub
}

func (b *Broker) remove(sub *brokerSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.entity]; ok {
		delete(set, sub)
	}
}

// Publish delivers an event to every subscriber of its entity.
func (b *Broker) Publish(ev Event) {
	metrics.ObserveFeedEvent(string(ev.Entity), string(ev.Kind))
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs[ev.Entity] {
		select {
		case sub.events <- ev:
		default:
			sub.pushStatus(StatusError)
		}
	}
}

// Close shuts the broker down and closes every open subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*brokerSub
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.subs = make(map[Entity]map[*brokerSub]struct{})
	b.mu.Unlock()
	for _, sub := range all {
		sub.once.Do(func() {
			sub.pushStatus(StatusClosed)
			close(sub.status)
			close(sub.events)
		})
	}
}
