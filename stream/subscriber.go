package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives events from topics it is subscribed to over a
// buffered channel. When the buffer is full events are dropped rather than
// blocking the schedule machinery; dropped counts are tracked per
// subscriber.
type Subscriber struct {
	// id uniquely identifies this subscriber.
	id string

	// ch is the buffered channel events are sent on.
	ch chan *Event

	// topics tracks which topics this subscriber is on.
	topics map[string]struct{}
	mu     sync.RWMutex

	// filter is an optional predicate. If set, only events
	// matching the filter are delivered.
	filter func(*Event) bool

	// dropped counts events discarded because the buffer was full.
	dropped atomic.Int64

	// closed prevents double-close of the channel.
	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	return &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
}

// ID returns the subscriber's identifier.
func (s *Subscriber) ID() string { return s.id }

// Events returns the receive channel. It is closed when the subscriber is
// removed from the broker or the broker shuts down.
func (s *Subscriber) Events() <-chan *Event { return s.ch }

// SetFilter installs a delivery predicate. Only events for which the filter
// returns true are delivered. A nil filter delivers everything.
func (s *Subscriber) SetFilter(f func(*Event) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

// Dropped returns the number of events discarded due to a full buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Topics returns the topics this subscriber is currently on.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Close closes the subscriber's channel. Idempotent.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topic] = struct{}{}
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, topic)
}

// send delivers an event without blocking. Returns false if the subscriber
// is closed, filtered the event out, or its buffer is full.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}

	s.mu.RLock()
	filter := s.filter
	s.mu.RUnlock()
	if filter != nil && !filter(evt) {
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}
