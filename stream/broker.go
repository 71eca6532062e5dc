package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evgenylyozin/safe-interval/hook"
	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// Compile-time interface checks.
var (
	_ hook.Extension          = (*Broker)(nil)
	_ hook.ScheduleArmed      = (*Broker)(nil)
	_ hook.ScheduleRewritten  = (*Broker)(nil)
	_ hook.ScheduleCancelled  = (*Broker)(nil)
	_ hook.TimerFired         = (*Broker)(nil)
	_ hook.InvocationEnqueued = (*Broker)(nil)
	_ hook.InvocationDropped  = (*Broker)(nil)
	_ hook.InvocationSettled  = (*Broker)(nil)
	_ hook.Shutdown           = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker is the in-process stream broker. It implements the hook
// interfaces to receive lifecycle events and fans them out to subscribers
// via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	mu          sync.Mutex
	subscribers map[string]*Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:      NewTopicRegistry(),
		logger:      logger,
		subscribers: make(map[string]*Subscriber),
		bufferSize:  DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize)

	b.mu.Lock()
	b.subscribers[subscriberID] = sub
	b.mu.Unlock()

	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)

	b.mu.Lock()
	sub, ok := b.subscribers[subscriberID]
	delete(b.subscribers, subscriberID)
	b.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	count := len(b.subscribers)
	b.mu.Unlock()

	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish broadcasts an event to its schedule topic, the schedules topic,
// and the firehose.
func (b *Broker) publish(scheduleID string, evt *Event) {
	topics := []string{TopicFirehose, TopicSchedules}
	if scheduleID != "" {
		evt.Topic = ScheduleTopic(scheduleID)
		topics = append(topics, evt.Topic)
	}
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func scheduleData(s *schedule.Schedule) ScheduleEventData {
	return ScheduleEventData{
		ScheduleID: s.ID.String(),
		Key:        s.Key,
		Kind:       s.Kind.String(),
		Mode:       s.Mode.String(),
		EveryMs:    s.Every.Milliseconds(),
		Spec:       s.Spec,
	}
}

// OnScheduleArmed implements hook.ScheduleArmed.
func (b *Broker) OnScheduleArmed(_ context.Context, s *schedule.Schedule) error {
	b.publish(s.ID.String(), &Event{
		Type:      EventScheduleArmed,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(scheduleData(s)),
	})
	return nil
}

// OnScheduleRewritten implements hook.ScheduleRewritten.
func (b *Broker) OnScheduleRewritten(_ context.Context, s *schedule.Schedule) error {
	b.publish(s.ID.String(), &Event{
		Type:      EventScheduleRewritten,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(scheduleData(s)),
	})
	return nil
}

// OnScheduleCancelled implements hook.ScheduleCancelled.
func (b *Broker) OnScheduleCancelled(_ context.Context, sid id.ScheduleID, discarded int) error {
	b.publish(sid.String(), &Event{
		Type:      EventScheduleCancelled,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(ScheduleEventData{
			ScheduleID: sid.String(),
			Discarded:  discarded,
		}),
	})
	return nil
}

// OnTimerFired implements hook.TimerFired.
func (b *Broker) OnTimerFired(_ context.Context, sid id.ScheduleID, at time.Time) error {
	b.publish(sid.String(), &Event{
		Type:      EventTimerFired,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(InvocationEventData{
			ScheduleID: sid.String(),
			FiredAt:    at.Format(time.RFC3339Nano),
		}),
	})
	return nil
}

// OnInvocationEnqueued implements hook.InvocationEnqueued.
func (b *Broker) OnInvocationEnqueued(_ context.Context, inv *schedule.Invocation, depth int) error {
	b.publish(inv.Schedule.String(), &Event{
		Type:      EventEnqueued,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(InvocationEventData{
			ScheduleID: inv.Schedule.String(),
			Seq:        inv.Seq,
			FiredAt:    inv.FiredAt.Format(time.RFC3339Nano),
			Depth:      depth,
		}),
	})
	return nil
}

// OnInvocationDropped implements hook.InvocationDropped.
func (b *Broker) OnInvocationDropped(_ context.Context, inv *schedule.Invocation, reason schedule.DropReason) error {
	b.publish(inv.Schedule.String(), &Event{
		Type:      EventDropped,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(InvocationEventData{
			ScheduleID: inv.Schedule.String(),
			Seq:        inv.Seq,
			Reason:     string(reason),
		}),
	})
	return nil
}

// OnInvocationSettled implements hook.InvocationSettled.
func (b *Broker) OnInvocationSettled(_ context.Context, inv *schedule.Invocation, settleErr error, elapsed time.Duration) error {
	data := InvocationEventData{
		ScheduleID: inv.Schedule.String(),
		Seq:        inv.Seq,
		FiredAt:    inv.FiredAt.Format(time.RFC3339Nano),
		ElapsedMs:  elapsed.Milliseconds(),
	}
	if settleErr != nil {
		data.Error = settleErr.Error()
	}

	b.publish(inv.Schedule.String(), &Event{
		Type:      EventSettled,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(data),
	})
	return nil
}

// OnShutdown implements hook.Shutdown. All subscribers are closed.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.subscribers = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		b.topics.UnsubscribeAll(sub.ID())
		sub.Close()
	}
	return nil
}
