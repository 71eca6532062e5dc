// Package stream provides an in-process event broker for schedule lifecycle
// events. It bridges the hook system to subscribers via topic-based pub/sub,
// letting tests and embedding applications observe firings, drops, and
// settlements over channels instead of polling.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventScheduleArmed     EventType = "schedule.armed"
	EventScheduleRewritten EventType = "schedule.rewritten"
	EventScheduleCancelled EventType = "schedule.cancelled"
	EventTimerFired        EventType = "timer.fired"
	EventEnqueued          EventType = "invocation.enqueued"
	EventDropped           EventType = "invocation.dropped"
	EventSettled           EventType = "invocation.settled"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// ScheduleEventData is the payload for schedule-level events.
type ScheduleEventData struct {
	ScheduleID string `json:"schedule_id"`
	Key        string `json:"key,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Mode       string `json:"mode,omitempty"`
	EveryMs    int64  `json:"every_ms,omitempty"`
	Spec       string `json:"spec,omitempty"`
	Discarded  int    `json:"discarded,omitempty"`
}

// InvocationEventData is the payload for invocation-level events.
type InvocationEventData struct {
	ScheduleID string `json:"schedule_id"`
	Seq        uint64 `json:"seq,omitempty"`
	FiredAt    string `json:"fired_at,omitempty"`
	Depth      int    `json:"depth,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}
