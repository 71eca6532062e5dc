// Package audit bridges schedule lifecycle events to an audit trail
// backend. Each lifecycle hook emits a structured audit event through a
// caller-supplied [Recorder], so embedding applications can persist a
// record of what was scheduled, rewritten, cancelled, and dropped without
// wiring their audit store into the schedule machinery.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/evgenylyozin/safe-interval/hook"
	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// Compile-time interface checks.
var (
	_ hook.Extension         = (*Extension)(nil)
	_ hook.ScheduleArmed     = (*Extension)(nil)
	_ hook.ScheduleRewritten = (*Extension)(nil)
	_ hook.ScheduleCancelled = (*Extension)(nil)
	_ hook.InvocationDropped = (*Extension)(nil)
	_ hook.InvocationSettled = (*Extension)(nil)
)

// Audit actions.
const (
	ActionScheduleArmed     = "schedule.armed"
	ActionScheduleRewritten = "schedule.rewritten"
	ActionScheduleCancelled = "schedule.cancelled"
	ActionInvocationDropped = "invocation.dropped"
	ActionInvocationFailed  = "invocation.failed"
)

// Severity constants.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is a fully-formed audit record. Resource is always "schedule";
// ResourceID is the schedule ID the event concerns.
type Event struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Recorder is the interface audit backends must implement. It is defined
// locally so this package carries no dependency on any particular audit
// store — callers inject theirs at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used when the recorder itself fails.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithActions restricts recording to the given actions. Without it every
// action is recorded.
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// Extension emits an audit event for each schedule lifecycle change.
// Successful settles are deliberately not audited: they happen on every
// firing and belong in metrics, not an audit trail.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension recording through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit" }

// OnScheduleArmed implements hook.ScheduleArmed.
func (e *Extension) OnScheduleArmed(ctx context.Context, s *schedule.Schedule) error {
	return e.record(ctx, &Event{
		Action:     ActionScheduleArmed,
		Resource:   "schedule",
		ResourceID: s.ID.String(),
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
		Metadata:   scheduleMeta(s),
	})
}

// OnScheduleRewritten implements hook.ScheduleRewritten.
func (e *Extension) OnScheduleRewritten(ctx context.Context, s *schedule.Schedule) error {
	return e.record(ctx, &Event{
		Action:     ActionScheduleRewritten,
		Resource:   "schedule",
		ResourceID: s.ID.String(),
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
		Metadata:   scheduleMeta(s),
	})
}

// OnScheduleCancelled implements hook.ScheduleCancelled.
func (e *Extension) OnScheduleCancelled(ctx context.Context, sid id.ScheduleID, discarded int) error {
	return e.record(ctx, &Event{
		Action:     ActionScheduleCancelled,
		Resource:   "schedule",
		ResourceID: sid.String(),
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
		Metadata:   map[string]any{"discarded": discarded},
	})
}

// OnInvocationDropped implements hook.InvocationDropped. Drops are recorded
// at warning severity: every one of them is an invocation the caller asked
// for that never ran.
func (e *Extension) OnInvocationDropped(ctx context.Context, inv *schedule.Invocation, reason schedule.DropReason) error {
	return e.record(ctx, &Event{
		Action:     ActionInvocationDropped,
		Resource:   "schedule",
		ResourceID: inv.Schedule.String(),
		Outcome:    OutcomeFailure,
		Severity:   SeverityWarning,
		Reason:     string(reason),
		Metadata:   map[string]any{"seq": inv.Seq},
	})
}

// OnInvocationSettled implements hook.InvocationSettled. Only failed
// settles are recorded.
func (e *Extension) OnInvocationSettled(ctx context.Context, inv *schedule.Invocation, settleErr error, elapsed time.Duration) error {
	if settleErr == nil {
		return nil
	}
	return e.record(ctx, &Event{
		Action:     ActionInvocationFailed,
		Resource:   "schedule",
		ResourceID: inv.Schedule.String(),
		Outcome:    OutcomeFailure,
		Severity:   SeverityWarning,
		Reason:     settleErr.Error(),
		Metadata: map[string]any{
			"seq":        inv.Seq,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

func scheduleMeta(s *schedule.Schedule) map[string]any {
	m := map[string]any{
		"kind": s.Kind.String(),
		"mode": s.Mode.String(),
	}
	if s.Key != "" {
		m["key"] = s.Key
	}
	if s.Spec != "" {
		m["spec"] = s.Spec
	} else {
		m["every_ms"] = s.Every.Milliseconds()
	}
	return m
}

// record applies the action filter and hands the event to the recorder.
// Recorder failures are logged, never propagated: a broken audit backend
// must not disturb scheduling.
func (e *Extension) record(ctx context.Context, evt *Event) error {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit record failed",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
