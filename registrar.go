package safeinterval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/evgenylyozin/safe-interval/hook"
	"github.com/evgenylyozin/safe-interval/id"
	"github.com/evgenylyozin/safe-interval/middleware"
	"github.com/evgenylyozin/safe-interval/queue"
	"github.com/evgenylyozin/safe-interval/resolve"
	"github.com/evgenylyozin/safe-interval/schedule"
	"github.com/evgenylyozin/safe-interval/store/memory"
	"github.com/evgenylyozin/safe-interval/timer"
)

// CancelFunc cancels a registration. It is idempotent: the first call stops
// the registration's native timer, later calls do nothing. Invocations
// already enqueued still drain to completion unless the registration asked
// for queue discard; an invocation already in flight always settles.
type CancelFunc func()

// Options is the unified registration record. The convenience methods
// (Interval, Timeout, and friends) are thin wrappers over it.
type Options struct {
	// Key is the singleton identity. Optional: when empty, singleton
	// registration falls back to the callable's code pointer (see the
	// identity caveat in the package docs). Ignored by multiple-mode
	// registration.
	Key string

	// Callable is the function to schedule. Required.
	Callable schedule.Callable

	// Args are applied to the callable on every firing. Captured at
	// registration time: a rewrite changes arguments for future firings
	// only, invocations already queued keep the arguments they were
	// enqueued with.
	Args []any

	// Every is the repeat period (Interval true) or the one-shot delay
	// (Interval false). Ignored when Spec is set.
	Every time.Duration

	// Interval selects repeating (true) or one-shot (false) scheduling.
	Interval bool

	// Spec is an optional cron expression (5-field or "@every 30s"
	// descriptors) that replaces Every/Interval with cron-driven repeating
	// scheduling.
	Spec string

	// Callback receives each drained invocation's settled result. A
	// rewrite always overwrites the callback — including to nil — and
	// already-queued invocations settle through whichever callback is
	// current when they settle.
	Callback schedule.Callback

	// DiscardQueueOnCancel drops not-yet-started queued invocations when
	// this registration is cancelled or rewritten, instead of letting them
	// drain.
	DiscardQueueOnCancel bool

	// MaxQueueDepth caps this schedule's pending queue. Zero inherits the
	// registrar default; negative forces unbounded.
	MaxQueueDepth int

	// Overflow decides eviction when the queue is at MaxQueueDepth.
	Overflow schedule.OverflowPolicy

	// Rate and Burst rate-limit firings admitted to the queue
	// (firings/second, token bucket). Zero Rate disables limiting.
	Rate  float64
	Burst int
}

// registration tracks one live registration: its handles, its timer, and
// how to tear it down.
type registration struct {
	regID   id.RegistrationID
	schedID id.ScheduleID
	key     string // singleton identity; empty in multiple mode
	kind    schedule.Kind
	mode    schedule.Mode
	discard bool

	handle *timer.Handle
	once   sync.Once
}

// Registrar is the central coordinator: it resolves identities, owns the
// schedule store and resolve loop, arms native timers, and hands out cancel
// functions. Multiple independent registrars may coexist; they share
// nothing.
type Registrar struct {
	cfg        Config
	logger     *slog.Logger
	store      schedule.Store
	hooks      *hook.Registry
	loop       *resolve.Loop
	queues     *queue.Manager
	extensions []hook.Extension
	mws        []middleware.Middleware

	mu         sync.Mutex
	closed     bool
	singletons map[string]*registration // identity key → live singleton
	regs       map[string]*registration // registration ID → live registration
}

// New creates a Registrar with the given options.
func New(opts ...Option) (*Registrar, error) {
	r := &Registrar{
		cfg:        DefaultConfig(),
		logger:     slog.Default(),
		singletons: make(map[string]*registration),
		regs:       make(map[string]*registration),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.store == nil {
		r.store = memory.New()
	}

	r.hooks = hook.NewRegistry(r.logger)
	for _, e := range r.extensions {
		r.hooks.Register(e)
	}

	mws := append([]middleware.Middleware{middleware.Recover(r.logger)}, r.mws...)
	r.loop = resolve.New(r.store, r.hooks, r.logger, mws...)
	r.queues = queue.NewManager()

	return r, nil
}

// Hooks returns the extension registry, e.g. to register extensions after
// construction.
func (r *Registrar) Hooks() *hook.Registry { return r.hooks }

// Interval registers a singleton repeating schedule: the callable fires
// every period with the given args, invocations settling strictly in firing
// order. Registering the same identity again rewrites the live schedule.
func (r *Registrar) Interval(key string, fn schedule.Callable, period time.Duration, args ...any) (CancelFunc, error) {
	return r.Register(Options{Key: key, Callable: fn, Every: period, Interval: true, Args: args})
}

// Timeout registers a singleton one-shot schedule firing once after delay.
func (r *Registrar) Timeout(key string, fn schedule.Callable, delay time.Duration, args ...any) (CancelFunc, error) {
	return r.Register(Options{Key: key, Callable: fn, Every: delay, Args: args})
}

// Cron registers a singleton repeating schedule driven by a cron expression
// (5-field or "@every 30s" descriptors).
func (r *Registrar) Cron(key string, fn schedule.Callable, spec string, args ...any) (CancelFunc, error) {
	return r.Register(Options{Key: key, Callable: fn, Spec: spec, Args: args})
}

// IntervalMultiple registers an independent repeating schedule. Every call
// creates a new schedule: separate queue, separate drain, separate callback,
// no relation to any other registration of the same callable.
func (r *Registrar) IntervalMultiple(fn schedule.Callable, period time.Duration, args ...any) (CancelFunc, error) {
	return r.RegisterMultiple(Options{Callable: fn, Every: period, Interval: true, Args: args})
}

// TimeoutMultiple registers an independent one-shot schedule.
func (r *Registrar) TimeoutMultiple(fn schedule.Callable, delay time.Duration, args ...any) (CancelFunc, error) {
	return r.RegisterMultiple(Options{Callable: fn, Every: delay, Args: args})
}

// Register creates or rewrites a singleton schedule.
//
// On rewrite only the native timer is unconditionally replaced: invocations
// already queued under the previous registration keep draining with their
// old arguments (unless DiscardQueueOnCancel drops them first), and the
// callback is overwritten for everything that settles from now on. The
// superseded registration's cancel function becomes a no-op.
//
// Registering a one-shot over a live repeating identity (or vice versa)
// fails with ErrKindConflict rather than silently running two schedules for
// one identity.
func (r *Registrar) Register(opts Options) (CancelFunc, error) {
	kind, cronSched, err := r.resolveKind(opts)
	if err != nil {
		return nil, err
	}
	key, err := resolveIdentity(opts.Key, opts.Callable)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}

	existing := r.singletons[key]
	if existing != nil && existing.kind != kind {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q is live as %s, refusing %s", ErrKindConflict, key, existing.kind, kind)
	}

	rewrite := existing != nil
	var schedID id.ScheduleID
	if rewrite {
		// Replace the timer only; queue, drain flag, and callback slot
		// survive under the same schedule ID.
		existing.handle.Stop()
		delete(r.regs, existing.regID.String())
		schedID = existing.schedID
	} else {
		schedID = id.NewScheduleID()
	}

	s := r.buildSchedule(schedID, key, kind, schedule.ModeSingleton, opts)
	if err := r.store.Init(ctx, s); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	var discarded []*schedule.Invocation
	if rewrite && opts.DiscardQueueOnCancel {
		discarded, _ = r.store.ClearQueue(ctx, schedID)
	}

	if err := r.store.SetCallback(ctx, schedID, opts.Callback); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.queues.Configure(schedID, queue.Config{Rate: opts.Rate, Burst: opts.Burst})

	reg := &registration{
		regID:   id.NewRegistrationID(),
		schedID: schedID,
		key:     key,
		kind:    kind,
		mode:    schedule.ModeSingleton,
		discard: opts.DiscardQueueOnCancel,
	}
	reg.handle = r.arm(reg, s, cronSched, opts)
	r.singletons[key] = reg
	r.regs[reg.regID.String()] = reg
	r.mu.Unlock()

	for _, inv := range discarded {
		r.hooks.EmitInvocationDropped(ctx, inv, schedule.DropDiscarded)
	}
	if rewrite {
		r.hooks.EmitScheduleRewritten(ctx, s)
	} else {
		r.hooks.EmitScheduleArmed(ctx, s)
	}

	r.logger.Info("schedule registered",
		slog.String("schedule_id", schedID.String()),
		slog.String("key", key),
		slog.String("kind", kind.String()),
		slog.Duration("every", opts.Every),
		slog.Bool("rewrite", rewrite),
	)

	return r.cancelFunc(reg), nil
}

// RegisterMultiple creates an independent schedule with no identity lookup:
// two RegisterMultiple calls for the same callable are fully unrelated.
func (r *Registrar) RegisterMultiple(opts Options) (CancelFunc, error) {
	kind, cronSched, err := r.resolveKind(opts)
	if err != nil {
		return nil, err
	}
	if opts.Callable == nil {
		return nil, ErrNilCallable
	}

	ctx := context.Background()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}

	schedID := id.NewScheduleID()
	s := r.buildSchedule(schedID, "", kind, schedule.ModeMultiple, opts)
	if err := r.store.Init(ctx, s); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if err := r.store.SetCallback(ctx, schedID, opts.Callback); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.queues.Configure(schedID, queue.Config{Rate: opts.Rate, Burst: opts.Burst})

	reg := &registration{
		regID:   id.NewRegistrationID(),
		schedID: schedID,
		kind:    kind,
		mode:    schedule.ModeMultiple,
		discard: opts.DiscardQueueOnCancel,
	}
	reg.handle = r.arm(reg, s, cronSched, opts)
	r.regs[reg.regID.String()] = reg
	r.mu.Unlock()

	r.hooks.EmitScheduleArmed(ctx, s)

	r.logger.Info("schedule registered",
		slog.String("schedule_id", schedID.String()),
		slog.String("kind", kind.String()),
		slog.String("mode", "multiple"),
		slog.Duration("every", opts.Every),
	)

	return r.cancelFunc(reg), nil
}

// Close cancels every live registration, waits up to ShutdownTimeout for
// in-flight drains to settle, and notifies Shutdown extensions. Idempotent.
func (r *Registrar) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	live := make([]*registration, 0, len(r.regs))
	for _, reg := range r.regs {
		live = append(live, reg)
	}
	r.singletons = make(map[string]*registration)
	r.regs = make(map[string]*registration)
	r.mu.Unlock()

	bg := context.Background()
	for _, reg := range live {
		reg.handle.Stop()
		_ = r.store.Disarm(bg, reg.schedID)
		r.queues.Remove(reg.schedID)
	}

	if r.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ShutdownTimeout)
		defer cancel()
	}
	loopErr := r.loop.Close(ctx)

	r.hooks.EmitShutdown(bg)
	storeErr := r.store.Close()

	r.logger.Info("registrar closed", slog.Int("cancelled", len(live)))

	if loopErr != nil {
		return loopErr
	}
	return storeErr
}

// resolveKind validates the scheduling fields of an Options record and
// returns the schedule kind (plus the parsed cron schedule for KindCron).
func (r *Registrar) resolveKind(opts Options) (schedule.Kind, timer.CronSchedule, error) {
	if opts.Callable == nil {
		return 0, nil, ErrNilCallable
	}

	if opts.Spec != "" {
		sched, err := timer.ParseSpec(opts.Spec)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %q: %v", ErrInvalidSpec, opts.Spec, err)
		}
		return schedule.KindCron, sched, nil
	}

	if opts.Interval {
		if opts.Every <= 0 {
			return 0, nil, ErrInvalidPeriod
		}
		return schedule.KindInterval, nil, nil
	}

	if opts.Every < 0 {
		return 0, nil, ErrInvalidPeriod
	}
	return schedule.KindTimeout, nil, nil
}

// buildSchedule assembles the schedule record, applying registrar defaults
// to the queue settings.
func (r *Registrar) buildSchedule(sid id.ScheduleID, key string, kind schedule.Kind, mode schedule.Mode, opts Options) *schedule.Schedule {
	depth := opts.MaxQueueDepth
	overflow := opts.Overflow
	switch {
	case depth < 0:
		depth = 0
	case depth == 0:
		depth = r.cfg.MaxQueueDepth
		if opts.Overflow == schedule.OverflowDropOldest {
			overflow = r.cfg.Overflow
		}
	}

	return &schedule.Schedule{
		ID:        sid,
		Key:       key,
		Kind:      kind,
		Mode:      mode,
		Every:     opts.Every,
		Spec:      opts.Spec,
		MaxDepth:  depth,
		Overflow:  overflow,
		CreatedAt: time.Now().UTC(),
	}
}

// arm wires a native timer to the enqueue path. The fire closure captures
// the callable and arguments in effect at registration time, so a rewrite
// never changes what already-armed firings will run.
func (r *Registrar) arm(reg *registration, s *schedule.Schedule, cronSched timer.CronSchedule, opts Options) *timer.Handle {
	callable := opts.Callable
	args := slices.Clone(opts.Args)
	sid := reg.schedID

	fire := func(at time.Time) {
		ctx := context.Background()
		r.hooks.EmitTimerFired(ctx, sid, at)

		inv := &schedule.Invocation{
			Schedule: sid,
			FiredAt:  at,
			Run: func(ctx context.Context) (any, error) {
				return callable(ctx, args...)
			},
		}

		if !r.queues.Allow(sid) {
			r.hooks.EmitInvocationDropped(ctx, inv, schedule.DropRateLimited)
			return
		}

		dropped, err := r.store.Enqueue(ctx, sid, inv)
		if err != nil {
			// Disarmed or torn down: a late firing must not enqueue.
			return
		}
		if dropped != nil {
			r.hooks.EmitInvocationDropped(ctx, dropped, schedule.DropOverflow)
			if dropped == inv {
				return
			}
		}

		depth, _ := r.store.Depth(ctx, sid)
		r.hooks.EmitInvocationEnqueued(ctx, inv, depth)
		r.loop.Trigger(ctx, sid)
	}

	switch s.Kind {
	case schedule.KindTimeout:
		return timer.ArmTimeout(s.Every, func(at time.Time) {
			fire(at)
			r.completeOneShot(reg)
		})
	case schedule.KindCron:
		return timer.ArmCron(cronSched, fire)
	default:
		return timer.ArmInterval(s.Every, fire)
	}
}

// completeOneShot retires a timeout registration after its single firing:
// no more firings can arrive, so the schedule drains whatever it holds and
// tears down, and the identity becomes free for re-registration of either
// kind. A registration superseded by a rewrite while its firing was in
// flight must not touch the slot: the schedule ID is shared across the
// rewrite and now belongs to the newer registration.
func (r *Registrar) completeOneShot(reg *registration) {
	r.mu.Lock()
	if reg.key != "" && r.singletons[reg.key] != reg {
		r.mu.Unlock()
		return
	}
	if reg.key != "" {
		delete(r.singletons, reg.key)
	}
	delete(r.regs, reg.regID.String())
	r.mu.Unlock()

	_ = r.store.Disarm(context.Background(), reg.schedID)
	r.queues.Remove(reg.schedID)
}

// cancelFunc builds the idempotent cancel closure for a registration.
func (r *Registrar) cancelFunc(reg *registration) CancelFunc {
	return func() {
		reg.once.Do(func() { r.cancel(reg) })
	}
}

// cancel tears down one registration. A superseded singleton registration
// (rewritten since this cancel func was handed out) is a no-op: its timer is
// already stopped and the schedule now belongs to the newer registration.
// Likewise for a timeout registration already retired by its own firing.
func (r *Registrar) cancel(reg *registration) {
	reg.handle.Stop()

	r.mu.Lock()
	if reg.key != "" {
		if cur := r.singletons[reg.key]; cur != reg {
			r.mu.Unlock()
			return
		}
		delete(r.singletons, reg.key)
	} else if _, live := r.regs[reg.regID.String()]; !live {
		r.mu.Unlock()
		return
	}
	delete(r.regs, reg.regID.String())
	r.mu.Unlock()

	ctx := context.Background()
	discarded := 0
	if reg.discard {
		dropped, _ := r.store.ClearQueue(ctx, reg.schedID)
		discarded = len(dropped)
		for _, inv := range dropped {
			r.hooks.EmitInvocationDropped(ctx, inv, schedule.DropDiscarded)
		}
	}

	_ = r.store.Disarm(ctx, reg.schedID)
	r.queues.Remove(reg.schedID)
	r.hooks.EmitScheduleCancelled(ctx, reg.schedID, discarded)

	r.logger.Info("schedule cancelled",
		slog.String("schedule_id", reg.schedID.String()),
		slog.String("kind", reg.kind.String()),
		slog.Int("discarded", discarded),
	)
}
