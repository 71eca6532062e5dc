package safeinterval

import (
	"log/slog"

	"github.com/evgenylyozin/safe-interval/hook"
	"github.com/evgenylyozin/safe-interval/middleware"
	"github.com/evgenylyozin/safe-interval/schedule"
)

// Option configures a Registrar.
type Option func(*Registrar) error

// WithConfig replaces the registrar configuration wholesale.
func WithConfig(cfg Config) Option {
	return func(r *Registrar) error {
		r.cfg = cfg
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registrar) error {
		r.logger = logger
		return nil
	}
}

// WithStore sets the schedule store backend. Defaults to the in-memory
// store.
func WithStore(s schedule.Store) Option {
	return func(r *Registrar) error {
		r.store = s
		return nil
	}
}

// WithExtension registers a lifecycle hook extension (metrics recorder,
// stream broker, audit log). May be given multiple times; extensions are
// notified in registration order.
func WithExtension(e hook.Extension) Option {
	return func(r *Registrar) error {
		r.extensions = append(r.extensions, e)
		return nil
	}
}

// WithMiddleware appends invocation middleware. The built-in Recover
// middleware always runs outermost so a panicking callable settles its
// invocation instead of killing the drain goroutine.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Registrar) error {
		r.mws = append(r.mws, mws...)
		return nil
	}
}

// WithMaxQueueDepth sets the default pending-queue cap for schedules that
// do not override it. Zero means unbounded.
func WithMaxQueueDepth(n int) Option {
	return func(r *Registrar) error {
		r.cfg.MaxQueueDepth = n
		return nil
	}
}

// WithOverflowPolicy sets the default overflow policy for capped queues.
func WithOverflowPolicy(p schedule.OverflowPolicy) Option {
	return func(r *Registrar) error {
		r.cfg.Overflow = p
		return nil
	}
}
