package safeinterval

import (
	"time"

	"github.com/evgenylyozin/safe-interval/schedule"
)

// Config holds registrar-wide defaults. Per-registration Options override
// the queue settings for their own schedule.
type Config struct {
	// MaxQueueDepth caps each schedule's pending invocation queue.
	// Zero leaves queues unbounded.
	MaxQueueDepth int

	// Overflow decides what happens when an enqueue would exceed
	// MaxQueueDepth.
	Overflow schedule.OverflowPolicy

	// ShutdownTimeout is the maximum time Close waits for in-flight
	// invocations to settle.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueDepth:   0,
		Overflow:        schedule.OverflowDropOldest,
		ShutdownTimeout: 30 * time.Second,
	}
}
