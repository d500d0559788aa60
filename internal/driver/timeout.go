// timeout.go — Per-operation timeout wrapper for Driver methods (spec §4.3:
// "every operation is wrapped in a 30-second timeout"). Adapted from the
// Fast/Slow timeout split in internal/bridge/timeout.go, collapsed to the
// Driver's single fixed budget since every CDP round-trip here carries the
// same 30s ceiling regardless of operation.
package driver

import (
	"context"
	"time"
)

// OpTimeout is the hard ceiling applied to every Driver operation.
const OpTimeout = 30 * time.Second

// HealthTimeout bounds the liveness probe (spec §4.3).
const HealthTimeout = 3 * time.Second

// withTimeout runs fn with a deadline of OpTimeout. If fn does not return
// before the deadline, a *CDPError named after op is returned; fn's
// goroutine is abandoned (CDP calls are not cancellable mid-flight through
// playwright-go, so the caller must treat a timeout as "result unknown,
// not reported to the client" per §5 cancellation semantics).
func withTimeout(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &CDPError{Op: op, Message: err.Error()}
		}
		return nil
	case <-ctx.Done():
		return &CDPError{Op: op, Message: "timed out after " + OpTimeout.String()}
	}
}
