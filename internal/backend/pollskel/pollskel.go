// Package pollskel is the generic "poll until terminal state" helper the
// §9 design note asks for, generalizing the teacher's codexLoginWorkflow
// deadline-plus-sleep loop (internal/beam/workflow.go:
// workflow.Now(ctx).After(deadline) + workflow.Sleep(ctx, pollInterval)) into
// a plain context-respecting function. Each managed-runtime driver supplies
// one FetchStatus function, which backend/managedruntime uses both for
// create-time polling and for Inspect.
package pollskel

import (
	"context"
	"fmt"
	"time"
)

// FetchStatus retrieves the current status of a vendor-side operation.
type FetchStatus[S any] func(ctx context.Context) (S, error)

// IsTerminal reports whether status is a terminal state (ready/active,
// failed, or deleting per §4.1's managed-runtime terminal-state set).
type IsTerminal[S any] func(status S) bool

// Poll calls fetch repeatedly, sleeping interval between attempts, until
// isTerminal reports true or maxAttempts is exhausted. It returns the last
// observed status either way, matching §7's "Readiness timeout... includes
// the last observed status."
func Poll[S any](ctx context.Context, fetch FetchStatus[S], isTerminal IsTerminal[S], maxAttempts int, interval time.Duration) (S, error) {
	var last S
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		last, err = fetch(ctx)
		if err != nil {
			var zero S
			return zero, fmt.Errorf("pollskel: fetch status: %w", err)
		}
		if isTerminal(last) {
			return last, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
	return last, fmt.Errorf("pollskel: exceeded %d attempts without reaching a terminal state, last=%v", maxAttempts, last)
}
