// Package poolworkflow backs the warm-pool async refill with a Temporal
// workflow per sandbox type, grounded on the teacher's internal/beam/state.go
// long-running signal-driven workflow (SetSignalChannel + selector loop) and
// internal/beam/workflow.go's deadline/poll-interval pattern. Modeling refill
// as a workflow rather than a bare goroutine means "cleanup cancels the pool
// refill task (if any)" (§5) is a literal client.CancelWorkflow call, and the
// workflow's own history gives idempotent resume if the manager process
// restarts mid-refill.
package poolworkflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// WorkflowID returns the per-type workflow id the manager tracks so cleanup
// can cancel it.
func WorkflowID(sandboxType string) string {
	return "sandboxrt-pool-refill-" + sandboxType
}

// TaskQueue is the shared Temporal task queue for all pool-refill workflows.
const TaskQueue = "sandboxrt-pool"

// CreateOneActivityName is the registered activity name cmd/manager binds
// its real implementation to; referencing activities by name (rather than by
// function value) keeps the workflow package decoupled from the manager
// package that owns the actual container-creation logic.
const CreateOneActivityName = "sandboxrt.PoolCreateOne"

// RefillRequest signals the workflow to top up the pool for SandboxType by
// Count entries.
type RefillRequest struct {
	SandboxType string
	Count       int
}

var refillRetryPolicy = temporal.RetryPolicy{
	InitialInterval:    time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    30 * time.Second,
	MaximumAttempts:    3,
}

// PoolRefillWorkflow runs indefinitely per sandbox type, waiting on a
// "refill" signal channel and executing CreateOneActivityName up to the
// requested count, exactly mirroring internal/beam/state.go's
// workflow.GetSignalChannel + workflow.NewSelector loop shape.
func PoolRefillWorkflow(ctx workflow.Context, sandboxType string) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &refillRetryPolicy,
	})

	refillCh := workflow.GetSignalChannel(ctx, "refill")
	for {
		selector := workflow.NewSelector(ctx)
		selector.AddReceive(refillCh, func(c workflow.ReceiveChannel, _ bool) {
			var req RefillRequest
			c.Receive(ctx, &req)
			for i := 0; i < req.Count; i++ {
				// Failures are logged by the activity itself and never abort
				// the loop — "refill failures must not affect the caller" (§5).
				_ = workflow.ExecuteActivity(ctx, CreateOneActivityName, req.SandboxType).Get(ctx, nil)
			}
		})
		selector.AddFuture(workflow.NewTimer(ctx, time.Hour), func(f workflow.Future) {
			_ = f.Get(ctx, nil)
		})
		selector.Select(ctx)
	}
}
