package runtime

import (
	"context"
	"fmt"
	"time"

	"durableagent.dev/engine/engine"
)

// durable_ops.go implements the memoized-operation primitives the agentic
// loop workflow builds on: durable sleeps and retrying step execution backed
// by the workflow engine's replay-safe timer and activity retry policy. Each
// primitive is a thin wrapper so the loop code reads in terms of the
// operation it performs (sleep, retry-wrapped step) rather than the raw
// engine call underneath it.

// executeSleepDuration parks the workflow for d, returning once the timer
// fires or ctx is canceled. Negative durations are clamped to zero so a
// miscomputed deadline resolves immediately instead of erroring.
func executeSleepDuration(ctx context.Context, wfCtx engine.WorkflowContext, d time.Duration, sleepID string) error {
	if d < 0 {
		d = 0
	}
	t, err := wfCtx.NewTimer(ctx, d)
	if err != nil {
		return fmt.Errorf("sleep %s: %w", sleepID, err)
	}
	_, err = t.Get(ctx)
	if err != nil {
		return fmt.Errorf("sleep %s: %w", sleepID, err)
	}
	return nil
}

// executeSleepUntilDate parks the workflow until until, measured against the
// engine's deterministic clock (wfCtx.Now). If until has already passed, the
// resulting duration is negative and executeSleepDuration clamps it to zero.
func executeSleepUntilDate(ctx context.Context, wfCtx engine.WorkflowContext, until time.Time, sleepID string) error {
	return executeSleepDuration(ctx, wfCtx, until.Sub(wfCtx.Now()), sleepID)
}

// stepRetryConfig configures executeStepWithRetry. Retries counts additional
// attempts after the first (so Retries=2 allows up to 3 total attempts).
// Delay is the durable sleep inserted between attempts.
type stepRetryConfig struct {
	Retries int
	Delay   time.Duration
}

// stepOutcome is the tagged result of a retried step: exactly one of Result
// or Err is set once executeStepWithRetry returns without error from the
// sleep machinery itself.
type stepOutcome[T any] struct {
	Result T
	Err    error
}

// executeStepWithRetry runs step up to cfg.Retries+1 times, pausing cfg.Delay
// between attempts via executeSleepDuration. It returns the first successful
// outcome, or the last failure once attempts are exhausted. Each attempt is a
// fresh invocation of step; step is responsible for its own idempotency
// (typically by keying the underlying activity call on stepID plus an
// attempt-scoped suffix so a replay does not double-execute side effects).
func executeStepWithRetry[T any](ctx context.Context, wfCtx engine.WorkflowContext, stepID string, step func(ctx context.Context, attempt int) (T, error)) (stepOutcome[T], error) {
	return executeStepWithRetryConfig(ctx, wfCtx, stepID, stepRetryConfig{}, step)
}

// executeStepWithRetryConfig is executeStepWithRetry with explicit retry
// policy. A zero cfg runs the step exactly once, relying on the workflow
// engine's own activity-level RetryPolicy (configured on the underlying
// ActivityOptions) for any retries at the transport layer.
func executeStepWithRetryConfig[T any](ctx context.Context, wfCtx engine.WorkflowContext, stepID string, cfg stepRetryConfig, step func(ctx context.Context, attempt int) (T, error)) (stepOutcome[T], error) {
	attempts := cfg.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	var last stepOutcome[T]
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := step(ctx, attempt)
		if err == nil {
			return stepOutcome[T]{Result: result}, nil
		}
		last = stepOutcome[T]{Err: fmt.Errorf("step %s attempt %d/%d: %w", stepID, attempt+1, attempts, err)}
		if attempt == attempts-1 {
			break
		}
		if cfg.Delay > 0 {
			if sleepErr := executeSleepDuration(ctx, wfCtx, cfg.Delay, fmt.Sprintf("%s-retry-%d", stepID, attempt)); sleepErr != nil {
				return stepOutcome[T]{}, sleepErr
			}
		}
	}
	return last, last.Err
}
