package planner

// TerminationReason categorizes why the runtime finalized a run without
// further tool calls, so finalizeWithPlanner can steer the planner with an
// appropriate hint and callers can distinguish a natural finish from a
// budget/cap cutoff in telemetry.
type TerminationReason string

const (
	// TerminationReasonTimeBudget means the run's time budget (or hard
	// deadline) was reached before the planner produced a tool-free result.
	TerminationReasonTimeBudget TerminationReason = "time_budget"

	// TerminationReasonAwaitTimeout means the run timed out waiting for
	// external input (clarification, confirmation, or provided tool results).
	TerminationReasonAwaitTimeout TerminationReason = "await_timeout"

	// TerminationReasonToolCap means the run exhausted its configured tool
	// call budget (RunPolicy.MaxToolCalls).
	TerminationReasonToolCap TerminationReason = "tool_cap"

	// TerminationReasonFailureCap means the run exceeded its consecutive
	// tool failure budget, or otherwise tripped hard-protection policy.
	TerminationReasonFailureCap TerminationReason = "failure_cap"

	// TerminationReasonMaxSteps means the agentic loop reached
	// effectiveMaxSteps while the planner's last step result was still
	// continued (more tool calls pending). This is not an error: the loop
	// completes successfully with whatever output has accumulated so far,
	// the same way TerminationReasonToolCap does for the tool-call budget.
	TerminationReasonMaxSteps TerminationReason = "max_steps"
)
