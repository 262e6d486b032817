package runtime

// workflow_state.go defines IterationState, the mutable state threaded through
// the agentic loop workflow for a single run.
//
// Contract:
// - IterationState is the durable record of one run's progress through the
//   outer agentic loop: init-iteration-state builds the first value (via
//   newIterationState), every pass through workflowLoop.run advances it
//   (recordStep), and effectiveMaxSteps/continuePredicate decide whether the
//   loop keeps going, mirroring the do-while predicate described for the
//   agentic loop workflow (continue while the last step is continued and the
//   iteration count is under the step cap).
// - Helpers mutate this state in place to keep function signatures compact
//   and to make state transitions explicit at call sites.

import (
	"durableagent.dev/engine/model"
	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/policy"
	"durableagent.dev/engine/transcript"
)

// defaultMaxSteps is effectiveMaxSteps' fallback when IterationOptions.MaxSteps
// is unset: options.maxSteps ?? 32.
const defaultMaxSteps = 32

type (
	// StepResult is the per-iteration summary appended to
	// IterationState.AccumulatedSteps: what the planner decided on that pass,
	// and whether the loop should keep iterating.
	StepResult struct {
		// ToolCalls is the set of tool calls the planner requested this step.
		ToolCalls []planner.ToolRequest
		// FinalResponse is set when the planner finished instead of
		// requesting more tool calls.
		FinalResponse *planner.FinalResponse
		// IsContinued is true when this step produced more work (tool calls
		// or an unresolved await) and the loop should run another iteration.
		IsContinued bool
	}

	// ModelConfig records which provider/model served the plan/resume calls
	// for this run, carried on IterationState so downstream steps (and
	// telemetry) can report it without re-deriving it from AgentRegistration.
	ModelConfig struct {
		Provider string
		Model    string
	}

	// IterationOptions are the per-run knobs governing the agentic loop's
	// termination behavior.
	IterationOptions struct {
		// MaxSteps overrides effectiveMaxSteps (options.maxSteps ?? 32). Nil
		// or <= 0 means use defaultMaxSteps.
		MaxSteps *int
	}

	// IterationState is the named agentic-loop state passed between the
	// outer workflow's steps: init-iteration-state produces the first value,
	// map-to-llm-input/extract-tool-calls/update-iteration-state read and
	// advance it each pass, and map-final-output reads it one last time.
	IterationState struct {
		// RunID, AgentID, AgentName identify the run this state belongs to.
		RunID     string
		AgentID   string
		AgentName string
		// MessageID is the id of the assistant message currently being
		// assembled for this iteration (set once the planner starts
		// responding, stable across tool-call sub-steps within a turn).
		MessageID string

		// MessageListState is the provider-facing message history for this
		// run, the same transcript the planner and finalize helpers expect.
		MessageListState []*model.Message
		// ToolsMetadata is the tool metadata the current planner turn was
		// evaluated against (names/tags/risk, used by policy decisions).
		ToolsMetadata []policy.ToolMetadata
		// ModelConfig records which model served this run's plan/resume calls.
		ModelConfig ModelConfig
		// Options carries the per-run iteration knobs (effectiveMaxSteps).
		Options IterationOptions
		// State is free-form per-run scratch state threaded between steps,
		// analogous to a workflow's suspend/resume payload.
		State map[string]any

		// IterationCount is the number of agentic-loop passes completed so
		// far. It must never exceed effectiveMaxSteps().
		IterationCount int
		// StepIndex strictly increases across both loop iterations and the
		// tool-call sub-steps within them.
		StepIndex int
		// AccumulatedSteps holds one StepResult per completed iteration;
		// len(AccumulatedSteps) == IterationCount.
		AccumulatedSteps []StepResult
		// AccumulatedUsage is the token usage summed across every plan/resume
		// call made so far in this run.
		AccumulatedUsage model.TokenUsage
		// LastStepResult is AccumulatedSteps' last element, or nil before the
		// first iteration completes.
		LastStepResult *StepResult

		// Caps is the current runtime policy cap state (remaining tool
		// budget, failure budget, etc.) -- distinct from, and checked
		// independently of, the iteration-count cap above.
		Caps policy.CapsState
		// NextAttempt is the attempt number to stamp on the next planner
		// activity request.
		NextAttempt int
		// Result is the current planner result being processed by the loop.
		Result *planner.PlanResult
		// Ledger is the provider transcript ledger used to merge
		// tool_use/tool_result into messages.
		Ledger *transcript.Ledger
		// ToolEvents are the accumulated tool results emitted over the
		// lifetime of this run.
		ToolEvents []*planner.ToolResult
	}
)

func newIterationState(
	runID, agentID, agentName string,
	result *planner.PlanResult,
	transcriptMsgs []*model.Message,
	usage model.TokenUsage,
	toolsMeta []policy.ToolMetadata,
	modelCfg ModelConfig,
	opts IterationOptions,
	caps policy.CapsState,
	nextAttempt int,
) *IterationState {
	return &IterationState{
		RunID:             runID,
		AgentID:           agentID,
		AgentName:         agentName,
		MessageListState:  transcriptMsgs,
		ToolsMetadata:     toolsMeta,
		ModelConfig:       modelCfg,
		Options:           opts,
		Caps:              caps,
		NextAttempt:       nextAttempt,
		AccumulatedUsage:  usage,
		Result:            result,
		Ledger:            transcript.FromModelMessages(transcriptMsgs),
	}
}

// effectiveMaxSteps resolves options.maxSteps ?? 32.
func (st *IterationState) effectiveMaxSteps() int {
	if st.Options.MaxSteps != nil && *st.Options.MaxSteps > 0 {
		return *st.Options.MaxSteps
	}
	return defaultMaxSteps
}

// recordStep appends one completed iteration to AccumulatedSteps and advances
// IterationCount/StepIndex/LastStepResult. Called once per pass through the
// agentic loop, right after a planner result (initial or resumed) is known.
func (st *IterationState) recordStep(step StepResult) {
	st.AccumulatedSteps = append(st.AccumulatedSteps, step)
	st.LastStepResult = &st.AccumulatedSteps[len(st.AccumulatedSteps)-1]
	st.IterationCount++
	st.StepIndex++
}

// continuePredicate implements the agentic loop's do-while continuation
// check: continue while the last step is still producing work AND the
// iteration count has not reached effectiveMaxSteps. Reaching the cap while
// still continued is not a failure; the caller finalizes successfully with
// whatever output has accumulated (see TerminationReasonMaxSteps).
func (st *IterationState) continuePredicate() bool {
	if st.LastStepResult == nil {
		return true
	}
	return st.LastStepResult.IsContinued && st.IterationCount < st.effectiveMaxSteps()
}

// maxStepsReached reports whether the loop is being cut off by
// effectiveMaxSteps while the last step result was still continued.
func (st *IterationState) maxStepsReached() bool {
	return st.LastStepResult != nil && st.LastStepResult.IsContinued && st.IterationCount >= st.effectiveMaxSteps()
}
