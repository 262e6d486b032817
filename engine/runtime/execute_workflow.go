package runtime

// execute_workflow.go wires the registered agentic workflow handler
// (WorkflowHandler in handlers.go) to the actual agentic loop machinery: it
// resolves the agent registration, obtains the first planner result, and
// hands off to runLoop, which drives workflowLoop.run until the run produces
// a RunOutput.

import (
	"context"
	"fmt"
	"time"

	agent "durableagent.dev/engine"
	"durableagent.dev/engine/api"
	"durableagent.dev/engine/engine"
	"durableagent.dev/engine/interrupt"
	"durableagent.dev/engine/model"
	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/policy"
	"durableagent.dev/engine/run"
	"durableagent.dev/engine/tools"
)

// ExecuteWorkflow is the durable workflow entry point registered for every
// agent: it is invoked once per workflow execution (fresh run or replay) and
// runs to completion, pause, or failure. input is coerced by WorkflowHandler
// before this is called, but ExecuteWorkflow accepts *RunInput/RunInput/any
// the same way so it remains directly callable from tests and inline helpers.
func (r *Runtime) ExecuteWorkflow(wfCtx engine.WorkflowContext, input any) (any, error) {
	in, err := coerceRunInput(input)
	if err != nil {
		return nil, err
	}
	if in.AgentID == "" {
		return nil, fmt.Errorf("%w: missing agent id", ErrAgentNotFound)
	}
	reg, ok := r.agentByID(in.AgentID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, in.AgentID)
	}

	ctx := wfCtx.Context()
	runCtx := run.Context{
		RunID:            in.RunID,
		ParentToolCallID: in.ParentToolCallID,
		ParentRunID:      in.ParentRunID,
		ParentAgentID:    agent.Ident(in.ParentAgentID),
		SessionID:        in.SessionID,
		TurnID:           in.TurnID,
		Tool:             tools.Ident(in.Tool),
		ToolArgs:         in.ToolArgs,
		Labels:           in.Labels,
	}
	reader := r.memoryReader(ctx, in.AgentID, in.RunID)
	agentCtx := newAgentContext(agentContextOptions{
		runtime: r,
		agentID: in.AgentID,
		runID:   in.RunID,
		memory:  reader,
		turnID:  in.TurnID,
	})

	caps := initialCaps(reg.Policy)
	if in.Policy.PerTurnMaxToolCalls > 0 && (caps.MaxToolCalls == 0 || in.Policy.PerTurnMaxToolCalls < caps.MaxToolCalls) {
		caps.MaxToolCalls = in.Policy.PerTurnMaxToolCalls
		caps.RemainingToolCalls = in.Policy.PerTurnMaxToolCalls
	}

	var deadline time.Time
	if reg.Policy.TimeBudget > 0 {
		deadline = wfCtx.Now().Add(reg.Policy.TimeBudget)
	}

	planInput := planner.PlanInput{
		Messages:   in.Messages,
		RunContext: runCtx,
		Agent:      agentCtx,
		Events:     newPlannerEvents(r, in.AgentID, in.RunID, in.SessionID),
	}

	var initial *planner.PlanResult
	if reg.Planner != nil {
		initial, err = r.planStart(ctx, &reg, &planInput)
		if err != nil {
			return nil, fmt.Errorf("plan start: %w", err)
		}
	} else {
		if reg.PlanActivityName == "" {
			return nil, fmt.Errorf("agent %q missing plan activity", in.AgentID)
		}
		startReq := PlanActivityInput{
			AgentID:    in.AgentID,
			RunID:      in.RunID,
			Messages:   in.Messages,
			RunContext: runCtx,
		}
		planOut, planErr := r.runPlanActivity(wfCtx, reg.PlanActivityName, reg.PlanActivityOptions, startReq, deadline)
		if planErr != nil {
			return nil, fmt.Errorf("plan activity failed: %w", planErr)
		}
		if planOut != nil {
			initial = planOut.Result
		}
	}
	if initial == nil {
		return nil, fmt.Errorf("plan start returned nil result")
	}

	var seq *turnSequencer
	if in.TurnID != "" {
		seq = &turnSequencer{turnID: in.TurnID}
	}

	out, err := r.runLoop(wfCtx, reg, in, planInput, *initial, caps, deadline, 1, seq, nil, nil)
	if err != nil {
		return nil, err
	}
	return r.toAPIRunOutput(ctx, out)
}

// toAPIRunOutput converts the runtime's internal RunOutput into the
// workflow-boundary-safe api.RunOutput every engine's child-workflow Get
// decodes into. Tool results are re-encoded through the tool result codec
// (api.ToolEvent carries canonical JSON only) rather than crossing the
// boundary as planner.ToolResult's `any` Result field.
func (r *Runtime) toAPIRunOutput(ctx context.Context, out *RunOutput) (*api.RunOutput, error) {
	if out == nil {
		return nil, fmt.Errorf("run produced nil output")
	}
	events, err := r.encodeToolEvents(ctx, out.ToolEvents)
	if err != nil {
		return nil, err
	}
	return &api.RunOutput{
		AgentID:    agent.Ident(out.AgentID),
		RunID:      out.RunID,
		Final:      newTextAgentMessage(model.ConversationRole(out.Final.Role), out.Final.Content),
		ToolEvents: events,
		Notes:      out.Notes,
		Usage:      out.Usage,
	}, nil
}

// coerceRunInput normalizes the workflow input into *RunInput. Engines may
// hand back *RunInput, RunInput, or (after a JSON round-trip through a
// generic decoder) something else entirely; WorkflowHandler already performs
// that decode, so by the time it reaches here input is always one of the
// first two forms, but ExecuteWorkflow stays defensive for direct callers.
func coerceRunInput(input any) (*RunInput, error) {
	switch v := input.(type) {
	case *RunInput:
		if v == nil {
			return nil, fmt.Errorf("invalid run input: nil")
		}
		return v, nil
	case RunInput:
		return &v, nil
	default:
		return nil, fmt.Errorf("invalid run input: unsupported type %T", input)
	}
}

// runLoop builds the mutable iteration state for one run (or nested inline
// run) and drives the agentic do-while loop to completion via workflowLoop.
//
// stepIndex seeds IterationState.NextAttempt: 1 for a fresh run, or the next
// attempt number when called after a resume. seq, when non-nil, supplies the
// turnID events are tagged with. ctrl, when nil, is created fresh (a new run
// has no in-flight interrupts to track); callers resuming an existing
// interrupt controller pass it through explicitly.
func (r *Runtime) runLoop(
	wfCtx engine.WorkflowContext,
	reg AgentRegistration,
	input *RunInput,
	base planner.PlanInput,
	initial planner.PlanResult,
	caps policy.CapsState,
	deadline time.Time,
	stepIndex int,
	seq *turnSequencer,
	parentTracker *childTracker,
	ctrl *interrupt.Controller,
) (*RunOutput, error) {
	if ctrl == nil {
		ctrl = interrupt.NewController(wfCtx)
	}
	var turnID string
	if seq != nil {
		turnID = seq.turnID
	}

	opts := IterationOptions{}
	if reg.Policy.MaxSteps > 0 {
		maxSteps := reg.Policy.MaxSteps
		opts.MaxSteps = &maxSteps
	}

	toolsMeta := r.toolMetadata(initial.ToolCalls)

	st := newIterationState(
		input.RunID,
		input.AgentID,
		reg.ID,
		&initial,
		nil,
		model.TokenUsage{},
		toolsMeta,
		ModelConfig{},
		opts,
		caps,
		stepIndex,
	)

	deadlines := runDeadlines{Budget: deadline, Hard: deadline}

	loop := newWorkflowLoop(
		r,
		wfCtx,
		reg,
		input,
		&base,
		st,
		turnID,
		ctrl,
		parentTracker,
		deadlines,
		reg.ResumeActivityOptions,
		reg.ExecuteToolActivityOptions,
	)
	return loop.run()
}
