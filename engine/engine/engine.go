// Package engine defines the workflow engine abstractions and adapters for
// durable execution backends. It provides a pluggable interface so generated
// code can target Temporal, custom engines, or in-memory implementations
// without modification.
package engine

import (
	"context"
	"errors"
	"time"

	"durableagent.dev/engine/api"
	"durableagent.dev/engine/telemetry"
)

// Sentinel errors returned by Engine/WorkflowHandle implementations so
// runtime code can classify failures without depending on a specific
// backend's error types.
var (
	// ErrWorkflowNotFound indicates the target workflow ID/run ID has no
	// matching execution known to the engine.
	ErrWorkflowNotFound = errors.New("engine: workflow not found")
	// ErrWorkflowCompleted indicates an operation (e.g. a signal) could not be
	// delivered because the target workflow has already finished.
	ErrWorkflowCompleted = errors.New("engine: workflow already completed")
)

type (
	// Engine abstracts workflow registration and execution so adapters (Temporal,
	// in-memory, or custom) can be swapped without touching generated code.
	// Implementations translate these generic types into backend-specific primitives.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the engine. This is
		// typically called during service initialization before starting the worker pool.
		// Returns an error if the workflow name is already registered or if
		// registration fails.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition with the engine. Activities
		// are short-lived tasks invoked from workflows. This must be called during
		// initialization before starting workers. Returns an error if the activity
		// name conflicts or registration fails.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow initiates a new workflow execution and returns a handle for
		// interacting with it. The workflow ID in req must be unique for the engine
		// instance. Returns an error if the workflow name is not registered, the ID
		// conflicts with a running workflow, or if scheduling fails.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and default queue.
	// Generated code creates these during agent registration.
	WorkflowDefinition struct {
		// Name is the logical identifier registered with the engine (e.g., "AgentWorkflow").
		Name string
		// TaskQueue is the default queue used when starting new workflows. Workers
		// subscribe to this queue to receive workflow tasks.
		TaskQueue string
		// Handler is the workflow function invoked by the engine when the workflow executes.
		Handler WorkflowFunc
	}

	// WorkflowFunc is the generated workflow entry point. It receives a WorkflowContext
	// and arbitrary input, returning a result or error. The function must be deterministic:
	// it should produce the same execution sequence given the same inputs and activity results.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to the agentic-loop workflow within
	// the deterministic execution environment of a workflow. It wraps engine-specific
	// contexts (Temporal workflow.Context, in-memory contexts, etc.) and provides a
	// uniform API for the three activity shapes the loop actually schedules (a
	// fire-and-forget hook publish, a planner turn, a single tool call), signal
	// receipt for the pause/resume/clarification/confirmation/external-tool-result
	// surfaces, nested agent-as-tool execution, and observability.
	//
	// Implementations must ensure deterministic replay: every method here must
	// produce the same execution sequence when replayed. Direct I/O, random number
	// generation, or system time access within workflow code violates determinism
	// and causes workflow failures.
	//
	// Thread-safety: WorkflowContext is bound to a single workflow execution and
	// must not be shared across goroutines. Activity and signal operations are
	// serialized by the workflow engine.
	//
	// Lifecycle: Created by the engine when a workflow starts and remains valid
	// until the workflow completes or fails. Do not cache WorkflowContext outside
	// the workflow function scope.
	WorkflowContext interface {
		// Context returns the Go context for the workflow. In deterministic engines
		// (like Temporal), this is a special replay-aware context. Use this for
		// cancellation propagation into helpers that accept a plain context.Context.
		Context() context.Context

		// WorkflowID returns the unique identifier for this workflow execution.
		WorkflowID() string

		// RunID returns the engine-assigned run identifier, used for observability
		// and run-level correlation.
		RunID() string

		// SetQueryHandler registers a query handler under name so external callers can
		// poll in-flight workflow state without a signal round trip. A no-op on engines
		// that do not support queries.
		SetQueryHandler(name string, handler any) error

		// PublishHook schedules a fire-and-forget hook-delivery activity and waits for
		// it to be accepted. Hook activities never report domain results back into the
		// loop; only scheduling/execution failure is returned.
		PublishHook(ctx context.Context, call HookActivityCall) error

		// ExecutePlannerActivity schedules one PlanStart/PlanResume turn and blocks
		// until the planner activity returns.
		ExecutePlannerActivity(ctx context.Context, call PlannerActivityCall) (*api.PlanActivityOutput, error)

		// ExecuteToolActivity schedules a single tool call and blocks until it
		// completes. Equivalent to ExecuteToolActivityAsync followed by Future.Get.
		ExecuteToolActivity(ctx context.Context, call ToolActivityCall) (*api.ToolOutput, error)

		// ExecuteToolActivityAsync schedules a single tool call without blocking,
		// returning a Future the caller can Get() once every call in the current
		// fan-out batch has been scheduled. This is what lets the tool-call step fan
		// independent tool calls out in parallel while each remains individually
		// suspend-capable and memoized under its own ToolCallID.
		ExecuteToolActivityAsync(ctx context.Context, call ToolActivityCall) (Future[*api.ToolOutput], error)

		// StartChildWorkflow starts a nested agentic-loop workflow (agent-as-tool)
		// and returns a handle for collecting its result alongside sibling tool calls.
		StartChildWorkflow(ctx context.Context, req ChildWorkflowRequest) (ChildWorkflowHandle, error)

		// PauseRequests returns the receiver for external pause signals.
		PauseRequests() Receiver[api.PauseRequest]

		// ResumeRequests returns the receiver for external resume signals.
		ResumeRequests() Receiver[api.ResumeRequest]

		// ClarificationAnswers returns the receiver for answers to a paused
		// clarification await.
		ClarificationAnswers() Receiver[api.ClarificationAnswer]

		// ExternalToolResults returns the receiver for tool results supplied by a
		// system outside the workflow (awaited externally-executed tools).
		ExternalToolResults() Receiver[api.ToolResultsSet]

		// ConfirmationDecisions returns the receiver for operator decisions on a
		// paused confirmation await.
		ConfirmationDecisions() Receiver[api.ConfirmationDecision]

		// Logger returns a logger scoped to this workflow execution.
		Logger() telemetry.Logger

		// Metrics returns a metrics recorder for emitting workflow-scoped metrics.
		Metrics() telemetry.Metrics

		// Tracer returns a tracer for creating spans within the workflow.
		Tracer() telemetry.Tracer

		// Now returns the current workflow time in a deterministic manner. Implementations
		// must return a time source that is replay-safe (e.g., Temporal's workflow.Now).
		Now() time.Time

		// NewTimer starts a deterministic, replay-safe timer that fires after d and
		// returns a Future resolving to the time it fired. Used for step-budget
		// deadlines (the loop races tool/planner futures against this timer rather
		// than wall-clock time.Sleep).
		NewTimer(ctx context.Context, d time.Duration) (Future[time.Time], error)

		// Await blocks, in a replay-safe way, until condition reports true or ctx is
		// done. Used to park the workflow goroutine while waiting on a combination of
		// futures and signal receivers.
		Await(ctx context.Context, condition func() bool) error

		// WithCancel returns a derived WorkflowContext whose cancellation is
		// independent of the parent, plus a function that cancels it. Used to bound a
		// sub-scope (e.g. a finalizer grace period) without cancelling the run.
		WithCancel() (WorkflowContext, func())

		// Detached returns a WorkflowContext that survives cancellation of ctx, so
		// cleanup activities (closing spans, persisting a final snapshot) can still
		// run during a canceled run's finalization.
		Detached() WorkflowContext
	}

	// Future represents a pending result that becomes available once the
	// underlying activity or timer resolves. Futures enable parallel scheduling:
	// workflow code can launch several async operations and collect results later
	// via Get(), which blocks until the operation finishes.
	//
	// Thread-safety: Futures are bound to a single workflow execution and must not
	// be shared across workflow executions. Calling Get() multiple times is safe
	// and returns the same result/error on each call.
	//
	// Lifecycle: Valid from creation until the workflow completes. Get() must be
	// called before the workflow exits; abandoned futures leak workflow resources
	// in some engines. IsReady() enables polling without blocking.
	Future[T any] interface {
		// Get blocks until the operation completes and returns its result. Returns
		// an error if the operation fails after retries or if result decoding fails.
		// Calling Get multiple times on the same Future returns the same result/error.
		Get(ctx context.Context) (T, error)

		// IsReady returns true if the operation has completed (success or failure)
		// and Get() will not block.
		IsReady() bool
	}

	// Receiver delivers typed signal values sent to a running workflow (pause,
	// resume, clarification answers, external tool results, confirmation
	// decisions). Implementations must be replay-safe: Receive/ReceiveWithTimeout
	// must produce the same sequence of delivered values on replay as they did on
	// the original execution.
	Receiver[T any] interface {
		// Receive blocks until a value is delivered or ctx is done.
		Receive(ctx context.Context) (T, error)

		// ReceiveWithTimeout blocks until a value is delivered or timeout elapses,
		// using a deterministic workflow timer rather than wall-clock time.
		ReceiveWithTimeout(ctx context.Context, timeout time.Duration) (T, error)

		// ReceiveAsync returns the next pending value without blocking. The second
		// return value is false when nothing was pending.
		ReceiveAsync() (T, bool)
	}

	// HookActivityCall describes a fire-and-forget hook-delivery activity
	// invocation: Name must match a registered ActivityDefinition, Input is the
	// hook payload (typically api.HookActivityInput), Options overrides the
	// activity's registered defaults for this call.
	HookActivityCall struct {
		Name    string
		Input   any
		Options ActivityOptions
	}

	// PlannerActivityCall describes one PlanStart/PlanResume activity invocation.
	PlannerActivityCall struct {
		Name    string
		Input   any
		Options ActivityOptions
	}

	// ToolActivityCall describes one tool-execution activity invocation, keyed at
	// the call site by the tool call's ToolCallID so at-most-once execution is
	// preserved across replay.
	ToolActivityCall struct {
		Name    string
		Input   any
		Options ActivityOptions
	}

	// ChildWorkflowRequest starts a nested agentic-loop workflow for an
	// agent-as-tool call. ID should be derived from the parent ToolCallID so the
	// child run is memoized the same way any other tool call is.
	ChildWorkflowRequest struct {
		ID          string
		Workflow    string
		TaskQueue   string
		Input       any
		RunTimeout  time.Duration
		RetryPolicy RetryPolicy
	}

	// ChildWorkflowHandle allows the parent loop to collect a nested
	// agent-as-tool run's result alongside sibling tool-call futures.
	ChildWorkflowHandle interface {
		// Get blocks until the child run completes and returns its output.
		Get(ctx context.Context) (*api.RunOutput, error)

		// IsReady reports whether the child run has completed.
		IsReady() bool

		// Cancel requests cancellation of the nested run.
		Cancel(ctx context.Context) error

		// RunID returns the child run's workflow-engine run identifier, when known.
		RunID() string
	}

	// ActivityDefinition registers an activity handler with optional defaults.
	// Activities are stateless, short-lived tasks invoked from workflows.
	ActivityDefinition struct {
		// Name is the logical identifier for the activity (e.g., "ExecuteToolActivity").
		Name string
		// Handler executes the activity logic when invoked.
		Handler ActivityFunc
		// Options configures retry/timeout behavior for the activity.
		Options ActivityOptions
	}

	// ActivityFunc handles an activity invocation. It receives a standard Go context
	// and arbitrary input, returning a result or error. Unlike workflows, activities
	// can perform side effects (I/O, API calls, database access).
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry and timeouts for an activity.
	ActivityOptions struct {
		// Queue overrides the default activity queue. If empty, the activity inherits
		// the workflow's task queue.
		Queue string
		// RetryPolicy controls retry behavior for this activity. If zero-valued, the
		// engine uses its default retry policy.
		RetryPolicy RetryPolicy
		// Timeout bounds the total activity execution time, including retries. Zero
		// means no timeout (not recommended for production).
		Timeout time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution. Generated
	// code constructs these when agents are invoked.
	WorkflowStartRequest struct {
		// ID is the workflow identifier, which must be unique within the engine scope.
		// Typically derived from the agent ID and a UUID.
		ID string
		// Workflow names the registered workflow definition to execute. Engines that
		// support multiple workflows (one per agent) require this field.
		Workflow string
		// TaskQueue selects the queue to schedule the workflow on. Workers listening
		// on this queue will pick up the workflow.
		TaskQueue string
		// Input is the payload passed to the workflow handler (e.g., RunInput).
		Input any
		// Memo stores small diagnostic payloads alongside the workflow execution.
		// Engines like Temporal persist these for queries/visibility. Nil means no memo.
		Memo map[string]any
		// SearchAttributes captures indexed metadata used for visibility queries.
		// Nil means no attributes are set.
		SearchAttributes map[string]any
		// RetryPolicy controls automatic restarts of the workflow start attempt if
		// scheduling fails. Not to be confused with activity retries.
		RetryPolicy RetryPolicy
	}

	// WorkflowHandle allows callers to interact with a running workflow. Returned
	// by Engine.StartWorkflow, it provides methods to wait for completion, send
	// signals, or cancel execution.
	WorkflowHandle interface {
		// Wait blocks until the workflow completes, populating result with the workflow's
		// return value. Returns an error if the workflow fails, is cancelled, or if
		// deserialization of the result fails.
		Wait(ctx context.Context, result any) error

		// Signal sends an asynchronous message to the workflow. The workflow can listen
		// for signals using engine-specific APIs. Returns an error if the signal cannot
		// be delivered (e.g., workflow already completed).
		Signal(ctx context.Context, name string, payload any) error

		// Cancel requests cancellation of the workflow. The workflow's context will be
		// cancelled, and in-flight activities may be cancelled depending on the engine.
		// Returns an error if cancellation fails.
		Cancel(ctx context.Context) error
	}

	// Signaler is an optional capability an Engine implementation can provide to
	// deliver a signal directly to a workflow by ID, without first obtaining a
	// WorkflowHandle. Runtime code type-asserts an Engine against this interface
	// when it needs to signal a run it did not itself start (e.g. a pause or
	// resume request arriving from outside the process that started the run).
	// Engines that cannot address workflows without a handle may omit this.
	Signaler interface {
		// SignalByID delivers payload under signal name to the workflow identified
		// by workflowID/runID. An empty runID targets the workflow's current run.
		SignalByID(ctx context.Context, workflowID, runID, name string, payload any) error
	}

	// RetryPolicy defines retry semantics shared by workflows and activities.
	// Zero-valued fields mean the engine uses its defaults.
	RetryPolicy struct {
		// MaxAttempts caps the total number of retry attempts. Zero means unlimited retries.
		MaxAttempts int
		// InitialInterval is the delay before the first retry. Zero means use engine default.
		InitialInterval time.Duration
		// BackoffCoefficient multiplies the delay after each retry. Values < 1 are treated
		// as 1 (constant backoff). A value of 2 provides exponential backoff.
		BackoffCoefficient float64
	}
)
