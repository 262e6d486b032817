// Package inmem provides an in-memory implementation of the workflow engine
// for testing and development.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"durableagent.dev/engine/api"
	"durableagent.dev/engine/engine"
	"durableagent.dev/engine/telemetry"
)

type (
	// Engine is an in-memory, single-process implementation of engine.Engine.
	// Workflows run as plain goroutines and activities execute inline with a
	// simple retry/backoff loop; nothing here is replay-safe or durable across
	// process restarts. It exists for tests and local development, mirroring
	// the same engine.WorkflowContext contract the Temporal adapter serves in
	// production so runtime code is engine-agnostic.
	Engine struct {
		mu         sync.Mutex
		workflows  map[string]engine.WorkflowDefinition
		activities map[string]activityEntry

		logger  telemetry.Logger
		metrics telemetry.Metrics
		tracer  telemetry.Tracer
	}

	activityEntry struct {
		handler func(context.Context, any) (any, error)
		opts    engine.ActivityOptions
	}

	wfCtx struct {
		eng        *Engine
		ctx        context.Context
		workflowID string
		runID      string

		mu   sync.Mutex
		sigs map[string]*signal
	}

	signal struct {
		ch chan any
	}

	handle struct {
		done   chan struct{}
		mu     sync.Mutex
		result any
		err    error
		wf     *wfCtx
		cancel context.CancelFunc
	}

	childHandle struct {
		h      *handle
		runID  string
		cancel context.CancelFunc
	}

	future[T any] struct {
		ready  chan struct{}
		mu     sync.Mutex
		result T
		err    error
	}

	immediateFuture[T any] struct {
		v T
	}

	receiver[T any] struct {
		sig *signal
	}
)

// New returns a new in-memory engine.Engine suitable for local development,
// tests, and single-process runs. It is not deterministic or replay-safe and
// must not be used for production workloads.
func New() *Engine {
	return &Engine{
		workflows:  make(map[string]engine.WorkflowDefinition),
		activities: make(map[string]activityEntry),
		logger:     telemetry.NewNoopLogger(),
		metrics:    telemetry.NewNoopMetrics(),
		tracer:     telemetry.NewNoopTracer(),
	}
}

// RegisterWorkflow registers a workflow definition under its name.
func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem engine: invalid workflow definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("inmem engine: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

// RegisterActivity registers an activity definition under its name.
func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return errors.New("inmem engine: invalid activity definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.activities[def.Name]; dup {
		return fmt.Errorf("inmem engine: activity %q already registered", def.Name)
	}
	e.activities[def.Name] = activityEntry{handler: def.Handler, opts: def.Options}
	return nil
}

// RegisterPlannerActivity registers a typed planner activity (PlanStart/PlanResume),
// adapting it to the untyped ActivityFunc shape RegisterActivity stores.
func (e *Engine) RegisterPlannerActivity(
	ctx context.Context,
	name string,
	opts engine.ActivityOptions,
	fn func(context.Context, *api.PlanActivityInput) (*api.PlanActivityOutput, error),
) error {
	if name == "" || fn == nil {
		return errors.New("inmem engine: invalid planner activity definition")
	}
	return e.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: name,
		Options: opts,
		Handler: func(c context.Context, input any) (any, error) {
			in, err := coercePlanActivityInput(input)
			if err != nil {
				return nil, err
			}
			return fn(c, in)
		},
	})
}

// RegisterExecuteToolActivity registers a typed execute_tool activity.
func (e *Engine) RegisterExecuteToolActivity(
	ctx context.Context,
	name string,
	opts engine.ActivityOptions,
	fn func(context.Context, *api.ToolInput) (*api.ToolOutput, error),
) error {
	if name == "" || fn == nil {
		return errors.New("inmem engine: invalid execute tool activity definition")
	}
	return e.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: name,
		Options: opts,
		Handler: func(c context.Context, input any) (any, error) {
			in, err := coerceToolInput(input)
			if err != nil {
				return nil, err
			}
			return fn(c, in)
		},
	})
}

func coercePlanActivityInput(input any) (*api.PlanActivityInput, error) {
	switch v := input.(type) {
	case *api.PlanActivityInput:
		if v == nil {
			return nil, errors.New("inmem engine: nil planner activity input")
		}
		return v, nil
	case api.PlanActivityInput:
		return &v, nil
	default:
		return nil, fmt.Errorf("inmem engine: unexpected planner activity input type %T", input)
	}
}

func coerceToolInput(input any) (*api.ToolInput, error) {
	switch v := input.(type) {
	case *api.ToolInput:
		if v == nil {
			return nil, errors.New("inmem engine: nil tool activity input")
		}
		return v, nil
	case api.ToolInput:
		return &v, nil
	default:
		return nil, fmt.Errorf("inmem engine: unexpected tool activity input type %T", input)
	}
}

// StartWorkflow launches a workflow handler on its own goroutine and returns a
// handle for waiting, signaling, and cancellation.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	if req.Workflow == "" {
		return nil, errors.New("inmem engine: workflow name is required")
	}
	if req.ID == "" {
		return nil, errors.New("inmem engine: workflow id is required")
	}
	e.mu.Lock()
	def, ok := e.workflows[req.Workflow]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("inmem engine: workflow %q not registered", req.Workflow)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	wf := &wfCtx{
		eng:        e,
		ctx:        runCtx,
		workflowID: req.ID,
		runID:      req.ID,
		sigs:       make(map[string]*signal),
	}
	h := &handle{done: make(chan struct{}), wf: wf, cancel: cancel}

	go func() {
		defer cancel()
		defer close(h.done)
		res, err := def.Handler(wf, req.Input)
		h.mu.Lock()
		h.result = res
		h.err = err
		h.mu.Unlock()
	}()

	return h, nil
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		assignResult(result, h.result)
		return h.err
	}
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	sig := h.wf.signalChannel(name)
	select {
	case sig.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return engine.ErrWorkflowCompleted
	}
}

func (h *handle) Cancel(_ context.Context) error {
	h.cancel()
	return nil
}

func (w *wfCtx) Context() context.Context {
	return engine.WithWorkflowContext(w.ctx, w)
}

func (w *wfCtx) WorkflowID() string { return w.workflowID }
func (w *wfCtx) RunID() string      { return w.runID }

func (w *wfCtx) SetQueryHandler(_ string, _ any) error { return nil }

func (w *wfCtx) Logger() telemetry.Logger   { return w.eng.logger }
func (w *wfCtx) Metrics() telemetry.Metrics { return w.eng.metrics }
func (w *wfCtx) Tracer() telemetry.Tracer   { return w.eng.tracer }
func (w *wfCtx) Now() time.Time             { return time.Now() }

func (w *wfCtx) PublishHook(ctx context.Context, call engine.HookActivityCall) error {
	if call.Name == "" {
		return errors.New("inmem engine: hook activity name is required")
	}
	var ignored struct{}
	_, err := w.runActivity(ctx, call.Name, call.Input, call.Options)
	if err != nil {
		return err
	}
	_ = ignored
	return nil
}

func (w *wfCtx) ExecutePlannerActivity(ctx context.Context, call engine.PlannerActivityCall) (*api.PlanActivityOutput, error) {
	if call.Name == "" {
		return nil, errors.New("inmem engine: planner activity name is required")
	}
	res, err := w.runActivity(ctx, call.Name, call.Input, call.Options)
	if err != nil {
		return nil, err
	}
	out, ok := res.(*api.PlanActivityOutput)
	if !ok {
		return nil, fmt.Errorf("inmem engine: planner activity %q returned unexpected type %T", call.Name, res)
	}
	return out, nil
}

func (w *wfCtx) ExecuteToolActivity(ctx context.Context, call engine.ToolActivityCall) (*api.ToolOutput, error) {
	fut, err := w.ExecuteToolActivityAsync(ctx, call)
	if err != nil {
		return nil, err
	}
	return fut.Get(ctx)
}

func (w *wfCtx) ExecuteToolActivityAsync(ctx context.Context, call engine.ToolActivityCall) (engine.Future[*api.ToolOutput], error) {
	if call.Name == "" {
		return nil, errors.New("inmem engine: tool activity name is required")
	}
	f := &future[*api.ToolOutput]{ready: make(chan struct{})}
	go func() {
		defer close(f.ready)
		res, err := w.runActivity(ctx, call.Name, call.Input, call.Options)
		f.mu.Lock()
		defer f.mu.Unlock()
		if err != nil {
			f.err = err
			return
		}
		out, ok := res.(*api.ToolOutput)
		if !ok {
			f.err = fmt.Errorf("inmem engine: tool activity %q returned unexpected type %T", call.Name, res)
			return
		}
		f.result = out
	}()
	return f, nil
}

// runActivity looks up an activity by name and runs it through the
// retry/backoff loop configured by opts (falling back to the activity's
// registered defaults).
func (w *wfCtx) runActivity(ctx context.Context, name string, input any, opts engine.ActivityOptions) (any, error) {
	w.eng.mu.Lock()
	act, ok := w.eng.activities[name]
	w.eng.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("inmem engine: activity %q not registered", name)
	}
	policy := mergeRetryPolicies(act.opts.RetryPolicy, opts.RetryPolicy)
	return runActivityWithRetry(ctx, act.handler, input, policy)
}

func mergeRetryPolicies(base, override engine.RetryPolicy) engine.RetryPolicy {
	result := base
	if override.MaxAttempts != 0 {
		result.MaxAttempts = override.MaxAttempts
	}
	if override.InitialInterval != 0 {
		result.InitialInterval = override.InitialInterval
	}
	if override.BackoffCoefficient != 0 {
		result.BackoffCoefficient = override.BackoffCoefficient
	}
	return result
}

// runActivityWithRetry runs handler, retrying per policy on retriable
// failures. This engine has no native durable-timer/backoff machinery of its
// own (unlike the Temporal adapter, which gets retry scheduling for free from
// the Temporal server), so it implements the "retry up to MaxAttempts,
// backoff between attempts" contract directly: a fresh attempt is a fresh
// call to handler, and the inter-attempt delay uses a token-bucket
// rate.Limiter rather than time.Sleep so the wait is cancellable via ctx like
// every other engine operation.
func runActivityWithRetry(
	ctx context.Context,
	handler func(context.Context, any) (any, error),
	input any,
	policy engine.RetryPolicy,
) (any, error) {
	delay := policy.InitialInterval
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	coeff := policy.BackoffCoefficient
	if coeff < 1 {
		coeff = 1
	}
	for attempt := 1; ; attempt++ {
		res, err := handler(ctx, input)
		if err == nil {
			return res, nil
		}
		if engine.IsNonRetriable(err) {
			return res, err
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return res, err
		}
		limiter := rate.NewLimiter(rate.Every(delay), 1)
		limiter.Reserve() // drain the limiter's initial free token so Wait below actually blocks ~delay
		if werr := limiter.Wait(ctx); werr != nil {
			return res, werr
		}
		delay = time.Duration(float64(delay) * coeff)
	}
}

func (w *wfCtx) StartChildWorkflow(ctx context.Context, req engine.ChildWorkflowRequest) (engine.ChildWorkflowHandle, error) {
	h, err := w.eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:          req.ID,
		Workflow:    req.Workflow,
		TaskQueue:   req.TaskQueue,
		Input:       req.Input,
		RunTimeout:  req.RunTimeout,
		RetryPolicy: req.RetryPolicy,
	})
	if err != nil {
		return nil, err
	}
	inner, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("inmem engine: unexpected workflow handle type %T", h)
	}
	return &childHandle{h: inner, runID: req.ID}, nil
}

func (c *childHandle) Get(ctx context.Context) (*api.RunOutput, error) {
	var out *api.RunOutput
	if err := c.h.Wait(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *childHandle) IsReady() bool {
	select {
	case <-c.h.done:
		return true
	default:
		return false
	}
}

func (c *childHandle) Cancel(ctx context.Context) error { return c.h.Cancel(ctx) }
func (c *childHandle) RunID() string                    { return c.runID }

func (w *wfCtx) PauseRequests() engine.Receiver[api.PauseRequest] {
	return &receiver[api.PauseRequest]{sig: w.signalChannel(api.SignalPause)}
}

func (w *wfCtx) ResumeRequests() engine.Receiver[api.ResumeRequest] {
	return &receiver[api.ResumeRequest]{sig: w.signalChannel(api.SignalResume)}
}

func (w *wfCtx) ClarificationAnswers() engine.Receiver[api.ClarificationAnswer] {
	return &receiver[api.ClarificationAnswer]{sig: w.signalChannel(api.SignalProvideClarification)}
}

func (w *wfCtx) ExternalToolResults() engine.Receiver[api.ToolResultsSet] {
	return &receiver[api.ToolResultsSet]{sig: w.signalChannel(api.SignalProvideToolResults)}
}

func (w *wfCtx) ConfirmationDecisions() engine.Receiver[api.ConfirmationDecision] {
	return &receiver[api.ConfirmationDecision]{sig: w.signalChannel(api.SignalProvideConfirmation)}
}

func (w *wfCtx) signalChannel(name string) *signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sigs[name]
	if !ok {
		s = &signal{ch: make(chan any, 16)}
		w.sigs[name] = s
	}
	return s
}

func (w *wfCtx) NewTimer(ctx context.Context, d time.Duration) (engine.Future[time.Time], error) {
	now := time.Now()
	if d <= 0 {
		return immediateFuture[time.Time]{v: now}, nil
	}
	f := &future[time.Time]{ready: make(chan struct{})}
	go func() {
		defer close(f.ready)
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case fireAt := <-t.C:
			f.mu.Lock()
			f.result = fireAt
			f.mu.Unlock()
		case <-ctx.Done():
			f.mu.Lock()
			f.err = ctx.Err()
			f.mu.Unlock()
		}
	}()
	return f, nil
}

func (w *wfCtx) Await(ctx context.Context, condition func() bool) error {
	if condition == nil {
		return errors.New("inmem engine: await condition is required")
	}
	if condition() {
		return nil
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

func (w *wfCtx) WithCancel() (engine.WorkflowContext, func()) {
	cctx, cancel := context.WithCancel(w.ctx)
	return &wfCtx{eng: w.eng, ctx: cctx, workflowID: w.workflowID, runID: w.runID, sigs: w.sigs}, cancel
}

func (w *wfCtx) Detached() engine.WorkflowContext {
	return &wfCtx{
		eng:        w.eng,
		ctx:        context.WithoutCancel(w.ctx),
		workflowID: w.workflowID,
		runID:      w.runID,
		sigs:       w.sigs,
	}
}

func (f *future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-f.ready:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, f.err
	}
}

func (f *future[T]) IsReady() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

func (f immediateFuture[T]) Get(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return f.v, nil
}

func (f immediateFuture[T]) IsReady() bool { return true }

func (r *receiver[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v := <-r.sig.ch:
		out, ok := v.(T)
		if !ok {
			return zero, fmt.Errorf("inmem engine: unexpected signal payload type %T", v)
		}
		return out, nil
	}
}

func (r *receiver[T]) ReceiveWithTimeout(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	if timeout <= 0 {
		return zero, context.DeadlineExceeded
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, context.DeadlineExceeded
	case v := <-r.sig.ch:
		out, ok := v.(T)
		if !ok {
			return zero, fmt.Errorf("inmem engine: unexpected signal payload type %T", v)
		}
		return out, nil
	}
}

func (r *receiver[T]) ReceiveAsync() (T, bool) {
	var zero T
	select {
	case v := <-r.sig.ch:
		out, ok := v.(T)
		if !ok {
			return zero, false
		}
		return out, true
	default:
		return zero, false
	}
}

func assignResult(dst, src any) {
	switch d := dst.(type) {
	case nil:
		return
	case **api.RunOutput:
		if s, ok := src.(*api.RunOutput); ok {
			*d = s
		}
	case *any:
		*d = src
	}
}
