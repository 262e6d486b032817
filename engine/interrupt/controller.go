// Package interrupt provides workflow signal handling for pausing and resuming
// agent runs. It exposes a Controller that workflows can use to react to
// external pause/resume requests delivered through the engine's typed signal
// receivers.
package interrupt

import (
	"context"
	"errors"
	"time"

	"durableagent.dev/engine/api"
	"durableagent.dev/engine/engine"
)

const (
	// SignalPause is the workflow signal name used to pause a run.
	SignalPause = api.SignalPause
	// SignalResume is the workflow signal name used to resume a paused run.
	SignalResume = api.SignalResume

	// SignalProvideClarification delivers a ClarificationAnswer to a waiting run.
	SignalProvideClarification = api.SignalProvideClarification
	// SignalProvideToolResults delivers external tool results to a waiting run.
	SignalProvideToolResults = api.SignalProvideToolResults
	// SignalProvideConfirmation delivers a ConfirmationDecision to a waiting run.
	SignalProvideConfirmation = api.SignalProvideConfirmation
)

type (
	// PauseRequest carries metadata attached to a pause signal.
	PauseRequest = api.PauseRequest

	// ResumeRequest carries metadata attached to a resume signal.
	ResumeRequest = api.ResumeRequest

	// ClarificationAnswer carries a typed answer for a paused clarification request.
	ClarificationAnswer = api.ClarificationAnswer

	// ToolResultsSet carries results for an external tools await request.
	ToolResultsSet = api.ToolResultsSet

	// ConfirmationDecision carries a typed decision for a paused confirmation request.
	ConfirmationDecision = api.ConfirmationDecision

	// Controller drains runtime interrupt signals and exposes helpers the
	// workflow loop can call to react to pause/resume requests. It is a thin
	// wrapper over the WorkflowContext's typed signal receivers so the loop
	// never has to know about per-engine signal channel plumbing.
	Controller struct {
		wfCtx engine.WorkflowContext
	}
)

// NewController builds a controller wired to the workflow context's typed
// signal receivers.
func NewController(wfCtx engine.WorkflowContext) *Controller {
	return &Controller{wfCtx: wfCtx}
}

// PollPause attempts to dequeue a pause request without blocking.
func (c *Controller) PollPause() (*PauseRequest, bool) {
	if c == nil || c.wfCtx == nil {
		return nil, false
	}
	req, ok := c.wfCtx.PauseRequests().ReceiveAsync()
	if !ok {
		return nil, false
	}
	return &req, true
}

// WaitResume blocks until a resume request is delivered, or until timeout
// elapses when timeout > 0. A zero timeout blocks until ctx is done.
func (c *Controller) WaitResume(ctx context.Context, timeout time.Duration) (*ResumeRequest, error) {
	if c == nil || c.wfCtx == nil {
		return nil, errors.New("interrupt: controller not initialized")
	}
	recv := c.wfCtx.ResumeRequests()
	var (
		req ResumeRequest
		err error
	)
	if timeout > 0 {
		req, err = recv.ReceiveWithTimeout(ctx, timeout)
	} else {
		req, err = recv.Receive(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// WaitProvideClarification blocks until a clarification answer is delivered,
// or until timeout elapses when timeout > 0.
func (c *Controller) WaitProvideClarification(ctx context.Context, timeout time.Duration) (*ClarificationAnswer, error) {
	if c == nil || c.wfCtx == nil {
		return nil, errors.New("interrupt: controller not initialized")
	}
	recv := c.wfCtx.ClarificationAnswers()
	var (
		ans ClarificationAnswer
		err error
	)
	if timeout > 0 {
		ans, err = recv.ReceiveWithTimeout(ctx, timeout)
	} else {
		ans, err = recv.Receive(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &ans, nil
}

// WaitProvideToolResults blocks until external tool results are delivered, or
// until timeout elapses when timeout > 0.
func (c *Controller) WaitProvideToolResults(ctx context.Context, timeout time.Duration) (*ToolResultsSet, error) {
	if c == nil || c.wfCtx == nil {
		return nil, errors.New("interrupt: controller not initialized")
	}
	recv := c.wfCtx.ExternalToolResults()
	var (
		rs  ToolResultsSet
		err error
	)
	if timeout > 0 {
		rs, err = recv.ReceiveWithTimeout(ctx, timeout)
	} else {
		rs, err = recv.Receive(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

// WaitProvideConfirmation blocks until a confirmation decision is delivered,
// or until timeout elapses when timeout > 0.
func (c *Controller) WaitProvideConfirmation(ctx context.Context, timeout time.Duration) (*ConfirmationDecision, error) {
	if c == nil || c.wfCtx == nil {
		return nil, errors.New("interrupt: controller not initialized")
	}
	recv := c.wfCtx.ConfirmationDecisions()
	var (
		dec ConfirmationDecision
		err error
	)
	if timeout > 0 {
		dec, err = recv.ReceiveWithTimeout(ctx, timeout)
	} else {
		dec, err = recv.Receive(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &dec, nil
}
