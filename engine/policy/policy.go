// Package policy defines the allow-list / cap enforcement contract consulted
// before each tool-call fan-out. It governs which tools are visible to a
// given turn and how a planner's RetryHint narrows the tool set on the next
// attempt.
package policy

import (
	"context"
	"time"

	"durableagent.dev/engine/run"
	"durableagent.dev/engine/tools"
)

type (
	// Engine decides which tools a turn may call and what caps apply.
	Engine interface {
		Decide(ctx context.Context, input Input) (Decision, error)
	}

	// Input carries the candidate tools and current caps state for one
	// policy evaluation.
	Input struct {
		// RunContext carries run-level identifiers and labels so policies can
		// make routing decisions (e.g. allow privileged tools for labeled runs).
		RunContext run.Context
		// Requested restricts evaluation to these tool ids. Empty means
		// evaluate the full candidate set derived from Tools.
		Requested []tools.Ident
		// Tools lists metadata for every tool registered for this turn.
		Tools []ToolMetadata
		// RemainingCaps carries the caps state accumulated so far this run.
		RemainingCaps CapsState
		// RetryHint is set when this evaluation follows a failed tool call
		// that produced a hint (missing fields, invalid arguments, ...).
		RetryHint *RetryHint
		// Labels are arbitrary key/value pairs propagated to the decision,
		// sourced from RunContext or augmented by prior policy decisions.
		Labels map[string]string
	}

	// Decision is the result of a policy evaluation.
	Decision struct {
		// AllowedTools is the filtered, de-duplicated set of tool ids the
		// turn may invoke.
		AllowedTools []tools.Ident
		// Caps carries the (possibly tightened) caps state to merge forward.
		Caps CapsState
		// DisableTools signals that no further tool calls should be executed
		// for this run; the runtime forces a final response or terminates.
		DisableTools bool
		// Labels annotate the decision for observability.
		Labels map[string]string
		// Metadata carries engine-specific diagnostic data.
		Metadata map[string]any
	}

	// ToolMetadata is the subset of a tool's registration metadata a policy
	// engine needs to make an allow/block decision.
	ToolMetadata struct {
		ID          tools.Ident
		Title       string
		Description string
		Tags        []string
	}

	// CapsState tracks the run-scoped budget for tool calls.
	CapsState struct {
		MaxToolCalls                        int
		RemainingToolCalls                  int
		MaxConsecutiveFailedToolCalls       int
		RemainingConsecutiveFailedToolCalls int
		ExpiresAt                           time.Time
	}

	// RetryReason classifies why a tool call needs a retry hint. Mirrors
	// planner.RetryReason; kept as a distinct type so policy engines do not
	// need to import the planner package.
	RetryReason string

	// RetryHint is the policy-facing projection of a planner retry hint.
	RetryHint struct {
		Reason             RetryReason
		Tool               tools.Ident
		RestrictToTool     bool
		MissingFields      []string
		ExampleInput       map[string]any
		PriorInput         map[string]any
		ClarifyingQuestion string
		Message            string
	}
)

const (
	// RetryReasonInvalidArguments indicates the tool payload failed schema
	// or semantic validation.
	RetryReasonInvalidArguments RetryReason = "invalid_arguments"
	// RetryReasonMissingFields indicates required fields were absent.
	RetryReasonMissingFields RetryReason = "missing_fields"
	// RetryReasonMalformedResponse indicates the tool returned data that
	// could not be decoded against its declared schema.
	RetryReasonMalformedResponse RetryReason = "malformed_response"
	// RetryReasonTimeout indicates the tool call exceeded its deadline.
	RetryReasonTimeout RetryReason = "timeout"
	// RetryReasonRateLimited indicates the tool or an underlying service is
	// rate-limited.
	RetryReasonRateLimited RetryReason = "rate_limited"
	// RetryReasonToolUnavailable indicates the named tool is not registered
	// or has been disabled by policy.
	RetryReasonToolUnavailable RetryReason = "tool_unavailable"
)
