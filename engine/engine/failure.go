package engine

import (
	"errors"
	"fmt"
	"time"
)

type (
	// SerializedError is the canonical wire form of a Go error. It carries
	// everything a rehydrated error needs: the message, the concrete error's
	// type name (best-effort, via %T), an optional stack trace, and any
	// structured fields the error exposes beyond Error() — the pieces a
	// generic orchestrator error serializer (Temporal's FailureConverter
	// included) does not know how to carry on its own.
	SerializedError struct {
		Message    string         `json:"message"`
		Name       string         `json:"name,omitempty"`
		Stack      string         `json:"stack,omitempty"`
		Properties map[string]any `json:"properties,omitempty"`
	}

	// FailureCause is the envelope every step-level error is wrapped in
	// before it crosses a durable-operation boundary. The orchestrator's own
	// failure converter preserves message, type, and stack for a returned
	// error, but drops any other exported state (a provider's HTTP status
	// code, a rate-limit retry-after, ...). Attaching that state as
	// Error.Properties inside this envelope, and carrying the envelope as
	// the error's cause, is what lets it survive the round trip.
	FailureCause struct {
		Status  string          `json:"status"`
		Error   SerializedError `json:"error"`
		EndedAt time.Time       `json:"endedAt"`
	}

	// ErrorFields is implemented by errors that carry structured data beyond
	// Error() that must survive serialization across a workflow boundary —
	// a provider's status code, request id, or similar. SerializeError reads
	// this interface, when present, into SerializedError.Properties.
	ErrorFields interface {
		ErrorFields() map[string]any
	}

	// withFailureCause is the error type wrapDurableOperation-equivalent code
	// returns: err unwraps to the original error (so errors.Is/As against it
	// still works), and Cause exposes the FailureCause envelope separately.
	withFailureCause struct {
		err   error
		cause *FailureCause
	}
)

// FailureStatusFailed is the Status value FailureCause.Status carries for an
// ordinary step failure, per spec's {status:"failed", error, endedAt} shape.
const FailureStatusFailed = "failed"

// SerializeError converts err into its canonical wire form. If err
// implements ErrorFields, its fields are copied into Properties. The
// concrete type name is recorded in Name via %T so a later read can tell
// what kind of error this used to be even though the type itself did not
// survive the trip.
func SerializeError(err error) SerializedError {
	if err == nil {
		return SerializedError{}
	}
	se := SerializedError{
		Message: err.Error(),
		Name:    fmt.Sprintf("%T", err),
	}
	var withStack interface{ Stack() string }
	if errors.As(err, &withStack) {
		se.Stack = withStack.Stack()
	}
	var fields ErrorFields
	if errors.As(err, &fields) {
		se.Properties = fields.ErrorFields()
	}
	return se
}

// NewFailureCause wraps err in the mandatory cause envelope described by
// spec §4.1: {status:"failed", error:SerializedError, endedAt}. endedAt
// should be the workflow/activity's deterministic clock, not wall time, when
// called from within a workflow.
func NewFailureCause(err error, endedAt time.Time) *FailureCause {
	return &FailureCause{
		Status:  FailureStatusFailed,
		Error:   SerializeError(err),
		EndedAt: endedAt,
	}
}

// WrapWithCause returns an error that unwraps to err (preserving errors.Is/As
// against the original failure) while also carrying cause as its Cause, so a
// caller that specifically wants the envelope (e.g. before handing the error
// to the orchestrator's serializer) can retrieve it via CauseOf.
func WrapWithCause(err error, cause *FailureCause) error {
	if err == nil {
		return nil
	}
	return &withFailureCause{err: err, cause: cause}
}

// WrapDurableOperation wraps err — which must be non-nil, the return value
// of a just-failed memoized operation — in its mandatory cause envelope and
// returns the combined error. This is the "wrapDurableOperation" contract of
// spec §4.1: every thrown error is wrapped with
// {status:"failed", error:SerializedError, endedAt} attached as cause before
// it is rethrown, so custom fields survive the orchestrator's serializer.
func WrapDurableOperation(err error, endedAt time.Time) error {
	if err == nil {
		return nil
	}
	if existing := CauseOf(err); existing != nil {
		// Already wrapped by an inner call (e.g. a retried attempt); do not
		// nest envelopes, just refresh EndedAt.
		existing.EndedAt = endedAt
		return err
	}
	return WrapWithCause(err, NewFailureCause(err, endedAt))
}

func (w *withFailureCause) Error() string {
	if w == nil || w.err == nil {
		return ""
	}
	return w.err.Error()
}

func (w *withFailureCause) Unwrap() error { return w.err }

// Cause returns the FailureCause envelope attached to w, satisfying the
// unexported interface CauseOf checks for.
func (w *withFailureCause) Cause() *FailureCause { return w.cause }

type causer interface {
	Cause() *FailureCause
}

// CauseOf walks err's chain and returns the first FailureCause envelope
// attached via WrapWithCause/WrapDurableOperation, or nil if none is
// present.
func CauseOf(err error) *FailureCause {
	for err != nil {
		if c, ok := err.(causer); ok {
			if cause := c.Cause(); cause != nil {
				return cause
			}
		}
		err = errors.Unwrap(err)
	}
	return nil
}

// FormatResultError produces a canonical SerializedError for a failed step
// result. It prefers explicit err; otherwise it inspects lastOutput's own
// error field via ErrorFields (set by callers that stash a decoded step
// output's error there); otherwise it falls back to an "Unknown workflow
// error" message, matching spec §4.1's formatResultError contract.
func FormatResultError(err error, lastOutput any) SerializedError {
	if err != nil {
		return SerializeError(err)
	}
	if fields, ok := lastOutput.(ErrorFields); ok {
		if props := fields.ErrorFields(); len(props) > 0 {
			if msg, ok := props["error"].(string); ok && msg != "" {
				return SerializedError{Message: msg, Properties: props}
			}
			return SerializedError{Message: "Unknown workflow error", Properties: props}
		}
	}
	return SerializedError{Message: "Unknown workflow error"}
}

// HydratedError is the rehydrated form of a SerializedError — the shape the
// façade's onError callback receives per spec §7: message, name, stack, and
// every custom property the original error carried, reconstructed from the
// wire form on the other side of a durable-operation boundary.
type HydratedError struct {
	MessageText string
	NameText    string
	StackText   string
	Properties  map[string]any
	CauseErr    error
}

func (e *HydratedError) Error() string { return e.MessageText }

// Unwrap exposes any nested cause so errors.Is/As still walks through a
// rehydrated error.
func (e *HydratedError) Unwrap() error { return e.CauseErr }

// ErrorFields satisfies the ErrorFields interface so a rehydrated error can
// itself be re-serialized (e.g. when relayed through another boundary)
// without losing its properties.
func (e *HydratedError) ErrorFields() map[string]any { return e.Properties }

// HydrateError reconstructs a Go error from its serialized wire form,
// preserving message, name, stack, and every property the original error
// carried — the round trip spec §8 requires: hydrate(serialize(err))
// preserves message, name, stack (when included), and every own enumerable
// property of err.
func HydrateError(se SerializedError) error {
	return &HydratedError{
		MessageText: se.Message,
		NameText:    se.Name,
		StackText:   se.Stack,
		Properties:  se.Properties,
	}
}
