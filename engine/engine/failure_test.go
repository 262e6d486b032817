package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fieldsError struct {
	msg    string
	fields map[string]any
}

func (e *fieldsError) Error() string               { return e.msg }
func (e *fieldsError) ErrorFields() map[string]any { return e.fields }

func TestSerializeErrorCapturesFields(t *testing.T) {
	err := &fieldsError{msg: "boom", fields: map[string]any{"code": "E1", "status": 429}}

	se := SerializeError(err)

	require.Equal(t, "boom", se.Message)
	require.Contains(t, se.Name, "fieldsError")
	require.Equal(t, "E1", se.Properties["code"])
	require.Equal(t, 429, se.Properties["status"])
}

func TestSerializeErrorNilReturnsZeroValue(t *testing.T) {
	require.Equal(t, SerializedError{}, SerializeError(nil))
}

func TestHydrateErrorRoundTripPreservesMessageNameAndProperties(t *testing.T) {
	original := &fieldsError{msg: "rate limited", fields: map[string]any{"retryAfterMs": 500}}

	se := SerializeError(original)
	hydrated := HydrateError(se)

	require.Equal(t, original.Error(), hydrated.Error())

	var hf ErrorFields
	require.True(t, errors.As(hydrated, &hf))
	require.Equal(t, original.ErrorFields(), hf.ErrorFields())

	var hydratedErr *HydratedError
	require.True(t, errors.As(hydrated, &hydratedErr))
	require.Contains(t, hydratedErr.NameText, "fieldsError")
}

func TestWrapDurableOperationAttachesCauseEnvelope(t *testing.T) {
	inner := errors.New("step failed")
	endedAt := time.Unix(0, 0)

	wrapped := WrapDurableOperation(inner, endedAt)

	require.True(t, errors.Is(wrapped, inner))

	cause := CauseOf(wrapped)
	require.NotNil(t, cause)
	require.Equal(t, FailureStatusFailed, cause.Status)
	require.Equal(t, "step failed", cause.Error.Message)
	require.True(t, cause.EndedAt.Equal(endedAt))
}

func TestWrapDurableOperationDoesNotNestEnvelopeOnRetry(t *testing.T) {
	inner := errors.New("step failed")
	first := WrapDurableOperation(inner, time.Unix(0, 0))

	second := WrapDurableOperation(first, time.Unix(100, 0))

	// Same envelope instance, just refreshed — not double-wrapped.
	require.Same(t, CauseOf(first), CauseOf(second))
	require.True(t, CauseOf(second).EndedAt.Equal(time.Unix(100, 0)))
}

func TestWrapDurableOperationNilIsNil(t *testing.T) {
	require.NoError(t, WrapDurableOperation(nil, time.Unix(0, 0)))
}

func TestCauseOfReturnsNilWhenAbsent(t *testing.T) {
	require.Nil(t, CauseOf(errors.New("plain")))
	require.Nil(t, CauseOf(nil))
}

func TestFormatResultErrorPrefersExplicitError(t *testing.T) {
	err := errors.New("explicit failure")

	se := FormatResultError(err, nil)

	require.Equal(t, "explicit failure", se.Message)
}

func TestFormatResultErrorFallsBackToUnknown(t *testing.T) {
	se := FormatResultError(nil, nil)

	require.Equal(t, "Unknown workflow error", se.Message)
	require.Nil(t, se.Properties)
}

func TestFormatResultErrorReadsLastOutputFields(t *testing.T) {
	out := &fieldsError{msg: "ignored", fields: map[string]any{"error": "from output", "code": "X"}}

	se := FormatResultError(nil, out)

	require.Equal(t, "from output", se.Message)
	require.Equal(t, "X", se.Properties["code"])
}

func TestWrapWithCauseUnwrapsToOriginal(t *testing.T) {
	inner := errors.New("inner")
	wrapped := WrapWithCause(inner, NewFailureCause(inner, time.Unix(0, 0)))

	require.True(t, errors.Is(wrapped, inner))
	require.Equal(t, inner.Error(), wrapped.Error())
}

func TestErrorFieldsSurvivesWrappedChain(t *testing.T) {
	original := &fieldsError{msg: "wrapped", fields: map[string]any{"a": 1}}
	wrapped := fmt.Errorf("context: %w", original)

	se := SerializeError(wrapped)

	require.Equal(t, "context: wrapped", se.Message)
	require.Equal(t, map[string]any{"a": 1}, se.Properties)
}
