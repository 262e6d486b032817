package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNonRetriableTrueForWrappedError(t *testing.T) {
	err := NewNonRetriableError(errors.New("toolset %q is not registered"))

	require.True(t, IsNonRetriable(err))
}

func TestIsNonRetriableWalksChain(t *testing.T) {
	base := NewNonRetriableError(errors.New("agent not registered"))
	wrapped := fmt.Errorf("plan activity: %w", base)

	require.True(t, IsNonRetriable(wrapped))
}

func TestIsNonRetriableFalseForOrdinaryError(t *testing.T) {
	require.False(t, IsNonRetriable(errors.New("transient")))
	require.False(t, IsNonRetriable(nil))
}

func TestNonRetriableErrorPreservesErrorsIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	wrapped := NewNonRetriableError(sentinel)

	require.True(t, errors.Is(wrapped, sentinel))
	require.Equal(t, sentinel.Error(), wrapped.Error())
}
