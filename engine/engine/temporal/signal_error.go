package temporal

import (
	"errors"

	"go.temporal.io/api/serviceerror"

	"durableagent.dev/engine/engine"
)

// mapSignalError translates Temporal service errors returned from signal
// delivery into the backend-agnostic sentinels runtime code checks with
// errors.Is, so PauseRun/ResumeRun/etc. can classify a missing or completed
// run the same way regardless of which Engine backend is configured.
func mapSignalError(err error) error {
	if err == nil {
		return nil
	}

	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return engine.ErrWorkflowNotFound
	}

	var failedPrecondition *serviceerror.FailedPrecondition
	if errors.As(err, &failedPrecondition) {
		return engine.ErrWorkflowCompleted
	}

	return err
}
