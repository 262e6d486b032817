package eventbus

import "fmt"

// DataPlaneChannel names the channel a client-facing subscriber (e.g. a
// pulsetransport sink bridging to a user-visible stream) attaches to for a
// given run's events.
func DataPlaneChannel(runID string) string {
	return fmt.Sprintf("workflow.events.v2.%s", runID)
}

// OrchestratorChannel names the channel the owning workflow and its
// activities use to exchange orchestrator-native events (signals, policy
// decisions, suspend/resume notifications) for a given run.
func OrchestratorChannel(workflowID, runID string) string {
	return fmt.Sprintf("workflow:%s:%s", workflowID, runID)
}
