// Package memory defines the durable conversational memory contract consumed
// by the planner and runtime. It captures the append-only event log backing
// a run's message history, independent of how that log is persisted.
package memory

import (
	"context"
	"time"
)

type (
	// EventType discriminates the kind of durable memory event.
	EventType string

	// Event is one durable, persisted fact about a run's conversation:
	// a tool call, a tool result, an assistant message, a planner note, a
	// user message, or a model thinking block. Data's shape depends on Type.
	Event struct {
		Type      EventType
		Timestamp time.Time
		Data      any
		Labels    map[string]string
	}

	// Snapshot is the persisted memory state for one run, as loaded by
	// Store.LoadRun. It is the unit handed to a Reader implementation.
	Snapshot struct {
		AgentID string
		RunID   string
		Events  []Event
		// Meta carries implementation-defined metadata such as storage
		// cursors or sync tokens. Readers should not rely on these fields.
		Meta map[string]any
	}

	// Annotation is planner- or policy-supplied metadata appended during
	// execution, typically persisted as an EventAnnotation entry.
	Annotation struct {
		Message string
		Labels  map[string]string
	}

	// Reader exposes read-only access to a run's accumulated memory events.
	// Planners use it to reconstruct provider-ready message history.
	Reader interface {
		// Events returns every event in append order.
		Events() []Event
		// FilterByType returns every event of the given type, in append order.
		FilterByType(t EventType) []Event
		// Latest returns the most recent event of the given type, if any.
		Latest(t EventType) (Event, bool)
	}

	// Store persists and loads durable memory events, keyed by agent and
	// run. Implementations must make AppendEvents safe to call multiple
	// times with the same events under workflow replay (callers are
	// responsible for idempotent keys where that matters; the store itself
	// simply appends).
	Store interface {
		LoadRun(ctx context.Context, agentID, runID string) (Snapshot, error)
		AppendEvents(ctx context.Context, agentID, runID string, events ...Event) error
	}
)

const (
	// EventToolCall records that the planner requested a tool call.
	EventToolCall EventType = "tool_call"
	// EventToolResult records the outcome of a tool call.
	EventToolResult EventType = "tool_result"
	// EventAssistantMessage records assistant-authored text.
	EventAssistantMessage EventType = "assistant_message"
	// EventPlannerNote records an internal planner annotation, not surfaced
	// to the model provider.
	EventPlannerNote EventType = "planner_note"
	// EventUserMessage records a user-authored message.
	EventUserMessage EventType = "user_message"
	// EventThinking records a model thinking/reasoning block.
	EventThinking EventType = "thinking"
	// EventAnnotation records an arbitrary annotation injected by a planner,
	// policy engine, or external system, for observability or debugging.
	EventAnnotation EventType = "annotation"
)
