package eventbus

import (
	"context"

	"durableagent.dev/engine/stream"
)

// sink adapts a Bus into a stream.Sink, so a runtime already wired to publish
// to a stream.Sink (see runtime.Options.Stream and hooks.StreamSubscriber)
// gets replay-addressable delivery for free: every event the runtime sends
// lands in the channel's retained window before fan-out, so a client that
// drops and reconnects can resume from its last seen offset instead of
// re-subscribing from the live edge.
//
// Channel selects which Bus channel an event is published to given its
// RunID; callers normally pass DataPlaneChannel for client-facing streams or
// OrchestratorChannel when the sink also needs a workflow ID (wrap the
// returned *Sink per workflow instead).
type sink struct {
	bus     Bus
	channel func(runID string) string
}

// NewSink returns a stream.Sink that publishes every event onto bus under
// the channel channelFn derives from the event's RunID. A typical caller
// passes eventbus.DataPlaneChannel:
//
//	runtime.WithStream(eventbus.NewSink(bus, eventbus.DataPlaneChannel))
func NewSink(bus Bus, channelFn func(runID string) string) stream.Sink {
	return &sink{bus: bus, channel: channelFn}
}

func (s *sink) Send(ctx context.Context, event stream.Event) error {
	return s.bus.Publish(ctx, s.channel(event.RunID()), event)
}

// Close is a no-op: the sink does not own the Bus's lifecycle. A Bus is
// typically shared across every run in a process (each run gets its own
// channel on the same Bus), so closing it when one run's stream ends would
// sever every other run's delivery. Callers that construct a Bus are
// responsible for calling its own Close when the process shuts down.
func (s *sink) Close(ctx context.Context) error {
	return nil
}
