package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"durableagent.dev/engine/eventbus"
	"durableagent.dev/engine/stream"
)

type fakeEvent struct {
	typ   stream.EventType
	runID string
	text  string
}

func (e fakeEvent) Type() stream.EventType { return e.typ }
func (e fakeEvent) RunID() string          { return e.runID }
func (e fakeEvent) SessionID() string      { return "session-1" }
func (e fakeEvent) Payload() any           { return e.text }

func newEvent(text string) stream.Event {
	return fakeEvent{typ: stream.EventAssistantReply, runID: "run-1", text: text}
}

func TestBusPublishDeliversToLiveSubscriber(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	ctx := context.Background()
	channel := eventbus.DataPlaneChannel("run-1")

	out, errs, cancel := bus.Subscribe(ctx, channel, eventbus.OffsetLatest)
	defer cancel()

	// No cached history to replay, so Ready fires immediately.
	select {
	case env := <-out:
		require.True(t, env.Ready)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ready marker")
	}

	require.NoError(t, bus.Publish(ctx, channel, newEvent("hello")))

	select {
	case env := <-out:
		require.Equal(t, "hello", env.Event.Payload())
		require.Equal(t, channel, env.Channel)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusSubscribeReplaysFromOldest(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	ctx := context.Background()
	channel := eventbus.DataPlaneChannel("run-2")

	require.NoError(t, bus.Publish(ctx, channel, newEvent("first")))
	require.NoError(t, bus.Publish(ctx, channel, newEvent("second")))

	out, _, cancel := bus.Subscribe(ctx, channel, eventbus.OffsetOldest)
	defer cancel()

	first := <-out
	second := <-out
	require.Equal(t, "first", first.Event.Payload())
	require.Equal(t, "second", second.Event.Payload())
	require.Less(t, first.Offset, second.Offset)
}

func TestBusSubscribeFromOffsetSkipsEarlierEntries(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	ctx := context.Background()
	channel := eventbus.DataPlaneChannel("run-3")

	require.NoError(t, bus.Publish(ctx, channel, newEvent("first")))
	require.NoError(t, bus.Publish(ctx, channel, newEvent("second")))
	require.NoError(t, bus.Publish(ctx, channel, newEvent("third")))

	out, _, cancel := bus.Subscribe(ctx, channel, 2)
	defer cancel()

	env := <-out
	require.Equal(t, "second", env.Event.Payload())
}

func TestBusSubscribeOffsetTooOldInjectsTruncationMarker(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Retention: 2})
	ctx := context.Background()
	channel := eventbus.DataPlaneChannel("run-4")

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, channel, newEvent("evt")))
	}

	out, _, cancel := bus.Subscribe(ctx, channel, 1)
	defer cancel()

	select {
	case env := <-out:
		require.True(t, env.Truncated, "expected a cache-truncated marker, not silent gap")
	case <-time.After(time.Second):
		t.Fatal("expected a truncated marker envelope")
	}

	// Replay resumes from the oldest retained entry rather than aborting.
	env := <-out
	require.False(t, env.Truncated)
	require.NotNil(t, env.Event)
}

func TestBusSubscribeSignalsReadyAfterReplayDrains(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	ctx := context.Background()
	channel := eventbus.DataPlaneChannel("run-7")

	require.NoError(t, bus.Publish(ctx, channel, newEvent("first")))

	out, _, cancel := bus.Subscribe(ctx, channel, eventbus.OffsetOldest)
	defer cancel()

	replayed := <-out
	require.Equal(t, "first", replayed.Event.Payload())

	ready := <-out
	require.True(t, ready.Ready)
	require.Nil(t, ready.Event)

	require.NoError(t, bus.Publish(ctx, channel, newEvent("second")))
	live := <-out
	require.Equal(t, "second", live.Event.Payload())
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	ctx := context.Background()
	channel := eventbus.DataPlaneChannel("run-5")

	out, _, cancel := bus.Subscribe(ctx, channel, eventbus.OffsetLatest)
	cancel()

	_, ok := <-out
	require.False(t, ok, "channel should be closed after cancel")
}

func TestBusCloseDetachesAllSubscribers(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	ctx := context.Background()
	channel := eventbus.DataPlaneChannel("run-6")

	out, _, cancel := bus.Subscribe(ctx, channel, eventbus.OffsetLatest)
	defer cancel()

	require.NoError(t, bus.Close())

	_, ok := <-out
	require.False(t, ok, "channel should be closed after bus Close")
}

func TestChannelNaming(t *testing.T) {
	require.Equal(t, "workflow.events.v2.run-1", eventbus.DataPlaneChannel("run-1"))
	require.Equal(t, "workflow:wf-1:run-1", eventbus.OrchestratorChannel("wf-1", "run-1"))
}
