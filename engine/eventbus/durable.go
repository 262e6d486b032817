package eventbus

import (
	"context"
	"errors"
	"sync"

	clientspulse "durableagent.dev/engine/eventbus/pulsetransport/clients/pulse"
	"durableagent.dev/engine/eventbus/pulsetransport"
	"durableagent.dev/engine/stream"
)

// PulseBus implements Bus on top of Pulse streams instead of an in-process
// ring buffer, so the replay window survives process restarts and is shared
// across every process subscribed to a channel. A channel name (see
// DataPlaneChannel/OrchestratorChannel) becomes a Pulse stream; Subscribe
// opens a dedicated consumer group per call so independent subscribers each
// get their own replay cursor.
//
// Envelopes delivered by PulseBus always carry Offset OffsetLatest: the
// Redis stream entry ID is not available after decoding (see
// offsetFromEntryID), so unlike the in-process Bus these offsets cannot be
// used to checkpoint or resume.
type PulseBus struct {
	client clientspulse.Client

	mu    sync.Mutex
	sinks map[string]*pulsetransport.Sink
}

// NewPulseBus constructs a durable Bus backed by the given Pulse client.
func NewPulseBus(client clientspulse.Client) (*PulseBus, error) {
	if client == nil {
		return nil, errors.New("eventbus: pulse client is required")
	}
	return &PulseBus{client: client, sinks: make(map[string]*pulsetransport.Sink)}, nil
}

func (p *PulseBus) sinkFor(channel string) (*pulsetransport.Sink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sinks[channel]; ok {
		return s, nil
	}
	s, err := pulsetransport.NewSink(pulsetransport.Options{
		Client:   p.client,
		StreamID: func(stream.Event) (string, error) { return channel, nil },
	})
	if err != nil {
		return nil, err
	}
	p.sinks[channel] = s
	return s, nil
}

func (p *PulseBus) Publish(ctx context.Context, channel string, event stream.Event) error {
	if event == nil {
		return errors.New("eventbus: event is required")
	}
	sink, err := p.sinkFor(channel)
	if err != nil {
		return err
	}
	return sink.Send(ctx, event)
}

// Subscribe ignores from's sentinel OffsetLatest/OffsetOldest distinction and
// always replays from the start of the Pulse consumer group's backlog,
// relying on Pulse's own pending-entries tracking; a literal Offset is
// treated the same way, since Pulse addresses replay by consumer group
// position, not by caller-supplied offset.
func (p *PulseBus) Subscribe(ctx context.Context, channelName string, from Offset) (<-chan Envelope, <-chan error, context.CancelFunc) {
	out := make(chan Envelope, 64)
	errs := make(chan error, 1)

	sub, err := pulsetransport.NewSubscriber(pulsetransport.SubscriberOptions{Client: p.client})
	if err != nil {
		errs <- err
		close(errs)
		close(out)
		return out, errs, func() {}
	}

	events, subErrs, cancel, err := sub.Subscribe(ctx, channelName)
	if err != nil {
		errs <- err
		close(errs)
		close(out)
		return out, errs, func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for events != nil || subErrs != nil {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				out <- Envelope{Channel: channelName, Offset: offsetFromEntryID(ev), Event: ev}
			case e, ok := <-subErrs:
				if !ok {
					subErrs = nil
					continue
				}
				select {
				case errs <- e:
				default:
				}
			}
		}
	}()

	cancelFunc := func() {
		cancel()
		<-done
		close(errs)
	}
	return out, errs, cancelFunc
}

func (p *PulseBus) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, s := range p.sinks {
		if err := s.Close(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// offsetFromEntryID has no entry ID available once the event has been
// decoded back into a stream.Event (decoding discards transport framing), so
// it always returns OffsetLatest; exact offsets are only meaningful for the
// in-process Bus. It is kept as a named conversion point so a future decoder
// that preserves the entry ID can populate it without changing callers.
func offsetFromEntryID(stream.Event) Offset {
	return OffsetLatest
}
