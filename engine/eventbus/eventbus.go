// Package eventbus extends the hooks bus's synchronous fan-out with an
// offset-addressable replay cache: every event published to a channel is
// retained for a bounded window so a late or reconnecting subscriber can
// catch up from any offset still covered by the window, instead of only
// seeing events published after it subscribed.
//
// The in-process Bus keeps the cache in memory. PulseBus is the durable
// backend: it wraps a pulsetransport.Sink/Subscriber pair behind the same
// Channel naming helpers (DataPlaneChannel/OrchestratorChannel); its
// envelopes carry no replay offset (Offset is always OffsetLatest).
package eventbus

import (
	"container/ring"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"durableagent.dev/engine/stream"
)

type (
	// Bus fans out stream events to subscribers on a named channel and
	// retains a bounded replay window so subscribers can resume from an
	// offset instead of only observing events published after they attach.
	Bus interface {
		// Publish appends event to channel's replay window and delivers it
		// to every subscriber currently attached to that channel.
		Publish(ctx context.Context, channel string, event stream.Event) error

		// Subscribe attaches to channel starting at from (see ReplayOption).
		// It returns a channel of envelopes (buffered replay entries first,
		// in offset order, followed by live events), an error channel, and a
		// cancel function that detaches the subscriber and closes both
		// channels. If from falls outside the retained window, the first
		// envelope delivered has Truncated set and replay resumes from the
		// oldest retained offset rather than failing the subscription.
		Subscribe(ctx context.Context, channelName string, from Offset) (<-chan Envelope, <-chan error, context.CancelFunc)

		// Close detaches every subscriber across every channel.
		Close() error
	}

	// Offset addresses a position in a channel's replay window. OffsetOldest
	// and OffsetLatest are sentinel values; any other Offset is a literal
	// sequence number as assigned by Publish (1-indexed, monotonic per
	// channel).
	Offset int64

	// Envelope pairs a replayed or live stream event with the channel offset
	// it was published at, so subscribers can checkpoint their progress and
	// resume a dropped connection without gaps or duplicates.
	//
	// Truncated marks a synthetic leading envelope (Event is nil) delivered
	// when a subscriber's requested offset fell outside the retained replay
	// window. The bus never silently drops the gap: it resumes replay from
	// the oldest entry still retained and surfaces this marker first so the
	// subscriber can detect that it missed history instead of mistaking a
	// truncated replay for a complete one.
	//
	// Ready marks a synthetic envelope (Event is nil) delivered once cached
	// replay has fully drained and before any live event is delivered. A
	// façade that only wants to emit its own "stream started" signal after
	// history has caught up can wait for this marker instead of racing the
	// first live Publish.
	Envelope struct {
		Channel   string
		Offset    Offset
		Event     stream.Event
		At        time.Time
		Truncated bool
		Ready     bool
	}

	// Options configures a new in-process Bus.
	Options struct {
		// Retention bounds how many of the most recent events are kept per
		// channel for replay. Defaults to 1024.
		Retention int
		// MaxAge evicts retained entries older than this duration regardless
		// of Retention. Zero disables age-based eviction.
		MaxAge time.Duration
	}

	bus struct {
		mu        sync.Mutex
		retention int
		maxAge    time.Duration
		channels  map[string]*channelState
	}

	channelState struct {
		mu      sync.Mutex
		buf     *ring.Ring
		size    int
		next    Offset
		oldest  Offset
		subs    map[*subscriber]struct{}
	}

	subscriber struct {
		out    chan Envelope
		errs   chan error
		cancel context.CancelFunc
		done   chan struct{}
	}
)

const (
	// OffsetOldest replays every entry still retained for the channel.
	OffsetOldest Offset = 0
	// OffsetLatest skips replay and only delivers events published after
	// Subscribe is called.
	OffsetLatest Offset = -1
)

// OffsetTooOldError indicates a Subscribe call requested an offset that has
// already been evicted from the channel's retention window.
type OffsetTooOldError struct {
	Channel      string
	Requested    Offset
	OldestRetained Offset
}

func (e *OffsetTooOldError) Error() string {
	return fmt.Sprintf("eventbus: offset %d on channel %q is older than the oldest retained offset %d", e.Requested, e.Channel, e.OldestRetained)
}

// New constructs an in-process Bus with a bounded per-channel replay window.
func New(opts Options) Bus {
	retention := opts.Retention
	if retention <= 0 {
		retention = 1024
	}
	return &bus{
		retention: retention,
		maxAge:    opts.MaxAge,
		channels:  make(map[string]*channelState),
	}
}

func (b *bus) stateFor(channel string) *channelState {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs, ok := b.channels[channel]
	if !ok {
		cs = &channelState{
			buf:    ring.New(b.retention),
			next:   1,
			oldest: 1,
			subs:   make(map[*subscriber]struct{}),
		}
		b.channels[channel] = cs
	}
	return cs
}

// Publish holds the channel's lock for the duration of fan-out so a
// concurrent cancelFunc cannot close a subscriber's channel while Publish is
// still sending to it; see subscribe/cancel below for the matching half of
// this invariant.
func (b *bus) Publish(ctx context.Context, channel string, event stream.Event) error {
	if event == nil {
		return errors.New("eventbus: event is required")
	}
	cs := b.stateFor(channel)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	env := Envelope{Channel: channel, Offset: cs.next, Event: event, At: time.Now()}
	cs.next++
	cs.buf.Value = env
	cs.buf = cs.buf.Next()
	if cs.size < cs.buf.Len() {
		cs.size++
	} else {
		cs.oldest++
	}
	if b.maxAge > 0 {
		cs.evictOlderThanLocked(b.maxAge)
	}
	for s := range cs.subs {
		select {
		case s.out <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// evictOlderThanLocked advances oldest past any retained entry older than
// maxAge, walking from the oldest retained entry towards the newest and
// stopping at the first entry that is still fresh. Callers must hold cs.mu.
func (cs *channelState) evictOlderThanLocked(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	r := cs.buf
	for i := 0; i < r.Len(); i++ {
		env, ok := r.Value.(Envelope)
		r = r.Next()
		if !ok || env.Offset < cs.oldest {
			continue
		}
		if !env.At.Before(cutoff) {
			return
		}
		cs.oldest = env.Offset + 1
		cs.size--
	}
}

// currentOffset returns the offset of the most recently published entry
// (zero when nothing has been published). Safe to call without cs.mu held;
// used only to annotate the Ready marker.
func (cs *channelState) currentOffset() Offset {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.next - 1
}

// forEachLocked walks the ring's entries newest-first, invoking fn for
// each; fn returns true to continue walking entries older than the current
// one. Callers must hold cs.mu.
func (cs *channelState) forEachLocked(fn func(Envelope) bool) {
	r := cs.buf
	for i := 0; i < r.Len(); i++ {
		r = r.Prev()
		v, ok := r.Value.(Envelope)
		if !ok {
			continue
		}
		if !fn(v) {
			break
		}
	}
}

func (b *bus) Subscribe(ctx context.Context, channelName string, from Offset) (<-chan Envelope, <-chan error, context.CancelFunc) {
	cs := b.stateFor(channelName)
	out := make(chan Envelope, 64)
	errs := make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	s := &subscriber{out: out, errs: errs, cancel: cancel, done: make(chan struct{})}

	cs.mu.Lock()
	start := from
	switch from {
	case OffsetOldest:
		start = cs.oldest
	case OffsetLatest:
		start = cs.next
	}
	truncated := start < cs.oldest && cs.size > 0 && from != OffsetOldest
	if truncated {
		start = cs.oldest
	}
	var replay []Envelope
	cs.forEachLocked(func(env Envelope) bool {
		if env.Offset >= start {
			replay = append(replay, env)
			return true
		}
		return false
	})
	// forEachLocked walks newest-first; reverse for publish order.
	for i, j := 0, len(replay)-1; i < j; i, j = i+1, j-1 {
		replay[i], replay[j] = replay[j], replay[i]
	}
	cs.subs[s] = struct{}{}
	cs.mu.Unlock()

	go func() {
		defer close(s.done)
		if truncated {
			select {
			case out <- Envelope{Channel: channelName, Truncated: true}:
			case <-subCtx.Done():
				return
			}
		}
		for _, env := range replay {
			select {
			case out <- env:
			case <-subCtx.Done():
				return
			}
		}
		select {
		case out <- Envelope{Channel: channelName, Offset: cs.currentOffset(), Ready: true}:
		case <-subCtx.Done():
			return
		}
	}()

	// cancelFunc waits for the replay goroutine to observe cancellation
	// before closing out/errs, so it never sends on a closed channel.
	cancelFunc := func() {
		cancel()
		cs.mu.Lock()
		delete(cs.subs, s)
		cs.mu.Unlock()
		finishClose(s)
	}
	return out, errs, cancelFunc
}

// finishClose waits for a subscriber's replay goroutine to exit, then closes
// its channels. The subscriber must already be removed from its channel's
// subs map so Publish can no longer observe it.
func finishClose(s *subscriber) {
	<-s.done
	close(s.out)
	close(s.errs)
}

func (b *bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cs := range b.channels {
		cs.mu.Lock()
		subs := make([]*subscriber, 0, len(cs.subs))
		for s := range cs.subs {
			subs = append(subs, s)
		}
		cs.subs = make(map[*subscriber]struct{})
		cs.mu.Unlock()
		for _, s := range subs {
			s.cancel()
			finishClose(s)
		}
	}
	return nil
}
