package ingest

import (
	"context"
	"sync"
	"time"
)

// ChannelBus is an in-process MessageBus backed by a Go channel per
// stream, with SQS-style visibility timeouts standing in for a real
// bus's redelivery. The wire-level bus between the chain-follower and
// the indexer is explicitly out of this repo's scope — only the
// consume/ack abstraction is — so this is the one concrete MessageBus
// the repo ships: enough to run the ingestion loops end to end, and
// for the pipeline's ack-or-redeliver contract (§7) to hold even
// without a working external queue. A deployment with a real bus
// (Kafka, a Redis stream, SQS) supplies its own MessageBus
// implementation behind the same four-method interface.
type ChannelBus struct {
	mu                sync.Mutex
	streams           map[string]chan Message
	inFlight          map[string]map[string]inFlightMessage
	visibilityTimeout time.Duration
}

type inFlightMessage struct {
	msg     Message
	expires time.Time
}

// NewChannelBus returns an empty ChannelBus. visibility is how long a
// received-but-unacked message is held out of circulation before it is
// pushed back onto its stream for redelivery; it defaults to 30s.
func NewChannelBus(visibility time.Duration) *ChannelBus {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &ChannelBus{
		streams:           make(map[string]chan Message),
		inFlight:          make(map[string]map[string]inFlightMessage),
		visibilityTimeout: visibility,
	}
}

func (b *ChannelBus) stream(name string, capacity int) chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.streams[name]
	if !ok {
		if capacity <= 0 {
			capacity = 256
		}
		ch = make(chan Message, capacity)
		b.streams[name] = ch
		b.inFlight[name] = make(map[string]inFlightMessage)
	}
	return ch
}

// Publish enqueues one message onto stream, for use by whatever local
// process feeds this bus (a CLI, a test, a future chain-follower).
func (b *ChannelBus) Publish(stream string, msg Message) {
	b.stream(stream, 0) <- msg
}

// SetBufferSize pre-creates stream with the given channel capacity if
// it does not already exist; it is a no-op on an existing stream since
// a Go channel's capacity cannot be resized after creation.
func (b *ChannelBus) SetBufferSize(stream string, size int) {
	b.stream(stream, size)
}

// Recv first requeues any in-flight message whose visibility timeout
// has expired (bumping Tries, mirroring a real bus's redelivery
// counter), then drains whatever is immediately available on stream, up
// to the channel's capacity, without blocking. ConsumptionMode is
// accepted for interface compatibility but has no effect: an in-process
// channel has no separate replay-from-start history to select from.
func (b *ChannelBus) Recv(ctx context.Context, stream string, mode ConsumptionMode) ([]Message, error) {
	ch := b.stream(stream, 0)
	b.requeueExpired(stream, ch)

	var batch []Message
	for {
		select {
		case msg := <-ch:
			batch = append(batch, msg)
		default:
			b.markInFlight(stream, batch)
			return batch, nil
		}
		if len(batch) >= cap(ch) {
			b.markInFlight(stream, batch)
			return batch, nil
		}
	}
}

func (b *ChannelBus) markInFlight(stream string, batch []Message) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	expires := time.Now().Add(b.visibilityTimeout)
	for _, msg := range batch {
		b.inFlight[stream][msg.ID] = inFlightMessage{msg: msg, expires: expires}
	}
}

func (b *ChannelBus) requeueExpired(stream string, ch chan Message) {
	b.mu.Lock()
	now := time.Now()
	var expired []Message
	for id, entry := range b.inFlight[stream] {
		if now.After(entry.expires) {
			entry.msg.Tries++
			expired = append(expired, entry.msg)
			delete(b.inFlight[stream], id)
		}
	}
	b.mu.Unlock()

	for _, msg := range expired {
		select {
		case ch <- msg:
		default:
			// stream at capacity; the message is dropped rather than
			// blocking Recv. A bounded channel backing an unbounded
			// redelivery stream is this bus's own limitation, not
			// something a real queue would do.
		}
	}
}

// Ack removes id from the in-flight set, so it is not requeued once its
// visibility timeout would otherwise have expired.
func (b *ChannelBus) Ack(ctx context.Context, stream string, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.inFlight[stream], id)
	}
	return nil
}

// StreamSize reports how many messages are currently queued on stream,
// not counting those in flight.
func (b *ChannelBus) StreamSize(stream string) (int, error) {
	return len(b.stream(stream, 0)), nil
}
