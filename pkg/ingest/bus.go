// Package ingest implements the ingestion pipeline (C7): two parallel
// loops — one per account stream and transaction stream — that pull
// batches off a message bus, fan out to the parser dispatcher and
// event applier, and ack on success.
package ingest

import "context"

// ConsumptionMode selects where in a stream a Recv call starts reading
// from.
type ConsumptionMode int

const (
	// ConsumeAll replays the stream from its earliest retained message.
	ConsumeAll ConsumptionMode = iota
	// ConsumeNew only returns messages published after the consumer
	// first attaches.
	ConsumeNew
	// ConsumeRedeliver returns messages previously delivered but never
	// acked (visibility-timeout expired).
	ConsumeRedeliver
)

// Message is one bus message: an opaque id used for acking, the raw
// payload (binary framing is the bus's concern, not this package's),
// and a delivery-attempt counter.
type Message struct {
	ID    string
	Data  []byte
	Tries int
}

// MessageBus is the subset of the event bus the ingestion pipeline
// needs, named after the four primitives in the external-interfaces
// section: recv, ack, set_buffer_size, stream_size.
type MessageBus interface {
	Recv(ctx context.Context, stream string, mode ConsumptionMode) ([]Message, error)
	Ack(ctx context.Context, stream string, ids []string) error
	SetBufferSize(stream string, size int)
	StreamSize(stream string) (int, error)
}
