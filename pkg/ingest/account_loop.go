package ingest

import (
	"context"
	"errors"

	"github.com/certen/cnft-indexer/pkg/programs"
)

// EventApplier is the subset of the applier the ingestion loops need.
type EventApplier interface {
	Apply(ctx context.Context, ev programs.Event) error
}

// AccountRecord is the decoded shape of one account-stream message,
// named after §6's account-stream binary snapshot fields.
type AccountRecord struct {
	Pubkey       []byte
	Owner        []byte
	Data         []byte
	Lamports     uint64
	Slot         int64
	WriteVersion uint64
}

// AccountDecoder turns one opaque bus payload into an AccountRecord.
// The wire framing is the bus's concern (§6); this repo only needs the
// documented field accessors, supplied here as an injected function so
// no particular bus SDK is a compile-time dependency of this package.
type AccountDecoder func(data []byte) (*AccountRecord, error)

// NewAccountLoop builds the account-stream ingestion loop: decode,
// dispatch to the owning program's parser, apply the resulting event.
func NewAccountLoop(bus MessageBus, cfg LoopConfig, dispatcher *programs.Dispatcher, applier EventApplier, decode AccountDecoder, metrics *Metrics) *Loop {
	cfg.setDefaults()
	process := func(ctx context.Context, data []byte) ackDecision {
		rec, err := decode(data)
		if err != nil {
			cfg.Logger.Printf("account decode failed: %v", err)
			metrics.ParseErrors.Inc()
			return ackSkip
		}

		ev, err := dispatcher.DispatchAccount(programs.AccountBundle{
			Pubkey: rec.Pubkey, Owner: rec.Owner, Data: rec.Data, Lamports: rec.Lamports, Slot: rec.Slot,
		})
		if err != nil {
			var perr *programs.ParseError
			if errors.As(err, &perr) {
				metrics.ParseErrors.Inc()
				return ackSkip
			}
			return ackHold
		}
		if ev == nil {
			return ackSuccess
		}
		if err := applier.Apply(ctx, ev); err != nil {
			cfg.Logger.Printf("apply account event %T failed: %v", ev, err)
			return ackHold
		}
		return ackSuccess
	}

	return newLoop(bus, cfg, metrics, process)
}
