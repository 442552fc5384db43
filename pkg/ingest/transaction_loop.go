package ingest

import (
	"context"
	"errors"

	"github.com/certen/cnft-indexer/pkg/instruction"
	"github.com/certen/cnft-indexer/pkg/programs"
)

// TransactionRecord is the decoded shape of one transaction-stream
// message, named after §6's transaction-stream binary snapshot fields.
type TransactionRecord struct {
	Signature         string
	Slot              int64
	AccountKeys       [][]byte
	OuterInstructions []instruction.Instruction
	InnerInstructions map[int][]instruction.Instruction
}

// TransactionDecoder turns one opaque bus payload into a
// TransactionRecord; see AccountDecoder's doc for why this is injected
// rather than a fixed wire format.
type TransactionDecoder func(data []byte) (*TransactionRecord, error)

// NewTransactionLoop builds the transaction-stream ingestion loop:
// decode, order the instruction tree down to the tracked programs,
// dispatch each tracked instruction, apply the resulting events.
//
// One message's instructions are processed best-effort: a deterministic
// parse error on one instruction is logged and does not block the rest
// of the transaction's instructions (the backfiller's replay, by
// contrast, stops a transaction at its first dispatch error). The whole
// message is held back for redelivery only if any
// instruction in it hit a transient (store) error.
func NewTransactionLoop(bus MessageBus, cfg LoopConfig, dispatcher *programs.Dispatcher, applier EventApplier, decode TransactionDecoder, metrics *Metrics) *Loop {
	cfg.setDefaults()
	interested := instruction.ProgramSet(dispatcher.ProgramSet())

	process := func(ctx context.Context, data []byte) ackDecision {
		rec, err := decode(data)
		if err != nil {
			cfg.Logger.Printf("transaction decode failed: %v", err)
			metrics.ParseErrors.Inc()
			return ackSkip
		}

		tx := &instruction.Transaction{
			AccountKeys:       rec.AccountKeys,
			OuterInstructions: rec.OuterInstructions,
			InnerInstructions: rec.InnerInstructions,
		}
		entries := instruction.Order(tx, interested, cfg.Logger)

		transient := false
		for _, entry := range entries {
			ev, err := dispatcher.DispatchInstruction(programs.InstructionBundle{
				ProgramID:   entry.ProgramID,
				Data:        entry.Instruction.Data,
				AccountKeys: rec.AccountKeys,
				Accounts:    entry.Instruction.Accounts,
				Slot:        rec.Slot,
				Signature:   rec.Signature,
			})
			if err != nil {
				var perr *programs.ParseError
				if errors.As(err, &perr) {
					metrics.ParseErrors.Inc()
					continue
				}
				transient = true
				continue
			}
			if ev == nil {
				continue
			}
			if err := applier.Apply(ctx, ev); err != nil {
				cfg.Logger.Printf("signature %s: apply %T failed: %v", rec.Signature, ev, err)
				transient = true
			}
		}

		if transient {
			return ackHold
		}
		return ackSuccess
	}

	return newLoop(bus, cfg, metrics, process)
}
