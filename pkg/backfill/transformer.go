package backfill

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/certen/cnft-indexer/pkg/instruction"
	"github.com/certen/cnft-indexer/pkg/programs"
)

// EventApplier is the subset of the applier the transformer needs — one
// method, so tests can fake it without pulling in the whole applier.
type EventApplier interface {
	Apply(ctx context.Context, ev programs.Event) error
}

// ProgramTransformer buffers the transactions covering one gap, sorts
// them ascending by slot (Open Question O2 — never by signature), then
// replays each transaction's tracked-program instructions through the
// orderer, the parser dispatcher, and the applier in that slot order.
type ProgramTransformer struct {
	dispatcher *programs.Dispatcher
	applier    EventApplier
	interested instruction.ProgramSet
	logger     *log.Logger
}

// NewProgramTransformer returns a ProgramTransformer wired to dispatcher
// and applier. The tracked-program set is derived from the dispatcher's
// registered parsers.
func NewProgramTransformer(dispatcher *programs.Dispatcher, applier EventApplier, logger *log.Logger) *ProgramTransformer {
	if logger == nil {
		logger = log.New(log.Writer(), "[ProgramTransformer] ", log.LstdFlags)
	}
	return &ProgramTransformer{
		dispatcher: dispatcher,
		applier:    applier,
		interested: instruction.ProgramSet(dispatcher.ProgramSet()),
		logger:     logger,
	}
}

// Replay sorts txs ascending by slot and applies each one's tracked
// instructions in that order. It does not stop on a single transaction's
// error; it logs and continues, since one malformed historical
// transaction must not block replay of the rest of the gap.
func (t *ProgramTransformer) Replay(ctx context.Context, txs []*TransactionInfo) error {
	sorted := append([]*TransactionInfo(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Slot < sorted[j].Slot })

	for _, tx := range sorted {
		if err := t.replayOne(ctx, tx); err != nil {
			t.logger.Printf("signature %s: %v", tx.Signature, err)
		}
	}
	return nil
}

func (t *ProgramTransformer) replayOne(ctx context.Context, tx *TransactionInfo) error {
	ordTx := &instruction.Transaction{
		AccountKeys:       tx.AccountKeys,
		OuterInstructions: toOrdererInstructions(tx.Outer),
		InnerInstructions: make(map[int][]instruction.Instruction, len(tx.Inner)),
	}
	for idx, ins := range tx.Inner {
		ordTx.InnerInstructions[idx] = toOrdererInstructions(ins)
	}

	entries := instruction.Order(ordTx, t.interested, t.logger)
	for _, entry := range entries {
		ev, err := t.dispatcher.DispatchInstruction(programs.InstructionBundle{
			ProgramID:   entry.ProgramID,
			Data:        entry.Instruction.Data,
			AccountKeys: tx.AccountKeys,
			Accounts:    entry.Instruction.Accounts,
			Slot:        tx.Slot,
			Signature:   tx.Signature,
		})
		if err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		if ev == nil {
			continue
		}
		if err := t.applier.Apply(ctx, ev); err != nil {
			return fmt.Errorf("apply %T: %w", ev, err)
		}
	}
	return nil
}

func toOrdererInstructions(raw []RawInstruction) []instruction.Instruction {
	out := make([]instruction.Instruction, len(raw))
	for i, r := range raw {
		out[i] = instruction.Instruction{ProgramIDIndex: r.ProgramIDIndex, Accounts: r.Accounts, Data: r.Data}
	}
	return out
}
