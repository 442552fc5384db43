// Package instruction implements the program-dispatch and
// transaction-ordering engine: turning a transaction's outer/inner
// instruction tree into a flat, ordered stream of instructions
// belonging to a small set of tracked programs, hoisting CPI calls that
// cross back into a tracked program.
package instruction

import "log"

// Instruction is one raw instruction: the index into the transaction's
// account-key list identifying its program, the account indices it
// touches, and its opaque instruction data.
type Instruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
}

// Transaction is the minimal shape the orderer needs: the account-key
// list plus the outer instructions and, per outer index, the inner
// instructions CPI'd from it.
type Transaction struct {
	AccountKeys       [][]byte
	OuterInstructions []Instruction
	InnerInstructions map[int][]Instruction
}

// ProgramSet is the set of "programs of interest" P, keyed by the
// program id's canonical string form.
type ProgramSet map[string]bool

// Entry is one ordered, tracked-program instruction with its flattened
// CPI sub-group.
type Entry struct {
	ProgramID   []byte
	Instruction Instruction
	InnerGroup  []Instruction
}

// Order produces the ordered entry stream described in the package
// doc: for each outer instruction in source order, first emit its
// hoisted inner entries (inner instructions whose program is in P,
// each carrying the inner instructions that follow it up to the next
// P-instruction), then, if the outer program itself is in P, emit the
// outer with its full inner group.
//
// An instruction whose program_id_index is out of range is reported
// through logger and skipped; it never aborts ordering.
func Order(tx *Transaction, interested ProgramSet, logger *log.Logger) []Entry {
	var entries []Entry

	programAt := func(idx int) ([]byte, bool) {
		if idx < 0 || idx >= len(tx.AccountKeys) {
			if logger != nil {
				logger.Printf("instruction orderer: program_id_index %d out of range (account keys: %d)", idx, len(tx.AccountKeys))
			}
			return nil, false
		}
		return tx.AccountKeys[idx], true
	}

	for outerIdx, outer := range tx.OuterInstructions {
		inner := tx.InnerInstructions[outerIdx]
		entries = append(entries, hoistInner(inner, interested, programAt)...)

		outerProgram, ok := programAt(outer.ProgramIDIndex)
		if !ok {
			continue
		}
		if interested[string(outerProgram)] {
			entries = append(entries, Entry{
				ProgramID:   outerProgram,
				Instruction: outer,
				InnerGroup:  inner,
			})
		}
	}

	return entries
}

// hoistInner walks one outer instruction's inner list and produces one
// Entry per inner instruction whose program is in P, each carrying the
// run of subsequent non-boundary inner instructions as its InnerGroup.
func hoistInner(inner []Instruction, interested ProgramSet, programAt func(int) ([]byte, bool)) []Entry {
	var hoisted []Entry
	var current *Entry

	flush := func() {
		if current != nil {
			hoisted = append(hoisted, *current)
			current = nil
		}
	}

	for _, ins := range inner {
		program, ok := programAt(ins.ProgramIDIndex)
		if !ok {
			continue
		}
		if interested[string(program)] {
			flush()
			current = &Entry{ProgramID: program, Instruction: ins}
			continue
		}
		if current != nil {
			current.InnerGroup = append(current.InnerGroup, ins)
		}
		// An inner instruction for an untracked program with no
		// open tracked-program entry ahead of it has no parent of
		// interest and is dropped.
	}
	flush()

	return hoisted
}
