package main

import (
	"encoding/json"
	"fmt"

	"github.com/certen/cnft-indexer/pkg/instruction"
	"github.com/certen/cnft-indexer/pkg/ingest"
)

// wireAccount and wireTransaction are this daemon's own bus framing —
// deliberately separate from the chain programs' wire formats, which
// pkg/programs treats as opaque. JSON keeps this framing readable at
// the bus boundary and matches the teacher's own use of encoding/json
// at its HTTP API edges; nothing about it needs to match a particular
// external bus product, since ingest.AccountDecoder/TransactionDecoder
// exist precisely so this choice stays out of pkg/ingest.
type wireAccount struct {
	Pubkey       []byte `json:"pubkey"`
	Owner        []byte `json:"owner"`
	Data         []byte `json:"data"`
	Lamports     uint64 `json:"lamports"`
	Slot         int64  `json:"slot"`
	WriteVersion uint64 `json:"write_version"`
}

type wireInstruction struct {
	ProgramIDIndex int    `json:"program_id_index"`
	Accounts       []int  `json:"accounts"`
	Data           []byte `json:"data"`
}

type wireTransaction struct {
	Signature         string                      `json:"signature"`
	Slot              int64                       `json:"slot"`
	AccountKeys       [][]byte                    `json:"account_keys"`
	OuterInstructions []wireInstruction           `json:"outer_instructions"`
	InnerInstructions map[string][]wireInstruction `json:"inner_instructions"`
}

func decodeAccountRecord(data []byte) (*ingest.AccountRecord, error) {
	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode account record: %w", err)
	}
	return &ingest.AccountRecord{
		Pubkey: w.Pubkey, Owner: w.Owner, Data: w.Data,
		Lamports: w.Lamports, Slot: w.Slot, WriteVersion: w.WriteVersion,
	}, nil
}

func decodeTransactionRecord(data []byte) (*ingest.TransactionRecord, error) {
	var w wireTransaction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode transaction record: %w", err)
	}

	outer := make([]instruction.Instruction, len(w.OuterInstructions))
	for i, ins := range w.OuterInstructions {
		outer[i] = instruction.Instruction{ProgramIDIndex: ins.ProgramIDIndex, Accounts: ins.Accounts, Data: ins.Data}
	}

	inner := make(map[int][]instruction.Instruction, len(w.InnerInstructions))
	for key, list := range w.InnerInstructions {
		var outerIndex int
		if _, err := fmt.Sscanf(key, "%d", &outerIndex); err != nil {
			return nil, fmt.Errorf("decode transaction record: inner instruction key %q: %w", key, err)
		}
		converted := make([]instruction.Instruction, len(list))
		for i, ins := range list {
			converted[i] = instruction.Instruction{ProgramIDIndex: ins.ProgramIDIndex, Accounts: ins.Accounts, Data: ins.Data}
		}
		inner[outerIndex] = converted
	}

	return &ingest.TransactionRecord{
		Signature: w.Signature, Slot: w.Slot, AccountKeys: w.AccountKeys,
		OuterInstructions: outer, InnerInstructions: inner,
	}, nil
}
