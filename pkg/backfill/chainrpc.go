// Package backfill implements the tree backfiller (C5): discovering
// trees, finding and replaying the transaction history covering a
// detected seq gap, and registering newly discovered trees.
package backfill

import "context"

// ProgramAccount is one account returned by a get_program_accounts-style
// call, used by the Discoverer to find tree-config accounts owned by the
// compressed-asset program.
type ProgramAccount struct {
	Pubkey []byte
	Owner  []byte
	Data   []byte
	Slot   int64
}

// SignatureInfo is one entry in a get_signatures_for_address-style page.
type SignatureInfo struct {
	Signature string
	Slot      int64
	Err       string // non-empty if the transaction itself failed on-chain
}

// TransactionInfo is the decoded shape of a get_transaction-style
// response: account keys plus the outer/inner instruction lists the
// instruction orderer (C1) consumes directly.
type TransactionInfo struct {
	Signature  string
	Slot       int64
	AccountKeys [][]byte
	Outer      []RawInstruction
	Inner      map[int][]RawInstruction
}

// RawInstruction mirrors pkg/instruction.Instruction's shape at the RPC
// boundary, kept distinct so this package has no compile-time dependency
// on the orderer's types beyond what toOrdererInstructions converts.
type RawInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
}

// ChainRPC is the subset of chain read calls the backfiller needs. The
// concrete implementation (RPCClient) speaks plain JSON-RPC 2.0 over
// go-ethereum's generic rpc.Client — none of the calls below are
// Ethereum-specific, so that transport is reused purely as a JSON-RPC
// codec, not as an EVM client.
type ChainRPC interface {
	GetProgramAccounts(ctx context.Context, programID []byte) ([]ProgramAccount, error)
	GetSignaturesForAddress(ctx context.Context, address []byte, before string, limit int) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*TransactionInfo, error)
	GetSlot(ctx context.Context) (int64, error)
}
