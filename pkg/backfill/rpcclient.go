package backfill

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// RPCClient implements ChainRPC over go-ethereum's generic JSON-RPC 2.0
// client. go-ethereum's rpc.Client speaks plain JSON-RPC over HTTP/WS
// with no EVM-specific framing, so it is reused here purely as a
// transport, the same way the teacher reuses lib/pq purely as a
// Postgres wire driver rather than adopting anything chain-specific
// from it.
type RPCClient struct {
	client  *gethrpc.Client
	timeout time.Duration
}

// DialRPCClient connects to url and returns a ready ChainRPC.
func DialRPCClient(ctx context.Context, url string, timeout time.Duration) (*RPCClient, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return &RPCClient{client: c, timeout: timeout}, nil
}

// Close releases the underlying connection.
func (r *RPCClient) Close() {
	r.client.Close()
}

func (r *RPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

type rpcAccountInfo struct {
	Pubkey string `json:"pubkey"`
	Owner  string `json:"owner"`
	Data   string `json:"data"`
	Slot   int64  `json:"slot"`
}

func (r *RPCClient) GetProgramAccounts(ctx context.Context, programID []byte) ([]ProgramAccount, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var resp []rpcAccountInfo
	if err := r.client.CallContext(ctx, &resp, "getProgramAccounts", hex.EncodeToString(programID)); err != nil {
		return nil, fmt.Errorf("getProgramAccounts: %w", err)
	}

	accounts := make([]ProgramAccount, 0, len(resp))
	for _, a := range resp {
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return nil, fmt.Errorf("decode account data for %s: %w", a.Pubkey, err)
		}
		pubkey, err := hex.DecodeString(a.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("decode pubkey %s: %w", a.Pubkey, err)
		}
		owner, err := hex.DecodeString(a.Owner)
		if err != nil {
			return nil, fmt.Errorf("decode owner %s: %w", a.Owner, err)
		}
		accounts = append(accounts, ProgramAccount{Pubkey: pubkey, Owner: owner, Data: data, Slot: a.Slot})
	}
	return accounts, nil
}

type rpcSignatureInfo struct {
	Signature string `json:"signature"`
	Slot      int64  `json:"slot"`
	Err       string `json:"err,omitempty"`
}

func (r *RPCClient) GetSignaturesForAddress(ctx context.Context, address []byte, before string, limit int) ([]SignatureInfo, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	params := map[string]any{"limit": limit}
	if before != "" {
		params["before"] = before
	}

	var resp []rpcSignatureInfo
	if err := r.client.CallContext(ctx, &resp, "getSignaturesForAddress", hex.EncodeToString(address), params); err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress: %w", err)
	}

	sigs := make([]SignatureInfo, len(resp))
	for i, s := range resp {
		sigs[i] = SignatureInfo{Signature: s.Signature, Slot: s.Slot, Err: s.Err}
	}
	return sigs, nil
}

type rpcInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

type rpcInnerInstructions struct {
	Index        int              `json:"index"`
	Instructions []rpcInstruction `json:"instructions"`
}

type rpcTransaction struct {
	Slot      int64    `json:"slot"`
	AccountKeys []string `json:"accountKeys"`
	Outer     []rpcInstruction       `json:"instructions"`
	Inner     []rpcInnerInstructions `json:"innerInstructions"`
}

func (r *RPCClient) GetTransaction(ctx context.Context, signature string) (*TransactionInfo, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var resp rpcTransaction
	if err := r.client.CallContext(ctx, &resp, "getTransaction", signature); err != nil {
		return nil, fmt.Errorf("getTransaction %s: %w", signature, err)
	}

	keys := make([][]byte, len(resp.AccountKeys))
	for i, k := range resp.AccountKeys {
		b, err := hex.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("decode account key %s: %w", k, err)
		}
		keys[i] = b
	}

	outer, err := decodeInstructions(resp.Outer)
	if err != nil {
		return nil, err
	}

	inner := make(map[int][]RawInstruction, len(resp.Inner))
	for _, group := range resp.Inner {
		ins, err := decodeInstructions(group.Instructions)
		if err != nil {
			return nil, err
		}
		inner[group.Index] = ins
	}

	return &TransactionInfo{
		Signature:  signature,
		Slot:       resp.Slot,
		AccountKeys: keys,
		Outer:      outer,
		Inner:      inner,
	}, nil
}

func decodeInstructions(raw []rpcInstruction) ([]RawInstruction, error) {
	out := make([]RawInstruction, len(raw))
	for i, ri := range raw {
		data, err := base64.StdEncoding.DecodeString(ri.Data)
		if err != nil {
			return nil, fmt.Errorf("decode instruction data: %w", err)
		}
		out[i] = RawInstruction{ProgramIDIndex: ri.ProgramIDIndex, Accounts: ri.Accounts, Data: data}
	}
	return out, nil
}

func (r *RPCClient) GetSlot(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var slot int64
	if err := r.client.CallContext(ctx, &slot, "getSlot"); err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}
	return slot, nil
}
