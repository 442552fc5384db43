package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/certen/cnft-indexer/pkg/instruction"
	"github.com/certen/cnft-indexer/pkg/programs"
)

// fakeBus delivers a fixed batch of messages exactly once per stream,
// then returns empty slices, recording every ack call it receives.
type fakeBus struct {
	mu       sync.Mutex
	queued   map[string][]Message
	acked    map[string][]string
	bufSizes map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{queued: make(map[string][]Message), acked: make(map[string][]string), bufSizes: make(map[string]int)}
}

func (f *fakeBus) seed(stream string, msgs ...Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[stream] = append(f.queued[stream], msgs...)
}

func (f *fakeBus) Recv(ctx context.Context, stream string, mode ConsumptionMode) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.queued[stream]
	f.queued[stream] = nil
	return batch, nil
}

func (f *fakeBus) Ack(ctx context.Context, stream string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked[stream] = append(f.acked[stream], ids...)
	return nil
}

func (f *fakeBus) SetBufferSize(stream string, size int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bufSizes[stream] = size
}

func (f *fakeBus) StreamSize(stream string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued[stream]), nil
}

func (f *fakeBus) ackedIDs(stream string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.acked[stream]))
	copy(out, f.acked[stream])
	return out
}

type fakeEventApplier struct {
	mu      sync.Mutex
	applied []programs.Event
	failNext bool
}

func (f *fakeEventApplier) Apply(ctx context.Context, ev programs.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("transient store failure")
	}
	f.applied = append(f.applied, ev)
	return nil
}

func (f *fakeEventApplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}

// buildMintAccountData matches tokenprogram.go's kind=0 (mint) layout:
// kind(1) || supply(8, little-endian).
func buildMintAccountData(supply uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = 0
	binary.LittleEndian.PutUint64(buf[1:], supply)
	return buf
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestAccountLoop_DecodesDispatchesAppliesAndAcks(t *testing.T) {
	bus := newFakeBus()
	programID := []byte("token-program")
	bus.seed("accounts", Message{ID: "msg-1", Data: buildMintAccountData(1000)})

	dispatcher := programs.NewDispatcher(nil)
	dispatcher.Register(programs.NewTokenProgramParser(programID))
	applier := &fakeEventApplier{}
	metrics := NewMetrics(prometheus.NewRegistry(), "accounts")

	decode := func(data []byte) (*AccountRecord, error) {
		return &AccountRecord{Pubkey: []byte("acct-1"), Owner: programID, Data: data, Lamports: 1, Slot: 5}, nil
	}

	loop := NewAccountLoop(bus, LoopConfig{Stream: "accounts", AckFlushInterval: 10 * time.Millisecond}, dispatcher, applier, decode, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	if err := loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return applier.count() == 1 })
	waitFor(t, func() bool { return len(bus.ackedIDs("accounts")) == 1 })

	cancel()
	loop.Stop()

	if _, ok := applier.applied[0].(*programs.MintAccountEvent); !ok {
		t.Errorf("expected MintAccountEvent, got %T", applier.applied[0])
	}
}

func TestAccountLoop_TransientApplyErrorWithholdsAck(t *testing.T) {
	bus := newFakeBus()
	programID := []byte("token-program")
	bus.seed("accounts", Message{ID: "msg-1", Data: buildMintAccountData(1000), Tries: 1})

	dispatcher := programs.NewDispatcher(nil)
	dispatcher.Register(programs.NewTokenProgramParser(programID))
	applier := &fakeEventApplier{failNext: true}
	metrics := NewMetrics(prometheus.NewRegistry(), "accounts-transient")

	decode := func(data []byte) (*AccountRecord, error) {
		return &AccountRecord{Pubkey: []byte("acct-1"), Owner: programID, Data: data, Lamports: 1, Slot: 5}, nil
	}

	loop := NewAccountLoop(bus, LoopConfig{Stream: "accounts-transient", AckFlushInterval: 10 * time.Millisecond}, dispatcher, applier, decode, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	if err := loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return counterValue(metrics.Redelivered) == 1 })
	time.Sleep(30 * time.Millisecond) // let any erroneous ack-flush happen if it were going to

	cancel()
	loop.Stop()

	if len(bus.ackedIDs("accounts-transient")) != 0 {
		t.Errorf("expected no ack for a transient failure, got %v", bus.ackedIDs("accounts-transient"))
	}
}

func TestAccountLoop_DecodeFailureActsAsDeterministicParseError(t *testing.T) {
	bus := newFakeBus()
	bus.seed("accounts-bad", Message{ID: "msg-1", Data: []byte("garbage")})

	dispatcher := programs.NewDispatcher(nil)
	applier := &fakeEventApplier{}
	metrics := NewMetrics(prometheus.NewRegistry(), "accounts-bad")

	decode := func(data []byte) (*AccountRecord, error) {
		return nil, errors.New("cannot decode framing")
	}

	loop := NewAccountLoop(bus, LoopConfig{Stream: "accounts-bad", AckFlushInterval: 10 * time.Millisecond}, dispatcher, applier, decode, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	if err := loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return len(bus.ackedIDs("accounts-bad")) == 1 })
	cancel()
	loop.Stop()

	if counterValue(metrics.ParseErrors) != 1 {
		t.Errorf("expected 1 parse error recorded, got %v", counterValue(metrics.ParseErrors))
	}
}

func TestTransactionLoop_OrdersAndDispatchesTrackedInstructions(t *testing.T) {
	bus := newFakeBus()
	programID := []byte("bubblegum-program")

	// discBurn=5 per bubblegum.go: disc(1) || tree_id(32) || leaf_index(8) || seq(8) || node_index(8) || node_hash(32).
	payload := make([]byte, 0, 1+32+8+8+8+32)
	payload = append(payload, 5)
	payload = append(payload, make([]byte, 32)...)
	le := func(v int64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, uint64(v)); return b }
	payload = append(payload, le(1)...)
	payload = append(payload, le(2)...)
	payload = append(payload, le(0)...)
	payload = append(payload, make([]byte, 32)...)

	bus.seed("txs", Message{ID: "sig-1", Data: payload})

	dispatcher := programs.NewDispatcher(nil)
	dispatcher.Register(programs.NewCompressedAssetParser(programID))
	applier := &fakeEventApplier{}
	metrics := NewMetrics(prometheus.NewRegistry(), "txs")

	decode := func(data []byte) (*TransactionRecord, error) {
		return &TransactionRecord{
			Signature:         "sig-1",
			Slot:              42,
			AccountKeys:       [][]byte{programID},
			OuterInstructions: []instruction.Instruction{{ProgramIDIndex: 0, Data: data}},
			InnerInstructions: map[int][]instruction.Instruction{},
		}, nil
	}

	loop := NewTransactionLoop(bus, LoopConfig{Stream: "txs", AckFlushInterval: 10 * time.Millisecond}, dispatcher, applier, decode, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	if err := loop.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return applier.count() == 1 })
	waitFor(t, func() bool { return len(bus.ackedIDs("txs")) == 1 })
	cancel()
	loop.Stop()

	if _, ok := applier.applied[0].(*programs.BurnEvent); !ok {
		t.Errorf("expected BurnEvent, got %T", applier.applied[0])
	}
}
