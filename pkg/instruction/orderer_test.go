package instruction

import (
	"reflect"
	"testing"
)

func prog(b byte) []byte { return []byte{b} }

func TestOrder_HoistsCPIIntoTrackedProgram(t *testing.T) {
	// Account keys: 0=A, 1=X, 2=B (all of interest except X).
	tx := &Transaction{
		AccountKeys: [][]byte{prog('A'), prog('X'), prog('B')},
		OuterInstructions: []Instruction{
			{ProgramIDIndex: 0}, // A
			{ProgramIDIndex: 1}, // X
			{ProgramIDIndex: 2}, // B
		},
		InnerInstructions: map[int][]Instruction{
			1: { // X's CPIs: A', A''
				{ProgramIDIndex: 0},
				{ProgramIDIndex: 0},
			},
		},
	}
	interested := ProgramSet{string(prog('A')): true, string(prog('B')): true}

	got := Order(tx, interested, nil)

	var programOrder [][]byte
	for _, e := range got {
		programOrder = append(programOrder, e.ProgramID)
	}
	want := [][]byte{prog('A'), prog('A'), prog('A'), prog('B')}
	if !reflect.DeepEqual(programOrder, want) {
		t.Fatalf("program order = %v, want %v", programOrder, want)
	}
}

func TestOrder_UntrackedOuterDropped(t *testing.T) {
	tx := &Transaction{
		AccountKeys:       [][]byte{prog('X')},
		OuterInstructions: []Instruction{{ProgramIDIndex: 0}},
	}
	got := Order(tx, ProgramSet{}, nil)
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}

func TestOrder_OutOfRangeProgramIndexSkipped(t *testing.T) {
	tx := &Transaction{
		AccountKeys:       [][]byte{prog('A')},
		OuterInstructions: []Instruction{{ProgramIDIndex: 5}},
	}
	got := Order(tx, ProgramSet{string(prog('A')): true}, nil)
	if len(got) != 0 {
		t.Fatalf("expected out-of-range instruction to be skipped, got %d entries", len(got))
	}
}

func TestOrder_EmptyInnerListAllowed(t *testing.T) {
	tx := &Transaction{
		AccountKeys:       [][]byte{prog('A')},
		OuterInstructions: []Instruction{{ProgramIDIndex: 0}},
		InnerInstructions: map[int][]Instruction{},
	}
	got := Order(tx, ProgramSet{string(prog('A')): true}, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
}
