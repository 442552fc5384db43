package programs

import (
	"fmt"
	"log"
)

// ParseError is the typed error every parser returns instead of a bare
// error, so the dispatcher can log with the failure's kind without
// string-matching.
type ParseError struct {
	Kind   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %s", e.Kind, e.Reason)
}

// InstructionBundle is the decoded-enough-to-dispatch shape a parser's
// ParseInstruction receives: which program it targets, the instruction
// data, the account keys it references, and the slot/signature the
// instruction was observed in.
type InstructionBundle struct {
	ProgramID   []byte
	Data        []byte
	AccountKeys [][]byte
	Accounts    []int
	Slot        int64
	Signature   string
}

// AccountBundle is the shape a parser's ParseAccount receives.
type AccountBundle struct {
	Pubkey   []byte
	Owner    []byte
	Data     []byte
	Lamports uint64
	Slot     int64
}

// Parser decodes one known program's instructions and/or accounts into
// typed Events. A parser that does not handle one of the two
// capabilities may return (nil, nil) for it without being asked —
// HandlesAccounts/HandlesInstructions tell the dispatcher which to try.
type Parser interface {
	ProgramID() []byte
	HandlesAccounts() bool
	HandlesInstructions() bool
	ParseInstruction(InstructionBundle) (Event, error)
	ParseAccount(AccountBundle) (Event, error)
}

// Dispatcher is a hash lookup from program id to its Parser.
type Dispatcher struct {
	parsers map[string]Parser
	logger  *log.Logger
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher(logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[Programs] ", log.LstdFlags)
	}
	return &Dispatcher{parsers: make(map[string]Parser), logger: logger}
}

// Register adds a parser, keyed by its advertised program id.
func (d *Dispatcher) Register(p Parser) {
	d.parsers[string(p.ProgramID())] = p
}

// ProgramSet returns the set of program ids this dispatcher has a
// parser registered for — directly usable as the Instruction Orderer's
// "programs of interest" P.
func (d *Dispatcher) ProgramSet() map[string]bool {
	set := make(map[string]bool, len(d.parsers))
	for id := range d.parsers {
		set[id] = true
	}
	return set
}

// DispatchInstruction looks up the parser for bundle.ProgramID and
// parses it. An unregistered program id or a parser that does not
// handle instructions is not an error — it returns (nil, nil) so the
// caller skips it silently. A parse failure is returned as a
// *ParseError; the caller is expected to log and skip, never abort.
func (d *Dispatcher) DispatchInstruction(b InstructionBundle) (Event, error) {
	p, ok := d.parsers[string(b.ProgramID)]
	if !ok || !p.HandlesInstructions() {
		return nil, nil
	}
	ev, err := p.ParseInstruction(b)
	if err != nil {
		d.logger.Printf("parse instruction failed (program=%x signature=%s): %v", b.ProgramID, b.Signature, err)
		return nil, err
	}
	return ev, nil
}

// DispatchAccount looks up the parser for bundle.Owner and parses it,
// with the same skip/log-and-continue contract as DispatchInstruction.
func (d *Dispatcher) DispatchAccount(b AccountBundle) (Event, error) {
	p, ok := d.parsers[string(b.Owner)]
	if !ok || !p.HandlesAccounts() {
		return nil, nil
	}
	ev, err := p.ParseAccount(b)
	if err != nil {
		d.logger.Printf("parse account failed (owner=%x pubkey=%x): %v", b.Owner, b.Pubkey, err)
		return nil, err
	}
	return ev, nil
}
