package programs

// Token account-kind markers, this indexer's stand-in discriminator for
// the token program's two account layouts (mint vs token account).
const (
	tokenKindMint    = 0
	tokenKindAccount = 1
)

// TokenProgramParser decodes SPL-token-shaped account snapshots into
// MintAccount/TokenAccount/EmptyAccount events (§4.2's account events).
type TokenProgramParser struct {
	programID []byte
}

// NewTokenProgramParser returns a parser advertising programID.
func NewTokenProgramParser(programID []byte) *TokenProgramParser {
	return &TokenProgramParser{programID: programID}
}

func (p *TokenProgramParser) ProgramID() []byte        { return p.programID }
func (p *TokenProgramParser) HandlesAccounts() bool     { return true }
func (p *TokenProgramParser) HandlesInstructions() bool { return false }

func (p *TokenProgramParser) ParseInstruction(InstructionBundle) (Event, error) {
	return nil, nil
}

func (p *TokenProgramParser) ParseAccount(b AccountBundle) (Event, error) {
	if b.Lamports == 0 || len(b.Data) == 0 {
		return &EmptyAccountEvent{Pubkey: b.Pubkey, SlotUpdated: b.Slot}, nil
	}

	c := newCursor(b.Data)
	kind, ok := c.byte()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing account kind marker"}
	}

	switch kind {
	case tokenKindMint:
		supply, ok := c.u64()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "mint account missing supply"}
		}
		return &MintAccountEvent{Pubkey: b.Pubkey, Supply: supply, SlotUpdated: b.Slot}, nil
	case tokenKindAccount:
		mint, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token account missing mint"}
		}
		owner, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token account missing owner"}
		}
		amount, ok := c.u64()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token account missing amount"}
		}
		hasDelegate, ok := c.bool()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token account missing delegate flag"}
		}
		var delegate []byte
		if hasDelegate {
			delegate, ok = c.pubkey()
			if !ok {
				return nil, &ParseError{Kind: "truncated", Reason: "token account missing delegate"}
			}
		}
		frozen, ok := c.bool()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token account missing frozen flag"}
		}
		if amount == 0 {
			return &EmptyAccountEvent{Pubkey: b.Pubkey, SlotUpdated: b.Slot}, nil
		}
		return &TokenAccountEvent{
			Pubkey: b.Pubkey, Mint: mint, Owner: owner, Delegate: delegate,
			Amount: amount, Frozen: frozen, SlotUpdated: b.Slot,
		}, nil
	default:
		return nil, &ParseError{Kind: "unknown_account_kind", Reason: "unrecognized token account marker"}
	}
}
