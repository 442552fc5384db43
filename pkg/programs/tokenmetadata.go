package programs

// Token-metadata account-kind markers: a metadata account vs. an
// inscription account, both owned by the same metadata program.
const (
	metadataKindMetadata   = 0
	metadataKindInscription = 1
)

// TokenMetadataParser decodes token-metadata and token-inscription
// account snapshots.
type TokenMetadataParser struct {
	programID []byte
}

// NewTokenMetadataParser returns a parser advertising programID.
func NewTokenMetadataParser(programID []byte) *TokenMetadataParser {
	return &TokenMetadataParser{programID: programID}
}

func (p *TokenMetadataParser) ProgramID() []byte        { return p.programID }
func (p *TokenMetadataParser) HandlesAccounts() bool     { return true }
func (p *TokenMetadataParser) HandlesInstructions() bool { return false }

func (p *TokenMetadataParser) ParseInstruction(InstructionBundle) (Event, error) {
	return nil, nil
}

func (p *TokenMetadataParser) ParseAccount(b AccountBundle) (Event, error) {
	if b.Lamports == 0 || len(b.Data) == 0 {
		return &EmptyAccountEvent{Pubkey: b.Pubkey, SlotUpdated: b.Slot}, nil
	}

	c := newCursor(b.Data)
	kind, ok := c.byte()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing metadata account kind marker"}
	}

	switch kind {
	case metadataKindMetadata:
		mint, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token metadata missing mint"}
		}
		name, ok := c.str()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token metadata missing name"}
		}
		symbol, ok := c.str()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token metadata missing symbol"}
		}
		uri, ok := c.str()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token metadata missing uri"}
		}
		return &TokenMetadataEvent{Mint: mint, Name: name, Symbol: symbol, URI: uri, SlotUpdated: b.Slot}, nil
	case metadataKindInscription:
		mint, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "token inscription missing mint"}
		}
		return &TokenInscriptionEvent{Mint: mint, SlotUpdated: b.Slot}, nil
	default:
		return nil, &ParseError{Kind: "unknown_account_kind", Reason: "unrecognized metadata account marker"}
	}
}
