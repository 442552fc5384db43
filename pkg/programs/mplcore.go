package programs

// MPL Core account-kind markers.
const (
	coreKindAsset      = 0
	coreKindCollection = 1
)

// MplCoreParser decodes MPL Core asset/collection account snapshots.
type MplCoreParser struct {
	programID []byte
}

// NewMplCoreParser returns a parser advertising programID.
func NewMplCoreParser(programID []byte) *MplCoreParser {
	return &MplCoreParser{programID: programID}
}

func (p *MplCoreParser) ProgramID() []byte        { return p.programID }
func (p *MplCoreParser) HandlesAccounts() bool     { return true }
func (p *MplCoreParser) HandlesInstructions() bool { return false }

func (p *MplCoreParser) ParseInstruction(InstructionBundle) (Event, error) {
	return nil, nil
}

func (p *MplCoreParser) ParseAccount(b AccountBundle) (Event, error) {
	if b.Lamports == 0 || len(b.Data) == 0 {
		return &EmptyAccountEvent{Pubkey: b.Pubkey, SlotUpdated: b.Slot}, nil
	}

	c := newCursor(b.Data)
	kind, ok := c.byte()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing core account kind marker"}
	}

	switch kind {
	case coreKindAsset:
		owner, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "core asset missing owner"}
		}
		hasCollection, ok := c.bool()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "core asset missing collection flag"}
		}
		var collection []byte
		if hasCollection {
			collection, ok = c.pubkey()
			if !ok {
				return nil, &ParseError{Kind: "truncated", Reason: "core asset missing collection id"}
			}
		}
		return &MplCoreAssetEvent{Pubkey: b.Pubkey, Owner: owner, CollectionID: collection, SlotUpdated: b.Slot}, nil
	case coreKindCollection:
		numMinted, ok := c.i64()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "core collection missing num_minted"}
		}
		return &MplCoreCollectionEvent{Pubkey: b.Pubkey, NumMinted: numMinted, SlotUpdated: b.Slot}, nil
	default:
		return nil, &ParseError{Kind: "unknown_account_kind", Reason: "unrecognized core account marker"}
	}
}
