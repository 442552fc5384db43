package programs

import "fmt"

// Compressed-asset instruction discriminators. The byte layout here is
// this indexer's stand-in for the real program's wire format, which §1
// of this system's scope treats as an external, opaque detail; what
// matters downstream is only the typed Event produced.
const (
	discMintV1                 = 1
	discMintToCollectionV1     = 2
	discTransfer               = 3
	discDelegate               = 4
	discBurn                   = 5
	discRedeem                 = 6
	discCancelRedeem           = 7
	discDecompress             = 8
	discVerifyCreator          = 9
	discVerifyCollection       = 10
	discSetAndVerifyCollection = 11
	discUpdateMetadata         = 12
	discFinalizeTreeWithRoot   = 13
)

// CompressedAssetParser decodes the compressed-asset program's
// instructions into the CompressedAsset event family (§4.2). It carries
// no state and does no I/O.
type CompressedAssetParser struct {
	programID []byte
}

// NewCompressedAssetParser returns a parser advertising programID.
func NewCompressedAssetParser(programID []byte) *CompressedAssetParser {
	return &CompressedAssetParser{programID: programID}
}

func (p *CompressedAssetParser) ProgramID() []byte        { return p.programID }
func (p *CompressedAssetParser) HandlesAccounts() bool     { return false }
func (p *CompressedAssetParser) HandlesInstructions() bool { return true }

func (p *CompressedAssetParser) ParseAccount(AccountBundle) (Event, error) {
	return nil, nil
}

func (p *CompressedAssetParser) ParseInstruction(b InstructionBundle) (Event, error) {
	c := newCursor(b.Data)

	disc, ok := c.byte()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing discriminator byte"}
	}

	treeID, ok := c.pubkey()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing tree id"}
	}
	leafIndex, ok := c.i64()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing leaf index"}
	}
	seq, ok := c.i64()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing seq"}
	}
	nodeIndex, ok := c.i64()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing node index"}
	}
	nodeHash, ok := c.bytes(32)
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "missing node hash"}
	}

	tree := &TreeUpdate{
		TreeID:    treeID,
		Seq:       seq,
		NodeIndex: nodeIndex,
		Hash:      nodeHash,
		Slot:      b.Slot,
		Signature: b.Signature,
	}

	switch disc {
	case discMintV1, discMintToCollectionV1:
		return p.parseMint(c, disc == discMintToCollectionV1, treeID, leafIndex, tree)
	case discTransfer:
		newOwner, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "transfer missing new owner"}
		}
		ods, ok := c.i64()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "transfer missing owner_delegate_seq"}
		}
		return &TransferEvent{TreeID: treeID, LeafIndex: leafIndex, NewOwner: newOwner, OwnerDelegateSeq: ods, Tree: tree}, nil
	case discDelegate:
		owner, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "delegate missing owner"}
		}
		newDelegate, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "delegate missing new delegate"}
		}
		ods, ok := c.i64()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "delegate missing owner_delegate_seq"}
		}
		return &DelegateEvent{TreeID: treeID, LeafIndex: leafIndex, Owner: owner, NewDelegate: newDelegate, OwnerDelegateSeq: ods, Tree: tree}, nil
	case discBurn:
		return &BurnEvent{TreeID: treeID, LeafIndex: leafIndex, Tree: tree}, nil
	case discRedeem:
		return &RedeemEvent{TreeID: treeID, LeafIndex: leafIndex, Tree: tree}, nil
	case discCancelRedeem:
		leafHash, ok := c.bytes(32)
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "cancel_redeem missing leaf hash"}
		}
		return &CancelRedeemEvent{TreeID: treeID, LeafIndex: leafIndex, Leaf: &LeafUpdate{LeafHash: leafHash, Nonce: leafIndex}, Tree: tree}, nil
	case discDecompress:
		return &DecompressEvent{TreeID: treeID, LeafIndex: leafIndex}, nil
	case discVerifyCreator, discVerifyCollection, discSetAndVerifyCollection:
		return p.parseVerify(c, disc, treeID, leafIndex, tree)
	case discUpdateMetadata:
		meta, ok := parseMetadataEcho(c)
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "update_metadata missing metadata echo"}
		}
		return &UpdateMetadataEvent{TreeID: treeID, LeafIndex: leafIndex, Metadata: meta, Tree: tree}, nil
	case discFinalizeTreeWithRoot:
		merkleRoot, ok := c.bytes(32)
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "finalize missing merkle root"}
		}
		url, ok := c.str()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "finalize missing metadata url"}
		}
		metadataHash, ok := c.bytes(32)
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "finalize missing metadata hash"}
		}
		staker, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "finalize missing staker"}
		}
		collection, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "finalize missing collection"}
		}
		return &FinalizeTreeWithRootEvent{
			TreeID: treeID, MerkleRoot: merkleRoot, MetadataURL: url, MetadataHash: metadataHash,
			Staker: staker, Collection: collection, Slot: b.Slot, Signature: b.Signature,
		}, nil
	default:
		return nil, &ParseError{Kind: "unknown_discriminator", Reason: fmt.Sprintf("discriminator %d", disc)}
	}
}

func (p *CompressedAssetParser) parseMint(c *cursor, toCollection bool, treeID []byte, leafIndex int64, tree *TreeUpdate) (Event, error) {
	owner, ok := c.pubkey()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "mint missing owner"}
	}
	delegate, ok := c.pubkey()
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "mint missing delegate"}
	}
	meta, ok := parseMetadataEcho(c)
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "mint missing metadata echo"}
	}
	dataHash, ok := c.bytes(32)
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "mint missing data hash"}
	}
	creatorHash, ok := c.bytes(32)
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "mint missing creator hash"}
	}
	leafHash, ok := c.bytes(32)
	if !ok {
		return nil, &ParseError{Kind: "truncated", Reason: "mint missing leaf hash"}
	}

	return &MintEvent{
		ToCollection: toCollection,
		TreeID:       treeID,
		LeafIndex:    leafIndex,
		Owner:        owner,
		Delegate:     delegate,
		Metadata:     meta,
		Leaf: &LeafUpdate{
			LeafHash:    leafHash,
			DataHash:    dataHash,
			CreatorHash: creatorHash,
			Nonce:       leafIndex,
		},
		Tree: tree,
	}, nil
}

func (p *CompressedAssetParser) parseVerify(c *cursor, disc byte, treeID []byte, leafIndex int64, tree *TreeUpdate) (Event, error) {
	switch disc {
	case discVerifyCreator:
		creator, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "verify_creator missing creator"}
		}
		verify, ok := c.bool()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "verify_creator missing verify flag"}
		}
		meta, ok := parseMetadataEcho(c)
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "verify_creator missing metadata echo"}
		}
		return &VerifyCreatorEvent{TreeID: treeID, LeafIndex: leafIndex, Creator: creator, Verify: verify, Metadata: meta, Tree: tree}, nil
	default:
		collection, ok := c.pubkey()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "verify_collection missing collection"}
		}
		verify, ok := c.bool()
		if !ok {
			return nil, &ParseError{Kind: "truncated", Reason: "verify_collection missing verify flag"}
		}
		return &VerifyCollectionEvent{
			TreeID: treeID, LeafIndex: leafIndex, SetAndVerify: disc == discSetAndVerifyCollection,
			Collection: collection, Verify: verify, Tree: tree,
		}, nil
	}
}

// parseMetadataEcho reads a MetadataEcho: name, symbol, uri, a
// u64-counted creator list, then a has-collection bool and optional
// collection echo.
func parseMetadataEcho(c *cursor) (MetadataEcho, bool) {
	var meta MetadataEcho

	name, ok := c.str()
	if !ok {
		return meta, false
	}
	symbol, ok := c.str()
	if !ok {
		return meta, false
	}
	uri, ok := c.str()
	if !ok {
		return meta, false
	}
	meta.Name, meta.Symbol, meta.URI = name, symbol, uri

	count, ok := c.u64()
	if !ok {
		return meta, false
	}
	for i := uint64(0); i < count; i++ {
		addr, ok := c.pubkey()
		if !ok {
			return meta, false
		}
		share, ok := c.byte()
		if !ok {
			return meta, false
		}
		verified, ok := c.bool()
		if !ok {
			return meta, false
		}
		meta.Creators = append(meta.Creators, CreatorEcho{Address: addr, Share: int(share), Verified: verified})
	}

	hasCollection, ok := c.bool()
	if !ok {
		return meta, false
	}
	if hasCollection {
		key, ok := c.pubkey()
		if !ok {
			return meta, false
		}
		verified, ok := c.bool()
		if !ok {
			return meta, false
		}
		meta.Collection = &CollectionEcho{Key: key, Verified: verified}
	}

	return meta, true
}
