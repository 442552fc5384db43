// Package programs implements per-program parsers (C2): decoding raw
// instruction or account bytes belonging to a small set of known
// on-chain programs into typed events. Parsers are pure — no I/O — and
// the concrete wire layout of any individual program is treated as an
// external, opaque detail; what matters to the rest of the indexer is
// only the typed Event each parser produces.
package programs

// EventKind tags the concrete type behind the Event interface.
type EventKind string

const (
	EventMintV1               EventKind = "mint_v1"
	EventMintToCollectionV1   EventKind = "mint_to_collection_v1"
	EventTransfer             EventKind = "transfer"
	EventDelegate             EventKind = "delegate"
	EventBurn                 EventKind = "burn"
	EventRedeem               EventKind = "redeem"
	EventCancelRedeem         EventKind = "cancel_redeem"
	EventDecompress           EventKind = "decompress"
	EventVerifyCreator        EventKind = "verify_creator"
	EventVerifyCollection     EventKind = "verify_collection"
	EventSetAndVerifyCollection EventKind = "set_and_verify_collection"
	EventUpdateMetadata       EventKind = "update_metadata"
	EventFinalizeTreeWithRoot EventKind = "finalize_tree_with_root"

	EventMintAccount       EventKind = "mint_account"
	EventTokenAccount      EventKind = "token_account"
	EventTokenMetadata     EventKind = "token_metadata"
	EventMplCoreAsset      EventKind = "mpl_core_asset"
	EventMplCoreCollection EventKind = "mpl_core_collection"
	EventEmptyAccount      EventKind = "empty_account"
	EventTokenInscription  EventKind = "token_inscription"
)

// Event is the tagged-variant interface every parser produces.
type Event interface {
	Kind() EventKind
}

// LeafUpdate is the optional sub-structure a compressed-asset event
// carries describing its new leaf-level fields.
type LeafUpdate struct {
	LeafHash      []byte
	DataHash      []byte
	CreatorHash   []byte
	Nonce         int64
	AssetDataHash []byte // v2 only
	Flags         uint8  // v2 only
}

// TreeUpdate is the optional sub-structure describing the change-log
// node path this event produced.
type TreeUpdate struct {
	TreeID         []byte
	Seq            int64
	NodeIndex      int64
	Level          int
	Hash           []byte
	Slot           int64
	Signature      string
	InstructionTag string
}

// CreatorEcho is one creator entry echoed back in an instruction's
// on-chain metadata.
type CreatorEcho struct {
	Address  []byte
	Share    int
	Verified bool
}

// CollectionEcho is the collection membership echoed back in an
// instruction's on-chain metadata.
type CollectionEcho struct {
	Key      []byte
	Verified bool
}

// MetadataEcho is the on-chain metadata an instruction carries inline,
// used to populate AssetCreator/AssetGrouping and the metadata fetch on
// mint. VerifyCreatorEvent carries one too, but the applier does not use
// it: a verify updates only the named creator's row.
type MetadataEcho struct {
	Name       string
	Symbol     string
	URI        string
	Creators   []CreatorEcho
	Collection *CollectionEcho
}

// MintEvent covers both MintV1 and MintToCollectionV1 — the latter
// additionally carries a non-nil Metadata.Collection.
type MintEvent struct {
	ToCollection bool
	TreeID       []byte
	LeafIndex    int64
	Owner        []byte
	Delegate     []byte
	Metadata     MetadataEcho
	Leaf         *LeafUpdate
	Tree         *TreeUpdate
}

func (e *MintEvent) Kind() EventKind {
	if e.ToCollection {
		return EventMintToCollectionV1
	}
	return EventMintV1
}

// TransferEvent changes an asset's owner.
type TransferEvent struct {
	TreeID           []byte
	LeafIndex        int64
	NewOwner         []byte
	NewDelegate      []byte
	OwnerDelegateSeq int64
	Tree             *TreeUpdate
}

func (e *TransferEvent) Kind() EventKind { return EventTransfer }

// DelegateEvent changes an asset's delegate without changing owner.
type DelegateEvent struct {
	TreeID           []byte
	LeafIndex        int64
	Owner            []byte
	NewDelegate      []byte
	OwnerDelegateSeq int64
	Tree             *TreeUpdate
}

func (e *DelegateEvent) Kind() EventKind { return EventDelegate }

// BurnEvent marks a leaf burnt.
type BurnEvent struct {
	TreeID    []byte
	LeafIndex int64
	Tree      *TreeUpdate
}

func (e *BurnEvent) Kind() EventKind { return EventBurn }

// RedeemEvent zeroes a leaf's hash pending decompression.
type RedeemEvent struct {
	TreeID    []byte
	LeafIndex int64
	Tree      *TreeUpdate
}

func (e *RedeemEvent) Kind() EventKind { return EventRedeem }

// CancelRedeemEvent restores a previously-redeemed leaf.
type CancelRedeemEvent struct {
	TreeID    []byte
	LeafIndex int64
	Leaf      *LeafUpdate
	Tree      *TreeUpdate
}

func (e *CancelRedeemEvent) Kind() EventKind { return EventCancelRedeem }

// DecompressEvent moves a leaf out of the compressed tree.
type DecompressEvent struct {
	TreeID    []byte
	LeafIndex int64
}

func (e *DecompressEvent) Kind() EventKind { return EventDecompress }

// VerifyCreatorEvent flips one creator's verified bit.
type VerifyCreatorEvent struct {
	TreeID    []byte
	LeafIndex int64
	Creator   []byte
	Verify    bool
	Metadata  MetadataEcho
	Tree      *TreeUpdate
}

func (e *VerifyCreatorEvent) Kind() EventKind { return EventVerifyCreator }

// VerifyCollectionEvent flips (or sets) collection-grouping verification.
type VerifyCollectionEvent struct {
	TreeID       []byte
	LeafIndex    int64
	SetAndVerify bool
	Collection   []byte
	Verify       bool
	Tree         *TreeUpdate
}

func (e *VerifyCollectionEvent) Kind() EventKind {
	if e.SetAndVerify {
		return EventSetAndVerifyCollection
	}
	return EventVerifyCollection
}

// UpdateMetadataEvent replaces an asset's echoed metadata.
type UpdateMetadataEvent struct {
	TreeID    []byte
	LeafIndex int64
	Metadata  MetadataEcho
	Leaf      *LeafUpdate
	Tree      *TreeUpdate
}

func (e *UpdateMetadataEvent) Kind() EventKind { return EventUpdateMetadata }

// FinalizeTreeWithRootEvent registers a pending batch-mint verification.
type FinalizeTreeWithRootEvent struct {
	TreeID       []byte
	MerkleRoot   []byte
	MetadataURL  string
	MetadataHash []byte
	Staker       []byte
	Collection   []byte
	Slot         int64
	Signature    string
}

func (e *FinalizeTreeWithRootEvent) Kind() EventKind { return EventFinalizeTreeWithRoot }

// MintAccountEvent mirrors a mint account snapshot.
type MintAccountEvent struct {
	Pubkey      []byte
	Supply      uint64
	SlotUpdated int64
}

func (e *MintAccountEvent) Kind() EventKind { return EventMintAccount }

// TokenAccountEvent mirrors a token account snapshot.
type TokenAccountEvent struct {
	Pubkey      []byte
	Mint        []byte
	Owner       []byte
	Delegate    []byte
	Amount      uint64
	Frozen      bool
	SlotUpdated int64
}

func (e *TokenAccountEvent) Kind() EventKind { return EventTokenAccount }

// TokenMetadataEvent mirrors a token-metadata account snapshot.
type TokenMetadataEvent struct {
	Mint        []byte
	Name        string
	Symbol      string
	URI         string
	SlotUpdated int64
}

func (e *TokenMetadataEvent) Kind() EventKind { return EventTokenMetadata }

// MplCoreAssetEvent mirrors an MPL Core asset account snapshot.
type MplCoreAssetEvent struct {
	Pubkey       []byte
	Owner        []byte
	CollectionID []byte
	SlotUpdated  int64
}

func (e *MplCoreAssetEvent) Kind() EventKind { return EventMplCoreAsset }

// MplCoreCollectionEvent mirrors an MPL Core collection account snapshot.
type MplCoreCollectionEvent struct {
	Pubkey      []byte
	NumMinted   int64
	SlotUpdated int64
}

func (e *MplCoreCollectionEvent) Kind() EventKind { return EventMplCoreCollection }

// EmptyAccountEvent signals a zero-lamport account. The applier deletes
// the token-account row keyed by Pubkey; mint accounts are not stored,
// so no burn flag is set for an emptied mint.
type EmptyAccountEvent struct {
	Pubkey      []byte
	SlotUpdated int64
}

func (e *EmptyAccountEvent) Kind() EventKind { return EventEmptyAccount }

// TokenInscriptionEvent mirrors a token-inscription account snapshot.
type TokenInscriptionEvent struct {
	Mint        []byte
	SlotUpdated int64
}

func (e *TokenInscriptionEvent) Kind() EventKind { return EventTokenInscription }
