package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Asset is the canonical row for a compressed (or formerly compressed)
// digital asset leaf.
type Asset struct {
	ID                []byte // asset id, derived from (tree_id, nonce)
	TreeID            []byte
	LeafIndex         int64
	Nonce             int64
	Seq               int64
	LeafHash          []byte
	Owner             []byte
	Delegate          []byte
	OwnerDelegateSeq   int64
	Burnt             bool
	Compressed        bool
	Compressible      bool
	DataHash          []byte
	CreatorHash       []byte
	CollectionHash    []byte
	AssetDataID       []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AssetCreator is one row of an asset's creator list. VerifiedSeq guards
// Verified the same way Asset.OwnerDelegateSeq guards owner/delegate: a
// VerifyCreator event only flips Verified when its seq is strictly
// greater than the stored VerifiedSeq, per §3 and §4.3.B.
type AssetCreator struct {
	AssetID     []byte
	Creator     []byte
	Share       int
	Verified    bool
	VerifiedSeq int64
	Position    int
}

// AssetGrouping records a (key, value) grouping pair for an asset, most
// commonly ("collection", collection_pubkey). GroupInfoSeq guards both
// GroupValue and Verified against an out-of-order VerifyCollection or
// SetAndVerifyCollection event, per §3's Data Model tuple
// (asset_id, group_key, group_value, verified, group_info_seq).
type AssetGrouping struct {
	AssetID      []byte
	GroupKey     string
	GroupValue   []byte
	Verified     bool
	GroupInfoSeq int64
}

// ChangeLogEntry is one append-only row of a tree's change log, unique
// on (tree_id, seq, instruction_tag) per §4.3.A. TxSignature carries the
// transaction signature alongside the row so the audit table can be
// queried by signature without a join back to the primary table.
type ChangeLogEntry struct {
	TreeID         []byte
	Seq            int64
	LeafIndex      int64
	NodeIndex      int64
	Hash           []byte
	Slot           int64
	InstructionTag string
	TxSignature    string
	CreatedAt      time.Time
}

// AssetData holds the off-chain/on-chain metadata payload for an asset.
type AssetData struct {
	AssetID         []byte
	MetadataURI     string
	MetadataJSON    json.RawMessage
	ReindexRequired bool
	FetchAttempts   int
	LastFetchError  string
	SlotUpdated     int64
}

// Tree is a discovered concurrent Merkle tree's configuration.
type Tree struct {
	TreeID       []byte
	Authority    []byte
	MaxDepth     int
	MaxBufferSize int
	CreationSlot int64
	Seq          int64
	CreatedAt    time.Time
}

// TreeTransaction records a transaction signature already applied to a
// tree, used to make backfill replay idempotent.
type TreeTransaction struct {
	TreeID    []byte
	Signature string
	Slot      int64
	CreatedAt time.Time
}

// TokenAccount mirrors a token-account-owner/amount snapshot.
type TokenAccount struct {
	Pubkey      []byte
	Mint        []byte
	Owner       []byte
	Amount      uint64
	Delegate    []byte
	Frozen      bool
	SlotUpdated int64
}

// MplCoreAsset mirrors a non-compressed core asset account.
type MplCoreAsset struct {
	Pubkey        []byte
	Owner         []byte
	CollectionID  []byte
	SlotUpdated   int64
}

// MplCoreCollection mirrors a core collection account.
type MplCoreCollection struct {
	Pubkey      []byte
	NumMinted   int64
	SlotUpdated int64
}

// BatchMintPersistingState tracks a tree's FinalizeTreeWithRoot-triggered
// batch-mint file as it moves through verification.
type BatchMintPersistingState string

const (
	BatchMintReceived       BatchMintPersistingState = "received_transaction"
	BatchMintDownloaded     BatchMintPersistingState = "downloaded"
	BatchMintValidityCheck  BatchMintPersistingState = "validity_check"
	BatchMintRootVerified   BatchMintPersistingState = "root_verified"
	BatchMintFailed         BatchMintPersistingState = "fail"
)

// BatchMintFile is the record created when a FinalizeTreeWithRoot event
// is applied; it is advanced by an external verifier through
// AccountRepository.AdvanceBatchMintState (Open Question O3).
type BatchMintFile struct {
	ID         uuid.UUID
	TreeID     []byte
	FileHash   []byte
	URL        string
	Slot       int64
	Signature  string
	Staker     []byte
	Collection []byte
	State      BatchMintPersistingState
	CreatedAt  time.Time
}

// MetadataTaskStatus is the lifecycle state of a metadata fetch task.
type MetadataTaskStatus string

const (
	MetadataTaskPending   MetadataTaskStatus = "pending"
	MetadataTaskLocked    MetadataTaskStatus = "locked"
	MetadataTaskCompleted MetadataTaskStatus = "completed"
	MetadataTaskFailed    MetadataTaskStatus = "failed"
)

// MetadataTask is one queued metadata-JSON fetch job.
type MetadataTask struct {
	ID          uuid.UUID
	AssetID     []byte
	URI         string
	Status      MetadataTaskStatus
	Attempts    int
	LockedUntil time.Time
	CreatedAt   time.Time
}
