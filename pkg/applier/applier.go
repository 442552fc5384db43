package applier

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/certen/cnft-indexer/pkg/database"
	"github.com/certen/cnft-indexer/pkg/merkle"
	"github.com/certen/cnft-indexer/pkg/programs"
)

// collectionGroupKey is the AssetGrouping.GroupKey used for collection
// membership, the only grouping kind this spec's event set produces.
const collectionGroupKey = "collection"

// Applier applies parsed program events to the store under the
// ordering and idempotence discipline of §4.3.
type Applier struct {
	assets             AssetStore
	changeLogs         ChangeLogStore
	metadata           MetadataEnqueuer
	accounts           AccountMirrorStore
	logger             *log.Logger
	warn               func(assetID []byte, reason string)
	bubblegumProgramID []byte
}

// New returns an Applier wired to its store dependencies.
func New(assets AssetStore, changeLogs ChangeLogStore, metadata MetadataEnqueuer, accounts AccountMirrorStore, logger *log.Logger) *Applier {
	if logger == nil {
		logger = log.New(log.Writer(), "[Applier] ", log.LstdFlags)
	}
	return &Applier{assets: assets, changeLogs: changeLogs, metadata: metadata, accounts: accounts, logger: logger, warn: func([]byte, string) {}}
}

// SetWarnFunc wires a callback invoked whenever the applier swallows a
// stale-seq write — the ingestion pipeline uses this to increment its
// invariant-violation warning metric without the applier importing a
// metrics package of its own.
func (a *Applier) SetWarnFunc(f func(assetID []byte, reason string)) {
	if f == nil {
		f = func([]byte, string) {}
	}
	a.warn = f
}

// SetBubblegumProgramID wires the program id applyVerifyCollection
// compares an event's collection field against. Per §4.3.B's v2
// encoding, a collection field equal to this id signals "clear
// collection" rather than "verify membership in this collection".
func (a *Applier) SetBubblegumProgramID(id []byte) {
	a.bubblegumProgramID = id
}

// Apply applies one parsed event. A guarded write rejected as stale
// (database.ErrStaleSeq) is swallowed by ignoreStale and reported only
// through the warn callback. Any other error (a store failure, an
// unhandled event kind) is returned, and the ingestion loops withhold
// the message's ack for any such error so the bus redelivers it.
func (a *Applier) Apply(ctx context.Context, ev programs.Event) error {
	switch e := ev.(type) {
	case *programs.MintEvent:
		return a.applyMint(ctx, e)
	case *programs.TransferEvent:
		return a.applyTransfer(ctx, e)
	case *programs.DelegateEvent:
		return a.applyDelegate(ctx, e)
	case *programs.BurnEvent:
		return a.applyBurn(ctx, e)
	case *programs.RedeemEvent:
		return a.applyRedeem(ctx, e)
	case *programs.CancelRedeemEvent:
		return a.applyCancelRedeem(ctx, e)
	case *programs.DecompressEvent:
		return a.applyDecompress(ctx, e)
	case *programs.VerifyCreatorEvent:
		return a.applyVerifyCreator(ctx, e)
	case *programs.VerifyCollectionEvent:
		return a.applyVerifyCollection(ctx, e)
	case *programs.UpdateMetadataEvent:
		return a.applyUpdateMetadata(ctx, e)
	case *programs.FinalizeTreeWithRootEvent:
		return a.applyFinalizeTreeWithRoot(ctx, e)
	case *programs.TokenAccountEvent:
		return a.accounts.UpsertTokenAccount(ctx, &database.TokenAccount{
			Pubkey: e.Pubkey, Mint: e.Mint, Owner: e.Owner, Amount: e.Amount,
			Delegate: e.Delegate, Frozen: e.Frozen, SlotUpdated: e.SlotUpdated,
		})
	case *programs.EmptyAccountEvent:
		return a.accounts.DeleteTokenAccount(ctx, e.Pubkey)
	case *programs.MplCoreAssetEvent:
		return a.accounts.UpsertMplCoreAsset(ctx, &database.MplCoreAsset{
			Pubkey: e.Pubkey, Owner: e.Owner, CollectionID: e.CollectionID, SlotUpdated: e.SlotUpdated,
		})
	case *programs.MplCoreCollectionEvent:
		return a.accounts.UpsertMplCoreCollection(ctx, &database.MplCoreCollection{
			Pubkey: e.Pubkey, NumMinted: e.NumMinted, SlotUpdated: e.SlotUpdated,
		})
	case *programs.MintAccountEvent, *programs.TokenMetadataEvent, *programs.TokenInscriptionEvent:
		// Parsed but not stored: these are not part of the compressed-asset
		// state machine or backed by a store interface this applier owns.
		return nil
	default:
		return fmt.Errorf("applier: unhandled event kind %T", ev)
	}
}

// recordChangeLog performs discipline A: the change-log write. Insert is
// idempotent on (tree_id, seq, instruction_tag); InsertAudit writes an
// independent second row keyed by its own auto-id, per §4.3.A, so a
// deduplicated replay still leaves a forensic trail.
func (a *Applier) recordChangeLog(ctx context.Context, tu *programs.TreeUpdate, leafIndex int64, tag string) error {
	if tu == nil {
		return nil
	}
	entry := &database.ChangeLogEntry{
		TreeID:         tu.TreeID,
		Seq:            tu.Seq,
		LeafIndex:      leafIndex,
		NodeIndex:      tu.NodeIndex,
		Hash:           tu.Hash,
		Slot:           tu.Slot,
		InstructionTag: tag,
		TxSignature:    tu.Signature,
	}
	if err := a.changeLogs.Insert(ctx, entry); err != nil {
		return err
	}
	if err := a.changeLogs.InsertAudit(ctx, entry); err != nil {
		return err
	}
	return nil
}

func (a *Applier) applyMint(ctx context.Context, e *programs.MintEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}

	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	seq := int64(0)
	if e.Tree != nil {
		seq = e.Tree.Seq
	}

	asset := &database.Asset{
		ID: assetID, TreeID: e.TreeID, LeafIndex: e.LeafIndex, Nonce: e.Leaf.Nonce, Seq: seq,
		LeafHash: e.Leaf.LeafHash, DataHash: e.Leaf.DataHash, CreatorHash: e.Leaf.CreatorHash,
		Owner: e.Owner, Delegate: e.Delegate, OwnerDelegateSeq: seq,
		Compressed: true, Compressible: true,
	}
	if err := a.assets.UpsertLeafInfo(ctx, asset); err != nil {
		return err
	}

	creators := make([]database.AssetCreator, len(e.Metadata.Creators))
	for i, c := range e.Metadata.Creators {
		creators[i] = database.AssetCreator{AssetID: assetID, Creator: c.Address, Share: c.Share, Verified: c.Verified, VerifiedSeq: seq, Position: i}
	}
	if err := a.assets.UpsertCreators(ctx, assetID, creators); err != nil {
		return err
	}

	if e.Metadata.Collection != nil {
		if err := a.ignoreStale(assetID, a.assets.UpsertGrouping(ctx, &database.AssetGrouping{
			AssetID: assetID, GroupKey: collectionGroupKey, GroupValue: e.Metadata.Collection.Key,
			Verified: e.Metadata.Collection.Verified, GroupInfoSeq: seq,
		})); err != nil {
			return err
		}
	}

	if e.Metadata.URI != "" {
		if _, err := a.metadata.Enqueue(ctx, assetID, e.Metadata.URI); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) applyTransfer(ctx context.Context, e *programs.TransferEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	return a.ignoreStale(assetID, a.assets.UpsertOwnerDelegate(ctx, assetID, e.NewOwner, e.NewDelegate, e.OwnerDelegateSeq))
}

func (a *Applier) applyDelegate(ctx context.Context, e *programs.DelegateEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	return a.ignoreStale(assetID, a.assets.UpsertOwnerDelegate(ctx, assetID, e.Owner, e.NewDelegate, e.OwnerDelegateSeq))
}

// ignoreStale swallows ErrStaleSeq: an out-of-order owner/delegate write
// losing to a later seq already applied is expected under at-least-once,
// unordered delivery, not a failure the ingestion pipeline should retry.
// It still reports the occurrence through warn, since §7's "invariant
// violations" error policy calls for a warning metric even though the
// write itself is a correct no-op.
func (a *Applier) ignoreStale(assetID []byte, err error) error {
	if errors.Is(err, database.ErrStaleSeq) {
		a.warn(assetID, "stale seq")
		return nil
	}
	return err
}

func (a *Applier) applyBurn(ctx context.Context, e *programs.BurnEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	seq := int64(0)
	if e.Tree != nil {
		seq = e.Tree.Seq
	}
	// Leaf data is retained for proof reconstruction, per §4.3.B: burn
	// only flips the sticky flag, it never clears leaf_hash/data_hash.
	return a.assets.SetBurnt(ctx, assetID, seq)
}

func (a *Applier) applyRedeem(ctx context.Context, e *programs.RedeemEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	seq := int64(0)
	if e.Tree != nil {
		seq = e.Tree.Seq
	}
	return a.assets.UpsertLeafInfo(ctx, &database.Asset{
		ID: assetID, TreeID: e.TreeID, LeafIndex: e.LeafIndex, Seq: seq, LeafHash: nil,
	})
}

func (a *Applier) applyCancelRedeem(ctx context.Context, e *programs.CancelRedeemEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	seq := int64(0)
	if e.Tree != nil {
		seq = e.Tree.Seq
	}
	return a.assets.UpsertLeafInfo(ctx, &database.Asset{
		ID: assetID, TreeID: e.TreeID, LeafIndex: e.LeafIndex, Seq: seq, LeafHash: e.Leaf.LeafHash,
	})
}

// applyDecompress implements Open Question O1: burnt is sticky, so a
// decompress on an already-burnt leaf is accepted as a no-op. Decompress
// carries no tree update, so no change-log entry is written for it; the
// only write is the compressed-flag flip, which the store's burnt guard
// skips on a burnt asset.
func (a *Applier) applyDecompress(ctx context.Context, e *programs.DecompressEvent) error {
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	return a.assets.Decompress(ctx, assetID)
}

// applyVerifyCreator flips a single creator's verified bit through the
// seq-guarded single-row path (discipline B): a stale replay of this
// event must not revert a verified flag a later event already set
// (invariant in §3, guard requirement in §4.3.B).
func (a *Applier) applyVerifyCreator(ctx context.Context, e *programs.VerifyCreatorEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	seq := int64(0)
	if e.Tree != nil {
		seq = e.Tree.Seq
	}
	return a.ignoreStale(assetID, a.assets.VerifyCreator(ctx, assetID, e.Creator, e.Verify, seq))
}

// applyVerifyCollection sets or verifies collection-grouping membership
// through the seq-guarded grouping upsert (discipline B). §4.3.B's v2
// encoding signals "clear collection" by the collection field carrying
// the bubblegum program id itself rather than a real collection
// pubkey; in that case the grouping value is cleared instead of being
// written literally.
func (a *Applier) applyVerifyCollection(ctx context.Context, e *programs.VerifyCollectionEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	seq := int64(0)
	if e.Tree != nil {
		seq = e.Tree.Seq
	}

	collection := e.Collection
	verified := e.Verify
	if len(a.bubblegumProgramID) > 0 && string(e.Collection) == string(a.bubblegumProgramID) {
		collection = nil
		verified = false
	}

	return a.ignoreStale(assetID, a.assets.UpsertGrouping(ctx, &database.AssetGrouping{
		AssetID: assetID, GroupKey: collectionGroupKey, GroupValue: collection, Verified: verified, GroupInfoSeq: seq,
	}))
}

func (a *Applier) applyUpdateMetadata(ctx context.Context, e *programs.UpdateMetadataEvent) error {
	if err := a.recordChangeLog(ctx, e.Tree, e.LeafIndex, string(e.Kind())); err != nil {
		return err
	}
	assetID := merkle.DeriveAssetID(e.TreeID, e.LeafIndex)
	if e.Metadata.URI != "" {
		if _, err := a.metadata.Enqueue(ctx, assetID, e.Metadata.URI); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) applyFinalizeTreeWithRoot(ctx context.Context, e *programs.FinalizeTreeWithRootEvent) error {
	return a.accounts.InsertBatchMintFile(ctx, &database.BatchMintFile{
		ID: uuid.New(), TreeID: e.TreeID, FileHash: e.MetadataHash, URL: e.MetadataURL,
		Slot: e.Slot, Signature: e.Signature, Staker: e.Staker, Collection: e.Collection,
		State: database.BatchMintReceived,
	})
}
