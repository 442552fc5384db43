// Package applier implements the event applier (C3): the compressed
// asset state machine. It depends on narrow, consumer-defined store
// interfaces rather than concrete database types so the state machine
// can be unit-tested without a live store.
package applier

import (
	"context"

	"github.com/google/uuid"

	"github.com/certen/cnft-indexer/pkg/database"
)

// AssetStore is the subset of the asset repository the applier needs.
type AssetStore interface {
	Get(ctx context.Context, assetID []byte) (*database.Asset, error)
	UpsertLeafInfo(ctx context.Context, a *database.Asset) error
	UpsertOwnerDelegate(ctx context.Context, assetID, owner, delegate []byte, ownerDelegateSeq int64) error
	SetBurnt(ctx context.Context, assetID []byte, seq int64) error
	Decompress(ctx context.Context, assetID []byte) error
	UpsertCreators(ctx context.Context, assetID []byte, creators []database.AssetCreator) error
	VerifyCreator(ctx context.Context, assetID, creator []byte, verify bool, seq int64) error
	UpsertGrouping(ctx context.Context, g *database.AssetGrouping) error
}

// ChangeLogStore is the subset of the change-log repository the
// applier needs. InsertAudit is a second, independent write of the same
// entry for the audit/gap-crawling trail §4.3.A requires alongside the
// primary, dedup-on-conflict Insert.
type ChangeLogStore interface {
	Insert(ctx context.Context, e *database.ChangeLogEntry) error
	InsertAudit(ctx context.Context, e *database.ChangeLogEntry) error
}

// MetadataEnqueuer lets the applier hand off a newly-minted asset's
// metadata URI to the metadata-JSON worker (C6) without depending on it
// directly.
type MetadataEnqueuer interface {
	Enqueue(ctx context.Context, assetID []byte, uri string) (uuid.UUID, error)
}

// AccountMirrorStore is the subset of the account repository the
// applier needs for §4.3.C account-scoped mutation.
type AccountMirrorStore interface {
	UpsertTokenAccount(ctx context.Context, a *database.TokenAccount) error
	DeleteTokenAccount(ctx context.Context, pubkey []byte) error
	UpsertMplCoreAsset(ctx context.Context, a *database.MplCoreAsset) error
	UpsertMplCoreCollection(ctx context.Context, c *database.MplCoreCollection) error
	InsertBatchMintFile(ctx context.Context, f *database.BatchMintFile) error
}
