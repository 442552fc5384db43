package applier

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/certen/cnft-indexer/pkg/database"
)

// fakeAssetStore mirrors the seq-guarded write discipline of
// pkg/database's AssetRepository, in memory, so the state machine can
// be property-tested without a live store.
type fakeAssetStore struct {
	assets    map[string]*database.Asset
	creators  map[string][]database.AssetCreator
	groupings map[string]map[string]*database.AssetGrouping
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{
		assets:    make(map[string]*database.Asset),
		creators:  make(map[string][]database.AssetCreator),
		groupings: make(map[string]map[string]*database.AssetGrouping),
	}
}

func (f *fakeAssetStore) Get(ctx context.Context, assetID []byte) (*database.Asset, error) {
	a, ok := f.assets[string(assetID)]
	if !ok {
		return nil, database.ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssetStore) UpsertLeafInfo(ctx context.Context, in *database.Asset) error {
	key := string(in.ID)
	existing, ok := f.assets[key]
	if !ok {
		cp := *in
		f.assets[key] = &cp
		return nil
	}
	if existing.Seq >= in.Seq {
		return nil // stale write, guarded no-op
	}
	if in.LeafHash != nil {
		existing.LeafHash = in.LeafHash
	}
	if in.DataHash != nil {
		existing.DataHash = in.DataHash
	}
	if in.CreatorHash != nil {
		existing.CreatorHash = in.CreatorHash
	}
	existing.Nonce = in.Nonce
	existing.Seq = in.Seq
	existing.Compressed = in.Compressed
	existing.Compressible = in.Compressible
	if in.OwnerDelegateSeq > existing.OwnerDelegateSeq {
		existing.Owner = in.Owner
		existing.Delegate = in.Delegate
		existing.OwnerDelegateSeq = in.OwnerDelegateSeq
	}
	return nil
}

func (f *fakeAssetStore) UpsertOwnerDelegate(ctx context.Context, assetID, owner, delegate []byte, ownerDelegateSeq int64) error {
	a, ok := f.assets[string(assetID)]
	if !ok {
		return database.ErrAssetNotFound
	}
	if ownerDelegateSeq <= a.OwnerDelegateSeq {
		return database.ErrStaleSeq
	}
	a.Owner = owner
	a.Delegate = delegate
	a.OwnerDelegateSeq = ownerDelegateSeq
	return nil
}

func (f *fakeAssetStore) SetBurnt(ctx context.Context, assetID []byte, seq int64) error {
	a, ok := f.assets[string(assetID)]
	if !ok {
		return database.ErrAssetNotFound
	}
	a.Burnt = true
	if seq > a.Seq {
		a.Seq = seq
	}
	return nil
}

func (f *fakeAssetStore) Decompress(ctx context.Context, assetID []byte) error {
	a, ok := f.assets[string(assetID)]
	if !ok {
		return database.ErrAssetNotFound
	}
	if a.Burnt {
		return nil // sticky: no-op past burn, Open Question O1
	}
	a.Compressed = false
	return nil
}

func (f *fakeAssetStore) UpsertCreators(ctx context.Context, assetID []byte, creators []database.AssetCreator) error {
	f.creators[string(assetID)] = creators
	return nil
}

func (f *fakeAssetStore) VerifyCreator(ctx context.Context, assetID, creator []byte, verify bool, seq int64) error {
	for i, c := range f.creators[string(assetID)] {
		if string(c.Creator) == string(creator) {
			if seq <= c.VerifiedSeq {
				return database.ErrStaleSeq
			}
			f.creators[string(assetID)][i].Verified = verify
			f.creators[string(assetID)][i].VerifiedSeq = seq
			return nil
		}
	}
	return database.ErrStaleSeq
}

func (f *fakeAssetStore) UpsertGrouping(ctx context.Context, g *database.AssetGrouping) error {
	key := string(g.AssetID)
	if f.groupings[key] == nil {
		f.groupings[key] = make(map[string]*database.AssetGrouping)
	}
	existing, ok := f.groupings[key][g.GroupKey]
	if ok && g.GroupInfoSeq <= existing.GroupInfoSeq {
		return database.ErrStaleSeq
	}
	cp := *g
	f.groupings[key][g.GroupKey] = &cp
	return nil
}

type fakeChangeLogStore struct {
	seen      map[string]bool
	entries   []*database.ChangeLogEntry
	auditRows []*database.ChangeLogEntry
}

func newFakeChangeLogStore() *fakeChangeLogStore {
	return &fakeChangeLogStore{seen: make(map[string]bool)}
}

func (f *fakeChangeLogStore) Insert(ctx context.Context, e *database.ChangeLogEntry) error {
	key := fmt.Sprintf("%s:%d:%s", e.TreeID, e.Seq, e.InstructionTag)
	if f.seen[key] {
		return nil
	}
	f.seen[key] = true
	f.entries = append(f.entries, e)
	return nil
}

// InsertAudit mirrors ChangeLogRepository.InsertAudit: every call
// appends a row, independent of the primary table's dedup-on-conflict
// behavior above.
func (f *fakeChangeLogStore) InsertAudit(ctx context.Context, e *database.ChangeLogEntry) error {
	f.auditRows = append(f.auditRows, e)
	return nil
}

type fakeMetadataEnqueuer struct {
	enqueued []string
}

func (f *fakeMetadataEnqueuer) Enqueue(ctx context.Context, assetID []byte, uri string) (uuid.UUID, error) {
	f.enqueued = append(f.enqueued, uri)
	return uuid.New(), nil
}

type fakeAccountMirrorStore struct {
	tokenAccounts map[string]*database.TokenAccount
	batchMints    []*database.BatchMintFile
}

func newFakeAccountMirrorStore() *fakeAccountMirrorStore {
	return &fakeAccountMirrorStore{tokenAccounts: make(map[string]*database.TokenAccount)}
}

func (f *fakeAccountMirrorStore) UpsertTokenAccount(ctx context.Context, a *database.TokenAccount) error {
	f.tokenAccounts[string(a.Pubkey)] = a
	return nil
}

func (f *fakeAccountMirrorStore) DeleteTokenAccount(ctx context.Context, pubkey []byte) error {
	delete(f.tokenAccounts, string(pubkey))
	return nil
}

func (f *fakeAccountMirrorStore) UpsertMplCoreAsset(ctx context.Context, a *database.MplCoreAsset) error {
	return nil
}

func (f *fakeAccountMirrorStore) UpsertMplCoreCollection(ctx context.Context, c *database.MplCoreCollection) error {
	return nil
}

func (f *fakeAccountMirrorStore) InsertBatchMintFile(ctx context.Context, bf *database.BatchMintFile) error {
	f.batchMints = append(f.batchMints, bf)
	return nil
}
