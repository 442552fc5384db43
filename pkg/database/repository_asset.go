package database

import (
	"context"
	"database/sql"
	"fmt"
)

// AssetRepository persists Asset rows under the strict monotonic-seq
// write discipline the state machine requires.
type AssetRepository struct {
	client *Client
}

// NewAssetRepository returns a repository bound to client.
func NewAssetRepository(client *Client) *AssetRepository {
	return &AssetRepository{client: client}
}

// Get returns the asset with the given id.
func (r *AssetRepository) Get(ctx context.Context, assetID []byte) (*Asset, error) {
	a := &Asset{}
	err := r.client.QueryRowContext(ctx, `
		SELECT id, tree_id, leaf_index, nonce, seq, leaf_hash, owner, delegate,
		       owner_delegate_seq, burnt, compressed, compressible, data_hash,
		       creator_hash, collection_hash, asset_data_id, created_at, updated_at
		FROM assets WHERE id = $1`, assetID).Scan(
		&a.ID, &a.TreeID, &a.LeafIndex, &a.Nonce, &a.Seq, &a.LeafHash, &a.Owner, &a.Delegate,
		&a.OwnerDelegateSeq, &a.Burnt, &a.Compressed, &a.Compressible, &a.DataHash,
		&a.CreatorHash, &a.CollectionHash, &a.AssetDataID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// UpsertLeafInfo inserts or seq-guarded-updates the leaf's core identity
// (tree, leaf index, nonce, leaf hash, data/creator hashes). Applying
// this with a seq not strictly greater than the stored seq is a no-op:
// this is the mechanism behind invariant I1 (monotonic per-leaf
// ordering) and property P4 (idempotent replay).
func (r *AssetRepository) UpsertLeafInfo(ctx context.Context, a *Asset) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO assets (id, tree_id, leaf_index, nonce, seq, leaf_hash, data_hash,
		                     creator_hash, collection_hash, compressed, compressible,
		                     burnt, owner, delegate, owner_delegate_seq, asset_data_id,
		                     created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,false,$12,$13,$14,$15,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			leaf_index = EXCLUDED.leaf_index,
			nonce = EXCLUDED.nonce,
			seq = EXCLUDED.seq,
			leaf_hash = EXCLUDED.leaf_hash,
			data_hash = EXCLUDED.data_hash,
			creator_hash = EXCLUDED.creator_hash,
			collection_hash = EXCLUDED.collection_hash,
			compressed = EXCLUDED.compressed,
			compressible = EXCLUDED.compressible,
			owner = CASE WHEN EXCLUDED.owner_delegate_seq > assets.owner_delegate_seq THEN EXCLUDED.owner ELSE assets.owner END,
			delegate = CASE WHEN EXCLUDED.owner_delegate_seq > assets.owner_delegate_seq THEN EXCLUDED.delegate ELSE assets.delegate END,
			owner_delegate_seq = GREATEST(assets.owner_delegate_seq, EXCLUDED.owner_delegate_seq),
			asset_data_id = COALESCE(EXCLUDED.asset_data_id, assets.asset_data_id),
			updated_at = now()
		WHERE assets.seq < EXCLUDED.seq`,
		a.ID, a.TreeID, a.LeafIndex, a.Nonce, a.Seq, a.LeafHash, a.DataHash,
		a.CreatorHash, a.CollectionHash, a.Compressed, a.Compressible,
		a.Owner, a.Delegate, a.OwnerDelegateSeq, a.AssetDataID,
	)
	if err != nil {
		return fmt.Errorf("upsert leaf info: %w", err)
	}
	return nil
}

// UpsertOwnerDelegate applies an owner/delegate change (Transfer,
// Delegate) guarded by owner_delegate_seq, independent of the leaf's
// main seq counter, per §4.3.
func (r *AssetRepository) UpsertOwnerDelegate(ctx context.Context, assetID, owner, delegate []byte, ownerDelegateSeq int64) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE assets SET owner = $2, delegate = $3, owner_delegate_seq = $4, updated_at = now()
		WHERE id = $1 AND owner_delegate_seq < $4`,
		assetID, owner, delegate, ownerDelegateSeq,
	)
	if err != nil {
		return fmt.Errorf("upsert owner/delegate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert owner/delegate rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleSeq
	}
	return nil
}

// SetBurnt marks the asset burnt. burnt is sticky: once true it is never
// cleared, per invariant I3 and Open Question O1.
func (r *AssetRepository) SetBurnt(ctx context.Context, assetID []byte, seq int64) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE assets SET burnt = true, seq = GREATEST(seq, $2), updated_at = now()
		WHERE id = $1`,
		assetID, seq,
	)
	if err != nil {
		return fmt.Errorf("set burnt: %w", err)
	}
	return nil
}

// Decompress marks the asset non-compressed. A no-op on an already-burnt
// asset, per Open Question O1; no change-log entry is written for it.
func (r *AssetRepository) Decompress(ctx context.Context, assetID []byte) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE assets SET compressed = false, updated_at = now()
		WHERE id = $1 AND burnt = false`,
		assetID,
	)
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	return nil
}

// UpsertCreators replaces an asset's creator list. Called only from the
// mint path, where the whole list is first established; VerifiedSeq is
// stamped at the given seq so a later, narrower VerifyCreator guard has
// a baseline to compare against.
func (r *AssetRepository) UpsertCreators(ctx context.Context, assetID []byte, creators []AssetCreator) error {
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Tx().ExecContext(ctx, `DELETE FROM asset_creators WHERE asset_id = $1`, assetID); err != nil {
		return fmt.Errorf("clear creators: %w", err)
	}
	for _, c := range creators {
		if _, err := tx.Tx().ExecContext(ctx, `
			INSERT INTO asset_creators (asset_id, creator, share, verified, verified_seq, position)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			assetID, c.Creator, c.Share, c.Verified, c.VerifiedSeq, c.Position,
		); err != nil {
			return fmt.Errorf("insert creator: %w", err)
		}
	}
	return tx.Commit()
}

// VerifyCreator flips a single creator row's verified bit, guarded by
// verified_seq: a VerifyCreator event whose seq is not strictly greater
// than the stored verified_seq is rejected as stale rather than applied,
// per §3's invariant and §4.3.B's "Guarded by seq". Returns ErrStaleSeq
// when the guard rejects the write (including when the creator row does
// not exist yet, mirroring UpsertOwnerDelegate's convention).
func (r *AssetRepository) VerifyCreator(ctx context.Context, assetID, creator []byte, verify bool, seq int64) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE asset_creators SET verified = $3, verified_seq = $4
		WHERE asset_id = $1 AND creator = $2 AND verified_seq < $4`,
		assetID, creator, verify, seq,
	)
	if err != nil {
		return fmt.Errorf("verify creator: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify creator rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleSeq
	}
	return nil
}

// UpsertGrouping sets an asset's (key, value) grouping pair, e.g. its
// collection membership, guarded by GroupInfoSeq: an insert always
// succeeds (first sighting of the grouping), but an update is rejected
// as stale when the incoming seq is not strictly greater than the
// stored one, per §3's Data Model tuple and §4.3.B's VerifyCollection/
// SetAndVerifyCollection guard.
func (r *AssetRepository) UpsertGrouping(ctx context.Context, g *AssetGrouping) error {
	res, err := r.client.ExecContext(ctx, `
		INSERT INTO asset_groupings (asset_id, group_key, group_value, verified, group_info_seq)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (asset_id, group_key) DO UPDATE SET
			group_value = EXCLUDED.group_value,
			verified = EXCLUDED.verified,
			group_info_seq = EXCLUDED.group_info_seq
		WHERE asset_groupings.group_info_seq < EXCLUDED.group_info_seq`,
		g.AssetID, g.GroupKey, g.GroupValue, g.Verified, g.GroupInfoSeq,
	)
	if err != nil {
		return fmt.Errorf("upsert grouping: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert grouping rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleSeq
	}
	return nil
}
