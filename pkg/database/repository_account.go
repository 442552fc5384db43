package database

import (
	"context"
	"fmt"
)

// AccountRepository mirrors non-compressed account state the indexer
// observes alongside the compressed-asset tree: SPL token accounts and
// MPL Core assets/collections (§3.1 supplemented entities).
type AccountRepository struct {
	client *Client
}

// NewAccountRepository returns a repository bound to client.
func NewAccountRepository(client *Client) *AccountRepository {
	return &AccountRepository{client: client}
}

// UpsertTokenAccount records a token account snapshot, guarded by
// slot_updated so an out-of-order account update never overwrites a
// newer one.
func (r *AccountRepository) UpsertTokenAccount(ctx context.Context, a *TokenAccount) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO token_accounts (pubkey, mint, owner, amount, delegate, frozen, slot_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (pubkey) DO UPDATE SET
			mint = EXCLUDED.mint, owner = EXCLUDED.owner, amount = EXCLUDED.amount,
			delegate = EXCLUDED.delegate, frozen = EXCLUDED.frozen, slot_updated = EXCLUDED.slot_updated
		WHERE EXCLUDED.slot_updated >= token_accounts.slot_updated`,
		a.Pubkey, a.Mint, a.Owner, a.Amount, a.Delegate, a.Frozen, a.SlotUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert token account: %w", err)
	}
	return nil
}

// DeleteTokenAccount removes a token account row once its balance hits
// zero and it is closed on-chain.
func (r *AccountRepository) DeleteTokenAccount(ctx context.Context, pubkey []byte) error {
	if _, err := r.client.ExecContext(ctx, `DELETE FROM token_accounts WHERE pubkey = $1`, pubkey); err != nil {
		return fmt.Errorf("delete token account: %w", err)
	}
	return nil
}

// UpsertMplCoreAsset records an MPL Core asset account snapshot.
func (r *AccountRepository) UpsertMplCoreAsset(ctx context.Context, a *MplCoreAsset) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO mpl_core_assets (pubkey, owner, collection_id, slot_updated)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (pubkey) DO UPDATE SET
			owner = EXCLUDED.owner, collection_id = EXCLUDED.collection_id, slot_updated = EXCLUDED.slot_updated
		WHERE EXCLUDED.slot_updated >= mpl_core_assets.slot_updated`,
		a.Pubkey, a.Owner, a.CollectionID, a.SlotUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert mpl core asset: %w", err)
	}
	return nil
}

// UpsertMplCoreCollection records an MPL Core collection account snapshot.
func (r *AccountRepository) UpsertMplCoreCollection(ctx context.Context, c *MplCoreCollection) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO mpl_core_collections (pubkey, num_minted, slot_updated)
		VALUES ($1,$2,$3)
		ON CONFLICT (pubkey) DO UPDATE SET
			num_minted = EXCLUDED.num_minted, slot_updated = EXCLUDED.slot_updated
		WHERE EXCLUDED.slot_updated >= mpl_core_collections.slot_updated`,
		c.Pubkey, c.NumMinted, c.SlotUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert mpl core collection: %w", err)
	}
	return nil
}

// InsertBatchMintFile registers a new batch-mint file in the received
// state, the only state the core itself writes (Open Question O3).
func (r *AccountRepository) InsertBatchMintFile(ctx context.Context, f *BatchMintFile) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO batch_mint_files (id, tree_id, file_hash, url, slot, signature, staker, collection, state, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (tree_id, signature) DO NOTHING`,
		f.ID, f.TreeID, f.FileHash, f.URL, f.Slot, f.Signature, f.Staker, f.Collection, BatchMintReceived,
	)
	if err != nil {
		return fmt.Errorf("insert batch mint file: %w", err)
	}
	return nil
}

// AdvanceBatchMintState is the hook an external verifier calls to
// progress a batch-mint file through its later states; the core never
// calls this itself (Open Question O3).
func (r *AccountRepository) AdvanceBatchMintState(ctx context.Context, fileHash []byte, newState BatchMintPersistingState) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE batch_mint_files SET state = $2 WHERE file_hash = $1`,
		fileHash, newState,
	)
	if err != nil {
		return fmt.Errorf("advance batch mint state: %w", err)
	}
	return nil
}
