package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TreeRepository persists discovered tree configurations and the
// transaction-signature dedup set backfill uses for idempotent replay.
type TreeRepository struct {
	client *Client
}

// NewTreeRepository returns a repository bound to client.
func NewTreeRepository(client *Client) *TreeRepository {
	return &TreeRepository{client: client}
}

// Upsert records a discovered (or updated) tree configuration.
func (r *TreeRepository) Upsert(ctx context.Context, t *Tree) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO trees (tree_id, authority, max_depth, max_buffer_size, creation_slot, seq, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (tree_id) DO UPDATE SET
			authority = EXCLUDED.authority,
			seq = GREATEST(trees.seq, EXCLUDED.seq)`,
		t.TreeID, t.Authority, t.MaxDepth, t.MaxBufferSize, t.CreationSlot, t.Seq,
	)
	if err != nil {
		return fmt.Errorf("upsert tree: %w", err)
	}
	return nil
}

// Get returns a tree's configuration.
func (r *TreeRepository) Get(ctx context.Context, treeID []byte) (*Tree, error) {
	t := &Tree{}
	err := r.client.QueryRowContext(ctx, `
		SELECT tree_id, authority, max_depth, max_buffer_size, creation_slot, seq, created_at
		FROM trees WHERE tree_id = $1`, treeID).Scan(
		&t.TreeID, &t.Authority, &t.MaxDepth, &t.MaxBufferSize, &t.CreationSlot, &t.Seq, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTreeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	return t, nil
}

// All returns every discovered tree.
func (r *TreeRepository) All(ctx context.Context) ([]*Tree, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT tree_id, authority, max_depth, max_buffer_size, creation_slot, seq, created_at FROM trees`)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	defer rows.Close()

	var trees []*Tree
	for rows.Next() {
		t := &Tree{}
		if err := rows.Scan(&t.TreeID, &t.Authority, &t.MaxDepth, &t.MaxBufferSize, &t.CreationSlot, &t.Seq, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tree: %w", err)
		}
		trees = append(trees, t)
	}
	return trees, rows.Err()
}

// RecordSignature records that a transaction signature has been applied
// to a tree. Returns ErrSignatureAlreadySeen if it was already recorded.
func (r *TreeRepository) RecordSignature(ctx context.Context, treeID []byte, signature string, slot int64) error {
	res, err := r.client.ExecContext(ctx, `
		INSERT INTO tree_transactions (tree_id, signature, slot, created_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (tree_id, signature) DO NOTHING`,
		treeID, signature, slot,
	)
	if err != nil {
		return fmt.Errorf("record signature: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSignatureAlreadySeen
	}
	return nil
}

// HasSeenSignature reports whether a signature has already been applied
// to a tree.
func (r *TreeRepository) HasSeenSignature(ctx context.Context, treeID []byte, signature string) (bool, error) {
	var exists bool
	err := r.client.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tree_transactions WHERE tree_id = $1 AND signature = $2)`,
		treeID, signature).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has seen signature: %w", err)
	}
	return exists, nil
}
