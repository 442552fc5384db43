package database

import (
	"context"
	"fmt"
)

// ChangeLogRepository persists the append-only per-tree change log and
// supports the gap-detector's observed-seq queries.
type ChangeLogRepository struct {
	client *Client
}

// NewChangeLogRepository returns a repository bound to client.
func NewChangeLogRepository(client *Client) *ChangeLogRepository {
	return &ChangeLogRepository{client: client}
}

// Insert records one change-log entry. Duplicate (tree_id, seq,
// instruction_tag) inserts are ignored, making replay idempotent
// (property P4).
func (r *ChangeLogRepository) Insert(ctx context.Context, e *ChangeLogEntry) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO change_log (tree_id, seq, leaf_index, node_index, hash, slot, instruction_tag, tx_signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (tree_id, seq, instruction_tag) DO NOTHING`,
		e.TreeID, e.Seq, e.LeafIndex, e.NodeIndex, e.Hash, e.Slot, e.InstructionTag, e.TxSignature,
	)
	if err != nil {
		return fmt.Errorf("insert change log entry: %w", err)
	}
	return nil
}

// InsertAudit writes the independent second change-log row §4.3.A
// requires: keyed by its own auto-id rather than the primary table's
// (tree_id, seq, instruction_tag) uniqueness, so a replayed duplicate
// still lands its own audit row instead of being deduplicated away.
// Used for forensics and gap crawling by signature, never read by the
// state machine itself.
func (r *ChangeLogRepository) InsertAudit(ctx context.Context, e *ChangeLogEntry) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO change_log_audit (tree_id, seq, leaf_index, node_index, hash, slot, instruction_tag, tx_signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())`,
		e.TreeID, e.Seq, e.LeafIndex, e.NodeIndex, e.Hash, e.Slot, e.InstructionTag, e.TxSignature,
	)
	if err != nil {
		return fmt.Errorf("insert change log audit row: %w", err)
	}
	return nil
}

// MaxSeq returns the highest recorded seq for a tree, or -1 if none.
func (r *ChangeLogRepository) MaxSeq(ctx context.Context, treeID []byte) (int64, error) {
	var max int64
	err := r.client.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), -1) FROM change_log WHERE tree_id = $1`, treeID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return max, nil
}

// ObservedSeqs returns every recorded seq for a tree, used by the gap
// detector (§4.4) to compute missing ranges.
func (r *ChangeLogRepository) ObservedSeqs(ctx context.Context, treeID []byte) ([]int64, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT seq FROM change_log WHERE tree_id = $1 ORDER BY seq`, treeID)
	if err != nil {
		return nil, fmt.Errorf("observed seqs: %w", err)
	}
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var s int64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan observed seq: %w", err)
		}
		seqs = append(seqs, s)
	}
	return seqs, rows.Err()
}
