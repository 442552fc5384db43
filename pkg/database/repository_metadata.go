package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MetadataRepository persists the off-chain metadata fetch queue and the
// asset_data rows it populates, for the Metadata-JSON Worker (§4.6).
type MetadataRepository struct {
	client *Client
}

// NewMetadataRepository returns a repository bound to client.
func NewMetadataRepository(client *Client) *MetadataRepository {
	return &MetadataRepository{client: client}
}

// Enqueue creates a pending fetch task for an asset's metadata URI,
// skipping it if one is already pending or locked.
func (r *MetadataRepository) Enqueue(ctx context.Context, assetID []byte, uri string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO metadata_tasks (id, asset_id, uri, status, attempts, locked_until, created_at)
		VALUES ($1,$2,$3,'pending',0,'epoch',now())
		ON CONFLICT (asset_id) DO UPDATE SET
			uri = EXCLUDED.uri,
			status = 'pending',
			attempts = 0
		WHERE metadata_tasks.status IN ('completed','failed')`,
		id, assetID, uri,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue metadata task: %w", err)
	}
	return id, nil
}

// ClaimNext atomically claims the oldest pending (or lock-expired) task
// and locks it for lockDuration, so two workers never process the same
// task concurrently.
func (r *MetadataRepository) ClaimNext(ctx context.Context, lockDuration time.Duration) (*MetadataTask, error) {
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t := &MetadataTask{}
	err = tx.Tx().QueryRowContext(ctx, `
		SELECT id, asset_id, uri, status, attempts, locked_until, created_at
		FROM metadata_tasks
		WHERE status = 'pending' OR (status = 'locked' AND locked_until < now())
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`).Scan(
		&t.ID, &t.AssetID, &t.URI, &t.Status, &t.Attempts, &t.LockedUntil, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNoTaskAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim next metadata task: %w", err)
	}

	lockedUntil := time.Now().Add(lockDuration)
	if _, err := tx.Tx().ExecContext(ctx, `
		UPDATE metadata_tasks SET status = 'locked', locked_until = $2 WHERE id = $1`,
		t.ID, lockedUntil,
	); err != nil {
		return nil, fmt.Errorf("lock metadata task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	t.Status = MetadataTaskLocked
	t.LockedUntil = lockedUntil
	return t, nil
}

// Complete marks a task completed and writes the fetched metadata JSON
// onto the asset's asset_data row.
func (r *MetadataRepository) Complete(ctx context.Context, taskID uuid.UUID, assetID []byte, metadataJSON []byte, slotUpdated int64) error {
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Tx().ExecContext(ctx, `
		UPDATE metadata_tasks SET status = 'completed' WHERE id = $1`, taskID,
	); err != nil {
		return fmt.Errorf("complete metadata task: %w", err)
	}

	if _, err := tx.Tx().ExecContext(ctx, `
		INSERT INTO asset_data (asset_id, metadata_json, reindex_required, fetch_attempts, last_fetch_error, slot_updated)
		VALUES ($1,$2,false,0,'',$3)
		ON CONFLICT (asset_id) DO UPDATE SET
			metadata_json = EXCLUDED.metadata_json,
			reindex_required = false,
			last_fetch_error = '',
			slot_updated = EXCLUDED.slot_updated
		WHERE EXCLUDED.slot_updated >= asset_data.slot_updated`,
		assetID, metadataJSON, slotUpdated,
	); err != nil {
		return fmt.Errorf("update asset data: %w", err)
	}

	return tx.Commit()
}

// Fail records a failed attempt. If attempts has reached maxAttempts the
// task is marked permanently failed; otherwise it is returned to pending,
// where ClaimNext can pick it up again at once.
func (r *MetadataRepository) Fail(ctx context.Context, taskID uuid.UUID, maxAttempts int, fetchErr string) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE metadata_tasks SET
			attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END
		WHERE id = $1`,
		taskID, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("fail metadata task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMetadataTaskNotFound
	}
	_, err = r.client.ExecContext(ctx, `
		UPDATE asset_data SET last_fetch_error = $2, fetch_attempts = fetch_attempts + 1
		WHERE asset_id = (SELECT asset_id FROM metadata_tasks WHERE id = $1)`,
		taskID, fetchErr,
	)
	if err != nil {
		return fmt.Errorf("record fetch error: %w", err)
	}
	return nil
}
