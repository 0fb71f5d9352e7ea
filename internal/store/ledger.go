package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/unifi-ops/internal/models"
)

// RecordDownload inserts a completed download into the ledger.
func (db *DB) RecordDownload(ctx context.Context, siteID string, res models.DownloadResult) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO downloads (site_id, filename, output_path, size_bytes, checksum, verified, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		siteID, res.Filename, res.OutputPath, res.SizeBytes, res.Checksum, res.Verified, res.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// Downloads returns the download history for a site, newest first.
func (db *DB) Downloads(ctx context.Context, siteID string, limit int) ([]models.DownloadResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT filename, output_path, size_bytes, checksum, verified, fetched_at
		FROM downloads WHERE site_id = ?
		ORDER BY fetched_at DESC LIMIT ?`,
		siteID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var results []models.DownloadResult
	for rows.Next() {
		var r models.DownloadResult
		if err := rows.Scan(&r.Filename, &r.OutputPath, &r.SizeBytes, &r.Checksum, &r.Verified, &r.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveRestore upserts a restore operation record. Called on every state
// transition so the ledger reflects the latest known state even when the
// process dies mid-restore.
func (db *DB) SaveRestore(ctx context.Context, op *models.RestoreOperation) error {
	var finished sql.NullTime
	if op.FinishedAt != nil {
		finished = sql.NullTime{Time: op.FinishedAt.UTC(), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO restore_operations
			(id, site_id, target_filename, state, pre_backup_requested, pre_backup_filename, can_rollback, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			pre_backup_filename = excluded.pre_backup_filename,
			can_rollback = excluded.can_rollback,
			error = excluded.error,
			finished_at = excluded.finished_at`,
		op.ID, op.SiteID, op.TargetFilename, string(op.State),
		op.PreBackupRequested, op.PreBackupFilename, op.CanRollback, op.Error,
		op.StartedAt.UTC(), finished,
	)
	if err != nil {
		return fmt.Errorf("failed to save restore operation: %w", err)
	}
	return nil
}

// Restores returns restore history for a site, newest first.
func (db *DB) Restores(ctx context.Context, siteID string, limit int) ([]models.RestoreOperation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, site_id, target_filename, state, pre_backup_requested, pre_backup_filename, can_rollback, error, started_at, finished_at
		FROM restore_operations WHERE site_id = ?
		ORDER BY started_at DESC LIMIT ?`,
		siteID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query restore operations: %w", err)
	}
	defer rows.Close()

	var ops []models.RestoreOperation
	for rows.Next() {
		op, err := scanRestore(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// Restore looks up a single restore operation by id.
func (db *DB) Restore(ctx context.Context, id string) (*models.RestoreOperation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, site_id, target_filename, state, pre_backup_requested, pre_backup_filename, can_rollback, error, started_at, finished_at
		FROM restore_operations WHERE id = ?`, id)
	op, err := scanRestore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return op, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRestore(s rowScanner) (*models.RestoreOperation, error) {
	var op models.RestoreOperation
	var state string
	var finished sql.NullTime
	if err := s.Scan(&op.ID, &op.SiteID, &op.TargetFilename, &state,
		&op.PreBackupRequested, &op.PreBackupFilename, &op.CanRollback, &op.Error,
		&op.StartedAt, &finished); err != nil {
		return nil, fmt.Errorf("failed to scan restore operation: %w", err)
	}
	op.State = models.RestoreState(state)
	if finished.Valid {
		t := finished.Time
		op.FinishedAt = &t
	}
	return &op, nil
}

// PruneDownloads removes download records older than the cutoff.
func (db *DB) PruneDownloads(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM downloads WHERE fetched_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune downloads: %w", err)
	}
	return res.RowsAffected()
}
