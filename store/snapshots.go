package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ftahirops/sqlsentinel/model"
)

// SnapshotStore owns the latest cumulative observation per
// (target, fingerprint, plan) lineage.
type SnapshotStore struct {
	db *sqlx.DB
}

// GetLast returns the stored snapshot for the key, or nil when the
// lineage has never been observed.
func (s *SnapshotStore) GetLast(ctx context.Context, target model.Target, fingerprintID int64, planHash string) (*model.CumulativeSnapshot, error) {
	var snap model.CumulativeSnapshot
	err := s.db.GetContext(ctx, &snap, `
		SELECT instance, "database", fingerprint_id, plan_hash, snapshot_time,
		       exec_count, total_cpu_us, total_duration_us,
		       total_logical_reads, total_logical_writes, total_physical_reads
		FROM snapshots
		WHERE instance = ? AND "database" = ? AND fingerprint_id = ? AND plan_hash = ?`,
		target.Instance, target.Database, fingerprintID, planHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StoreError{Op: "snapshot.getlast", Err: err}
	}
	return &snap, nil
}

// Save upserts the snapshot for its key. Always called after the
// corresponding sample write, never before.
func (s *SnapshotStore) Save(ctx context.Context, snap model.CumulativeSnapshot) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO snapshots (instance, "database", fingerprint_id, plan_hash, snapshot_time,
		                       exec_count, total_cpu_us, total_duration_us,
		                       total_logical_reads, total_logical_writes, total_physical_reads)
		VALUES (:instance, :database, :fingerprint_id, :plan_hash, :snapshot_time,
		        :exec_count, :total_cpu_us, :total_duration_us,
		        :total_logical_reads, :total_logical_writes, :total_physical_reads)
		ON CONFLICT(instance, "database", fingerprint_id, plan_hash) DO UPDATE SET
		    snapshot_time = excluded.snapshot_time,
		    exec_count = excluded.exec_count,
		    total_cpu_us = excluded.total_cpu_us,
		    total_duration_us = excluded.total_duration_us,
		    total_logical_reads = excluded.total_logical_reads,
		    total_logical_writes = excluded.total_logical_writes,
		    total_physical_reads = excluded.total_physical_reads`,
		snap)
	if err != nil {
		return &model.StoreError{Op: "snapshot.save", Err: err}
	}
	return nil
}
