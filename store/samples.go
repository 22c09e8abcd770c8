package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ftahirops/sqlsentinel/model"
)

// SampleStore owns the append-only interval sample log.
type SampleStore struct {
	db *sqlx.DB
}

const insertSample = `
	INSERT INTO samples (id, fingerprint_id, instance, "database", sampled_at, plan_hash,
	                     exec_count_delta, total_cpu_us_delta, avg_cpu_us, min_cpu_us, max_cpu_us,
	                     total_duration_us_delta, avg_duration_us, min_duration_us, max_duration_us,
	                     avg_logical_reads, avg_logical_writes, avg_physical_reads,
	                     avg_memory_grant_kb, avg_spills)
	VALUES (:id, :fingerprint_id, :instance, :database, :sampled_at, :plan_hash,
	        :exec_count_delta, :total_cpu_us_delta, :avg_cpu_us, :min_cpu_us, :max_cpu_us,
	        :total_duration_us_delta, :avg_duration_us, :min_duration_us, :max_duration_us,
	        :avg_logical_reads, :avg_logical_writes, :avg_physical_reads,
	        :avg_memory_grant_kb, :avg_spills)`

// Append writes a batch of samples in one transaction.
func (s *SampleStore) Append(ctx context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &model.StoreError{Op: "sample.append", Err: err}
	}
	defer tx.Rollback()
	for _, smp := range samples {
		if _, err := tx.NamedExecContext(ctx, insertSample, smp); err != nil {
			return &model.StoreError{Op: "sample.append", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &model.StoreError{Op: "sample.append", Err: err}
	}
	return nil
}

// GetInWindow returns one fingerprint's samples within [from, to),
// oldest first.
func (s *SampleStore) GetInWindow(ctx context.Context, fingerprintID int64, from, to time.Time) ([]model.Sample, error) {
	var out []model.Sample
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM samples
		WHERE fingerprint_id = ? AND sampled_at >= ? AND sampled_at < ?
		ORDER BY sampled_at`, fingerprintID, from, to)
	if err != nil {
		return nil, &model.StoreError{Op: "sample.window", Err: err}
	}
	return out, nil
}

// GetTargetWindow returns all samples for a target within [from, to).
func (s *SampleStore) GetTargetWindow(ctx context.Context, target model.Target, from, to time.Time) ([]model.Sample, error) {
	var out []model.Sample
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM samples
		WHERE instance = ? AND "database" = ? AND sampled_at >= ? AND sampled_at < ?
		ORDER BY sampled_at`, target.Instance, target.Database, from, to)
	if err != nil {
		return nil, &model.StoreError{Op: "sample.targetwindow", Err: err}
	}
	return out, nil
}

// ActiveFingerprints lists fingerprint ids with at least one sample for
// the target within the window.
func (s *SampleStore) ActiveFingerprints(ctx context.Context, target model.Target, from, to time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT fingerprint_id FROM samples
		WHERE instance = ? AND "database" = ? AND sampled_at >= ? AND sampled_at < ?
		ORDER BY fingerprint_id`, target.Instance, target.Database, from, to)
	if err != nil {
		return nil, &model.StoreError{Op: "sample.active", Err: err}
	}
	return ids, nil
}

// PurgeOlderThan deletes samples sampled before the cutoff and reports
// how many were removed.
func (s *SampleStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE sampled_at < ?`, cutoff)
	if err != nil {
		return 0, &model.StoreError{Op: "sample.purge", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}
