package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ftahirops/sqlsentinel/model"
)

// BaselineRepo owns percentile baselines. The active-baseline invariant
// (at most one is_active per fingerprint) is enforced here with a
// partial unique index plus transactional supersession.
type BaselineRepo struct {
	db *sqlx.DB
}

// GetActive returns the active baseline for a fingerprint, or nil.
func (r *BaselineRepo) GetActive(ctx context.Context, fingerprintID int64) (*model.Baseline, error) {
	var b model.Baseline
	err := r.db.GetContext(ctx, &b, `
		SELECT * FROM baselines WHERE fingerprint_id = ? AND is_active = 1`, fingerprintID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StoreError{Op: "baseline.getactive", Err: err}
	}
	return &b, nil
}

// Save supersedes any existing active baseline and inserts the new one
// as active, in a single transaction. No observer ever sees two active
// baselines for one fingerprint.
func (r *BaselineRepo) Save(ctx context.Context, b model.Baseline) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return &model.StoreError{Op: "baseline.save", Err: err}
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE baselines SET is_active = 0, superseded_at = ?
		WHERE fingerprint_id = ? AND is_active = 1`, now, b.FingerprintID); err != nil {
		return &model.StoreError{Op: "baseline.save", Err: err}
	}

	b.IsActive = true
	b.SupersededAt = nil
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO baselines (id, fingerprint_id, window_start, window_end, sample_count,
		                       total_executions, median_duration_us, p95_duration_us, p99_duration_us,
		                       median_cpu_us, p95_cpu_us, median_logical_reads, p95_logical_reads,
		                       duration_stddev, typical_plan_hash, is_active, superseded_at)
		VALUES (:id, :fingerprint_id, :window_start, :window_end, :sample_count,
		        :total_executions, :median_duration_us, :p95_duration_us, :p99_duration_us,
		        :median_cpu_us, :p95_cpu_us, :median_logical_reads, :p95_logical_reads,
		        :duration_stddev, :typical_plan_hash, :is_active, :superseded_at)`, b); err != nil {
		return &model.StoreError{Op: "baseline.save", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &model.StoreError{Op: "baseline.save", Err: err}
	}
	return nil
}

// GetStale lists fingerprint ids whose active baseline ended before
// maxAge ago, plus fingerprints with samples but no baseline at all.
func (r *BaselineRepo) GetStale(ctx context.Context, maxAge time.Duration) ([]int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT s.fingerprint_id FROM samples s
		LEFT JOIN baselines b ON b.fingerprint_id = s.fingerprint_id AND b.is_active = 1
		WHERE b.id IS NULL OR b.window_end < ?
		ORDER BY s.fingerprint_id`, cutoff)
	if err != nil {
		return nil, &model.StoreError{Op: "baseline.getstale", Err: err}
	}
	return ids, nil
}
