package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ftahirops/sqlsentinel/model"
)

// AuditRepo owns the append-only remediation audit trail.
type AuditRepo struct {
	db *sqlx.DB
}

// Append writes one audit record. There is no update or delete path.
func (r *AuditRepo) Append(ctx context.Context, rec model.RemediationAudit) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO remediation_audit (id, timestamp, instance, "database", fingerprint_id,
		                               type, script, is_dry_run, success, error, duration_ms, initiated_by)
		VALUES (:id, :timestamp, :instance, :database, :fingerprint_id,
		        :type, :script, :is_dry_run, :success, :error, :duration_ms, :initiated_by)`, rec)
	if err != nil {
		return &model.StoreError{Op: "audit.append", Err: err}
	}
	return nil
}

// WasApplied reports whether a successful non-dry-run execution of the
// given type already happened for the fingerprint on the target.
func (r *AuditRepo) WasApplied(ctx context.Context, target model.Target, fingerprintID int64, typ model.RemediationType) (bool, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM remediation_audit
		WHERE instance = ? AND "database" = ? AND fingerprint_id = ? AND type = ?
		  AND success = 1 AND is_dry_run = 0`,
		target.Instance, target.Database, fingerprintID, typ)
	if err != nil {
		return false, &model.StoreError{Op: "audit.applied", Err: err}
	}
	return n > 0, nil
}

// Recent returns the most recent audit records, newest first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]model.RemediationAudit, error) {
	var out []model.RemediationAudit
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM remediation_audit ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &model.StoreError{Op: "audit.recent", Err: err}
	}
	return out, nil
}
