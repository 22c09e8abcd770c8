package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ftahirops/sqlsentinel/model"
)

// FingerprintRepo owns the fingerprint table.
type FingerprintRepo struct {
	db *sqlx.DB
}

// Upsert inserts a fingerprint or refreshes last_seen on an existing
// one. Linearizable under the two-writers race: the insert and the id
// read run in one transaction, so concurrent callers with the same hash
// observe a single winner's id.
func (r *FingerprintRepo) Upsert(ctx context.Context, instance, database string, hash uint64, sampleText, normalizedText string) (int64, bool, error) {
	now := time.Now().UTC()
	hs := model.HashString(hash)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, &model.StoreError{Op: "fingerprint.upsert", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO fingerprints (hash, instance, "database", normalized_text, sample_text, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`,
		hs, instance, database, normalizedText, sampleText, now, now)
	if err != nil {
		return 0, false, &model.StoreError{Op: "fingerprint.upsert", Err: err}
	}
	inserted, _ := res.RowsAffected()
	isNew := inserted > 0

	if !isNew {
		if _, err := tx.ExecContext(ctx,
			`UPDATE fingerprints SET last_seen = ? WHERE hash = ?`, now, hs); err != nil {
			return 0, false, &model.StoreError{Op: "fingerprint.upsert", Err: err}
		}
	}

	var id int64
	if err := tx.GetContext(ctx, &id, `SELECT id FROM fingerprints WHERE hash = ?`, hs); err != nil {
		return 0, false, &model.StoreError{Op: "fingerprint.upsert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, false, &model.StoreError{Op: "fingerprint.upsert", Err: err}
	}
	return id, isNew, nil
}

// Get loads one fingerprint by id.
func (r *FingerprintRepo) Get(ctx context.Context, id int64) (*model.Fingerprint, error) {
	var fp model.Fingerprint
	err := r.db.GetContext(ctx, &fp, `
		SELECT id, instance, "database", normalized_text, sample_text, first_seen, last_seen
		FROM fingerprints WHERE id = ?`, id)
	if err != nil {
		return nil, &model.StoreError{Op: "fingerprint.get", Err: err}
	}
	return &fp, nil
}
