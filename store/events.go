package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ftahirops/sqlsentinel/model"
)

// EventRepo owns regression events. Status transitions are validated
// here, at the repo boundary.
type EventRepo struct {
	db *sqlx.DB
}

// Save inserts a new event with status new.
func (r *EventRepo) Save(ctx context.Context, e model.RegressionEvent) error {
	e.Status = model.StatusNew
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO events (id, fingerprint_id, instance, "database", detected_at, type,
		                    metric_name, baseline_value, current_value, change_percent,
		                    severity, is_plan_change, baseline_plan_hash, current_plan_hash,
		                    status, acknowledged_by, acknowledged_at, resolved_by, resolved_at, notes)
		VALUES (:id, :fingerprint_id, :instance, :database, :detected_at, :type,
		        :metric_name, :baseline_value, :current_value, :change_percent,
		        :severity, :is_plan_change, :baseline_plan_hash, :current_plan_hash,
		        :status, :acknowledged_by, :acknowledged_at, :resolved_by, :resolved_at, :notes)`, e)
	if err != nil {
		return &model.StoreError{Op: "event.save", Err: err}
	}
	return nil
}

// GetActiveByFingerprint returns the fingerprint's events still in
// status new or acknowledged.
func (r *EventRepo) GetActiveByFingerprint(ctx context.Context, fingerprintID int64) ([]model.RegressionEvent, error) {
	var out []model.RegressionEvent
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM events
		WHERE fingerprint_id = ? AND status IN ('new', 'acknowledged')
		ORDER BY detected_at`, fingerprintID)
	if err != nil {
		return nil, &model.StoreError{Op: "event.active", Err: err}
	}
	return out, nil
}

// Get loads one event.
func (r *EventRepo) Get(ctx context.Context, id string) (*model.RegressionEvent, error) {
	var e model.RegressionEvent
	if err := r.db.GetContext(ctx, &e, `SELECT * FROM events WHERE id = ?`, id); err != nil {
		return nil, &model.StoreError{Op: "event.get", Err: err}
	}
	return &e, nil
}

// UpdateObservation bumps current_value/change_percent/severity on an
// open event when a re-detection observed the regression worsening.
func (r *EventRepo) UpdateObservation(ctx context.Context, id string, currentValue, changePercent float64, severity model.Severity) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events SET current_value = ?, change_percent = ?, severity = ?
		WHERE id = ? AND status IN ('new', 'acknowledged')`,
		currentValue, changePercent, severity, id)
	if err != nil {
		return &model.StoreError{Op: "event.update", Err: err}
	}
	return nil
}

// Acknowledge moves an event new -> acknowledged.
func (r *EventRepo) Acknowledge(ctx context.Context, id, by, notes string) error {
	return r.transition(ctx, id, model.StatusAcknowledged, by, notes)
}

// Resolve moves an event to resolved.
func (r *EventRepo) Resolve(ctx context.Context, id, by, notes string) error {
	return r.transition(ctx, id, model.StatusResolved, by, notes)
}

// Dismiss moves an event new -> dismissed.
func (r *EventRepo) Dismiss(ctx context.Context, id, by, notes string) error {
	return r.transition(ctx, id, model.StatusDismissed, by, notes)
}

// transition loads the event, validates the state machine, and applies
// the change in one transaction. Invalid transitions fail loudly.
func (r *EventRepo) transition(ctx context.Context, id string, to model.EventStatus, by, notes string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return &model.StoreError{Op: "event.transition", Err: err}
	}
	defer tx.Rollback()

	var e model.RegressionEvent
	if err := tx.GetContext(ctx, &e, `SELECT * FROM events WHERE id = ?`, id); err != nil {
		return &model.StoreError{Op: "event.transition", Err: fmt.Errorf("load %s: %w", id, err)}
	}
	if err := model.ValidateTransition(e.Status, to); err != nil {
		return err
	}

	now := time.Now().UTC()
	switch to {
	case model.StatusAcknowledged:
		_, err = tx.ExecContext(ctx, `
			UPDATE events SET status = ?, acknowledged_by = ?, acknowledged_at = ?, notes = ?
			WHERE id = ?`, to, by, now, appendNote(e.Notes, notes), id)
	case model.StatusResolved:
		_, err = tx.ExecContext(ctx, `
			UPDATE events SET status = ?, resolved_by = ?, resolved_at = ?, notes = ?
			WHERE id = ?`, to, by, now, appendNote(e.Notes, notes), id)
	case model.StatusDismissed:
		_, err = tx.ExecContext(ctx, `
			UPDATE events SET status = ?, resolved_by = ?, resolved_at = ?, notes = ?
			WHERE id = ?`, to, by, now, appendNote(e.Notes, notes), id)
	default:
		err = fmt.Errorf("unsupported transition target %s", to)
	}
	if err != nil {
		return &model.StoreError{Op: "event.transition", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &model.StoreError{Op: "event.transition", Err: err}
	}
	return nil
}

func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

// Summary aggregates event activity over [from, to) for the daily
// digest.
func (r *EventRepo) Summary(ctx context.Context, from, to time.Time) (model.EventSummary, error) {
	sum := model.EventSummary{
		WindowStart: from,
		WindowEnd:   to,
		BySeverity:  map[string]int64{},
		ByType:      map[string]int64{},
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT severity, type, status, COUNT(*) AS n FROM events
		WHERE detected_at >= ? AND detected_at < ?
		GROUP BY severity, type, status`, from, to)
	if err != nil {
		return sum, &model.StoreError{Op: "event.summary", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var severity int
		var typ, status string
		var n int64
		if err := rows.Scan(&severity, &typ, &status, &n); err != nil {
			return sum, &model.StoreError{Op: "event.summary", Err: err}
		}
		sum.NewCount += n
		sum.BySeverity[model.Severity(severity).String()] += n
		sum.ByType[typ] += n
		switch model.EventStatus(status) {
		case model.StatusResolved:
			sum.ResolvedCount += n
		case model.StatusDismissed:
			sum.DismissedCount += n
		}
	}
	return sum, rows.Err()
}
