package model

import "time"

// RemediationType names a class of corrective action.
type RemediationType string

const (
	RemForcePlan        RemediationType = "force_plan"
	RemUpdateStatistics RemediationType = "update_statistics"
	RemClearPlanCache   RemediationType = "clear_plan_cache"
	RemCreateIndex      RemediationType = "create_index"
	RemModifyIndex      RemediationType = "modify_index"
	RemAddQueryHint     RemediationType = "add_query_hint"
	RemDropIndex        RemediationType = "drop_index"
	RemRewriteQuery     RemediationType = "rewrite_query"
	RemSchemaChange     RemediationType = "schema_change"
	RemConfigChange     RemediationType = "config_change"
	RemEscalate         RemediationType = "escalate"
)

// SafetyLevel gates automatic execution. Only SafetySafe is eligible.
type SafetyLevel string

const (
	SafetySafe           SafetyLevel = "safe"
	SafetyRequiresReview SafetyLevel = "requires_review"
	SafetyManualOnly     SafetyLevel = "manual_only"
)

// safetyByType derives safety from type. The advisor never upgrades a
// type's safety; unknown types default to manual_only.
var safetyByType = map[RemediationType]SafetyLevel{
	RemForcePlan:        SafetySafe,
	RemUpdateStatistics: SafetySafe,
	RemClearPlanCache:   SafetySafe,
	RemCreateIndex:      SafetyRequiresReview,
	RemModifyIndex:      SafetyRequiresReview,
	RemAddQueryHint:     SafetyRequiresReview,
	RemDropIndex:        SafetyManualOnly,
	RemRewriteQuery:     SafetyManualOnly,
	RemSchemaChange:     SafetyManualOnly,
	RemConfigChange:     SafetyManualOnly,
	RemEscalate:         SafetyManualOnly,
}

// SafetyForType returns the fixed safety class for a remediation type.
func SafetyForType(t RemediationType) SafetyLevel {
	if s, ok := safetyByType[t]; ok {
		return s
	}
	return SafetyManualOnly
}

// RemediationSuggestion is one proposed corrective action for a
// regression event, ordered by Priority (1 = first).
type RemediationSuggestion struct {
	RegressionEventID string          `json:"regression_event_id"`
	Type              RemediationType `json:"type"`
	Safety            SafetyLevel     `json:"safety"`
	Confidence        float64         `json:"confidence"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Rationale         string          `json:"rationale,omitempty"`
	ActionScript      string          `json:"action_script,omitempty"`
	Priority          int             `json:"priority"`
}

// RemediationAudit is the append-only record of every execution attempt,
// including dry runs and refusals.
type RemediationAudit struct {
	ID            string          `db:"id"`
	Timestamp     time.Time       `db:"timestamp"`
	Instance      string          `db:"instance"`
	Database      string          `db:"database"`
	FingerprintID int64           `db:"fingerprint_id"`
	Type          RemediationType `db:"type"`
	Script        string          `db:"script"`
	IsDryRun      bool            `db:"is_dry_run"`
	Success       bool            `db:"success"`
	Error         string          `db:"error"`
	DurationMs    int64           `db:"duration_ms"`
	InitiatedBy   string          `db:"initiated_by"`
}

// RemediationResult is the structured outcome of an execution attempt.
// Refusals are results, never errors.
type RemediationResult struct {
	Executed     bool          `json:"executed"`
	DryRun       bool          `json:"dry_run"`
	Refused      bool          `json:"refused"`
	RefusalCode  string        `json:"refusal_code,omitempty"`
	RowsAffected int64         `json:"rows_affected"`
	Duration     time.Duration `json:"duration"`
	Err          string        `json:"error,omitempty"`
}
