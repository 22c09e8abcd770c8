// Package remediate executes corrective actions behind a fixed gate
// sequence. Refusals are results, not errors, and every attempt lands
// in the audit trail regardless of outcome.
package remediate

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/store"
)

// Refusal codes, stable for operators and tests.
const (
	RefusalDisabled       = "remediation_disabled"
	RefusalUnsafeType     = "unsafe_type"
	RefusalNotAutoApproved = "not_auto_approved"
	RefusalProduction     = "production_target"
	RefusalDenied         = "statement_denied"
	RefusalAlreadyApplied = "already_applied"
	RefusalEmptyScript    = "empty_script"
)

// deniedFragments are substrings (case-insensitive) that no remediation
// script may contain, whatever its declared type: destructive DDL,
// service control, shell escape, and server configuration builtins.
var deniedFragments = []string{
	"DROP",
	"TRUNCATE",
	"SHUTDOWN",
	"XP_CMDSHELL",
	"SP_CONFIGURE",
	"RECONFIGURE",
}

var (
	reDeleteFrom = regexp.MustCompile(`(?i)\bDELETE\s+FROM\b`)
	reWhere      = regexp.MustCompile(`(?i)\bWHERE\b`)
)

// deleteWithoutWhere flags DELETE statements with no WHERE clause after
// them; an unbounded delete is never a remediation.
func deleteWithoutWhere(script string) bool {
	loc := reDeleteFrom.FindStringIndex(script)
	if loc == nil {
		return false
	}
	return !reWhere.MatchString(script[loc[1]:])
}

// ConnFunc opens a connection to the target for script execution.
type ConnFunc func(ctx context.Context, target model.Target) (*sql.DB, error)

// Request is one remediation attempt.
type Request struct {
	Target        model.Target
	FingerprintID int64
	Suggestion    model.RemediationSuggestion
	// InitiatedBy is "auto" for scheduler-driven runs, otherwise the
	// operator's name.
	InitiatedBy string
}

// Executor applies remediation suggestions. All safety decisions are
// made here at execution time; the advisor's suggestion carries no
// authority.
type Executor struct {
	cfg   config.RemediationConfig
	audit *store.AuditRepo
	conn  ConnFunc
	log   *zap.Logger
	now   func() time.Time
}

func NewExecutor(cfg config.RemediationConfig, audit *store.AuditRepo, conn ConnFunc, log *zap.Logger) *Executor {
	return &Executor{cfg: cfg, audit: audit, conn: conn, log: log.Named("remediate"), now: time.Now}
}

// Execute runs the gate sequence and, if every gate passes, the script.
// The returned error covers audit/store failures only; execution
// failures and refusals are reported in the result.
func (e *Executor) Execute(ctx context.Context, req Request) (model.RemediationResult, error) {
	started := e.now()

	res := e.run(ctx, req)
	res.Duration = e.now().Sub(started)

	rec := model.RemediationAudit{
		ID:            uuid.NewString(),
		Timestamp:     started.UTC(),
		Instance:      req.Target.Instance,
		Database:      req.Target.Database,
		FingerprintID: req.FingerprintID,
		Type:          req.Suggestion.Type,
		Script:        req.Suggestion.ActionScript,
		IsDryRun:      res.DryRun,
		Success:       (res.Executed || res.DryRun) && res.Err == "",
		DurationMs:    res.Duration.Milliseconds(),
		InitiatedBy:   req.InitiatedBy,
	}
	if res.Refused {
		rec.Error = "refused: " + res.RefusalCode
	} else if res.Err != "" {
		rec.Error = res.Err
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		return res, fmt.Errorf("append audit: %w", err)
	}

	e.log.Info("remediation attempt",
		zap.String("target", req.Target.Key()),
		zap.String("type", string(req.Suggestion.Type)),
		zap.Bool("executed", res.Executed),
		zap.Bool("dry_run", res.DryRun),
		zap.Bool("refused", res.Refused),
		zap.String("refusal", res.RefusalCode),
		zap.String("initiated_by", req.InitiatedBy))
	return res, nil
}

func refuse(code string) model.RemediationResult {
	return model.RemediationResult{Refused: true, RefusalCode: code}
}

// run walks the gates in their fixed order and executes on success.
func (e *Executor) run(ctx context.Context, req Request) model.RemediationResult {
	// Gate 1: global switch.
	if !e.cfg.Enable {
		return refuse(RefusalDisabled)
	}
	// Gate 2: production targets need explicit opt-in.
	if config.IsProduction(req.Target) && !e.cfg.AllowProduction {
		return refuse(RefusalProduction)
	}
	// Gate 3: only safe types ever execute through the tool.
	if model.SafetyForType(req.Suggestion.Type) != model.SafetySafe {
		return refuse(RefusalUnsafeType)
	}
	// Gate 4: the type must be on the auto_execute_types allow list,
	// whoever asks.
	if !e.allowListed(req.Suggestion.Type) {
		return refuse(RefusalNotAutoApproved)
	}
	// Gate 5: statement denylist.
	script := req.Suggestion.ActionScript
	if script == "" {
		return refuse(RefusalEmptyScript)
	}
	if code := checkScript(script); code != "" {
		return refuse(code)
	}
	// Gate 6: one-shot unless reapply is allowed.
	applied, err := e.audit.WasApplied(ctx, req.Target, req.FingerprintID, req.Suggestion.Type)
	if err != nil {
		return model.RemediationResult{Err: err.Error()}
	}
	if applied && !e.cfg.AllowReapply {
		return refuse(RefusalAlreadyApplied)
	}

	if e.cfg.DryRun {
		return model.RemediationResult{DryRun: true}
	}
	return e.execScript(ctx, req.Target, script)
}

func (e *Executor) allowListed(typ model.RemediationType) bool {
	for _, t := range e.cfg.AutoExecuteTypes {
		if model.RemediationType(t) == typ {
			return true
		}
	}
	return false
}

// checkScript returns a refusal code for denied statements, "" when the
// script is acceptable.
func checkScript(script string) string {
	upper := strings.ToUpper(script)
	for _, frag := range deniedFragments {
		if strings.Contains(upper, frag) {
			return RefusalDenied
		}
	}
	if deleteWithoutWhere(script) {
		return RefusalDenied
	}
	return ""
}

func (e *Executor) execScript(ctx context.Context, target model.Target, script string) model.RemediationResult {
	timeout := time.Duration(e.cfg.CommandTimeoutSeconds) * time.Second
	ectx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := e.conn(ectx, target)
	if err != nil {
		return model.RemediationResult{Err: err.Error()}
	}
	sqlRes, err := db.ExecContext(ectx, script)
	if err != nil {
		return model.RemediationResult{Executed: true, Err: err.Error()}
	}
	rows, _ := sqlRes.RowsAffected()
	return model.RemediationResult{Executed: true, RowsAffected: rows}
}
