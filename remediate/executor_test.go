package remediate

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/store"
)

func enabledConfig() config.RemediationConfig {
	return config.RemediationConfig{
		Enable:                true,
		AutoExecuteTypes:      []string{"update_statistics", "clear_plan_cache"},
		CommandTimeoutSeconds: 5,
	}
}

func testRequest() Request {
	return Request{
		Target:        model.Target{Instance: "prod-sql-01", Database: "orders"},
		FingerprintID: 7,
		Suggestion: model.RemediationSuggestion{
			Type:         model.RemUpdateStatistics,
			Safety:       model.SafetySafe,
			ActionScript: "EXEC sp_updatestats",
		},
		InitiatedBy: "auto",
	}
}

func fixture(t *testing.T, cfg config.RemediationConfig, conn ConnFunc) (*Executor, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if conn == nil {
		conn = func(context.Context, model.Target) (*sql.DB, error) {
			return nil, errors.New("no connection expected")
		}
	}
	return NewExecutor(cfg, db.Audit, conn, zap.NewNop()), db
}

func auditCount(t *testing.T, db *store.DB) int {
	t.Helper()
	recs, err := db.Audit.Recent(context.Background(), 100)
	require.NoError(t, err)
	return len(recs)
}

func TestExecuteHappyPath(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectExec("EXEC sp_updatestats").WillReturnResult(sqlmock.NewResult(0, 3))

	e, db := fixture(t, enabledConfig(), func(context.Context, model.Target) (*sql.DB, error) {
		return mockDB, nil
	})

	res, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, res.Executed)
	require.False(t, res.Refused)
	require.EqualValues(t, 3, res.RowsAffected)
	require.NoError(t, mock.ExpectationsWereMet())

	recs, err := db.Audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.True(t, recs[0].Success)
	require.Equal(t, "auto", recs[0].InitiatedBy)
}

func TestExecuteDisabledRefuses(t *testing.T) {
	cfg := enabledConfig()
	cfg.Enable = false
	e, db := fixture(t, cfg, nil)

	res, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, res.Refused)
	require.Equal(t, RefusalDisabled, res.RefusalCode)
	require.False(t, res.Executed)
	// Refusals are audited too.
	require.Equal(t, 1, auditCount(t, db))
}

func TestExecuteUnsafeTypeRefuses(t *testing.T) {
	e, db := fixture(t, enabledConfig(), nil)
	req := testRequest()
	req.Suggestion.Type = model.RemDropIndex
	req.InitiatedBy = "operator"

	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, RefusalUnsafeType, res.RefusalCode)
	require.Equal(t, 1, auditCount(t, db))
}

func TestExecuteAutoNeedsAllowList(t *testing.T) {
	cfg := enabledConfig()
	cfg.AutoExecuteTypes = []string{"clear_plan_cache"}
	e, _ := fixture(t, cfg, nil)

	res, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, RefusalNotAutoApproved, res.RefusalCode)
}

func TestExecuteAllowListBindsOperatorsToo(t *testing.T) {
	// The allow list is not an auto-only nicety; a type off the list is
	// refused regardless of who asks.
	cfg := enabledConfig()
	cfg.AutoExecuteTypes = nil
	e, _ := fixture(t, cfg, nil)
	req := testRequest()
	req.InitiatedBy = "dba"

	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, RefusalNotAutoApproved, res.RefusalCode)
}

func TestExecuteGateOrder(t *testing.T) {
	// Multi-violation requests report the earliest gate's refusal:
	// production before safety, safety before the allow list.
	cfg := enabledConfig()
	cfg.AutoExecuteTypes = nil
	e, _ := fixture(t, cfg, nil)

	req := testRequest()
	req.Target.Tags = []string{"production"}
	req.Suggestion.Type = model.RemDropIndex
	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, RefusalProduction, res.RefusalCode)

	req.Target.Tags = nil
	res, err = e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, RefusalUnsafeType, res.RefusalCode)

	req.Suggestion.Type = model.RemUpdateStatistics
	res, err = e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, RefusalNotAutoApproved, res.RefusalCode)
}

func TestExecuteProductionRefused(t *testing.T) {
	e, _ := fixture(t, enabledConfig(), nil)
	req := testRequest()
	req.Target.Tags = []string{"production"}

	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, RefusalProduction, res.RefusalCode)

	// Explicit opt-in lets it through to the next gate.
	cfg := enabledConfig()
	cfg.AllowProduction = true
	cfg.DryRun = true
	e, _ = fixture(t, cfg, nil)
	res, err = e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.Refused)
	require.True(t, res.DryRun)
}

func TestExecuteDenylist(t *testing.T) {
	e, db := fixture(t, enabledConfig(), nil)
	scripts := []string{
		"DROP TABLE dbo.orders",
		"drop database sentinel",
		"TRUNCATE TABLE dbo.audit",
		"TRUNCATE dbo.staging",
		"UPDATE STATISTICS T; DROP INDEX ix;", // denied token anywhere in the script
		"EXEC xp_cmdshell 'dir'",
		"EXEC sp_configure 'show advanced options', 1",
		"RECONFIGURE WITH OVERRIDE",
		"SHUTDOWN WITH NOWAIT",
		"DELETE FROM dbo.orders", // no WHERE
	}
	for _, script := range scripts {
		req := testRequest()
		req.Suggestion.ActionScript = script
		res, err := e.Execute(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, RefusalDenied, res.RefusalCode, "script %q", script)
	}
	require.Equal(t, len(scripts), auditCount(t, db))
}

func TestCheckScriptAllowsBoundedDelete(t *testing.T) {
	require.Empty(t, checkScript("DELETE FROM dbo.plan_pins WHERE fingerprint = 'abc'"))
	require.Equal(t, RefusalDenied, checkScript("DELETE FROM dbo.plan_pins"))
	require.Empty(t, checkScript("EXEC sp_updatestats"))
}

func TestExecuteReapplyGate(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectExec("EXEC sp_updatestats").WillReturnResult(sqlmock.NewResult(0, 1))

	e, db := fixture(t, enabledConfig(), func(context.Context, model.Target) (*sql.DB, error) {
		return mockDB, nil
	})
	req := testRequest()

	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Executed)

	// Second attempt of the same type on the same target refuses.
	res, err = e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, RefusalAlreadyApplied, res.RefusalCode)

	// allow_reapply opts out of the gate.
	mock.ExpectExec("EXEC sp_updatestats").WillReturnResult(sqlmock.NewResult(0, 1))
	cfg := enabledConfig()
	cfg.AllowReapply = true
	e2 := NewExecutor(cfg, db.Audit, func(context.Context, model.Target) (*sql.DB, error) {
		return mockDB, nil
	}, zap.NewNop())
	res, err = e2.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Executed)
}

func TestExecuteDryRunNeverTouchesTarget(t *testing.T) {
	cfg := enabledConfig()
	cfg.DryRun = true
	touched := false
	e, db := fixture(t, cfg, func(context.Context, model.Target) (*sql.DB, error) {
		touched = true
		return nil, errors.New("unreachable")
	})

	res, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.False(t, res.Executed)
	require.False(t, touched)

	recs, err := db.Audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.True(t, recs[0].IsDryRun)
	require.True(t, recs[0].Success)

	// Dry runs never mark the remediation as applied.
	applied, err := db.Audit.WasApplied(context.Background(),
		testRequest().Target, 7, model.RemUpdateStatistics)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestExecuteScriptFailureAudited(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectExec("EXEC sp_updatestats").WillReturnError(errors.New("deadlock victim"))

	e, db := fixture(t, enabledConfig(), func(context.Context, model.Target) (*sql.DB, error) {
		return mockDB, nil
	})

	res, err := e.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, res.Executed)
	require.Contains(t, res.Err, "deadlock victim")

	recs, err := db.Audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.False(t, recs[0].Success)
	require.Contains(t, recs[0].Error, "deadlock victim")
}
