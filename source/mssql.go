package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/model"
)

// orderColumns maps the cost dimension to the DMV sort expression.
var orderColumns = map[OrderBy]string{
	OrderByCPU:          "qs.total_worker_time",
	OrderByDuration:     "qs.total_elapsed_time",
	OrderByLogicalReads: "qs.total_logical_reads",
	OrderByExecutions:   "qs.execution_count",
}

// topByCostQuery reads sys.dm_exec_query_stats aggregated per
// (query_hash, query_plan_hash), restricted to statements active within
// the lookback window. Counters are cumulative since plan-cache entry.
const topByCostQuery = `
SELECT TOP (@top_n)
    CONVERT(VARCHAR(18), qs.query_hash, 1)      AS query_hash,
    CONVERT(VARCHAR(18), qs.query_plan_hash, 1) AS query_plan_hash,
    MAX(SUBSTRING(qt.text, 1, 4000))            AS sql_text,
    SUM(qs.execution_count)                     AS exec_count,
    SUM(qs.total_worker_time)                   AS total_cpu_us,
    SUM(qs.total_elapsed_time)                  AS total_duration_us,
    SUM(qs.total_logical_reads)                 AS total_logical_reads,
    SUM(qs.total_logical_writes)                AS total_logical_writes,
    SUM(qs.total_physical_reads)                AS total_physical_reads,
    SUM(qs.total_grant_kb)                      AS total_grant_kb,
    SUM(qs.total_spills)                        AS total_spills,
    MAX(qs.last_execution_time)                 AS last_execution_time
FROM sys.dm_exec_query_stats qs
CROSS APPLY sys.dm_exec_sql_text(qs.sql_handle) qt
WHERE qs.last_execution_time > DATEADD(SECOND, -@lookback_sec, GETUTCDATE())
  AND qt.dbid = DB_ID()
GROUP BY qs.query_hash, qs.query_plan_hash
ORDER BY %s DESC`

const queryStoreProbe = `SELECT CONVERT(INT, actual_state) FROM sys.database_query_store_options`

// MSSQL is the SQL Server stats source. One pool is kept per target and
// reused across cycles.
type MSSQL struct {
	resolver ConnResolver
	logger   *zap.Logger

	mu    sync.Mutex
	pools map[string]*sql.DB
}

// ConnResolver supplies connection strings per target.
type ConnResolver interface {
	GetConnectionString(target model.Target) string
}

// NewMSSQL creates a SQL Server stats source.
func NewMSSQL(resolver ConnResolver, logger *zap.Logger) *MSSQL {
	return &MSSQL{
		resolver: resolver,
		logger:   logger,
		pools:    map[string]*sql.DB{},
	}
}

// FetchTopByCost implements StatsSource over sys.dm_exec_query_stats.
func (m *MSSQL) FetchTopByCost(ctx context.Context, target model.Target, topN int, lookback time.Duration, orderBy OrderBy) ([]model.ObservedRow, error) {
	col, ok := orderColumns[orderBy]
	if !ok {
		col = orderColumns[OrderByCPU]
	}

	db, err := m.pool(target)
	if err != nil {
		return nil, &model.ConnectError{Instance: target.Instance, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, &model.ConnectError{Instance: target.Instance, Err: err}
	}

	query := fmt.Sprintf(topByCostQuery, col)
	rows, err := db.QueryContext(ctx, query,
		sql.Named("top_n", topN),
		sql.Named("lookback_sec", int64(lookback.Seconds())),
	)
	if err != nil {
		return nil, &model.QueryError{Target: target, Err: err}
	}
	defer rows.Close()

	var out []model.ObservedRow
	for rows.Next() {
		var r model.ObservedRow
		var planHash, sqlText sql.NullString
		var lastExec sql.NullTime
		if err := rows.Scan(
			&r.VendorQueryHash, &planHash, &sqlText,
			&r.ExecCount, &r.TotalCPUUs, &r.TotalDurationUs,
			&r.TotalLogicalReads, &r.TotalLogicalWrites, &r.TotalPhysicalReads,
			&r.TotalGrantKB, &r.TotalSpills, &lastExec,
		); err != nil {
			return nil, &model.QueryError{Target: target, Err: err}
		}
		r.PlanHash = planHash.String
		r.SQLText = sqlText.String
		if lastExec.Valid {
			r.LastExecution = lastExec.Time.UTC()
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.QueryError{Target: target, Err: err}
	}
	return out, nil
}

// IsHistoricalStoreAvailable probes whether Query Store is enabled on
// the target database. Logging hint only.
func (m *MSSQL) IsHistoricalStoreAvailable(ctx context.Context, target model.Target) bool {
	db, err := m.pool(target)
	if err != nil {
		return false
	}
	var state int
	if err := db.QueryRowContext(ctx, queryStoreProbe).Scan(&state); err != nil {
		return false
	}
	return state > 0
}

// Conn exposes the target's pooled connection for remediation script
// execution.
func (m *MSSQL) Conn(_ context.Context, target model.Target) (*sql.DB, error) {
	return m.pool(target)
}

// Close releases all pooled connections.
func (m *MSSQL) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for key, db := range m.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.pools, key)
	}
	return firstErr
}

func (m *MSSQL) pool(target model.Target) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.pools[target.Key()]; ok {
		return db, nil
	}
	dsn := m.resolver.GetConnectionString(target)
	if dsn == "" {
		return nil, fmt.Errorf("no connection string for %s", target.Key())
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = dsn + sep + "database=" + target.Database
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	m.pools[target.Key()] = db
	m.logger.Debug("opened stats pool", zap.String("target", target.Key()))
	return db, nil
}
