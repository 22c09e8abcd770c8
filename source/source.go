// Package source fetches cumulative per-query counters from monitored
// database instances.
package source

import (
	"context"
	"time"

	"github.com/ftahirops/sqlsentinel/model"
)

// OrderBy selects the cost dimension the source ranks by.
type OrderBy string

const (
	OrderByCPU          OrderBy = "cpu"
	OrderByDuration     OrderBy = "duration"
	OrderByLogicalReads OrderBy = "logical_reads"
	OrderByExecutions   OrderBy = "executions"
)

// StatsSource returns current cumulative counters for a target. The
// contract requires a bounded list ordered by the chosen cost dimension;
// counters are monotonically non-decreasing between observations except
// on target restart or cache eviction.
type StatsSource interface {
	FetchTopByCost(ctx context.Context, target model.Target, topN int, lookback time.Duration, orderBy OrderBy) ([]model.ObservedRow, error)
	// IsHistoricalStoreAvailable is a quality hint for logging only;
	// callers never branch on it.
	IsHistoricalStoreAvailable(ctx context.Context, target model.Target) bool
}
