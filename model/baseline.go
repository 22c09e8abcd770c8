package model

import "time"

// Baseline is a percentile summary of a fingerprint's historical samples,
// used as the reference for regression detection. At most one baseline
// per fingerprint is active; supersession is atomic at the repo boundary.
type Baseline struct {
	ID              string     `db:"id"`
	FingerprintID   int64      `db:"fingerprint_id"`
	WindowStart     time.Time  `db:"window_start"`
	WindowEnd       time.Time  `db:"window_end"`
	SampleCount     int64      `db:"sample_count"`
	TotalExecutions int64      `db:"total_executions"`
	MedianDurationUs float64   `db:"median_duration_us"`
	P95DurationUs   float64    `db:"p95_duration_us"`
	P99DurationUs   float64    `db:"p99_duration_us"`
	MedianCPUUs     float64    `db:"median_cpu_us"`
	P95CPUUs        float64    `db:"p95_cpu_us"`
	MedianLogicalReads float64 `db:"median_logical_reads"`
	P95LogicalReads float64    `db:"p95_logical_reads"`
	DurationStddev  float64    `db:"duration_stddev"`
	TypicalPlanHash string     `db:"typical_plan_hash"`
	IsActive        bool       `db:"is_active"`
	SupersededAt    *time.Time `db:"superseded_at"`
}

// AggregatedRecent summarizes the recent window for one fingerprint on
// one target, the detector's view of "current" behavior.
type AggregatedRecent struct {
	FingerprintID   int64
	SampleCount     int64
	TotalExecutions int64
	P95DurationUs   float64
	P95CPUUs        float64
	AvgLogicalReads float64
	TotalCPUUs      int64
	TotalDurationUs int64
	CurrentPlanHash string
}
