package model

import "time"

// ObservedRow is one row returned by a stats source: cumulative counters
// for a query family as currently held by the target's plan cache.
// VendorQueryHash is the engine's own hash, carried as a hint only; the
// computed fingerprint hash is the identity.
type ObservedRow struct {
	VendorQueryHash   string
	SQLText           string
	PlanHash          string
	VendorPlanID      int64
	ExecCount         int64
	TotalCPUUs        int64
	TotalDurationUs   int64
	TotalLogicalReads int64
	TotalLogicalWrites int64
	TotalPhysicalReads int64
	TotalGrantKB      int64
	TotalSpills       int64
	LastExecution     time.Time
}

// CumulativeSnapshot is the most recent cumulative observation for a
// (target, fingerprint, plan) lineage. Exactly one row per key; updated
// on every cycle that observes the key.
type CumulativeSnapshot struct {
	Instance           string    `db:"instance"`
	Database           string    `db:"database"`
	FingerprintID      int64     `db:"fingerprint_id"`
	PlanHash           string    `db:"plan_hash"`
	SnapshotTime       time.Time `db:"snapshot_time"`
	ExecCount          int64     `db:"exec_count"`
	TotalCPUUs         int64     `db:"total_cpu_us"`
	TotalDurationUs    int64     `db:"total_duration_us"`
	TotalLogicalReads  int64     `db:"total_logical_reads"`
	TotalLogicalWrites int64     `db:"total_logical_writes"`
	TotalPhysicalReads int64     `db:"total_physical_reads"`
}

// Sample is one interval's worth of activity for a fingerprint on a
// target: the delta between two consecutive cumulative observations.
// Samples are immutable once written; the sample store is append-only.
type Sample struct {
	ID                 string    `db:"id"`
	FingerprintID      int64     `db:"fingerprint_id"`
	Instance           string    `db:"instance"`
	Database           string    `db:"database"`
	SampledAt          time.Time `db:"sampled_at"`
	PlanHash           string    `db:"plan_hash"`
	ExecCountDelta     int64     `db:"exec_count_delta"`
	TotalCPUUsDelta    int64     `db:"total_cpu_us_delta"`
	AvgCPUUs           float64   `db:"avg_cpu_us"`
	MinCPUUs           float64   `db:"min_cpu_us"`
	MaxCPUUs           float64   `db:"max_cpu_us"`
	TotalDurationUsDelta int64   `db:"total_duration_us_delta"`
	AvgDurationUs      float64   `db:"avg_duration_us"`
	MinDurationUs      float64   `db:"min_duration_us"`
	MaxDurationUs      float64   `db:"max_duration_us"`
	AvgLogicalReads    float64   `db:"avg_logical_reads"`
	AvgLogicalWrites   float64   `db:"avg_logical_writes"`
	AvgPhysicalReads   float64   `db:"avg_physical_reads"`
	AvgMemoryGrantKB   float64   `db:"avg_memory_grant_kb"`
	AvgSpills          float64   `db:"avg_spills"`
}

// Target reconstructs the sample's target pair.
func (s Sample) Target() Target {
	return Target{Instance: s.Instance, Database: s.Database, Enabled: true}
}
