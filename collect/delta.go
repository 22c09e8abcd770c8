// Package collect turns cumulative counters from stats sources into
// interval samples and persists them, one cycle at a time.
package collect

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/model"
)

// delta computes cur-prev, clamping to zero when a counter moved
// backwards while exec_count did not (resets zero the whole previous
// snapshot before this runs). The flag reports a clamp.
func delta(cur, prev int64) (int64, bool) {
	if cur < prev {
		return 0, true
	}
	return cur - prev, false
}

// perExec divides a metric delta by the execution delta, guarding the
// zero-executions case.
func perExec(metricDelta, execDelta int64) float64 {
	if execDelta < 1 {
		execDelta = 1
	}
	return float64(metricDelta) / float64(execDelta)
}

// ComputeSample derives one interval sample from the previous stored
// snapshot and the current observation. prev == nil is the bootstrap
// case: the cumulative counters become the first interval outright.
// Returns nil when the interval saw no executions; nothing happened, so
// nothing is recorded.
func ComputeSample(log *zap.Logger, prev *model.CumulativeSnapshot, row model.ObservedRow, target model.Target, fingerprintID int64, now time.Time) *model.Sample {
	var base model.CumulativeSnapshot
	if prev != nil {
		// A reset in exec_count invalidates every other counter's
		// previous value too; treat the whole row as freshly cached.
		if row.ExecCount >= prev.ExecCount {
			base = *prev
		}
	}

	execDelta, _ := delta(row.ExecCount, base.ExecCount)
	if execDelta <= 0 {
		return nil
	}

	cpuDelta, c1 := delta(row.TotalCPUUs, base.TotalCPUUs)
	durDelta, c2 := delta(row.TotalDurationUs, base.TotalDurationUs)
	readsDelta, c3 := delta(row.TotalLogicalReads, base.TotalLogicalReads)
	writesDelta, c4 := delta(row.TotalLogicalWrites, base.TotalLogicalWrites)
	physDelta, c5 := delta(row.TotalPhysicalReads, base.TotalPhysicalReads)
	if c1 || c2 || c3 || c4 || c5 {
		log.Warn("counter moved backwards without a reset; clamped to zero",
			zap.String("target", target.Key()),
			zap.Int64("fingerprint_id", fingerprintID),
			zap.String("plan_hash", row.PlanHash))
	}

	avgCPU := perExec(cpuDelta, execDelta)
	avgDur := perExec(durDelta, execDelta)

	return &model.Sample{
		ID:                   uuid.NewString(),
		FingerprintID:        fingerprintID,
		Instance:             target.Instance,
		Database:             target.Database,
		SampledAt:            now,
		PlanHash:             row.PlanHash,
		ExecCountDelta:       execDelta,
		TotalCPUUsDelta:      cpuDelta,
		AvgCPUUs:             avgCPU,
		// Per-interval extremes are not observable from cumulative
		// counters; the interval average stands in for both.
		MinCPUUs:             avgCPU,
		MaxCPUUs:             avgCPU,
		TotalDurationUsDelta: durDelta,
		AvgDurationUs:        avgDur,
		MinDurationUs:        avgDur,
		MaxDurationUs:        avgDur,
		AvgLogicalReads:      perExec(readsDelta, execDelta),
		AvgLogicalWrites:     perExec(writesDelta, execDelta),
		AvgPhysicalReads:     perExec(physDelta, execDelta),
		// Grant and spill counters are not snapshotted; the lifetime
		// average is close enough for advisory purposes.
		AvgMemoryGrantKB:     perExec(row.TotalGrantKB, row.ExecCount),
		AvgSpills:            perExec(row.TotalSpills, row.ExecCount),
	}
}

// NextSnapshot is the cumulative state to store after the observation,
// regardless of whether a sample was produced.
func NextSnapshot(row model.ObservedRow, target model.Target, fingerprintID int64, now time.Time) model.CumulativeSnapshot {
	return model.CumulativeSnapshot{
		Instance:           target.Instance,
		Database:           target.Database,
		FingerprintID:      fingerprintID,
		PlanHash:           row.PlanHash,
		SnapshotTime:       now,
		ExecCount:          row.ExecCount,
		TotalCPUUs:         row.TotalCPUUs,
		TotalDurationUs:    row.TotalDurationUs,
		TotalLogicalReads:  row.TotalLogicalReads,
		TotalLogicalWrites: row.TotalLogicalWrites,
		TotalPhysicalReads: row.TotalPhysicalReads,
	}
}
