package analyze

import (
	"sort"

	"github.com/ftahirops/sqlsentinel/model"
)

// aggregateRecent collapses one fingerprint's samples (oldest first)
// into the detector's view of current behavior. P95s come from the
// per-interval averages; CurrentPlanHash is the plan of the newest
// sample.
func aggregateRecent(fingerprintID int64, samples []model.Sample) model.AggregatedRecent {
	agg := model.AggregatedRecent{FingerprintID: fingerprintID, SampleCount: int64(len(samples))}
	if len(samples) == 0 {
		return agg
	}

	durations := make([]float64, 0, len(samples))
	cpus := make([]float64, 0, len(samples))
	var readsWeighted float64
	for _, s := range samples {
		durations = append(durations, s.AvgDurationUs)
		cpus = append(cpus, s.AvgCPUUs)
		readsWeighted += s.AvgLogicalReads * float64(s.ExecCountDelta)
		agg.TotalExecutions += s.ExecCountDelta
		agg.TotalCPUUs += s.TotalCPUUsDelta
		agg.TotalDurationUs += s.TotalDurationUsDelta
	}
	sort.Float64s(durations)
	sort.Float64s(cpus)
	agg.P95DurationUs = percentile(durations, 95)
	agg.P95CPUUs = percentile(cpus, 95)
	if agg.TotalExecutions > 0 {
		agg.AvgLogicalReads = readsWeighted / float64(agg.TotalExecutions)
	}
	agg.CurrentPlanHash = samples[len(samples)-1].PlanHash
	return agg
}

// groupByFingerprint splits a target's window of samples per
// fingerprint, preserving the oldest-first order within each group.
func groupByFingerprint(samples []model.Sample) map[int64][]model.Sample {
	out := map[int64][]model.Sample{}
	for _, s := range samples {
		out[s.FingerprintID] = append(out[s.FingerprintID], s)
	}
	return out
}
