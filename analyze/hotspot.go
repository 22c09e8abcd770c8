package analyze

import (
	"sort"
	"time"

	"github.com/ftahirops/sqlsentinel/model"
)

// metricTotal extracts the ranked dimension from an aggregate.
func metricTotal(metric string, agg model.AggregatedRecent) float64 {
	switch metric {
	case "duration":
		return float64(agg.TotalDurationUs)
	case "logical_reads":
		return agg.AvgLogicalReads * float64(agg.TotalExecutions)
	case "executions":
		return float64(agg.TotalExecutions)
	default: // cpu
		return float64(agg.TotalCPUUs)
	}
}

// TopHotspots ranks fingerprints by their share of one resource metric
// within the window. Ties break by execution count, then by fingerprint
// id for a stable order. percentage_of_total is relative to the whole
// window's consumption, including fingerprints below the cut.
func TopHotspots(target model.Target, aggs map[int64]model.AggregatedRecent, metric string, topN int, windowStart, windowEnd time.Time) []model.Hotspot {
	var grand float64
	type entry struct {
		id  int64
		agg model.AggregatedRecent
		val float64
	}
	entries := make([]entry, 0, len(aggs))
	for id, agg := range aggs {
		v := metricTotal(metric, agg)
		grand += v
		if v > 0 {
			entries = append(entries, entry{id: id, agg: agg, val: v})
		}
	}
	if grand <= 0 || len(entries) == 0 {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].val != entries[j].val {
			return entries[i].val > entries[j].val
		}
		if entries[i].agg.TotalExecutions != entries[j].agg.TotalExecutions {
			return entries[i].agg.TotalExecutions > entries[j].agg.TotalExecutions
		}
		return entries[i].id < entries[j].id
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}

	out := make([]model.Hotspot, 0, len(entries))
	for rank, e := range entries {
		avg := e.val / float64(max64(e.agg.TotalExecutions, 1))
		out = append(out, model.Hotspot{
			FingerprintID:     e.id,
			Instance:          target.Instance,
			Database:          target.Database,
			WindowStart:       windowStart,
			WindowEnd:         windowEnd,
			Rank:              rank + 1,
			MetricType:        metric,
			TotalMetricValue:  e.val,
			AvgMetricValue:    avg,
			ExecCount:         e.agg.TotalExecutions,
			PercentageOfTotal: e.val / grand * 100,
		})
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
