package analyze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ftahirops/sqlsentinel/model"
)

func TestTopHotspots(t *testing.T) {
	now := time.Now().UTC()
	from := now.Add(-time.Hour)
	aggs := map[int64]model.AggregatedRecent{
		1: {TotalCPUUs: 700_000, TotalExecutions: 100},
		2: {TotalCPUUs: 200_000, TotalExecutions: 50},
		3: {TotalCPUUs: 100_000, TotalExecutions: 10},
		4: {TotalCPUUs: 0, TotalExecutions: 5}, // no consumption, excluded
	}

	hs := TopHotspots(target, aggs, "cpu", 2, from, now)
	require.Len(t, hs, 2)
	require.EqualValues(t, 1, hs[0].FingerprintID)
	require.Equal(t, 1, hs[0].Rank)
	require.InDelta(t, 70, hs[0].PercentageOfTotal, 0.0001)
	require.InDelta(t, 7000, hs[0].AvgMetricValue, 0.0001)
	require.EqualValues(t, 2, hs[1].FingerprintID)
	// Share is relative to the whole window, including fingerprint 3
	// below the cut.
	require.InDelta(t, 20, hs[1].PercentageOfTotal, 0.0001)
}

func TestTopHotspotsTieBreaking(t *testing.T) {
	now := time.Now().UTC()
	aggs := map[int64]model.AggregatedRecent{
		5: {TotalCPUUs: 100, TotalExecutions: 10},
		2: {TotalCPUUs: 100, TotalExecutions: 30},
		9: {TotalCPUUs: 100, TotalExecutions: 10},
	}
	hs := TopHotspots(target, aggs, "cpu", 3, now.Add(-time.Hour), now)
	require.Len(t, hs, 3)
	// Higher exec count first, then lower fingerprint id.
	require.EqualValues(t, 2, hs[0].FingerprintID)
	require.EqualValues(t, 5, hs[1].FingerprintID)
	require.EqualValues(t, 9, hs[2].FingerprintID)
}

func TestTopHotspotsEmpty(t *testing.T) {
	now := time.Now().UTC()
	require.Nil(t, TopHotspots(target, nil, "cpu", 10, now.Add(-time.Hour), now))
	require.Nil(t, TopHotspots(target, map[int64]model.AggregatedRecent{
		1: {TotalCPUUs: 0},
	}, "cpu", 10, now.Add(-time.Hour), now))
}

func TestMetricTotalDimensions(t *testing.T) {
	agg := model.AggregatedRecent{
		TotalCPUUs: 10, TotalDurationUs: 20, TotalExecutions: 4, AvgLogicalReads: 2.5,
	}
	require.EqualValues(t, 10, metricTotal("cpu", agg))
	require.EqualValues(t, 20, metricTotal("duration", agg))
	require.EqualValues(t, 4, metricTotal("executions", agg))
	require.EqualValues(t, 10, metricTotal("logical_reads", agg))
}
