package collect

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/source"
	"github.com/ftahirops/sqlsentinel/store"
)

// fakeSource serves canned rows per target key and can be told to fail.
type fakeSource struct {
	rows    map[string][]model.ObservedRow
	failAll bool
}

func (f *fakeSource) FetchTopByCost(_ context.Context, target model.Target, _ int, _ time.Duration, _ source.OrderBy) ([]model.ObservedRow, error) {
	if f.failAll {
		return nil, &model.ConnectError{Instance: target.Instance, Err: errors.New("refused")}
	}
	return f.rows[target.Key()], nil
}

func (f *fakeSource) IsHistoricalStoreAvailable(context.Context, model.Target) bool { return false }

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testTargets() []config.ResolvedTarget {
	settings := config.EffectiveSettings{
		TopN: 50, Lookback: time.Hour, MinimumExecutions: 5, CollectionTimeout: 5 * time.Second,
	}
	return []config.ResolvedTarget{
		{Target: model.Target{Instance: "prod-sql-01", Database: "orders", Enabled: true}, Settings: settings},
		{Target: model.Target{Instance: "prod-sql-01", Database: "billing", Enabled: true}, Settings: settings},
	}
}

func testCollectionConfig() config.CollectionConfig {
	cfg := config.Default().Collection
	cfg.Parallelism = 2
	return cfg
}

func TestRunCollectsAndPersists(t *testing.T) {
	db := testDB(t)
	src := &fakeSource{rows: map[string][]model.ObservedRow{
		"prod-sql-01/orders": {
			{SQLText: "SELECT * FROM orders WHERE id = 1", PlanHash: "0xa", ExecCount: 100, TotalCPUUs: 200_000, TotalDurationUs: 400_000},
			{SQLText: "SELECT name FROM customers WHERE id = 2", PlanHash: "0xb", ExecCount: 50, TotalCPUUs: 10_000, TotalDurationUs: 20_000},
			// Below the minimum execution count; filtered out.
			{SQLText: "SELECT 1", PlanHash: "0xc", ExecCount: 2},
		},
		"prod-sql-01/billing": {
			{SQLText: "UPDATE invoices SET paid = 1 WHERE id = 9", PlanHash: "0xd", ExecCount: 10, TotalCPUUs: 5_000, TotalDurationUs: 9_000},
		},
	}}
	o := NewOrchestrator(testCollectionConfig(), src, db, zap.NewNop())

	sum := o.Run(context.Background(), testTargets())
	require.Equal(t, 2, sum.TargetsOK)
	require.Zero(t, sum.TargetsFailed)
	require.Equal(t, 3, sum.SamplesWritten)
	require.False(t, sum.Partial())

	// Snapshots advanced; the identical second cycle yields no samples.
	sum = o.Run(context.Background(), testTargets())
	require.Equal(t, 2, sum.TargetsOK)
	require.Zero(t, sum.SamplesWritten)
}

func TestRunSecondCycleDeltas(t *testing.T) {
	db := testDB(t)
	src := &fakeSource{rows: map[string][]model.ObservedRow{
		"prod-sql-01/orders": {
			{SQLText: "SELECT * FROM orders WHERE id = 1", PlanHash: "0xa", ExecCount: 100, TotalCPUUs: 200_000},
		},
	}}
	targets := testTargets()[:1]
	o := NewOrchestrator(testCollectionConfig(), src, db, zap.NewNop())
	o.Run(context.Background(), targets)

	src.rows["prod-sql-01/orders"][0].ExecCount = 160
	src.rows["prod-sql-01/orders"][0].TotalCPUUs = 320_000
	sum := o.Run(context.Background(), targets)
	require.Equal(t, 1, sum.SamplesWritten)

	samples, err := db.Samples.GetTargetWindow(context.Background(),
		targets[0].Target, time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	last := samples[len(samples)-1]
	require.EqualValues(t, 60, last.ExecCountDelta)
	require.InDelta(t, 2000, last.AvgCPUUs, 0.001)
}

func TestRunFingerprintsShareIdentity(t *testing.T) {
	// Two literal variants of the same shape must resolve to one
	// fingerprint.
	db := testDB(t)
	src := &fakeSource{rows: map[string][]model.ObservedRow{
		"prod-sql-01/orders": {
			{SQLText: "SELECT * FROM orders WHERE id = 1", PlanHash: "0xa", ExecCount: 10, TotalCPUUs: 1000},
			{SQLText: "SELECT * FROM orders WHERE id = 42", PlanHash: "0xa", ExecCount: 20, TotalCPUUs: 2000},
		},
	}}
	o := NewOrchestrator(testCollectionConfig(), src, db, zap.NewNop())
	sum := o.Run(context.Background(), testTargets()[:1])
	require.Equal(t, 1, sum.TargetsOK)

	var n int
	target := testTargets()[0].Target
	ids, err := db.Samples.ActiveFingerprints(context.Background(), target,
		time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	n = len(ids)
	require.Equal(t, 1, n)
}

func TestRunConnectErrorFailsInstance(t *testing.T) {
	db := testDB(t)
	src := &fakeSource{failAll: true}
	o := NewOrchestrator(testCollectionConfig(), src, db, zap.NewNop())

	sum := o.Run(context.Background(), testTargets())
	require.Zero(t, sum.TargetsOK)
	require.Equal(t, 2, sum.TargetsFailed)
	require.True(t, sum.AllFailed())
	require.Len(t, sum.Instances, 1)
	require.NotEmpty(t, sum.Instances[0].ConnectError)
}

func TestRunBreakerSkipsAfterConsecutiveFailures(t *testing.T) {
	db := testDB(t)
	src := &fakeSource{failAll: true}
	o := NewOrchestrator(testCollectionConfig(), src, db, zap.NewNop())
	targets := testTargets()[:1]

	for i := 0; i < 5; i++ {
		sum := o.Run(context.Background(), targets)
		require.False(t, sum.Instances[0].Skipped, "cycle %d should still attempt", i)
	}
	sum := o.Run(context.Background(), targets)
	require.True(t, sum.Instances[0].Skipped)
	require.Equal(t, 1, sum.TargetsFailed)
}
