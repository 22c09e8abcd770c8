// Package analyze builds baselines from historical samples and checks
// recent behavior against them for regressions and hotspots.
package analyze

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/store"
)

// percentile linearly interpolates the p-th percentile (0..100) of a
// sorted slice. Single-element slices return that element.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// stddev is the population standard deviation.
func stddev(vals []float64) float64 {
	n := float64(len(vals))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / n
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / n)
}

// typicalPlanHash picks the plan carrying the largest execution share
// in the window. Ties go to the most recently observed plan.
func typicalPlanHash(samples []model.Sample) string {
	execs := map[string]int64{}
	lastSeen := map[string]time.Time{}
	for _, s := range samples {
		execs[s.PlanHash] += s.ExecCountDelta
		if s.SampledAt.After(lastSeen[s.PlanHash]) {
			lastSeen[s.PlanHash] = s.SampledAt
		}
	}
	var best string
	var bestExecs int64 = -1
	for hash, n := range execs {
		if n > bestExecs || (n == bestExecs && lastSeen[hash].After(lastSeen[best])) {
			best, bestExecs = hash, n
		}
	}
	return best
}

// BaselineBuilder computes percentile baselines over a lookback window.
type BaselineBuilder struct {
	cfg config.BaselineConfig
	db  *store.DB
	log *zap.Logger
}

func NewBaselineBuilder(cfg config.BaselineConfig, db *store.DB, log *zap.Logger) *BaselineBuilder {
	return &BaselineBuilder{cfg: cfg, db: db, log: log.Named("baseline")}
}

// Build computes a baseline for one fingerprint from its samples in
// [now-lookback, now). Returns nil without error when the window holds
// fewer than min_samples samples; a thin baseline is worse than none.
func (b *BaselineBuilder) Build(ctx context.Context, fingerprintID int64, now time.Time) (*model.Baseline, error) {
	from := now.Add(-b.cfg.Lookback)
	samples, err := b.db.Samples.GetInWindow(ctx, fingerprintID, from, now)
	if err != nil {
		return nil, err
	}
	if len(samples) < b.cfg.MinSamples {
		b.log.Debug("insufficient samples for baseline",
			zap.Int64("fingerprint_id", fingerprintID),
			zap.Int("samples", len(samples)),
			zap.Int("min", b.cfg.MinSamples))
		return nil, nil
	}

	durations := make([]float64, 0, len(samples))
	cpus := make([]float64, 0, len(samples))
	reads := make([]float64, 0, len(samples))
	var totalExecs int64
	for _, s := range samples {
		durations = append(durations, s.AvgDurationUs)
		cpus = append(cpus, s.AvgCPUUs)
		reads = append(reads, s.AvgLogicalReads)
		totalExecs += s.ExecCountDelta
	}
	sort.Float64s(durations)
	sort.Float64s(cpus)
	sort.Float64s(reads)

	return &model.Baseline{
		ID:                 uuid.NewString(),
		FingerprintID:      fingerprintID,
		WindowStart:        from,
		WindowEnd:          now,
		SampleCount:        int64(len(samples)),
		TotalExecutions:    totalExecs,
		MedianDurationUs:   percentile(durations, 50),
		P95DurationUs:      percentile(durations, 95),
		P99DurationUs:      percentile(durations, 99),
		MedianCPUUs:        percentile(cpus, 50),
		P95CPUUs:           percentile(cpus, 95),
		MedianLogicalReads: percentile(reads, 50),
		P95LogicalReads:    percentile(reads, 95),
		DurationStddev:     stddev(durations),
		TypicalPlanHash:    typicalPlanHash(samples),
		IsActive:           true,
	}, nil
}

// RebuildAll recomputes and persists baselines for every fingerprint
// with recent samples. Returns how many baselines were written.
func (b *BaselineBuilder) RebuildAll(ctx context.Context, now time.Time) (int, error) {
	ids, err := b.db.Baselines.GetStale(ctx, 0)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		baseline, err := b.Build(ctx, id, now)
		if err != nil {
			return written, err
		}
		if baseline == nil {
			continue
		}
		if err := b.db.Baselines.Save(ctx, *baseline); err != nil {
			return written, err
		}
		written++
	}
	b.log.Info("baseline rebuild done", zap.Int("written", written), zap.Int("candidates", len(ids)))
	return written, nil
}
