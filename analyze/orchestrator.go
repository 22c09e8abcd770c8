package analyze

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/store"
)

// Orchestrator runs one analysis cycle: aggregate the recent window,
// detect regressions against baselines, record hotspots.
type Orchestrator struct {
	cfg      config.AnalysisConfig
	detector *Detector
	db       *store.DB
	log      *zap.Logger
}

func NewOrchestrator(cfg config.AnalysisConfig, detector *Detector, db *store.DB, log *zap.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, detector: detector, db: db, log: log.Named("analyze")}
}

// Run analyzes all targets and returns the cycle summary plus the
// events that should be routed to alert channels (new events and open
// events whose severity increased).
func (o *Orchestrator) Run(ctx context.Context, targets []model.Target, now time.Time) (model.AnalysisRunSummary, []model.RegressionEvent, error) {
	started := time.Now()
	summary := model.AnalysisRunSummary{StartedAt: now}
	var toAlert []model.RegressionEvent

	for _, target := range targets {
		checked, events, hotspots, err := o.runTarget(ctx, target, now)
		summary.FingerprintsChecked += checked
		if err != nil {
			summary.TargetsFailed++
			o.log.Warn("target analysis failed", zap.String("target", target.Key()), zap.Error(err))
			continue
		}
		summary.TargetsOK++
		summary.Hotspots = append(summary.Hotspots, hotspots...)
		for _, ev := range events {
			if ev.created {
				summary.EventsCreated++
			} else {
				summary.EventsUpdated++
			}
			toAlert = append(toAlert, ev.event)
		}
	}

	summary.Duration = time.Since(started)
	o.log.Info("analysis cycle done",
		zap.Int("fingerprints", summary.FingerprintsChecked),
		zap.Int("events_created", summary.EventsCreated),
		zap.Int("events_updated", summary.EventsUpdated),
		zap.Int("hotspots", len(summary.Hotspots)),
		zap.Duration("took", summary.Duration))
	return summary, toAlert, nil
}

// WindowHotspots computes the hotspot ranking for one target over an
// arbitrary window, without touching baselines or events. The daily
// digest uses it with a 24h window.
func (o *Orchestrator) WindowHotspots(ctx context.Context, target model.Target, from, to time.Time) ([]model.Hotspot, error) {
	samples, err := o.db.Samples.GetTargetWindow(ctx, target, from, to)
	if err != nil {
		return nil, err
	}
	groups := groupByFingerprint(samples)
	aggs := make(map[int64]model.AggregatedRecent, len(groups))
	for fpID, group := range groups {
		aggs[fpID] = aggregateRecent(fpID, group)
	}
	return TopHotspots(target, aggs, o.cfg.HotspotMetric, o.cfg.HotspotTopN, from, to), nil
}

type routedEvent struct {
	event   model.RegressionEvent
	created bool
}

func (o *Orchestrator) runTarget(ctx context.Context, target model.Target, now time.Time) (int, []routedEvent, []model.Hotspot, error) {
	from := now.Add(-o.cfg.RecentWindow)
	samples, err := o.db.Samples.GetTargetWindow(ctx, target, from, now)
	if err != nil {
		return 0, nil, nil, err
	}
	groups := groupByFingerprint(samples)

	aggs := make(map[int64]model.AggregatedRecent, len(groups))
	var routed []routedEvent
	for fpID, group := range groups {
		agg := aggregateRecent(fpID, group)
		aggs[fpID] = agg

		baseline, err := o.db.Baselines.GetActive(ctx, fpID)
		if err != nil {
			return len(aggs), routed, nil, err
		}
		if baseline == nil {
			continue
		}
		candidate := o.detector.Detect(target, *baseline, agg, now)
		if candidate == nil {
			continue
		}

		ev, created, err := o.reconcile(ctx, *candidate)
		if err != nil {
			return len(aggs), routed, nil, err
		}
		if ev != nil {
			routed = append(routed, routedEvent{event: *ev, created: created})
		}
	}

	hotspots := TopHotspots(target, aggs, o.cfg.HotspotMetric, o.cfg.HotspotTopN, from, now)
	return len(aggs), routed, hotspots, nil
}

// reconcile deduplicates a candidate against the fingerprint's open
// events. An open event of the same type absorbs the observation; only
// a severity increase makes it alertable again.
func (o *Orchestrator) reconcile(ctx context.Context, candidate model.RegressionEvent) (*model.RegressionEvent, bool, error) {
	open, err := o.db.Events.GetActiveByFingerprint(ctx, candidate.FingerprintID)
	if err != nil {
		return nil, false, err
	}
	for _, existing := range open {
		if existing.Type != candidate.Type {
			continue
		}
		if candidate.Severity <= existing.Severity {
			return nil, false, nil
		}
		if err := o.db.Events.UpdateObservation(ctx, existing.ID,
			candidate.CurrentValue, candidate.ChangePercent, candidate.Severity); err != nil {
			return nil, false, err
		}
		existing.CurrentValue = candidate.CurrentValue
		existing.ChangePercent = candidate.ChangePercent
		existing.Severity = candidate.Severity
		return &existing, false, nil
	}

	if err := o.db.Events.Save(ctx, candidate); err != nil {
		return nil, false, err
	}
	return &candidate, true, nil
}
