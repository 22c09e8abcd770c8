package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/advisor"
	"github.com/ftahirops/sqlsentinel/alert"
	"github.com/ftahirops/sqlsentinel/analyze"
	"github.com/ftahirops/sqlsentinel/collect"
	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/remediate"
	"github.com/ftahirops/sqlsentinel/source"
	"github.com/ftahirops/sqlsentinel/store"
)

// Engine owns the wired component graph. Construction is explicit so
// every dependency is visible in one place.
type Engine struct {
	cfg config.Config
	log *zap.Logger

	db        *store.DB
	src       *source.MSSQL
	collector *collect.Orchestrator
	baselines *analyze.BaselineBuilder
	analyzer  *analyze.Orchestrator
	advisor   *advisor.Advisor
	registry  *alert.Registry
	gateway   *alert.Gateway
	executor  *remediate.Executor

	metrics *Metrics
	promReg *prometheus.Registry
}

// New builds the engine from configuration. Channel construction fails
// fast on invalid destinations.
func New(cfg config.Config, log *zap.Logger) (*Engine, error) {
	db, err := store.Open(filepath.Join(cfg.DataDir, "sentinel.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := alert.NewRegistry()
	if cfg.Alerts.Webhook.Enabled {
		ch, err := alert.NewWebhookChannel(cfg.Alerts.Webhook.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: webhook: %v", model.ErrConfig, err)
		}
		registry.Register(ch)
	}
	if cfg.Alerts.Slack.Enabled {
		ch, err := alert.NewSlackChannel(cfg.Alerts.Slack.WebhookURL, cfg.Alerts.Slack.ChannelTag)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: slack: %v", model.ErrConfig, err)
		}
		registry.Register(ch)
	}
	if cfg.Alerts.Email.Enabled {
		registry.Register(alert.NewEmailChannel(cfg.Alerts.Email))
	}

	src := source.NewMSSQL(cfg, log)
	metrics, promReg := NewMetrics()

	e := &Engine{
		cfg:       cfg,
		log:       log,
		db:        db,
		src:       src,
		collector: collect.NewOrchestrator(cfg.Collection, src, db, log),
		baselines: analyze.NewBaselineBuilder(cfg.Baselines, db, log),
		analyzer:  analyze.NewOrchestrator(cfg.Analysis, analyze.NewDetector(cfg.Rules), db, log),
		advisor:   advisor.New(),
		registry:  registry,
		gateway:   alert.NewGateway(cfg.Alerts, registry, log),
		executor:  remediate.NewExecutor(cfg.Remediation, db.Audit, src.Conn, log),
		metrics:   metrics,
		promReg:   promReg,
	}
	return e, nil
}

// Close releases the store and source pools.
func (e *Engine) Close() error {
	var merr *multierror.Error
	if err := e.src.Close(); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := e.db.Close(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

// Store exposes the repositories for operator commands.
func (e *Engine) Store() *store.DB { return e.db }

// Registry exposes the alert channels for the test-channels command.
func (e *Engine) Registry() *alert.Registry { return e.registry }

// CollectOnce runs a single collection cycle over the selected targets.
func (e *Engine) CollectOnce(ctx context.Context, selector string) (model.CollectionRunSummary, error) {
	targets := e.cfg.SelectTargets(selector)
	if len(targets) == 0 {
		return model.CollectionRunSummary{}, fmt.Errorf("%w: selector %q matches no enabled targets", model.ErrConfig, selector)
	}
	sum := e.collector.Run(ctx, targets)
	e.metrics.ObserveCollection(sum)
	return sum, nil
}

// AnalyzeOnce runs a single analysis cycle: detection, advice, alert
// dispatch, and eligible auto-remediation.
func (e *Engine) AnalyzeOnce(ctx context.Context, selector string) (model.AnalysisRunSummary, error) {
	resolved := e.cfg.SelectTargets(selector)
	if len(resolved) == 0 {
		return model.AnalysisRunSummary{}, fmt.Errorf("%w: selector %q matches no enabled targets", model.ErrConfig, selector)
	}
	targets := make([]model.Target, 0, len(resolved))
	byKey := map[string]model.Target{}
	for _, rt := range resolved {
		targets = append(targets, rt.Target)
		byKey[rt.Target.Key()] = rt.Target
	}

	sum, toAlert, err := e.analyzer.Run(ctx, targets, time.Now().UTC())
	if err != nil {
		return sum, err
	}
	e.metrics.ObserveAnalysis(sum)

	for _, ev := range toAlert {
		fp, err := e.db.Fingerprints.Get(ctx, ev.FingerprintID)
		if err != nil {
			e.log.Warn("fingerprint lookup failed", zap.Int64("fingerprint_id", ev.FingerprintID), zap.Error(err))
		}
		suggestions := e.advisor.Suggest(ev, fp)
		e.gateway.DispatchEvent(ctx, alert.EventMessage(ev, suggestions))
		e.autoRemediate(ctx, byKey, ev, suggestions)
	}
	suppressed, rateLimited := e.gateway.Counters()
	e.metrics.AlertsSuppressed.Set(float64(suppressed))
	e.metrics.AlertsRateLimited.Set(float64(rateLimited))
	for name, n := range e.gateway.Failures() {
		e.metrics.AlertFailures.WithLabelValues(name).Set(float64(n))
	}
	return sum, nil
}

// autoRemediate attempts the highest-priority safe suggestion with an
// action script. The executor's gates make the final call.
func (e *Engine) autoRemediate(ctx context.Context, byKey map[string]model.Target, ev model.RegressionEvent, suggestions []model.RemediationSuggestion) {
	if !e.cfg.Remediation.Enable {
		return
	}
	target, ok := byKey[ev.Instance+"/"+ev.Database]
	if !ok {
		return
	}
	for _, s := range suggestions {
		if s.Safety != model.SafetySafe || s.ActionScript == "" {
			continue
		}
		res, err := e.executor.Execute(ctx, remediate.Request{
			Target:        target,
			FingerprintID: ev.FingerprintID,
			Suggestion:    s,
			InitiatedBy:   "auto",
		})
		if err != nil {
			e.log.Error("auto-remediation audit failure", zap.Error(err))
		}
		_ = res
		return
	}
}

// Remediate runs one operator-initiated remediation through the
// executor's gate sequence.
func (e *Engine) Remediate(ctx context.Context, req remediate.Request) (model.RemediationResult, error) {
	return e.executor.Execute(ctx, req)
}

// RebuildBaselines recomputes all baselines from the current sample
// history.
func (e *Engine) RebuildBaselines(ctx context.Context) (int, error) {
	return e.baselines.RebuildAll(ctx, time.Now().UTC())
}

// PurgeOldSamples removes samples past the retention horizon.
func (e *Engine) PurgeOldSamples(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -e.cfg.Scheduler.RetentionDays)
	return e.db.Samples.PurgeOlderThan(ctx, cutoff)
}

// DailySummary assembles and dispatches the daily digest, purging old
// samples as part of the housekeeping pass.
func (e *Engine) DailySummary(ctx context.Context) (model.DailySummary, error) {
	now := time.Now().UTC()
	events, err := e.db.Events.Summary(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return model.DailySummary{}, err
	}
	var hotspots []model.Hotspot
	for _, rt := range e.cfg.Targets() {
		hs, err := e.analyzer.WindowHotspots(ctx, rt.Target, now.Add(-24*time.Hour), now)
		if err != nil {
			e.log.Warn("digest hotspots failed", zap.String("target", rt.Target.Key()), zap.Error(err))
			continue
		}
		hotspots = append(hotspots, hs...)
	}
	purged, err := e.PurgeOldSamples(ctx)
	if err != nil {
		return model.DailySummary{}, err
	}
	sum := model.DailySummary{
		GeneratedAt:   now,
		Events:        events,
		Hotspots:      hotspots,
		SamplesPurged: purged,
	}
	e.gateway.DispatchSummary(ctx, alert.SummaryMessage(sum))
	return sum, nil
}
