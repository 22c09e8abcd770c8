package analyze

import (
	"time"

	"github.com/google/uuid"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
)

// finding is one metric's regression before event assembly.
type finding struct {
	typ           model.RegressionType
	metricName    string
	baselineValue float64
	currentValue  float64
	changePercent float64
	severity      model.Severity
}

// Detector evaluates recent aggregates against active baselines.
type Detector struct {
	rules config.RuleConfig
}

func NewDetector(rules config.RuleConfig) *Detector {
	return &Detector{rules: rules}
}

// severityFor grades a regression by degradation ratio and by total
// impact (executions times per-execution increase). The worse of the
// two grades wins, so a small slowdown on a very hot query still
// escalates.
func severityFor(baseline, current float64, executions int64) model.Severity {
	ratio := current / baseline
	byRatio := model.SeverityLow
	switch {
	case ratio >= 10:
		byRatio = model.SeverityCritical
	case ratio >= 5:
		byRatio = model.SeverityHigh
	case ratio >= 3:
		byRatio = model.SeverityMedium
	}

	// Impact grades total extra work across the window: executions times
	// the per-execution increase, scaled down so one slow run of a
	// rarely executed query cannot outrank its own ratio grade.
	impact := float64(executions) * (current - baseline) / 1000
	byImpact := model.SeverityLow
	switch {
	case impact >= 1_000_000:
		byImpact = model.SeverityCritical
	case impact >= 100_000:
		byImpact = model.SeverityHigh
	case impact >= 10_000:
		byImpact = model.SeverityMedium
	}

	if byImpact > byRatio {
		return byImpact
	}
	return byRatio
}

// check produces a finding when current exceeds baseline by more than
// thresholdPercent. A zero baseline cannot regress.
func check(typ model.RegressionType, metricName string, baseline, current, thresholdPercent float64, executions int64) *finding {
	if baseline <= 0 {
		return nil
	}
	// current/baseline >= 1 + threshold/100 triggers: exactly at the
	// threshold is a regression.
	changePercent := (current - baseline) / baseline * 100
	if changePercent < thresholdPercent {
		return nil
	}
	return &finding{
		typ:           typ,
		metricName:    metricName,
		baselineValue: baseline,
		currentValue:  current,
		changePercent: changePercent,
		severity:      severityFor(baseline, current, executions),
	}
}

// Detect compares one fingerprint's recent behavior against its active
// baseline and returns at most one event. Multiple regressed metrics
// collapse into a multi_metric event carrying the worst one. A plan
// change marks the event but never changes its metric type; only a plan
// change with no metric regression at all becomes a plan_change event
// of its own.
func (d *Detector) Detect(target model.Target, baseline model.Baseline, recent model.AggregatedRecent, now time.Time) *model.RegressionEvent {
	if baseline.SampleCount < d.rules.MinimumBaselineSamples {
		return nil
	}
	if recent.TotalExecutions < d.rules.MinimumExecutions {
		return nil
	}

	var findings []*finding
	if f := check(model.RegressionDuration, "p95_duration_us",
		baseline.P95DurationUs, recent.P95DurationUs,
		d.rules.DurationThresholdPercent, recent.TotalExecutions); f != nil {
		findings = append(findings, f)
	}
	if f := check(model.RegressionCPU, "p95_cpu_us",
		baseline.P95CPUUs, recent.P95CPUUs,
		d.rules.CPUThresholdPercent, recent.TotalExecutions); f != nil {
		findings = append(findings, f)
	}
	if f := check(model.RegressionLogicalReads, "avg_logical_reads",
		baseline.MedianLogicalReads, recent.AvgLogicalReads,
		d.rules.LogicalReadsThresholdPercent, recent.TotalExecutions); f != nil {
		findings = append(findings, f)
	}
	planChanged := baseline.TypicalPlanHash != "" && recent.CurrentPlanHash != "" &&
		baseline.TypicalPlanHash != recent.CurrentPlanHash

	if len(findings) == 0 {
		if !planChanged {
			return nil
		}
		// The plan itself is the regressed dimension. Performance still
		// holds, so severity starts at the bottom.
		return &model.RegressionEvent{
			ID:               uuid.NewString(),
			FingerprintID:    recent.FingerprintID,
			Instance:         target.Instance,
			Database:         target.Database,
			DetectedAt:       now,
			Type:             model.RegressionPlanChange,
			MetricName:       "plan_hash",
			Severity:         model.SeverityLow,
			IsPlanChange:     true,
			BaselinePlanHash: baseline.TypicalPlanHash,
			CurrentPlanHash:  recent.CurrentPlanHash,
			Status:           model.StatusNew,
		}
	}

	worst := findings[0]
	for _, f := range findings[1:] {
		if f.severity > worst.severity ||
			(f.severity == worst.severity && f.changePercent > worst.changePercent) {
			worst = f
		}
	}

	typ := worst.typ
	if len(findings) > 1 {
		typ = model.RegressionMultiMetric
	}

	return &model.RegressionEvent{
		ID:               uuid.NewString(),
		FingerprintID:    recent.FingerprintID,
		Instance:         target.Instance,
		Database:         target.Database,
		DetectedAt:       now,
		Type:             typ,
		MetricName:       worst.metricName,
		BaselineValue:    worst.baselineValue,
		CurrentValue:     worst.currentValue,
		ChangePercent:    worst.changePercent,
		Severity:         worst.severity,
		IsPlanChange:     planChanged,
		BaselinePlanHash: baseline.TypicalPlanHash,
		CurrentPlanHash:  recent.CurrentPlanHash,
		Status:           model.StatusNew,
	}
}
