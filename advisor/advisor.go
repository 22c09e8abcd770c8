// Package advisor maps regression events to ordered remediation
// suggestions. Suggestions are advice only; the remediation executor
// owns every safety decision at execution time.
package advisor

import (
	"fmt"

	"github.com/ftahirops/sqlsentinel/model"
)

// Advisor derives suggestions from event shape. It holds no state.
type Advisor struct{}

func New() *Advisor { return &Advisor{} }

// suggest builds one suggestion with safety derived from the type.
// Safety is never taken from the caller.
func suggest(eventID string, typ model.RemediationType, confidence float64, priority int, title, description, rationale, script string) model.RemediationSuggestion {
	return model.RemediationSuggestion{
		RegressionEventID: eventID,
		Type:              typ,
		Safety:            model.SafetyForType(typ),
		Confidence:        confidence,
		Title:             title,
		Description:       description,
		Rationale:         rationale,
		ActionScript:      script,
		Priority:          priority,
	}
}

// Suggest returns remediation suggestions for an event, ordered by
// priority (1 first). Unknown event types yield nothing.
func (a *Advisor) Suggest(ev model.RegressionEvent, fp *model.Fingerprint) []model.RemediationSuggestion {
	db := ev.Database
	statsScript := fmt.Sprintf("EXEC sp_updatestats -- database: %s", db)

	switch ev.Type {
	case model.RegressionPlanChange:
		out := []model.RemediationSuggestion{
			suggest(ev.ID, model.RemForcePlan, 0.8, 1,
				"Force the previous plan",
				fmt.Sprintf("Pin the plan %s that the query used before the change.", ev.BaselinePlanHash),
				fmt.Sprintf("Performance degraded %.0f%% after the plan changed from %s to %s.",
					ev.ChangePercent, ev.BaselinePlanHash, ev.CurrentPlanHash),
				""),
			suggest(ev.ID, model.RemUpdateStatistics, 0.6, 2,
				"Update statistics",
				"Refresh statistics so the optimizer re-costs the query with current data distribution.",
				"Stale statistics are the most common cause of bad plan picks.",
				statsScript),
			suggest(ev.ID, model.RemClearPlanCache, 0.4, 3,
				"Evict the cached plan",
				"Remove the regressed plan from cache and let the optimizer recompile.",
				"",
				""),
		}
		return out

	case model.RegressionDuration, model.RegressionCPU, model.RegressionMultiMetric:
		// Several metrics collapsing at once at high severity is not a
		// statistics refresh away; hand it to a human untouched.
		if ev.Type == model.RegressionMultiMetric && ev.Severity >= model.SeverityHigh {
			return []model.RemediationSuggestion{
				suggest(ev.ID, model.RemEscalate, 0.9, 1,
					"Escalate for manual investigation",
					"Multiple metrics regressed together at high severity; automatic remediation does not apply.",
					fmt.Sprintf("%s and other metrics rose together; worst change %.0f%%.",
						ev.MetricName, ev.ChangePercent),
					""),
			}
		}

		out := make([]model.RemediationSuggestion, 0, 4)
		prio := 1
		if ev.IsPlanChange {
			out = append(out, suggest(ev.ID, model.RemForcePlan, 0.7, prio,
				"Force the previous plan",
				fmt.Sprintf("Pin the plan %s that the query used before the change.", ev.BaselinePlanHash),
				fmt.Sprintf("%s rose %.0f%% after the plan changed from %s to %s.",
					ev.MetricName, ev.ChangePercent, ev.BaselinePlanHash, ev.CurrentPlanHash),
				""))
			prio++
		}
		out = append(out,
			suggest(ev.ID, model.RemUpdateStatistics, 0.6, prio,
				"Update statistics",
				"Refresh statistics so the optimizer re-costs the query with current data distribution.",
				fmt.Sprintf("%s rose %.0f%% against baseline.",
					ev.MetricName, ev.ChangePercent),
				statsScript),
			suggest(ev.ID, model.RemAddQueryHint, 0.3, prio+1,
				"Consider a query hint",
				"A RECOMPILE or OPTIMIZE FOR hint can stabilize a parameter-sensitive query.",
				"",
				""),
			suggest(ev.ID, model.RemRewriteQuery, 0.2, prio+2,
				"Review the query shape",
				reviewDescription(fp),
				"",
				""))
		return out

	case model.RegressionLogicalReads:
		return []model.RemediationSuggestion{
			suggest(ev.ID, model.RemCreateIndex, 0.5, 1,
				"Evaluate a covering index",
				"Rising logical reads usually mean a scan where a seek used to suffice.",
				fmt.Sprintf("avg_logical_reads rose %.0f%% against baseline.", ev.ChangePercent),
				""),
			suggest(ev.ID, model.RemUpdateStatistics, 0.4, 2,
				"Update statistics",
				"Refresh statistics so the optimizer re-costs the query with current data distribution.",
				"",
				statsScript),
		}
	}
	return nil
}

func reviewDescription(fp *model.Fingerprint) string {
	if fp == nil || fp.SampleText == "" {
		return "Manually review the statement for avoidable work."
	}
	return fmt.Sprintf("Manually review the statement for avoidable work: %s", fp.SampleText)
}
