// Package alert routes regression events and daily summaries to
// notification channels with cooldown and rate controls.
package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/ftahirops/sqlsentinel/model"
)

// Message is the channel-independent notification payload.
type Message struct {
	Kind        string // "regression", "summary", or "test"
	Title       string
	Body        string
	Event       *model.RegressionEvent
	Suggestions []model.RemediationSuggestion
	Summary     *model.DailySummary
}

// Channel delivers messages to one destination. Send must respect ctx
// and return an error on non-delivery; the gateway isolates failures.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// EventMessage renders a regression event and its suggestions.
func EventMessage(ev model.RegressionEvent, suggestions []model.RemediationSuggestion) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s regression on %s/%s\n", ev.Type, ev.Instance, ev.Database)
	fmt.Fprintf(&b, "%s: %.0f -> %.0f (+%.0f%%), severity %s\n",
		ev.MetricName, ev.BaselineValue, ev.CurrentValue, ev.ChangePercent, ev.Severity)
	if ev.IsPlanChange {
		fmt.Fprintf(&b, "plan changed %s -> %s\n", ev.BaselinePlanHash, ev.CurrentPlanHash)
	}
	for _, s := range suggestions {
		fmt.Fprintf(&b, "%d. [%s] %s\n", s.Priority, s.Safety, s.Title)
	}
	return Message{
		Kind:        "regression",
		Title:       fmt.Sprintf("[%s] query regression on %s/%s", strings.ToUpper(ev.Severity.String()), ev.Instance, ev.Database),
		Body:        b.String(),
		Event:       &ev,
		Suggestions: suggestions,
	}
}

// SummaryMessage renders the daily digest.
func SummaryMessage(sum model.DailySummary) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "events: %d new, %d resolved, %d dismissed\n",
		sum.Events.NewCount, sum.Events.ResolvedCount, sum.Events.DismissedCount)
	for sev, n := range sum.Events.BySeverity {
		fmt.Fprintf(&b, "  %s: %d\n", sev, n)
	}
	for i, h := range sum.Hotspots {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "hotspot #%d fingerprint %d on %s/%s: %.1f%% of %s\n",
			h.Rank, h.FingerprintID, h.Instance, h.Database, h.PercentageOfTotal, h.MetricType)
	}
	if sum.SamplesPurged > 0 {
		fmt.Fprintf(&b, "purged %d samples\n", sum.SamplesPurged)
	}
	return Message{
		Kind:    "summary",
		Title:   fmt.Sprintf("daily query performance summary %s", sum.GeneratedAt.Format("2006-01-02")),
		Body:    b.String(),
		Summary: &sum,
	}
}
