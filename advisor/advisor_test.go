package advisor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ftahirops/sqlsentinel/model"
)

func baseEvent(typ model.RegressionType) model.RegressionEvent {
	return model.RegressionEvent{
		ID:               "ev-1",
		Instance:         "prod-sql-01",
		Database:         "orders",
		Type:             typ,
		MetricName:       "p95_duration_us",
		ChangePercent:    120,
		BaselinePlanHash: "0xa",
		CurrentPlanHash:  "0xb",
	}
}

func TestSuggestPlanChange(t *testing.T) {
	sugg := New().Suggest(baseEvent(model.RegressionPlanChange), nil)
	require.Len(t, sugg, 3)
	require.Equal(t, model.RemForcePlan, sugg[0].Type)
	require.Equal(t, model.SafetySafe, sugg[0].Safety)
	require.Equal(t, 1, sugg[0].Priority)
	require.Contains(t, sugg[0].Rationale, "0xa")
	require.Contains(t, sugg[0].Rationale, "0xb")
	for i, s := range sugg {
		require.Equal(t, i+1, s.Priority)
		require.Equal(t, "ev-1", s.RegressionEventID)
	}
}

func TestSuggestDurationRegression(t *testing.T) {
	for _, typ := range []model.RegressionType{
		model.RegressionDuration, model.RegressionCPU, model.RegressionMultiMetric,
	} {
		sugg := New().Suggest(baseEvent(typ), nil)
		require.Len(t, sugg, 3, "type %s", typ)
		require.Equal(t, model.RemUpdateStatistics, sugg[0].Type)
		require.Equal(t, model.SafetySafe, sugg[0].Safety)
		require.Equal(t, model.RemAddQueryHint, sugg[1].Type)
		require.Equal(t, model.SafetyRequiresReview, sugg[1].Safety)
		require.Equal(t, model.RemRewriteQuery, sugg[2].Type)
		require.Equal(t, model.SafetyManualOnly, sugg[2].Safety)
	}
}

func TestSuggestMultiMetricHighSeverityEscalates(t *testing.T) {
	for _, sev := range []model.Severity{model.SeverityHigh, model.SeverityCritical} {
		ev := baseEvent(model.RegressionMultiMetric)
		ev.Severity = sev
		sugg := New().Suggest(ev, nil)
		require.Len(t, sugg, 1, "severity %s", sev)
		require.Equal(t, model.RemEscalate, sugg[0].Type)
		require.Equal(t, model.SafetyManualOnly, sugg[0].Safety)
		require.Empty(t, sugg[0].ActionScript)
	}

	// Below high the standard set applies.
	ev := baseEvent(model.RegressionMultiMetric)
	ev.Severity = model.SeverityMedium
	require.Len(t, New().Suggest(ev, nil), 3)
}

func TestSuggestMetricRegressionWithPlanChange(t *testing.T) {
	ev := baseEvent(model.RegressionCPU)
	ev.IsPlanChange = true
	sugg := New().Suggest(ev, nil)
	require.Len(t, sugg, 4)
	require.Equal(t, model.RemForcePlan, sugg[0].Type)
	require.Equal(t, model.RemUpdateStatistics, sugg[1].Type)
	for i, s := range sugg {
		require.Equal(t, i+1, s.Priority)
	}
}

func TestSuggestLogicalReads(t *testing.T) {
	sugg := New().Suggest(baseEvent(model.RegressionLogicalReads), nil)
	require.Len(t, sugg, 2)
	require.Equal(t, model.RemCreateIndex, sugg[0].Type)
	require.Equal(t, model.SafetyRequiresReview, sugg[0].Safety)
}

func TestSuggestSafetyAlwaysDerivedFromType(t *testing.T) {
	// Every suggestion's safety must equal the type's fixed class.
	for _, typ := range []model.RegressionType{
		model.RegressionPlanChange, model.RegressionDuration,
		model.RegressionCPU, model.RegressionLogicalReads, model.RegressionMultiMetric,
	} {
		for _, s := range New().Suggest(baseEvent(typ), nil) {
			require.Equal(t, model.SafetyForType(s.Type), s.Safety)
		}
	}
}

func TestSuggestIncludesSampleText(t *testing.T) {
	fp := &model.Fingerprint{SampleText: "SELECT * FROM orders"}
	sugg := New().Suggest(baseEvent(model.RegressionDuration), fp)
	require.Contains(t, sugg[2].Description, "SELECT * FROM orders")
}

func TestSuggestUnknownType(t *testing.T) {
	require.Nil(t, New().Suggest(baseEvent("mystery"), nil))
}
