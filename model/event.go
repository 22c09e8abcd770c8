package model

import (
	"fmt"
	"time"
)

// RegressionType classifies which metric family regressed.
type RegressionType string

const (
	RegressionDuration     RegressionType = "duration"
	RegressionCPU          RegressionType = "cpu"
	RegressionLogicalReads RegressionType = "logical_reads"
	RegressionPlanChange   RegressionType = "plan_change"
	RegressionMultiMetric  RegressionType = "multi_metric"
)

// Severity orders regression events by urgency.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// EventStatus is the lifecycle state of a regression event.
type EventStatus string

const (
	StatusNew          EventStatus = "new"
	StatusAcknowledged EventStatus = "acknowledged"
	StatusResolved     EventStatus = "resolved"
	StatusDismissed    EventStatus = "dismissed"
)

// validTransitions encodes the event state machine. resolved and
// dismissed are terminal.
var validTransitions = map[EventStatus][]EventStatus{
	StatusNew:          {StatusAcknowledged, StatusResolved, StatusDismissed},
	StatusAcknowledged: {StatusResolved},
}

// ValidateTransition returns an error for any transition the state
// machine does not allow. Enforced at the repo boundary.
func ValidateTransition(from, to EventStatus) error {
	for _, t := range validTransitions[from] {
		if t == to {
			return nil
		}
	}
	return fmt.Errorf("invalid event transition %s -> %s", from, to)
}

// RegressionEvent records one detected regression for a fingerprint on a
// target. Events are deduplicated while an event of the same type is
// still open (new or acknowledged) for the fingerprint.
type RegressionEvent struct {
	ID              string         `db:"id"`
	FingerprintID   int64          `db:"fingerprint_id"`
	Instance        string         `db:"instance"`
	Database        string         `db:"database"`
	DetectedAt      time.Time      `db:"detected_at"`
	Type            RegressionType `db:"type"`
	MetricName      string         `db:"metric_name"`
	BaselineValue   float64        `db:"baseline_value"`
	CurrentValue    float64        `db:"current_value"`
	ChangePercent   float64        `db:"change_percent"`
	Severity        Severity       `db:"severity"`
	IsPlanChange    bool           `db:"is_plan_change"`
	BaselinePlanHash string        `db:"baseline_plan_hash"`
	CurrentPlanHash string         `db:"current_plan_hash"`
	Status          EventStatus    `db:"status"`
	AcknowledgedBy  string         `db:"acknowledged_by"`
	AcknowledgedAt  *time.Time     `db:"acknowledged_at"`
	ResolvedBy      string         `db:"resolved_by"`
	ResolvedAt      *time.Time     `db:"resolved_at"`
	Notes           string         `db:"notes"`
}

// Open reports whether the event still blocks creation of a duplicate.
func (e RegressionEvent) Open() bool {
	return e.Status == StatusNew || e.Status == StatusAcknowledged
}

// Hotspot is a query currently consuming a disproportionate share of one
// resource metric within the recent window.
type Hotspot struct {
	FingerprintID     int64     `json:"fingerprint_id"`
	Instance          string    `json:"instance"`
	Database          string    `json:"database"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	Rank              int       `json:"rank"`
	MetricType        string    `json:"metric_type"`
	TotalMetricValue  float64   `json:"total_metric_value"`
	AvgMetricValue    float64   `json:"avg_metric_value"`
	ExecCount         int64     `json:"exec_count"`
	PercentageOfTotal float64   `json:"percentage_of_total"`
}

// EventSummary aggregates event activity over a window for the daily
// summary report.
type EventSummary struct {
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	NewCount    int64            `json:"new_count"`
	ResolvedCount int64          `json:"resolved_count"`
	DismissedCount int64         `json:"dismissed_count"`
	BySeverity  map[string]int64 `json:"by_severity"`
	ByType      map[string]int64 `json:"by_type"`
}
