package model

import "time"

// TargetResult is the per-target outcome of one collection cycle.
type TargetResult struct {
	Target       Target        `json:"target"`
	RowsObserved int           `json:"rows_observed"`
	SamplesWritten int         `json:"samples_written"`
	NewFingerprints int        `json:"new_fingerprints"`
	Resets       int           `json:"resets"`
	Duration     time.Duration `json:"duration"`
	Err          string        `json:"error,omitempty"`
	ConnectFailed bool         `json:"connect_failed,omitempty"`
}

// Failed reports whether the target's collection ended in error.
func (r TargetResult) Failed() bool { return r.Err != "" }

// InstanceCollectionResult groups target results under one instance.
type InstanceCollectionResult struct {
	Instance     string         `json:"instance"`
	Targets      []TargetResult `json:"targets"`
	ConnectError string         `json:"connect_error,omitempty"`
	Skipped      bool           `json:"skipped,omitempty"` // breaker open
}

// CollectionRunSummary is the outcome of one full collection cycle.
type CollectionRunSummary struct {
	StartedAt    time.Time                  `json:"started_at"`
	Duration     time.Duration              `json:"duration"`
	Instances    []InstanceCollectionResult `json:"instances"`
	TargetsOK    int                        `json:"targets_ok"`
	TargetsFailed int                       `json:"targets_failed"`
	SamplesWritten int                      `json:"samples_written"`
}

// Partial reports whether some but not all targets failed.
func (s CollectionRunSummary) Partial() bool {
	return s.TargetsFailed > 0 && s.TargetsOK > 0
}

// AllFailed reports whether nothing was collected.
func (s CollectionRunSummary) AllFailed() bool {
	return s.TargetsFailed > 0 && s.TargetsOK == 0
}

// AnalysisRunSummary is the outcome of one analysis cycle.
type AnalysisRunSummary struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	FingerprintsChecked int      `json:"fingerprints_checked"`
	EventsCreated  int           `json:"events_created"`
	EventsUpdated  int           `json:"events_updated"`
	Hotspots       []Hotspot     `json:"hotspots,omitempty"`
	TargetsFailed  int           `json:"targets_failed"`
	TargetsOK      int           `json:"targets_ok"`
}

// DailySummary is the once-a-day digest sent to alert channels.
type DailySummary struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Events      EventSummary `json:"events"`
	Hotspots    []Hotspot    `json:"hotspots,omitempty"`
	SamplesPurged int64      `json:"samples_purged"`
}
