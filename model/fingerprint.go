package model

import (
	"fmt"
	"time"
)

// Fingerprint is the stable identity of a logically-equivalent query
// family. The 64-bit hash of the normalized text is the sole identity;
// normalized and sample texts are descriptive.
type Fingerprint struct {
	ID             int64     `db:"id" json:"id"`
	Hash           uint64    `db:"-" json:"hash"`
	Instance       string    `db:"instance" json:"instance"`
	Database       string    `db:"database" json:"database"`
	NormalizedText string    `db:"normalized_text" json:"normalized_text"`
	SampleText     string    `db:"sample_text" json:"sample_text"`
	FirstSeen      time.Time `db:"first_seen" json:"first_seen"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// HashString renders a 64-bit fingerprint hash as fixed-width hex, the
// form used for storage keys and log fields.
func HashString(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// PlanIdentity identifies the execution plan a sample was observed under.
// PlanHash is the engine's query_plan_hash in hex; empty means unknown.
type PlanIdentity struct {
	PlanHash     string `json:"plan_hash,omitempty"`
	VendorPlanID int64  `json:"vendor_plan_id,omitempty"`
	IsForced     bool   `json:"is_forced,omitempty"`
}
