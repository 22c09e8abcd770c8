// Package store persists fingerprints, snapshots, samples, baselines,
// events, and the remediation audit trail in an embedded sqlite
// database under the data directory.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS fingerprints (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    hash            TEXT NOT NULL UNIQUE,
    instance        TEXT NOT NULL,
    "database"      TEXT NOT NULL,
    normalized_text TEXT NOT NULL,
    sample_text     TEXT NOT NULL,
    first_seen      TIMESTAMP NOT NULL,
    last_seen       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    instance             TEXT NOT NULL,
    "database"           TEXT NOT NULL,
    fingerprint_id       INTEGER NOT NULL,
    plan_hash            TEXT NOT NULL DEFAULT '',
    snapshot_time        TIMESTAMP NOT NULL,
    exec_count           INTEGER NOT NULL,
    total_cpu_us         INTEGER NOT NULL,
    total_duration_us    INTEGER NOT NULL,
    total_logical_reads  INTEGER NOT NULL,
    total_logical_writes INTEGER NOT NULL,
    total_physical_reads INTEGER NOT NULL,
    PRIMARY KEY (instance, "database", fingerprint_id, plan_hash)
);

CREATE TABLE IF NOT EXISTS samples (
    id                      TEXT PRIMARY KEY,
    fingerprint_id          INTEGER NOT NULL,
    instance                TEXT NOT NULL,
    "database"              TEXT NOT NULL,
    sampled_at              TIMESTAMP NOT NULL,
    plan_hash               TEXT NOT NULL DEFAULT '',
    exec_count_delta        INTEGER NOT NULL,
    total_cpu_us_delta      INTEGER NOT NULL,
    avg_cpu_us              REAL NOT NULL,
    min_cpu_us              REAL NOT NULL,
    max_cpu_us              REAL NOT NULL,
    total_duration_us_delta INTEGER NOT NULL,
    avg_duration_us         REAL NOT NULL,
    min_duration_us         REAL NOT NULL,
    max_duration_us         REAL NOT NULL,
    avg_logical_reads       REAL NOT NULL,
    avg_logical_writes      REAL NOT NULL,
    avg_physical_reads      REAL NOT NULL,
    avg_memory_grant_kb     REAL NOT NULL DEFAULT 0,
    avg_spills              REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_samples_fp_time ON samples (fingerprint_id, sampled_at);
CREATE INDEX IF NOT EXISTS idx_samples_target_time ON samples (instance, "database", sampled_at);

CREATE TABLE IF NOT EXISTS baselines (
    id                  TEXT PRIMARY KEY,
    fingerprint_id      INTEGER NOT NULL,
    window_start        TIMESTAMP NOT NULL,
    window_end          TIMESTAMP NOT NULL,
    sample_count        INTEGER NOT NULL,
    total_executions    INTEGER NOT NULL,
    median_duration_us  REAL NOT NULL,
    p95_duration_us     REAL NOT NULL,
    p99_duration_us     REAL NOT NULL,
    median_cpu_us       REAL NOT NULL,
    p95_cpu_us          REAL NOT NULL,
    median_logical_reads REAL NOT NULL,
    p95_logical_reads   REAL NOT NULL,
    duration_stddev     REAL NOT NULL,
    typical_plan_hash   TEXT NOT NULL DEFAULT '',
    is_active           INTEGER NOT NULL,
    superseded_at       TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_baselines_active
    ON baselines (fingerprint_id) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS events (
    id                 TEXT PRIMARY KEY,
    fingerprint_id     INTEGER NOT NULL,
    instance           TEXT NOT NULL,
    "database"         TEXT NOT NULL,
    detected_at        TIMESTAMP NOT NULL,
    type               TEXT NOT NULL,
    metric_name        TEXT NOT NULL,
    baseline_value     REAL NOT NULL,
    current_value      REAL NOT NULL,
    change_percent     REAL NOT NULL,
    severity           INTEGER NOT NULL,
    is_plan_change     INTEGER NOT NULL,
    baseline_plan_hash TEXT NOT NULL DEFAULT '',
    current_plan_hash  TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL,
    acknowledged_by    TEXT NOT NULL DEFAULT '',
    acknowledged_at    TIMESTAMP,
    resolved_by        TEXT NOT NULL DEFAULT '',
    resolved_at        TIMESTAMP,
    notes              TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_fp_status ON events (fingerprint_id, status);

CREATE TABLE IF NOT EXISTS remediation_audit (
    id             TEXT PRIMARY KEY,
    timestamp      TIMESTAMP NOT NULL,
    instance       TEXT NOT NULL,
    "database"     TEXT NOT NULL,
    fingerprint_id INTEGER NOT NULL,
    type           TEXT NOT NULL,
    script         TEXT NOT NULL,
    is_dry_run     INTEGER NOT NULL,
    success        INTEGER NOT NULL,
    error          TEXT NOT NULL DEFAULT '',
    duration_ms    INTEGER NOT NULL,
    initiated_by   TEXT NOT NULL
);
`

// DB bundles the repositories over one sqlite handle.
type DB struct {
	db *sqlx.DB

	Fingerprints *FingerprintRepo
	Snapshots    *SnapshotStore
	Samples      *SampleStore
	Baselines    *BaselineRepo
	Events       *EventRepo
	Audit        *AuditRepo
}

// Open creates/opens the database file and applies the schema. The
// parent directory is created if missing.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc sqlite is single-writer; serialize access through one conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{
		db:           db,
		Fingerprints: &FingerprintRepo{db: db},
		Snapshots:    &SnapshotStore{db: db},
		Samples:      &SampleStore{db: db},
		Baselines:    &BaselineRepo{db: db},
		Events:       &EventRepo{db: db},
		Audit:        &AuditRepo{db: db},
	}, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}
