package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/schedule"
)

// cycleSummary is one compact line in the rolling cycle log, enough for
// a shell widget or a quick tail without opening the database.
type cycleSummary struct {
	Timestamp      time.Time `json:"ts"`
	Kind           string    `json:"kind"` // collect | analyze | baseline | summary
	TargetsOK      int       `json:"targets_ok,omitempty"`
	TargetsFailed  int       `json:"targets_failed,omitempty"`
	SamplesWritten int       `json:"samples,omitempty"`
	EventsCreated  int       `json:"events_created,omitempty"`
	EventsUpdated  int       `json:"events_updated,omitempty"`
	Hotspots       int       `json:"hotspots,omitempty"`
	BaselinesBuilt int       `json:"baselines,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

// RunDaemon runs the monitoring loop until SIGINT/SIGTERM or a fatal
// scheduler error.
func (e *Engine) RunDaemon(ctx context.Context) error {
	if err := os.MkdirAll(e.cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath := filepath.Join(e.cfg.DataDir, "daemon.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if e.cfg.Metrics.Enabled {
		go ServeMetrics(ctx, e.cfg.Metrics.Addr, e.promReg, e.log)
	}

	summaryPath := filepath.Join(e.cfg.DataDir, "cycles.jsonl")
	sched := schedule.New(e.cfg.Scheduler, e.log)

	sched.AddInterval("collect", e.cfg.Scheduler.CollectionInterval, func(ctx context.Context) error {
		sum, err := e.CollectOnce(ctx, "")
		if err != nil {
			return err
		}
		e.writeCycleLine(summaryPath, cycleSummary{
			Timestamp:      sum.StartedAt,
			Kind:           "collect",
			TargetsOK:      sum.TargetsOK,
			TargetsFailed:  sum.TargetsFailed,
			SamplesWritten: sum.SamplesWritten,
			DurationMs:     sum.Duration.Milliseconds(),
		})
		if sum.AllFailed() {
			return fmt.Errorf("all %d targets failed", sum.TargetsFailed)
		}
		return nil
	})

	sched.AddInterval("analyze", e.cfg.Scheduler.AnalysisInterval, func(ctx context.Context) error {
		sum, err := e.AnalyzeOnce(ctx, "")
		if err != nil {
			return err
		}
		e.writeCycleLine(summaryPath, cycleSummary{
			Timestamp:     sum.StartedAt,
			Kind:          "analyze",
			TargetsOK:     sum.TargetsOK,
			TargetsFailed: sum.TargetsFailed,
			EventsCreated: sum.EventsCreated,
			EventsUpdated: sum.EventsUpdated,
			Hotspots:      len(sum.Hotspots),
			DurationMs:    sum.Duration.Milliseconds(),
		})
		return nil
	})

	if err := sched.AddDaily("baseline-rebuild", e.cfg.Scheduler.BaselineRebuildTime, func(ctx context.Context) error {
		started := time.Now()
		n, err := e.RebuildBaselines(ctx)
		if err != nil {
			return err
		}
		e.writeCycleLine(summaryPath, cycleSummary{
			Timestamp:      started.UTC(),
			Kind:           "baseline",
			BaselinesBuilt: n,
			DurationMs:     time.Since(started).Milliseconds(),
		})
		return nil
	}); err != nil {
		return err
	}

	if err := sched.AddDaily("daily-summary", e.cfg.Scheduler.DailySummaryTime, func(ctx context.Context) error {
		started := time.Now()
		if _, err := e.DailySummary(ctx); err != nil {
			return err
		}
		e.writeCycleLine(summaryPath, cycleSummary{
			Timestamp:  started.UTC(),
			Kind:       "summary",
			DurationMs: time.Since(started).Milliseconds(),
		})
		return nil
	}); err != nil {
		return err
	}

	e.log.Info("daemon started",
		zap.Int("pid", os.Getpid()),
		zap.Duration("collection_interval", e.cfg.Scheduler.CollectionInterval),
		zap.Duration("analysis_interval", e.cfg.Scheduler.AnalysisInterval),
		zap.String("data_dir", e.cfg.DataDir),
		zap.Int("targets", len(e.cfg.Targets())))

	err := sched.Run(ctx)
	if ctx.Err() != nil {
		e.log.Info("daemon shutting down")
		return nil
	}
	return err
}

// writeCycleLine appends a compact JSON line to the cycle log. Rotates
// at 10MB.
func (e *Engine) writeCycleLine(path string, s cycleSummary) {
	if info, err := os.Stat(path); err == nil && info.Size() > 10*1024*1024 {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		e.log.Warn("cycle log open failed", zap.Error(err))
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(s); err != nil {
		e.log.Warn("cycle log write failed", zap.Error(err))
	}
}

// Export writes recent events and audit records as indented JSON, the
// operator-facing snapshot for incident review.
func (e *Engine) Export(ctx context.Context, w *os.File, window time.Duration) error {
	now := time.Now().UTC()
	events, err := e.db.Events.Summary(ctx, now.Add(-window), now)
	if err != nil {
		return err
	}
	audits, err := e.db.Audit.Recent(ctx, 100)
	if err != nil {
		return err
	}
	out := struct {
		GeneratedAt time.Time                `json:"generated_at"`
		Events      model.EventSummary       `json:"events"`
		Audit       []model.RemediationAudit `json:"remediation_audit"`
	}{now, events, audits}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
