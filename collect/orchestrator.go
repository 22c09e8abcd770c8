package collect

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/fingerprint"
	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/source"
	"github.com/ftahirops/sqlsentinel/store"
)

// fingerprintCacheSize bounds the hash -> id cache. Workloads rarely
// carry more than a few thousand distinct shapes per cycle.
const fingerprintCacheSize = 8192

// Orchestrator runs one collection cycle: fetch counters per target,
// fingerprint, delta against stored snapshots, persist samples.
// Instances run in parallel; targets within an instance run serially to
// keep per-instance connection pressure flat.
type Orchestrator struct {
	cfg    config.CollectionConfig
	src    source.StatsSource
	db     *store.DB
	log    *zap.Logger
	fpCache *lru.Cache[uint64, int64]

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewOrchestrator wires a collection orchestrator over the given source
// and store.
func NewOrchestrator(cfg config.CollectionConfig, src source.StatsSource, db *store.DB, log *zap.Logger) *Orchestrator {
	cache, _ := lru.New[uint64, int64](fingerprintCacheSize)
	return &Orchestrator{
		cfg:      cfg,
		src:      src,
		db:       db,
		log:      log.Named("collect"),
		fpCache:  cache,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

// breaker returns the instance's circuit breaker, creating it on first
// use. Five consecutive failures open it for one minute.
func (o *Orchestrator) breaker(instance string) *gobreaker.CircuitBreaker {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cb, ok := o.breakers[instance]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    instance,
		Timeout: time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.log.Warn("instance breaker state change",
				zap.String("instance", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	o.breakers[instance] = cb
	return cb
}

// Run executes one collection cycle over the given targets.
func (o *Orchestrator) Run(ctx context.Context, targets []config.ResolvedTarget) model.CollectionRunSummary {
	started := time.Now()
	summary := model.CollectionRunSummary{StartedAt: started.UTC()}

	byInstance := map[string][]config.ResolvedTarget{}
	var order []string
	for _, rt := range targets {
		if _, seen := byInstance[rt.Target.Instance]; !seen {
			order = append(order, rt.Target.Instance)
		}
		byInstance[rt.Target.Instance] = append(byInstance[rt.Target.Instance], rt)
	}

	results := make([]model.InstanceCollectionResult, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for i, instance := range order {
		i, instance := i, instance
		g.Go(func() error {
			results[i] = o.collectInstance(gctx, instance, byInstance[instance])
			if results[i].ConnectError != "" && !o.cfg.ContinueOnInstanceError {
				return errors.New(results[i].ConnectError)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.log.Error("collection cycle aborted", zap.Error(err))
	}

	for _, res := range results {
		summary.Instances = append(summary.Instances, res)
		for _, tr := range res.Targets {
			if tr.Failed() {
				summary.TargetsFailed++
			} else {
				summary.TargetsOK++
				summary.SamplesWritten += tr.SamplesWritten
			}
		}
		if res.Skipped || res.ConnectError != "" {
			summary.TargetsFailed += len(byInstance[res.Instance]) - len(res.Targets)
		}
	}
	summary.Duration = time.Since(started)
	o.log.Info("collection cycle done",
		zap.Int("targets_ok", summary.TargetsOK),
		zap.Int("targets_failed", summary.TargetsFailed),
		zap.Int("samples", summary.SamplesWritten),
		zap.Duration("took", summary.Duration))
	return summary
}

// collectInstance runs the instance's targets serially behind its
// circuit breaker. An open breaker skips the whole instance for the
// cycle.
func (o *Orchestrator) collectInstance(ctx context.Context, instance string, targets []config.ResolvedTarget) model.InstanceCollectionResult {
	res := model.InstanceCollectionResult{Instance: instance}

	_, err := o.breaker(instance).Execute(func() (any, error) {
		var merr *multierror.Error
		var connErr *model.ConnectError
		for _, rt := range targets {
			tr := o.collectTarget(ctx, rt)
			res.Targets = append(res.Targets, tr)
			if !tr.Failed() {
				continue
			}
			merr = multierror.Append(merr, errors.New(tr.Err))
			if errors.As(lastErr(tr), &connErr) {
				// Connection-level failure: the rest of the
				// instance's databases will fail the same way.
				res.ConnectError = tr.Err
				return nil, merr.ErrorOrNil()
			}
			if !o.cfg.ContinueOnDatabaseError {
				return nil, merr.ErrorOrNil()
			}
		}
		return nil, merr.ErrorOrNil()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		res.Skipped = true
		o.log.Warn("instance skipped, breaker open", zap.String("instance", instance))
	}
	return res
}

// lastErr reconstructs the typed error for a failed target result. The
// result carries strings for serialization; the sentinel prefix check
// lives in collectTarget which sets ConnectFailed.
func lastErr(tr model.TargetResult) error {
	if tr.ConnectFailed {
		return &model.ConnectError{Instance: tr.Target.Instance, Err: errors.New(tr.Err)}
	}
	return errors.New(tr.Err)
}

// collectTarget fetches, fingerprints, and persists one target.
func (o *Orchestrator) collectTarget(ctx context.Context, rt config.ResolvedTarget) model.TargetResult {
	started := time.Now()
	tr := model.TargetResult{Target: rt.Target}
	log := o.log.With(zap.String("target", rt.Target.Key()))

	tctx, cancel := context.WithTimeout(ctx, rt.Settings.CollectionTimeout)
	defer cancel()

	rows, err := o.src.FetchTopByCost(tctx, rt.Target, rt.Settings.TopN, rt.Settings.Lookback, source.OrderBy(o.cfg.OrderBy))
	if err != nil {
		var ce *model.ConnectError
		tr.ConnectFailed = errors.As(err, &ce)
		tr.Err = err.Error()
		tr.Duration = time.Since(started)
		log.Warn("fetch failed", zap.Error(err))
		return tr
	}
	tr.RowsObserved = len(rows)
	now := time.Now().UTC()

	var samples []model.Sample
	var snaps []model.CumulativeSnapshot
	for _, row := range rows {
		if row.ExecCount < rt.Settings.MinimumExecutions {
			continue
		}
		fpID, isNew, err := o.resolveFingerprint(tctx, rt.Target, row.SQLText)
		if err != nil {
			tr.Err = err.Error()
			tr.Duration = time.Since(started)
			return tr
		}
		if isNew {
			tr.NewFingerprints++
		}

		prev, err := o.db.Snapshots.GetLast(tctx, rt.Target, fpID, row.PlanHash)
		if err != nil {
			tr.Err = err.Error()
			tr.Duration = time.Since(started)
			return tr
		}
		if prev != nil && row.ExecCount < prev.ExecCount {
			tr.Resets++
			log.Info("counter reset detected",
				zap.Int64("fingerprint_id", fpID),
				zap.String("plan_hash", row.PlanHash),
				zap.Int64("prev_exec_count", prev.ExecCount),
				zap.Int64("exec_count", row.ExecCount))
		}
		if s := ComputeSample(log, prev, row, rt.Target, fpID, now); s != nil {
			samples = append(samples, *s)
		}
		snaps = append(snaps, NextSnapshot(row, rt.Target, fpID, now))
	}

	// Samples land before snapshots advance. A crash between the two
	// double-counts one interval instead of silently dropping it.
	if err := o.db.Samples.Append(tctx, samples); err != nil {
		tr.Err = err.Error()
		tr.Duration = time.Since(started)
		return tr
	}
	for _, snap := range snaps {
		if err := o.db.Snapshots.Save(tctx, snap); err != nil {
			tr.Err = err.Error()
			tr.Duration = time.Since(started)
			return tr
		}
	}

	tr.SamplesWritten = len(samples)
	tr.Duration = time.Since(started)
	log.Debug("target collected",
		zap.Int("rows", tr.RowsObserved),
		zap.Int("samples", tr.SamplesWritten),
		zap.Int("new_fingerprints", tr.NewFingerprints))
	return tr
}

// resolveFingerprint maps SQL text to a stored fingerprint id, going
// through the LRU to spare the store a write for hot shapes. Cache hits
// defer the last_seen refresh to the next eviction; the granularity
// loss is bounded by the cache lifetime.
func (o *Orchestrator) resolveFingerprint(ctx context.Context, target model.Target, sqlText string) (int64, bool, error) {
	res := fingerprint.Compute(sqlText)
	if id, ok := o.fpCache.Get(res.Hash); ok {
		return id, false, nil
	}
	id, isNew, err := o.db.Fingerprints.Upsert(ctx, target.Instance, target.Database, res.Hash, res.SampleText, res.NormalizedText)
	if err != nil {
		return 0, false, err
	}
	o.fpCache.Add(res.Hash, id)
	return id, isNew, nil
}
