package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
)

// cooldownKey scopes suppression per channel, fingerprint, and event
// type; a CPU regression never silences a plan-change alert.
type cooldownKey struct {
	channel       string
	fingerprintID int64
	typ           model.RegressionType
}

type sentRecord struct {
	at       time.Time
	severity model.Severity
}

// Gateway dispatches messages through the registry with a per-key
// cooldown and a per-channel hourly cap. A severity increase overrides
// the cooldown but never the cap.
type Gateway struct {
	cfg      config.AlertsConfig
	registry *Registry
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[cooldownKey]sentRecord
	sentLog  map[string][]time.Time // channel -> send times within the hour
	failures map[string]int64       // channel -> delivery failures

	suppressed  int64
	rateLimited int64
}

func NewGateway(cfg config.AlertsConfig, registry *Registry, log *zap.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		registry: registry,
		log:      log.Named("alert"),
		now:      time.Now,
		lastSent: map[cooldownKey]sentRecord{},
		sentLog:  map[string][]time.Time{},
		failures: map[string]int64{},
	}
}

// Counters reports how many deliveries were suppressed by cooldown and
// dropped by the hourly cap since startup.
func (g *Gateway) Counters() (suppressed, rateLimited int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed, g.rateLimited
}

// Failures reports delivery failures per channel since startup.
func (g *Gateway) Failures() map[string]int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int64, len(g.failures))
	for name, n := range g.failures {
		out[name] = n
	}
	return out
}

// DispatchEvent routes a regression message to every channel, applying
// cooldown and cap per channel. A channel failure never blocks the
// others.
func (g *Gateway) DispatchEvent(ctx context.Context, msg Message) {
	if msg.Event == nil {
		return
	}
	for _, ch := range g.registry.Channels() {
		if !g.admit(ch.Name(), *msg.Event) {
			continue
		}
		g.send(ctx, ch, msg)
	}
}

// DispatchSummary routes the daily digest uncapped; it runs once a day
// by construction.
func (g *Gateway) DispatchSummary(ctx context.Context, msg Message) {
	for _, ch := range g.registry.Channels() {
		g.send(ctx, ch, msg)
	}
}

func (g *Gateway) send(ctx context.Context, ch Channel, msg Message) {
	if err := ch.Send(ctx, msg); err != nil {
		g.mu.Lock()
		g.failures[ch.Name()]++
		g.mu.Unlock()
		g.log.Warn("channel delivery failed",
			zap.String("channel", ch.Name()),
			zap.String("title", msg.Title),
			zap.Error(err))
		return
	}
	g.log.Debug("alert delivered", zap.String("channel", ch.Name()), zap.String("title", msg.Title))
}

// admit decides whether the event may go out on the channel now, and
// records the send if so.
func (g *Gateway) admit(channel string, ev model.RegressionEvent) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	key := cooldownKey{channel: channel, fingerprintID: ev.FingerprintID, typ: ev.Type}
	cooldown := time.Duration(g.cfg.CooldownMinutes) * time.Minute
	if rec, ok := g.lastSent[key]; ok && now.Sub(rec.at) < cooldown && ev.Severity <= rec.severity {
		g.suppressed++
		g.log.Debug("alert suppressed by cooldown",
			zap.String("channel", channel),
			zap.Int64("fingerprint_id", ev.FingerprintID),
			zap.String("type", string(ev.Type)))
		return false
	}

	// Hourly cap, evaluated after cooldown so suppressed alerts do not
	// consume budget.
	cutoff := now.Add(-time.Hour)
	recent := g.sentLog[channel][:0]
	for _, t := range g.sentLog[channel] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	g.sentLog[channel] = recent
	if len(recent) >= g.cfg.MaxAlertsPerHour {
		g.rateLimited++
		g.log.Warn("alert dropped by hourly cap",
			zap.String("channel", channel),
			zap.Int("cap", g.cfg.MaxAlertsPerHour))
		return false
	}

	g.lastSent[key] = sentRecord{at: now, severity: ev.Severity}
	g.sentLog[channel] = append(g.sentLog[channel], now)
	return true
}
