package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/model"
)

// memChannel records deliveries and can be told to fail.
type memChannel struct {
	name string
	fail bool

	mu   sync.Mutex
	sent []Message
}

func (m *memChannel) Name() string { return m.name }

func (m *memChannel) Send(_ context.Context, msg Message) error {
	if m.fail {
		return errors.New("delivery refused")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *memChannel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newTestGateway(channels ...Channel) (*Gateway, *time.Time) {
	reg := NewRegistry()
	for _, c := range channels {
		reg.Register(c)
	}
	cfg := config.AlertsConfig{CooldownMinutes: 15, MaxAlertsPerHour: 10}
	g := NewGateway(cfg, reg, zap.NewNop())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

func regressionMsg(fpID int64, typ model.RegressionType, sev model.Severity) Message {
	return EventMessage(model.RegressionEvent{
		ID: "ev", FingerprintID: fpID, Instance: "prod-sql-01", Database: "orders",
		Type: typ, MetricName: "p95_duration_us",
		BaselineValue: 1000, CurrentValue: 2000, ChangePercent: 100, Severity: sev,
	}, nil)
}

func TestGatewayCooldownSuppressesRepeat(t *testing.T) {
	ch := &memChannel{name: "mem"}
	g, now := newTestGateway(ch)
	ctx := context.Background()

	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityMedium))
	require.Equal(t, 1, ch.count())

	// Same key five minutes later: suppressed.
	*now = now.Add(5 * time.Minute)
	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityMedium))
	require.Equal(t, 1, ch.count())
	suppressed, _ := g.Counters()
	require.EqualValues(t, 1, suppressed)

	// Past the cooldown it flows again.
	*now = now.Add(11 * time.Minute)
	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityMedium))
	require.Equal(t, 2, ch.count())
}

func TestGatewayCooldownKeyScope(t *testing.T) {
	ch := &memChannel{name: "mem"}
	g, _ := newTestGateway(ch)
	ctx := context.Background()

	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityMedium))
	// Different type and different fingerprint are distinct keys.
	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionCPU, model.SeverityMedium))
	g.DispatchEvent(ctx, regressionMsg(2, model.RegressionDuration, model.SeverityMedium))
	require.Equal(t, 3, ch.count())
}

func TestGatewaySeverityIncreaseOverridesCooldown(t *testing.T) {
	ch := &memChannel{name: "mem"}
	g, now := newTestGateway(ch)
	ctx := context.Background()

	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityLow))
	*now = now.Add(time.Minute)
	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityHigh))
	require.Equal(t, 2, ch.count())

	// Equal or lower severity stays suppressed.
	*now = now.Add(time.Minute)
	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityHigh))
	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityMedium))
	require.Equal(t, 2, ch.count())
}

func TestGatewayHourlyCap(t *testing.T) {
	ch := &memChannel{name: "mem"}
	g, now := newTestGateway(ch)
	ctx := context.Background()

	for i := int64(0); i < 12; i++ {
		g.DispatchEvent(ctx, regressionMsg(100+i, model.RegressionDuration, model.SeverityMedium))
	}
	require.Equal(t, 10, ch.count())
	_, rateLimited := g.Counters()
	require.EqualValues(t, 2, rateLimited)

	// Budget frees up as sends age past an hour.
	*now = now.Add(61 * time.Minute)
	g.DispatchEvent(ctx, regressionMsg(200, model.RegressionDuration, model.SeverityMedium))
	require.Equal(t, 11, ch.count())
}

func TestGatewayChannelFailureIsolated(t *testing.T) {
	bad := &memChannel{name: "bad", fail: true}
	good := &memChannel{name: "good"}
	g, _ := newTestGateway(bad, good)

	g.DispatchEvent(context.Background(), regressionMsg(1, model.RegressionDuration, model.SeverityMedium))
	require.Equal(t, 1, good.count())
}

func TestGatewayFailureCounterPerChannel(t *testing.T) {
	bad := &memChannel{name: "bad", fail: true}
	good := &memChannel{name: "good"}
	g, _ := newTestGateway(bad, good)
	ctx := context.Background()

	g.DispatchEvent(ctx, regressionMsg(1, model.RegressionDuration, model.SeverityMedium))
	g.DispatchEvent(ctx, regressionMsg(2, model.RegressionCPU, model.SeverityMedium))

	failures := g.Failures()
	require.EqualValues(t, 2, failures["bad"])
	require.Zero(t, failures["good"])
}

func TestGatewaySummaryBypassesControls(t *testing.T) {
	ch := &memChannel{name: "mem"}
	g, _ := newTestGateway(ch)
	sum := SummaryMessage(model.DailySummary{GeneratedAt: time.Now()})

	g.DispatchSummary(context.Background(), sum)
	g.DispatchSummary(context.Background(), sum)
	require.Equal(t, 2, ch.count())
	require.Equal(t, "summary", ch.sent[0].Kind)
}

func TestRegistryTest(t *testing.T) {
	good := &memChannel{name: "good"}
	bad := &memChannel{name: "bad", fail: true}
	reg := NewRegistry()
	reg.Register(good)
	reg.Register(bad)

	results := reg.Test(context.Background())
	require.NoError(t, results["good"])
	require.Error(t, results["bad"])
	require.Equal(t, 1, good.count())
	require.Equal(t, "test", good.sent[0].Kind)
}
