package writeguard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestGuard(cfg Config) (*Guard, *fakeClock) {
	g := New(cfg)
	fc := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	g.now = fc.Now
	g.lastRefill = fc.t
	return g, fc
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestSubmitAcceptsFirstWrite(t *testing.T) {
	g, _ := newTestGuard(Config{})
	d, err := g.Submit("ems_power_set", 500)
	require.NoError(t, err)
	require.Equal(t, DecisionOK, d)
}

func TestSubmitDedupsRepeatedValueWithinWindow(t *testing.T) {
	g, fc := newTestGuard(Config{DedupWindow: 30 * time.Second, PerRegisterMinInterval: time.Millisecond})
	_, err := g.Submit("ems_power_set", 500)
	require.NoError(t, err)

	fc.advance(time.Second)
	d, err := g.Submit("ems_power_set", 500)
	require.Error(t, err)
	require.Equal(t, DecisionDedup, d)

	got, ok := DecisionFromErr(err)
	require.True(t, ok)
	require.Equal(t, DecisionDedup, got)
}

func TestSubmitThrottlesPerRegisterInterval(t *testing.T) {
	g, fc := newTestGuard(Config{DedupWindow: time.Nanosecond, PerRegisterMinInterval: 250 * time.Millisecond})
	_, err := g.Submit("ems_power_set", 500)
	require.NoError(t, err)

	fc.advance(100 * time.Millisecond)
	d, err := g.Submit("ems_power_set", 600)
	require.Error(t, err)
	require.Equal(t, DecisionThrottlePerReg, d)

	fc.advance(200 * time.Millisecond)
	d, err = g.Submit("ems_power_set", 600)
	require.NoError(t, err)
	require.Equal(t, DecisionOK, d)
}

func TestSubmitWriteStormOfIdenticalValueThrottlesInsteadOfDeduping(t *testing.T) {
	// Ten writes of the same value to the same register, all inside the 0.25s per-reg interval: the first
	// is accepted, and every rejection must report throttle_per_reg, not dedup - dedup only applies to a
	// write that has already cleared both rate limits, which none of these do.
	g, fc := newTestGuard(Config{})
	decisions := make([]Decision, 0, 10)

	d, err := g.Submit("ems_power_set", 2600)
	require.NoError(t, err)
	decisions = append(decisions, d)

	for i := 0; i < 9; i++ {
		fc.advance(20 * time.Millisecond)
		d, err := g.Submit("ems_power_set", 2600)
		require.Error(t, err)
		decisions = append(decisions, d)
	}

	require.Equal(t, DecisionOK, decisions[0])
	for _, d := range decisions[1:] {
		require.NotEqual(t, DecisionDedup, d, "a write still inside the per-reg interval must never be misreported as dedup")
	}

	c := g.Counters()
	require.Equal(t, uint64(1), c.WritesOK)
	require.Equal(t, uint64(0), c.WritesDedup)
}

func TestSubmitThrottlesGlobalRate(t *testing.T) {
	g, fc := newTestGuard(Config{GlobalWritesPerSecond: 2, PerRegisterMinInterval: time.Nanosecond, DedupWindow: time.Nanosecond})

	regs := []string{"reg_a", "reg_b", "reg_c"}
	var lastDecision Decision
	var lastErr error
	for _, name := range regs {
		lastDecision, lastErr = g.Submit(name, 1)
	}

	require.Error(t, lastErr)
	require.Equal(t, DecisionThrottleGlobal, lastDecision)

	fc.advance(time.Second)
	d, err := g.Submit("reg_d", 1)
	require.NoError(t, err)
	require.Equal(t, DecisionOK, d)
}

func TestCountersTallyDecisions(t *testing.T) {
	g, fc := newTestGuard(Config{DedupWindow: 30 * time.Second, PerRegisterMinInterval: time.Millisecond})
	_, _ = g.Submit("ems_power_set", 500)
	fc.advance(time.Second)
	_, _ = g.Submit("ems_power_set", 500)

	c := g.Counters()
	require.Equal(t, uint64(1), c.WritesOK)
	require.Equal(t, uint64(1), c.WritesDedup)
}

func TestRecordErrorIncrementsCounter(t *testing.T) {
	g, _ := newTestGuard(Config{})
	g.RecordError()
	g.RecordError()
	require.Equal(t, uint64(2), g.Counters().WritesError)
}
