package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerPriceChange(t *testing.T) {
	w := &mintWindow{}
	now := int64(1_000_000)

	w.events = append(w.events, trackedTrade{timestampMs: now, price: 0.001, amountSol: 1, trader: "t1"})
	w.events = append(w.events, trackedTrade{timestampMs: now + 1000, price: 0.0011, amountSol: 1, trader: "t2"})
	w.lastPrice = 0.0011

	m := w.calculate("test", now+2000, 100.0)
	// 0.001 → 0.0011 is +10% = 1000 bps.
	assert.EqualValues(t, 1000, m.PriceChangeBps2s)
}

func TestTrackerUniqueBuyers(t *testing.T) {
	w := &mintWindow{}
	now := int64(1_000_000)

	for i, trader := range []string{"b1", "b1", "b2", "b3"} {
		w.events = append(w.events, trackedTrade{
			timestampMs: now + int64(i)*100, price: 0.001, amountSol: 1, trader: trader,
		})
	}

	m := w.calculate("test", now+500, 100.0)
	assert.EqualValues(t, 3, m.UniqueBuyers1s)
}

func TestTrackerAlphaHits(t *testing.T) {
	w := &mintWindow{}
	now := int64(1_000_000)

	w.events = append(w.events, trackedTrade{timestampMs: now, price: 1, trader: "a", isAlpha: true})
	w.events = append(w.events, trackedTrade{timestampMs: now + 100, price: 1, trader: "b", isAlpha: false})
	w.events = append(w.events, trackedTrade{timestampMs: now + 200, price: 1, trader: "c", isAlpha: true})

	m := w.calculate("test", now+300, 100.0)
	assert.EqualValues(t, 2, m.AlphaWalletHits10s)
}

func TestTrackerMCVelocity(t *testing.T) {
	w := &mintWindow{}
	now := int64(1_000_000)

	// MC 5,000 SOL 30s ago, 40,000 SOL now → +35,000 over 30s = 70,000 SOL/min.
	w.mcHistory = append(w.mcHistory, mcSample{timestampMs: now - 31_000, mcSol: 5_000})

	v, ok := w.velocity(now, 40_000)
	assert.True(t, ok)
	assert.InDelta(t, 70_000, v, 0.1)
}

func TestTrackerVelocityNoHistory(t *testing.T) {
	w := &mintWindow{}
	_, ok := w.velocity(1_000_000, 40_000)
	assert.False(t, ok)
}

func TestTrackerThrottle(t *testing.T) {
	tr := NewLiveTracker(500, 3)
	nowMs := time.Now().UnixMilli()

	tr.AddTrade("mint1", nowMs, 1.0, 0.001, "t1", false)
	tr.AddTrade("mint1", nowMs, 1.0, 0.001, "t2", false)

	// Only two trades in the 2s window → below activity threshold.
	assert.Nil(t, tr.MetricsIfReady("mint1", 100.0))

	tr.AddTrade("mint1", nowMs, 1.0, 0.001, "t3", false)
	m := tr.MetricsIfReady("mint1", 100.0)
	assert.NotNil(t, m)

	// Immediately asking again is throttled.
	assert.Nil(t, tr.MetricsIfReady("mint1", 100.0))
}

func TestTrackerEventTrim(t *testing.T) {
	tr := NewLiveTracker(500, 1)
	base := int64(1_000_000)

	tr.AddTrade("mint1", base, 1.0, 0.001, "t1", false)
	tr.AddTrade("mint1", base+20_000, 1.0, 0.001, "t2", false)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	w := tr.windows["mint1"]
	// The first event is beyond the 10s horizon and must be gone.
	assert.Len(t, w.events, 1)
	assert.Equal(t, "t2", w.events[0].trader)
}

func TestTrackerSweepIdle(t *testing.T) {
	tr := NewLiveTracker(500, 1)
	old := time.Now().Add(-10 * time.Minute).UnixMilli()
	tr.AddTrade("stale", old, 1.0, 0.001, "t1", false)
	tr.AddTrade("fresh", time.Now().UnixMilli(), 1.0, 0.001, "t2", false)

	tr.SweepIdle(5 * time.Minute)
	assert.Equal(t, 1, tr.WindowCount())
}
