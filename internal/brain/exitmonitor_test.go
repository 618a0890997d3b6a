package brain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monitorWithPosition(t *testing.T, entryPrice, lastPrice float64, maxHold uint64) (*ExitMonitor, *PositionBook, *FeatureCache) {
	t.Helper()
	book := NewPositionBook()
	cache := NewFeatureCache(nil)
	book.Open(&Position{
		Mint:        "mint1",
		EntryTime:   time.Now(),
		EntryPrice:  entryPrice,
		SizeSol:     1.0,
		MaxHoldSecs: maxHold,
		LastPrice:   lastPrice,
		LastUpdate:  time.Now(),
	})
	return NewExitMonitor(DefaultExitMonitorConfig(), book, cache), book, cache
}

func setPrice(cache *FeatureCache, mint string, price, vol5s float64) {
	cache.SetMint(mint, &MintFeatures{
		CurrentPrice: price,
		Vol5sSol:     vol5s,
		LastUpdate:   time.Now().Unix(),
	})
}

func TestNoExitWhenFlat(t *testing.T) {
	m, _, cache := monitorWithPosition(t, 0.001, 0.001, 300)
	setPrice(cache, "mint1", 0.001, 5.0)
	assert.Empty(t, m.Evaluate())
}

func TestStopLossFullExit(t *testing.T) {
	m, _, cache := monitorWithPosition(t, 0.001, 0.001, 300)
	setPrice(cache, "mint1", 0.0008, 5.0) // −20%

	reqs := m.Evaluate()
	require.Len(t, reqs, 1)
	assert.Equal(t, ExitStopLoss, reqs[0].Reason)
	assert.Equal(t, 100.0, reqs[0].ExitPct)
	assert.GreaterOrEqual(t, reqs[0].SlippageBps, uint16(300))
}

func TestStagedProfitTargets(t *testing.T) {
	m, book, cache := monitorWithPosition(t, 0.001, 0.001, 300)

	// +35%: stage 0 fires, sell 50%.
	setPrice(cache, "mint1", 0.00135, 5.0)
	reqs := m.Evaluate()
	require.Len(t, reqs, 1)
	assert.Equal(t, ExitProfitTarget, reqs[0].Reason)
	assert.Equal(t, 50.0, reqs[0].ExitPct)
	assert.Equal(t, 0, reqs[0].Stage)
	book.ReducePosition("mint1", reqs[0].ExitPct, reqs[0].Stage)

	// Same gain again: stage 0 already fired, nothing new.
	assert.Empty(t, m.Evaluate())

	// +70%: stage 1 fires, sell 30 of the remaining 50.
	setPrice(cache, "mint1", 0.0017, 5.0)
	reqs = m.Evaluate()
	require.Len(t, reqs, 1)
	assert.Equal(t, 1, reqs[0].Stage)
	assert.Equal(t, 30.0, reqs[0].ExitPct)
	book.ReducePosition("mint1", reqs[0].ExitPct, reqs[0].Stage)

	// +120%: final stage takes whatever is left.
	setPrice(cache, "mint1", 0.0022, 5.0)
	reqs = m.Evaluate()
	require.Len(t, reqs, 1)
	assert.Equal(t, 2, reqs[0].Stage)
	assert.InDelta(t, 20.0, reqs[0].ExitPct, 0.001)
}

func TestTimeDecayFullExit(t *testing.T) {
	m, book, cache := monitorWithPosition(t, 0.001, 0.001, 1)
	setPrice(cache, "mint1", 0.001, 5.0)

	// Backdate the entry beyond max hold.
	book.mu.Lock()
	book.positions["mint1"].EntryTime = time.Now().Add(-5 * time.Second)
	book.mu.Unlock()

	reqs := m.Evaluate()
	require.Len(t, reqs, 1)
	assert.Equal(t, ExitTimeDecay, reqs[0].Reason)
	assert.Equal(t, 100.0, reqs[0].ExitPct)
}

func TestExtendHoldDefersTimeDecay(t *testing.T) {
	m, book, cache := monitorWithPosition(t, 0.001, 0.001, 10)
	setPrice(cache, "mint1", 0.001, 5.0)

	book.mu.Lock()
	book.positions["mint1"].EntryTime = time.Now().Add(-12 * time.Second)
	book.positions["mint1"].ExtendedHoldSecs = 30
	book.mu.Unlock()

	assert.Empty(t, m.Evaluate(), "extended hold keeps the position open")
}

func TestVolumeDropNeedsSustainedTicks(t *testing.T) {
	m, _, cache := monitorWithPosition(t, 0.001, 0.001, 300)
	setPrice(cache, "mint1", 0.001, 0.1) // dead tape

	assert.Empty(t, m.Evaluate())
	assert.Empty(t, m.Evaluate())

	reqs := m.Evaluate() // third consecutive low-volume tick
	require.Len(t, reqs, 1)
	assert.Equal(t, ExitVolumeDrop, reqs[0].Reason)
	assert.Equal(t, 50.0, reqs[0].ExitPct)
}

func TestVolumeRecoveryResetsTicks(t *testing.T) {
	m, _, cache := monitorWithPosition(t, 0.001, 0.001, 300)

	setPrice(cache, "mint1", 0.001, 0.1)
	assert.Empty(t, m.Evaluate())
	assert.Empty(t, m.Evaluate())

	// Volume comes back; the counter resets.
	setPrice(cache, "mint1", 0.001, 5.0)
	assert.Empty(t, m.Evaluate())

	setPrice(cache, "mint1", 0.001, 0.1)
	assert.Empty(t, m.Evaluate())
	assert.Empty(t, m.Evaluate())
	assert.Len(t, m.Evaluate(), 1)
}

func TestEmergencyExitBeatsEverything(t *testing.T) {
	m, book, cache := monitorWithPosition(t, 0.001, 0.001, 300)
	setPrice(cache, "mint1", 0.002, 5.0) // +100%, would be profit staged

	book.ApplyAdvisory("mint1", func(p *Position) { p.EmergencyExit = true })

	reqs := m.Evaluate()
	require.Len(t, reqs, 1)
	assert.Equal(t, ExitEmergency, reqs[0].Reason)
	assert.Equal(t, 100.0, reqs[0].ExitPct)
}

func TestWidenedSlippageApplied(t *testing.T) {
	m, book, cache := monitorWithPosition(t, 0.001, 0.001, 300)
	setPrice(cache, "mint1", 0.0008, 5.0)

	book.ApplyAdvisory("mint1", func(p *Position) {
		p.WidenedSlipBps = 2500
		p.WidenedUntil = time.Now().Add(time.Minute)
	})

	reqs := m.Evaluate()
	require.Len(t, reqs, 1)
	assert.EqualValues(t, 2500, reqs[0].SlippageBps)
}
