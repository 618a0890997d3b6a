package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pump-pipeline/internal/udp"
)

func testWatchSig(side byte) *udp.WatchSigEnhanced {
	var sig [64]byte
	var mint [32]byte
	var tradeID [16]byte
	for i := range sig {
		sig[i] = 1
	}
	for i := range mint {
		mint[i] = 2
	}
	for i := range tradeID {
		tradeID[i] = 3
	}
	return udp.NewWatchSigEnhanced(sig, mint, tradeID, side, 1_000_000, 0.5, 150, 30, 1.00, -0.50)
}

func TestAddPositionBuyOnly(t *testing.T) {
	pt := NewPositionTracker()

	pt.AddPosition(testWatchSig(udp.SideSell))
	assert.Equal(t, 0, pt.Count(), "SELL registrations must not open positions")

	pt.AddPosition(testWatchSig(udp.SideBuy))
	assert.Equal(t, 1, pt.Count())
}

func TestUpdateSuppression(t *testing.T) {
	pt := NewPositionTracker()
	watch := testWatchSig(udp.SideBuy)
	pt.AddPosition(watch)

	// Tiny price move right after entry: suppressed (<5s, <5% P&L).
	update, advice := pt.UpdatePositionPrice(watch.Mint, 1_010_000, 150.0, 1, 0)
	assert.Nil(t, update)
	assert.Nil(t, advice)

	// Large move breaks through the suppression gate.
	update, _ = pt.UpdatePositionPrice(watch.Mint, 1_200_000, 150.0, 1, 0)
	require.NotNil(t, update)
	assert.InDelta(t, 20.0, float64(update.PnLPercent), 0.1)

	// Marker advanced: the same price again is suppressed.
	update, _ = pt.UpdatePositionPrice(watch.Mint, 1_200_000, 150.0, 1, 0)
	assert.Nil(t, update)
}

func TestProfitTargetAdvice(t *testing.T) {
	pt := NewPositionTracker()
	watch := testWatchSig(udp.SideBuy)
	pt.AddPosition(watch)

	// +50% on 0.5 SOL at $150/SOL ≈ +$37.5 >> $1 target.
	update, advice := pt.UpdatePositionPrice(watch.Mint, 1_500_000, 150.0, 2, 0)
	require.NotNil(t, update)
	assert.True(t, update.ProfitTargetHit())
	require.NotNil(t, advice)
	assert.EqualValues(t, udp.ReasonTargetHit, advice.Reason)
	assert.EqualValues(t, 95, advice.Confidence, "≥50%% P&L band carries confidence 95")
}

func TestStopLossAdvice(t *testing.T) {
	pt := NewPositionTracker()
	watch := testWatchSig(udp.SideBuy)
	pt.AddPosition(watch)

	update, advice := pt.UpdatePositionPrice(watch.Mint, 800_000, 150.0, 0, 1)
	require.NotNil(t, update)
	assert.True(t, update.StopLossHit())
	require.NotNil(t, advice)
	assert.EqualValues(t, udp.ReasonStopLoss, advice.Reason)
	assert.EqualValues(t, 100, advice.Confidence)
}

func TestConfidenceBands(t *testing.T) {
	pt := NewPositionTracker()
	watch := testWatchSig(udp.SideBuy)
	pt.AddPosition(watch)

	// +35% lands in the middle band.
	_, advice := pt.UpdatePositionPrice(watch.Mint, 1_350_000, 150.0, 1, 0)
	require.NotNil(t, advice)
	assert.EqualValues(t, 85, advice.Confidence)
}

func TestManualExit(t *testing.T) {
	pt := NewPositionTracker()
	watch := testWatchSig(udp.SideBuy)
	pt.AddPosition(watch)

	mintStr := watch.MintStr()
	require.True(t, pt.Has(mintStr))

	// Exit at 2x entry: +100%.
	notification := pt.CheckManualExit(mintStr, 2_000_000, 150.0)
	require.NotNil(t, notification)
	assert.InDelta(t, 100.0, float64(notification.PnLPercent), 0.01)

	// 0.5 SOL doubled = +0.5 SOL, minus 2×0.3% fees on 0.5 SOL.
	expectedSol := 0.5 - 0.5*0.003*2
	assert.InDelta(t, expectedSol*150.0, float64(notification.RealizedPnLUSD), 0.5)

	assert.False(t, pt.Has(mintStr), "manual exit must remove the position")
	assert.Nil(t, pt.CheckManualExit(mintStr, 2_000_000, 150.0))
}

func TestAllUpdatesSnapshot(t *testing.T) {
	pt := NewPositionTracker()
	watch := testWatchSig(udp.SideBuy)
	pt.AddPosition(watch)

	updates := pt.AllUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, watch.Mint, updates[0].Mint)
	assert.InDelta(t, 0.5, float64(updates[0].SizeSol), 0.001)
}

func TestNoMempoolActivityFlag(t *testing.T) {
	pt := NewPositionTracker()
	watch := testWatchSig(udp.SideBuy)
	pt.AddPosition(watch)

	// Backdate entry so the 15s age condition holds.
	pt.mu.Lock()
	pos := pt.positions[watch.MintStr()]
	pos.EntryTime = time.Now().Add(-20 * time.Second)
	pt.lastSent[watch.MintStr()] = sentMarker{at: time.Now().Add(-10 * time.Second)}
	pt.mu.Unlock()

	update, _ := pt.UpdatePositionPrice(watch.Mint, 1_000_000, 150.0, 0, 0)
	require.NotNil(t, update)
	assert.True(t, update.NoMempoolActivity())
}
