package brain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	tr := NewTradeStateTracker(10*time.Second, 15*time.Second)
	mint, tradeID := "mint123", "trade456"

	assert.True(t, tr.CanBuy(mint))
	assert.False(t, tr.CanSell(mint))

	require.True(t, tr.MarkBuyPending(mint, tradeID))
	assert.False(t, tr.CanBuy(mint))
	assert.False(t, tr.CanSell(mint))

	require.True(t, tr.MarkHolding(mint, tradeID, 0.001))
	assert.False(t, tr.CanBuy(mint))
	assert.True(t, tr.CanSell(mint))

	require.True(t, tr.MarkSellPending(mint, tradeID))
	assert.False(t, tr.CanBuy(mint))
	assert.False(t, tr.CanSell(mint))

	tr.MarkClosed(mint, tradeID, CloseConfirmed)
	assert.False(t, tr.CanBuy(mint), "Closed still blocks a new BUY until GC")
}

func TestInvalidTransitionsRefused(t *testing.T) {
	tr := NewTradeStateTracker(10*time.Second, 15*time.Second)

	// Holding without BuyPending.
	assert.False(t, tr.MarkHolding("m1", "t1", 0.001))

	// SellPending without Holding.
	assert.False(t, tr.MarkSellPending("m1", "t1"))

	// Double BUY.
	require.True(t, tr.MarkBuyPending("m1", "t1"))
	assert.False(t, tr.MarkBuyPending("m1", "t2"))
}

func TestTradeIDMismatchRefused(t *testing.T) {
	tr := NewTradeStateTracker(10*time.Second, 15*time.Second)

	require.True(t, tr.MarkBuyPending("m1", "expected"))
	assert.False(t, tr.MarkHolding("m1", "different", 0.001))
	// Still BuyPending with the original id.
	assert.Equal(t, StateBuyPending, tr.State("m1").Kind)
}

func TestTimeoutSweep(t *testing.T) {
	tr := NewTradeStateTracker(time.Millisecond, time.Millisecond)

	require.True(t, tr.MarkBuyPending("m1", "t1"))
	time.Sleep(10 * time.Millisecond)

	expired := tr.CheckTimeouts()
	assert.Equal(t, 1, expired)

	s := tr.State("m1")
	assert.Equal(t, StateClosed, s.Kind)
	assert.Equal(t, CloseTimeout, s.CloseReason)
}

func TestStalePendingAndReconcile(t *testing.T) {
	tr := NewTradeStateTracker(time.Hour, time.Hour)

	require.True(t, tr.MarkBuyPending("m1", "t1"))
	assert.Empty(t, tr.StalePending(time.Minute))

	stale := tr.StalePending(0)
	require.Len(t, stale, 1)
	assert.Equal(t, "m1", stale[0].Mint)

	// Confirmed on-chain: pending BUY becomes Holding.
	tr.ReconcileState("m1", "t1", true)
	assert.Equal(t, StateHolding, tr.State("m1").Kind)

	// Not found on-chain: pending SELL closes failed.
	require.True(t, tr.MarkSellPending("m1", "t2"))
	tr.ReconcileState("m1", "t2", false)
	s := tr.State("m1")
	assert.Equal(t, StateClosed, s.Kind)
	assert.Equal(t, CloseFailed, s.CloseReason)
}

func TestClosedCleanup(t *testing.T) {
	tr := NewTradeStateTracker(time.Hour, time.Hour)

	tr.MarkClosed("m1", "t1", CloseConfirmed)

	// Too fresh to collect.
	assert.Equal(t, 0, tr.CleanupClosed())

	// Backdate and collect.
	tr.mu.Lock()
	tr.states["m1"].ChangedAt = time.Now().Add(-10 * time.Minute)
	tr.mu.Unlock()
	assert.Equal(t, 1, tr.CleanupClosed())

	// Mint is Idle again: a fresh BUY may proceed.
	assert.True(t, tr.CanBuy("m1"))
}

func TestStats(t *testing.T) {
	tr := NewTradeStateTracker(time.Hour, time.Hour)

	tr.MarkBuyPending("m1", "t1")
	tr.MarkBuyPending("m2", "t2")
	tr.MarkHolding("m2", "t2", 0.001)
	tr.MarkClosed("m3", "t3", CloseFailed)

	buyPending, holding, sellPending, closed := tr.Stats()
	assert.Equal(t, 1, buyPending)
	assert.Equal(t, 1, holding)
	assert.Equal(t, 0, sellPending)
	assert.Equal(t, 1, closed)
}
