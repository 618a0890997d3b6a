package collector

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pump-pipeline/internal/storage"
)

func windowTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "w.db"), 50, 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InsertToken(&storage.Token{
		Mint: "mint1", Creator: "creator1", LaunchSlot: 1, LaunchTime: 1000,
	}))
	return db
}

func tradeEvent(sig string, blockTime int64, side string, trader string, tokens, sol float64) *Event {
	return &Event{
		Kind:        EventTrade,
		Signature:   sig,
		Slot:        1,
		BlockTime:   blockTime,
		Mint:        "mint1",
		Side:        side,
		Trader:      trader,
		TokenAmount: tokens,
		SolAmount:   sol,
		Price:       sol / tokens,
	}
}

func TestWindowAggregation(t *testing.T) {
	db := windowTestDB(t)
	agg := NewWindowAggregator(db, []int{10})

	agg.ApplyTrade(tradeEvent("s1", 1000, "buy", "t1", 100, 1.0))  // price 0.01
	agg.ApplyTrade(tradeEvent("s2", 1003, "buy", "t2", 100, 2.0))  // price 0.02
	agg.ApplyTrade(tradeEvent("s3", 1007, "sell", "t3", 100, 0.5)) // price 0.005

	windows, err := db.RecentWindows("mint1", 0)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	w := windows[0]
	assert.EqualValues(t, 1000, w.StartTime)
	assert.InDelta(t, 0.01, w.Open, 1e-9)
	assert.InDelta(t, 0.02, w.High, 1e-9)
	assert.InDelta(t, 0.005, w.Low, 1e-9)
	assert.InDelta(t, 0.005, w.Close, 1e-9)
	assert.Equal(t, 2, w.BuyCount)
	assert.Equal(t, 1, w.SellCount)
	assert.Equal(t, 2, w.UniqBuyers)
	assert.InDelta(t, 300, w.VolTokens, 1e-9)
	assert.InDelta(t, 3.5, w.VolSol, 1e-9)
	// VWAP = (0.01·100 + 0.02·100 + 0.005·100) / 300.
	assert.InDelta(t, 3.5/300, w.VWAP, 1e-9)
}

func TestWindowAggregationIdempotent(t *testing.T) {
	db := windowTestDB(t)
	agg := NewWindowAggregator(db, []int{10})

	ev := tradeEvent("dup", 1000, "buy", "t1", 100, 1.0)
	agg.ApplyTrade(ev)

	before, err := db.RecentWindows("mint1", 0)
	require.NoError(t, err)
	require.Len(t, before, 1)

	// Reprocessing the same signature must change nothing.
	agg.ApplyTrade(ev)

	after, err := db.RecentWindows("mint1", 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0], after[0])
}

func TestWindowRollover(t *testing.T) {
	db := windowTestDB(t)
	agg := NewWindowAggregator(db, []int{10})

	agg.ApplyTrade(tradeEvent("s1", 1000, "buy", "t1", 100, 1.0))
	agg.ApplyTrade(tradeEvent("s2", 1015, "buy", "t2", 100, 1.5)) // next window

	windows, err := db.RecentWindows("mint1", 0)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.EqualValues(t, 1000, windows[0].StartTime)
	assert.EqualValues(t, 1010, windows[1].StartTime)
}

func TestHolderShares(t *testing.T) {
	trades := []*storage.Trade{
		{Side: "buy", Trader: "a", SolAmount: 50},
		{Side: "buy", Trader: "b", SolAmount: 30},
		{Side: "buy", Trader: "c", SolAmount: 10},
		{Side: "buy", Trader: "d", SolAmount: 5},
		{Side: "buy", Trader: "e", SolAmount: 5},
		{Side: "sell", Trader: "f", SolAmount: 100},
	}
	top1, top3, top5 := holderShares(trades)
	assert.InDelta(t, 0.5, top1, 1e-9)
	assert.InDelta(t, 0.9, top3, 1e-9)
	assert.InDelta(t, 1.0, top5, 1e-9)
}

func TestHolderSharesFewBuyers(t *testing.T) {
	trades := []*storage.Trade{
		{Side: "buy", Trader: "a", SolAmount: 60},
		{Side: "buy", Trader: "b", SolAmount: 40},
	}
	top1, top3, top5 := holderShares(trades)
	assert.InDelta(t, 0.6, top1, 1e-9)
	assert.InDelta(t, 1.0, top3, 1e-9)
	assert.InDelta(t, 1.0, top5, 1e-9)
}

func TestRealizedVolatility(t *testing.T) {
	flat := []*storage.Trade{
		{Price: 1.0}, {Price: 1.0}, {Price: 1.0},
	}
	assert.Equal(t, 0.0, realizedVolatility(flat))

	moving := []*storage.Trade{
		{Price: 1.0}, {Price: 1.1}, {Price: 0.9}, {Price: 1.2},
	}
	assert.Greater(t, realizedVolatility(moving), 0.0)
}
