package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), 50, 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedToken(t *testing.T, db *DB, mint, creator string, launchTime int64) {
	t.Helper()
	require.NoError(t, db.InsertToken(&Token{
		Mint:       mint,
		Creator:    creator,
		Name:       "Test Token",
		Symbol:     "TT",
		Decimals:   6,
		LaunchSlot: 100,
		LaunchTime: launchTime,
	}))
}

func TestTokenInsertAndFetch(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", 1000)

	exists, err := db.TokenExists("mint1")
	require.NoError(t, err)
	assert.True(t, exists)

	tok, err := db.GetToken("mint1")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "creator1", tok.Creator)
	assert.False(t, tok.Migrated)

	// Replayed CREATE is a no-op.
	require.NoError(t, db.InsertToken(&Token{Mint: "mint1", Creator: "other", LaunchTime: 2000}))
	tok, err = db.GetToken("mint1")
	require.NoError(t, err)
	assert.Equal(t, "creator1", tok.Creator)
}

func TestMigration(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", 1000)

	require.NoError(t, db.MarkMigrated("mint1", "pool1", 2000))
	tok, err := db.GetToken("mint1")
	require.NoError(t, err)
	assert.True(t, tok.Migrated)
	assert.Equal(t, "pool1", tok.MigrationPool)
}

func TestTradeBufferFlush(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", 1000)

	now := time.Now().Unix()
	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertTrade(&Trade{
			Signature: "sig" + string(rune('a'+i)), Slot: int64(i), BlockTime: now,
			Mint: "mint1", Side: "buy", Trader: "trader1",
			TokenAmount: 100, SolAmount: 1.0, Price: 0.01,
		}))
	}
	require.NoError(t, db.FlushTrades())

	trades, err := db.RecentTradesForScoring("mint1", 60)
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func TestDuplicateSignatureIgnored(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", 1000)

	now := time.Now().Unix()
	tr := &Trade{Signature: "dup", Slot: 1, BlockTime: now, Mint: "mint1",
		Side: "buy", Trader: "t1", TokenAmount: 100, SolAmount: 1.0, Price: 0.01}
	require.NoError(t, db.InsertTrade(tr))
	require.NoError(t, db.FlushTrades())
	require.NoError(t, db.InsertTrade(tr))
	require.NoError(t, db.FlushTrades())

	trades, err := db.RecentTradesForScoring("mint1", 60)
	require.NoError(t, err)
	assert.Len(t, trades, 1, "duplicate signature must not double-count")
}

func TestTradeForUnknownMintRejected(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.InsertTrade(&Trade{
		Signature: "orphan", Slot: 1, BlockTime: time.Now().Unix(),
		Mint: "no-such-mint", Side: "buy", Trader: "t1",
		TokenAmount: 100, SolAmount: 1.0, Price: 0.01,
	}))
	assert.Error(t, db.FlushTrades(), "trade for a mint with no token row must be rejected")
}

func TestWindowUpsert(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", 1000)

	w := &Window{Mint: "mint1", WidthSec: 10, StartTime: 1000,
		Open: 1, High: 2, Low: 1, Close: 1.5, VWAP: 1.4,
		BuyCount: 3, SellCount: 1, UniqBuyers: 3, VolTokens: 300, VolSol: 4.2}
	require.NoError(t, db.UpsertWindow(w))

	w.Close = 1.8
	w.BuyCount = 4
	require.NoError(t, db.UpsertWindow(w))

	windows, err := db.RecentWindows("mint1", 0)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 1.8, windows[0].Close)
	assert.Equal(t, 4, windows[0].BuyCount)
}

func TestWalletLotsRealizePnL(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", 1000)
	now := time.Now().Unix()

	// Buy 100 tokens for 1 SOL, sell them for 2 SOL → 1 SOL realized win.
	require.NoError(t, db.ApplyTradeToWallet(&Trade{
		Signature: "b1", BlockTime: now, Mint: "mint1", Side: "buy",
		Trader: "w1", TokenAmount: 100, SolAmount: 1.0, Price: 0.01,
	}))
	require.NoError(t, db.ApplyTradeToWallet(&Trade{
		Signature: "s1", BlockTime: now + 10, Mint: "mint1", Side: "sell",
		Trader: "w1", TokenAmount: 100, SolAmount: 2.0, Price: 0.02,
	}))

	stats, err := db.GetWalletStats("w1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.BuyCount)
	assert.Equal(t, 1, stats.SellCount)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 0, stats.Losses)
	assert.InDelta(t, 1.0, stats.ProfitScore, 0.001)
	assert.InDelta(t, 1.0, stats.WinRate, 0.001)
}

func TestWalletPartialSell(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", 1000)
	now := time.Now().Unix()

	require.NoError(t, db.ApplyTradeToWallet(&Trade{
		Signature: "b1", BlockTime: now, Mint: "mint1", Side: "buy",
		Trader: "w1", TokenAmount: 100, SolAmount: 2.0, Price: 0.02,
	}))
	// Sell half at a loss.
	require.NoError(t, db.ApplyTradeToWallet(&Trade{
		Signature: "s1", BlockTime: now + 5, Mint: "mint1", Side: "sell",
		Trader: "w1", TokenAmount: 50, SolAmount: 0.5, Price: 0.01,
	}))

	stats, err := db.GetWalletStats("w1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, -0.5, stats.ProfitScore, 0.001)
}

func TestProfitableWalletsSet(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", 1000)
	now := time.Now().Unix()

	// w1 makes 150 SOL profit.
	require.NoError(t, db.ApplyTradeToWallet(&Trade{
		Signature: "b1", BlockTime: now, Mint: "mint1", Side: "buy",
		Trader: "w1", TokenAmount: 100, SolAmount: 50, Price: 0.5,
	}))
	require.NoError(t, db.ApplyTradeToWallet(&Trade{
		Signature: "s1", BlockTime: now + 1, Mint: "mint1", Side: "sell",
		Trader: "w1", TokenAmount: 100, SolAmount: 200, Price: 2.0,
	}))

	set, err := db.ProfitableWallets(100.0, 0.5, 100)
	require.NoError(t, err)
	_, ok := set["w1"]
	assert.True(t, ok)
}

func TestHotlistUpsertAndCleanup(t *testing.T) {
	db := testDB(t)

	e := &HotlistEntry{Mint: "mint1", Score: 8.5, MCVelocity: 3.0, MCVelValue: 1167,
		UniqueBuyers: 10, UpdatedAt: time.Now().Unix()}
	require.NoError(t, db.UpsertHotlist(e))

	top, err := db.TopHotlist(10, 6.0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.InDelta(t, 8.5, top[0].Score, 0.001)

	// Stale entry gets purged.
	stale := &HotlistEntry{Mint: "mint2", Score: 7.0, UpdatedAt: time.Now().Unix() - 600}
	require.NoError(t, db.UpsertHotlist(stale))
	n, err := db.CleanupOldHotlist(300)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCreatorTradesPersistence(t *testing.T) {
	db := testDB(t)
	now := time.Now().Unix()

	require.NoError(t, db.RecordCreatorTrade("creator1", now))
	require.NoError(t, db.RecordCreatorTrade("creator1", now-10))
	require.NoError(t, db.RecordCreatorTrade("creator2", now-100000))

	entries, err := db.LoadCreatorTrades(now - 3600)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	deleted, err := db.CleanupCreatorTrades(24 * time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestMintActivity(t *testing.T) {
	db := testDB(t)
	seedToken(t, db, "mint1", "creator1", time.Now().Unix()-120)
	now := time.Now().Unix()

	for i, tr := range []Trade{
		{Signature: "a", Slot: 1, BlockTime: now - 1, Side: "buy", Trader: "t1", SolAmount: 2, TokenAmount: 100, Price: 0.02},
		{Signature: "b", Slot: 2, BlockTime: now - 1, Side: "buy", Trader: "t2", SolAmount: 3, TokenAmount: 100, Price: 0.03},
		{Signature: "c", Slot: 3, BlockTime: now - 30, Side: "sell", Trader: "t3", SolAmount: 1, TokenAmount: 50, Price: 0.02},
	} {
		tr.Mint = "mint1"
		require.NoError(t, db.InsertTrade(&tr), "trade %d", i)
	}
	require.NoError(t, db.FlushTrades())

	a, err := db.MintActivitySince("mint1", now)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, a.VolSol60s, 0.001)
	assert.Equal(t, 2, a.Buyers60s)
	assert.Equal(t, 2, a.Buys60s)
	assert.Equal(t, 1, a.Sells60s)
	assert.InDelta(t, 5.0, a.VolSol5s, 0.001)
	assert.Equal(t, 2, a.Buyers2s)
	assert.Equal(t, "creator1", a.Creator)
}
