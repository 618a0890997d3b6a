package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite store shared by the collector and read by the brain.
type DB struct {
	db *sql.DB

	// Trade write buffer. Inserts accumulate here and are flushed in one
	// transaction at batchSize rows or batchAge, whichever first.
	bufMu     sync.Mutex
	tradeBuf  []*Trade
	lastFlush time.Time
	batchSize int
	batchAge  time.Duration

	// Optional observer for query latency (wired to a histogram).
	queryObserver func(seconds float64)
}

// Token is a launched token row. Created on first CREATE event, mutated only
// on migration.
type Token struct {
	Mint            string
	Creator         string
	BondingCurve    string
	Name            string
	Symbol          string
	URI             string
	Decimals        int
	LaunchSlot      int64
	LaunchTime      int64
	InitialPrice    float64
	InitialLiqSol   float64
	InitialSupply   float64
	InitialMCSol    float64
	MintAuthority   string
	FreezeAuthority string
	Migrated        bool
	MigrationPool   string
	MigrationTime   int64
}

// Trade is an immutable swap row, ordered by (mint, block_time, slot).
type Trade struct {
	Signature   string
	Slot        int64
	BlockTime   int64
	Mint        string
	Side        string // "buy" or "sell"
	Trader      string
	TokenAmount float64
	SolAmount   float64
	Price       float64
	IsAMM       bool
}

// Window is a per-(mint, width, start) rolling aggregate.
type Window struct {
	Mint       string
	WidthSec   int
	StartTime  int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	VWAP       float64
	BuyCount   int
	SellCount  int
	UniqBuyers int
	VolTokens  float64
	VolSol     float64
	Top1Share  float64
	Top3Share  float64
	Top5Share  float64
	Volatility float64
}

// WalletStats is the per-wallet rollup updated synchronously on each trade.
type WalletStats struct {
	Wallet        string
	FirstSeen     int64
	LastSeen      int64
	BuyCount      int
	SellCount     int
	SolIn         float64
	SolOut        float64
	Wins          int
	Losses        int
	WinRate       float64
	AvgEntryPrice float64
	AvgExitPrice  float64
	ProfitScore   float64
	Tracked       bool
	Alias         string
}

// HotlistEntry is the current score plus per-signal breakdown for a mint.
type HotlistEntry struct {
	Mint          string
	Score         float64
	Creator       float64
	BuyerSpeed    float64
	Liquidity     float64
	WalletOverlap float64
	Concentration float64
	VolumeAccel   float64
	MCVelocity    float64
	MCVelValue    float64
	UniqueBuyers  int
	UpdatedAt     int64
}

// ScoringTrade is the slim trade view the hotlist scorer works on.
type ScoringTrade struct {
	Trader    string
	Side      string
	SolAmount float64
}

// NewDB opens (or creates) the store with WAL enabled and the schema applied.
func NewDB(path string, batchSize int, batchAge time.Duration) (*DB, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = 50
	}
	if batchAge <= 0 {
		batchAge = 100 * time.Millisecond
	}

	log.Info().Str("path", path).Msg("database initialized")
	return &DB{
		db:        db,
		tradeBuf:  make([]*Trade, 0, batchSize),
		lastFlush: time.Now(),
		batchSize: batchSize,
		batchAge:  batchAge,
	}, nil
}

// SetQueryObserver registers a latency callback applied to read queries.
func (d *DB) SetQueryObserver(fn func(seconds float64)) {
	d.queryObserver = fn
}

func (d *DB) observe(start time.Time) {
	if d.queryObserver != nil {
		d.queryObserver(time.Since(start).Seconds())
	}
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		mint TEXT PRIMARY KEY,
		creator TEXT NOT NULL,
		bonding_curve TEXT,
		name TEXT,
		symbol TEXT,
		uri TEXT,
		decimals INTEGER NOT NULL DEFAULT 6,
		launch_slot INTEGER NOT NULL,
		launch_time INTEGER NOT NULL,
		initial_price REAL,
		initial_liquidity_sol REAL,
		initial_supply REAL,
		initial_mc_sol REAL,
		mint_authority TEXT,
		freeze_authority TEXT,
		migrated INTEGER NOT NULL DEFAULT 0,
		migration_pool TEXT,
		migration_time INTEGER
	);

	CREATE TABLE IF NOT EXISTS trades (
		signature TEXT PRIMARY KEY,
		slot INTEGER NOT NULL,
		block_time INTEGER NOT NULL,
		mint TEXT NOT NULL REFERENCES tokens(mint),
		side TEXT NOT NULL,
		trader TEXT NOT NULL,
		token_amount REAL NOT NULL,
		sol_amount REAL NOT NULL,
		price REAL NOT NULL,
		is_amm INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS windows (
		mint TEXT NOT NULL,
		width_sec INTEGER NOT NULL,
		start_time INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		vwap REAL NOT NULL,
		buy_count INTEGER NOT NULL,
		sell_count INTEGER NOT NULL,
		uniq_buyers INTEGER NOT NULL,
		vol_tokens REAL NOT NULL,
		vol_sol REAL NOT NULL,
		top1_share REAL NOT NULL DEFAULT 0,
		top3_share REAL NOT NULL DEFAULT 0,
		top5_share REAL NOT NULL DEFAULT 0,
		volatility REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (mint, width_sec, start_time)
	);

	CREATE TABLE IF NOT EXISTS wallet_stats (
		wallet TEXT PRIMARY KEY,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		buy_count INTEGER NOT NULL DEFAULT 0,
		sell_count INTEGER NOT NULL DEFAULT 0,
		sol_in REAL NOT NULL DEFAULT 0,
		sol_out REAL NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		win_rate REAL NOT NULL DEFAULT 0,
		avg_entry_price REAL NOT NULL DEFAULT 0,
		avg_exit_price REAL NOT NULL DEFAULT 0,
		profit_score REAL NOT NULL DEFAULT 0,
		tracked INTEGER NOT NULL DEFAULT 0,
		alias TEXT
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wallet TEXT NOT NULL,
		mint TEXT NOT NULL,
		tokens REAL NOT NULL,
		sol_spent REAL NOT NULL,
		entry_price REAL NOT NULL,
		opened_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hotlist (
		mint TEXT PRIMARY KEY,
		score REAL NOT NULL,
		s_creator REAL NOT NULL,
		s_buyer_speed REAL NOT NULL,
		s_liquidity REAL NOT NULL,
		s_wallet_overlap REAL NOT NULL,
		s_concentration REAL NOT NULL,
		s_volume_accel REAL NOT NULL,
		s_mc_velocity REAL NOT NULL,
		mc_vel_value REAL NOT NULL,
		unique_buyers INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS creator_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		creator_wallet TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_mint_time ON trades(mint, block_time, slot);
	CREATE INDEX IF NOT EXISTS idx_windows_mint_start ON windows(mint, start_time);
	CREATE INDEX IF NOT EXISTS idx_hotlist_score ON hotlist(score DESC);
	CREATE INDEX IF NOT EXISTS idx_positions_wallet_mint ON positions(wallet, mint);
	CREATE INDEX IF NOT EXISTS idx_creator_trades ON creator_trades(creator_wallet, timestamp);
	`

	_, err := db.Exec(schema)
	return err
}

// ---- tokens ----

// InsertToken inserts a token row; a replayed CREATE for the same mint is a
// no-op.
func (d *DB) InsertToken(t *Token) error {
	_, err := d.db.Exec(`
		INSERT OR IGNORE INTO tokens
		(mint, creator, bonding_curve, name, symbol, uri, decimals, launch_slot, launch_time,
		 initial_price, initial_liquidity_sol, initial_supply, initial_mc_sol,
		 mint_authority, freeze_authority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Mint, t.Creator, t.BondingCurve, t.Name, t.Symbol, t.URI, t.Decimals,
		t.LaunchSlot, t.LaunchTime, t.InitialPrice, t.InitialLiqSol,
		t.InitialSupply, t.InitialMCSol, t.MintAuthority, t.FreezeAuthority)
	return err
}

// TokenExists reports whether a token row exists for mint.
func (d *DB) TokenExists(mint string) (bool, error) {
	var one int
	err := d.db.QueryRow("SELECT 1 FROM tokens WHERE mint = ?", mint).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// GetToken fetches a token row, nil if absent.
func (d *DB) GetToken(mint string) (*Token, error) {
	defer d.observe(time.Now())
	var t Token
	var migrated int
	var pool, mintAuth, freezeAuth, curve, name, symbol, uri sql.NullString
	var migTime sql.NullInt64
	var initPrice, initLiq, initSupply, initMC sql.NullFloat64
	err := d.db.QueryRow(`
		SELECT mint, creator, bonding_curve, name, symbol, uri, decimals, launch_slot, launch_time,
		       initial_price, initial_liquidity_sol, initial_supply, initial_mc_sol,
		       mint_authority, freeze_authority, migrated, migration_pool, migration_time
		FROM tokens WHERE mint = ?`, mint).Scan(
		&t.Mint, &t.Creator, &curve, &name, &symbol, &uri, &t.Decimals, &t.LaunchSlot, &t.LaunchTime,
		&initPrice, &initLiq, &initSupply, &initMC, &mintAuth, &freezeAuth, &migrated, &pool, &migTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.BondingCurve = curve.String
	t.Name = name.String
	t.Symbol = symbol.String
	t.URI = uri.String
	t.InitialPrice = initPrice.Float64
	t.InitialLiqSol = initLiq.Float64
	t.InitialSupply = initSupply.Float64
	t.InitialMCSol = initMC.Float64
	t.MintAuthority = mintAuth.String
	t.FreezeAuthority = freezeAuth.String
	t.Migrated = migrated != 0
	t.MigrationPool = pool.String
	t.MigrationTime = migTime.Int64
	return &t, nil
}

// MarkMigrated records graduation to the target pool.
func (d *DB) MarkMigrated(mint, pool string, blockTime int64) error {
	_, err := d.db.Exec(`
		UPDATE tokens SET migrated = 1, migration_pool = ?, migration_time = ?
		WHERE mint = ?`, pool, blockTime, mint)
	return err
}

// UpdateInitialLiquidity backfills liquidity once the curve state is known.
func (d *DB) UpdateInitialLiquidity(mint string, liquiditySol float64) error {
	_, err := d.db.Exec(`
		UPDATE tokens SET initial_liquidity_sol = ?
		WHERE mint = ? AND (initial_liquidity_sol IS NULL OR initial_liquidity_sol = 0)`,
		liquiditySol, mint)
	return err
}

// CreatorWallet returns the creator of a mint.
func (d *DB) CreatorWallet(mint string) (string, error) {
	var creator string
	err := d.db.QueryRow("SELECT creator FROM tokens WHERE mint = ?", mint).Scan(&creator)
	return creator, err
}

// CreatorStats returns (net SOL P&L, tokens created) for a creator wallet,
// or ok=false when the creator has no wallet_stats row yet.
func (d *DB) CreatorStats(creator string) (netPnlSol float64, createCount int, ok bool, err error) {
	defer d.observe(time.Now())
	err = d.db.QueryRow("SELECT COUNT(*) FROM tokens WHERE creator = ?", creator).Scan(&createCount)
	if err != nil {
		return 0, 0, false, err
	}
	err = d.db.QueryRow("SELECT sol_out - sol_in FROM wallet_stats WHERE wallet = ?", creator).Scan(&netPnlSol)
	if err == sql.ErrNoRows {
		return 0, createCount, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return netPnlSol, createCount, true, nil
}

// InitialLiquidity returns the token's initial liquidity, ok=false when unset.
func (d *DB) InitialLiquidity(mint string) (float64, bool, error) {
	var liq sql.NullFloat64
	err := d.db.QueryRow("SELECT initial_liquidity_sol FROM tokens WHERE mint = ?", mint).Scan(&liq)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return liq.Float64, liq.Valid && liq.Float64 > 0, nil
}

// RecentTokensForScoring lists (mint, launch_time) for tokens launched in
// [minLaunchTime, maxLaunchTime].
func (d *DB) RecentTokensForScoring(minLaunchTime, maxLaunchTime int64) ([][2]any, error) {
	defer d.observe(time.Now())
	rows, err := d.db.Query(`
		SELECT mint, launch_time FROM tokens
		WHERE launch_time >= ? AND launch_time <= ?
		ORDER BY launch_time DESC`, minLaunchTime, maxLaunchTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][2]any
	for rows.Next() {
		var mint string
		var launch int64
		if err := rows.Scan(&mint, &launch); err != nil {
			return nil, err
		}
		out = append(out, [2]any{mint, launch})
	}
	return out, rows.Err()
}

// ---- trades ----

// InsertTrade buffers a trade row. The buffer flushes at batchSize rows or
// batchAge, whichever comes first.
func (d *DB) InsertTrade(t *Trade) error {
	d.bufMu.Lock()
	d.tradeBuf = append(d.tradeBuf, t)
	shouldFlush := len(d.tradeBuf) >= d.batchSize || time.Since(d.lastFlush) >= d.batchAge
	d.bufMu.Unlock()

	if shouldFlush {
		return d.FlushTrades()
	}
	return nil
}

// FlushTrades writes the buffered trades in a single transaction. Duplicate
// signatures are ignored so replays cannot double-count.
func (d *DB) FlushTrades() error {
	d.bufMu.Lock()
	if len(d.tradeBuf) == 0 {
		d.bufMu.Unlock()
		return nil
	}
	batch := d.tradeBuf
	d.tradeBuf = make([]*Trade, 0, d.batchSize)
	d.lastFlush = time.Now()
	d.bufMu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO trades
		(signature, slot, block_time, mint, side, trader, token_amount, sol_amount, price, is_amm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, t := range batch {
		if _, err := stmt.Exec(t.Signature, t.Slot, t.BlockTime, t.Mint, t.Side, t.Trader,
			t.TokenAmount, t.SolAmount, t.Price, boolInt(t.IsAMM)); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("flush trade %s: %w", t.Signature, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debug().Int("count", len(batch)).Msg("flushed trade batch")
	return nil
}

// RecentTradesForScoring returns (trader, side, sol_amount) for a mint over
// the lookback, oldest first.
func (d *DB) RecentTradesForScoring(mint string, lookbackSec int64) ([]ScoringTrade, error) {
	defer d.observe(time.Now())
	cutoff := time.Now().Unix() - lookbackSec
	rows, err := d.db.Query(`
		SELECT trader, side, sol_amount FROM trades
		WHERE mint = ? AND block_time >= ?
		ORDER BY block_time ASC, slot ASC`, mint, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoringTrade
	for rows.Next() {
		var t ScoringTrade
		if err := rows.Scan(&t.Trader, &t.Side, &t.SolAmount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TradesForWindow returns a mint's trades with block_time in
// [startTime, endTime), oldest first.
func (d *DB) TradesForWindow(mint string, startTime, endTime int64) ([]*Trade, error) {
	defer d.observe(time.Now())
	rows, err := d.db.Query(`
		SELECT signature, slot, block_time, side, trader, token_amount, sol_amount, price
		FROM trades
		WHERE mint = ? AND block_time >= ? AND block_time < ?
		ORDER BY block_time ASC, slot ASC`, mint, startTime, endTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trade
	for rows.Next() {
		t := &Trade{Mint: mint}
		if err := rows.Scan(&t.Signature, &t.Slot, &t.BlockTime, &t.Side, &t.Trader,
			&t.TokenAmount, &t.SolAmount, &t.Price); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MintActivity aggregates the brain-facing per-mint features straight from
// the trades table.
type MintActivity struct {
	Mint       string
	VolSol60s  float64
	Buyers60s  int
	Buys60s    int
	Sells60s   int
	VolSol5s   float64
	Buyers2s   int
	LastPrice  float64
	LaunchTime int64
	Creator    string
}

// MintActivitySince computes the rolling per-mint aggregates used to refresh
// the brain's feature cache.
func (d *DB) MintActivitySince(mint string, now int64) (*MintActivity, error) {
	defer d.observe(time.Now())
	a := &MintActivity{Mint: mint}

	err := d.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN block_time >= ? THEN sol_amount ELSE 0 END), 0),
			COUNT(DISTINCT CASE WHEN block_time >= ? AND side = 'buy' THEN trader END),
			COALESCE(SUM(CASE WHEN block_time >= ? AND side = 'buy' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN block_time >= ? AND side = 'sell' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN block_time >= ? THEN sol_amount ELSE 0 END), 0),
			COUNT(DISTINCT CASE WHEN block_time >= ? AND side = 'buy' THEN trader END)
		FROM trades WHERE mint = ?`,
		now-60, now-60, now-60, now-60, now-5, now-2, mint).Scan(
		&a.VolSol60s, &a.Buyers60s, &a.Buys60s, &a.Sells60s, &a.VolSol5s, &a.Buyers2s)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow(`
		SELECT price FROM trades WHERE mint = ?
		ORDER BY block_time DESC, slot DESC LIMIT 1`, mint).Scan(&a.LastPrice)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = d.db.QueryRow("SELECT launch_time, creator FROM tokens WHERE mint = ?", mint).Scan(&a.LaunchTime, &a.Creator)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return a, nil
}

// ActiveMints lists mints with at least one trade since the cutoff.
func (d *DB) ActiveMints(sinceUnix int64, limit int) ([]string, error) {
	defer d.observe(time.Now())
	rows, err := d.db.Query(`
		SELECT DISTINCT mint FROM trades WHERE block_time >= ? LIMIT ?`, sinceUnix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mints []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		mints = append(mints, m)
	}
	return mints, rows.Err()
}

// ---- windows ----

// UpsertWindow writes one window aggregate.
func (d *DB) UpsertWindow(w *Window) error {
	_, err := d.db.Exec(`
		INSERT INTO windows
		(mint, width_sec, start_time, open, high, low, close, vwap,
		 buy_count, sell_count, uniq_buyers, vol_tokens, vol_sol,
		 top1_share, top3_share, top5_share, volatility)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint, width_sec, start_time) DO UPDATE SET
		 open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
		 vwap=excluded.vwap, buy_count=excluded.buy_count, sell_count=excluded.sell_count,
		 uniq_buyers=excluded.uniq_buyers, vol_tokens=excluded.vol_tokens, vol_sol=excluded.vol_sol,
		 top1_share=excluded.top1_share, top3_share=excluded.top3_share,
		 top5_share=excluded.top5_share, volatility=excluded.volatility`,
		w.Mint, w.WidthSec, w.StartTime, w.Open, w.High, w.Low, w.Close, w.VWAP,
		w.BuyCount, w.SellCount, w.UniqBuyers, w.VolTokens, w.VolSol,
		w.Top1Share, w.Top3Share, w.Top5Share, w.Volatility)
	return err
}

// RecentWindows returns windows for a mint newer than the cutoff.
func (d *DB) RecentWindows(mint string, timeCutoff int64) ([]*Window, error) {
	defer d.observe(time.Now())
	rows, err := d.db.Query(`
		SELECT mint, width_sec, start_time, open, high, low, close, vwap,
		       buy_count, sell_count, uniq_buyers, vol_tokens, vol_sol,
		       top1_share, top3_share, top5_share, volatility
		FROM windows WHERE mint = ? AND start_time >= ?
		ORDER BY start_time ASC`, mint, timeCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.Mint, &w.WidthSec, &w.StartTime, &w.Open, &w.High, &w.Low, &w.Close,
			&w.VWAP, &w.BuyCount, &w.SellCount, &w.UniqBuyers, &w.VolTokens, &w.VolSol,
			&w.Top1Share, &w.Top3Share, &w.Top5Share, &w.Volatility); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// ---- hotlist ----

// UpsertHotlist writes the current score and breakdown for a mint.
func (d *DB) UpsertHotlist(e *HotlistEntry) error {
	_, err := d.db.Exec(`
		INSERT INTO hotlist
		(mint, score, s_creator, s_buyer_speed, s_liquidity, s_wallet_overlap,
		 s_concentration, s_volume_accel, s_mc_velocity, mc_vel_value, unique_buyers, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint) DO UPDATE SET
		 score=excluded.score, s_creator=excluded.s_creator, s_buyer_speed=excluded.s_buyer_speed,
		 s_liquidity=excluded.s_liquidity, s_wallet_overlap=excluded.s_wallet_overlap,
		 s_concentration=excluded.s_concentration, s_volume_accel=excluded.s_volume_accel,
		 s_mc_velocity=excluded.s_mc_velocity, mc_vel_value=excluded.mc_vel_value,
		 unique_buyers=excluded.unique_buyers, updated_at=excluded.updated_at`,
		e.Mint, e.Score, e.Creator, e.BuyerSpeed, e.Liquidity, e.WalletOverlap,
		e.Concentration, e.VolumeAccel, e.MCVelocity, e.MCVelValue, e.UniqueBuyers, e.UpdatedAt)
	return err
}

// CleanupOldHotlist purges entries not updated within ageSeconds.
func (d *DB) CleanupOldHotlist(ageSeconds int64) (int64, error) {
	res, err := d.db.Exec("DELETE FROM hotlist WHERE updated_at < ?", time.Now().Unix()-ageSeconds)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TopHotlist returns up to limit entries at or above minScore, best first.
func (d *DB) TopHotlist(limit int, minScore float64) ([]*HotlistEntry, error) {
	defer d.observe(time.Now())
	rows, err := d.db.Query(`
		SELECT mint, score, mc_vel_value, unique_buyers, updated_at
		FROM hotlist WHERE score >= ?
		ORDER BY score DESC LIMIT ?`, minScore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HotlistEntry
	for rows.Next() {
		var e HotlistEntry
		if err := rows.Scan(&e.Mint, &e.Score, &e.MCVelValue, &e.UniqueBuyers, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ---- wallet stats ----

// ProfitableWallets lists wallets above both thresholds, most profitable
// first. The hotlist scorer uses this as its winners set.
func (d *DB) ProfitableWallets(minPnlSol, minWinRate float64, limit int) (map[string]struct{}, error) {
	defer d.observe(time.Now())
	rows, err := d.db.Query(`
		SELECT wallet FROM wallet_stats
		WHERE sol_out - sol_in >= ? AND win_rate >= ?
		ORDER BY sol_out - sol_in DESC LIMIT ?`, minPnlSol, minWinRate, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		set[w] = struct{}{}
	}
	return set, rows.Err()
}

// ApplyTradeToWallet updates the per-wallet rollup for one trade: BUY opens
// a lot, SELL closes lots FIFO and realizes P&L.
func (d *DB) ApplyTradeToWallet(t *Trade) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO wallet_stats (wallet, first_seen, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(wallet) DO UPDATE SET last_seen=excluded.last_seen`,
		t.Trader, t.BlockTime, t.BlockTime)
	if err != nil {
		return err
	}

	if t.Side == "buy" {
		_, err = tx.Exec(`
			UPDATE wallet_stats SET buy_count = buy_count + 1, sol_in = sol_in + ?
			WHERE wallet = ?`, t.SolAmount, t.Trader)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO positions (wallet, mint, tokens, sol_spent, entry_price, opened_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.Trader, t.Mint, t.TokenAmount, t.SolAmount, t.Price, t.BlockTime)
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	// SELL: close lots FIFO.
	_, err = tx.Exec(`
		UPDATE wallet_stats SET sell_count = sell_count + 1, sol_out = sol_out + ?
		WHERE wallet = ?`, t.SolAmount, t.Trader)
	if err != nil {
		return err
	}

	rows, err := tx.Query(`
		SELECT id, tokens, sol_spent FROM positions
		WHERE wallet = ? AND mint = ? ORDER BY opened_at ASC, id ASC`, t.Trader, t.Mint)
	if err != nil {
		return err
	}
	type lot struct {
		id       int64
		tokens   float64
		solSpent float64
	}
	var lots []lot
	for rows.Next() {
		var l lot
		if err := rows.Scan(&l.id, &l.tokens, &l.solSpent); err != nil {
			rows.Close()
			return err
		}
		lots = append(lots, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	remaining := t.TokenAmount
	var costBasis float64
	for _, l := range lots {
		if remaining <= 0 {
			break
		}
		if l.tokens <= remaining {
			remaining -= l.tokens
			costBasis += l.solSpent
			if _, err := tx.Exec("DELETE FROM positions WHERE id = ?", l.id); err != nil {
				return err
			}
		} else {
			frac := remaining / l.tokens
			costBasis += l.solSpent * frac
			if _, err := tx.Exec(`
				UPDATE positions SET tokens = tokens - ?, sol_spent = sol_spent - ?
				WHERE id = ?`, remaining, l.solSpent*frac, l.id); err != nil {
				return err
			}
			remaining = 0
		}
	}

	if costBasis > 0 {
		realized := t.SolAmount - costBasis
		col := "losses"
		if realized > 0 {
			col = "wins"
		}
		if _, err := tx.Exec(fmt.Sprintf(`
			UPDATE wallet_stats SET %s = %s + 1,
			 win_rate = CAST(wins + CASE WHEN ? > 0 THEN 1 ELSE 0 END AS REAL) /
			            (wins + losses + 1),
			 profit_score = profit_score + ?
			WHERE wallet = ?`, col, col), realized, realized, t.Trader); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetWalletStats fetches one wallet's rollup, nil if absent.
func (d *DB) GetWalletStats(wallet string) (*WalletStats, error) {
	defer d.observe(time.Now())
	var w WalletStats
	var tracked int
	var alias sql.NullString
	err := d.db.QueryRow(`
		SELECT wallet, first_seen, last_seen, buy_count, sell_count, sol_in, sol_out,
		       wins, losses, win_rate, avg_entry_price, avg_exit_price, profit_score, tracked, alias
		FROM wallet_stats WHERE wallet = ?`, wallet).Scan(
		&w.Wallet, &w.FirstSeen, &w.LastSeen, &w.BuyCount, &w.SellCount, &w.SolIn, &w.SolOut,
		&w.Wins, &w.Losses, &w.WinRate, &w.AvgEntryPrice, &w.AvgExitPrice, &w.ProfitScore, &tracked, &alias)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.Tracked = tracked != 0
	w.Alias = alias.String
	return &w, nil
}

// ActiveWalletStats lists wallets seen since the cutoff, for the brain's
// wallet cache refresh.
func (d *DB) ActiveWalletStats(sinceUnix int64, limit int) ([]*WalletStats, error) {
	defer d.observe(time.Now())
	rows, err := d.db.Query(`
		SELECT wallet, first_seen, last_seen, buy_count, sell_count, sol_in, sol_out,
		       wins, losses, win_rate, profit_score, tracked
		FROM wallet_stats WHERE last_seen >= ?
		ORDER BY profit_score DESC LIMIT ?`, sinceUnix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WalletStats
	for rows.Next() {
		var w WalletStats
		var tracked int
		if err := rows.Scan(&w.Wallet, &w.FirstSeen, &w.LastSeen, &w.BuyCount, &w.SellCount,
			&w.SolIn, &w.SolOut, &w.Wins, &w.Losses, &w.WinRate, &w.ProfitScore, &tracked); err != nil {
			return nil, err
		}
		w.Tracked = tracked != 0
		out = append(out, &w)
	}
	return out, rows.Err()
}

// TrackedWallets returns wallet → alias for wallets flagged tracked.
func (d *DB) TrackedWallets() (map[string]string, error) {
	rows, err := d.db.Query("SELECT wallet, COALESCE(alias, '') FROM wallet_stats WHERE tracked = 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var w, a string
		if err := rows.Scan(&w, &a); err != nil {
			return nil, err
		}
		out[w] = a
	}
	return out, rows.Err()
}

// ---- creator trades (guardrail persistence) ----

// RecordCreatorTrade persists one creator-rate-limit entry.
func (d *DB) RecordCreatorTrade(creator string, ts int64) error {
	_, err := d.db.Exec("INSERT INTO creator_trades (creator_wallet, timestamp) VALUES (?, ?)", creator, ts)
	return err
}

// LoadCreatorTrades returns creator trades newer than the cutoff.
func (d *DB) LoadCreatorTrades(sinceUnix int64) ([]struct {
	Creator string
	TS      int64
}, error) {
	rows, err := d.db.Query(`
		SELECT creator_wallet, timestamp FROM creator_trades
		WHERE timestamp > ? ORDER BY timestamp DESC LIMIT 1000`, sinceUnix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []struct {
		Creator string
		TS      int64
	}
	for rows.Next() {
		var e struct {
			Creator string
			TS      int64
		}
		if err := rows.Scan(&e.Creator, &e.TS); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupCreatorTrades removes entries older than the retention window.
func (d *DB) CleanupCreatorTrades(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := d.db.Exec("DELETE FROM creator_trades WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close drains the trade buffer and closes the store. Buffered trades are
// never lost on a normal shutdown.
func (d *DB) Close() error {
	if err := d.FlushTrades(); err != nil {
		log.Error().Err(err).Msg("failed to drain trade buffer on close")
	}
	return d.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
