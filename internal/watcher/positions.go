package watcher

import (
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/pnl"
	"solana-pump-pipeline/internal/udp"
)

// TrackedPosition is one open BUY the watcher follows for P&L and exits.
type TrackedPosition struct {
	Mint    [32]byte
	TradeID [16]byte
	Side    byte

	EntryTime          time.Time
	EntryPriceLamports uint64
	SizeSol            float64
	SlippageBps        uint16
	FeeBps             uint16
	ProfitTargetUSD    float64
	StopLossUSD        float64

	LastUpdate           time.Time
	CurrentPriceLamports uint64
	LastPnLUSD           float64
	LastPnLPercent       float64
	UpdateCount          uint32
}

func positionFromWatchSig(w *udp.WatchSigEnhanced) *TrackedPosition {
	now := time.Now()
	return &TrackedPosition{
		Mint:                 w.Mint,
		TradeID:              w.TradeID,
		Side:                 w.Side,
		EntryTime:            now,
		EntryPriceLamports:   w.EntryPriceLamports,
		SizeSol:              w.SizeSol(),
		SlippageBps:          w.SlippageBps,
		FeeBps:               w.FeeBps,
		ProfitTargetUSD:      w.ProfitTargetUSD(),
		StopLossUSD:          w.StopLossUSD(),
		LastUpdate:           now,
		CurrentPriceLamports: w.EntryPriceLamports,
	}
}

// PositionTracker holds the watcher's open positions keyed by base58 mint.
// Exactly one position per mint at a time.
type PositionTracker struct {
	mu        sync.RWMutex
	positions map[string]*TrackedPosition
	lastSent  map[string]sentMarker
}

type sentMarker struct {
	at         time.Time
	pnlPercent float64
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{
		positions: make(map[string]*TrackedPosition),
		lastSent:  make(map[string]sentMarker),
	}
}

// AddPosition starts tracking a confirmed BUY. SELL registrations are
// ignored; they close positions rather than open them.
func (pt *PositionTracker) AddPosition(w *udp.WatchSigEnhanced) {
	if w.Side != udp.SideBuy {
		log.Debug().Str("mint", shorten(w.MintStr(), 8)).Msg("skipping SELL position tracking")
		return
	}
	pos := positionFromWatchSig(w)
	mintStr := base58.Encode(pos.Mint[:])

	pt.mu.Lock()
	pt.positions[mintStr] = pos
	pt.lastSent[mintStr] = sentMarker{at: time.Now(), pnlPercent: 0}
	pt.mu.Unlock()

	log.Info().
		Str("mint", shorten(mintStr, 8)).
		Float64("size", pos.SizeSol).
		Float64("target", pos.ProfitTargetUSD).
		Float64("stop", pos.StopLossUSD).
		Msg("📊 tracking new position")
}

// Has reports whether a mint is tracked.
func (pt *PositionTracker) Has(mintStr string) bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	_, ok := pt.positions[mintStr]
	return ok
}

// Count returns the number of open positions.
func (pt *PositionTracker) Count() int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.positions)
}

// UpdatePositionPrice recomputes P&L at the new price and returns a
// PositionUpdate when the suppression window allows (≥5s since last send or
// ≥5 points of P&L movement), plus ExitAdvice when a target or stop fired.
func (pt *PositionTracker) UpdatePositionPrice(mint [32]byte, newPriceLamports uint64, solUSD float64,
	pendingBuys, pendingSells uint16) (*udp.PositionUpdate, *udp.ExitAdvice) {
	mintStr := base58.Encode(mint[:])

	pt.mu.Lock()
	defer pt.mu.Unlock()

	pos, ok := pt.positions[mintStr]
	if !ok {
		return nil, nil
	}

	pos.CurrentPriceLamports = newPriceLamports
	pos.LastUpdate = time.Now()
	pos.UpdateCount++
	pnlUSD, pnlPct := pnl.Compute(pos.EntryPriceLamports, newPriceLamports, pos.SizeSol, pos.FeeBps, solUSD)
	pos.LastPnLUSD = pnlUSD
	pos.LastPnLPercent = pnlPct

	marker := pt.lastSent[mintStr]
	elapsed := time.Since(marker.at)
	pnlMoved := absFloat(pnlPct - marker.pnlPercent)
	if elapsed < 5*time.Second && pnlMoved < 5.0 {
		return nil, nil
	}
	pt.lastSent[mintStr] = sentMarker{at: time.Now(), pnlPercent: pnlPct}

	ageSecs := time.Since(pos.EntryTime).Seconds()
	velocity := 0.0
	if ageSecs > 0 {
		velocity = pnlPct / ageSecs
	}

	targetHit := pnlUSD >= pos.ProfitTargetUSD && pos.ProfitTargetUSD > 0
	stopHit := pos.StopLossUSD < 0 && pnlUSD <= pos.StopLossUSD
	noActivity := pendingBuys == 0 && ageSecs > 15

	var flags byte
	if targetHit {
		flags |= udp.FlagProfitTargetHit
	}
	if stopHit {
		flags |= udp.FlagStopLossHit
	}
	if noActivity {
		flags |= udp.FlagNoMempoolActivity
	}

	update := &udp.PositionUpdate{
		Mint:                 mint,
		TradeID:              pos.TradeID,
		TimestampNs:          uint64(time.Now().UnixNano()),
		EntryPriceLamports:   pos.EntryPriceLamports,
		CurrentPriceLamports: newPriceLamports,
		SizeSol:              float32(pos.SizeSol),
		PnLUSD:               float32(pnlUSD),
		PnLPercent:           float32(pnlPct),
		PendingBuys:          pendingBuys,
		PendingSells:         pendingSells,
		PriceVelocity:        float32(velocity),
		Flags:                flags,
	}

	holdMs := uint32(time.Since(pos.EntryTime).Milliseconds())
	var advice *udp.ExitAdvice
	if targetHit {
		confidence := uint8(75)
		if pnlPct >= 50 {
			confidence = 95
		} else if pnlPct >= 30 {
			confidence = 85
		}
		advice = udp.NewExitAdvice(pos.TradeID, mint, udp.ReasonTargetHit, confidence,
			pnlUSD, pos.EntryPriceLamports, newPriceLamports, holdMs)
	} else if stopHit {
		advice = udp.NewExitAdvice(pos.TradeID, mint, udp.ReasonStopLoss, 100,
			pnlUSD, pos.EntryPriceLamports, newPriceLamports, holdMs)
	}

	log.Debug().
		Str("mint", shorten(mintStr, 8)).
		Float64("pnl_usd", pnlUSD).
		Float64("pnl_pct", pnlPct).
		Bool("target_hit", targetHit).
		Bool("stop_hit", stopHit).
		Msg("position update")

	return update, advice
}

// Remove stops tracking a mint.
func (pt *PositionTracker) Remove(mintStr string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pos, ok := pt.positions[mintStr]; ok {
		log.Info().
			Str("mint", shorten(mintStr, 8)).
			Float64("final_pnl", pos.LastPnLUSD).
			Float64("final_pct", pos.LastPnLPercent).
			Msg("📊 stopped tracking position")
		delete(pt.positions, mintStr)
		delete(pt.lastSent, mintStr)
	}
}

// CheckManualExit detects an out-of-band SELL for a held mint: a SELL whose
// signature was never registered via WatchSig. Returns the notification and
// removes the position.
func (pt *PositionTracker) CheckManualExit(mintStr string, exitPriceLamports uint64, solUSD float64) *udp.ManualExit {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pos, ok := pt.positions[mintStr]
	if !ok {
		return nil
	}

	// Net of entry + exit fees.
	priceRatio := float64(exitPriceLamports) / float64(pos.EntryPriceLamports)
	exitValueSol := pos.SizeSol * priceRatio
	feesSol := pos.SizeSol * float64(pos.FeeBps) / 1e4 * 2
	netProfitSol := exitValueSol - pos.SizeSol - feesSol
	realizedUSD := netProfitSol * solUSD
	pnlPct := (priceRatio - 1) * 100

	notification := &udp.ManualExit{
		Mint:               pos.Mint,
		TradeID:            pos.TradeID,
		EntryPriceLamports: pos.EntryPriceLamports,
		ExitPriceLamports:  exitPriceLamports,
		SizeSol:            float32(pos.SizeSol),
		RealizedPnLUSD:     float32(realizedUSD),
		PnLPercent:         float32(pnlPct),
		HoldTimeSecs:       uint32(time.Since(pos.EntryTime).Seconds()),
	}

	log.Info().
		Str("mint", shorten(mintStr, 8)).
		Float64("pnl_usd", realizedUSD).
		Float64("pnl_pct", pnlPct).
		Msg("🚨 manual exit detected")

	delete(pt.positions, mintStr)
	delete(pt.lastSent, mintStr)
	return notification
}

// AllUpdates builds a periodic snapshot for every tracked position.
func (pt *PositionTracker) AllUpdates() []*udp.PositionUpdate {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	updates := make([]*udp.PositionUpdate, 0, len(pt.positions))
	for _, pos := range pt.positions {
		var flags byte
		if pos.LastPnLUSD >= pos.ProfitTargetUSD && pos.ProfitTargetUSD > 0 {
			flags |= udp.FlagProfitTargetHit
		}
		if pos.StopLossUSD < 0 && pos.LastPnLUSD <= pos.StopLossUSD {
			flags |= udp.FlagStopLossHit
		}
		updates = append(updates, &udp.PositionUpdate{
			Mint:                 pos.Mint,
			TradeID:              pos.TradeID,
			TimestampNs:          uint64(time.Now().UnixNano()),
			EntryPriceLamports:   pos.EntryPriceLamports,
			CurrentPriceLamports: pos.CurrentPriceLamports,
			SizeSol:              float32(pos.SizeSol),
			PnLUSD:               float32(pos.LastPnLUSD),
			PnLPercent:           float32(pos.LastPnLPercent),
			Flags:                flags,
		})
	}
	return updates
}

// LogStale warns about positions without a price update for over a minute.
func (pt *PositionTracker) LogStale() {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	for mint, pos := range pt.positions {
		if age := time.Since(pos.LastUpdate); age > time.Minute {
			log.Warn().Str("mint", shorten(mint, 8)).Dur("age", age).Msg("⚠️ stale position")
		}
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
