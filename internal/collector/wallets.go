package collector

import (
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/storage"
	"solana-pump-pipeline/internal/udp"
)

// WalletTracker keeps per-wallet rollups current and turns tracked-wallet
// moves into live advisories for the brain.
type WalletTracker struct {
	db     *storage.DB
	advice *udp.Publisher // nil disables advisories
	brain  *udp.Publisher // WalletActivity telemetry; nil disables

	mu      sync.RWMutex
	tracked map[string]string // wallet → alias

	// SELLs at or above this size from a tracked wallet trigger an
	// emergency-exit advisory.
	emergencySellSol float64
}

// NewWalletTracker loads the tracked set from the store.
func NewWalletTracker(db *storage.DB, advice, brain *udp.Publisher, emergencySellSol float64) *WalletTracker {
	if emergencySellSol <= 0 {
		emergencySellSol = 5.0
	}
	wt := &WalletTracker{
		db:               db,
		advice:           advice,
		brain:            brain,
		tracked:          make(map[string]string),
		emergencySellSol: emergencySellSol,
	}
	wt.RefreshTracked()
	return wt
}

// RefreshTracked reloads the tracked-wallet set from the store.
func (wt *WalletTracker) RefreshTracked() {
	tracked, err := wt.db.TrackedWallets()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load tracked wallets")
		return
	}
	wt.mu.Lock()
	wt.tracked = tracked
	wt.mu.Unlock()
	if len(tracked) > 0 {
		log.Info().Int("count", len(tracked)).Msg("tracked wallets loaded")
	}
}

// IsAlpha reports whether a wallet is in the tracked (alpha) set.
func (wt *WalletTracker) IsAlpha(wallet string) bool {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	_, ok := wt.tracked[wallet]
	return ok
}

// ApplyTrade updates wallet stats synchronously and emits advisories for
// tracked wallets.
func (wt *WalletTracker) ApplyTrade(ev *Event) {
	if err := wt.db.ApplyTradeToWallet(&storage.Trade{
		Signature:   ev.Signature,
		Slot:        int64(ev.Slot),
		BlockTime:   ev.BlockTime,
		Mint:        ev.Mint,
		Side:        ev.Side,
		Trader:      ev.Trader,
		TokenAmount: ev.TokenAmount,
		SolAmount:   ev.SolAmount,
		Price:       ev.Price,
		IsAMM:       ev.IsAMM,
	}); err != nil {
		log.Warn().Err(err).Str("wallet", shortMint(ev.Trader)).Msg("wallet stats update failed")
	}

	if !wt.IsAlpha(ev.Trader) {
		return
	}

	mintRaw, err := base58.Decode(ev.Mint)
	if err != nil || len(mintRaw) != 32 {
		return
	}
	walletRaw, err := base58.Decode(ev.Trader)
	if err != nil || len(walletRaw) != 32 {
		return
	}

	stats, _ := wt.db.GetWalletStats(ev.Trader)
	winRate := uint8(0)
	if stats != nil {
		winRate = uint8(stats.WinRate * 100)
	}

	if wt.brain != nil {
		activity := &udp.WalletActivity{
			Action:      udp.SideBuy,
			SizeSol:     float32(ev.SolAmount),
			Confidence:  walletConfidence(stats),
			TimestampNs: uint64(time.Now().UnixNano()),
		}
		if ev.Side == "sell" {
			activity.Action = udp.SideSell
		}
		copy(activity.Mint[:], mintRaw)
		copy(activity.Wallet[:], walletRaw)
		wt.brain.Send(activity.Encode())
	}

	if wt.advice == nil {
		return
	}

	switch {
	case ev.Side == "buy":
		adv := &udp.Advisory{
			Type:         udp.AdvisoryCopyTrade,
			Confidence:   walletConfidence(stats),
			TradeSizeSol: float32(ev.SolAmount),
		}
		copy(adv.Mint[:], mintRaw)
		copy(adv.Wallet[:], walletRaw)
		wt.advice.Send(adv.Encode())
		log.Info().
			Str("wallet", shortMint(ev.Trader)).
			Str("mint", shortMint(ev.Mint)).
			Float64("size", ev.SolAmount).
			Msg("🎭 copy-trade advisory sent")

	case ev.Side == "sell" && ev.SolAmount >= wt.emergencySellSol:
		adv := &udp.Advisory{
			Type:                udp.AdvisoryEmergencyExit,
			SellAmountSolScaled: uint32(ev.SolAmount * 1000),
			WalletWinRate:       winRate,
			Confidence:          90,
		}
		copy(adv.Mint[:], mintRaw)
		copy(adv.Wallet[:], walletRaw)
		wt.advice.Send(adv.Encode())
		log.Warn().
			Str("wallet", shortMint(ev.Trader)).
			Str("mint", shortMint(ev.Mint)).
			Float64("size", ev.SolAmount).
			Msg("🚨 emergency-exit advisory sent")
	}
}

// walletConfidence derives a 0-100 copy confidence from the rollup.
func walletConfidence(stats *storage.WalletStats) uint8 {
	if stats == nil {
		return 50
	}
	closed := stats.Wins + stats.Losses
	if closed < 10 {
		// Discovery-style bootstrap: 50 + wins×2 + pnl/5, capped at 90.
		score := 50 + stats.Wins*2 + int(stats.ProfitScore/5)
		if score > 90 {
			score = 90
		}
		if score < 0 {
			score = 0
		}
		return uint8(score)
	}

	base := 50
	switch {
	case stats.WinRate >= 0.60 && stats.ProfitScore >= 100:
		base = 93
	case stats.WinRate >= 0.55 && stats.ProfitScore >= 40:
		base = 87
	case stats.WinRate >= 0.50 && stats.ProfitScore >= 15:
		base = 80
	}
	boost := 0
	if stats.WinRate > 0.70 {
		boost += int((stats.WinRate - 0.70) * 20)
	}
	if closed > 50 {
		boost += min(closed, 200) / 50
	}
	conf := base + boost
	if conf > 100 {
		conf = 100
	}
	return uint8(conf)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
