package brain

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ExitReason labels why the monitor wants out.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "profit_target"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTimeDecay    ExitReason = "time_decay"
	ExitVolumeDrop   ExitReason = "volume_drop"
	ExitEmergency    ExitReason = "emergency"
)

// ExitRequest is one firing predicate: sell exitPct of the position.
type ExitRequest struct {
	Mint        string
	Reason      ExitReason
	ExitPct     float64
	Stage       int // staged profit level index, -1 otherwise
	SlippageBps uint16
}

// profitStage is one staged profit-taking level.
type profitStage struct {
	gainPct float64
	exitPct float64
}

// ExitMonitorConfig carries the exit predicates' thresholds.
type ExitMonitorConfig struct {
	Interval        time.Duration
	StopLossPct     float64 // drop below entry that forces a full exit
	VolumeDropSol   float64 // vol_5s floor
	VolumeDropTicks int     // consecutive low-volume evaluations required
	SellSlippageBps uint16  // floor for exit slippage
}

// DefaultExitMonitorConfig matches production: 2s cadence, −15% stop, 300
// bps exit slippage, staged profit at +30/+60/+100%.
func DefaultExitMonitorConfig() ExitMonitorConfig {
	return ExitMonitorConfig{
		Interval:        2 * time.Second,
		StopLossPct:     15.0,
		VolumeDropSol:   0.5,
		VolumeDropTicks: 3,
		SellSlippageBps: 300,
	}
}

var profitStages = []profitStage{
	{gainPct: 30, exitPct: 50},
	{gainPct: 60, exitPct: 30},
	{gainPct: 100, exitPct: 100},
}

// ExitMonitor sweeps the position book and yields exit requests.
type ExitMonitor struct {
	cfg   ExitMonitorConfig
	book  *PositionBook
	cache *FeatureCache
}

// NewExitMonitor builds a monitor over the book and feature cache.
func NewExitMonitor(cfg ExitMonitorConfig, book *PositionBook, cache *FeatureCache) *ExitMonitor {
	return &ExitMonitor{cfg: cfg, book: book, cache: cache}
}

// Run evaluates on the configured cadence until ctx is done, sending exit
// requests to out.
func (m *ExitMonitor) Run(ctx context.Context, out chan<- ExitRequest) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, req := range m.Evaluate() {
				select {
				case out <- req:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Evaluate runs all predicates over a snapshot of the book.
func (m *ExitMonitor) Evaluate() []ExitRequest {
	var requests []ExitRequest
	for _, pos := range m.book.Snapshot() {
		if pos.RemainingPct <= 0 {
			continue
		}
		if req := m.evaluatePosition(pos); req != nil {
			requests = append(requests, *req)
		}
	}
	return requests
}

func (m *ExitMonitor) evaluatePosition(pos *Position) *ExitRequest {
	// Latest market view: prefer cache features, fall back to last price.
	var features *MintFeatures
	if m.cache != nil {
		features = m.cache.Mint(pos.Mint)
	}
	price := pos.LastPrice
	if features != nil && features.CurrentPrice > 0 {
		price = features.CurrentPrice
		m.book.UpdatePrice(pos.Mint, price)
	}

	pnlPct := 0.0
	if pos.EntryPrice > 0 && price > 0 {
		pnlPct = (price/pos.EntryPrice - 1) * 100
	}

	slippage := m.cfg.SellSlippageBps
	if pos.WidenedSlipBps > slippage && time.Now().Before(pos.WidenedUntil) {
		slippage = pos.WidenedSlipBps
	}

	// Emergency beats everything.
	if pos.EmergencyExit {
		log.Warn().Str("mint", shortStr(pos.Mint, 8)).Msg("🚨 emergency exit firing")
		return &ExitRequest{Mint: pos.Mint, Reason: ExitEmergency, ExitPct: pos.RemainingPct, Stage: -1, SlippageBps: slippage}
	}

	// Stop loss: full exit.
	if pnlPct <= -m.cfg.StopLossPct {
		log.Warn().Str("mint", shortStr(pos.Mint, 8)).Float64("pnl_pct", pnlPct).Msg("🛑 stop loss firing")
		return &ExitRequest{Mint: pos.Mint, Reason: ExitStopLoss, ExitPct: pos.RemainingPct, Stage: -1, SlippageBps: slippage}
	}

	// Time decay: full exit at max hold (advisories can extend).
	if pos.AgeSecs() >= float64(pos.EffectiveMaxHold()) && pos.MaxHoldSecs > 0 {
		log.Info().Str("mint", shortStr(pos.Mint, 8)).Float64("age", pos.AgeSecs()).Msg("⏰ time decay firing")
		return &ExitRequest{Mint: pos.Mint, Reason: ExitTimeDecay, ExitPct: pos.RemainingPct, Stage: -1, SlippageBps: slippage}
	}

	// Staged profit targets: highest unfired stage at or below current gain.
	for i := len(profitStages) - 1; i >= 0; i-- {
		stage := profitStages[i]
		if pnlPct >= stage.gainPct && !pos.StagesFired[i] {
			exitPct := stage.exitPct
			if exitPct > pos.RemainingPct {
				exitPct = pos.RemainingPct
			}
			log.Info().
				Str("mint", shortStr(pos.Mint, 8)).
				Float64("pnl_pct", pnlPct).
				Float64("exit_pct", exitPct).
				Msg("🎯 staged profit target firing")
			return &ExitRequest{Mint: pos.Mint, Reason: ExitProfitTarget, ExitPct: exitPct, Stage: i, SlippageBps: slippage}
		}
	}

	// Volume drop: sustained dead tape forces a partial exit.
	if features != nil && !features.IsStale() {
		if features.Vol5sSol < m.cfg.VolumeDropSol {
			pos.LowVolumeTicks++
			m.book.ApplyAdvisory(pos.Mint, func(p *Position) { p.LowVolumeTicks = pos.LowVolumeTicks })
			if pos.LowVolumeTicks >= m.cfg.VolumeDropTicks {
				m.book.ApplyAdvisory(pos.Mint, func(p *Position) { p.LowVolumeTicks = 0 })
				exitPct := pos.RemainingPct / 2
				log.Info().Str("mint", shortStr(pos.Mint, 8)).Float64("vol_5s", features.Vol5sSol).Msg("📉 volume drop firing")
				return &ExitRequest{Mint: pos.Mint, Reason: ExitVolumeDrop, ExitPct: exitPct, Stage: -1, SlippageBps: slippage}
			}
		} else if pos.LowVolumeTicks > 0 {
			m.book.ApplyAdvisory(pos.Mint, func(p *Position) { p.LowVolumeTicks = 0 })
		}
	}

	return nil
}
