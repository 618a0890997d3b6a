package brain

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// SizingStrategy selects how base position size derives from confidence.
// A small closed set, so a tagged variant rather than an interface.
type SizingStrategy int

const (
	StrategyFixed SizingStrategy = iota
	StrategyConfidenceScaled
	StrategyKellyCriterion
	StrategyTiered
)

// ParseSizingStrategy maps a config string to a strategy; unknown strings
// fall back to confidence scaling.
func ParseSizingStrategy(s string) SizingStrategy {
	switch s {
	case "fixed":
		return StrategyFixed
	case "kelly":
		return StrategyKellyCriterion
	case "tiered":
		return StrategyTiered
	}
	return StrategyConfidenceScaled
}

// SizerConfig carries the sizing envelope.
type SizerConfig struct {
	Strategy SizingStrategy

	// Fixed.
	FixedSizeSol float64

	// ConfidenceScaled.
	MinSizeSol float64
	MaxSizeSol float64

	// KellyCriterion.
	KellyBaseSol    float64
	KellyMaxRiskPct float64

	// Tiered.
	TierLowSol  float64
	TierMidSol  float64
	TierHighSol float64

	MaxPositionSol float64
	MinPositionSol float64
	PortfolioSol   float64
	MaxPositionPct float64

	EnableAdaptiveScaling bool
	AdaptiveWinStreak     int
	AdaptiveMultiplier    float64
}

// DefaultSizerConfig returns a conservative envelope for a 10 SOL book.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		Strategy:              StrategyConfidenceScaled,
		FixedSizeSol:          0.1,
		MinSizeSol:            0.05,
		MaxSizeSol:            0.2,
		KellyBaseSol:          0.2,
		KellyMaxRiskPct:       2.0,
		TierLowSol:            0.05,
		TierMidSol:            0.1,
		TierHighSol:           0.2,
		MaxPositionSol:        0.5,
		MinPositionSol:        0.05,
		PortfolioSol:          10.0,
		MaxPositionPct:        5.0,
		EnableAdaptiveScaling: true,
		AdaptiveWinStreak:     3,
		AdaptiveMultiplier:    1.1,
	}
}

// PositionSizer computes position sizes under the portfolio envelope.
type PositionSizer struct {
	cfg SizerConfig

	mu       sync.Mutex
	outcomes []TradeOutcome // newest last, capped at 5
}

// NewPositionSizer builds a sizer.
func NewPositionSizer(cfg SizerConfig) *PositionSizer {
	log.Info().
		Float64("portfolio", cfg.PortfolioSol).
		Float64("max_position", cfg.MaxPositionSol).
		Float64("max_pct", cfg.MaxPositionPct).
		Bool("adaptive", cfg.EnableAdaptiveScaling).
		Msg("💰 position sizer initialized")
	return &PositionSizer{cfg: cfg}
}

// CalculateSize returns the position size in SOL for one decision.
func (p *PositionSizer) CalculateSize(confidence uint8, activePositions, maxPositions int, totalExposureSol float64) float64 {
	size := p.baseSize(confidence)

	if p.cfg.EnableAdaptiveScaling && p.winStreak() >= p.cfg.AdaptiveWinStreak {
		size *= p.cfg.AdaptiveMultiplier
	}

	// Portfolio heat: leave a 20% buffer of remaining capacity.
	remaining := p.cfg.PortfolioSol - totalExposureSol
	if heatCap := remaining * 0.8; size > heatCap {
		size = heatCap
	}

	// Scale down near the position limit.
	if maxPositions > 0 {
		utilization := float64(activePositions) / float64(maxPositions)
		if utilization >= 0.8 {
			size *= 0.5
		} else if utilization >= 0.6 {
			size *= 0.75
		}
	}

	// Absolute clamps.
	if size < p.cfg.MinPositionSol {
		size = p.cfg.MinPositionSol
	}
	if size > p.cfg.MaxPositionSol {
		size = p.cfg.MaxPositionSol
	}
	if pctCap := p.cfg.PortfolioSol * p.cfg.MaxPositionPct / 100.0; size > pctCap {
		size = pctCap
	}
	return size
}

func (p *PositionSizer) baseSize(confidence uint8) float64 {
	conf := float64(confidence) / 100.0
	if conf > 1 {
		conf = 1
	}

	switch p.cfg.Strategy {
	case StrategyFixed:
		return p.cfg.FixedSizeSol
	case StrategyKellyCriterion:
		return p.cfg.KellyBaseSol * conf * (p.cfg.KellyMaxRiskPct / 100.0)
	case StrategyTiered:
		switch {
		case confidence < 50:
			return p.cfg.TierLowSol
		case confidence < 75:
			return p.cfg.TierMidSol
		default:
			return p.cfg.TierHighSol
		}
	default: // confidence scaled
		return p.cfg.MinSizeSol + (p.cfg.MaxSizeSol-p.cfg.MinSizeSol)*conf
	}
}

// RecordOutcome feeds the adaptive win-streak scaling.
func (p *PositionSizer) RecordOutcome(outcome TradeOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, outcome)
	if len(p.outcomes) > 5 {
		p.outcomes = p.outcomes[len(p.outcomes)-5:]
	}
}

// winStreak counts consecutive wins from the newest outcome back, capped by
// the retained history of 5.
func (p *PositionSizer) winStreak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	streak := 0
	for i := len(p.outcomes) - 1; i >= 0; i-- {
		if p.outcomes[i] != OutcomeWin {
			break
		}
		streak++
	}
	return streak
}

// PortfolioUtilization returns exposure as a percentage of the book.
func (p *PositionSizer) PortfolioUtilization(totalExposureSol float64) float64 {
	util := totalExposureSol / p.cfg.PortfolioSol * 100.0
	if util > 100 {
		util = 100
	}
	return util
}

// DynamicSlippageBps widens slippage with utilization and narrows it with
// confidence: 150·(1 + util·0.5)·(1.3 − conf/100·0.4), clamped [100, 500].
func DynamicSlippageBps(utilizationPct float64, confidence uint8) uint16 {
	util := utilizationPct / 100.0
	bps := 150.0 * (1.0 + util*0.5) * (1.3 - float64(confidence)/100.0*0.4)
	if bps < 100 {
		bps = 100
	}
	if bps > 500 {
		bps = 500
	}
	return uint16(bps)
}
