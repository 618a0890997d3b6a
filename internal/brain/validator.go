package brain

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// ValidationConfig carries the pre-trade validation thresholds.
type ValidationConfig struct {
	FeeMultiplier       float64 // min profit target = fees × this
	ImpactCapMultiplier float64 // max impact = target × this
	MinFollowThrough    uint8
	MinProfitUSD        float64
	EnableRugChecks     bool
	RugCreatorBlacklist map[string]struct{}
}

// DefaultValidationConfig matches the production floor: target ≥
// max($1.00, fees×2.2), impact ≤ 45% of target, score ≥ 60.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		FeeMultiplier:       2.2,
		ImpactCapMultiplier: 0.45,
		MinFollowThrough:    60,
		MinProfitUSD:        1.0,
		EnableRugChecks:     true,
		RugCreatorBlacklist: make(map[string]struct{}),
	}
}

// RejectReason labels a validation failure for metrics.
type RejectReason string

const (
	RejectFeeTooHigh            RejectReason = "fee_too_high"
	RejectImpactTooHigh         RejectReason = "impact_too_high"
	RejectFollowThroughTooLow   RejectReason = "follow_through_too_low"
	RejectRugCreatorDetected    RejectReason = "rug_creator"
	RejectSuspiciousPattern     RejectReason = "suspicious_pattern"
	RejectInsufficientLiquidity RejectReason = "insufficient_liquidity"
)

// ValidationError is a typed rejection carrying its metric label.
type ValidationError struct {
	Reason RejectReason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func rejection(reason RejectReason, format string, args ...interface{}) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// FeeEstimate is the round-trip cost model for one trade.
type FeeEstimate struct {
	TipUSD      float64
	GasUSD      float64
	SlippageUSD float64
	TotalUSD    float64
}

// RoundTripFees estimates entry + exit fees: fixed tip, fixed gas and
// slippage proportional to size, each doubled.
func RoundTripFees(positionSizeUSD float64, slippageBps uint16) FeeEstimate {
	tip := 0.10
	gas := 0.001
	slippage := positionSizeUSD * float64(slippageBps) / 1e4
	return FeeEstimate{
		TipUSD:      tip * 2,
		GasUSD:      gas * 2,
		SlippageUSD: slippage * 2,
		TotalUSD:    (tip + gas + slippage) * 2,
	}
}

// ValidatedTrade is a trade that survived validation, carrying everything
// the decision encoder and logger need.
type ValidatedTrade struct {
	Mint               string
	SizeLamports       uint64
	SizeUSD            float64
	SizeSol            float64
	SlippageBps        uint16
	FollowThroughScore uint8
	MinProfitTargetUSD float64
	EstimatedFeesUSD   float64
	EstimatedImpactPct float64
	ExpectedValueUSD   float64
	SuccessProbability float64
}

// TradeValidator runs the pre-trade checks.
type TradeValidator struct {
	cfg ValidationConfig
}

// NewTradeValidator builds a validator.
func NewTradeValidator(cfg ValidationConfig) *TradeValidator {
	if cfg.RugCreatorBlacklist == nil {
		cfg.RugCreatorBlacklist = make(map[string]struct{})
	}
	return &TradeValidator{cfg: cfg}
}

// Validate runs the full check sequence and returns the validated trade or
// a typed rejection.
func (v *TradeValidator) Validate(mint string, f *MintFeatures, positionSizeUSD float64,
	slippageBps uint16, followThroughScore uint8, creator string) (*ValidatedTrade, error) {
	fees := RoundTripFees(positionSizeUSD, slippageBps)
	target := v.minProfitTarget(fees.TotalUSD)

	if fees.TotalUSD > target {
		return nil, rejection(RejectFeeTooHigh, "fees $%.2f exceed profit target $%.2f", fees.TotalUSD, target)
	}

	impactPct := v.estimateImpactPct(positionSizeUSD, f.CurveDepthProxy, f.Vol60sSol)
	impactUSD := positionSizeUSD * impactPct / 100.0
	maxImpactUSD := target * v.cfg.ImpactCapMultiplier
	if impactUSD > maxImpactUSD {
		return nil, rejection(RejectImpactTooHigh, "impact $%.2f exceeds cap $%.2f", impactUSD, maxImpactUSD)
	}

	if followThroughScore < v.cfg.MinFollowThrough {
		return nil, rejection(RejectFollowThroughTooLow, "score %d below %d", followThroughScore, v.cfg.MinFollowThrough)
	}

	if v.cfg.EnableRugChecks {
		if creator != "" {
			if _, blacklisted := v.cfg.RugCreatorBlacklist[creator]; blacklisted {
				return nil, rejection(RejectRugCreatorDetected, "creator %s is blacklisted", creator)
			}
		}
		if err := v.checkSuspiciousPatterns(f); err != nil {
			return nil, err
		}
	}

	prob := v.successProbability(followThroughScore, f)
	expectedValue := prob*(target*1.5) - (1.0-prob)*fees.TotalUSD

	sizeLamports := uint64(0)
	if f.CurrentPrice > 0 {
		sizeLamports = uint64(positionSizeUSD * 1e9 / f.CurrentPrice)
	}

	log.Debug().
		Str("mint", shortStr(mint, 12)).
		Float64("fees", fees.TotalUSD).
		Float64("target", target).
		Float64("impact_pct", impactPct).
		Uint8("score", followThroughScore).
		Float64("ev", expectedValue).
		Msg("✅ validation passed")

	return &ValidatedTrade{
		Mint:               mint,
		SizeLamports:       sizeLamports,
		SizeUSD:            positionSizeUSD,
		SlippageBps:        slippageBps,
		FollowThroughScore: followThroughScore,
		MinProfitTargetUSD: target,
		EstimatedFeesUSD:   fees.TotalUSD,
		EstimatedImpactPct: impactPct,
		ExpectedValueUSD:   expectedValue,
		SuccessProbability: prob,
	}, nil
}

func (v *TradeValidator) minProfitTarget(fees float64) float64 {
	return math.Max(fees*v.cfg.FeeMultiplier, v.cfg.MinProfitUSD)
}

// estimateImpactPct models price impact as size over recent-volume
// liquidity, damped by curve depth. Capped at 100%.
func (v *TradeValidator) estimateImpactPct(sizeUSD float64, curveDepthProxy uint64, vol60sSol float64) float64 {
	liquidityProxy := math.Max(vol60sSol, 1.0)
	rawImpact := sizeUSD / liquidityProxy * 10.0

	depthFactor := 2.0
	if curveDepthProxy > 0 {
		depthRatio := float64(curveDepthProxy) / 1e6
		depthFactor = 1.0 / math.Max(math.Sqrt(depthRatio), 0.5)
	}

	return math.Min(rawImpact*depthFactor, 100.0)
}

func (v *TradeValidator) checkSuspiciousPatterns(f *MintFeatures) error {
	if f.Vol60sSol > 20.0 && f.Buyers60s < 5 {
		return rejection(RejectSuspiciousPattern, "high volume (%.1f SOL) with %d buyers", f.Vol60sSol, f.Buyers60s)
	}
	if f.BuysSellsRatio > 10.0 {
		return rejection(RejectSuspiciousPattern, "buy/sell ratio %.1f:1", f.BuysSellsRatio)
	}
	if f.CurrentPrice < 1e-6 {
		return rejection(RejectSuspiciousPattern, "price too low: %.10f", f.CurrentPrice)
	}
	return nil
}

// successProbability maps score to [0.1, 0.9] and adjusts for buying
// pressure and launch freshness.
func (v *TradeValidator) successProbability(score uint8, f *MintFeatures) float64 {
	x := (float64(score) - 50.0) / 15.0
	base := 0.1 + 0.8/(1.0+math.Exp(-x))

	ratioFactor := 1.0
	if f.BuysSellsRatio > 2.0 {
		ratioFactor = 1.1
	} else if f.BuysSellsRatio < 0.8 {
		ratioFactor = 0.8
	}

	ageFactor := 1.0
	if f.AgeSinceLaunch < 60 {
		ageFactor = 1.15
	} else if f.AgeSinceLaunch >= 300 {
		ageFactor = 0.85
	}

	p := base * ratioFactor * ageFactor
	if p < 0.1 {
		p = 0.1
	}
	if p > 0.9 {
		p = 0.9
	}
	return p
}

func shortStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
