package brain

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/udp"
)

// EntryTrigger identifies which path produced a decision.
type EntryTrigger int

const (
	TriggerRank EntryTrigger = iota
	TriggerMomentum
	TriggerCopyTrade
	TriggerLateOpportunity
)

func (t EntryTrigger) String() string {
	switch t {
	case TriggerRank:
		return "rank"
	case TriggerMomentum:
		return "momentum"
	case TriggerCopyTrade:
		return "copy"
	case TriggerLateOpportunity:
		return "late"
	}
	return "unknown"
}

// EntryType returns the wire encoding of the trigger.
func (t EntryTrigger) EntryType() uint8 { return uint8(t) }

// IsAdvisor reports whether the path counts against advisor position limits.
func (t EntryTrigger) IsAdvisor() bool {
	return t == TriggerCopyTrade || t == TriggerLateOpportunity
}

// TriggerConfig carries the per-path thresholds, sizes and hold limits.
type TriggerConfig struct {
	// Path A: rank-based.
	MaxRankForInstant     uint8
	MinFollowThroughRank  uint8
	MinDecisionConfRank   uint8
	RankPositionSizeSol   float64
	RankMaxHoldSecs       uint64

	// Path B: momentum.
	MinBuyers2s              uint32
	MinVol5sSol              float64
	MinFollowThroughMomentum uint8
	MinDecisionConfMomentum  uint8
	MomentumPositionSizeSol  float64
	MomentumMaxHoldSecs      uint64

	// Path C: copy-trade.
	MinCopyTier          WalletTier
	MinCopyConfidence    uint8
	MinDecisionConfCopy  uint8
	MinCopySizeSol       float64
	CopyMultiplier       float64
	CopyPositionSizeBase float64
	CopyMaxHoldSecs      uint64

	// Path D: late-opportunity.
	EnableLateOpportunity bool
	MinLaunchAgeSeconds   uint64
	MinVol60sLate         float64
	MinBuyers60sLate      uint32
	MinFollowThroughLate  uint8
	LatePositionSizeSol   float64

	// General.
	DefaultSlippageBps uint16
	MaxPositionSizeSol float64
	MinPositionSizeSol float64

	// Early-score integration.
	MinEarlyScore       float64
	HighConfidenceScore float64
}

// DefaultTriggerConfig returns the production thresholds.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		MaxRankForInstant:    5,
		MinFollowThroughRank: 25,
		MinDecisionConfRank:  55,
		RankPositionSizeSol:  50.0,
		RankMaxHoldSecs:      30,

		MinBuyers2s:              3,
		MinVol5sSol:              4.0,
		MinFollowThroughMomentum: 35,
		MinDecisionConfMomentum:  65,
		MomentumPositionSizeSol:  75.0,
		MomentumMaxHoldSecs:      120,

		MinCopyTier:          TierC,
		MinCopyConfidence:    65,
		MinDecisionConfCopy:  70,
		MinCopySizeSol:       0.25,
		CopyMultiplier:       1.2,
		CopyPositionSizeBase: 25.0,
		CopyMaxHoldSecs:      15,

		EnableLateOpportunity: false,
		MinLaunchAgeSeconds:   1200,
		MinVol60sLate:         35.0,
		MinBuyers60sLate:      40,
		MinFollowThroughLate:  70,
		LatePositionSizeSol:   5.0,

		DefaultSlippageBps: 150,
		MaxPositionSizeSol: 150.0,
		MinPositionSizeSol: 25.0,

		MinEarlyScore:       6.0,
		HighConfidenceScore: 8.0,
	}
}

// TriggerEngine evaluates the four entry paths and validates candidates.
type TriggerEngine struct {
	cfg       TriggerConfig
	validator *TradeValidator
}

// NewTriggerEngine builds an engine over a validator.
func NewTriggerEngine(cfg TriggerConfig, validator *TradeValidator) *TriggerEngine {
	return &TriggerEngine{cfg: cfg, validator: validator}
}

// Config exposes the active configuration.
func (e *TriggerEngine) Config() TriggerConfig { return e.cfg }

// MinDecisionConf returns the path-specific confidence floor.
func (e *TriggerEngine) MinDecisionConf(path EntryTrigger) uint8 {
	switch path {
	case TriggerRank:
		return e.cfg.MinDecisionConfRank
	case TriggerMomentum:
		return e.cfg.MinDecisionConfMomentum
	case TriggerCopyTrade:
		return e.cfg.MinDecisionConfCopy
	}
	return 75
}

// MaxHoldSecs returns the path-specific maximum hold time.
func (e *TriggerEngine) MaxHoldSecs(path EntryTrigger) uint64 {
	switch path {
	case TriggerRank:
		return e.cfg.RankMaxHoldSecs
	case TriggerMomentum:
		return e.cfg.MomentumMaxHoldSecs
	case TriggerCopyTrade:
		return e.cfg.CopyMaxHoldSecs
	}
	return 300
}

// PositionSizeForScore scales a path's base size by early score.
func (e *TriggerEngine) PositionSizeForScore(earlyScore float64, path EntryTrigger) float64 {
	var size float64
	switch path {
	case TriggerRank:
		switch {
		case earlyScore >= 9.0:
			size = e.cfg.RankPositionSizeSol * 2.0
		case earlyScore >= e.cfg.HighConfidenceScore:
			size = e.cfg.RankPositionSizeSol * 1.5
		case earlyScore >= 7.0:
			size = e.cfg.RankPositionSizeSol
		default:
			size = e.cfg.MinPositionSizeSol
		}
	case TriggerMomentum:
		switch {
		case earlyScore >= 9.0:
			size = e.cfg.MomentumPositionSizeSol * 1.33
		case earlyScore >= e.cfg.HighConfidenceScore:
			size = e.cfg.MomentumPositionSizeSol
		case earlyScore >= 7.0:
			size = e.cfg.MomentumPositionSizeSol * 0.67
		default:
			size = e.cfg.MinPositionSizeSol
		}
	case TriggerCopyTrade:
		if earlyScore >= e.cfg.HighConfidenceScore {
			size = e.cfg.CopyPositionSizeBase * 2.0
		} else {
			size = e.cfg.CopyPositionSizeBase
		}
	default:
		size = e.cfg.LatePositionSizeSol
	}

	if size < e.cfg.MinPositionSizeSol {
		size = e.cfg.MinPositionSizeSol
	}
	if size > e.cfg.MaxPositionSizeSol {
		size = e.cfg.MaxPositionSizeSol
	}
	return size
}

// TryRankBased is Path A: top-ranked launches with enough follow-through.
// sizeSol is the early-score-scaled base (PositionSizeForScore); zero falls
// back to the configured path base.
func (e *TriggerEngine) TryRankBased(rank uint8, mint string, f *MintFeatures, creator string, sizeSol float64) (*ValidatedTrade, error) {
	if rank > e.cfg.MaxRankForInstant {
		return nil, fmt.Errorf("rank %d exceeds threshold %d", rank, e.cfg.MaxRankForInstant)
	}
	if f.FollowThroughScore < e.cfg.MinFollowThroughRank {
		return nil, fmt.Errorf("follow-through %d below threshold %d", f.FollowThroughScore, e.cfg.MinFollowThroughRank)
	}
	if sizeSol <= 0 {
		sizeSol = e.cfg.RankPositionSizeSol
	}

	validated, err := e.validator.Validate(mint, f, sizeSol,
		e.cfg.DefaultSlippageBps, f.FollowThroughScore, creator)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Uint8("rank", rank).
		Str("mint", shortStr(mint, 8)).
		Uint8("score", f.FollowThroughScore).
		Float64("size", validated.SizeUSD).
		Msg("✅ rank-based trigger fired")
	return validated, nil
}

// TryMomentum is Path B: confirmed surges. sizeSol is the
// early-score-scaled base; zero falls back to the configured path base.
func (e *TriggerEngine) TryMomentum(mint string, f *MintFeatures, creator string, sizeSol float64) (*ValidatedTrade, error) {
	if f.Buyers2s < e.cfg.MinBuyers2s {
		return nil, fmt.Errorf("recent buyers %d below threshold %d", f.Buyers2s, e.cfg.MinBuyers2s)
	}
	if f.Vol5sSol < e.cfg.MinVol5sSol {
		return nil, fmt.Errorf("recent volume %.2f SOL below threshold %.2f SOL", f.Vol5sSol, e.cfg.MinVol5sSol)
	}
	if f.FollowThroughScore < e.cfg.MinFollowThroughMomentum {
		return nil, fmt.Errorf("follow-through %d below threshold %d", f.FollowThroughScore, e.cfg.MinFollowThroughMomentum)
	}
	if sizeSol <= 0 {
		sizeSol = e.cfg.MomentumPositionSizeSol
	}

	validated, err := e.validator.Validate(mint, f, sizeSol,
		e.cfg.DefaultSlippageBps, f.FollowThroughScore, creator)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Uint32("buyers_2s", f.Buyers2s).
		Float64("vol_5s", f.Vol5sSol).
		Float64("size", validated.SizeUSD).
		Msg("⚡ momentum trigger fired")
	return validated, nil
}

// TryCopyTrade is Path C: follow a proven wallet's entry. Our size is the
// wallet's trade size × the copy multiplier.
func (e *TriggerEngine) TryCopyTrade(mint string, f *MintFeatures, wallet *WalletFeatures,
	walletTradeSizeSol float64, creator string) (*ValidatedTrade, error) {
	if wallet.Tier < e.cfg.MinCopyTier {
		return nil, fmt.Errorf("wallet tier %s below threshold", wallet.Tier)
	}
	if wallet.Confidence < e.cfg.MinCopyConfidence {
		return nil, fmt.Errorf("wallet confidence %d below threshold %d", wallet.Confidence, e.cfg.MinCopyConfidence)
	}
	if walletTradeSizeSol < e.cfg.MinCopySizeSol {
		return nil, fmt.Errorf("trade size %.2f SOL below threshold %.2f SOL", walletTradeSizeSol, e.cfg.MinCopySizeSol)
	}

	positionSizeUSD := walletTradeSizeSol * e.cfg.CopyMultiplier
	validated, err := e.validator.Validate(mint, f, positionSizeUSD,
		e.cfg.DefaultSlippageBps, wallet.Confidence, creator)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("tier", wallet.Tier.String()).
		Uint8("conf", wallet.Confidence).
		Float64("wallet_size", walletTradeSizeSol).
		Float64("our_size", validated.SizeUSD).
		Msg("🎭 copy-trade trigger fired")
	return validated, nil
}

// TryLateOpportunity is Path D: mature launches with sustained activity.
// Lower priority: the engine skips it when A or B fired in the same tick.
// sizeSol zero falls back to the configured path base.
func (e *TriggerEngine) TryLateOpportunity(mint string, f *MintFeatures, creator string, sizeSol float64) (*ValidatedTrade, error) {
	if !e.cfg.EnableLateOpportunity {
		return nil, fmt.Errorf("late-opportunity path disabled")
	}
	if f.AgeSinceLaunch <= e.cfg.MinLaunchAgeSeconds {
		return nil, fmt.Errorf("launch age %ds below threshold %ds", f.AgeSinceLaunch, e.cfg.MinLaunchAgeSeconds)
	}
	if f.Vol60sSol < e.cfg.MinVol60sLate {
		return nil, fmt.Errorf("volume %.2f SOL below threshold %.2f SOL", f.Vol60sSol, e.cfg.MinVol60sLate)
	}
	if f.Buyers60s < e.cfg.MinBuyers60sLate {
		return nil, fmt.Errorf("buyers %d below threshold %d", f.Buyers60s, e.cfg.MinBuyers60sLate)
	}
	if f.FollowThroughScore < e.cfg.MinFollowThroughLate {
		return nil, fmt.Errorf("follow-through %d below threshold %d", f.FollowThroughScore, e.cfg.MinFollowThroughLate)
	}
	if sizeSol <= 0 {
		sizeSol = e.cfg.LatePositionSizeSol
	}

	validated, err := e.validator.Validate(mint, f, sizeSol,
		e.cfg.DefaultSlippageBps, f.FollowThroughScore, creator)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Uint64("age", f.AgeSinceLaunch).
		Float64("vol_60s", f.Vol60sSol).
		Uint32("buyers_60s", f.Buyers60s).
		Msg("🕐 late-opportunity trigger fired")
	return validated, nil
}

// ToTradeDecision encodes a validated trade as a wire BUY decision.
func (e *TriggerEngine) ToTradeDecision(v *ValidatedTrade, trigger EntryTrigger, tradeID [16]byte) (*udp.TradeDecision, error) {
	raw, err := base58.Decode(v.Mint)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("bad mint %q", v.Mint)
	}
	var mint [32]byte
	copy(mint[:], raw)
	return udp.NewBuyDecision(mint, v.SizeLamports, v.SlippageBps, v.FollowThroughScore, trigger.EntryType(), tradeID), nil
}
