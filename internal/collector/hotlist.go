package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/storage"
	"solana-pump-pipeline/internal/udp"
)

// HotlistConfig controls the scoring cadence and broadcast threshold.
type HotlistConfig struct {
	ScoringInterval   time.Duration
	MinAgeSec         int64
	MaxAgeSec         int64
	MinBroadcastScore float64
}

// DefaultHotlistConfig matches the production cadence: score every 5s,
// tokens aged 10-300s, broadcast at ≥6.0.
func DefaultHotlistConfig() HotlistConfig {
	return HotlistConfig{
		ScoringInterval:   5 * time.Second,
		MinAgeSec:         10,
		MaxAgeSec:         300,
		MinBroadcastScore: 6.0,
	}
}

// ScoreBreakdown is the per-signal decomposition of one hotlist score.
// Total ∈ [0, 15].
type ScoreBreakdown struct {
	Total         float64
	Creator       float64
	BuyerSpeed    float64
	Liquidity     float64
	WalletOverlap float64
	Concentration float64
	VolumeAccel   float64
	MCVelocity    float64
	MCVelValue    float64
	UniqueBuyers  int
}

// HotlistScorer runs the seven-signal early score over fresh launches.
type HotlistScorer struct {
	db      *storage.DB
	tracker *LiveTracker
	advice  *udp.Publisher // nil disables broadcasting
	cfg     HotlistConfig
}

// NewHotlistScorer builds a scorer. advice may be nil.
func NewHotlistScorer(db *storage.DB, tracker *LiveTracker, advice *udp.Publisher, cfg HotlistConfig) *HotlistScorer {
	return &HotlistScorer{db: db, tracker: tracker, advice: advice, cfg: cfg}
}

// Run executes scoring cycles until ctx is done.
func (h *HotlistScorer) Run(ctx context.Context) {
	log.Info().
		Dur("interval", h.cfg.ScoringInterval).
		Float64("min_score", h.cfg.MinBroadcastScore).
		Msg("🎯 hotlist scorer started")

	ticker := time.NewTicker(h.cfg.ScoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.runCycle(); err != nil {
				log.Warn().Err(err).Msg("hotlist scoring cycle failed")
			}
		}
	}
}

func (h *HotlistScorer) runCycle() error {
	now := time.Now().Unix()
	tokens, err := h.db.RecentTokensForScoring(now-h.cfg.MaxAgeSec, now-h.cfg.MinAgeSec)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	for _, tok := range tokens {
		mint := tok[0].(string)
		launchTime := tok[1].(int64)

		breakdown, err := h.scoreToken(mint, launchTime, now)
		if err != nil {
			log.Debug().Err(err).Str("mint", shortMint(mint)).Msg("failed to score token")
			continue
		}

		if err := h.db.UpsertHotlist(&storage.HotlistEntry{
			Mint:          mint,
			Score:         breakdown.Total,
			Creator:       breakdown.Creator,
			BuyerSpeed:    breakdown.BuyerSpeed,
			Liquidity:     breakdown.Liquidity,
			WalletOverlap: breakdown.WalletOverlap,
			Concentration: breakdown.Concentration,
			VolumeAccel:   breakdown.VolumeAccel,
			MCVelocity:    breakdown.MCVelocity,
			MCVelValue:    breakdown.MCVelValue,
			UniqueBuyers:  breakdown.UniqueBuyers,
			UpdatedAt:     now,
		}); err != nil {
			log.Warn().Err(err).Str("mint", shortMint(mint)).Msg("hotlist upsert failed")
			continue
		}

		if breakdown.Total >= h.cfg.MinBroadcastScore && h.advice != nil {
			confidence := uint8(minFloat(breakdown.Total/15.0*100.0, 100.0))
			h.broadcast(mint, confidence)
			log.Info().
				Str("mint", shortMint(mint)).
				Float64("score", breakdown.Total).
				Float64("mc_velocity", breakdown.MCVelValue).
				Uint8("confidence", confidence).
				Msg("🔥 high-score token")
		}
	}

	if purged, err := h.db.CleanupOldHotlist(300); err == nil && purged > 0 {
		log.Debug().Int64("purged", purged).Msg("hotlist cleanup")
	}
	return nil
}

func (h *HotlistScorer) broadcast(mint string, confidence uint8) {
	raw, err := base58.Decode(mint)
	if err != nil || len(raw) != 32 {
		return
	}
	adv := &udp.Advisory{
		Type:       udp.AdvisoryLateOpportunity,
		HorizonSec: 60,
		Score:      confidence,
	}
	copy(adv.Mint[:], raw)
	h.advice.Send(adv.Encode())
}

// scoreToken computes the seven-signal breakdown for one token.
func (h *HotlistScorer) scoreToken(mint string, launchTime, now int64) (*ScoreBreakdown, error) {
	ageSec := now - launchTime

	trades, err := h.db.RecentTradesForScoring(mint, 60)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, fmt.Errorf("no trades found for %s", shortMint(mint))
	}

	var creatorPnl float64
	var creatorCount int
	var haveCreator bool
	if creator, err := h.db.CreatorWallet(mint); err == nil {
		creatorPnl, creatorCount, haveCreator, _ = h.db.CreatorStats(creator)
	}

	initialLiq, haveLiq, _ := h.db.InitialLiquidity(mint)

	// Estimate current MC from the last trade price × 1B supply.
	estimatedMC := 0.0
	if act, err := h.db.MintActivitySince(mint, now); err == nil {
		estimatedMC = act.LastPrice * 1_000_000_000
	}

	var mcVelocity float64
	var haveVelocity bool
	if h.tracker != nil {
		mcVelocity, haveVelocity = h.tracker.MCVelocity(mint, estimatedMC)
	}

	winners, _ := h.db.ProfitableWallets(100.0, 0.5, 100)

	breakdown := ScoreSignals(SignalInputs{
		AgeSec:          ageSec,
		Trades:          trades,
		CreatorPnlSol:   creatorPnl,
		CreatorCount:    creatorCount,
		HaveCreator:     haveCreator,
		InitialLiqSol:   initialLiq,
		HaveLiquidity:   haveLiq,
		EstimatedMCSol:  estimatedMC,
		Winners:         winners,
		MCVelocity:      mcVelocity,
		HaveMCVelocity:  haveVelocity,
	})
	return breakdown, nil
}

// SignalInputs carries everything the pure scoring function needs.
type SignalInputs struct {
	AgeSec         int64
	Trades         []storage.ScoringTrade
	CreatorPnlSol  float64
	CreatorCount   int
	HaveCreator    bool
	InitialLiqSol  float64
	HaveLiquidity  bool
	EstimatedMCSol float64
	Winners        map[string]struct{}
	MCVelocity     float64
	HaveMCVelocity bool
}

// ScoreSignals applies the seven-signal algorithm. Every signal contributes
// a bounded non-negative addend; the total stays within [0, 15].
func ScoreSignals(in SignalInputs) *ScoreBreakdown {
	b := &ScoreBreakdown{}

	// Signal 1: creator wallet reputation.
	if in.HaveCreator {
		switch {
		case in.CreatorPnlSol >= 500 && in.CreatorCount >= 5:
			b.Creator = 2.0
		case in.CreatorPnlSol >= 200 && in.CreatorCount >= 3:
			b.Creator = 1.5
		case in.CreatorPnlSol >= 50:
			b.Creator = 1.0
		}
	}

	// Signal 2: speed of the first 10 buyers.
	first10 := 0
	for _, t := range in.Trades {
		if t.Side == "buy" {
			first10++
			if first10 == 10 {
				break
			}
		}
	}
	switch {
	case first10 >= 10 && in.AgeSec <= 30:
		b.BuyerSpeed = 2.0
	case first10 >= 10 && in.AgeSec <= 60:
		b.BuyerSpeed = 1.5
	case first10 >= 7:
		b.BuyerSpeed = 1.0
	}

	// Signal 3: liquidity-to-MC ratio. Thin liquidity is the red flag.
	if in.HaveLiquidity && in.EstimatedMCSol > 0 && in.InitialLiqSol > 0 {
		ratio := in.InitialLiqSol / in.EstimatedMCSol
		if ratio < 0.03 {
			b.Liquidity = 1.5
		} else if ratio < 0.05 {
			b.Liquidity = 1.0
		}
	}

	// Signal 4: buyer overlap with proven winners.
	if len(in.Winners) > 0 {
		buyers := make(map[string]struct{})
		for _, t := range in.Trades {
			if t.Side == "buy" {
				buyers[t.Trader] = struct{}{}
			}
		}
		overlap := 0
		for buyer := range buyers {
			if _, ok := in.Winners[buyer]; ok {
				overlap++
			}
		}
		switch {
		case overlap >= 3:
			b.WalletOverlap = 2.0
		case overlap == 2:
			b.WalletOverlap = 1.5
		case overlap == 1:
			b.WalletOverlap = 1.0
		}
	}

	// Signal 5: top-3 buy concentration. Lower is healthier.
	concentration := BuyConcentration(in.Trades)
	if concentration < 70 {
		b.Concentration = 1.0
	} else if concentration < 80 {
		b.Concentration = 0.5
	}

	// Signal 6: volume acceleration.
	accel := VolumeAcceleration(in.Trades, in.AgeSec)
	if accel >= 2.0 {
		b.VolumeAccel = 1.5
	} else if accel >= 1.5 {
		b.VolumeAccel = 1.0
	}

	// Signal 7: MC velocity.
	if in.HaveMCVelocity {
		b.MCVelValue = in.MCVelocity
		switch {
		case in.MCVelocity >= 1000:
			b.MCVelocity = 3.0
		case in.MCVelocity >= 500:
			b.MCVelocity = 2.0
		case in.MCVelocity >= 200:
			b.MCVelocity = 1.0
		}
	}

	uniq := make(map[string]struct{})
	for _, t := range in.Trades {
		if t.Side == "buy" {
			uniq[t.Trader] = struct{}{}
		}
	}
	b.UniqueBuyers = len(uniq)

	b.Total = b.Creator + b.BuyerSpeed + b.Liquidity + b.WalletOverlap +
		b.Concentration + b.VolumeAccel + b.MCVelocity
	return b
}

// BuyConcentration returns top-3 buyers' SOL / all buy SOL × 100. One or two
// distinct buyers is maximal concentration by definition.
func BuyConcentration(trades []storage.ScoringTrade) float64 {
	byBuyer := make(map[string]float64)
	for _, t := range trades {
		if t.Side == "buy" {
			byBuyer[t.Trader] += t.SolAmount
		}
	}
	if len(byBuyer) <= 2 {
		return 100.0
	}

	amounts := make([]float64, 0, len(byBuyer))
	var total float64
	for _, v := range byBuyer {
		amounts = append(amounts, v)
		total += v
	}
	if total <= 0 {
		return 100.0
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(amounts)))

	var top3 float64
	for i := 0; i < 3 && i < len(amounts); i++ {
		top3 += amounts[i]
	}
	return top3 / total * 100.0
}

// VolumeAcceleration compares the recent half of buy volume against the
// older half over the last 60s. Returns 1.0 when the token is too young or
// the baseline is negligible.
func VolumeAcceleration(trades []storage.ScoringTrade, ageSec int64) float64 {
	if ageSec < 60 || len(trades) == 0 {
		return 1.0
	}

	midpoint := len(trades) / 2
	var baseline, recent float64
	for i, t := range trades {
		if t.Side != "buy" {
			continue
		}
		if i < midpoint {
			baseline += t.SolAmount
		} else {
			recent += t.SolAmount
		}
	}
	if baseline < 0.1 {
		return 1.0
	}
	return recent / baseline
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
