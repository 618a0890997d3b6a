package brain

import (
	"math"

	"github.com/rs/zerolog/log"
)

// ScoreComponents is the follow-through breakdown for one evaluation.
type ScoreComponents struct {
	BuyerScore         uint8
	VolumeScore        uint8
	WalletQualityScore uint8
	TotalScore         uint8

	Buyers2s            uint32
	Vol5sSol            float64
	AvgWalletConfidence float64
}

// FollowThroughScorer turns short-horizon activity into a 0-100 momentum
// score: 40% buyer momentum, 40% volume momentum, 20% wallet quality.
type FollowThroughScorer struct {
	maxBuyers2s  uint32
	maxVol5s     float64
	buyerWeight  float64
	volumeWeight float64
	qualityWeight float64
}

// NewFollowThroughScorer returns a scorer with the production thresholds:
// 20 buyers in 2s and 50 SOL in 5s saturate their components.
func NewFollowThroughScorer() *FollowThroughScorer {
	return &FollowThroughScorer{
		maxBuyers2s:   20,
		maxVol5s:      50.0,
		buyerWeight:   0.4,
		volumeWeight:  0.4,
		qualityWeight: 0.2,
	}
}

// WithWeights returns a scorer with normalized custom weights.
func (s *FollowThroughScorer) WithWeights(buyer, volume, quality float64) *FollowThroughScorer {
	total := buyer + volume + quality
	return &FollowThroughScorer{
		maxBuyers2s:   s.maxBuyers2s,
		maxVol5s:      s.maxVol5s,
		buyerWeight:   buyer / total,
		volumeWeight:  volume / total,
		qualityWeight: quality / total,
	}
}

// Calculate scores from mint features alone, using the cached
// follow-through value as the wallet-quality proxy.
func (s *FollowThroughScorer) Calculate(f *MintFeatures) ScoreComponents {
	buyerScore := s.scoreBuyers(f.Buyers2s)
	volumeScore := s.scoreVolume(f.Vol5sSol)
	quality := f.FollowThroughScore

	total := s.combine(buyerScore, volumeScore, quality)
	return ScoreComponents{
		BuyerScore:          buyerScore,
		VolumeScore:         volumeScore,
		WalletQualityScore:  quality,
		TotalScore:          total,
		Buyers2s:            f.Buyers2s,
		Vol5sSol:            f.Vol5sSol,
		AvgWalletConfidence: float64(quality),
	}
}

// CalculateWithWallets scores with real wallet features for the recent
// buyers instead of the cache proxy.
func (s *FollowThroughScorer) CalculateWithWallets(f *MintFeatures, wallets []*WalletFeatures) ScoreComponents {
	buyerScore := s.scoreBuyers(f.Buyers2s)
	volumeScore := s.scoreVolume(f.Vol5sSol)
	quality := s.scoreWalletQuality(wallets)

	avgConf := 50.0
	if len(wallets) > 0 {
		var sum float64
		for _, w := range wallets {
			sum += float64(w.Confidence)
		}
		avgConf = sum / float64(len(wallets))
	}

	total := s.combine(buyerScore, volumeScore, quality)
	log.Debug().
		Uint8("total", total).
		Uint8("buyers", buyerScore).
		Uint8("volume", volumeScore).
		Uint8("quality", quality).
		Msg("📊 follow-through")

	return ScoreComponents{
		BuyerScore:          buyerScore,
		VolumeScore:         volumeScore,
		WalletQualityScore:  quality,
		TotalScore:          total,
		Buyers2s:            f.Buyers2s,
		Vol5sSol:            f.Vol5sSol,
		AvgWalletConfidence: avgConf,
	}
}

func (s *FollowThroughScorer) combine(buyer, volume, quality uint8) uint8 {
	total := float64(buyer)*s.buyerWeight +
		float64(volume)*s.volumeWeight +
		float64(quality)*s.qualityWeight
	rounded := math.Round(total)
	if rounded > 100 {
		rounded = 100
	}
	return uint8(rounded)
}

// scoreBuyers: linear 0-5 buyers → 0-50, then logarithmic to 100 at
// maxBuyers2s.
func (s *FollowThroughScorer) scoreBuyers(buyers2s uint32) uint8 {
	if buyers2s == 0 {
		return 0
	}
	if buyers2s <= 5 {
		return uint8(float64(buyers2s) / 5.0 * 50.0)
	}
	normalized := float64(buyers2s) / float64(s.maxBuyers2s)
	if normalized > 1 {
		normalized = 1
	}
	logScore := math.Log(normalized) + 1.0
	if logScore < 0 {
		logScore = 0
	}
	return uint8(50.0 + logScore*50.0)
}

// scoreVolume: √-normalized against maxVol5s for diminishing returns.
func (s *FollowThroughScorer) scoreVolume(vol5sSol float64) uint8 {
	if vol5sSol <= 0 {
		return 0
	}
	normalized := vol5sSol / s.maxVol5s
	if normalized > 1 {
		normalized = 1
	}
	return uint8(math.Sqrt(normalized) * 100.0)
}

// scoreWalletQuality: tier-weighted average — A 95, B 85, C 80, Discovery
// its bootstrap score. Neutral 50 with no wallet data.
func (s *FollowThroughScorer) scoreWalletQuality(wallets []*WalletFeatures) uint8 {
	if len(wallets) == 0 {
		return 50
	}
	var total float64
	for _, w := range wallets {
		switch w.Tier {
		case TierA:
			total += 95
		case TierB:
			total += 85
		case TierC:
			total += 80
		default:
			total += float64(w.BootstrapScore)
		}
	}
	return uint8(math.Round(total / float64(len(wallets))))
}

// PositionSizeMultiplier scales base position size by score band.
func (s *FollowThroughScorer) PositionSizeMultiplier(score uint8) float64 {
	switch {
	case score < 40:
		return 0.5
	case score < 60:
		return 0.75
	case score < 80:
		return 1.0
	case score < 90:
		return 1.25
	default:
		return 1.5
	}
}

// EstimateSuccessProbability maps a score to [0.1, 0.9] via a sigmoid
// centered at 50 with scale 15.
func (s *FollowThroughScorer) EstimateSuccessProbability(score uint8) float64 {
	x := (float64(score) - 50.0) / 15.0
	sigmoid := 1.0 / (1.0 + math.Exp(-x))
	return 0.1 + sigmoid*0.8
}
