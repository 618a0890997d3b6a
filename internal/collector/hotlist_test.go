package collector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"solana-pump-pipeline/internal/storage"
)

func buyTrade(trader string, sol float64) storage.ScoringTrade {
	return storage.ScoringTrade{Trader: trader, Side: "buy", SolAmount: sol}
}

func TestConcentrationHealthyDistribution(t *testing.T) {
	var trades []storage.ScoringTrade
	for i := 0; i < 10; i++ {
		trades = append(trades, buyTrade(fmt.Sprintf("buyer_%d", i), 10.0))
	}
	// Top 3 = 30 SOL of 100 SOL → 30%.
	assert.InDelta(t, 30.0, BuyConcentration(trades), 0.1)
}

func TestConcentrationManipulated(t *testing.T) {
	trades := []storage.ScoringTrade{buyTrade("whale", 90.0)}
	for i := 0; i < 9; i++ {
		trades = append(trades, buyTrade(fmt.Sprintf("buyer_%d", i), 1.0))
	}
	assert.Greater(t, BuyConcentration(trades), 90.0)
}

func TestConcentrationEdgeCases(t *testing.T) {
	// One buyer.
	assert.Equal(t, 100.0, BuyConcentration([]storage.ScoringTrade{buyTrade("b1", 100)}))

	// Two buyers.
	assert.Equal(t, 100.0, BuyConcentration([]storage.ScoringTrade{
		buyTrade("b1", 60), buyTrade("b2", 40),
	}))

	// No buys at all.
	assert.Equal(t, 100.0, BuyConcentration([]storage.ScoringTrade{
		{Trader: "s1", Side: "sell", SolAmount: 50},
	}))
}

func TestConcentrationModerate(t *testing.T) {
	trades := []storage.ScoringTrade{
		buyTrade("b1", 25), buyTrade("b2", 20), buyTrade("b3", 15),
		buyTrade("b4", 15), buyTrade("b5", 25),
	}
	// Top 3 = 25+25+20 = 70 of 100 → 70%.
	assert.InDelta(t, 70.0, BuyConcentration(trades), 0.1)
}

func TestVolumeAccelerationYoungTokenIsNeutral(t *testing.T) {
	trades := []storage.ScoringTrade{buyTrade("b1", 10), buyTrade("b2", 30)}
	assert.Equal(t, 1.0, VolumeAcceleration(trades, 45))
}

func TestVolumeAccelerationExplosive(t *testing.T) {
	// Older half 10 SOL, recent half 25 SOL → 2.5x.
	trades := []storage.ScoringTrade{
		buyTrade("b1", 5), buyTrade("b2", 5),
		buyTrade("b3", 12), buyTrade("b4", 13),
	}
	assert.InDelta(t, 2.5, VolumeAcceleration(trades, 90), 0.001)
}

func TestVolumeAccelerationTinyBaseline(t *testing.T) {
	trades := []storage.ScoringTrade{
		buyTrade("b1", 0.01), buyTrade("b2", 0.02),
		buyTrade("b3", 5), buyTrade("b4", 5),
	}
	assert.Equal(t, 1.0, VolumeAcceleration(trades, 90))
}

func TestScoreSignalsBounds(t *testing.T) {
	// Max out every signal except volume acceleration (which needs age ≥ 60)
	// and check the total stays under the 15.0 ceiling.
	var trades []storage.ScoringTrade
	winners := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("buyer_%d", i)
		trades = append(trades, buyTrade(name, 10.0))
		if i < 3 {
			winners[name] = struct{}{}
		}
	}

	b := ScoreSignals(SignalInputs{
		AgeSec:         25,
		Trades:         trades,
		CreatorPnlSol:  600,
		CreatorCount:   6,
		HaveCreator:    true,
		InitialLiqSol:  2,
		HaveLiquidity:  true,
		EstimatedMCSol: 100,
		Winners:        winners,
		MCVelocity:     1500,
		HaveMCVelocity: true,
	})

	assert.Equal(t, 2.0, b.Creator)
	assert.Equal(t, 2.0, b.BuyerSpeed)
	assert.Equal(t, 1.5, b.Liquidity)
	assert.Equal(t, 2.0, b.WalletOverlap)
	assert.Equal(t, 1.0, b.Concentration)
	assert.Equal(t, 3.0, b.MCVelocity)
	// Age < 60 keeps volume acceleration neutral.
	assert.Equal(t, 0.0, b.VolumeAccel)
	assert.InDelta(t, 11.5, b.Total, 0.001)
	assert.LessOrEqual(t, b.Total, 15.0)
}

func TestScoreSignalsExplosiveLaunch(t *testing.T) {
	// Spec scenario: explosive MC velocity (+1167 SOL/min), 10 distinct
	// buyers early, 55% concentration, 2% liquidity ratio, one proven
	// winner among the buyers.
	winners := map[string]struct{}{"buyer_0": {}}
	trades := []storage.ScoringTrade{
		buyTrade("buyer_0", 28), buyTrade("buyer_1", 14), buyTrade("buyer_2", 13),
		buyTrade("buyer_3", 9), buyTrade("buyer_4", 9), buyTrade("buyer_5", 9),
		buyTrade("buyer_6", 6), buyTrade("buyer_7", 5), buyTrade("buyer_8", 4),
		buyTrade("buyer_9", 3),
	}

	b := ScoreSignals(SignalInputs{
		AgeSec:         30,
		Trades:         trades,
		InitialLiqSol:  2,
		HaveLiquidity:  true,
		EstimatedMCSol: 100,
		Winners:        winners,
		MCVelocity:     1167,
		HaveMCVelocity: true,
	})

	assert.Equal(t, 2.0, b.BuyerSpeed)
	assert.Equal(t, 1.5, b.Liquidity)
	assert.Equal(t, 1.0, b.WalletOverlap)
	assert.Equal(t, 1.0, b.Concentration, "55%% concentration is healthy")
	assert.Equal(t, 3.0, b.MCVelocity)
	assert.GreaterOrEqual(t, b.Total, 8.5)

	confidence := b.Total / 15.0 * 100.0
	assert.GreaterOrEqual(t, confidence, 56.0)
}

func TestScoreSignalsColdToken(t *testing.T) {
	trades := []storage.ScoringTrade{buyTrade("b1", 0.5)}
	b := ScoreSignals(SignalInputs{AgeSec: 120, Trades: trades})
	assert.Equal(t, 0.0, b.Total)
	assert.Equal(t, 1, b.UniqueBuyers)
}
